package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DataDir is the subdirectory holding an object's representations.
const DataDir = "data"

// Path returns the directory owned by id under root.
func Path(root, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid work path %q", id)
	}
	return filepath.Join(root, id), nil
}

// Ensure creates the directory owned by id and returns its path.
func Ensure(root, id string) (string, error) {
	dir, err := Path(root, id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work directory: %w", err)
	}
	return dir, nil
}

// Exists reports whether the directory owned by id is present.
func Exists(root, id string) bool {
	dir, err := Path(root, id)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Remove deletes the directory owned by id. A missing directory is not an error.
func Remove(root, id string) error {
	dir, err := Path(root, id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove work directory: %w", err)
	}
	return nil
}

// Representation returns the directory of a named representation inside the
// object assembled in dir.
func Representation(dir, name string) string {
	return filepath.Join(dir, DataDir, name)
}
