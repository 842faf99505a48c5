// Package ids produces the identifiers used as job node keys, execution
// correlation tokens, and work directory names.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator yields identifiers that are unique across the whole job store.
type Generator interface {
	New() (string, error)
}

// UUIDGenerator emits time-ordered UUIDv7 strings. The zero value is ready to
// use and safe for concurrent callers.
type UUIDGenerator struct{}

// New returns a fresh UUIDv7.
func (UUIDGenerator) New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

// Sequence is a deterministic generator producing prefix-0001, prefix-0002, ...
type Sequence struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequence returns a Sequence with the given prefix.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// New returns the next identifier in the sequence.
func (s *Sequence) New() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("%s-%04d", s.prefix, s.next), nil
}
