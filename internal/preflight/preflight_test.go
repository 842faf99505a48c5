package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"folio/internal/jobstore"
	"folio/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("work", dir, 0); !result.Passed {
		t.Fatalf("zero minimum should pass: %s", result.Detail)
	}
	if result := CheckFreeSpace("work", dir, 1<<40); result.Passed {
		t.Fatalf("an exbibyte minimum should fail: %s", result.Detail)
	}
	if result := CheckFreeSpace("work", filepath.Join(dir, "missing"), 0); result.Passed {
		t.Fatal("missing path should fail")
	}
}

func TestCheckStore(t *testing.T) {
	store := jobstore.NewMemory()
	if result := CheckStore(context.Background(), store); !result.Passed {
		t.Fatalf("expected open store to pass: %s", result.Detail)
	}
	_ = store.Close()
	if result := CheckStore(context.Background(), store); result.Passed {
		t.Fatal("expected closed store to fail")
	}
}

func TestCheckHTTP(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	if result := CheckHTTP(context.Background(), "OJS", ok.URL+"/"); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if result := CheckHTTP(context.Background(), "OJS", broken.URL); result.Passed {
		t.Fatal("expected failure for 502")
	}
	if result := CheckHTTP(context.Background(), "OJS", " "); result.Passed {
		t.Fatal("expected failure for missing url")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	results := RunAll(context.Background(), cfg, jobstore.NewMemory())
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
}

func TestRunAll_ReportsLowSpace(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMinFreeGiB(1<<40))

	failed := Failed(RunAll(context.Background(), cfg, nil))
	if len(failed) != 1 || failed[0].Name != "Work volume" {
		t.Fatalf("expected only the work volume check to fail, got %+v", failed)
	}
}
