package testsupport

import (
	"context"
	"testing"

	"folio/internal/config"
	"folio/internal/jobstore"
)

// MustOpenStore opens the configured job store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustGet loads a node or fails the test.
func MustGet(t testing.TB, store jobstore.Store, id string) *jobstore.Node {
	t.Helper()

	node, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get(%s): %v", id, err)
	}
	return node
}
