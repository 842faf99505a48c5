package jobstore_test

import (
	"context"
	"errors"
	"testing"

	"folio/internal/jobstore"
	"folio/internal/services"
)

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := jobstore.NewMemory()
	ctx := context.Background()
	node := &jobstore.Node{ID: "n", Type: "x", User: "u", ChildIDs: []string{"a"}}
	if err := store.Insert(ctx, node); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	node.ChildIDs[0] = "mutated"

	got, err := store.Get(ctx, "n")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ChildIDs[0] != "a" {
		t.Fatalf("store aliased caller slice: %v", got.ChildIDs)
	}
	got.State = jobstore.StateSuccess
	again, _ := store.Get(ctx, "n")
	if again.State != jobstore.StateNew {
		t.Fatalf("store aliased returned node: %s", again.State)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 node, got %d", store.Len())
	}
}

func TestMemoryStoreUnavailableAfterClose(t *testing.T) {
	store := jobstore.NewMemory()
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	err := store.Insert(context.Background(), &jobstore.Node{ID: "n", Type: "x", User: "u"})
	if !errors.Is(err, jobstore.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected services.ErrUnavailable in chain, got %v", err)
	}
	if _, err := store.Get(context.Background(), "n"); !errors.Is(err, jobstore.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from Get, got %v", err)
	}
}

func TestStateHelpers(t *testing.T) {
	if jobstore.StateNew.Terminal() || jobstore.StateStarted.Terminal() {
		t.Fatal("new/started must not be terminal")
	}
	if !jobstore.StateSuccess.Terminal() || !jobstore.StateError.Terminal() {
		t.Fatal("success/error must be terminal")
	}
	if state, ok := jobstore.ParseState(" Success "); !ok || state != jobstore.StateSuccess {
		t.Fatalf("ParseState = %q %v", state, ok)
	}
	if _, ok := jobstore.ParseState("paused"); ok {
		t.Fatal("expected unknown state to fail parsing")
	}
}
