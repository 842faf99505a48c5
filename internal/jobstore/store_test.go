package jobstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"folio/internal/jobstore"
	"folio/internal/services"
)

type storeFactory func(t *testing.T) jobstore.Store

func backends(t *testing.T) map[string]storeFactory {
	t.Helper()
	factories := map[string]storeFactory{
		"memory": func(t *testing.T) jobstore.Store {
			store := jobstore.NewMemory()
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
		"sqlite": func(t *testing.T) jobstore.Store {
			store, err := jobstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
			if err != nil {
				t.Fatalf("OpenSQLite failed: %v", err)
			}
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
	if dsn := os.Getenv("FOLIO_TEST_POSTGRES_DSN"); dsn != "" {
		factories["postgres"] = func(t *testing.T) jobstore.Store {
			ctx := context.Background()
			store, err := jobstore.OpenPostgres(ctx, dsn)
			if err != nil {
				t.Fatalf("OpenPostgres failed: %v", err)
			}
			if err := store.DropSchema(ctx); err != nil {
				t.Fatalf("DropSchema failed: %v", err)
			}
			if err := store.CreateSchema(ctx); err != nil {
				t.Fatalf("CreateSchema failed: %v", err)
			}
			t.Cleanup(func() {
				_ = store.DropSchema(context.Background())
				_ = store.Close()
			})
			return store
		}
	}
	return factories
}

func forEachBackend(t *testing.T, fn func(t *testing.T, store jobstore.Store)) {
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store jobstore.Store) {
		ctx := context.Background()
		node := &jobstore.Node{
			ID:          "task-1",
			Type:        "convert.tif_to_jpg",
			User:        "alice",
			ParentID:    "chain-1",
			Parameters:  json.RawMessage(`{"source":"tif","target":"jpg"}`),
			Label:       "Convert",
			Description: "tif to jpg",
		}
		if err := store.Insert(ctx, node); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		got, err := store.Get(ctx, "task-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Type != node.Type || got.User != "alice" || got.ParentID != "chain-1" {
			t.Fatalf("unexpected node: %+v", got)
		}
		if got.State != jobstore.StateNew {
			t.Fatalf("expected default state new, got %s", got.State)
		}
		if got.Label != "Convert" || got.Description != "tif to jpg" {
			t.Fatalf("unexpected label/description: %q %q", got.Label, got.Description)
		}
		var params map[string]string
		if err := json.Unmarshal(got.Parameters, &params); err != nil || params["target"] != "jpg" {
			t.Fatalf("unexpected parameters %s: %v", got.Parameters, err)
		}
		if len(got.ChildIDs) != 0 || len(got.Errors) != 0 {
			t.Fatalf("expected empty child ids and errors, got %+v", got)
		}
		if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(got.UpdatedAt) {
			t.Fatalf("expected matching timestamps, got %v %v", got.CreatedAt, got.UpdatedAt)
		}
	})
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store jobstore.Store) {
		ctx := context.Background()
		if err := store.Insert(ctx, &jobstore.Node{ID: "dup", Type: "x", User: "u"}); err != nil {
			t.Fatalf("first Insert failed: %v", err)
		}
		err := store.Insert(ctx, &jobstore.Node{ID: "dup", Type: "y", User: "u"})
		if !errors.Is(err, jobstore.ErrDuplicateID) {
			t.Fatalf("expected ErrDuplicateID, got %v", err)
		}
		got, err := store.Get(ctx, "dup")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Type != "x" {
			t.Fatalf("duplicate insert overwrote node: %+v", got)
		}
	})
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store jobstore.Store) {
		ctx := context.Background()
		_, err := store.Get(ctx, "missing")
		if !errors.Is(err, jobstore.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("expected services.ErrNotFound in chain, got %v", err)
		}
		if err := store.SetState(ctx, "missing", jobstore.StateSuccess); !errors.Is(err, jobstore.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from SetState, got %v", err)
		}
		if err := store.AppendError(ctx, "missing", jobstore.NodeError{Source: "s", Message: "m"}); !errors.Is(err, jobstore.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from AppendError, got %v", err)
		}
	})
}

func TestSetStateAndAppendErrorAreIndependent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store jobstore.Store) {
		ctx := context.Background()
		if err := store.Insert(ctx, &jobstore.Node{ID: "n1", Type: "x", User: "u"}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		before, _ := store.Get(ctx, "n1")
		time.Sleep(2 * time.Millisecond)

		for i := 0; i < 3; i++ {
			entry := jobstore.NodeError{Source: "worker", Message: fmt.Sprintf("failure %d", i)}
			if err := store.AppendError(ctx, "n1", entry); err != nil {
				t.Fatalf("AppendError failed: %v", err)
			}
		}
		// identical entries are kept, never deduplicated
		if err := store.AppendError(ctx, "n1", jobstore.NodeError{Source: "worker", Message: "failure 2"}); err != nil {
			t.Fatalf("AppendError failed: %v", err)
		}

		afterErrors, _ := store.Get(ctx, "n1")
		if afterErrors.State != jobstore.StateNew {
			t.Fatalf("AppendError changed state to %s", afterErrors.State)
		}
		if len(afterErrors.Errors) != 4 {
			t.Fatalf("expected 4 errors, got %d", len(afterErrors.Errors))
		}
		for i, want := range []string{"failure 0", "failure 1", "failure 2", "failure 2"} {
			if afterErrors.Errors[i].Message != want || afterErrors.Errors[i].Source != "worker" {
				t.Fatalf("error %d = %+v, want %q", i, afterErrors.Errors[i], want)
			}
		}
		if !afterErrors.UpdatedAt.After(before.UpdatedAt) {
			t.Fatalf("expected updated_at to advance: %v -> %v", before.UpdatedAt, afterErrors.UpdatedAt)
		}

		if err := store.SetState(ctx, "n1", jobstore.StateError); err != nil {
			t.Fatalf("SetState failed: %v", err)
		}
		afterState, _ := store.Get(ctx, "n1")
		if afterState.State != jobstore.StateError {
			t.Fatalf("expected error state, got %s", afterState.State)
		}
		if len(afterState.Errors) != 4 {
			t.Fatalf("SetState touched errors: %+v", afterState.Errors)
		}
	})
}

func TestSetStateDoesNotCascade(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store jobstore.Store) {
		ctx := context.Background()
		nodes := []*jobstore.Node{
			{ID: "child", Type: "task", User: "u", ParentID: "parent"},
			{ID: "parent", Type: "batch_chain", User: "u", ChildIDs: []string{"child"}},
		}
		if err := store.InsertTree(ctx, nodes); err != nil {
			t.Fatalf("InsertTree failed: %v", err)
		}
		if err := store.SetState(ctx, "parent", jobstore.StateStarted); err != nil {
			t.Fatalf("SetState failed: %v", err)
		}
		child, _ := store.Get(ctx, "child")
		if child.State != jobstore.StateNew {
			t.Fatalf("expected child untouched, got %s", child.State)
		}
	})
}

func TestInsertTreeIsAtomic(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store jobstore.Store) {
		ctx := context.Background()
		if err := store.Insert(ctx, &jobstore.Node{ID: "existing", Type: "x", User: "bob"}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		nodes := []*jobstore.Node{
			{ID: "fresh-1", Type: "x", User: "bob"},
			{ID: "fresh-2", Type: "x", User: "bob"},
			{ID: "existing", Type: "x", User: "bob"},
		}
		err := store.InsertTree(ctx, nodes)
		if !errors.Is(err, jobstore.ErrDuplicateID) {
			t.Fatalf("expected ErrDuplicateID, got %v", err)
		}
		for _, id := range []string{"fresh-1", "fresh-2"} {
			if _, err := store.Get(ctx, id); !errors.Is(err, jobstore.ErrNotFound) {
				t.Fatalf("expected %s to be rolled back, got %v", id, err)
			}
		}
		listed, err := store.ListForUser(ctx, "bob")
		if err != nil {
			t.Fatalf("ListForUser failed: %v", err)
		}
		if len(listed) != 1 {
			t.Fatalf("expected only the pre-existing node, got %d", len(listed))
		}
	})
}

func TestInsertTreeRejectsDuplicateWithinTree(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store jobstore.Store) {
		ctx := context.Background()
		err := store.InsertTree(ctx, []*jobstore.Node{
			{ID: "same", Type: "x", User: "u"},
			{ID: "same", Type: "x", User: "u"},
		})
		if !errors.Is(err, jobstore.ErrDuplicateID) {
			t.Fatalf("expected ErrDuplicateID, got %v", err)
		}
		if _, err := store.Get(ctx, "same"); !errors.Is(err, jobstore.ErrNotFound) {
			t.Fatalf("expected nothing persisted, got %v", err)
		}
	})
}

func TestListForUserIsScopedAndOrdered(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store jobstore.Store) {
		ctx := context.Background()
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		nodes := []*jobstore.Node{
			{ID: "c", Type: "x", User: "alice", CreatedAt: base.Add(2 * time.Second)},
			{ID: "a", Type: "x", User: "alice", CreatedAt: base},
			{ID: "z", Type: "x", User: "carol", CreatedAt: base},
			{ID: "b2", Type: "x", User: "alice", CreatedAt: base.Add(time.Second)},
			{ID: "b1", Type: "x", User: "alice", CreatedAt: base.Add(time.Second)},
		}
		for _, node := range nodes {
			if err := store.Insert(ctx, node); err != nil {
				t.Fatalf("Insert %s failed: %v", node.ID, err)
			}
		}

		listed, err := store.ListForUser(ctx, "alice")
		if err != nil {
			t.Fatalf("ListForUser failed: %v", err)
		}
		var got []string
		for _, node := range listed {
			got = append(got, node.ID)
		}
		want := []string{"a", "b1", "b2", "c"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("ListForUser order = %v, want %v", got, want)
		}

		empty, err := store.ListForUser(ctx, "nobody")
		if err != nil {
			t.Fatalf("ListForUser failed: %v", err)
		}
		if len(empty) != 0 {
			t.Fatalf("expected no nodes, got %d", len(empty))
		}
	})
}

func TestChildrenFollowChildIDsOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store jobstore.Store) {
		ctx := context.Background()
		nodes := []*jobstore.Node{
			{ID: "t2", Type: "task", User: "u", ParentID: "root"},
			{ID: "t1", Type: "task", User: "u", ParentID: "root"},
			{ID: "t3", Type: "task", User: "u", ParentID: "root"},
			{ID: "root", Type: "batch_chain", User: "u", ChildIDs: []string{"t3", "t1", "t2"}},
		}
		if err := store.InsertTree(ctx, nodes); err != nil {
			t.Fatalf("InsertTree failed: %v", err)
		}
		children, err := store.Children(ctx, "root")
		if err != nil {
			t.Fatalf("Children failed: %v", err)
		}
		var got []string
		for _, child := range children {
			got = append(got, child.ID)
		}
		if fmt.Sprint(got) != "[t3 t1 t2]" {
			t.Fatalf("unexpected children order %v", got)
		}
		if _, err := store.Children(ctx, "missing"); !errors.Is(err, jobstore.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestConcurrentUpdatesOnDistinctNodes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store jobstore.Store) {
		ctx := context.Background()
		const count = 20
		for i := 0; i < count; i++ {
			if err := store.Insert(ctx, &jobstore.Node{ID: fmt.Sprintf("n-%02d", i), Type: "x", User: "u"}); err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
		}
		var wg sync.WaitGroup
		for i := 0; i < count; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("n-%02d", i)
				if err := store.AppendError(ctx, id, jobstore.NodeError{Source: "w", Message: id}); err != nil {
					t.Errorf("AppendError %s: %v", id, err)
				}
				if err := store.SetState(ctx, id, jobstore.StateError); err != nil {
					t.Errorf("SetState %s: %v", id, err)
				}
			}(i)
		}
		wg.Wait()
		for i := 0; i < count; i++ {
			id := fmt.Sprintf("n-%02d", i)
			node, err := store.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if node.State != jobstore.StateError || len(node.Errors) != 1 || node.Errors[0].Message != id {
				t.Fatalf("unexpected node %+v", node)
			}
		}
	})
}

func TestSetStateRejectsUnknownState(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store jobstore.Store) {
		ctx := context.Background()
		if err := store.Insert(ctx, &jobstore.Node{ID: "n", Type: "x", User: "u"}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := store.SetState(ctx, "n", jobstore.State("paused")); err == nil {
			t.Fatal("expected error for unknown state")
		}
	})
}
