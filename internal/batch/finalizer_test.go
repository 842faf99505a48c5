package batch_test

import (
	"context"
	"sync"
	"testing"

	"folio/internal/batch"
	"folio/internal/ids"
	"folio/internal/jobstore"
	"folio/internal/logging"
	"folio/internal/notifications"
	"folio/internal/pipeline"
)

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []notifications.BatchSummary
}

func (r *recordingNotifier) NotifyBatchFinished(_ context.Context, summary notifications.BatchSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, summary)
	return nil
}

func (r *recordingNotifier) NotifyError(context.Context, error, string) error { return nil }
func (r *recordingNotifier) TestNotification(context.Context) error           { return nil }

func startedBatch(t *testing.T, store jobstore.Store, targets ...string) *batch.Handle {
	t.Helper()
	orch := newOrchestrator(t, store, ids.NewSequence("job"), &recordingSubmitter{})
	handle, err := orch.Start(context.Background(), pipeline.JobArchivalMaterial, archivalRequest(targets...), "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return handle
}

func completeChain(t *testing.T, store jobstore.Store, chain batch.Chain, state jobstore.State) {
	t.Helper()
	for _, task := range chain.Tasks {
		if err := store.SetState(context.Background(), task.ExecutionID, state); err != nil {
			t.Fatalf("SetState: %v", err)
		}
	}
}

func TestFinalizeAllChainsSucceeded(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	handle := startedBatch(t, store, "a", "b")
	for _, chain := range handle.Batch.Chains {
		completeChain(t, store, chain, jobstore.StateSuccess)
	}

	state, err := batch.NewFinalizer(store, logging.NewNop()).Finalize(ctx, handle.ID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if state != jobstore.StateSuccess {
		t.Fatalf("state = %s, want success", state)
	}
	for _, chainID := range handle.ChainIDs {
		chain, _ := store.Get(ctx, chainID)
		if chain.State != jobstore.StateSuccess {
			t.Fatalf("chain %s state = %s", chainID, chain.State)
		}
	}
}

func TestFinalizeFailedAndIncompleteChains(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	handle := startedBatch(t, store, "a", "b", "c")

	completeChain(t, store, handle.Batch.Chains[0], jobstore.StateSuccess)
	if err := store.SetState(ctx, handle.Batch.Chains[1].Tasks[2].ExecutionID, jobstore.StateError); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	// chain c never ran

	state, err := batch.NewFinalizer(store, logging.NewNop()).Finalize(ctx, handle.ID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if state != jobstore.StateError {
		t.Fatalf("state = %s, want error", state)
	}

	want := []jobstore.State{jobstore.StateSuccess, jobstore.StateError, jobstore.StateError}
	for idx, chainID := range handle.ChainIDs {
		chain, _ := store.Get(ctx, chainID)
		if chain.State != want[idx] {
			t.Fatalf("chain %d state = %s, want %s", idx, chain.State, want[idx])
		}
	}
	incomplete, _ := store.Get(ctx, handle.ChainIDs[2])
	if len(incomplete.Errors) != 1 || incomplete.Errors[0].Source != pipeline.FinishBatchTask {
		t.Fatalf("expected incomplete chain error, got %+v", incomplete.Errors)
	}
	root, _ := store.Get(ctx, handle.ID)
	if len(root.Errors) != 1 || root.Errors[0].Message != "2 of 3 chains failed" {
		t.Fatalf("unexpected root errors %+v", root.Errors)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	handle := startedBatch(t, store, "a")
	if err := store.SetState(ctx, handle.ChainIDs[0], jobstore.StateError); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	finalizer := batch.NewFinalizer(store, logging.NewNop())
	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := finalizer.Finalize(ctx, handle.ID)
			if err != nil {
				t.Errorf("Finalize: %v", err)
				return
			}
			if state != jobstore.StateError {
				t.Errorf("state = %s, want error", state)
			}
		}()
	}
	wg.Wait()

	root, _ := store.Get(ctx, handle.ID)
	if len(root.Errors) != 1 {
		t.Fatalf("expected a single batch error after repeated finalize, got %d", len(root.Errors))
	}
}

func TestFinalizeNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	handle := startedBatch(t, store, "a", "b")
	completeChain(t, store, handle.Batch.Chains[0], jobstore.StateSuccess)
	if err := store.SetState(ctx, handle.ChainIDs[1], jobstore.StateError); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	notifier := &recordingNotifier{}
	finalizer := batch.NewFinalizer(store, logging.NewNop()).WithNotifier(notifier)
	for range 2 {
		if _, err := finalizer.Finalize(ctx, handle.ID); err != nil {
			t.Fatalf("Finalize: %v", err)
		}
	}

	if len(notifier.summaries) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.summaries))
	}
	got := notifier.summaries[0]
	if got.BatchID != handle.ID || got.JobType != pipeline.JobArchivalMaterial || got.User != "alice" {
		t.Fatalf("unexpected summary %+v", got)
	}
	if got.State != string(jobstore.StateError) || got.Chains != 2 || got.Failed != 1 {
		t.Fatalf("unexpected outcome %+v", got)
	}
}
