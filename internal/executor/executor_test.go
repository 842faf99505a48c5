package executor_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"folio/internal/batch"
	"folio/internal/executor"
	"folio/internal/ids"
	"folio/internal/jobstore"
	"folio/internal/logging"
	"folio/internal/pipeline"
	"folio/internal/services"
	"folio/internal/workers"
)

type harness struct {
	store    *jobstore.MemoryStore
	exec     *executor.Executor
	orch     *batch.Orchestrator
	finishes atomic.Int32
}

// newHarness wires an executor whose workers all call work; finish_batch runs
// the real finalizer.
func newHarness(t *testing.T, maxParallel int, work func(ctx context.Context, inv workers.Invocation) error) *harness {
	t.Helper()
	h := &harness{store: jobstore.NewMemory()}
	finalizer := batch.NewFinalizer(h.store, logging.NewNop())

	reg := workers.NewRegistry()
	for _, name := range pipeline.Capabilities() {
		w := workers.WorkerFunc(work)
		if name == pipeline.FinishBatchTask {
			w = func(ctx context.Context, inv workers.Invocation) error {
				h.finishes.Add(1)
				_, err := finalizer.Finalize(ctx, inv.JobID())
				return err
			}
		}
		if err := reg.Register(name, w); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	runner := workers.NewRunner(reg, workers.NewReporter(h.store), logging.NewNop())
	h.exec = executor.New(runner, h.store, maxParallel, logging.NewNop())
	orch, err := batch.NewOrchestrator(h.store, ids.NewSequence("job"), pipeline.NewCompiler(pipeline.Settings{}), h.exec, logging.NewNop())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	h.orch = orch
	t.Cleanup(func() {
		_ = h.exec.Stop(context.Background())
	})
	return h
}

func request(targets ...string) pipeline.Request {
	req := pipeline.Request{}
	for _, id := range targets {
		req.Targets = append(req.Targets, pipeline.Target{ID: id, Path: "scans/" + id, Metadata: json.RawMessage(`{"title":"` + id + `"}`)})
	}
	return req
}

func (h *harness) state(t *testing.T, id string) jobstore.State {
	t.Helper()
	node, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get %s: %v", id, err)
	}
	return node.State
}

func TestExecutorRunsBatchToSuccess(t *testing.T) {
	h := newHarness(t, 4, func(context.Context, workers.Invocation) error { return nil })

	handle, err := h.orch.Start(context.Background(), pipeline.JobArchivalMaterial, request("a", "b", "c"), "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.exec.Wait()

	if got := h.state(t, handle.ID); got != jobstore.StateSuccess {
		t.Fatalf("batch state = %s", got)
	}
	for _, chain := range handle.Batch.Chains {
		if got := h.state(t, chain.ID); got != jobstore.StateSuccess {
			t.Fatalf("chain state = %s", got)
		}
		for _, task := range chain.Tasks {
			if got := h.state(t, task.ExecutionID); got != jobstore.StateSuccess {
				t.Fatalf("task %s state = %s", task.Name, got)
			}
		}
	}
	if h.finishes.Load() != 1 {
		t.Fatalf("completion ran %d times", h.finishes.Load())
	}
	if h.exec.Active() != 0 {
		t.Fatalf("expected no active batches")
	}
}

func TestExecutorTasksRunInChainOrder(t *testing.T) {
	var mu sync.Mutex
	seen := map[string][]string{}
	h := newHarness(t, 2, func(_ context.Context, inv workers.Invocation) error {
		mu.Lock()
		defer mu.Unlock()
		seen[inv.WorkPath()] = append(seen[inv.WorkPath()], inv.ExecutionID)
		return nil
	})

	handle, err := h.orch.Start(context.Background(), pipeline.JobArchivalMaterial, request("a", "b"), "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.exec.Wait()

	for _, chain := range handle.Batch.Chains {
		got := seen[chain.ID]
		if len(got) != len(chain.Tasks) {
			t.Fatalf("chain %s ran %d of %d tasks", chain.ID, len(got), len(chain.Tasks))
		}
		for i, task := range chain.Tasks {
			if got[i] != task.ExecutionID {
				t.Fatalf("task %d out of order", i)
			}
		}
	}
}

func TestExecutorFailureAbortsOnlyThatChain(t *testing.T) {
	var failingChain atomic.Value
	failingChain.Store("")
	h := newHarness(t, 4, func(_ context.Context, inv workers.Invocation) error {
		if inv.Name == "convert.merge_converted_pdf" && inv.WorkPath() == failingChain.Load().(string) {
			return errors.New("merge exploded")
		}
		return nil
	})

	handle, err := h.orch.CreateBatch(context.Background(), pipeline.JobArchivalMaterial, request("a", "b", "c"), "alice")
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	failingChain.Store(handle.ChainIDs[1])
	if err := h.orch.Run(context.Background(), handle); err != nil {
		t.Fatalf("Run: %v", err)
	}
	h.exec.Wait()

	if got := h.state(t, handle.ID); got != jobstore.StateError {
		t.Fatalf("batch state = %s, want error", got)
	}
	for idx, chain := range handle.Batch.Chains {
		want := jobstore.StateSuccess
		if idx == 1 {
			want = jobstore.StateError
		}
		if got := h.state(t, chain.ID); got != want {
			t.Fatalf("chain %d state = %s, want %s", idx, got, want)
		}
	}

	failed := handle.Batch.Chains[1]
	reached := false
	for _, task := range failed.Tasks {
		got := h.state(t, task.ExecutionID)
		switch {
		case task.Name == "convert.merge_converted_pdf":
			reached = true
			if got != jobstore.StateError {
				t.Fatalf("failing task state = %s", got)
			}
		case reached:
			if got != jobstore.StateNew {
				t.Fatalf("task %s after failure state = %s, want new", task.Name, got)
			}
		default:
			if got != jobstore.StateSuccess {
				t.Fatalf("task %s before failure state = %s", task.Name, got)
			}
		}
	}
	chain, _ := h.store.Get(context.Background(), failed.ID)
	if len(chain.Errors) == 0 || chain.Errors[0].Source != "convert.merge_converted_pdf" {
		t.Fatalf("unexpected chain errors %+v", chain.Errors)
	}
}

func TestExecutorBoundsParallelChains(t *testing.T) {
	var current, peak atomic.Int32
	h := newHarness(t, 2, func(_ context.Context, inv workers.Invocation) error {
		if inv.Name != "create_object" {
			return nil
		}
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return nil
	})

	targets := make([]string, 6)
	for i := range targets {
		targets[i] = fmt.Sprintf("t%d", i)
	}
	handle, err := h.orch.Start(context.Background(), pipeline.JobArchivalMaterial, request(targets...), "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.exec.Wait()

	if peak.Load() > 2 {
		t.Fatalf("peak parallel chains = %d, limit 2", peak.Load())
	}
	if got := h.state(t, handle.ID); got != jobstore.StateSuccess {
		t.Fatalf("batch state = %s", got)
	}
}

func TestExecutorStopFinalizesInterruptedBatch(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 8)
	h := newHarness(t, 4, func(ctx context.Context, inv workers.Invocation) error {
		if inv.Name != "create_object" {
			return nil
		}
		entered <- struct{}{}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
			return nil
		}
	})
	defer close(release)

	handle, err := h.orch.Start(context.Background(), pipeline.JobArchivalMaterial, request("a"), "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-entered

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.exec.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := h.state(t, handle.ID); got != jobstore.StateError {
		t.Fatalf("batch state = %s, want error", got)
	}
	if got := h.state(t, handle.ChainIDs[0]); got != jobstore.StateError {
		t.Fatalf("chain state = %s, want error", got)
	}

	_, err = h.orch.Start(context.Background(), pipeline.JobArchivalMaterial, request("b"), "alice")
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable after stop, got %v", err)
	}
}
