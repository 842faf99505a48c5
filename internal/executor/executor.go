package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"folio/internal/batch"
	"folio/internal/jobstore"
	"folio/internal/logging"
	"folio/internal/services"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = fmt.Errorf("executor %w", services.ErrUnavailable)

// TaskRunner executes one invocation and records its outcome.
type TaskRunner interface {
	Run(ctx context.Context, inv batch.Invocation) error
	Complete(ctx context.Context, inv batch.Invocation) error
}

// Executor runs submitted batches inside the current process.
type Executor struct {
	runner TaskRunner
	store  jobstore.Store
	logger *slog.Logger
	slots  *semaphore.Weighted

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
	active  map[string]struct{}
}

// New constructs an Executor allowing maxParallelChains chains to run at once
// across all batches.
func New(runner TaskRunner, store jobstore.Store, maxParallelChains int, logger *slog.Logger) *Executor {
	if maxParallelChains <= 0 {
		maxParallelChains = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		runner: runner,
		store:  store,
		logger: logging.NewComponentLogger(logger, "executor"),
		slots:  semaphore.NewWeighted(int64(maxParallelChains)),
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]struct{}),
	}
}

// Submit accepts the batch and returns immediately. The batch runs on the
// executor's own lifetime, not the caller's context.
func (e *Executor) Submit(ctx context.Context, b batch.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if _, running := e.active[b.ID]; running {
		return fmt.Errorf("batch %s already submitted", b.ID)
	}
	e.active[b.ID] = struct{}{}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.finish(b.ID)
		e.runBatch(services.WithBatchID(e.ctx, b.ID), b)
	}()
	return nil
}

// Active reports the number of batches still running.
func (e *Executor) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Wait blocks until every submitted batch has completed.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Stop rejects new submissions, cancels running chains, and waits for batches
// to finalize or ctx to expire.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor stop: %w", ctx.Err())
	}
}

func (e *Executor) finish(batchID string) {
	e.mu.Lock()
	delete(e.active, batchID)
	e.mu.Unlock()
}

func (e *Executor) runBatch(ctx context.Context, b batch.Batch) {
	logger := logging.WithContext(ctx, e.logger)
	started := time.Now()
	logger.Info("batch started",
		logging.Event("batch_start"),
		logging.Count("chains", len(b.Chains)),
	)

	var g errgroup.Group
	for _, chain := range b.Chains {
		g.Go(func() error {
			e.runChain(ctx, chain)
			return nil
		})
	}
	_ = g.Wait()

	// Completion runs even when the executor is stopping so every batch
	// reaches a terminal state.
	if err := e.runner.Complete(context.WithoutCancel(ctx), b.OnComplete); err != nil {
		logging.ErrorWithContext(logger, "batch completion failed", "batch_complete_failed",
			logging.String(logging.FieldErrorHint, "inspect the batch with folio jobs show"),
			logging.Error(err),
		)
		return
	}
	logger.Info("batch chains settled",
		logging.Event("batch_settled"),
		logging.Duration("elapsed", time.Since(started)),
	)
}

// runChain executes the chain's tasks in order. The first failure marks the
// chain failed and skips the remaining tasks; other chains are unaffected.
func (e *Executor) runChain(ctx context.Context, chain batch.Chain) {
	ctx = services.WithJobID(ctx, chain.ID)
	logger := logging.WithContext(ctx, e.logger)

	if err := e.slots.Acquire(ctx, 1); err != nil {
		logger.Warn("chain not started", logging.Error(err))
		return
	}
	defer e.slots.Release(1)

	for idx, task := range chain.Tasks {
		if err := ctx.Err(); err != nil {
			logging.WarnWithContext(logger, "chain interrupted", "chain_interrupted",
				logging.Int("completed_tasks", idx),
				logging.String(logging.FieldImpact, "remaining tasks were not run"),
				logging.Error(err),
			)
			return
		}
		if err := e.runner.Run(ctx, task); err != nil {
			e.failChain(logger, chain, task, idx, err)
			return
		}
	}

	if err := e.store.SetState(context.WithoutCancel(ctx), chain.ID, jobstore.StateSuccess); err != nil {
		logger.Error("failed to persist chain result", logging.Error(err))
	}
}

func (e *Executor) failChain(logger *slog.Logger, chain batch.Chain, task batch.Invocation, idx int, cause error) {
	ctx := context.Background()
	if errors.Is(cause, context.Canceled) {
		logging.WarnWithContext(logger, "chain interrupted", "chain_interrupted",
			logging.String("task", task.Name),
			logging.String(logging.FieldImpact, "remaining tasks were not run"),
		)
		return
	}
	logger.Warn("chain failed",
		logging.Event("chain_failure"),
		logging.String("task", task.Name),
		logging.Int("task_index", idx),
		logging.Int("skipped_tasks", len(chain.Tasks)-idx-1),
	)
	entry := jobstore.NodeError{Source: task.Name, Message: cause.Error()}
	if err := e.store.AppendError(ctx, chain.ID, entry); err != nil {
		logger.Error("failed to record chain failure", logging.Error(err))
	}
	if err := e.store.SetState(ctx, chain.ID, jobstore.StateError); err != nil {
		logger.Error("failed to persist chain failure", logging.Error(err))
	}
}
