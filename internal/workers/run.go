package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"folio/internal/logging"
	"folio/internal/services"
)

// Runner executes invocations against a registry and records their outcome.
type Runner struct {
	registry *Registry
	reporter *Reporter
	logger   *slog.Logger
}

// NewRunner wires a Runner.
func NewRunner(registry *Registry, reporter *Reporter, logger *slog.Logger) *Runner {
	return &Runner{
		registry: registry,
		reporter: reporter,
		logger:   logging.NewComponentLogger(logger, "worker"),
	}
}

// Run executes a task invocation. The task node is marked started before the
// worker runs and success or error afterwards. The returned error is tagged
// services.ErrTask unless it already carries a classification.
func (r *Runner) Run(ctx context.Context, inv Invocation) error {
	ctx = services.WithJobID(services.WithCapability(ctx, inv.Name), inv.ExecutionID)
	logger := logging.WithContext(ctx, r.logger)

	worker, ok := r.registry.Lookup(inv.Name)
	if !ok {
		err := services.Wrap(services.ErrTask, "worker", inv.Name, "no worker registered for capability", nil)
		return r.handleFailure(ctx, logger, inv, err)
	}

	if err := r.reporter.Start(ctx, inv.ExecutionID); err != nil {
		return fmt.Errorf("persist task start: %w", err)
	}
	logger.Info("task started",
		logging.Event("task_start"),
		logging.String("work_path", inv.WorkPath()),
	)

	started := time.Now()
	if err := worker.Run(ctx, inv); err != nil {
		if !errors.Is(err, services.ErrTask) && !errors.Is(err, context.Canceled) {
			err = services.Wrap(services.ErrTask, "worker", inv.Name, "", err)
		}
		return r.handleFailure(ctx, logger, inv, err)
	}

	if err := r.reporter.Succeed(ctx, inv.ExecutionID); err != nil {
		return fmt.Errorf("persist task result: %w", err)
	}
	logger.Info("task completed",
		logging.Event("task_complete"),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// Complete runs a completion invocation. Completion workers own the state of
// the node they finalize, so no lifecycle is recorded here.
func (r *Runner) Complete(ctx context.Context, inv Invocation) error {
	ctx = services.WithBatchID(services.WithCapability(ctx, inv.Name), inv.ExecutionID)
	logger := logging.WithContext(ctx, r.logger)

	worker, ok := r.registry.Lookup(inv.Name)
	if !ok {
		return services.Wrap(services.ErrTask, "worker", inv.Name, "no worker registered for capability", nil)
	}
	if err := worker.Run(ctx, inv); err != nil {
		logging.ErrorWithContext(logger, "completion task failed", "completion_failure", logging.Error(err))
		return err
	}
	return nil
}

func (r *Runner) handleFailure(ctx context.Context, logger *slog.Logger, inv Invocation, taskErr error) error {
	logger.Error("task failed",
		logging.Event("task_failure"),
		logging.String("failure_kind", services.FailureKind(taskErr)),
		logging.Error(taskErr),
	)
	// The node is updated even when ctx was cancelled so shutdown leaves no
	// task stuck in started.
	persistCtx := context.WithoutCancel(ctx)
	if err := r.reporter.Fail(persistCtx, inv.ExecutionID, inv.Name, taskErr); err != nil {
		logger.Error("failed to persist task failure", logging.Error(err))
	}
	return taskErr
}
