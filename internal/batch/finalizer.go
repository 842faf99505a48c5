package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"folio/internal/jobstore"
	"folio/internal/logging"
	"folio/internal/notifications"
	"folio/internal/pipeline"
	"folio/internal/services"
)

// chainIncompleteMessage is recorded on chains whose tasks were still pending
// when the batch finished.
const chainIncompleteMessage = "chain did not complete"

// Finalizer records the terminal state of a batch once all of its chains
// have finished. Finalize is idempotent and serialized per batch.
type Finalizer struct {
	store    jobstore.Store
	logger   *slog.Logger
	notifier notifications.Service

	mu    sync.Mutex
	locks map[string]*batchLock
}

type batchLock struct {
	mu   sync.Mutex
	refs int
}

// NewFinalizer constructs a Finalizer over store.
func NewFinalizer(store jobstore.Store, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		store:  store,
		logger: logging.NewComponentLogger(logger, "finalizer"),
		locks:  make(map[string]*batchLock),
	}
}

// WithNotifier sets the service alerted when a batch reaches a terminal state.
func (f *Finalizer) WithNotifier(svc notifications.Service) *Finalizer {
	f.notifier = svc
	return f
}

// Finalize derives each chain's terminal state from its tasks, then the
// batch state from its chains. A chain is successful when every task
// succeeded; any failed or unfinished task makes it an error. The batch is
// successful only when every chain is. Roots already terminal are returned
// unchanged.
func (f *Finalizer) Finalize(ctx context.Context, batchID string) (jobstore.State, error) {
	unlock := f.lock(batchID)
	defer unlock()

	ctx = services.WithBatchID(ctx, batchID)
	logger := logging.WithContext(ctx, f.logger)

	root, err := f.store.Get(ctx, batchID)
	if err != nil {
		return "", fmt.Errorf("load batch %s: %w", batchID, err)
	}
	if root.State.Terminal() {
		logger.Debug("batch already finalized", logging.String("state", string(root.State)))
		return root.State, nil
	}

	chains, err := f.store.Children(ctx, batchID)
	if err != nil {
		return "", fmt.Errorf("load chains of %s: %w", batchID, err)
	}

	failed := 0
	for _, chain := range chains {
		state, err := f.settleChain(ctx, chain)
		if err != nil {
			return "", err
		}
		if state == jobstore.StateError {
			failed++
		}
	}

	final := jobstore.StateSuccess
	if failed > 0 {
		final = jobstore.StateError
		entry := jobstore.NodeError{
			Source:  pipeline.FinishBatchTask,
			Message: fmt.Sprintf("%d of %d chains failed", failed, len(chains)),
		}
		if err := f.store.AppendError(ctx, batchID, entry); err != nil {
			return "", fmt.Errorf("record batch failure: %w", err)
		}
	}
	if err := f.store.SetState(ctx, batchID, final); err != nil {
		return "", fmt.Errorf("finalize batch %s: %w", batchID, err)
	}

	logger.Info("batch finished",
		logging.Event("batch_complete"),
		logging.String("state", string(final)),
		logging.Count("chains", len(chains)),
		logging.Count("failed_chains", failed),
	)
	f.notify(ctx, root, final, len(chains), failed)
	return final, nil
}

func (f *Finalizer) notify(ctx context.Context, root *jobstore.Node, final jobstore.State, chains, failed int) {
	if f.notifier == nil {
		return
	}
	summary := notifications.BatchSummary{
		BatchID: root.ID,
		JobType: root.Type,
		User:    root.User,
		State:   string(final),
		Chains:  chains,
		Failed:  failed,
	}
	if err := f.notifier.NotifyBatchFinished(ctx, summary); err != nil {
		logging.WithContext(ctx, f.logger).Warn("batch notification failed",
			logging.Event("notification_failed"),
			logging.Error(err),
		)
	}
}

func (f *Finalizer) settleChain(ctx context.Context, chain *jobstore.Node) (jobstore.State, error) {
	if chain.State.Terminal() {
		return chain.State, nil
	}
	tasks, err := f.store.Children(ctx, chain.ID)
	if err != nil {
		return "", fmt.Errorf("load tasks of %s: %w", chain.ID, err)
	}

	state := jobstore.StateSuccess
	incomplete := false
	for _, task := range tasks {
		switch task.State {
		case jobstore.StateSuccess:
		case jobstore.StateError:
			state = jobstore.StateError
		default:
			state = jobstore.StateError
			incomplete = true
		}
	}
	if incomplete {
		entry := jobstore.NodeError{Source: pipeline.FinishBatchTask, Message: chainIncompleteMessage}
		if err := f.store.AppendError(ctx, chain.ID, entry); err != nil {
			return "", fmt.Errorf("record incomplete chain %s: %w", chain.ID, err)
		}
	}
	if err := f.store.SetState(ctx, chain.ID, state); err != nil {
		return "", fmt.Errorf("settle chain %s: %w", chain.ID, err)
	}
	return state, nil
}

func (f *Finalizer) lock(batchID string) func() {
	f.mu.Lock()
	entry, ok := f.locks[batchID]
	if !ok {
		entry = &batchLock{}
		f.locks[batchID] = entry
	}
	entry.refs++
	f.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		f.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(f.locks, batchID)
		}
		f.mu.Unlock()
	}
}
