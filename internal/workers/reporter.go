package workers

import (
	"context"
	"strings"

	"folio/internal/jobstore"
)

// Reporter records task outcomes on job nodes.
type Reporter struct {
	store jobstore.Store
}

// NewReporter returns a Reporter writing to store.
func NewReporter(store jobstore.Store) *Reporter {
	return &Reporter{store: store}
}

// Start marks the node started.
func (r *Reporter) Start(ctx context.Context, id string) error {
	return r.store.SetState(ctx, id, jobstore.StateStarted)
}

// Succeed marks the node successful.
func (r *Reporter) Succeed(ctx context.Context, id string) error {
	return r.store.SetState(ctx, id, jobstore.StateSuccess)
}

// Fail appends the failure to the node's error log, then marks it failed.
func (r *Reporter) Fail(ctx context.Context, id, source string, cause error) error {
	message := "task failed"
	if cause != nil {
		if text := strings.TrimSpace(cause.Error()); text != "" {
			message = text
		}
	}
	if err := r.store.AppendError(ctx, id, jobstore.NodeError{Source: source, Message: message}); err != nil {
		return err
	}
	return r.store.SetState(ctx, id, jobstore.StateError)
}
