package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"folio/internal/ids"
	"folio/internal/jobstore"
	"folio/internal/logging"
	"folio/internal/pipeline"
	"folio/internal/services"
)

// Orchestrator creates and starts batches.
type Orchestrator struct {
	store     jobstore.Store
	ids       ids.Generator
	compiler  Compiler
	submitter Submitter
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator wires an Orchestrator. All collaborators are required.
func NewOrchestrator(store jobstore.Store, gen ids.Generator, compiler Compiler, submitter Submitter, logger *slog.Logger) (*Orchestrator, error) {
	if store == nil || gen == nil || compiler == nil || submitter == nil {
		return nil, errors.New("orchestrator requires store, id generator, compiler, and submitter")
	}
	return &Orchestrator{
		store:     store,
		ids:       gen,
		compiler:  compiler,
		submitter: submitter,
		logger:    logging.NewComponentLogger(logger, "batch"),
		now:       time.Now,
	}, nil
}

// Start creates the batch and runs it.
func (o *Orchestrator) Start(ctx context.Context, jobType string, req pipeline.Request, user string) (*Handle, error) {
	handle, err := o.CreateBatch(ctx, jobType, req, user)
	if err != nil {
		return nil, err
	}
	if err := o.Run(ctx, handle); err != nil {
		return handle, err
	}
	return handle, nil
}

// CreateBatch compiles the request, allocates identifiers, and persists the
// complete job tree. Nothing is persisted when compilation fails, and the tree
// is inserted atomically.
func (o *Orchestrator) CreateBatch(ctx context.Context, jobType string, req pipeline.Request, user string) (*Handle, error) {
	if user == "" {
		return nil, services.Wrap(services.ErrValidation, "batch", "create", "user is required", nil)
	}
	compiled, err := o.compiler.Compile(jobType, req, user)
	if err != nil {
		return nil, err
	}

	rootID, err := o.ids.New()
	if err != nil {
		return nil, fmt.Errorf("allocate batch id: %w", err)
	}
	rootParams, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	created := o.now().UTC()
	handle := &Handle{
		ID:      rootID,
		JobType: compiled.JobType,
		User:    user,
		Batch: Batch{
			ID:      rootID,
			JobType: compiled.JobType,
			User:    user,
			OnComplete: Invocation{
				Name:        pipeline.FinishBatchTask,
				Params:      map[string]any{ParamJobID: rootID, ParamWorkPath: rootID},
				ExecutionID: rootID,
			},
		},
	}

	var nodes []*jobstore.Node
	for idx, compiledChain := range compiled.Chains {
		chainID, err := o.ids.New()
		if err != nil {
			return nil, fmt.Errorf("allocate chain id: %w", err)
		}

		chain := Chain{ID: chainID}
		taskIDs := make([]string, 0, len(compiledChain))
		for _, task := range compiledChain {
			taskID, err := o.ids.New()
			if err != nil {
				return nil, fmt.Errorf("allocate task id: %w", err)
			}
			params := make(map[string]any, len(task.Params)+3)
			maps.Copy(params, task.Params)
			params[ParamJobID] = taskID
			params[ParamWorkPath] = chainID
			params[ParamParentJobID] = chainID

			encoded, err := json.Marshal(params)
			if err != nil {
				return nil, fmt.Errorf("encode %s parameters: %w", task.Name, err)
			}
			label, description := pipeline.DescribeTask(task)
			nodes = append(nodes, &jobstore.Node{
				ID:          taskID,
				Type:        task.Name,
				User:        user,
				ParentID:    chainID,
				Parameters:  encoded,
				Label:       label,
				Description: description,
				State:       jobstore.StateNew,
				CreatedAt:   created,
			})
			chain.Tasks = append(chain.Tasks, Invocation{Name: task.Name, Params: params, ExecutionID: taskID})
			taskIDs = append(taskIDs, taskID)
		}

		nodes = append(nodes, &jobstore.Node{
			ID:          chainID,
			Type:        ChainType,
			User:        user,
			ParentID:    rootID,
			ChildIDs:    taskIDs,
			Parameters:  compiled.ChainParameters[idx],
			Label:       compiled.ChainLabels[idx],
			Description: chainDescription,
			State:       jobstore.StateNew,
			CreatedAt:   created,
		})
		handle.ChainIDs = append(handle.ChainIDs, chainID)
		handle.Batch.Chains = append(handle.Batch.Chains, chain)
	}

	nodes = append(nodes, &jobstore.Node{
		ID:          rootID,
		Type:        compiled.JobType,
		User:        user,
		ChildIDs:    append([]string{}, handle.ChainIDs...),
		Parameters:  rootParams,
		Label:       compiled.Label,
		Description: compiled.Description,
		State:       jobstore.StateNew,
		CreatedAt:   created,
	})

	if err := o.store.InsertTree(ctx, nodes); err != nil {
		return nil, fmt.Errorf("persist batch %s: %w", rootID, err)
	}

	o.logger.Info("batch created",
		logging.Event("batch_created"),
		logging.String(logging.FieldBatchID, rootID),
		logging.String("job_type", compiled.JobType),
		logging.String("user", user),
		logging.Count("chains", len(handle.ChainIDs)),
		logging.Int("nodes", len(nodes)),
	)
	return handle, nil
}

// Run marks the batch root and every chain node started, then submits the
// batch. Task nodes are left for the workers. A rejected submission marks
// the root and chains as failed.
func (o *Orchestrator) Run(ctx context.Context, handle *Handle) error {
	if handle == nil {
		return errors.New("batch handle is nil")
	}
	ctx = services.WithBatchID(ctx, handle.ID)
	logger := logging.WithContext(ctx, o.logger)

	if err := o.store.SetState(ctx, handle.ID, jobstore.StateStarted); err != nil {
		return fmt.Errorf("start batch %s: %w", handle.ID, err)
	}
	for _, chainID := range handle.ChainIDs {
		if err := o.store.SetState(ctx, chainID, jobstore.StateStarted); err != nil {
			return fmt.Errorf("start chain %s: %w", chainID, err)
		}
	}

	if err := o.submitter.Submit(ctx, handle.Batch); err != nil {
		logging.ErrorWithContext(logger, "batch submission failed", "batch_submit_failed",
			logging.String(logging.FieldErrorHint, "check the executor and job store"),
			logging.Error(err),
		)
		o.failSubmission(ctx, logger, handle, err)
		return fmt.Errorf("submit batch %s: %w", handle.ID, err)
	}

	logger.Info("batch submitted",
		logging.Event("batch_submitted"),
		logging.Count("chains", len(handle.ChainIDs)),
	)
	return nil
}

func (o *Orchestrator) failSubmission(ctx context.Context, logger *slog.Logger, handle *Handle, cause error) {
	entry := jobstore.NodeError{Source: "submit", Message: cause.Error()}
	nodeIDs := append([]string{handle.ID}, handle.ChainIDs...)
	for _, id := range nodeIDs {
		if err := o.store.AppendError(ctx, id, entry); err != nil {
			logger.Warn("record submission error failed", logging.String(logging.FieldJobID, id), logging.Error(err))
		}
		if err := o.store.SetState(ctx, id, jobstore.StateError); err != nil {
			logger.Warn("mark node failed", logging.String(logging.FieldJobID, id), logging.Error(err))
		}
	}
}
