package batch

import (
	"context"

	"folio/internal/pipeline"
)

// ChainType is the structural type recorded on chain nodes.
const ChainType = "batch_chain"

const chainDescription = "Group containing all the individual steps for a single batch."

// Injected task parameter names.
const (
	ParamJobID       = "job_id"
	ParamWorkPath    = "work_path"
	ParamParentJobID = "parent_job_id"
)

// Invocation is one unit of work handed to the execution substrate.
type Invocation struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
	// ExecutionID correlates the invocation with its job node.
	ExecutionID string `json:"execution_id"`
}

// JobID returns the injected job_id parameter.
func (inv Invocation) JobID() string {
	id, _ := inv.Params[ParamJobID].(string)
	return id
}

// WorkPath returns the injected work_path parameter.
func (inv Invocation) WorkPath() string {
	path, _ := inv.Params[ParamWorkPath].(string)
	return path
}

// Chain is an ordered sequence of invocations sharing one work path.
type Chain struct {
	ID    string       `json:"id"`
	Tasks []Invocation `json:"tasks"`
}

// Batch is the executable form of a batch: its chains plus the completion
// invocation that runs after every chain is terminal.
type Batch struct {
	ID         string     `json:"id"`
	JobType    string     `json:"job_type"`
	User       string     `json:"user"`
	Chains     []Chain    `json:"chains"`
	OnComplete Invocation `json:"on_complete"`
}

// Submitter is the execution substrate boundary. Submit must return once the
// batch is accepted; execution proceeds asynchronously.
type Submitter interface {
	Submit(ctx context.Context, b Batch) error
}

// Compiler produces chains for a job type.
type Compiler interface {
	Compile(jobType string, req pipeline.Request, user string) (pipeline.Compiled, error)
}

// Handle identifies a created batch.
type Handle struct {
	ID       string   `json:"id"`
	JobType  string   `json:"job_type"`
	User     string   `json:"user"`
	ChainIDs []string `json:"chain_ids"`
	Batch    Batch    `json:"-"`
}
