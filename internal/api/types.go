package api

import (
	"encoding/json"
	"time"

	"folio/internal/jobstore"
	"folio/internal/preflight"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// UserHeader carries the submitting user.
const UserHeader = "X-User"

// JobNode describes a job node in a transport-friendly format.
type JobNode struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	User        string          `json:"user"`
	ParentID    string          `json:"parentId,omitempty"`
	ChildIDs    []string        `json:"childIds"`
	Label       string          `json:"label,omitempty"`
	Description string          `json:"description,omitempty"`
	State       string          `json:"state"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Errors      []JobError      `json:"errors"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	UpdatedAt   string          `json:"updatedAt,omitempty"`
}

// JobError is one entry of a node's error log.
type JobError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// StateCounts tallies node states.
type StateCounts map[string]int

// JobListResponse wraps a collection of nodes.
type JobListResponse struct {
	Jobs []JobNode `json:"jobs"`
}

// JobDetailResponse is one node, its children, and their state tally.
type JobDetailResponse struct {
	Job      JobNode     `json:"job"`
	Children []JobNode   `json:"children"`
	Counts   StateCounts `json:"counts"`
}

// SubmitResponse identifies a created batch.
type SubmitResponse struct {
	BatchID  string   `json:"batchId"`
	JobType  string   `json:"jobType"`
	User     string   `json:"user"`
	ChainIDs []string `json:"chainIds"`
}

// JobType describes a registered recipe.
type JobType struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// JobTypesResponse lists registered recipes.
type JobTypesResponse struct {
	Types []JobType `json:"types"`
}

// HealthResponse aggregates daemon readiness.
type HealthResponse struct {
	Healthy       bool               `json:"healthy"`
	ActiveBatches int                `json:"activeBatches"`
	Checks        []preflight.Result `json:"checks"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// FromNode converts a store node to its transport form.
func FromNode(node *jobstore.Node) JobNode {
	if node == nil {
		return JobNode{}
	}
	view := JobNode{
		ID:          node.ID,
		Type:        node.Type,
		User:        node.User,
		ParentID:    node.ParentID,
		ChildIDs:    append([]string{}, node.ChildIDs...),
		Label:       node.Label,
		Description: node.Description,
		State:       string(node.State),
		Parameters:  node.Parameters,
		Errors:      make([]JobError, 0, len(node.Errors)),
		CreatedAt:   formatTime(node.CreatedAt),
		UpdatedAt:   formatTime(node.UpdatedAt),
	}
	for _, e := range node.Errors {
		view.Errors = append(view.Errors, JobError{Source: e.Source, Message: e.Message})
	}
	return view
}

// FromNodes converts a slice of store nodes.
func FromNodes(nodes []*jobstore.Node) []JobNode {
	views := make([]JobNode, 0, len(nodes))
	for _, node := range nodes {
		views = append(views, FromNode(node))
	}
	return views
}

// ParseTime parses an API timestamp, returning the zero time on failure.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
