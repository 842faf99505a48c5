package jobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"folio/internal/services"
)

// State is the lifecycle state of a job node.
type State string

const (
	StateNew     State = "new"
	StateStarted State = "started"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Terminal reports whether the state is success or error.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateError
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateNew, StateStarted, StateSuccess, StateError:
		return true
	}
	return false
}

// ParseState converts user input into a State.
func ParseState(value string) (State, bool) {
	state := State(strings.ToLower(strings.TrimSpace(value)))
	return state, state.Valid()
}

// NodeError is one entry of a node's append-only error log.
type NodeError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// Node is a persisted job tree node.
type Node struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	User        string          `json:"user"`
	ParentID    string          `json:"parent_id,omitempty"`
	ChildIDs    []string        `json:"child_ids"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Label       string          `json:"label,omitempty"`
	Description string          `json:"description,omitempty"`
	State       State           `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Errors      []NodeError     `json:"errors"`
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	clone := *n
	clone.ChildIDs = append([]string{}, n.ChildIDs...)
	clone.Errors = append([]NodeError{}, n.Errors...)
	if n.Parameters != nil {
		clone.Parameters = append(json.RawMessage(nil), n.Parameters...)
	}
	return &clone
}

var (
	// ErrDuplicateID reports an insert whose identifier already exists.
	ErrDuplicateID = errors.New("duplicate job id")
	// ErrNotFound reports a lookup or update of an unknown identifier.
	ErrNotFound = fmt.Errorf("job %w", services.ErrNotFound)
	// ErrStoreUnavailable reports a persistence layer failure.
	ErrStoreUnavailable = fmt.Errorf("job store %w", services.ErrUnavailable)
)

func unavailable(operation string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, operation, err)
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func duplicate(id string) error {
	return fmt.Errorf("%w: %s", ErrDuplicateID, id)
}

// prepare fills defaults on a node about to be inserted.
func prepare(node *Node, now time.Time) error {
	if node == nil {
		return errors.New("node is nil")
	}
	if strings.TrimSpace(node.ID) == "" {
		return errors.New("node id is required")
	}
	if node.State == "" {
		node.State = StateNew
	}
	if !node.State.Valid() {
		return fmt.Errorf("node %s: invalid state %q", node.ID, node.State)
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.CreatedAt = node.CreatedAt.UTC()
	node.UpdatedAt = node.CreatedAt
	if node.ChildIDs == nil {
		node.ChildIDs = []string{}
	}
	if node.Errors == nil {
		node.Errors = []NodeError{}
	}
	return nil
}

// prepareTree validates a tree insert before any backend touches storage.
func prepareTree(nodes []*Node, now time.Time) error {
	seen := make(map[string]struct{}, len(nodes))
	for _, node := range nodes {
		if err := prepare(node, now); err != nil {
			return err
		}
		if _, ok := seen[node.ID]; ok {
			return duplicate(node.ID)
		}
		seen[node.ID] = struct{}{}
	}
	return nil
}

// orderChildren sorts fetched children to match the parent's ChildIDs order.
// Nodes absent from childIDs are appended in their fetched order.
func orderChildren(childIDs []string, fetched []*Node) []*Node {
	position := make(map[string]int, len(childIDs))
	for i, id := range childIDs {
		position[id] = i
	}
	ordered := make([]*Node, len(childIDs))
	var extra []*Node
	for _, node := range fetched {
		if idx, ok := position[node.ID]; ok {
			ordered[idx] = node
			continue
		}
		extra = append(extra, node)
	}
	out := ordered[:0]
	for _, node := range ordered {
		if node != nil {
			out = append(out, node)
		}
	}
	return append(out, extra...)
}
