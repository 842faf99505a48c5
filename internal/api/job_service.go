package api

import (
	"context"

	"folio/internal/jobstore"
)

// JobReader abstracts the store queries needed by the API.
type JobReader interface {
	Get(ctx context.Context, id string) (*jobstore.Node, error)
	ListForUser(ctx context.Context, user string) ([]*jobstore.Node, error)
	Children(ctx context.Context, id string) ([]*jobstore.Node, error)
}

// JobService exposes read-only job tree operations returning API DTOs.
type JobService struct {
	store JobReader
}

// NewJobService constructs a JobService around the provided reader.
func NewJobService(store JobReader) *JobService {
	return &JobService{store: store}
}

// List returns the user's batch roots, or every node when all is set, in
// creation order.
func (s *JobService) List(ctx context.Context, user string, all bool) ([]JobNode, error) {
	nodes, err := s.store.ListForUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if !all {
		roots := nodes[:0]
		for _, node := range nodes {
			if node.ParentID == "" {
				roots = append(roots, node)
			}
		}
		nodes = roots
	}
	return FromNodes(nodes), nil
}

// Describe fetches a node with its children.
func (s *JobService) Describe(ctx context.Context, id string) (*JobDetailResponse, error) {
	node, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := s.store.Children(ctx, id)
	if err != nil {
		return nil, err
	}
	counts := StateCounts{}
	for _, child := range children {
		counts[string(child.State)]++
	}
	return &JobDetailResponse{
		Job:      FromNode(node),
		Children: FromNodes(children),
		Counts:   counts,
	}, nil
}
