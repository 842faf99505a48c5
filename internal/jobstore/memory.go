package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
)

const memoryTreeDegree = 16

type memoryEntry struct {
	node *Node
}

func byIDLess(a, b *memoryEntry) bool {
	return a.node.ID < b.node.ID
}

func byUserLess(a, b *memoryEntry) bool {
	if a.node.User != b.node.User {
		return a.node.User < b.node.User
	}
	if !a.node.CreatedAt.Equal(b.node.CreatedAt) {
		return a.node.CreatedAt.Before(b.node.CreatedAt)
	}
	return a.node.ID < b.node.ID
}

// MemoryStore keeps nodes in two ordered B-tree indexes, one by id and one by
// (user, created_at, id). Index keys are immutable after insert so entries are
// shared between both trees and mutated in place under the lock.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   *btree.BTreeG[*memoryEntry]
	byUser *btree.BTreeG[*memoryEntry]
	closed bool
	now    func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID:   btree.NewG(memoryTreeDegree, byIDLess),
		byUser: btree.NewG(memoryTreeDegree, byUserLess),
		now:    time.Now,
	}
}

func idKey(id string) *memoryEntry {
	return &memoryEntry{node: &Node{ID: id}}
}

func (s *MemoryStore) checkOpen(operation string) error {
	if s.closed {
		return unavailable(operation, fmt.Errorf("store closed"))
	}
	return nil
}

// Insert stores a single node.
func (s *MemoryStore) Insert(ctx context.Context, node *Node) error {
	return s.InsertTree(ctx, []*Node{node})
}

// InsertTree validates every node before storing any of them.
func (s *MemoryStore) InsertTree(_ context.Context, nodes []*Node) error {
	if err := prepareTree(nodes, s.now()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("insert tree"); err != nil {
		return err
	}
	for _, node := range nodes {
		if s.byID.Has(idKey(node.ID)) {
			return duplicate(node.ID)
		}
	}
	for _, node := range nodes {
		entry := &memoryEntry{node: node.Clone()}
		s.byID.ReplaceOrInsert(entry)
		s.byUser.ReplaceOrInsert(entry)
	}
	return nil
}

func (s *MemoryStore) mutate(operation, id string, fn func(*Node)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(operation); err != nil {
		return err
	}
	entry, ok := s.byID.Get(idKey(id))
	if !ok {
		return notFound(id)
	}
	fn(entry.node)
	entry.node.UpdatedAt = s.now().UTC()
	return nil
}

// SetState overwrites the node's state and updated_at.
func (s *MemoryStore) SetState(_ context.Context, id string, state State) error {
	if !state.Valid() {
		return fmt.Errorf("invalid state %q", state)
	}
	return s.mutate("set state", id, func(node *Node) {
		node.State = state
	})
}

// AppendError appends entry to the node's error log.
func (s *MemoryStore) AppendError(_ context.Context, id string, entry NodeError) error {
	return s.mutate("append error", id, func(node *Node) {
		node.Errors = append(node.Errors, entry)
	})
}

// Get fetches a copy of the node.
func (s *MemoryStore) Get(_ context.Context, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("get node"); err != nil {
		return nil, err
	}
	entry, ok := s.byID.Get(idKey(id))
	if !ok {
		return nil, notFound(id)
	}
	return entry.node.Clone(), nil
}

// ListForUser returns copies of the user's nodes.
func (s *MemoryStore) ListForUser(_ context.Context, user string) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("list nodes"); err != nil {
		return nil, err
	}
	nodes := []*Node{}
	pivot := &memoryEntry{node: &Node{User: user}}
	s.byUser.AscendGreaterOrEqual(pivot, func(entry *memoryEntry) bool {
		if entry.node.User != user {
			return false
		}
		nodes = append(nodes, entry.node.Clone())
		return true
	})
	return nodes, nil
}

// Children returns copies of the node's children in ChildIDs order.
func (s *MemoryStore) Children(_ context.Context, id string) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("list children"); err != nil {
		return nil, err
	}
	parent, ok := s.byID.Get(idKey(id))
	if !ok {
		return nil, notFound(id)
	}
	children := make([]*Node, 0, len(parent.node.ChildIDs))
	for _, childID := range parent.node.ChildIDs {
		if entry, ok := s.byID.Get(idKey(childID)); ok && entry.node.ParentID == id {
			children = append(children, entry.node.Clone())
		}
	}
	return children, nil
}

// Len reports the number of stored nodes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID.Len()
}

// Close marks the store unavailable. Subsequent calls fail with ErrStoreUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
