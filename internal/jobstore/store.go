package jobstore

import (
	"context"
	"fmt"

	"folio/internal/config"
)

// Store persists job nodes.
//
// SetState and AppendError are independent: neither touches the other's
// field and neither cascades to parents or children.
type Store interface {
	Insert(ctx context.Context, node *Node) error
	// InsertTree inserts every node or none of them.
	InsertTree(ctx context.Context, nodes []*Node) error
	SetState(ctx context.Context, id string, state State) error
	AppendError(ctx context.Context, id string, entry NodeError) error
	Get(ctx context.Context, id string) (*Node, error)
	// ListForUser returns the user's nodes ordered by creation time then id.
	ListForUser(ctx context.Context, user string) ([]*Node, error)
	// Children returns the node's children in ChildIDs order.
	Children(ctx context.Context, id string) ([]*Node, error)
	Close() error
}

// Open constructs the backend selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(ctx, cfg.StorePath())
	case "postgres":
		return OpenPostgres(ctx, cfg.Store.DSN)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
