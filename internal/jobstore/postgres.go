package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS job_nodes (
    id          TEXT PRIMARY KEY,
    type        TEXT NOT NULL,
    owner       TEXT NOT NULL,
    parent_id   TEXT,
    child_ids   JSONB NOT NULL DEFAULT '[]',
    parameters  JSONB,
    label       TEXT,
    description TEXT,
    state       TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    errors      JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_job_nodes_owner  ON job_nodes(owner, created_at, id);
CREATE INDEX IF NOT EXISTS idx_job_nodes_parent ON job_nodes(parent_id);
`

// PostgresStore implements Store using PostgreSQL via pgx.
type PostgresStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// OpenPostgres connects to dsn and creates the schema if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	ctx = ensureContext(ctx)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, unavailable("connect postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("ping postgres", err)
	}
	store := NewPostgres(pool)
	if err := store.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, now: time.Now}
}

// CreateSchema creates the job_nodes table if it doesn't exist.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, pgSchemaSQL); err != nil {
		return unavailable("create schema", err)
	}
	return nil
}

// DropSchema drops the job_nodes table.
func (s *PostgresStore) DropSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS job_nodes`); err != nil {
		return unavailable("drop schema", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.db.Close()
	return nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func pgInsertNode(ctx context.Context, exec pgExecer, node *Node) error {
	childIDs, err := json.Marshal(node.ChildIDs)
	if err != nil {
		return fmt.Errorf("encode child ids: %w", err)
	}
	nodeErrors, err := json.Marshal(node.Errors)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}
	var parameters any
	if len(node.Parameters) > 0 {
		parameters = string(node.Parameters)
	}
	_, err = exec.Exec(ctx,
		`INSERT INTO job_nodes (`+nodeColumns+`)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		node.ID,
		node.Type,
		node.User,
		nullableString(node.ParentID),
		string(childIDs),
		parameters,
		nullableString(node.Label),
		nullableString(node.Description),
		string(node.State),
		node.CreatedAt,
		node.UpdatedAt,
		string(nodeErrors),
	)
	if isPGUnique(err) {
		return duplicate(node.ID)
	}
	return err
}

func isPGUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Insert stores a single node.
func (s *PostgresStore) Insert(ctx context.Context, node *Node) error {
	ctx = ensureContext(ctx)
	if err := prepare(node, s.now()); err != nil {
		return err
	}
	return classify("insert node", pgInsertNode(ctx, s.db, node))
}

// InsertTree stores all nodes in one transaction.
func (s *PostgresStore) InsertTree(ctx context.Context, nodes []*Node) error {
	ctx = ensureContext(ctx)
	if err := prepareTree(nodes, s.now()); err != nil {
		return err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer tx.Rollback(ctx)

	for _, node := range nodes {
		if err := pgInsertNode(ctx, tx, node); err != nil {
			return classify("insert tree", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit tree", err)
	}
	return nil
}

// SetState overwrites the node's state and updated_at.
func (s *PostgresStore) SetState(ctx context.Context, id string, state State) error {
	if !state.Valid() {
		return fmt.Errorf("invalid state %q", state)
	}
	return s.update(ensureContext(ctx), "set state", id,
		`UPDATE job_nodes SET state = $1, updated_at = $2 WHERE id = $3`,
		string(state), s.now().UTC(), id,
	)
}

// AppendError appends entry to the node's error log in a single statement.
func (s *PostgresStore) AppendError(ctx context.Context, id string, entry NodeError) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode error entry: %w", err)
	}
	return s.update(ensureContext(ctx), "append error", id,
		`UPDATE job_nodes SET errors = errors || jsonb_build_array($1::jsonb), updated_at = $2 WHERE id = $3`,
		string(encoded), s.now().UTC(), id,
	)
}

func (s *PostgresStore) update(ctx context.Context, operation, id, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return classify(operation, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// Get fetches a node by identifier.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Node, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRow(ctx, `SELECT `+nodeColumns+` FROM job_nodes WHERE id = $1`, id)
	node, err := scanPGNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, classify("get node", err)
	}
	return node, nil
}

// ListForUser returns all nodes owned by user.
func (s *PostgresStore) ListForUser(ctx context.Context, user string) ([]*Node, error) {
	return s.query(ensureContext(ctx), "list nodes",
		`SELECT `+nodeColumns+` FROM job_nodes WHERE owner = $1 ORDER BY created_at, id`, user)
}

// Children returns the node's children in creation order.
func (s *PostgresStore) Children(ctx context.Context, id string) ([]*Node, error) {
	ctx = ensureContext(ctx)
	parent, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := s.query(ctx, "list children",
		`SELECT `+nodeColumns+` FROM job_nodes WHERE parent_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}
	return orderChildren(parent.ChildIDs, children), nil
}

func (s *PostgresStore) query(ctx context.Context, operation, query string, args ...any) ([]*Node, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable(operation, err)
	}
	defer rows.Close()

	nodes := []*Node{}
	for rows.Next() {
		node, err := scanPGNode(rows)
		if err != nil {
			return nil, unavailable(operation, err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(operation, err)
	}
	return nodes, nil
}

func scanPGNode(row pgx.Row) (*Node, error) {
	var (
		node        Node
		state       string
		parentID    *string
		label       *string
		description *string
		childIDs    []byte
		parameters  []byte
		nodeErrors  []byte
	)
	if err := row.Scan(
		&node.ID,
		&node.Type,
		&node.User,
		&parentID,
		&childIDs,
		&parameters,
		&label,
		&description,
		&state,
		&node.CreatedAt,
		&node.UpdatedAt,
		&nodeErrors,
	); err != nil {
		return nil, err
	}
	node.State = State(state)
	node.CreatedAt = node.CreatedAt.UTC()
	node.UpdatedAt = node.UpdatedAt.UTC()
	if parentID != nil {
		node.ParentID = *parentID
	}
	if label != nil {
		node.Label = *label
	}
	if description != nil {
		node.Description = *description
	}
	if len(parameters) > 0 {
		node.Parameters = json.RawMessage(parameters)
	}
	node.ChildIDs = []string{}
	if err := json.Unmarshal(childIDs, &node.ChildIDs); err != nil {
		return nil, fmt.Errorf("decode child ids for %s: %w", node.ID, err)
	}
	node.Errors = []NodeError{}
	if err := json.Unmarshal(nodeErrors, &node.Errors); err != nil {
		return nil, fmt.Errorf("decode errors for %s: %w", node.ID, err)
	}
	return &node, nil
}
