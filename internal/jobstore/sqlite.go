package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore manages job node persistence backed by SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite initializes or connects to the job database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	ctx = ensureContext(ctx)
	query := url.Values{}
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", "busy_timeout(5000)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragma journal_mode: %w", err)
	}

	store := &SQLiteStore{db: db, path: path, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertNode(ctx context.Context, exec sqlExecer, node *Node) error {
	childIDs, err := encodeJSON(node.ChildIDs)
	if err != nil {
		return fmt.Errorf("encode child ids: %w", err)
	}
	nodeErrors, err := encodeJSON(node.Errors)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}
	_, err = exec.ExecContext(
		ctx,
		`INSERT INTO job_nodes (`+nodeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ID,
		node.Type,
		node.User,
		nullableString(node.ParentID),
		childIDs,
		nullableString(string(node.Parameters)),
		nullableString(node.Label),
		nullableString(node.Description),
		string(node.State),
		formatTime(node.CreatedAt),
		formatTime(node.UpdatedAt),
		nodeErrors,
	)
	if isSQLiteUnique(err) {
		return duplicate(node.ID)
	}
	return err
}

// Insert stores a single node.
func (s *SQLiteStore) Insert(ctx context.Context, node *Node) error {
	ctx = ensureContext(ctx)
	if err := prepare(node, s.now()); err != nil {
		return err
	}
	err := retryOnBusy(ctx, func() error {
		return insertNode(ctx, s.db, node)
	})
	return classify("insert node", err)
}

// InsertTree stores all nodes in one transaction.
func (s *SQLiteStore) InsertTree(ctx context.Context, nodes []*Node) error {
	ctx = ensureContext(ctx)
	if err := prepareTree(nodes, s.now()); err != nil {
		return err
	}
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		for _, node := range nodes {
			if err := insertNode(ctx, tx, node); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	return classify("insert tree", err)
}

// SetState overwrites the node's state and updated_at.
func (s *SQLiteStore) SetState(ctx context.Context, id string, state State) error {
	ctx = ensureContext(ctx)
	if !state.Valid() {
		return fmt.Errorf("invalid state %q", state)
	}
	return s.update(ctx, "set state", id,
		`UPDATE job_nodes SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), formatTime(s.now()), id,
	)
}

// AppendError appends entry to the node's error log.
func (s *SQLiteStore) AppendError(ctx context.Context, id string, entry NodeError) error {
	ctx = ensureContext(ctx)
	encoded, err := encodeJSON(entry)
	if err != nil {
		return fmt.Errorf("encode error entry: %w", err)
	}
	return s.update(ctx, "append error", id,
		`UPDATE job_nodes SET errors = json_insert(errors, '$[#]', json(?)), updated_at = ? WHERE id = ?`,
		encoded, formatTime(s.now()), id,
	)
}

func (s *SQLiteStore) update(ctx context.Context, operation, id, query string, args ...any) error {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return classify(operation, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return unavailable(operation, err)
	}
	if affected == 0 {
		return notFound(id)
	}
	return nil
}

// Get fetches a node by identifier.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Node, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM job_nodes WHERE id = ?`, id)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, unavailable("get node", err)
	}
	return node, nil
}

// ListForUser returns all nodes owned by user.
func (s *SQLiteStore) ListForUser(ctx context.Context, user string) ([]*Node, error) {
	ctx = ensureContext(ctx)
	return s.query(ctx, "list nodes",
		`SELECT `+nodeColumns+` FROM job_nodes WHERE owner = ? ORDER BY created_at, id`, user)
}

// Children returns the node's children in creation order.
func (s *SQLiteStore) Children(ctx context.Context, id string) ([]*Node, error) {
	ctx = ensureContext(ctx)
	parent, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := s.query(ctx, "list children",
		`SELECT `+nodeColumns+` FROM job_nodes WHERE parent_id = ? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}
	return orderChildren(parent.ChildIDs, children), nil
}

func (s *SQLiteStore) query(ctx context.Context, operation, query string, args ...any) ([]*Node, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(operation, err)
	}
	defer rows.Close()

	nodes := []*Node{}
	for rows.Next() {
		node, err := scanNode(rows)
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

func classify(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateID), errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", operation, err)
	default:
		return unavailable(operation, err)
	}
}
