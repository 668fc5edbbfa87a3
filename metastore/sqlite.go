package metastore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/workflow"
)

const cacheSize = 64

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	label TEXT NOT NULL,
	definition TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL,
	jobs INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	workflow BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_created_at ON executions(created_at);
`

// SQLiteStore persists executions in a SQLite database. Workflows are
// stored as msgpack blobs and the recently used ones are cached.
type SQLiteStore struct {
	db    *sql.DB
	cache *lru.Cache[string, []byte]
	log   *logger.Logger
}

// NewSQLiteStore opens or creates the database at path. ":memory:" opens
// a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	// writes are serialized by sqlite; one connection also keeps
	// ":memory:" databases shared
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.DatabaseError(err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.DatabaseError(err).WithDetail("operation", "init schema")
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		_ = db.Close()
		return nil, errors.Internal(err)
	}
	log := logger.WithComponent("metastore")
	log.Debug("sqlite metastore opened", logger.Fields("path", path))
	return &SQLiteStore{db: db, cache: cache, log: log}, nil
}

func (s *SQLiteStore) SaveExecution(ctx context.Context, wf *workflow.Workflow) error {
	data, err := encode(wf)
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, label, definition, status, error, jobs, created_at, updated_at, workflow)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label, definition = excluded.definition,
			status = excluded.status, error = excluded.error, jobs = excluded.jobs,
			updated_at = excluded.updated_at, workflow = excluded.workflow`,
		wf.ExecutionID, wf.Label, wf.Definition, string(wf.Status), wf.Error, len(wf.Jobs),
		wf.CreatedAt.UnixNano(), now.UnixNano(), data)
	if err != nil {
		return errors.DatabaseError(err)
	}
	s.cache.Add(wf.ExecutionID, data)
	return nil
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, executionID string, job *workflow.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.DatabaseError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var data []byte
	err = tx.QueryRowContext(ctx, `SELECT workflow FROM executions WHERE id = ?`, executionID).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound("execution", executionID)
	}
	if err != nil {
		return errors.DatabaseError(err)
	}
	wf, err := decode(data)
	if err != nil {
		return err
	}
	if err := replaceJob(wf, job); err != nil {
		return err
	}
	if data, err = encode(wf); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE executions SET workflow = ?, updated_at = ? WHERE id = ?`,
		data, time.Now().UnixNano(), executionID); err != nil {
		return errors.DatabaseError(err)
	}
	if err := tx.Commit(); err != nil {
		return errors.DatabaseError(err)
	}
	s.cache.Add(executionID, data)
	return nil
}

func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*workflow.Workflow, error) {
	if data, ok := s.cache.Get(id); ok {
		return decode(data)
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT workflow FROM executions WHERE id = ?`, id).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("execution", id)
	}
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	s.cache.Add(id, data)
	return decode(data)
}

func (s *SQLiteStore) ListExecutions(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, definition, status, error, jobs, created_at, updated_at
		FROM executions ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var status string
		var created, updated int64
		if err := rows.Scan(&sum.ID, &sum.Label, &sum.Definition, &status, &sum.Error, &sum.Jobs, &created, &updated); err != nil {
			return nil, errors.DatabaseError(err)
		}
		sum.Status = workflow.Status(status)
		sum.CreatedAt = time.Unix(0, created)
		sum.UpdatedAt = time.Unix(0, updated)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError(err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteExecution(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	if err != nil {
		return errors.DatabaseError(err)
	}
	s.cache.Remove(id)
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("execution", id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.cache.Purge()
	return s.db.Close()
}
