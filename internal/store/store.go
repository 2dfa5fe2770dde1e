package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a task or agent state does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a guarded status transition finds the
	// task no longer in the expected state, usually because another
	// coordinator got there first.
	ErrConflict = errors.New("status conflict")
)

// Store is the single source of truth for tasks and agent state. Every
// status change goes through the transition operations here; no caller
// writes status directly.
type Store interface {
	// Task records
	SaveTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, taskID string) (*Task, error)
	ListTasks(ctx context.Context) ([]*Task, error)
	ListByStatus(ctx context.Context, status TaskStatus) ([]*Task, error)
	ListAssigned(ctx context.Context, agentID string, status TaskStatus) ([]*Task, error)

	// State machine entry points (atomic with respect to other callers)
	Transition(ctx context.Context, taskID string, from, to TaskStatus) error
	Claim(ctx context.Context, taskID, agentID string) error
	CompleteTask(ctx context.Context, taskID string, artifacts []string, actualHours float64) error
	FailTask(ctx context.Context, taskID, reason string) error
	BlockTask(ctx context.Context, taskID, reason string) error
	ResetTask(ctx context.Context, taskID string, from TaskStatus, bumpRetry bool) error

	// Agent state
	SaveAgentState(ctx context.Context, state *AgentState) error
	GetAgentState(ctx context.Context, agentID string) (*AgentState, error)
	GetOrCreateAgentState(ctx context.Context, agentID string) (*AgentState, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed store at the
// given path. Enables WAL mode and a busy timeout so concurrent
// coordinators queue on the write lock instead of erroring.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewMemoryStore creates an in-memory store for testing. Uses a shared
// cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	// A single connection keeps the shared-cache in-memory DB alive and
	// serializes writers the same way the on-disk WAL store does.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a BEGIN IMMEDIATE transaction so read-modify-write
// sequences are atomic with respect to other coordinators.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
