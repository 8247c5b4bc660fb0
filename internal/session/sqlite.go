package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/promptd/internal/prompterr"
)

// SQLiteStore is a durable Store backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, prompterr.Unavailable("open session database", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, prompterr.Unavailable("enable WAL mode", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			chain_id TEXT NOT NULL,
			current_step INTEGER NOT NULL,
			total_steps INTEGER NOT NULL,
			status TEXT NOT NULL,
			retry_state TEXT NOT NULL,
			pending_review TEXT,
			created_at TIMESTAMP NOT NULL,
			last_activity_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_chain ON sessions(chain_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return prompterr.Unavailable("initialize session schema", err)
		}
	}
	return nil
}

// Get retrieves a session by id.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chain_id, current_step, total_steps, status, retry_state, pending_review, created_at, last_activity_at
		 FROM sessions WHERE id = ?`, sessionID)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, prompterr.NotFound("session", sessionID)
	}
	if err != nil {
		return nil, prompterr.Unavailable("get session", err)
	}
	return sess, nil
}

// Put persists a session.
func (s *SQLiteStore) Put(ctx context.Context, sess *Session) error {
	retryState, err := json.Marshal(sess.RetryState)
	if err != nil {
		return prompterr.Internal("marshal retry state", err)
	}

	var pendingReview sql.NullString
	if sess.PendingReview != nil {
		b, err := json.Marshal(sess.PendingReview)
		if err != nil {
			return prompterr.Internal("marshal pending review", err)
		}
		pendingReview = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, chain_id, current_step, total_steps, status, retry_state, pending_review, created_at, last_activity_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			chain_id = excluded.chain_id,
			current_step = excluded.current_step,
			total_steps = excluded.total_steps,
			status = excluded.status,
			retry_state = excluded.retry_state,
			pending_review = excluded.pending_review,
			last_activity_at = excluded.last_activity_at`,
		sess.ID, sess.ChainID, sess.CurrentStep, sess.TotalSteps, string(sess.Status),
		string(retryState), pendingReview, sess.CreatedAt, sess.LastActivityAt)
	if err != nil {
		return prompterr.Unavailable("put session", err)
	}
	return nil
}

// FindActiveByChain returns the most recently active session for chainID.
func (s *SQLiteStore) FindActiveByChain(ctx context.Context, chainID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chain_id, current_step, total_steps, status, retry_state, pending_review, created_at, last_activity_at
		 FROM sessions WHERE chain_id = ? AND status = ?
		 ORDER BY last_activity_at DESC LIMIT 1`, chainID, string(StatusActive))

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, prompterr.Unavailable("find session by chain", err)
	}
	return sess, nil
}

// Delete removes a session.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return prompterr.Unavailable("delete session", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var status, retryState string
	var pendingReview sql.NullString
	var createdAt, lastActivityAt time.Time

	err := row.Scan(&sess.ID, &sess.ChainID, &sess.CurrentStep, &sess.TotalSteps,
		&status, &retryState, &pendingReview, &createdAt, &lastActivityAt)
	if err != nil {
		return nil, err
	}

	sess.Status = Status(status)
	sess.CreatedAt = createdAt
	sess.LastActivityAt = lastActivityAt

	if err := json.Unmarshal([]byte(retryState), &sess.RetryState); err != nil {
		return nil, fmt.Errorf("unmarshal retry state: %w", err)
	}
	if pendingReview.Valid {
		var review PendingGateReview
		if err := json.Unmarshal([]byte(pendingReview.String), &review); err != nil {
			return nil, fmt.Errorf("unmarshal pending review: %w", err)
		}
		sess.PendingReview = &review
	}
	return &sess, nil
}
