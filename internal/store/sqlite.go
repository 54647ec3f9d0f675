package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/agent-console/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writes to avoid SQLITE_BUSY on read-modify-write
	now     func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		password TEXT NOT NULL
	);
	DROP INDEX IF EXISTS idx_accounts_username;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_username_unique ON accounts(username);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE REFERENCES accounts(id),
		access_token TEXT NOT NULL,
		refresh_token TEXT,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_access_token ON sessions(access_token);

	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		first_message TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		external_id TEXT
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateAccount stores a new account and assigns it the next id.
func (s *SQLiteStore) CreateAccount(ctx context.Context, username, password string) (*domain.Account, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var id int64
	err := withBusyRetry(ctx, "create account", func() error {
		res, err := s.db.ExecContext(ctx, `INSERT INTO accounts (username, password) VALUES (?, ?)`, username, password)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if isUniqueViolation(err) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return &domain.Account{ID: id, Username: username, Password: password}, nil
}

// FindOrCreateAccount inserts the account unless the username exists, then
// reads back whichever row holds it.
func (s *SQLiteStore) FindOrCreateAccount(ctx context.Context, username, password string) (*domain.Account, bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var inserted int64
	err := withBusyRetry(ctx, "find or create account", func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO accounts (username, password) VALUES (?, ?)
			ON CONFLICT(username) DO NOTHING`, username, password)
		if err != nil {
			return err
		}
		inserted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("insert account: %w", err)
	}

	acct, err := s.FindAccountByUsername(ctx, username)
	if err != nil {
		return nil, false, err
	}
	if acct == nil {
		return nil, false, fmt.Errorf("account %q missing after insert", username)
	}
	return acct, inserted > 0, nil
}

// FindAccountByUsername returns the first account with the given username.
func (s *SQLiteStore) FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password FROM accounts WHERE username = ? ORDER BY id LIMIT 1`, username)
	return scanAccount(row)
}

// GetAccount returns the account with the given id.
func (s *SQLiteStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var acct domain.Account
	err := row.Scan(&acct.ID, &acct.Username, &acct.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan account row: %w", err)
	}
	return &acct, nil
}

// CreateSession replaces any session for userID with a new one.
// The replacement gets a fresh id.
func (s *SQLiteStore) CreateSession(ctx context.Context, userID int64, accessToken, refreshToken string, expiresAt time.Time) (*domain.Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sess := &domain.Session{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		CreatedAt:    s.now(),
	}

	var refresh interface{}
	if refreshToken != "" {
		refresh = refreshToken
	}

	err := withBusyRetry(ctx, "create session", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (user_id, access_token, refresh_token, expires_at, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			userID, accessToken, refresh, expiresAt.UnixMilli(), sess.CreatedAt.UnixMilli())
		if err != nil {
			return err
		}
		if sess.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	return sess, nil
}

// GetSession returns the session stored for userID.
func (s *SQLiteStore) GetSession(ctx context.Context, userID int64) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, access_token, refresh_token, expires_at, created_at
		FROM sessions WHERE user_id = ?`, userID)
	return scanSession(row)
}

// FindSessionByToken returns the session holding the given access token.
func (s *SQLiteStore) FindSessionByToken(ctx context.Context, accessToken string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, access_token, refresh_token, expires_at, created_at
		FROM sessions WHERE access_token = ? LIMIT 1`, accessToken)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	var sess domain.Session
	var refresh sql.NullString
	var expiresAt, createdAt int64

	err := row.Scan(&sess.ID, &sess.UserID, &sess.AccessToken, &refresh, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	sess.RefreshToken = refresh.String
	sess.ExpiresAt = time.UnixMilli(expiresAt)
	sess.CreatedAt = time.UnixMilli(createdAt)
	return &sess, nil
}

// DeleteSession removes the session for userID.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := withBusyRetry(ctx, "delete session", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

const agentColumns = `id, name, description, first_message, created_by, created_at, external_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*domain.AgentRecord, error) {
	var rec domain.AgentRecord
	var createdAt int64
	var externalID sql.NullString

	if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.FirstMessage,
		&rec.CreatedBy, &createdAt, &externalID); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.ExternalID = externalID.String
	return &rec, nil
}

// ListAgents returns all agents in insertion order.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*domain.AgentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close agent rows", "error", closeErr)
		}
	}()

	agents := make([]*domain.AgentRecord, 0)
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// GetAgent returns the agent with the given id.
func (s *SQLiteStore) GetAgent(ctx context.Context, id int64) (*domain.AgentRecord, error) {
	return s.getAgent(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getAgent(ctx context.Context, q queryRower, id int64) (*domain.AgentRecord, error) {
	rec, err := scanAgent(q.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}
	return rec, nil
}

// CreateAgent stores a new agent, assigning its id and creation time.
func (s *SQLiteStore) CreateAgent(ctx context.Context, fields domain.AgentFields) (*domain.AgentRecord, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec := &domain.AgentRecord{
		Name:         fields.Name,
		Description:  fields.Description,
		FirstMessage: fields.FirstMessage,
		CreatedBy:    fields.CreatedBy,
		CreatedAt:    s.now(),
		ExternalID:   fields.ExternalID,
	}

	err := withBusyRetry(ctx, "create agent", func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO agents (name, description, first_message, created_by, created_at, external_id)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.Name, rec.Description, rec.FirstMessage, rec.CreatedBy,
			rec.CreatedAt.UnixMilli(), nullableString(rec.ExternalID))
		if err != nil {
			return err
		}
		rec.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}
	return rec, nil
}

// UpdateAgent merges patch over the stored agent inside one transaction.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, id int64, patch domain.AgentPatch) (*domain.AgentRecord, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var updated *domain.AgentRecord
	err := withBusyRetry(ctx, "update agent", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		rec, err := s.getAgent(ctx, tx, id)
		if err != nil || rec == nil {
			updated = nil
			return err
		}
		patch.ApplyTo(rec)

		if _, err := tx.ExecContext(ctx, `
			UPDATE agents SET name = ?, description = ?, first_message = ?, created_by = ?, external_id = ?
			WHERE id = ?`,
			rec.Name, rec.Description, rec.FirstMessage, rec.CreatedBy, nullableString(rec.ExternalID), id); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update agent: %w", err)
	}
	return updated, nil
}

// DeleteAgent removes the agent with the given id.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := withBusyRetry(ctx, "delete agent", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isBusyError reports whether err is a SQLite lock conflict worth retrying.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs fn, retrying with exponential backoff while SQLite reports lock conflicts.
func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if !isBusyError(err) || i == maxRetries-1 {
			return err
		}
		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
