// Package store provides the local record store for accounts, sessions and agents.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/agent-console/internal/domain"
)

// ErrUsernameTaken is returned by CreateAccount for a username already in use.
var ErrUsernameTaken = errors.New("username already taken")

// Repository is the local record store. Lookups that find nothing return a nil
// record and a nil error. Identifiers are never reused within a store's lifetime.
type Repository interface {
	// CreateAccount stores a new account and assigns it the next id.
	// ErrUsernameTaken is returned when the username already exists.
	CreateAccount(ctx context.Context, username, password string) (*domain.Account, error)

	// FindOrCreateAccount returns the account with the given username, creating
	// it atomically when absent. created reports whether a new account was stored.
	FindOrCreateAccount(ctx context.Context, username, password string) (acct *domain.Account, created bool, err error)

	// FindAccountByUsername returns the first account with the given username.
	FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error)

	// GetAccount returns the account with the given id.
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)

	// CreateSession stores a session for userID, replacing any previous one.
	CreateSession(ctx context.Context, userID int64, accessToken, refreshToken string, expiresAt time.Time) (*domain.Session, error)

	// GetSession returns the session stored for userID.
	GetSession(ctx context.Context, userID int64) (*domain.Session, error)

	// FindSessionByToken returns the session holding the given access token.
	FindSessionByToken(ctx context.Context, accessToken string) (*domain.Session, error)

	// DeleteSession removes the session for userID. Missing sessions are not an error.
	DeleteSession(ctx context.Context, userID int64) error

	// ListAgents returns all agents in insertion order.
	ListAgents(ctx context.Context) ([]*domain.AgentRecord, error)

	// GetAgent returns the agent with the given id.
	GetAgent(ctx context.Context, id int64) (*domain.AgentRecord, error)

	// CreateAgent stores a new agent, assigning its id and creation time.
	CreateAgent(ctx context.Context, fields domain.AgentFields) (*domain.AgentRecord, error)

	// UpdateAgent merges patch over the stored agent and returns the result.
	// A nil record is returned when no agent has the given id.
	UpdateAgent(ctx context.Context, id int64, patch domain.AgentPatch) (*domain.AgentRecord, error)

	// DeleteAgent removes the agent with the given id. Missing agents are not an error.
	DeleteAgent(ctx context.Context, id int64) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// New returns a SQLite-backed repository when dbPath is set and an in-memory
// repository otherwise.
func New(dbPath string) (Repository, error) {
	if dbPath == "" {
		return NewMemory(), nil
	}
	s, err := NewSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}
