package store

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/agent-console/internal/domain"
)

// MemoryStore implements Repository with process-lifetime maps.
// Each entity map has its own lock so read-modify-write updates are atomic.
type MemoryStore struct {
	accountsMu    sync.RWMutex
	accounts      []*domain.Account
	nextAccountID int64

	sessionsMu    sync.RWMutex
	sessions      map[int64]*domain.Session // keyed by user id
	nextSessionID int64

	agentsMu    sync.RWMutex
	agents      map[int64]*domain.AgentRecord
	agentOrder  []int64
	nextAgentID int64

	now func() time.Time
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]*domain.Session),
		agents:   make(map[int64]*domain.AgentRecord),
		now:      time.Now,
	}
}

// CreateAccount stores a new account and assigns it the next id.
func (m *MemoryStore) CreateAccount(_ context.Context, username, password string) (*domain.Account, error) {
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()

	if m.findAccountLocked(username) != nil {
		return nil, ErrUsernameTaken
	}
	m.nextAccountID++
	acct := &domain.Account{ID: m.nextAccountID, Username: username, Password: password}
	m.accounts = append(m.accounts, acct)
	copied := *acct
	return &copied, nil
}

// FindOrCreateAccount looks up and inserts under one lock so concurrent first
// logins for a username yield a single account.
func (m *MemoryStore) FindOrCreateAccount(_ context.Context, username, password string) (*domain.Account, bool, error) {
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()

	if acct := m.findAccountLocked(username); acct != nil {
		copied := *acct
		return &copied, false, nil
	}

	m.nextAccountID++
	acct := &domain.Account{ID: m.nextAccountID, Username: username, Password: password}
	m.accounts = append(m.accounts, acct)
	copied := *acct
	return &copied, true, nil
}

// FindAccountByUsername returns the first account with the given username.
func (m *MemoryStore) FindAccountByUsername(_ context.Context, username string) (*domain.Account, error) {
	m.accountsMu.RLock()
	defer m.accountsMu.RUnlock()

	if acct := m.findAccountLocked(username); acct != nil {
		copied := *acct
		return &copied, nil
	}
	return nil, nil
}

func (m *MemoryStore) findAccountLocked(username string) *domain.Account {
	for _, acct := range m.accounts {
		if acct.Username == username {
			return acct
		}
	}
	return nil
}

// GetAccount returns the account with the given id.
func (m *MemoryStore) GetAccount(_ context.Context, id int64) (*domain.Account, error) {
	m.accountsMu.RLock()
	defer m.accountsMu.RUnlock()

	for _, acct := range m.accounts {
		if acct.ID == id {
			copied := *acct
			return &copied, nil
		}
	}
	return nil, nil
}

// CreateSession stores a session for userID, replacing any previous one.
func (m *MemoryStore) CreateSession(_ context.Context, userID int64, accessToken, refreshToken string, expiresAt time.Time) (*domain.Session, error) {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()

	m.nextSessionID++
	sess := &domain.Session{
		ID:           m.nextSessionID,
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		CreatedAt:    m.now(),
	}
	m.sessions[userID] = sess
	copied := *sess
	return &copied, nil
}

// GetSession returns the session stored for userID.
func (m *MemoryStore) GetSession(_ context.Context, userID int64) (*domain.Session, error) {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()

	sess, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	copied := *sess
	return &copied, nil
}

// FindSessionByToken returns the session holding the given access token.
func (m *MemoryStore) FindSessionByToken(_ context.Context, accessToken string) (*domain.Session, error) {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()

	for _, sess := range m.sessions {
		if sess.AccessToken == accessToken {
			copied := *sess
			return &copied, nil
		}
	}
	return nil, nil
}

// DeleteSession removes the session for userID.
func (m *MemoryStore) DeleteSession(_ context.Context, userID int64) error {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()

	delete(m.sessions, userID)
	return nil
}

// ListAgents returns all agents in insertion order.
func (m *MemoryStore) ListAgents(_ context.Context) ([]*domain.AgentRecord, error) {
	m.agentsMu.RLock()
	defer m.agentsMu.RUnlock()

	out := make([]*domain.AgentRecord, 0, len(m.agentOrder))
	for _, id := range m.agentOrder {
		copied := *m.agents[id]
		out = append(out, &copied)
	}
	return out, nil
}

// GetAgent returns the agent with the given id.
func (m *MemoryStore) GetAgent(_ context.Context, id int64) (*domain.AgentRecord, error) {
	m.agentsMu.RLock()
	defer m.agentsMu.RUnlock()

	rec, ok := m.agents[id]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

// CreateAgent stores a new agent, assigning its id and creation time.
func (m *MemoryStore) CreateAgent(_ context.Context, fields domain.AgentFields) (*domain.AgentRecord, error) {
	m.agentsMu.Lock()
	defer m.agentsMu.Unlock()

	m.nextAgentID++
	rec := &domain.AgentRecord{
		ID:           m.nextAgentID,
		Name:         fields.Name,
		Description:  fields.Description,
		FirstMessage: fields.FirstMessage,
		CreatedBy:    fields.CreatedBy,
		CreatedAt:    m.now(),
		ExternalID:   fields.ExternalID,
	}
	m.agents[rec.ID] = rec
	m.agentOrder = append(m.agentOrder, rec.ID)
	copied := *rec
	return &copied, nil
}

// UpdateAgent merges patch over the stored agent.
func (m *MemoryStore) UpdateAgent(_ context.Context, id int64, patch domain.AgentPatch) (*domain.AgentRecord, error) {
	m.agentsMu.Lock()
	defer m.agentsMu.Unlock()

	rec, ok := m.agents[id]
	if !ok {
		return nil, nil
	}
	patch.ApplyTo(rec)
	copied := *rec
	return &copied, nil
}

// DeleteAgent removes the agent with the given id.
func (m *MemoryStore) DeleteAgent(_ context.Context, id int64) error {
	m.agentsMu.Lock()
	defer m.agentsMu.Unlock()

	if _, ok := m.agents[id]; !ok {
		return nil
	}
	delete(m.agents, id)
	for i, existing := range m.agentOrder {
		if existing == id {
			m.agentOrder = append(m.agentOrder[:i], m.agentOrder[i+1:]...)
			break
		}
	}
	return nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
