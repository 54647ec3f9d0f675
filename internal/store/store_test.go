package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/agent-console/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forEachStore runs fn against a fresh instance of every Repository implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, repo Repository)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		repo, err := NewSQLite(filepath.Join(t.TempDir(), "console.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		fn(t, repo)
	})
}

func strPtr(s string) *string { return &s }

func sampleFields(name string) domain.AgentFields {
	return domain.AgentFields{
		Name:         name,
		Description:  name + " description",
		FirstMessage: "Hi from " + name,
		CreatedBy:    "alice",
	}
}

func TestAccountsGetMonotonicIDs(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		a, err := repo.CreateAccount(ctx, "alice", "pw1")
		require.NoError(t, err)
		b, err := repo.CreateAccount(ctx, "bob", "pw2")
		require.NoError(t, err)
		assert.Greater(t, b.ID, a.ID)

		found, err := repo.FindAccountByUsername(ctx, "bob")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, b.ID, found.ID)
		assert.Equal(t, "pw2", found.Password)

		missing, err := repo.FindAccountByUsername(ctx, "carol")
		require.NoError(t, err)
		assert.Nil(t, missing)

		byID, err := repo.GetAccount(ctx, a.ID)
		require.NoError(t, err)
		require.NotNil(t, byID)
		assert.Equal(t, "alice", byID.Username)
	})
}

func TestCreateSessionReplacesPreviousSessionForUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		acct, err := repo.CreateAccount(ctx, "alice", "pw")
		require.NoError(t, err)

		expires := time.Now().Add(domain.SessionLifetime)
		first, err := repo.CreateSession(ctx, acct.ID, "token-1", "refresh-1", expires)
		require.NoError(t, err)
		second, err := repo.CreateSession(ctx, acct.ID, "token-2", "", expires)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)

		got, err := repo.GetSession(ctx, acct.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "token-2", got.AccessToken)
		assert.Empty(t, got.RefreshToken)
		assert.False(t, got.CreatedAt.IsZero())

		old, err := repo.FindSessionByToken(ctx, "token-1")
		require.NoError(t, err)
		assert.Nil(t, old)

		byToken, err := repo.FindSessionByToken(ctx, "token-2")
		require.NoError(t, err)
		require.NotNil(t, byToken)
		assert.Equal(t, acct.ID, byToken.UserID)
	})
}

func TestDeleteSessionIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		acct, err := repo.CreateAccount(ctx, "alice", "pw")
		require.NoError(t, err)
		_, err = repo.CreateSession(ctx, acct.ID, "token", "", time.Now().Add(time.Hour))
		require.NoError(t, err)

		require.NoError(t, repo.DeleteSession(ctx, acct.ID))
		require.NoError(t, repo.DeleteSession(ctx, acct.ID))

		got, err := repo.GetSession(ctx, acct.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestListAgentsAfterDeleteKeepsInsertionOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		a, err := repo.CreateAgent(ctx, sampleFields("A"))
		require.NoError(t, err)
		b, err := repo.CreateAgent(ctx, sampleFields("B"))
		require.NoError(t, err)
		require.NoError(t, repo.DeleteAgent(ctx, a.ID))
		require.NoError(t, repo.DeleteAgent(ctx, a.ID))

		agents, err := repo.ListAgents(ctx)
		require.NoError(t, err)
		require.Len(t, agents, 1)
		assert.Equal(t, b.ID, agents[0].ID)
		assert.Equal(t, "B", agents[0].Name)

		c, err := repo.CreateAgent(ctx, sampleFields("C"))
		require.NoError(t, err)
		assert.Greater(t, c.ID, b.ID, "identifiers must not be reused")
	})
}

func TestCreateAgentRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		fields := sampleFields("Support")
		fields.ExternalID = "ext-42"

		created, err := repo.CreateAgent(ctx, fields)
		require.NoError(t, err)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := repo.GetAgent(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, fields.Name, got.Name)
		assert.Equal(t, fields.Description, got.Description)
		assert.Equal(t, fields.FirstMessage, got.FirstMessage)
		assert.Equal(t, "ext-42", got.ExternalID)
	})
}

func TestUpdateAgentMergesOnlyProvidedFields(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		fields := sampleFields("Support")
		fields.ExternalID = "ext-1"
		created, err := repo.CreateAgent(ctx, fields)
		require.NoError(t, err)

		updated, err := repo.UpdateAgent(ctx, created.ID, domain.AgentPatch{Description: strPtr("new")})
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, "new", updated.Description)
		assert.Equal(t, "Support", updated.Name)
		assert.Equal(t, fields.FirstMessage, updated.FirstMessage)
		assert.Equal(t, "alice", updated.CreatedBy)
		assert.Equal(t, "ext-1", updated.ExternalID)

		stored, err := repo.GetAgent(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, updated, stored)
	})
}

func TestUpdateMissingAgentReturnsNilWithoutMutation(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		_, err := repo.CreateAgent(ctx, sampleFields("A"))
		require.NoError(t, err)

		got, err := repo.UpdateAgent(ctx, 5, domain.AgentPatch{Name: strPtr("ghost")})
		require.NoError(t, err)
		assert.Nil(t, got)

		agents, err := repo.ListAgents(ctx)
		require.NoError(t, err)
		require.Len(t, agents, 1)
		assert.Equal(t, "A", agents[0].Name)
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	created, err := repo.CreateAgent(ctx, sampleFields("A"))
	require.NoError(t, err)
	created.Name = "mutated"

	got, err := repo.GetAgent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
}

func TestMemoryStoreConcurrentUpdates(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()
	created, err := repo.CreateAgent(ctx, sampleFields("A"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.UpdateAgent(ctx, created.ID, domain.AgentPatch{Description: strPtr("x")})
			_, _ = repo.CreateAgent(ctx, sampleFields("B"))
		}()
	}
	wg.Wait()

	agents, err := repo.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 51)

	seen := make(map[int64]bool)
	for _, a := range agents {
		assert.False(t, seen[a.ID], "duplicate id %d", a.ID)
		seen[a.ID] = true
	}
}

func TestNewSelectsImplementation(t *testing.T) {
	mem, err := New("")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem)

	sq, err := New(filepath.Join(t.TempDir(), "nested", "console.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	assert.IsType(t, &SQLiteStore{}, sq)
	assert.NoError(t, sq.Ping(context.Background()))
}

func TestFindOrCreateAccountIsAtomic(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		const callers = 25
		var wg sync.WaitGroup
		ids := make([]int64, callers)
		created := make([]bool, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				acct, isNew, err := repo.FindOrCreateAccount(ctx, "alice", "pw")
				assert.NoError(t, err)
				if acct != nil {
					ids[i] = acct.ID
				}
				created[i] = isNew
			}(i)
		}
		wg.Wait()

		newCount := 0
		for i := range ids {
			assert.Equal(t, ids[0], ids[i])
			if created[i] {
				newCount++
			}
		}
		assert.Equal(t, 1, newCount)

		again, isNew, err := repo.FindOrCreateAccount(ctx, "alice", "other")
		require.NoError(t, err)
		assert.False(t, isNew)
		assert.Equal(t, ids[0], again.ID)
		assert.Equal(t, "pw", again.Password)
	})
}

func TestCreateAccountRejectsDuplicateUsername(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		_, err := repo.CreateAccount(ctx, "alice", "pw")
		require.NoError(t, err)

		_, err = repo.CreateAccount(ctx, "alice", "pw2")
		assert.ErrorIs(t, err, ErrUsernameTaken)
	})
}
