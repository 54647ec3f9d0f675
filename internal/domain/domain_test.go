package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAgentFieldsValidateReportsEveryMissingField(t *testing.T) {
	t.Parallel()

	errs := AgentFields{Name: "Support", Description: "  "}.Validate()
	assert.Len(t, errs, 3)
	assert.Contains(t, errs, "description")
	assert.Contains(t, errs, "firstMessage")
	assert.Contains(t, errs, "createdBy")
	assert.NotContains(t, errs, "name")
}

func TestAgentPatchApplyToOnlyTouchesProvidedFields(t *testing.T) {
	t.Parallel()

	rec := &AgentRecord{
		ID:           1,
		Name:         "Support",
		Description:  "old",
		FirstMessage: "Hello",
		CreatedBy:    "alice",
		ExternalID:   "ext-9",
	}
	desc := "new"
	AgentPatch{Description: &desc}.ApplyTo(rec)

	assert.Equal(t, "new", rec.Description)
	assert.Equal(t, "Support", rec.Name)
	assert.Equal(t, "Hello", rec.FirstMessage)
	assert.Equal(t, "alice", rec.CreatedBy)
	assert.Equal(t, "ext-9", rec.ExternalID)
}

func TestAgentPatchValidateRejectsBlankProvidedField(t *testing.T) {
	t.Parallel()

	blank := ""
	errs := AgentPatch{Name: &blank}.Validate()
	assert.Equal(t, map[string]string{"name": "name is required"}, errs)
	assert.Empty(t, AgentPatch{}.Validate())
}

func TestSessionExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := &Session{ExpiresAt: now.Add(SessionLifetime)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(SessionLifetime)))
}
