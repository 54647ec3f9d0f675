package domain

import (
	"strings"
	"time"
)

// AgentRecord is a locally cached agent definition.
// ExternalID links the record to the identifier assigned by the upstream API.
type AgentRecord struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	FirstMessage string    `json:"firstMessage"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	ExternalID   string    `json:"externalId,omitempty"`
}

// AgentFields holds the caller-supplied fields of a new agent.
type AgentFields struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	FirstMessage string `json:"firstMessage"`
	CreatedBy    string `json:"createdBy"`
	ExternalID   string `json:"-"`
}

// Validate returns field-level messages for missing fields.
// An empty map means the fields are valid.
func (f AgentFields) Validate() map[string]string {
	errs := make(map[string]string)
	requireField(errs, "name", f.Name)
	requireField(errs, "description", f.Description)
	requireField(errs, "firstMessage", f.FirstMessage)
	requireField(errs, "createdBy", f.CreatedBy)
	return errs
}

// AgentPatch is a partial update. Nil fields are left untouched.
type AgentPatch struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	FirstMessage *string `json:"firstMessage,omitempty"`
	CreatedBy    *string `json:"createdBy,omitempty"`
}

// Validate rejects provided fields that are blank.
func (p AgentPatch) Validate() map[string]string {
	errs := make(map[string]string)
	for field, v := range map[string]*string{
		"name":         p.Name,
		"description":  p.Description,
		"firstMessage": p.FirstMessage,
		"createdBy":    p.CreatedBy,
	} {
		if v != nil {
			requireField(errs, field, *v)
		}
	}
	return errs
}

// ApplyTo shallow-merges the provided fields over rec.
func (p AgentPatch) ApplyTo(rec *AgentRecord) {
	if p.Name != nil {
		rec.Name = *p.Name
	}
	if p.Description != nil {
		rec.Description = *p.Description
	}
	if p.FirstMessage != nil {
		rec.FirstMessage = *p.FirstMessage
	}
	if p.CreatedBy != nil {
		rec.CreatedBy = *p.CreatedBy
	}
}

func requireField(errs map[string]string, field, value string) {
	if strings.TrimSpace(value) == "" {
		errs[field] = field + " is required"
	}
}
