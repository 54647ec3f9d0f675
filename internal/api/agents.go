package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/agent-console/internal/domain"
	"github.com/ashureev/agent-console/internal/identity"
	"github.com/ashureev/agent-console/internal/upstream"
	"github.com/go-chi/chi/v5"
)

// AgentHandler proxies agent CRUD to the upstream API with a local fallback.
type AgentHandler struct {
	*Handler
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(base *Handler) *AgentHandler {
	return &AgentHandler{Handler: base}
}

// RegisterRoutes registers agent routes (all require the auth cookie).
func (h *AgentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/agents", func(r chi.Router) {
		r.Use(identity.RequireToken)
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Patch("/{id}", h.Update)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// agentWriteResponse is the body returned by create and update.
type agentWriteResponse struct {
	Success      bool                `json:"success"`
	Agent        *domain.AgentRecord `json:"agent"`
	ExternalData json.RawMessage     `json:"externalData"`
}

// List handles GET /api/agents. Upstream failures fall back to the local store.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	token := identity.TokenFromContext(r.Context())

	if !identity.IsDemoToken(token) {
		agents, err := h.upstream.ListAgents(upstreamContext(r), token)
		if err == nil {
			if agents == nil {
				agents = []json.RawMessage{}
			}
			JSON(w, http.StatusOK, agents)
			return
		}
		slog.Warn("Upstream agent list failed, serving local agents", "error", err)
	}

	local, err := h.repo.ListAgents(r.Context())
	if err != nil {
		writeError(w, r, "list agents", err)
		return
	}
	JSON(w, http.StatusOK, local)
}

// Create handles POST /api/agents.
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	token := identity.TokenFromContext(r.Context())

	var fields domain.AgentFields
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, r, "create agent", err)
		return
	}
	if errs := fields.Validate(); len(errs) > 0 {
		writeError(w, r, "create agent", validationFailure(errs))
		return
	}

	var external json.RawMessage
	if !identity.IsDemoToken(token) {
		result, err := h.upstream.AddAgent(upstreamContext(r), token, upstream.AgentForm{
			Prompt:       fields.Name,
			FirstMessage: fields.FirstMessage,
			Description:  fields.Description,
		})
		if err != nil {
			writeError(w, r, "create agent", agentWriteFailure(err, "Failed to create agent"))
			return
		}
		fields.ExternalID = result.ExternalID
		external = result.Raw
	}

	// The upstream call may have outlived the client; record it regardless.
	rec, err := h.repo.CreateAgent(upstreamContext(r), fields)
	if err != nil {
		writeError(w, r, "create agent", err)
		return
	}

	slog.Info("Agent created", "agent_id", rec.ID, "external_id", rec.ExternalID)
	JSON(w, http.StatusCreated, agentWriteResponse{Success: true, Agent: rec, ExternalData: nullIfEmpty(external)})
}

// Update handles PATCH and PUT /api/agents/{id}.
func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
	token := identity.TokenFromContext(r.Context())

	id, err := agentIDParam(r)
	if err != nil {
		writeError(w, r, "update agent", err)
		return
	}

	var patch domain.AgentPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, "update agent", err)
		return
	}
	if errs := patch.Validate(); len(errs) > 0 {
		writeError(w, r, "update agent", validationFailure(errs))
		return
	}

	existing, err := h.repo.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, r, "update agent", err)
		return
	}
	if existing == nil {
		writeError(w, r, "update agent", notFound(msgAgentNotFound))
		return
	}

	var external json.RawMessage
	if !identity.IsDemoToken(token) {
		merged := *existing
		patch.ApplyTo(&merged)

		upstreamID := existing.ExternalID
		if upstreamID == "" {
			upstreamID = strconv.FormatInt(existing.ID, 10)
		}

		result, err := h.upstream.EditAgent(upstreamContext(r), token, upstreamID, upstream.AgentForm{
			Prompt:       merged.Name,
			FirstMessage: merged.FirstMessage,
			Description:  merged.Description,
		})
		if err != nil {
			writeError(w, r, "update agent", agentWriteFailure(err, "Failed to update agent"))
			return
		}
		external = result.Raw
	}

	rec, err := h.repo.UpdateAgent(upstreamContext(r), id, patch)
	if err != nil {
		writeError(w, r, "update agent", err)
		return
	}
	if rec == nil {
		writeError(w, r, "update agent", notFound(msgAgentNotFound))
		return
	}

	slog.Info("Agent updated", "agent_id", rec.ID, "external_id", rec.ExternalID)
	JSON(w, http.StatusOK, agentWriteResponse{Success: true, Agent: rec, ExternalData: nullIfEmpty(external)})
}

// Delete handles DELETE /api/agents/{id}. Deletion is local only.
func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := agentIDParam(r)
	if err != nil {
		writeError(w, r, "delete agent", err)
		return
	}

	if err := h.repo.DeleteAgent(r.Context(), id); err != nil {
		writeError(w, r, "delete agent", err)
		return
	}

	slog.Info("Agent deleted", "agent_id", id)
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Agent deleted successfully",
	})
}

func agentIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, validationFailure(map[string]string{"id": "invalid agent id"})
	}
	return id, nil
}

// agentWriteFailure maps upstream add/edit errors. Writes never fall back to
// the local store.
func agentWriteFailure(err error, fallback string) error {
	var statusErr *upstream.StatusError
	var rejected *upstream.RejectedError
	switch {
	case errors.As(err, &rejected):
		return &Failure{Status: http.StatusBadRequest, Message: rejected.Message}
	case errors.As(err, &statusErr):
		status := statusErr.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		msg := statusErr.Message
		if msg == "" {
			msg = fallback
		}
		return &Failure{Status: status, Message: msg}
	case errors.Is(err, upstream.ErrMalformedResponse):
		slog.Error("Upstream returned malformed body", "error", err)
		return &Failure{Status: http.StatusInternalServerError, Message: msgUpstreamInvalid}
	default:
		return err
	}
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
