// Package api provides HTTP handlers for the agent console API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ashureev/agent-console/internal/config"
	"github.com/ashureev/agent-console/internal/store"
	"github.com/ashureev/agent-console/internal/upstream"
)

// maxRequestBodySize caps JSON request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Upstream is the subset of the upstream API client used by handlers.
type Upstream interface {
	IssueToken(ctx context.Context, username, password string) (upstream.TokenResult, error)
	ListAgents(ctx context.Context, accessToken string) ([]json.RawMessage, error)
	AddAgent(ctx context.Context, accessToken string, form upstream.AgentForm) (*upstream.WriteResult, error)
	EditAgent(ctx context.Context, accessToken, agentID string, form upstream.AgentForm) (*upstream.WriteResult, error)
}

// Handler provides common handler dependencies and utilities.
type Handler struct {
	repo     store.Repository
	upstream Upstream
	cfg      *config.Config
	now      func() time.Time
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, up Upstream, cfg *config.Config) *Handler {
	return &Handler{
		repo:     repo,
		upstream: up,
		cfg:      cfg,
		now:      time.Now,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"message": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"message": message})
}

// secureCookies reports whether cookies must carry the Secure attribute.
func (h *Handler) secureCookies() bool {
	return h.cfg != nil && h.cfg.IsProduction()
}

// upstreamContext detaches outbound calls from inbound cancellation so a
// client disconnect does not abort a write whose result is recorded locally.
func upstreamContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &Failure{Status: http.StatusRequestEntityTooLarge, Message: "Request body too large"}
		}
		return &Failure{Status: http.StatusBadRequest, Message: "Invalid request body"}
	}
	return nil
}
