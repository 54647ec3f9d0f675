package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/agent-console/internal/domain"
	"github.com/ashureev/agent-console/internal/identity"
	"github.com/ashureev/agent-console/internal/upstream"
	"github.com/go-chi/chi/v5"
)

// AuthHandler handles login, logout and session probes.
type AuthHandler struct {
	*Handler
	loginLimit func(http.Handler) http.Handler
}

// NewAuthHandler creates an auth handler. loginLimit, when non-nil, wraps the
// login route (typically a per-IP rate limiter).
func NewAuthHandler(base *Handler, loginLimit func(http.Handler) http.Handler) *AuthHandler {
	return &AuthHandler{Handler: base, loginLimit: loginLimit}
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.loginLimit != nil {
				r.Use(h.loginLimit)
			}
			r.Post("/login", h.Login)
		})
		r.Post("/logout", h.Logout)
		r.With(identity.RequireToken).Get("/me", h.Me)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (req loginRequest) validate() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(req.Username) == "" {
		errs["username"] = "username is required"
	}
	if req.Password == "" {
		errs["password"] = "password is required"
	}
	return errs
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "login", err)
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		writeError(w, r, "login", validationFailure(errs))
		return
	}

	var token upstream.TokenResult
	if h.isDemoCredential(req) {
		// Demo bypass: no upstream call, synthetic token.
		token.AccessToken = identity.NewDemoToken(h.now())
		slog.Info("Demo login", "username", req.Username)
	} else {
		var err error
		token, err = h.upstream.IssueToken(upstreamContext(r), req.Username, req.Password)
		if err != nil {
			writeError(w, r, "login", loginFailure(err))
			return
		}
	}

	acct, err := h.resolveAccount(r, req)
	if err != nil {
		writeError(w, r, "login", err)
		return
	}

	expiresAt := h.now().Add(domain.SessionLifetime)
	// An issued upstream token is recorded even if the client went away.
	if _, err := h.repo.CreateSession(upstreamContext(r), acct.ID, token.AccessToken, token.RefreshToken, expiresAt); err != nil {
		writeError(w, r, "login", err)
		return
	}

	identity.SetAuthCookie(w, token.AccessToken, h.secureCookies())
	slog.Info("Login succeeded", "user_id", acct.ID, "username", acct.Username)
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Login successful",
		"user":    acct.Public(),
	})
}

func (h *AuthHandler) isDemoCredential(req loginRequest) bool {
	if h.cfg == nil || h.cfg.Demo.Username == "" {
		return false
	}
	return req.Username == h.cfg.Demo.Username && req.Password == h.cfg.Demo.Password
}

// resolveAccount returns the stored account for the username, creating it on
// first login.
func (h *AuthHandler) resolveAccount(r *http.Request, req loginRequest) (*domain.Account, error) {
	acct, created, err := h.repo.FindOrCreateAccount(upstreamContext(r), req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	if created {
		slog.Info("Account created", "user_id", acct.ID, "username", acct.Username)
	}
	return acct, nil
}

// loginFailure maps upstream token errors to login responses.
func loginFailure(err error) error {
	var statusErr *upstream.StatusError
	switch {
	case errors.As(err, &statusErr):
		slog.Warn("Upstream rejected login", "status", statusErr.StatusCode)
		return &Failure{Status: http.StatusUnauthorized, Message: msgAuthFailed}
	case errors.Is(err, upstream.ErrMalformedResponse):
		return &Failure{Status: http.StatusUnauthorized, Message: msgInvalidFormat}
	case errors.Is(err, upstream.ErrNoAccessToken):
		return &Failure{Status: http.StatusUnauthorized, Message: msgNoAccessToken}
	default:
		return err
	}
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := identity.TokenFromRequest(r); token != "" {
		sess, err := h.repo.FindSessionByToken(r.Context(), token)
		if err != nil {
			writeError(w, r, "logout", err)
			return
		}
		if sess != nil {
			if err := h.repo.DeleteSession(r.Context(), sess.UserID); err != nil {
				writeError(w, r, "logout", err)
				return
			}
			slog.Info("Session deleted", "user_id", sess.UserID)
		}
	}

	identity.ClearAuthCookie(w, h.secureCookies())
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"authenticated": true}

	sess, err := h.repo.FindSessionByToken(r.Context(), identity.TokenFromContext(r.Context()))
	if err != nil {
		writeError(w, r, "me", err)
		return
	}
	if sess != nil && !sess.Expired(h.now()) {
		acct, err := h.repo.GetAccount(r.Context(), sess.UserID)
		if err != nil {
			writeError(w, r, "me", err)
			return
		}
		if acct != nil {
			resp["user"] = acct.Public()
		}
	}

	JSON(w, http.StatusOK, resp)
}
