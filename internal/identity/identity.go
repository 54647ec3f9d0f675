// Package identity carries the operator's access token between the browser
// cookie and request handlers.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/agent-console/internal/domain"
)

const (
	// CookieName is the HTTP-only cookie holding the opaque access token.
	CookieName = "auth_token"
	// DemoTokenPrefix marks tokens minted locally for the demo credential.
	DemoTokenPrefix = "demo_token_"
)

type contextKey int

const (
	tokenKey contextKey = iota
)

var demoTokenPattern = regexp.MustCompile(`^demo_token_[0-9]+$`)

// NewDemoToken mints a synthetic demo token stamped with now in epoch milliseconds.
func NewDemoToken(now time.Time) string {
	return DemoTokenPrefix + strconv.FormatInt(now.UnixMilli(), 10)
}

// IsDemoToken reports whether token was minted by NewDemoToken.
func IsDemoToken(token string) bool {
	return demoTokenPattern.MatchString(token)
}

// TokenFromContext extracts the access token from the request context.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tokenKey).(string); ok {
		return v
	}
	return ""
}

// WithToken returns a copy of ctx carrying token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromRequest returns the access token cookie value, or "" if absent.
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// SetAuthCookie stores token in an HTTP-only, SameSite=Strict cookie that
// lives as long as a session.
func SetAuthCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(domain.SessionLifetime.Seconds()),
		Expires:  time.Now().Add(domain.SessionLifetime),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	})
}

// ClearAuthCookie expires the access token cookie.
func ClearAuthCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	})
}

// RequireToken rejects requests without an access token cookie and places the
// token in the request context for downstream handlers.
func RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Authentication required"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
	})
}

// IPFromRequest returns a normalized remote IP for rate limiting and tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
