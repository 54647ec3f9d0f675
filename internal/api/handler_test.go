//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/agent-console/internal/config"
	"github.com/ashureev/agent-console/internal/identity"
	"github.com/ashureev/agent-console/internal/store"
	"github.com/ashureev/agent-console/internal/upstream"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestErrorUsesMessageField(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusNotFound, "Agent not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"Agent not found"}`, w.Body.String())
}

// fakeUpstream is an httptest server standing in for the upstream API.
// Routes without a handler answer 500.
type fakeUpstream struct {
	mu       sync.Mutex
	hits     map[string]int
	handlers map[string]http.HandlerFunc
	server   *httptest.Server
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{hits: make(map[string]int), handlers: make(map[string]http.HandlerFunc)}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		h := f.handlers[r.URL.Path]
		f.mu.Unlock()
		if h == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func (f *fakeUpstream) reply(path string, status int, body string) {
	f.handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func (f *fakeUpstream) totalHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.hits {
		total += n
	}
	return total
}

const (
	tokenPath = "/oauth/token"
	listPath  = "/api/agents"
	addPath   = "/api/agents/add"
	editPath  = "/api/agents/edit"
)

type testEnv struct {
	router   *chi.Mux
	repo     *store.MemoryStore
	upstream *fakeUpstream
	cfg      *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	up := newFakeUpstream(t)
	cfg := &config.Config{
		Port: "8080",
		Env:  "development",
		Upstream: config.UpstreamConfig{
			BaseURL:      up.server.URL,
			TokenPath:    tokenPath,
			ListPath:     listPath,
			AddPath:      addPath,
			EditPath:     editPath,
			Scope:        "read write",
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Timeout:      5 * time.Second,
		},
		Demo: config.DemoConfig{Username: "demo", Password: "demo123"},
	}
	client := upstream.NewClient(upstream.API{
		BaseURL:   cfg.Upstream.BaseURL,
		TokenPath: cfg.Upstream.TokenPath,
		ListPath:  cfg.Upstream.ListPath,
		AddPath:   cfg.Upstream.AddPath,
		EditPath:  cfg.Upstream.EditPath,
	}, upstream.Credentials{
		ClientID:     cfg.Upstream.ClientID,
		ClientSecret: cfg.Upstream.ClientSecret,
		Scope:        cfg.Upstream.Scope,
	}, cfg.Upstream.Timeout)

	repo := store.NewMemory()
	base := NewHandler(repo, client, cfg)

	r := chi.NewRouter()
	NewHealthHandler(repo).RegisterHealth(r)
	NewAuthHandler(base, nil).RegisterRoutes(r)
	NewAgentHandler(base).RegisterRoutes(r)

	return &testEnv{router: r, repo: repo, upstream: up, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: identity.CookieName, Value: token})
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got), "body: %s", rr.Body.String())
	return got
}

func TestHealthReportsStore(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy","checks":{"api":"ok","store":"ok"}}`, rr.Body.String())
}
