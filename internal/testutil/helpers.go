package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tracklight/internal/activestate"
	"tracklight/internal/api"
	"tracklight/internal/audit"
	"tracklight/internal/auth"
	"tracklight/internal/broadcast"
	"tracklight/internal/engine"
	"tracklight/internal/geo"
	"tracklight/internal/store"
	"tracklight/internal/tracker"
)

const (
	AdminUsername = "admin"
	AdminPassword = "test-password"
)

// RecordingBroadcaster captures pushed snippets for assertions.
type RecordingBroadcaster struct {
	mu     sync.Mutex
	pushes []string
}

func (b *RecordingBroadcaster) ExecuteScript(snippetID, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushes = append(b.pushes, snippetID)
}

// Pushes returns the snippet ids pushed so far.
func (b *RecordingBroadcaster) Pushes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.pushes))
	copy(out, b.pushes)
	return out
}

// Env bundles a fully wired server on in-memory backends.
type Env struct {
	Store      *store.MemoryStore
	Active     *activestate.MemoryState
	Geo        geo.StaticResolver
	Broadcasts *RecordingBroadcaster
	Hub        *broadcast.Hub
	Engine     *engine.Engine
	Tracker    *tracker.Tracker
	Auth       *auth.Service
	Audit      *audit.MemorySink
	Server     *api.Server
	Handler    http.Handler
}

// NewEnv creates a test environment with in-memory backends. Admission is
// forced on so percentage gates do not make tests flaky; tests that
// exercise admission build their own engine with the roller under test.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	logger := zerolog.Nop()
	memStore := store.NewMemoryStore()
	active := activestate.NewMemoryState()
	resolver := geo.StaticResolver{}
	broadcasts := &RecordingBroadcaster{}
	hub := broadcast.NewHub(logger)

	eng := engine.New(engine.Deps{
		Store:       memStore,
		Active:      active,
		Geo:         resolver,
		Roller:      engine.FixedRoller(true),
		Broadcaster: broadcasts,
		Logger:      logger,
	})
	tr := tracker.New(memStore, resolver, eng, logger)

	authSvc := auth.NewService(memStore, "test-secret", time.Hour)
	if err := authSvc.EnsureAdmin(context.Background(), AdminUsername, AdminPassword); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}

	sink := audit.NewMemorySink()
	auditSvc := audit.NewService(sink, logger, 64)
	t.Cleanup(func() { _ = auditSvc.Close() })

	server := api.NewServer(memStore, tr, eng, authSvc, hub, active, auditSvc, resolver, logger, api.Config{})

	return &Env{
		Store:      memStore,
		Active:     active,
		Geo:        resolver,
		Broadcasts: broadcasts,
		Hub:        hub,
		Engine:     eng,
		Tracker:    tr,
		Auth:       authSvc,
		Audit:      sink,
		Server:     server,
		Handler:    server.Router(),
	}
}

// Login obtains a session token for the bootstrap admin.
func (e *Env) Login(t *testing.T) string {
	t.Helper()
	rr := (&HTTPRequest{
		Method: "POST",
		Path:   "/auth/login",
		Body:   `{"username":"` + AdminUsername + `","password":"` + AdminPassword + `"}`,
	}).Do(t, e.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("login failed: status %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token
}

// HTTPRequest is a helper for making test HTTP requests.
type HTTPRequest struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// Do executes the HTTP request and returns the response recorder.
func (r *HTTPRequest) Do(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.Body != "" {
		body = bytes.NewBufferString(r.Body)
	}
	req := httptest.NewRequest(r.Method, r.Path, body)
	if r.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// SeedRule creates a rule directly in the store.
func SeedRule(t *testing.T, st store.Store, p store.RuleParams) *store.Rule {
	t.Helper()
	rule, err := st.CreateRule(context.Background(), p)
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	return rule
}

// SeedSnippet creates a snippet directly in the store.
func SeedSnippet(t *testing.T, st store.Store, name, script string) *store.Snippet {
	t.Helper()
	snippet, err := st.CreateSnippet(context.Background(), store.SnippetParams{Name: name, Script: script})
	if err != nil {
		t.Fatalf("seed snippet: %v", err)
	}
	return snippet
}
