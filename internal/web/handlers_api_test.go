package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tovala-go-home/internal/coordinator"
	"tovala-go-home/internal/store"
)

// stubStatus implements coordinator.StatusClient for testing.
type stubStatus struct {
	mu      sync.Mutex
	calls   int
	payload map[string]any
	err     error
}

func (s *stubStatus) CookStatus(_ context.Context, _ string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	payload := make(map[string]any, len(s.payload))
	for k, v := range s.payload {
		payload[k] = v
	}
	return payload, nil
}

func (s *stubStatus) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testServer struct {
	srv  *Server
	db   *store.BoltStore
	reg  *coordinator.Registry
	bus  *coordinator.EventBus
	stub *stubStatus
}

func setupTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.NewBoltStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	bus := coordinator.NewEventBus(logger)
	reg := coordinator.NewRegistry()
	t.Cleanup(reg.StopAll)

	stub := &stubStatus{payload: map[string]any{"state": "idle"}}
	coord := coordinator.New(stub, "home", "OVEN01", bus, logger)
	if err := reg.Add(&coordinator.Entry{Account: "home", Coordinator: coord}); err != nil {
		t.Fatal(err)
	}

	var opts []ServerOption
	if apiKey != "" {
		opts = append(opts, WithAPIKey(apiKey))
	}
	srv := NewServer(reg, bus, db, logger, opts...)
	t.Cleanup(srv.Stop)

	return &testServer{srv: srv, db: db, reg: reg, bus: bus, stub: stub}
}

func (ts *testServer) refresh(t *testing.T) {
	t.Helper()
	entry, _ := ts.reg.Get("home")
	if _, err := entry.Coordinator.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestAPIHealthDegradedBeforeFirstPoll(t *testing.T) {
	ts := setupTestServer(t, "")

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestAPIHealthOKAfterPoll(t *testing.T) {
	ts := setupTestServer(t, "")
	ts.refresh(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
}

func TestAPIListAccounts(t *testing.T) {
	ts := setupTestServer(t, "")
	ts.refresh(t)

	req := httptest.NewRequest("GET", "/api/accounts", nil)
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var accounts []AccountView
	if err := json.NewDecoder(w.Body).Decode(&accounts); err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 1 {
		t.Fatalf("account count = %d, want 1", len(accounts))
	}
	if accounts[0].Account != "home" {
		t.Errorf("account = %q, want home", accounts[0].Account)
	}
	if accounts[0].OvenID != "OVEN01" {
		t.Errorf("oven_id = %q, want OVEN01", accounts[0].OvenID)
	}
	if !accounts[0].LastUpdateSuccess {
		t.Error("last_update_success should be true after refresh")
	}
}

func TestAPIListOvens(t *testing.T) {
	ts := setupTestServer(t, "")
	if err := ts.db.SaveOven(&store.Oven{ID: "OVEN01", Account: "home", Name: "Kitchen"}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/ovens", nil)
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var ovens []store.Oven
	if err := json.NewDecoder(w.Body).Decode(&ovens); err != nil {
		t.Fatal(err)
	}
	if len(ovens) != 1 || ovens[0].ID != "OVEN01" {
		t.Errorf("ovens = %+v", ovens)
	}
}

func TestAPIOvenStatus(t *testing.T) {
	ts := setupTestServer(t, "")
	ts.stub.payload = map[string]any{
		"state":            "cooking",
		"estimatedEndTime": time.Now().Add(90 * time.Second).Format(time.RFC3339),
	}
	ts.refresh(t)

	req := httptest.NewRequest("GET", "/api/ovens/OVEN01/status", nil)
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var view StatusView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.State != "cooking" {
		t.Errorf("state = %q, want cooking", view.State)
	}
	if view.RemainingSeconds <= 0 || view.RemainingSeconds > 90 {
		t.Errorf("remaining_seconds = %d, want within (0, 90]", view.RemainingSeconds)
	}
	if view.Account != "home" {
		t.Errorf("account = %q, want home", view.Account)
	}
}

func TestAPIOvenStatusNotFound(t *testing.T) {
	ts := setupTestServer(t, "")

	req := httptest.NewRequest("GET", "/api/ovens/NOSUCH/status", nil)
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIOvenRefreshKicksPoller(t *testing.T) {
	ts := setupTestServer(t, "")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	entry, _ := ts.reg.Get("home")
	entry.Poller = coordinator.StartPoller(context.Background(), entry.Coordinator, time.Hour, logger)
	t.Cleanup(entry.Poller.Stop)

	// The poller runs an initial refresh at startup; wait for it.
	deadline := time.Now().Add(time.Second)
	for ts.stub.callCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	before := ts.stub.callCount()

	req := httptest.NewRequest("POST", "/api/ovens/OVEN01/refresh", nil)
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	deadline = time.Now().Add(time.Second)
	for ts.stub.callCount() == before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ts.stub.callCount() == before {
		t.Error("refresh request did not trigger a poll")
	}
}

func TestAPIOvenRefreshWithoutPoller(t *testing.T) {
	ts := setupTestServer(t, "")

	req := httptest.NewRequest("POST", "/api/ovens/OVEN01/refresh", nil)
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestAuthMiddlewareHeader(t *testing.T) {
	ts := setupTestServer(t, "secret-key")

	req := httptest.NewRequest("GET", "/api/version", nil)
	req.Header.Set("X-API-Key", "secret-key")
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("correct key: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuthMiddlewareMissing(t *testing.T) {
	ts := setupTestServer(t, "secret-key")

	req := httptest.NewRequest("GET", "/api/version", nil)
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareWrongKey(t *testing.T) {
	ts := setupTestServer(t, "secret-key")

	req := httptest.NewRequest("GET", "/api/version", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestCORSMutatingRequestForbiddenOrigin(t *testing.T) {
	ts := setupTestServer(t, "")
	ts.srv.allowedOrigins = []string{"http://allowed.local"}

	req := httptest.NewRequest("POST", "/api/ovens/OVEN01/refresh", nil)
	req.Header.Set("Origin", "http://evil.local")
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestCORSPreflightAllowedOrigin(t *testing.T) {
	ts := setupTestServer(t, "")
	ts.srv.allowedOrigins = []string{"http://allowed.local"}

	req := httptest.NewRequest("OPTIONS", "/api/accounts", nil)
	req.Header.Set("Origin", "http://allowed.local")
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://allowed.local" {
		t.Errorf("allow-origin = %q", got)
	}
}
