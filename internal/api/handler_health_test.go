package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// --- Mock Pinger ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error {
	return m.err
}

// --- Livez ---

func TestLivez_ReturnsOK(t *testing.T) {
	server := NewServer(testLogger(), Deps{})

	req := httptest.NewRequest(http.MethodGet, "/v1/livez", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status: got %q, want %q", resp["status"], "ok")
	}
}

// --- Readyz ---

func TestReadyz_NoBackends_ReturnsOK(t *testing.T) {
	server := NewServer(testLogger(), Deps{})

	req := httptest.NewRequest(http.MethodGet, "/v1/readyz", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusOK)
	}
}

func TestReadyz_AllHealthy(t *testing.T) {
	backends := map[string]Pinger{
		"postgres": &mockPinger{},
		"artifacts": &mockPinger{},
	}
	server := NewServer(testLogger(), Deps{Backends: backends})

	req := httptest.NewRequest(http.MethodGet, "/v1/readyz", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d\nbody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp readyzResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status: got %q, want %q", resp.Status, "ok")
	}
	if len(resp.Backends) != 2 {
		t.Fatalf("backends: got %d, want 2", len(resp.Backends))
	}
	for name, bs := range resp.Backends {
		if bs.Status != "ok" {
			t.Errorf("backend %s: got %q, want %q", name, bs.Status, "ok")
		}
	}
}

func TestReadyz_OneBackendDown(t *testing.T) {
	backends := map[string]Pinger{
		"postgres": &mockPinger{},
		"artifacts": &mockPinger{err: errors.New("connection refused")},
	}
	server := NewServer(testLogger(), Deps{Backends: backends})

	req := httptest.NewRequest(http.MethodGet, "/v1/readyz", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want %d\nbody: %s", w.Code, http.StatusServiceUnavailable, w.Body.String())
	}

	var resp readyzResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "unavailable" {
		t.Errorf("status: got %q, want %q", resp.Status, "unavailable")
	}
	if resp.Backends["postgres"].Status != "ok" {
		t.Errorf("postgres: got %q, want %q", resp.Backends["postgres"].Status, "ok")
	}
	if resp.Backends["artifacts"].Status != "error" {
		t.Errorf("artifacts: got %q, want %q", resp.Backends["artifacts"].Status, "error")
	}
	if resp.Backends["artifacts"].Error != "connection refused" {
		t.Errorf("artifacts error: got %q", resp.Backends["artifacts"].Error)
	}
}

// --- /v1/health backwards compat ---

func TestHealth_BackwardsCompat_BehavesAsReadyz(t *testing.T) {
	backends := map[string]Pinger{
		"postgres": &mockPinger{},
	}
	server := NewServer(testLogger(), Deps{Backends: backends})

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusOK)
	}

	var resp readyzResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status: got %q, want %q", resp.Status, "ok")
	}
	if resp.Backends["postgres"].Status != "ok" {
		t.Errorf("postgres: got %q, want %q", resp.Backends["postgres"].Status, "ok")
	}
}

// --- /metrics ---

func TestMetricsEndpoint(t *testing.T) {
	server := NewServer(testLogger(), Deps{})

	// Hit a route first so the HTTP collectors have samples.
	doRequest(t, server, http.MethodGet, "/v1/livez", nil, "")
	w := doRequest(t, server, http.MethodGet, "/metrics", nil, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "scorecard_requests_total") {
		t.Error("scorecard_requests_total missing from /metrics output")
	}
}
