package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ryanbastic/go-scorecard/internal/card"
	"github.com/ryanbastic/go-scorecard/internal/circuitbreaker"
	"github.com/ryanbastic/go-scorecard/internal/encoder"
	"github.com/ryanbastic/go-scorecard/internal/match"
)

// --- Mock CardService ---

type mockCards struct {
	card *card.Card
	meta match.CardMeta
	err  error

	gotID      string
	gotRefresh bool
}

func (m *mockCards) Get(_ context.Context, matchID string, forceRefresh bool) (*card.Card, error) {
	m.gotID = matchID
	m.gotRefresh = forceRefresh
	if m.err != nil {
		return nil, m.err
	}
	return m.card, nil
}

func (m *mockCards) Meta(_ context.Context, matchID string) (match.CardMeta, error) {
	m.gotID = matchID
	if m.err != nil {
		return match.CardMeta{}, m.err
	}
	return m.meta, nil
}

func doRequest(t *testing.T, h http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func doJSON(t *testing.T, h http.Handler, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	}
	return doRequest(t, h, method, path, body, "application/json")
}

func TestGetCard_Success(t *testing.T) {
	generated := time.Date(2026, 5, 17, 12, 0, 0, 0, time.UTC)
	cards := &mockCards{card: &card.Card{
		Bytes:       []byte("jpeg-bytes"),
		URL:         "memory://artifacts/cards/m1/v3.jpg",
		Version:     3,
		GeneratedAt: generated,
		Outcome:     "hit",
	}}
	server := NewServer(testLogger(), Deps{Cards: cards, CardMaxAge: time.Hour})

	w := doRequest(t, server, http.MethodGet, "/v1/matches/m1/card", nil, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d\nbody: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if !bytes.Equal(w.Body.Bytes(), []byte("jpeg-bytes")) {
		t.Errorf("body: got %q", w.Body.String())
	}
	for header, want := range map[string]string{
		"Content-Type":   encoder.ContentType,
		"Cache-Control":  "public, max-age=3600",
		"ETag":           `"v3"`,
		"X-Card-Version": "3",
		"X-Card-Cache":   "hit",
		"Last-Modified":  generated.Format(http.TimeFormat),
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s: got %q, want %q", header, got, want)
		}
	}
	if cards.gotID != "m1" || cards.gotRefresh {
		t.Errorf("Get called with (%q, %v)", cards.gotID, cards.gotRefresh)
	}
}

func TestGetCard_RefreshQuery(t *testing.T) {
	cards := &mockCards{card: &card.Card{Bytes: []byte("x"), Version: 1, Outcome: "built"}}
	server := NewServer(testLogger(), Deps{Cards: cards})

	w := doRequest(t, server, http.MethodGet, "/v1/matches/m1/card?refresh=true", nil, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	if !cards.gotRefresh {
		t.Error("refresh=true was not passed through")
	}
	if got := w.Header().Get("X-Card-Cache"); got != "built" {
		t.Errorf("X-Card-Cache: got %q, want built", got)
	}
}

func TestGetCard_SupersededIsNotCacheable(t *testing.T) {
	cards := &mockCards{card: &card.Card{Bytes: []byte("x"), Version: 2, Outcome: "built", Superseded: true}}
	server := NewServer(testLogger(), Deps{Cards: cards, CardMaxAge: time.Hour})

	w := doRequest(t, server, http.MethodGet, "/v1/matches/m1/card", nil, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control: got %q, want no-store", got)
	}
	if got := w.Header().Get("ETag"); got != "" {
		t.Errorf("ETag: got %q, want none", got)
	}
}

func TestGetCard_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", match.ErrNotFound, http.StatusNotFound},
		{"invalid state", fmt.Errorf("%w: 1 participants", match.ErrInvalidState), http.StatusUnprocessableEntity},
		{"render failure", fmt.Errorf("%w: boom", card.ErrRenderFailure), http.StatusInternalServerError},
		{"encode failure", fmt.Errorf("%w: %w", card.ErrEncodeFailure, encoder.ErrBudgetExceeded), http.StatusInternalServerError},
		{"storage failure", fmt.Errorf("%w: put: timeout", card.ErrStorageFailure), http.StatusServiceUnavailable},
		{"circuit open", fmt.Errorf("%w: %w", card.ErrStorageFailure, circuitbreaker.ErrCircuitOpen), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(testLogger(), Deps{Cards: &mockCards{err: tt.err}})

			w := doRequest(t, server, http.MethodGet, "/v1/matches/m1/card", nil, "")

			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d\nbody: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestGetCardMeta(t *testing.T) {
	generated := time.Date(2026, 5, 17, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		meta      match.CardMeta
		wantValid bool
	}{
		{"valid", match.CardMeta{URL: "memory://artifacts/cards/m1/v2.jpg", Version: 2, GeneratedAt: &generated}, true},
		{"invalidated", match.CardMeta{Version: 2, GeneratedAt: &generated}, false},
		{"never built", match.CardMeta{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(testLogger(), Deps{Cards: &mockCards{meta: tt.meta}})

			w := doRequest(t, server, http.MethodGet, "/v1/matches/m1/card/meta", nil, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
			}

			var resp CardMetaResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.MatchID != "m1" {
				t.Errorf("match_id: got %q", resp.MatchID)
			}
			if resp.Valid != tt.wantValid {
				t.Errorf("valid: got %v, want %v", resp.Valid, tt.wantValid)
			}
			if resp.Version != tt.meta.Version {
				t.Errorf("version: got %d, want %d", resp.Version, tt.meta.Version)
			}
			if resp.URL != tt.meta.URL {
				t.Errorf("url: got %q, want %q", resp.URL, tt.meta.URL)
			}
		})
	}
}

func TestGetCardMeta_NotFound(t *testing.T) {
	server := NewServer(testLogger(), Deps{Cards: &mockCards{err: match.ErrNotFound}})

	w := doRequest(t, server, http.MethodGet, "/v1/matches/missing/card/meta", nil, "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusNotFound)
	}
}
