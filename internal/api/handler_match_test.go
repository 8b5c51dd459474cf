package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ryanbastic/go-scorecard/internal/card"
	"github.com/ryanbastic/go-scorecard/internal/match"
	"github.com/ryanbastic/go-scorecard/internal/storage"
	"github.com/ryanbastic/go-scorecard/internal/trigger"
)

// --- Mock MatchStore ---

type mockMatchStore struct {
	mu        sync.Mutex
	matches   map[string]*match.Match
	players   map[string]*match.Player
	createErr error
	updateErr error
	created   *storage.CreateMatchRequest
	updates   int
	loads     int
}

func newMockMatchStore() *mockMatchStore {
	return &mockMatchStore{
		matches: make(map[string]*match.Match),
		players: make(map[string]*match.Player),
	}
}

func (m *mockMatchStore) CreateMatch(_ context.Context, req storage.CreateMatchRequest) (*match.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = &req
	out := &match.Match{ID: "m-new", Title: req.Title, PlayedAt: req.PlayedAt, Scores: req.Scores}
	for _, p := range req.Participants {
		out.Participants = append(out.Participants, match.Participant{PlayerID: p.PlayerID, Side: p.Side})
	}
	m.matches[out.ID] = out
	return out, nil
}

func (m *mockMatchStore) LoadMatch(_ context.Context, matchID string) (*match.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	mt, ok := m.matches[matchID]
	if !ok {
		return nil, match.ErrNotFound
	}
	cp := *mt
	return &cp, nil
}

func (m *mockMatchStore) UpdateScores(_ context.Context, matchID string, scores []match.SetScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	mt, ok := m.matches[matchID]
	if !ok {
		return match.ErrNotFound
	}
	mt.Scores = scores
	mt.ScoreRevision++
	return nil
}

func (m *mockMatchStore) ClearCardURL(_ context.Context, matchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.matches[matchID]
	if !ok {
		return match.ErrNotFound
	}
	mt.Card.URL = ""
	return nil
}

func (m *mockMatchStore) CreatePlayer(_ context.Context, displayName string) (*match.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &match.Player{ID: "p-new", DisplayName: displayName}
	m.players[p.ID] = p
	return p, nil
}

func (m *mockMatchStore) GetPlayer(_ context.Context, playerID string) (*match.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return nil, storage.ErrPlayerNotFound
	}
	cp := *p
	return &cp, nil
}

func cachedMatch() *match.Match {
	generated := time.Date(2026, 5, 17, 12, 0, 0, 0, time.UTC)
	return &match.Match{
		ID:     "m1",
		Title:  "Club final",
		Scores: []match.SetScore{{A: 6, B: 4}},
		Participants: []match.Participant{
			{PlayerID: "p1", DisplayName: "Alice", Side: 0},
			{PlayerID: "p2", DisplayName: "Bruno", Side: 1},
		},
		Card: match.CardMeta{URL: "memory://artifacts/cards/m1/v2.jpg", Version: 2, GeneratedAt: &generated},
	}
}

func TestCreateMatch_Success(t *testing.T) {
	store := newMockMatchStore()
	server := NewServer(testLogger(), Deps{Matches: store})

	w := doJSON(t, server, http.MethodPost, "/v1/matches", CreateMatchBody{
		Title:  "Club final",
		Scores: []match.SetScore{{A: 6, B: 4}, {A: 6, B: 3}},
		Participants: []ParticipantBody{
			{PlayerID: "p1", Side: 0},
			{PlayerID: "p2", Side: 1},
		},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d\nbody: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var resp match.Match
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "m-new" || len(resp.Participants) != 2 {
		t.Errorf("response: %+v", resp)
	}
	if store.created == nil || store.created.Participants[1].Side != 1 {
		t.Errorf("store request: %+v", store.created)
	}
}

func TestCreateMatch_Validation(t *testing.T) {
	tests := []struct {
		name string
		body CreateMatchBody
	}{
		{"negative games", CreateMatchBody{
			Scores:       []match.SetScore{{A: -1, B: 6}},
			Participants: []ParticipantBody{{PlayerID: "p1", Side: 0}, {PlayerID: "p2", Side: 1}},
		}},
		{"bad side", CreateMatchBody{
			Scores:       []match.SetScore{{A: 6, B: 1}},
			Participants: []ParticipantBody{{PlayerID: "p1", Side: 0}, {PlayerID: "p2", Side: 2}},
		}},
		{"player seated twice", CreateMatchBody{
			Scores:       []match.SetScore{{A: 6, B: 1}},
			Participants: []ParticipantBody{{PlayerID: "p1", Side: 0}, {PlayerID: "p1", Side: 1}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockMatchStore()
			server := NewServer(testLogger(), Deps{Matches: store})

			w := doJSON(t, server, http.MethodPost, "/v1/matches", tt.body)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d\nbody: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
			if store.created != nil {
				t.Error("invalid match reached the store")
			}
		})
	}
}

func TestCreateMatch_UnknownPlayer(t *testing.T) {
	store := newMockMatchStore()
	store.createErr = storage.ErrPlayerNotFound
	server := NewServer(testLogger(), Deps{Matches: store})

	w := doJSON(t, server, http.MethodPost, "/v1/matches", CreateMatchBody{
		Scores:       []match.SetScore{{A: 6, B: 4}},
		Participants: []ParticipantBody{{PlayerID: "p1", Side: 0}, {PlayerID: "ghost", Side: 1}},
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestGetMatch(t *testing.T) {
	store := newMockMatchStore()
	store.matches["m1"] = cachedMatch()
	server := NewServer(testLogger(), Deps{Matches: store})

	w := doRequest(t, server, http.MethodGet, "/v1/matches/m1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	var resp match.Match
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Card.Version != 2 {
		t.Errorf("card version: got %d, want 2", resp.Card.Version)
	}

	w = doRequest(t, server, http.MethodGet, "/v1/matches/missing", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing match status: got %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateScore_InvalidatesBeforeResponding(t *testing.T) {
	store := newMockMatchStore()
	store.matches["m1"] = cachedMatch()
	inv := card.NewInvalidator(store, testLogger())
	server := NewServer(testLogger(), Deps{
		Matches:  store,
		Triggers: trigger.NewRegistry(inv.Registration()),
	})

	w := doJSON(t, server, http.MethodPut, "/v1/matches/m1/score", UpdateScoreBody{
		Scores: []match.SetScore{{A: 4, B: 6}, {A: 6, B: 2}},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	var resp match.Match
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Card.URL != "" {
		t.Errorf("card url: got %q, want cleared", resp.Card.URL)
	}
	if resp.Card.Version != 2 {
		t.Errorf("card version: got %d, want 2 (unchanged)", resp.Card.Version)
	}
	if len(resp.Scores) != 2 || resp.Scores[0].A != 4 {
		t.Errorf("scores: got %+v", resp.Scores)
	}
	if resp.ScoreRevision != 1 {
		t.Errorf("score revision: got %d, want 1", resp.ScoreRevision)
	}
	if store.updates != 1 || store.loads != 1 {
		t.Errorf("store calls: %d updates, %d loads, want 1 each", store.updates, store.loads)
	}
}

func TestUpdateScore_HandlerFailure(t *testing.T) {
	store := newMockMatchStore()
	store.matches["m1"] = cachedMatch()
	failing := func(ctx context.Context, matchID string) error { return errors.New("db down") }
	server := NewServer(testLogger(), Deps{
		Matches:  store,
		Triggers: trigger.NewRegistry(trigger.Registration{Event: trigger.ScoreUpdated, Handler: failing}),
	})

	w := doJSON(t, server, http.MethodPut, "/v1/matches/m1/score", UpdateScoreBody{
		Scores: []match.SetScore{{A: 4, B: 6}},
	})

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestUpdateScore_Errors(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		scores    []match.SetScore
		updateErr error
		want      int
	}{
		{"unknown match", "/v1/matches/missing/score", []match.SetScore{{A: 6, B: 0}}, nil, http.StatusNotFound},
		{"half tiebreak", "/v1/matches/m1/score", []match.SetScore{{A: 7, B: 6, TiebreakA: new(int)}}, nil, http.StatusBadRequest},
		{"store failure", "/v1/matches/m1/score", []match.SetScore{{A: 6, B: 0}}, errors.New("conn reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockMatchStore()
			store.matches["m1"] = cachedMatch()
			store.updateErr = tt.updateErr
			fired := 0
			server := NewServer(testLogger(), Deps{
				Matches: store,
				Triggers: trigger.NewRegistry(trigger.Registration{
					Event:   trigger.ScoreUpdated,
					Handler: func(ctx context.Context, matchID string) error { fired++; return nil },
				}),
			})

			w := doJSON(t, server, http.MethodPut, tt.path, UpdateScoreBody{Scores: tt.scores})

			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d\nbody: %s", w.Code, tt.want, w.Body.String())
			}
			if fired != 0 {
				t.Errorf("handlers fired %d times on a failed update", fired)
			}
		})
	}
}
