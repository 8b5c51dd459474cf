package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ryanbastic/go-scorecard/internal/metrics"
	"github.com/ryanbastic/go-scorecard/internal/trigger"
)

// Deps holds the collaborators served over HTTP.
type Deps struct {
	Cards    CardService
	Matches  MatchStore
	Players  PlayerStore
	Avatars  AvatarService
	Triggers *trigger.Registry

	// Backends are pinged by the readiness probe.
	Backends map[string]Pinger

	// CardMaxAge is advertised in Cache-Control on card responses.
	CardMaxAge time.Duration

	// MaxUploadBytes caps profile photo request bodies.
	MaxUploadBytes int64
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(logger *slog.Logger, deps Deps) http.Handler {
	mux := chi.NewRouter()

	mux.Use(RequestID)
	mux.Use(Logging(logger))
	mux.Use(Recovery(logger))
	mux.Use(metrics.Metrics)

	api := humachi.New(mux, huma.DefaultConfig("Scorecard API", "1.0.0"))

	registerCardRoutes(api, NewCardHandler(deps.Cards, deps.CardMaxAge, logger))
	registerMatchRoutes(api, NewMatchHandler(deps.Matches, deps.Triggers, logger))
	registerPlayerRoutes(api, NewPlayerHandler(deps.Players, deps.Avatars, deps.MaxUploadBytes, logger))

	health := NewHealthHandler(deps.Backends, logger)
	mux.Get("/v1/livez", health.Livez)
	mux.Get("/v1/readyz", health.Readyz)
	mux.Get("/v1/health", health.Readyz)

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
