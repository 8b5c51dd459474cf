package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-scorecard/internal/avatar"
	"github.com/ryanbastic/go-scorecard/internal/card"
	"github.com/ryanbastic/go-scorecard/internal/circuitbreaker"
	"github.com/ryanbastic/go-scorecard/internal/encoder"
	"github.com/ryanbastic/go-scorecard/internal/match"
	"github.com/ryanbastic/go-scorecard/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// toHTTPError maps a domain error to a huma status error. what names the
// missing resource in 404 messages.
func toHTTPError(logger *slog.Logger, what string, err error) error {
	switch {
	case errors.Is(err, match.ErrNotFound), errors.Is(err, storage.ErrPlayerNotFound):
		return huma.Error404NotFound(what + " not found")
	case errors.Is(err, match.ErrInvalidState):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, avatar.ErrInvalidImage):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, avatar.ErrTooLarge):
		return huma.Error413RequestEntityTooLarge(err.Error())
	case errors.Is(err, encoder.ErrBudgetExceeded) && !errors.Is(err, card.ErrEncodeFailure):
		return huma.Error422UnprocessableEntity("image cannot be encoded within the size budget")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", "error", err)
		return huma.Error504GatewayTimeout("timed out")
	case errors.Is(err, circuitbreaker.ErrCircuitOpen),
		errors.Is(err, card.ErrStorageFailure),
		errors.Is(err, storage.ErrVersionConflict):
		logger.Error("storage unavailable", "error", err)
		return huma.Error503ServiceUnavailable("storage unavailable")
	default:
		logger.Error("request failed", "error", err)
		return huma.Error500InternalServerError("internal error")
	}
}
