package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"stylegen/internal/domain"
	"stylegen/internal/routes"
	"stylegen/internal/upload"

	"github.com/rs/zerolog"
)

const defaultJSONMaxBytes int64 = 5 << 20

// Generator runs one generation for a route.
type Generator interface {
	Handle(ctx context.Context, route routes.Route, req domain.GenerationRequest) (*domain.GenerationResult, error)
}

// StyleSource resolves display names for the discovery endpoint.
type StyleSource interface {
	Lookup(id string) (domain.StyleDefinition, error)
}

type App struct {
	Service  Generator
	Styles   StyleSource
	Routes   routes.Table
	Ingestor *upload.Ingestor
	Logger   zerolog.Logger

	// Dev echoes error details to clients.
	Dev          bool
	JSONMaxBytes int64

	RateLimitMax    int
	RateLimitWindow time.Duration
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// error writes the stable error shape. Only *domain.Error messages reach
// clients; anything else becomes a generic 500.
func (a *App) error(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		resp := errorResponse{Error: "Internal server error"}
		if a.Dev {
			resp.Details = err.Error()
		}
		a.json(w, http.StatusInternalServerError, resp)
		return
	}
	resp := errorResponse{Error: de.Message}
	if a.Dev {
		resp.Details = de.Detail
		if resp.Details == "" && de.Err != nil {
			resp.Details = de.Err.Error()
		}
	}
	a.json(w, de.HTTPStatus(), resp)
}

func (a *App) jsonMaxBytes() int64 {
	if a.JSONMaxBytes > 0 {
		return a.JSONMaxBytes
	}
	return defaultJSONMaxBytes
}
