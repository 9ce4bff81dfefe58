// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/dedupe"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue pushes an event for async processing. Returns false on backpressure.
	Enqueue(ctx context.Context, e model.ItemEvent) bool

	// Read operations expose trending data.
	TopTrending(ctx context.Context, cat category.Category, limit int) []types.TrendingItem
	PersonalizedTop(ctx context.Context, userID string, limit int) []types.TrendingItem

	// Operational endpoints.
	Recalculate(ctx context.Context, cat category.Category, itemIDs []string) (processed, failed int, err error)
	SyncCategory(ctx context.Context, cat category.Category) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	eventsHandler   *EventsHandler
	trendingHandler *TrendingHandler
	opsHandler      *OpsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		eventsHandler:   NewEventsHandler(deps),
		trendingHandler: NewTrendingHandler(deps, maxLimit),
		opsHandler:      NewOpsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("/trending", MetricsMiddleware(s.trendingHandler.HandleGetTrending, "trending"))
	mux.HandleFunc("/ops/recalculate", MetricsMiddleware(s.opsHandler.HandleRecalculate, "ops_recalculate"))
	mux.HandleFunc("/ops/sync", MetricsMiddleware(s.opsHandler.HandleSync, "ops_sync"))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// trendingResponse mirrors the OpenAPI schema for GET /trending.
type trendingResponse struct {
	Trending []types.TrendingItem `json:"trending"`
	Metadata trendingMetadata     `json:"metadata"`
}

type trendingMetadata struct {
	Count    int    `json:"count"`
	Limit    int    `json:"limit"`
	Category string `json:"category"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
