// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/dedupe"
	"github.com/okian/pulse/internal/domain/model"
)

// EventDependencies defines the interface for event processing dependencies.
type EventDependencies interface {
	dedupe.Deduper
	Enqueue(ctx context.Context, e model.ItemEvent) bool
}

// eventRequest mirrors the OpenAPI schema for POST /events.
type eventRequest struct {
	EventID    string   `json:"event_id"`
	ItemID     string   `json:"item_id"`
	Tag        string   `json:"tag"`
	Categories []string `json:"categories"`
	TS         string   `json:"ts"`
}

func (e eventRequest) validate() ([]category.Category, time.Time, error) {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return nil, time.Time{}, errors.New("missing event_id")
	case strings.TrimSpace(e.ItemID) == "":
		return nil, time.Time{}, errors.New("missing item_id")
	case len(e.Categories) == 0:
		return nil, time.Time{}, errors.New("missing categories")
	case strings.TrimSpace(e.TS) == "":
		return nil, time.Time{}, errors.New("missing ts")
	}

	ts, err := time.Parse(time.RFC3339, e.TS)
	if err != nil {
		return nil, time.Time{}, errors.New("invalid ts; must be RFC3339")
	}

	cats := make([]category.Category, 0, len(e.Categories))
	for _, raw := range e.Categories {
		cat, err := category.Parse(raw)
		if err != nil {
			return nil, time.Time{}, err
		}
		if cat == category.Personalized {
			return nil, time.Time{}, errors.New("personalized is derived, not ingested")
		}
		cats = append(cats, cat)
	}
	return cats, ts, nil
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	cats, ts, err := req.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	// Idempotency check - mark as seen first
	if h.deps.SeenAndRecord(r.Context(), req.EventID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	event := model.ItemEvent{
		EventID:    req.EventID,
		ItemID:     req.ItemID,
		Tag:        req.Tag,
		Categories: cats,
		OccurredAt: ts,
	}

	// Try to enqueue for async processing
	if ok := h.deps.Enqueue(r.Context(), event); !ok {
		// Rollback the "seen" status since enqueue failed
		h.deps.Unrecord(r.Context(), req.EventID)
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}
