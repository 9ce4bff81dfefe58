// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/pulse/internal/domain/category"
)

// OpsDependencies defines the interface for operational endpoints.
type OpsDependencies interface {
	Recalculate(ctx context.Context, cat category.Category, itemIDs []string) (processed, failed int, err error)
	SyncCategory(ctx context.Context, cat category.Category) error
}

// OpsHandler handles operational requests: ad-hoc recomputes and
// durable sync passes.
type OpsHandler struct {
	deps OpsDependencies
}

// NewOpsHandler creates a new ops handler.
func NewOpsHandler(deps OpsDependencies) *OpsHandler {
	return &OpsHandler{deps: deps}
}

type recalculateRequest struct {
	ItemIDs []string `json:"item_ids"`
}

type recalculateResponse struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// HandleRecalculate handles POST /ops/recalculate?category=C requests.
// With item_ids in the body only those items are rescored; without, the
// whole category is rebuilt from the event log.
func (h *OpsHandler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	const op = "api.recalculate"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	cat, err := opsCategory(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var req recalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	processed, failed, err := h.deps.Recalculate(r.Context(), cat, req.ItemIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, recalculateResponse{Processed: processed, Failed: failed})
}

// HandleSync handles POST /ops/sync?category=C requests.
func (h *OpsHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	const op = "api.sync"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	cat, err := opsCategory(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if err := h.deps.SyncCategory(r.Context(), cat); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// opsCategory parses the category query parameter. The personalized
// category has no ranked set of its own and is rejected.
func opsCategory(r *http.Request) (category.Category, error) {
	cat, err := category.Parse(r.URL.Query().Get("category"))
	if err != nil {
		return "", err
	}
	if cat == category.Personalized {
		return "", errors.New("personalized has no ranked set")
	}
	return cat, nil
}
