// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/types"
)

// Default page size when the limit query parameter is omitted.
const defaultTrendingLimit = 10

// TrendingDependencies defines the interface for trending reads.
type TrendingDependencies interface {
	TopTrending(ctx context.Context, cat category.Category, limit int) []types.TrendingItem
	PersonalizedTop(ctx context.Context, userID string, limit int) []types.TrendingItem
}

// TrendingHandler handles trending list requests.
type TrendingHandler struct {
	deps     TrendingDependencies
	maxLimit int
}

// NewTrendingHandler creates a new trending handler.
func NewTrendingHandler(deps TrendingDependencies, maxLimit int) *TrendingHandler {
	return &TrendingHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetTrending handles GET /trending?limit=N&category=C requests.
// The personalized category additionally reads the X-User-ID header; a
// missing user id degrades to the general list rather than failing.
func (h *TrendingHandler) HandleGetTrending(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_trending"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	limit := defaultTrendingLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}

	cat := category.General
	if catStr := r.URL.Query().Get("category"); catStr != "" {
		parsed, err := category.Parse(catStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		cat = parsed
	}

	var items []types.TrendingItem
	if cat == category.Personalized {
		items = h.deps.PersonalizedTop(r.Context(), r.Header.Get("X-User-ID"), limit)
	} else {
		items = h.deps.TopTrending(r.Context(), cat, limit)
	}

	writeJSON(w, http.StatusOK, trendingResponse{
		Trending: items,
		Metadata: trendingMetadata{
			Count:    len(items),
			Limit:    limit,
			Category: string(cat),
		},
	})
}
