// Package model holds the event types shared between the ingestion
// surface, the queue, and the workers.
package model

import (
	"time"

	"github.com/okian/pulse/internal/domain/category"
)

// ItemEvent is one trend-bearing occurrence of an item, as delivered by
// the content-ingestion pipeline. Categories lists every partition the
// event counts toward; the personalized category is never listed (it is
// derived, not counted).
type ItemEvent struct {
	EventID    string
	ItemID     string
	Tag        string
	Categories []category.Category
	OccurredAt time.Time
}
