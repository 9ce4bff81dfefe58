// Package types contains common types used across the application.
package types

// WindowCounts holds the qualifying-event counts for an item over the
// three trailing horizons.
type WindowCounts struct {
	Hour int64 `json:"count_1h"`
	Day  int64 `json:"count_24h"`
	Week int64 `json:"count_7d"`
}

// ScoredItem is a raw ranked-set row: an item id with its trend score.
type ScoredItem struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// TrendingItem is the assembled read-path row.
type TrendingItem struct {
	Tag        string  `json:"tag"`
	TotalPosts int64   `json:"total_posts"`
	Score      float64 `json:"score"`
}
