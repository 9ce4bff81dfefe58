package seedevents

import "time"

// Config holds configuration for the seeding run.
type Config struct {
	BaseURL   string        // Base URL of the service
	NumEvents int           // Number of events to generate
	NumItems  int           // Number of distinct items to spread events over
	TopN      int           // Number of trending entries to fetch afterwards
	Workers   int           // Number of concurrent workers
	Timeout   time.Duration // HTTP request timeout
	Verbose   bool          // Enable verbose logging
}

// Event mirrors the POST /events request schema.
type Event struct {
	EventID    string   `json:"event_id"`
	ItemID     string   `json:"item_id"`
	Tag        string   `json:"tag"`
	Categories []string `json:"categories"`
	TS         string   `json:"ts"`
}

// TrendingItem mirrors one entry of the GET /trending response.
type TrendingItem struct {
	Tag        string  `json:"tag"`
	TotalPosts int64   `json:"total_posts"`
	Score      float64 `json:"score"`
}

// TrendingResponse mirrors the GET /trending response schema.
type TrendingResponse struct {
	Trending []TrendingItem `json:"trending"`
	Metadata struct {
		Count    int    `json:"count"`
		Limit    int    `json:"limit"`
		Category string `json:"category"`
	} `json:"metadata"`
}

// AckResponse represents the response from event submission.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated  int
	EventsSubmitted  int
	EventsSuccessful int
	EventsDuplicate  int
	EventsFailed     int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
