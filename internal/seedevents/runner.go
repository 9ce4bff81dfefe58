// Package seedevents generates realistic engagement traffic against a
// running service and reads back the trending lists it produced.
package seedevents

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/pulse/pkg/logger"
)

// How long to wait after submission so the debounce window fires and
// scores land in the ranked sets.
const settleDelay = 10 * time.Second

var readCategories = []string{"general", "news", "sports", "entertainment"}

// Run executes the complete seeding pass.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting seeding run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("events", config.NumEvents),
		logger.Int("items", config.NumItems),
		logger.Int("workers", config.Workers),
		logger.Int("topN", config.TopN))

	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	events, err := generateEvents(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("event generation failed: %w", err)
	}

	if err := submitEvents(ctx, config, events, stats); err != nil {
		return fmt.Errorf("event submission failed: %w", err)
	}

	logger.Get().Info(ctx, "waiting for recompute to settle")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settleDelay):
	}

	if err := showTrending(ctx, config); err != nil {
		return fmt.Errorf("trending retrieval failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)

	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()

	// Any 200 counts as healthy (the endpoint serves Prometheus metrics)
	if resp.StatusCode != statusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// showTrending fetches and logs each category's trending list.
func showTrending(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)

	for _, cat := range readCategories {
		url := config.BaseURL + "/trending?limit=" + strconv.Itoa(config.TopN) + "&category=" + cat
		resp, err := client.Get(ctx, url)
		if err != nil {
			return fmt.Errorf("fetch trending %s: %w", cat, err)
		}
		body, err := readResponseBody(resp)
		if err != nil {
			return fmt.Errorf("read trending %s: %w", cat, err)
		}
		if resp.StatusCode != statusOK {
			return fmt.Errorf("trending %s returned status %d", cat, resp.StatusCode)
		}

		var trending TrendingResponse
		if err := json.Unmarshal(body, &trending); err != nil {
			return fmt.Errorf("decode trending %s: %w", cat, err)
		}

		logger.Get().Info(ctx, "trending list",
			logger.String("category", cat),
			logger.Int("count", trending.Metadata.Count))
		if config.Verbose {
			for i, item := range trending.Trending {
				logger.Get().Info(ctx, "trending entry",
					logger.Int("rank", i+1),
					logger.String("tag", item.Tag),
					logger.Int64("totalPosts", item.TotalPosts),
					logger.Float64("score", item.Score))
			}
		}
	}
	return nil
}

// displayFinalStats prints the final run statistics.
func displayFinalStats(stats *Stats) {
	var eventsPerSecond float64
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsSuccessful", stats.EventsSuccessful),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
