package seedevents

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pulse/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	recencyCaseCount   = 6
)

// Recency cases skew engagement toward the present so a handful of
// items end up genuinely trending.
const (
	caseLastHour = iota
	caseLastHourAgain
	caseToday
	caseTodayAgain
	caseThisWeek
	caseStale
)

var seedCategories = [][]string{
	{"general"},
	{"news"},
	{"sports"},
	{"entertainment"},
	{"news", "general"},
	{"sports", "general"},
	{"entertainment", "general"},
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomIndex(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

type seedItem struct {
	id         string
	tag        string
	categories []string
}

// generateEvents creates events spread over a fixed pool of items, with
// timestamps skewed toward the last hour.
func generateEvents(ctx context.Context, config *Config, stats *Stats) ([]Event, error) {
	logger.Get().Info(ctx, "generating events",
		logger.Int("numEvents", config.NumEvents),
		logger.Int("numItems", config.NumItems))

	items := make([]seedItem, config.NumItems)
	for i := range items {
		items[i] = seedItem{
			id:         uuid.New().String(),
			tag:        "topic-" + strconv.Itoa(i),
			categories: seedCategories[randomIndex(len(seedCategories))],
		}
	}

	now := time.Now().UTC()
	events := make([]Event, config.NumEvents)
	for i := range events {
		item := items[randomIndex(len(items))]
		events[i] = Event{
			EventID:    "seed_" + strconv.Itoa(i) + "_" + uuid.New().String(),
			ItemID:     item.id,
			Tag:        item.tag,
			Categories: item.categories,
			TS:         randomTimestamp(now).Format(time.RFC3339),
		}
	}

	stats.EventsGenerated = len(events)
	logger.Get().Info(ctx, "generated events successfully", logger.Int("count", len(events)))
	return events, nil
}

// randomTimestamp picks a moment within the scoring horizon, biased
// toward the current hour so recent activity dominates the scores.
func randomTimestamp(now time.Time) time.Time {
	switch randomIndex(recencyCaseCount) {
	case caseLastHour, caseLastHourAgain:
		return now.Add(-time.Duration(getRandomFloat() * float64(50 * time.Minute)))
	case caseToday, caseTodayAgain:
		return now.Add(-time.Duration(getRandomFloat() * float64(20 * time.Hour)))
	case caseThisWeek:
		return now.Add(-time.Duration(getRandomFloat() * float64(6 * 24 * time.Hour)))
	default:
		// Just inside the 7d horizon; contributes only to weekly counts.
		return now.Add(-6*24*time.Hour - time.Duration(getRandomFloat()*float64(20*time.Hour)))
	}
}
