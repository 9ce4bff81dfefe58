// Package scoring computes the weighted trend score from window counts.
package scoring

import "github.com/okian/pulse/internal/domain/types"

// Window weights. Recent activity dominates: one event in the last hour
// is worth twenty in the last week.
const (
	HourWeight = 10.0
	DayWeight  = 2.0
	WeekWeight = 0.5
)

// Score returns the weighted trend score for a set of window counts.
// Pure and total: any combination of non-negative counts maps to
// exactly hour*10 + day*2 + week*0.5.
func Score(c types.WindowCounts) float64 {
	return float64(c.Hour)*HourWeight + float64(c.Day)*DayWeight + float64(c.Week)*WeekWeight
}
