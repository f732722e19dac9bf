// internal/nutrition/group.go

// Package nutrition aggregates a patient's stored captures into meal
// sessions and a clinician-facing report.
package nutrition

import (
	"slices"

	"meal-companion/internal/models"
)

// MealGap is the largest distance, in seconds, from a meal's first capture
// at which a capture still belongs to that meal.
const MealGap int64 = 3600

// MealSession is one eating episode. Timestamp is the anchor: the first
// capture's time.
type MealSession struct {
	Timestamp int64
	Analyses  []models.TimedAnalysis
}

// GroupByMealSession sorts records by time and splits them into meals. A
// record joins the current meal when it is within MealGap of the meal's
// anchor; the anchor never advances within a meal.
func GroupByMealSession(records []models.TimedAnalysis) []MealSession {
	if len(records) == 0 {
		return []MealSession{}
	}

	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b models.TimedAnalysis) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})

	var sessions []MealSession
	current := MealSession{Timestamp: sorted[0].Timestamp, Analyses: []models.TimedAnalysis{sorted[0]}}
	for _, rec := range sorted[1:] {
		if rec.Timestamp-current.Timestamp <= MealGap {
			current.Analyses = append(current.Analyses, rec)
			continue
		}
		sessions = append(sessions, current)
		current = MealSession{Timestamp: rec.Timestamp, Analyses: []models.TimedAnalysis{rec}}
	}
	return append(sessions, current)
}
