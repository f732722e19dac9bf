// internal/nutrition/report.go
package nutrition

import (
	"math"
	"strings"
	"time"

	"meal-companion/internal/models"
)

const (
	RecNoImages        = "No images found for analysis"
	RecNoAnalyses      = "No successful analyses"
	RecTooFrequent     = "⚠️ Eating too frequently - consider spacing meals 3-4 hours apart"
	RecLongGaps        = "⚠️ Long gaps between meals - consider more regular eating schedule"
	RecGoodTiming      = "✅ Good meal timing - regular eating pattern detected"
	RecLowConsumption  = "⚠️ Low food consumption per meal - consider increasing portion sizes"
	RecHighConsumption = "⚠️ High food consumption per meal - consider portion control"
	RecModerate        = "✅ Moderate food consumption per meal - good portion control"
	RecVegetables      = "🥬 Consider increasing vegetable intake"

	mealGroupingNote = "Images within 1 hour grouped as same meal"
	reportConfidence = 0.85
	mostCommonLimit  = 5

	minIntervalHours   = 2.0
	maxIntervalHours   = 6.0
	minConsumption     = 20.0
	maxConsumption     = 80.0
	vegetableSessionPc = 0.3
)

const (
	CategoryVegetables = "vegetables"
	CategoryProtein    = "protein"
	CategoryCarbs      = "carbs"
)

// Order matters: the first matching category wins.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{CategoryVegetables, []string{"vegetable", "salad", "broccoli", "carrot"}},
	{CategoryProtein, []string{"meat", "chicken", "beef", "fish"}},
	{CategoryCarbs, []string{"bread", "pasta", "rice", "potato"}},
}

// Categorize returns the category for a food name, or "" when no keyword
// matches.
func Categorize(name string) string {
	lower := strings.ToLower(name)
	for _, c := range categoryKeywords {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.category
			}
		}
	}
	return ""
}

// EmptyReport is the zero report carrying a single explanatory
// recommendation.
func EmptyReport(patientID string, analysisType models.AnalysisType, reason string, now time.Time) models.Report {
	return models.Report{
		PatientID:    patientID,
		AnalysisType: analysisType,
		NutritionalSummary: models.NutritionalSummary{
			FoodCategories:  map[string]int{},
			MostCommonFoods: []string{},
		},
		Recommendations:   []string{reason},
		AnalysisTimestamp: now.Unix(),
	}
}

// GenerateReport groups analyses into meals and derives eating-pattern
// statistics and recommendations from them.
func GenerateReport(patientID string, analysisType models.AnalysisType, analyses []models.TimedAnalysis, now time.Time) models.Report {
	if len(analyses) == 0 {
		return EmptyReport(patientID, analysisType, RecNoAnalyses, now)
	}

	sessions := GroupByMealSession(analyses)

	var intervalSum float64
	for i := 1; i < len(sessions); i++ {
		intervalSum += float64(sessions[i].Timestamp-sessions[i-1].Timestamp) / 3600
	}
	avgInterval := safeDiv(intervalSum, float64(len(sessions)-1))

	var consumedSum float64
	totalCalories := 0
	var foods []string
	for _, s := range sessions {
		for _, a := range s.Analyses {
			consumedSum += a.Analysis.ConsumedSinceLast
			totalCalories += a.Analysis.EstimatedCalories
			for _, f := range a.Analysis.FoodItems {
				foods = append(foods, f.Name)
			}
		}
	}
	avgConsumed := safeDiv(consumedSum, float64(len(sessions)))

	categories := map[string]int{}
	for _, f := range foods {
		if c := Categorize(f); c != "" {
			categories[c]++
		}
	}

	var recs []string
	switch {
	case avgInterval < minIntervalHours:
		recs = append(recs, RecTooFrequent)
	case avgInterval > maxIntervalHours:
		recs = append(recs, RecLongGaps)
	default:
		recs = append(recs, RecGoodTiming)
	}
	switch {
	case avgConsumed < minConsumption:
		recs = append(recs, RecLowConsumption)
	case avgConsumed > maxConsumption:
		recs = append(recs, RecHighConsumption)
	default:
		recs = append(recs, RecModerate)
	}
	if float64(categories[CategoryVegetables]) < float64(len(sessions))*vegetableSessionPc {
		recs = append(recs, RecVegetables)
	}

	return models.Report{
		PatientID:           patientID,
		AnalysisType:        analysisType,
		TotalImagesAnalyzed: len(analyses),
		EatingPatterns: models.EatingPatterns{
			TotalMealSessions:        len(sessions),
			TotalImages:              len(analyses),
			AvgIntervalHours:         round2(avgInterval),
			RegularEating:            avgInterval >= minIntervalHours && avgInterval <= maxIntervalHours,
			AvgConsumptionPerSession: round2(avgConsumed),
			MealGroupingNote:         mealGroupingNote,
		},
		NutritionalSummary: models.NutritionalSummary{
			TotalCalories:         totalCalories,
			AvgCaloriesPerSession: round2(safeDiv(float64(totalCalories), float64(len(sessions)))),
			FoodCategories:        categories,
			MostCommonFoods:       firstDistinct(foods, mostCommonLimit),
		},
		Recommendations:   recs,
		ConfidenceScore:   reportConfidence,
		AnalysisTimestamp: now.Unix(),
	}
}

func firstDistinct(names []string, limit int) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if len(out) == limit {
			break
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func safeDiv(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
