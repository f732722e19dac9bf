// internal/models/report.go
package models

type AnalysisType string

const (
	AnalysisComprehensive  AnalysisType = "comprehensive"
	AnalysisEatingPatterns AnalysisType = "eating_patterns"
	AnalysisNutritional    AnalysisType = "nutritional"
)

// Valid reports whether t is one of the known analysis types.
func (t AnalysisType) Valid() bool {
	switch t {
	case AnalysisComprehensive, AnalysisEatingPatterns, AnalysisNutritional:
		return true
	}
	return false
}

type AnalysisRequest struct {
	PatientID      string       `json:"patient_id"`
	DateRangeStart string       `json:"date_range_start,omitempty"` // YYYY-MM-DD
	DateRangeEnd   string       `json:"date_range_end,omitempty"`   // YYYY-MM-DD
	AnalysisType   AnalysisType `json:"analysis_type,omitempty"`
}

type EatingPatterns struct {
	TotalMealSessions        int     `json:"total_meal_sessions"`
	TotalImages              int     `json:"total_images"`
	AvgIntervalHours         float64 `json:"avg_interval_hours"`
	RegularEating            bool    `json:"regular_eating"`
	AvgConsumptionPerSession float64 `json:"avg_consumption_per_session"`
	MealGroupingNote         string  `json:"meal_grouping_note,omitempty"`
}

type NutritionalSummary struct {
	TotalCalories         int            `json:"total_calories"`
	AvgCaloriesPerSession float64        `json:"avg_calories_per_session"`
	FoodCategories        map[string]int `json:"food_categories"`
	MostCommonFoods       []string       `json:"most_common_foods"`
}

// Report aggregates a patient's stored captures for the clinician dashboard.
type Report struct {
	PatientID           string             `json:"patient_id"`
	AnalysisType        AnalysisType       `json:"analysis_type"`
	TotalImagesAnalyzed int                `json:"total_images_analyzed"`
	EatingPatterns      EatingPatterns     `json:"eating_patterns"`
	NutritionalSummary  NutritionalSummary `json:"nutritional_summary"`
	Recommendations     []string           `json:"recommendations"`
	ConfidenceScore     float64            `json:"confidence_score"`
	AnalysisTimestamp   int64              `json:"analysis_timestamp"`
}
