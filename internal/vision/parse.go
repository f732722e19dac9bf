// internal/vision/parse.go
package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"meal-companion/internal/models"
)

var (
	errNoJSON        = errors.New("no JSON object in model reply")
	errMissingField  = errors.New("missing required field")
	errInvalidNumber = errors.New("invalid numeric field")
)

// ExtractJSON returns the span from the first '{' to the last '}' so prose
// around the object is tolerated.
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start == -1 {
		return "", false
	}
	end := strings.LastIndex(text, "}")
	if end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

type rawFood struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
}

type rawAnalysis struct {
	FoodItems         *[]rawFood `json:"food_items"`
	RemainingPercent  *float64   `json:"remaining_percent"`
	ConsumedSinceLast *float64   `json:"consumed_since_last"`
	EstimatedCalories *float64   `json:"estimated_calories"`
	Confidence        *float64   `json:"confidence"`
}

// ParseAnalysis extracts and validates a CaptureAnalysis from a raw model
// reply. Partial objects are rejected rather than zero-filled.
func ParseAnalysis(text string) (models.CaptureAnalysis, FailureReason, error) {
	body, ok := ExtractJSON(text)
	if !ok {
		return models.CaptureAnalysis{}, FailureNoJSON, errNoJSON
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return models.CaptureAnalysis{}, FailureMalformed, fmt.Errorf("decode analysis: %w", err)
	}

	analysis, err := raw.toAnalysis()
	if err != nil {
		return models.CaptureAnalysis{}, FailureMalformed, err
	}
	return analysis, FailureNone, nil
}

func (r rawAnalysis) toAnalysis() (models.CaptureAnalysis, error) {
	switch {
	case r.FoodItems == nil:
		return models.CaptureAnalysis{}, fmt.Errorf("%w: food_items", errMissingField)
	case r.RemainingPercent == nil:
		return models.CaptureAnalysis{}, fmt.Errorf("%w: remaining_percent", errMissingField)
	case r.ConsumedSinceLast == nil:
		return models.CaptureAnalysis{}, fmt.Errorf("%w: consumed_since_last", errMissingField)
	case r.EstimatedCalories == nil:
		return models.CaptureAnalysis{}, fmt.Errorf("%w: estimated_calories", errMissingField)
	case r.Confidence == nil:
		return models.CaptureAnalysis{}, fmt.Errorf("%w: confidence", errMissingField)
	}

	calories := *r.EstimatedCalories
	if calories < 0 || calories != math.Trunc(calories) || calories > math.MaxInt32 {
		return models.CaptureAnalysis{}, fmt.Errorf("%w: estimated_calories=%v", errInvalidNumber, calories)
	}

	items := make([]models.FoodItem, 0, len(*r.FoodItems))
	for i, f := range *r.FoodItems {
		if f.Name == nil {
			return models.CaptureAnalysis{}, fmt.Errorf("%w: food_items[%d].name", errMissingField, i)
		}
		item := models.FoodItem{Name: *f.Name}
		if f.Category != nil {
			item.Category = *f.Category
		}
		items = append(items, item)
	}

	return models.CaptureAnalysis{
		FoodItems:         items,
		RemainingPercent:  *r.RemainingPercent,
		ConsumedSinceLast: *r.ConsumedSinceLast,
		EstimatedCalories: int(calories),
		Confidence:        *r.Confidence,
	}, nil
}
