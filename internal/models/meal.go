// internal/models/meal.go
package models

import "time"

type FoodItem struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// CaptureAnalysis is the structured estimate produced for one plate photo.
type CaptureAnalysis struct {
	FoodItems         []FoodItem `json:"food_items"`
	RemainingPercent  float64    `json:"remaining_percent"`
	ConsumedSinceLast float64    `json:"consumed_since_last"`
	EstimatedCalories int        `json:"estimated_calories"`
	Confidence        float64    `json:"confidence"`
}

// TimedAnalysis tags an analysis with the unix time (seconds) of its capture.
type TimedAnalysis struct {
	Timestamp int64           `json:"timestamp"`
	SessionID string          `json:"session_id"`
	Analysis  CaptureAnalysis `json:"analysis"`
}

// DepthSummary is the coarse depth grid sampled by the headset.
type DepthSummary struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Values []float64 `json:"depth_values"`
}

// DefaultDepth is used whenever a capture arrives without depth samples.
func DefaultDepth() DepthSummary {
	pattern := []float64{1.2, 1.5, 1.3, 1.8, 2.1}
	values := make([]float64, 0, len(pattern)*100)
	for range 100 {
		values = append(values, pattern...)
	}
	return DepthSummary{Width: 64, Height: 64, Values: values}
}

type CaptureRequest struct {
	SessionID   string        `json:"session_id"`
	UserID      string        `json:"user_id"`
	FrameID     string        `json:"frame_id,omitempty"`
	ImageBase64 string        `json:"image_base64"`
	Depth       *DepthSummary `json:"depth_cache,omitempty"`
	Timestamp   int64         `json:"timestamp"` // milliseconds since epoch
}

// CaptureResponse drives the companion animation on the headset.
type CaptureResponse struct {
	SessionID   string          `json:"session_id"`
	Happiness   int             `json:"happiness"`
	Activity    int             `json:"activity"`
	VisualState string          `json:"visual_state"`
	Message     string          `json:"message"`
	Progress    float64         `json:"progress"`
	Celebration bool            `json:"celebration"`
	Analysis    CaptureAnalysis `json:"analysis"`
}

// Session is the running consumption state for one tracking episode.
type Session struct {
	ID            string    `json:"session_id"`
	TotalConsumed float64   `json:"total_consumed"`
	Captures      int       `json:"captures"`
	StartTime     time.Time `json:"start_time"`
}

// StoredImage mirrors a meal_images row.
type StoredImage struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	FrameID    string    `json:"frame_id"`
	UserID     string    `json:"user_id"`
	FilePath   string    `json:"file_path"`
	URL        string    `json:"url"`
	UploadedAt int64     `json:"uploaded_at"`
	CreatedAt  time.Time `json:"created_at"`
}
