package nutrition_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"meal-companion/internal/models"
	"meal-companion/internal/nutrition"
	"meal-companion/internal/storage"
	"meal-companion/internal/vision"
)

var reportTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func timed(ts int64, consumed float64, calories int, foods ...string) models.TimedAnalysis {
	items := make([]models.FoodItem, 0, len(foods))
	for _, f := range foods {
		items = append(items, models.FoodItem{Name: f})
	}
	return models.TimedAnalysis{
		Timestamp: ts,
		SessionID: "s",
		Analysis: models.CaptureAnalysis{
			FoodItems:         items,
			ConsumedSinceLast: consumed,
			EstimatedCalories: calories,
			Confidence:        0.9,
		},
	}
}

func timestamps(s nutrition.MealSession) []int64 {
	var out []int64
	for _, a := range s.Analyses {
		out = append(out, a.Timestamp)
	}
	return out
}

func TestGroupByMealSession(t *testing.T) {
	tests := []struct {
		name string
		in   []int64
		want [][]int64
	}{
		{"empty", nil, [][]int64{}},
		{"single", []int64{500}, [][]int64{{500}}},
		{"two meals", []int64{0, 1800, 7200, 7300}, [][]int64{{0, 1800}, {7200, 7300}}},
		{"unsorted input", []int64{7300, 0, 7200, 1800}, [][]int64{{0, 1800}, {7200, 7300}}},
		{"exactly one hour joins", []int64{0, 3600}, [][]int64{{0, 3600}}},
		{"anchor does not advance", []int64{0, 3000, 3700}, [][]int64{{0, 3000}, {3700}}},
		{"ties", []int64{10, 10, 10}, [][]int64{{10, 10, 10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in []models.TimedAnalysis
			for _, ts := range tt.in {
				in = append(in, timed(ts, 0, 0))
			}
			got := nutrition.GroupByMealSession(in)
			if got == nil {
				t.Fatal("GroupByMealSession() = nil, want non-nil slice")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d groups, want %d", len(got), len(tt.want))
			}
			for i, g := range got {
				if !slices.Equal(timestamps(g), tt.want[i]) {
					t.Errorf("group %d = %v, want %v", i, timestamps(g), tt.want[i])
				}
				if g.Timestamp != tt.want[i][0] {
					t.Errorf("group %d anchor = %d, want %d", i, g.Timestamp, tt.want[i][0])
				}
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Steamed Broccoli", "vegetables"},
		{"caesar SALAD", "vegetables"},
		{"Grilled chicken", "protein"},
		{"fish and rice", "protein"},
		{"rice", "carbs"},
		{"Mashed Potatoes", "carbs"},
		{"carrot cake with bread", "vegetables"},
		{"ice cream", ""},
	}
	for _, tt := range tests {
		if got := nutrition.Categorize(tt.name); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestGenerateReport_NoAnalyses(t *testing.T) {
	r := nutrition.GenerateReport("p1", models.AnalysisComprehensive, nil, reportTime)
	if r.TotalImagesAnalyzed != 0 || r.ConfidenceScore != 0 {
		t.Errorf("report = %+v", r)
	}
	if !slices.Equal(r.Recommendations, []string{nutrition.RecNoAnalyses}) {
		t.Errorf("Recommendations = %v", r.Recommendations)
	}
	if r.AnalysisTimestamp != reportTime.Unix() || r.PatientID != "p1" {
		t.Errorf("report header = %+v", r)
	}
}

func TestGenerateReport_TwoMeals(t *testing.T) {
	analyses := []models.TimedAnalysis{
		timed(0, 20, 200, "rice", "Broccoli"),
		timed(1800, 15, 100, "rice"),
		timed(4*3600, 30, 300, "chicken", "bread", "apple", "tea"),
	}
	r := nutrition.GenerateReport("p1", models.AnalysisEatingPatterns, analyses, reportTime)

	ep := r.EatingPatterns
	if ep.TotalMealSessions != 2 || ep.TotalImages != 3 || r.TotalImagesAnalyzed != 3 {
		t.Errorf("counts = %+v", ep)
	}
	if ep.AvgIntervalHours != 4 || !ep.RegularEating {
		t.Errorf("interval = %v regular = %v, want 4 true", ep.AvgIntervalHours, ep.RegularEating)
	}
	if ep.AvgConsumptionPerSession != 32.5 {
		t.Errorf("AvgConsumptionPerSession = %v, want 32.5", ep.AvgConsumptionPerSession)
	}
	if ep.MealGroupingNote == "" {
		t.Error("MealGroupingNote is empty")
	}

	ns := r.NutritionalSummary
	if ns.TotalCalories != 600 || ns.AvgCaloriesPerSession != 300 {
		t.Errorf("calories = %d avg %v", ns.TotalCalories, ns.AvgCaloriesPerSession)
	}
	wantCats := map[string]int{"carbs": 3, "vegetables": 1, "protein": 1}
	for k, v := range wantCats {
		if ns.FoodCategories[k] != v {
			t.Errorf("FoodCategories[%s] = %d, want %d", k, ns.FoodCategories[k], v)
		}
	}
	if !slices.Equal(ns.MostCommonFoods, []string{"rice", "Broccoli", "chicken", "bread", "apple"}) {
		t.Errorf("MostCommonFoods = %v", ns.MostCommonFoods)
	}

	want := []string{nutrition.RecGoodTiming, nutrition.RecModerate}
	if !slices.Equal(r.Recommendations, want) {
		t.Errorf("Recommendations = %v, want %v", r.Recommendations, want)
	}
	if r.ConfidenceScore != 0.85 || r.AnalysisType != models.AnalysisEatingPatterns {
		t.Errorf("report = %+v", r)
	}
}

func TestGenerateReport_Thresholds(t *testing.T) {
	const h = 3600
	tests := []struct {
		name       string
		gapHours   float64
		consumed   float64
		wantTiming string
		wantAmount string
	}{
		{"interval exactly 2h", 2, 50, nutrition.RecGoodTiming, nutrition.RecModerate},
		{"interval exactly 6h", 6, 50, nutrition.RecGoodTiming, nutrition.RecModerate},
		{"interval under 2h", 1.5, 50, nutrition.RecTooFrequent, nutrition.RecModerate},
		{"interval over 6h", 6.5, 50, nutrition.RecLongGaps, nutrition.RecModerate},
		{"consumption exactly 20", 3, 20, nutrition.RecGoodTiming, nutrition.RecModerate},
		{"consumption exactly 80", 3, 80, nutrition.RecGoodTiming, nutrition.RecModerate},
		{"consumption under 20", 3, 19.99, nutrition.RecGoodTiming, nutrition.RecLowConsumption},
		{"consumption over 80", 3, 80.01, nutrition.RecGoodTiming, nutrition.RecHighConsumption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gap := int64(tt.gapHours * h)
			analyses := []models.TimedAnalysis{
				timed(0, tt.consumed, 0, "salad"),
				timed(gap, tt.consumed, 0, "salad"),
			}
			r := nutrition.GenerateReport("p", models.AnalysisComprehensive, analyses, reportTime)
			want := []string{tt.wantTiming, tt.wantAmount}
			if !slices.Equal(r.Recommendations, want) {
				t.Errorf("Recommendations = %v, want %v", r.Recommendations, want)
			}
			wantRegular := tt.wantTiming == nutrition.RecGoodTiming
			if r.EatingPatterns.RegularEating != wantRegular {
				t.Errorf("RegularEating = %v, want %v", r.EatingPatterns.RegularEating, wantRegular)
			}
		})
	}
}

func TestGenerateReport_SingleSessionCountsAsFrequent(t *testing.T) {
	r := nutrition.GenerateReport("p", models.AnalysisComprehensive, []models.TimedAnalysis{timed(0, 50, 10, "broccoli")}, reportTime)
	if r.EatingPatterns.AvgIntervalHours != 0 {
		t.Errorf("AvgIntervalHours = %v, want 0", r.EatingPatterns.AvgIntervalHours)
	}
	if r.Recommendations[0] != nutrition.RecTooFrequent {
		t.Errorf("Recommendations = %v", r.Recommendations)
	}
}

func TestGenerateReport_VegetableRule(t *testing.T) {
	// Four meals need at least 1.2 vegetable items to avoid the suggestion.
	meals := func(foods ...[]string) []models.TimedAnalysis {
		var out []models.TimedAnalysis
		for i, f := range foods {
			out = append(out, timed(int64(i)*4*3600, 50, 0, f...))
		}
		return out
	}

	one := nutrition.GenerateReport("p", models.AnalysisNutritional,
		meals([]string{"salad"}, []string{"rice"}, []string{"rice"}, []string{"rice"}), reportTime)
	if !slices.Contains(one.Recommendations, nutrition.RecVegetables) {
		t.Errorf("1 vegetable over 4 meals: Recommendations = %v, want vegetable suggestion", one.Recommendations)
	}

	two := nutrition.GenerateReport("p", models.AnalysisNutritional,
		meals([]string{"salad"}, []string{"carrot"}, []string{"rice"}, []string{"rice"}), reportTime)
	if slices.Contains(two.Recommendations, nutrition.RecVegetables) {
		t.Errorf("2 vegetables over 4 meals: Recommendations = %v, want no vegetable suggestion", two.Recommendations)
	}
}

type fakeImages struct {
	records []models.StoredImage
	err     error
	got     storage.ImageFilter
}

func (f *fakeImages) ListImages(_ context.Context, filter storage.ImageFilter) ([]models.StoredImage, error) {
	f.got = filter
	return f.records, f.err
}

type fakeFetcher map[string][]byte

func (f fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f[url]
	if !ok {
		return nil, fmt.Errorf("404 %s", url)
	}
	return data, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func newService(t *testing.T, images nutrition.ImageLister, fetcher nutrition.Fetcher, calls *atomic.Int32) *nutrition.Service {
	t.Helper()
	model := vision.ModelFunc(func(context.Context, vision.Image, string) (string, error) {
		calls.Add(1)
		return `{"food_items":[{"name":"pasta","category":"carb"}],"remaining_percent":40,"consumed_since_last":60,"estimated_calories":400,"confidence":0.8}`, nil
	})
	analyzer := vision.NewAnalyzer(model, 0, nil)
	svc := nutrition.NewService(images, fetcher, analyzer, nutrition.ServiceConfig{Concurrency: 2}, nil)
	return svc.WithClock(func() time.Time { return reportTime })
}

func TestService_Analyze(t *testing.T) {
	img := pngBytes(t)
	images := &fakeImages{records: []models.StoredImage{
		{SessionID: "a", URL: "u1", UploadedAt: 1000},
		{SessionID: "a", URL: "u2", UploadedAt: 2000},
		{SessionID: "b", URL: "missing", UploadedAt: 3000},
		{SessionID: "b", URL: "garbage", UploadedAt: 4000},
		{SessionID: "c", URL: "u3", UploadedAt: 1000 + 5*3600},
	}}
	fetcher := fakeFetcher{"u1": img, "u2": img, "u3": img, "garbage": []byte("not an image")}

	var calls atomic.Int32
	svc := newService(t, images, fetcher, &calls)

	r, err := svc.Analyze(context.Background(), models.AnalysisRequest{
		PatientID:      "patient-7",
		DateRangeStart: "2026-03-01",
		DateRangeEnd:   "2026-03-01",
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if calls.Load() != 3 {
		t.Errorf("model calls = %d, want 3", calls.Load())
	}
	if r.TotalImagesAnalyzed != 3 || r.EatingPatterns.TotalMealSessions != 2 {
		t.Errorf("report = %+v", r.EatingPatterns)
	}
	if r.AnalysisType != models.AnalysisComprehensive {
		t.Errorf("AnalysisType = %q, want default comprehensive", r.AnalysisType)
	}
	if r.AnalysisTimestamp != reportTime.Unix() {
		t.Errorf("AnalysisTimestamp = %d", r.AnalysisTimestamp)
	}

	wantFrom := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	wantBefore := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).Unix()
	if images.got.UserID != "patient-7" || images.got.UploadedFrom != wantFrom || images.got.UploadedBefore != wantBefore {
		t.Errorf("filter = %+v", images.got)
	}
}

func TestService_Analyze_NoImages(t *testing.T) {
	var calls atomic.Int32
	svc := newService(t, &fakeImages{}, fakeFetcher{}, &calls)

	r, err := svc.Analyze(context.Background(), models.AnalysisRequest{PatientID: "p"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !slices.Equal(r.Recommendations, []string{nutrition.RecNoImages}) {
		t.Errorf("Recommendations = %v", r.Recommendations)
	}
}

func TestService_Analyze_InvalidRequest(t *testing.T) {
	var calls atomic.Int32
	svc := newService(t, &fakeImages{}, fakeFetcher{}, &calls)

	tests := []struct {
		name string
		req  models.AnalysisRequest
	}{
		{"unknown type", models.AnalysisRequest{PatientID: "p", AnalysisType: "astrology"}},
		{"missing patient", models.AnalysisRequest{}},
		{"bad start date", models.AnalysisRequest{PatientID: "p", DateRangeStart: "03/01/2026"}},
		{"end before start", models.AnalysisRequest{PatientID: "p", DateRangeStart: "2026-03-05", DateRangeEnd: "2026-03-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Analyze(context.Background(), tt.req); !errors.Is(err, nutrition.ErrInvalidRequest) {
				t.Errorf("Analyze() error = %v, want %v", err, nutrition.ErrInvalidRequest)
			}
		})
	}
}

func TestService_Analyze_ListError(t *testing.T) {
	var calls atomic.Int32
	svc := newService(t, &fakeImages{err: errors.New("db closed")}, fakeFetcher{}, &calls)
	if _, err := svc.Analyze(context.Background(), models.AnalysisRequest{PatientID: "p"}); err == nil {
		t.Error("Analyze() error = nil, want list failure")
	}
}
