// internal/vision/analyzer.go
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"meal-companion/internal/models"
)

// FailureReason says why an analysis fell back.
type FailureReason string

const (
	FailureNone      FailureReason = ""
	FailureModelCall FailureReason = "model_call"
	FailureNoJSON    FailureReason = "no_json"
	FailureMalformed FailureReason = "malformed_json"
	FailureImage     FailureReason = "image_decode"
	FailureUpload    FailureReason = "upload"
)

// Outcome is always usable: on failure Analysis holds the fallback.
type Outcome struct {
	Analysis models.CaptureAnalysis
	Reason   FailureReason
	Err      error
}

func (o Outcome) OK() bool { return o.Reason == FailureNone }

// Fallback is the fixed zero-confidence analysis substituted on failure.
func Fallback(reason FailureReason) models.CaptureAnalysis {
	item := models.FoodItem{Name: "analysis_failed", Category: "unknown"}
	if reason == FailureUpload {
		item = models.FoodItem{Name: "upload_failed", Category: "error"}
	}
	return models.CaptureAnalysis{
		FoodItems:         []models.FoodItem{item},
		RemainingPercent:  100.0,
		ConsumedSinceLast: 0,
		EstimatedCalories: 0,
		Confidence:        0.0,
	}
}

// Failed builds a fallback outcome for a failure detected outside Analyze.
func Failed(reason FailureReason, err error) Outcome {
	return Outcome{Analysis: Fallback(reason), Reason: reason, Err: err}
}

// Input is everything one analysis needs.
type Input struct {
	Image Image
	Depth models.DepthSummary
	Prior models.Session
}

// Analyzer wraps a Model with prompt construction, reply parsing and the
// fallback boundary.
type Analyzer struct {
	model   Model
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
	calls   metric.Int64Counter
}

// NewAnalyzer creates an Analyzer. A positive timeout bounds each model call.
func NewAnalyzer(model Model, timeout time.Duration, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	calls, _ := otel.Meter("meal-companion/vision").Int64Counter("vision_analyses_total",
		metric.WithDescription("Vision analyses by outcome"))
	return &Analyzer{
		model:   model,
		timeout: timeout,
		logger:  logger,
		tracer:  otel.Tracer("meal-companion/vision"),
		calls:   calls,
	}
}

// Analyze never fails: any model, extraction or decoding problem yields
// the fallback analysis with the reason attached.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (out Outcome) {
	ctx, span := a.tracer.Start(ctx, "vision.Analyze", trace.WithAttributes(
		attribute.Int("capture_number", in.Prior.Captures+1),
		attribute.Int("image_bytes", len(in.Image.Data)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			out = Failed(FailureModelCall, fmt.Errorf("model panicked: %v", r))
		}
		if !out.OK() {
			span.SetStatus(codes.Error, string(out.Reason))
			span.RecordError(out.Err)
			a.logger.WarnContext(ctx, "vision analysis fell back",
				"session_id", in.Prior.ID,
				"reason", out.Reason,
				"error", out.Err,
			)
		}
		if a.calls != nil {
			a.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reasonLabel(out.Reason))))
		}
	}()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	prompt := BuildPrompt(in.Prior, in.Depth)
	reply, err := a.model.Generate(ctx, in.Image, prompt)
	if err != nil {
		return Failed(FailureModelCall, err)
	}

	analysis, reason, err := ParseAnalysis(reply)
	if err != nil {
		return Failed(reason, err)
	}

	a.logger.DebugContext(ctx, "vision analysis complete",
		"session_id", in.Prior.ID,
		"remaining_percent", analysis.RemainingPercent,
		"consumed_since_last", analysis.ConsumedSinceLast,
		"confidence", analysis.Confidence,
	)
	return Outcome{Analysis: analysis}
}

func reasonLabel(r FailureReason) string {
	if r == FailureNone {
		return "ok"
	}
	return string(r)
}
