// internal/capture/pipeline.go

// Package capture runs one plate photo through upload, analysis and the
// session update, and turns the result into the companion status.
package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"meal-companion/internal/companion"
	"meal-companion/internal/imaging"
	"meal-companion/internal/models"
	"meal-companion/internal/objectstore"
	"meal-companion/internal/session"
	"meal-companion/internal/vision"
)

var ErrInvalidCapture = errors.New("invalid capture request")

// ImageRecorder persists metadata for uploaded images.
type ImageRecorder interface {
	SaveImage(ctx context.Context, img *models.StoredImage) error
}

type Config struct {
	Image imaging.Limits
}

type Pipeline struct {
	tracker   *session.Tracker
	objects   objectstore.Store
	records   ImageRecorder
	analyzer  *vision.Analyzer
	messenger *companion.Messenger
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	tracer   trace.Tracer
	captures metric.Int64Counter
	uploads  metric.Int64Counter
}

type Option func(*Pipeline)

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithMessenger(m *companion.Messenger) Option {
	return func(p *Pipeline) { p.messenger = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func NewPipeline(
	tracker *session.Tracker,
	objects objectstore.Store,
	records ImageRecorder,
	analyzer *vision.Analyzer,
	cfg Config,
	opts ...Option,
) *Pipeline {
	meter := otel.Meter("meal-companion/capture")
	captures, _ := meter.Int64Counter("captures_total",
		metric.WithDescription("Captures handled by outcome"))
	uploads, _ := meter.Int64Counter("capture_uploads_total",
		metric.WithDescription("Capture artifact uploads by bucket and outcome"))

	p := &Pipeline{
		tracker:   tracker,
		objects:   objects,
		records:   records,
		analyzer:  analyzer,
		messenger: companion.NewMessenger(nil),
		cfg:       cfg,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
		tracer:    otel.Tracer("meal-companion/capture"),
		captures:  captures,
		uploads:   uploads,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle stores the capture, analyzes it under the session lock and folds
// the result into the session. Collaborator failures are absorbed into the
// fallback analysis; only a missing session id or a session store failure
// returns an error.
func (p *Pipeline) Handle(ctx context.Context, req models.CaptureRequest) (models.CaptureResponse, error) {
	if req.SessionID == "" {
		return models.CaptureResponse{}, fmt.Errorf("%w: session_id is required", ErrInvalidCapture)
	}
	if req.FrameID == "" {
		req.FrameID = uuid.NewString()
	}
	// A capture that reaches the model is always folded, so it must outlive the caller.
	ctx = context.WithoutCancel(ctx)

	ctx, span := p.tracer.Start(ctx, "capture.Handle", trace.WithAttributes(
		attribute.String("session_id", req.SessionID),
		attribute.String("frame_id", req.FrameID),
	))
	defer span.End()

	imageData, err := p.store(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, "upload failed")
		span.RecordError(err)
		p.logger.WarnContext(ctx, "capture upload failed",
			"session_id", req.SessionID,
			"frame_id", req.FrameID,
			"reason", vision.FailureUpload,
			"error", err,
		)
		p.count(ctx, "upload_failed")
		return p.uploadFailed(ctx, req.SessionID)
	}

	depth := models.DefaultDepth()
	if req.Depth != nil {
		depth = *req.Depth
	}

	var outcome vision.Outcome
	analysis, folded, err := p.tracker.Capture(ctx, req.SessionID, func(ctx context.Context, prior models.Session) models.CaptureAnalysis {
		outcome = p.analyze(ctx, imageData, depth, prior)
		return outcome.Analysis
	})
	if err != nil {
		span.RecordError(err)
		p.count(ctx, "store_error")
		return models.CaptureResponse{}, err
	}

	if outcome.OK() {
		p.count(ctx, "ok")
	} else {
		p.count(ctx, "fallback")
	}

	resp := p.respond(req.SessionID, folded.Progress, analysis)
	resp.Celebration = session.Progress(folded.Previous.TotalConsumed) < session.MaxProgress &&
		folded.Progress >= session.MaxProgress

	p.logger.InfoContext(ctx, "capture processed",
		"session_id", req.SessionID,
		"captures", folded.Session.Captures,
		"total_consumed", folded.Session.TotalConsumed,
		"progress", folded.Progress,
		"visual_state", resp.VisualState,
	)
	return resp, nil
}

func (p *Pipeline) analyze(ctx context.Context, data []byte, depth models.DepthSummary, prior models.Session) vision.Outcome {
	img, err := imaging.Normalize(data, p.cfg.Image)
	if err != nil {
		p.logger.WarnContext(ctx, "capture image not decodable",
			"session_id", prior.ID,
			"reason", vision.FailureImage,
			"error", err,
		)
		return vision.Failed(vision.FailureImage, err)
	}
	return p.analyzer.Analyze(ctx, vision.Input{
		Image: vision.Image{Data: img.Data, MIMEType: img.MIMEType},
		Depth: depth,
		Prior: prior,
	})
}

// store uploads the image and optional depth summary and records the image
// row. It returns the decoded image bytes.
func (p *Pipeline) store(ctx context.Context, req models.CaptureRequest) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if len(data) == 0 {
		return nil, objectstore.ErrEmptyPayload
	}

	uploadedAt := p.now().Unix()
	format := imaging.Sniff(data)
	imagePath := objectstore.ImagePath(req.SessionID, req.FrameID, uploadedAt, format.Extension())

	url, err := p.objects.Put(ctx, objectstore.BucketMeals, imagePath, data, format.ContentType())
	p.countUpload(ctx, objectstore.BucketMeals, err)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	if req.Depth != nil {
		p.storeDepth(ctx, req, uploadedAt)
	}

	err = p.records.SaveImage(ctx, &models.StoredImage{
		SessionID:  req.SessionID,
		FrameID:    req.FrameID,
		UserID:     req.UserID,
		FilePath:   imagePath,
		URL:        url,
		UploadedAt: uploadedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("record image: %w", err)
	}
	return data, nil
}

// storeDepth uploads the depth summary. Failures are logged only; the
// capture proceeds without a stored depth artifact.
func (p *Pipeline) storeDepth(ctx context.Context, req models.CaptureRequest, uploadedAt int64) {
	payload, err := json.Marshal(req.Depth)
	if err == nil {
		_, err = p.objects.Put(ctx, objectstore.BucketDepth,
			objectstore.DepthPath(req.SessionID, req.FrameID, uploadedAt), payload, "application/json")
		p.countUpload(ctx, objectstore.BucketDepth, err)
	}
	if err != nil {
		p.logger.WarnContext(ctx, "depth upload failed",
			"session_id", req.SessionID,
			"frame_id", req.FrameID,
			"error", err,
		)
	}
}

// uploadFailed reports the current session state without changing it.
func (p *Pipeline) uploadFailed(ctx context.Context, sessionID string) (models.CaptureResponse, error) {
	current, err := p.tracker.Store().Get(ctx, sessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return models.CaptureResponse{}, err
	}
	return p.respond(sessionID, session.Progress(current.TotalConsumed), vision.Fallback(vision.FailureUpload)), nil
}

func (p *Pipeline) respond(sessionID string, progress float64, analysis models.CaptureAnalysis) models.CaptureResponse {
	state := companion.StateFor(progress)
	return models.CaptureResponse{
		SessionID:   sessionID,
		Happiness:   state.Happiness,
		Activity:    state.Activity,
		VisualState: state.VisualState,
		Message:     p.messenger.Message(progress),
		Progress:    progress,
		Analysis:    analysis,
	}
}

func (p *Pipeline) count(ctx context.Context, outcome string) {
	if p.captures != nil {
		p.captures.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (p *Pipeline) countUpload(ctx context.Context, bucket string, err error) {
	if p.uploads == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.uploads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bucket", bucket),
		attribute.String("outcome", outcome),
	))
}
