// internal/nutrition/service.go
package nutrition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"meal-companion/internal/imaging"
	"meal-companion/internal/models"
	"meal-companion/internal/storage"
	"meal-companion/internal/vision"
)

const dateLayout = "2006-01-02"

var ErrInvalidRequest = errors.New("invalid analysis request")

// ImageLister is the read side of the image record store.
type ImageLister interface {
	ListImages(ctx context.Context, filter storage.ImageFilter) ([]models.StoredImage, error)
}

// Fetcher downloads a stored image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads images over HTTP.
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type ServiceConfig struct {
	Concurrency     int
	DownloadTimeout time.Duration
	Image           imaging.Limits
}

// Service produces patient reports from stored captures.
type Service struct {
	images   ImageLister
	fetcher  Fetcher
	analyzer *vision.Analyzer
	cfg      ServiceConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(images ImageLister, fetcher Fetcher, analyzer *vision.Analyzer, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 30 * time.Second
	}
	return &Service{
		images:   images,
		fetcher:  fetcher,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("meal-companion/nutrition"),
		now:      time.Now,
	}
}

// WithClock returns a copy of s using now for report timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// Analyze re-analyzes a patient's stored captures in the requested window
// and builds a report. Per-image failures are skipped; only request
// validation and the record query return errors.
func (s *Service) Analyze(ctx context.Context, req models.AnalysisRequest) (models.Report, error) {
	if req.AnalysisType == "" {
		req.AnalysisType = models.AnalysisComprehensive
	}
	if !req.AnalysisType.Valid() {
		return models.Report{}, fmt.Errorf("%w: unknown analysis_type %q", ErrInvalidRequest, req.AnalysisType)
	}
	if req.PatientID == "" {
		return models.Report{}, fmt.Errorf("%w: patient_id is required", ErrInvalidRequest)
	}
	filter, err := windowFilter(req)
	if err != nil {
		return models.Report{}, err
	}

	ctx, span := s.tracer.Start(ctx, "nutrition.Analyze", trace.WithAttributes(
		attribute.String("patient_id", req.PatientID),
		attribute.String("analysis_type", string(req.AnalysisType)),
	))
	defer span.End()

	records, err := s.images.ListImages(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return models.Report{}, fmt.Errorf("failed to list images: %w", err)
	}
	if len(records) == 0 {
		return EmptyReport(req.PatientID, req.AnalysisType, RecNoImages, s.now()), nil
	}

	analyses := s.analyzeAll(ctx, records)
	span.SetAttributes(
		attribute.Int("images", len(records)),
		attribute.Int("analyses", len(analyses)),
	)
	s.logger.InfoContext(ctx, "nutrition analysis complete",
		"patient_id", req.PatientID,
		"images", len(records),
		"analyses", len(analyses),
	)
	return GenerateReport(req.PatientID, req.AnalysisType, analyses, s.now()), nil
}

func (s *Service) analyzeAll(ctx context.Context, records []models.StoredImage) []models.TimedAnalysis {
	results := make([]*models.TimedAnalysis, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, rec := range records {
		g.Go(func() error {
			results[i] = s.analyzeOne(gctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.TimedAnalysis, 0, len(records))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (s *Service) analyzeOne(ctx context.Context, rec models.StoredImage) *models.TimedAnalysis {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout)
	data, err := s.fetcher.Fetch(dctx, rec.URL)
	cancel()
	if err != nil {
		s.logger.WarnContext(ctx, "skipping image", "url", rec.URL, "session_id", rec.SessionID, "error", err)
		return nil
	}

	img, err := imaging.Normalize(data, s.cfg.Image)
	if err != nil {
		s.logger.WarnContext(ctx, "skipping undecodable image", "url", rec.URL, "session_id", rec.SessionID, "error", err)
		return nil
	}

	out := s.analyzer.Analyze(ctx, vision.Input{
		Image: vision.Image{Data: img.Data, MIMEType: img.MIMEType},
		Depth: models.DefaultDepth(),
		Prior: models.Session{ID: rec.SessionID},
	})
	return &models.TimedAnalysis{
		Timestamp: rec.UploadedAt,
		SessionID: rec.SessionID,
		Analysis:  out.Analysis,
	}
}

// windowFilter maps the inclusive date range onto [start 00:00, end+1d 00:00) UTC.
func windowFilter(req models.AnalysisRequest) (storage.ImageFilter, error) {
	filter := storage.ImageFilter{UserID: req.PatientID}
	if req.DateRangeStart != "" {
		start, err := time.Parse(dateLayout, req.DateRangeStart)
		if err != nil {
			return filter, fmt.Errorf("%w: date_range_start: %v", ErrInvalidRequest, err)
		}
		filter.UploadedFrom = start.Unix()
	}
	if req.DateRangeEnd != "" {
		end, err := time.Parse(dateLayout, req.DateRangeEnd)
		if err != nil {
			return filter, fmt.Errorf("%w: date_range_end: %v", ErrInvalidRequest, err)
		}
		filter.UploadedBefore = end.AddDate(0, 0, 1).Unix()
	}
	if filter.UploadedFrom > 0 && filter.UploadedBefore > 0 && filter.UploadedBefore <= filter.UploadedFrom {
		return filter, fmt.Errorf("%w: date_range_end is before date_range_start", ErrInvalidRequest)
	}
	return filter, nil
}
