// cmd/meal-companion/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"meal-companion/internal/capture"
	"meal-companion/internal/config"
	"meal-companion/internal/nutrition"
	"meal-companion/internal/objectstore"
	"meal-companion/internal/server"
	"meal-companion/internal/session"
	"meal-companion/internal/storage"
	"meal-companion/internal/vision"
)

var (
	configPath = flag.String("config", os.Getenv("MEAL_COMPANION_CONFIG"), "Path to YAML config file")
	port       = flag.Int("port", 0, "Port for HTTP transport")
	host       = flag.String("host", "", "Host address")
	dbPath     = flag.String("db-path", "", "Database path")
	version    = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("meal-companion version %s\n", server.Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if flag.CommandLine.Changed("host") {
		cfg.Server.Host = *host
	}
	if flag.CommandLine.Changed("port") {
		cfg.Server.Port = *port
	}
	if flag.CommandLine.Changed("db-path") {
		cfg.Storage.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger()
	if err := run(cfg, logger); err != nil {
		logger.Error("meal companion exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	db, err := storage.NewSQLiteStorage(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer db.Close()

	// Session state
	var sessions session.Store = session.NewMemoryStore(nil)
	if cfg.Session.Backend == "sqlite" {
		sessions = db
	}
	tracker := session.NewTracker(sessions)

	// Object storage for uploaded frames
	objects, objectHandler, err := newObjectStore(cfg.Storage)
	if err != nil {
		return err
	}

	// Vision model
	model, err := vision.NewModel(ctx, cfg.Vision.ProviderConfig())
	if err != nil {
		return fmt.Errorf("failed to create vision model: %w", err)
	}
	analyzer := vision.NewAnalyzer(model, cfg.Vision.Timeout, logger.With("component", "vision"))

	// Services
	pipeline := capture.NewPipeline(tracker, objects, db, analyzer,
		capture.Config{Image: cfg.Vision.ImageLimits()},
		capture.WithLogger(logger.With("component", "capture")),
	)
	reports := nutrition.NewService(db, nutrition.HTTPFetcher{}, analyzer, nutrition.ServiceConfig{
		Concurrency:     cfg.Nutrition.Concurrency,
		DownloadTimeout: cfg.Nutrition.DownloadTimeout,
		Image:           cfg.Vision.ImageLimits(),
	}, logger.With("component", "nutrition"))

	// HTTP server
	srv := server.NewMealCompanionServer(cfg.Server.Addr(), server.Deps{
		Pipeline:  pipeline,
		Tracker:   tracker,
		Nutrition: reports,
		Images:    db,
		Objects:   objectHandler,
		Logger:    logger,

		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	logger.Info("meal companion ready",
		"addr", cfg.Server.Addr(),
		"vision_provider", cfg.Vision.Provider,
		"vision_model", cfg.Vision.Model,
		"session_backend", cfg.Session.Backend,
		"object_backend", cfg.Storage.ObjectBackend,
	)

	// Wait for a signal or a server failure
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	// Graceful shutdown, letting in-flight captures finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("error during shutdown: %w", err)
	}
	return nil
}

func newObjectStore(cfg config.StorageConfig) (objectstore.Store, http.Handler, error) {
	switch cfg.ObjectBackend {
	case "supabase":
		return objectstore.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey), nil, nil
	default:
		fs, err := objectstore.NewFileStore(cfg.ObjectRoot, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize object store: %w", err)
		}
		return fs, fs.Handler(), nil
	}
}
