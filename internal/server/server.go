// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"meal-companion/internal/capture"
	"meal-companion/internal/models"
	"meal-companion/internal/nutrition"
	"meal-companion/internal/session"
	"meal-companion/internal/storage"
)

const Version = "1.0.0"

// ImageQuery lists stored image records.
type ImageQuery interface {
	ListImages(ctx context.Context, filter storage.ImageFilter) ([]models.StoredImage, error)
}

// Deps are the services the HTTP surface routes to. Objects may be nil when
// the object backend serves its own URLs.
type Deps struct {
	Pipeline  *capture.Pipeline
	Tracker   *session.Tracker
	Nutrition *nutrition.Service
	Images    ImageQuery
	Objects   http.Handler
	Logger    *slog.Logger

	// MaxBodyBytes caps JSON request bodies; zero means defaultMaxBodyBytes.
	MaxBodyBytes int64
}

const defaultMaxBodyBytes = 16 << 20

type MealCompanionServer struct {
	httpServer *http.Server
	router     chi.Router
	deps       Deps
	logger     *slog.Logger
	tools      map[string]toolHandler
}

func NewMealCompanionServer(addr string, deps Deps) *MealCompanionServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &MealCompanionServer{
		deps:   deps,
		logger: logger,
	}
	s.tools = s.registerTools()
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *MealCompanionServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", s.handleHealth)
	r.Post("/analyze", s.handleAnalyze)
	r.Get("/session/{id}", s.handleGetSession)
	r.Post("/session/{id}/end", s.handleEndSession)
	r.Post("/nutrition/analyze", s.handleNutrition)
	r.Get("/images", s.handleListImages)

	r.Get("/mcp", s.handleMCPInfo)
	r.Post("/mcp", s.handleMCP)

	if s.deps.Objects != nil {
		r.Handle("/objects/*", http.StripPrefix("/objects", s.deps.Objects))
	}
	return r
}

// Handler exposes the router for embedding and tests.
func (s *MealCompanionServer) Handler() http.Handler {
	return s.router
}

func (s *MealCompanionServer) Start(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return context.WithoutCancel(ctx) }
	s.logger.Info("starting meal companion server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *MealCompanionServer) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encode failure means the client went away.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func (s *MealCompanionServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}

// decodeBody reads a size-capped JSON body into v and returns the status to
// report when it fails.
func (s *MealCompanionServer) decodeBody(w http.ResponseWriter, r *http.Request, v any) (int, error) {
	body := http.MaxBytesReader(w, r.Body, s.deps.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err)
	}
	return http.StatusOK, nil
}
