// internal/server/handlers.go
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"meal-companion/internal/capture"
	"meal-companion/internal/models"
	"meal-companion/internal/nutrition"
	"meal-companion/internal/session"
	"meal-companion/internal/storage"
)

const (
	defaultImageLimit = 50
	maxImageLimit     = 500
)

type SessionStatus struct {
	SessionID     string  `json:"session_id"`
	TotalConsumed float64 `json:"total_consumed"`
	Captures      int     `json:"captures"`
	Exists        bool    `json:"exists"`
}

type EndSessionResult struct {
	Success       bool    `json:"success"`
	FinalProgress float64 `json:"final_progress"`
	TotalCaptures int     `json:"total_captures"`
}

const errSessionNotFound = "Session not found"

func (s *MealCompanionServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (s *MealCompanionServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.CaptureRequest
	if status, err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, status, err.Error())
		return
	}

	resp, err := s.deps.Pipeline.Handle(r.Context(), req)
	if err != nil {
		writeError(w, captureStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *MealCompanionServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	status, err := s.sessionStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *MealCompanionServer) handleEndSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.endSession(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, errSessionNotFound)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *MealCompanionServer) handleNutrition(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if status, err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, status, err.Error())
		return
	}

	report, err := s.deps.Nutrition.Analyze(r.Context(), req)
	if err != nil {
		writeError(w, nutritionStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *MealCompanionServer) handleListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultImageLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxImageLimit)
	}

	images, err := s.deps.Images.ListImages(r.Context(), storage.ImageFilter{
		SessionID: q.Get("session_id"),
		UserID:    q.Get("user_id"),
		Limit:     limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if images == nil {
		images = []models.StoredImage{}
	}
	writeJSON(w, http.StatusOK, images)
}

func (s *MealCompanionServer) sessionStatus(ctx context.Context, id string) (SessionStatus, error) {
	sess, err := s.deps.Tracker.Store().Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return SessionStatus{SessionID: id}, nil
	}
	if err != nil {
		return SessionStatus{}, err
	}
	return SessionStatus{
		SessionID:     id,
		TotalConsumed: sess.TotalConsumed,
		Captures:      sess.Captures,
		Exists:        true,
	}, nil
}

func (s *MealCompanionServer) endSession(ctx context.Context, id string) (EndSessionResult, error) {
	sess, err := s.deps.Tracker.End(ctx, id)
	if err != nil {
		return EndSessionResult{}, err
	}
	s.logger.InfoContext(ctx, "session ended",
		"session_id", id,
		"total_consumed", sess.TotalConsumed,
		"captures", sess.Captures,
	)
	return EndSessionResult{
		Success:       true,
		FinalProgress: sess.TotalConsumed,
		TotalCaptures: sess.Captures,
	}, nil
}

func captureStatus(err error) int {
	if errors.Is(err, capture.ErrInvalidCapture) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func nutritionStatus(err error) int {
	if errors.Is(err, nutrition.ErrInvalidRequest) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
