// internal/server/tools.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"meal-companion/internal/capture"
	"meal-companion/internal/models"
	"meal-companion/internal/nutrition"
	"meal-companion/internal/session"
	"meal-companion/internal/storage"
)

var errInvalidParams = errors.New("invalid parameters")

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var toolCatalog = []toolInfo{
	{"analyze_capture", "Analyze a plate photo and update the meal session"},
	{"get_session", "Get consumption progress for a meal session"},
	{"end_session", "End a meal session and return its final totals"},
	{"analyze_patient", "Build an eating-pattern and nutrition report for a patient"},
	{"list_images", "List stored capture images"},
}

type SessionParams struct {
	SessionID string `json:"session_id" description:"Meal session identifier"`
}

type ListImagesParams struct {
	SessionID string `json:"session_id,omitempty" description:"Only images from this session"`
	UserID    string `json:"user_id,omitempty" description:"Only images from this user"`
	Limit     int    `json:"limit,omitempty" description:"Maximum number of images to return"`
}

// extractParams converts the request arguments into target.
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}

func (s *MealCompanionServer) registerTools() map[string]toolHandler {
	return map[string]toolHandler{
		"analyze_capture": s.handleAnalyzeCaptureTool,
		"get_session":     s.handleGetSessionTool,
		"end_session":     s.handleEndSessionTool,
		"analyze_patient": s.handleAnalyzePatientTool,
		"list_images":     s.handleListImagesTool,
	}
}

func (s *MealCompanionServer) handleMCPInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"serverInfo": protocol.Implementation{Name: "meal-companion", Version: Version},
		"tools":      toolCatalog,
	})
}

func (s *MealCompanionServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	// Decode the call
	var request protocol.CallToolRequest
	if status, err := s.decodeBody(w, r, &request); err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	// Dispatch to the named tool
	handler, ok := s.tools[request.Name]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	result, err := handler(r.Context(), &request)
	if err != nil {
		// 400 for invalid params, 500 otherwise
		s.logger.WarnContext(r.Context(), "tool call failed", "tool", request.Name, "error", err)
		http.Error(w, err.Error(), toolStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *MealCompanionServer) handleAnalyzeCaptureTool(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params models.CaptureRequest
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	resp, err := s.deps.Pipeline.Handle(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(resp)
}

func (s *MealCompanionServer) handleGetSessionTool(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SessionParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.SessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", errInvalidParams)
	}
	status, err := s.sessionStatus(ctx, params.SessionID)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(status)
}

func (s *MealCompanionServer) handleEndSessionTool(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SessionParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	result, err := s.endSession(ctx, params.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return s.createJSONResponse(map[string]any{"success": false, "error": errSessionNotFound})
	}
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(result)
}

func (s *MealCompanionServer) handleAnalyzePatientTool(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params models.AnalysisRequest
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	report, err := s.deps.Nutrition.Analyze(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(report)
}

func (s *MealCompanionServer) handleListImagesTool(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ListImagesParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		params.Limit = defaultImageLimit
	}

	images, err := s.deps.Images.ListImages(ctx, storage.ImageFilter{
		SessionID: params.SessionID,
		UserID:    params.UserID,
		Limit:     min(params.Limit, maxImageLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	if images == nil {
		images = []models.StoredImage{}
	}
	return s.createJSONResponse(images)
}

func toolStatus(err error) int {
	switch {
	case errors.Is(err, errInvalidParams),
		errors.Is(err, capture.ErrInvalidCapture),
		errors.Is(err, nutrition.ErrInvalidRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
