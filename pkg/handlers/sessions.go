package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/auth"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/services"
)

// StartSessionRequest is the request body for starting a session.
type StartSessionRequest struct {
	UserIdea string `json:"userIdea"`
	UserID   string `json:"userId"`
}

// StartSessionResponse is returned when a session is created.
type StartSessionResponse struct {
	SessionID uuid.UUID            `json:"sessionId"`
	Status    models.SessionStatus `json:"status"`
	Message   string               `json:"message"`
}

// FinalizeResponse is returned when a session is marked complete.
type FinalizeResponse struct {
	SessionID uuid.UUID            `json:"sessionId"`
	Status    models.SessionStatus `json:"status"`
}

// SessionListItem is one entry of a user's session list.
type SessionListItem struct {
	SessionID uuid.UUID            `json:"sessionId"`
	UserIdea  string               `json:"userIdea"`
	Status    models.SessionStatus `json:"status"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// SessionListResponse wraps a user's sessions.
type SessionListResponse struct {
	Sessions []SessionListItem `json:"sessions"`
}

// SessionHandler serves session lifecycle and read views.
type SessionHandler struct {
	sessions  services.SessionService
	workflow  services.WorkflowService
	blueprint services.BlueprintService
	guard     *OwnershipGuard
	logger    *zap.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	sessions services.SessionService,
	workflow services.WorkflowService,
	blueprint services.BlueprintService,
	guard *OwnershipGuard,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		workflow:  workflow,
		blueprint: blueprint,
		guard:     guard,
		logger:    logger,
	}
}

// RegisterRoutes registers the session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/session/start", authMiddleware.RequireAuthIfEnabled(h.Start))
	mux.HandleFunc("GET /api/session/{id}", authMiddleware.RequireAuthIfEnabled(h.Get))
	mux.HandleFunc("POST /api/session/{id}/finalize", authMiddleware.RequireAuthIfEnabled(h.Finalize))
	mux.HandleFunc("GET /api/session/{id}/blueprint", authMiddleware.RequireAuthIfEnabled(h.Blueprint))
	mux.HandleFunc("GET /api/summarize/{id}", authMiddleware.RequireAuthIfEnabled(h.Summary))
	mux.HandleFunc("GET /api/users/{id}/sessions", authMiddleware.RequireAuthIfEnabled(h.ListForUser))
}

// Start handles POST /api/session/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.UserIdea == "" || req.UserID == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "User idea and User ID are required."); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_user_id", "Invalid user ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if !h.guard.AllowUser(w, r, userID) {
		return
	}

	sess, err := h.sessions.Start(r.Context(), req.UserIdea, userID)
	if err != nil {
		WriteServiceError(w, err, "user", h.logger)
		return
	}

	response := StartSessionResponse{
		SessionID: sess.ID,
		Status:    sess.Status,
		Message:   "Session created. Next: run clarifier agent.",
	}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Get handles GET /api/session/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok || !h.guard.AllowSession(w, r, sessionID) {
		return
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		WriteServiceError(w, err, "session", h.logger)
		return
	}
	if err := WriteJSON(w, http.StatusOK, sess); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Finalize handles POST /api/session/{id}/finalize
func (h *SessionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok || !h.guard.AllowSession(w, r, sessionID) {
		return
	}

	sess, err := h.workflow.Finalize(r.Context(), sessionID)
	if err != nil {
		WriteServiceError(w, err, "session", h.logger)
		return
	}
	if err := WriteJSON(w, http.StatusOK, FinalizeResponse{SessionID: sess.ID, Status: sess.Status}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Blueprint handles GET /api/session/{id}/blueprint
func (h *SessionHandler) Blueprint(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok || !h.guard.AllowSession(w, r, sessionID) {
		return
	}

	bp, err := h.blueprint.CompileBlueprint(r.Context(), sessionID)
	if err != nil {
		WriteServiceError(w, err, "session", h.logger)
		return
	}
	if err := WriteJSON(w, http.StatusOK, bp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Summary handles GET /api/summarize/{id}
func (h *SessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok || !h.guard.AllowSession(w, r, sessionID) {
		return
	}

	summary, err := h.blueprint.CompileSummary(r.Context(), sessionID)
	if err != nil {
		WriteServiceError(w, err, "session", h.logger)
		return
	}
	if err := WriteJSON(w, http.StatusOK, summary); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// ListForUser handles GET /api/users/{id}/sessions
func (h *SessionHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok || !h.guard.AllowUser(w, r, userID) {
		return
	}

	sessions, err := h.sessions.ListForUser(r.Context(), userID)
	if err != nil {
		WriteServiceError(w, err, "user", h.logger)
		return
	}

	items := make([]SessionListItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, SessionListItem{
			SessionID: s.ID,
			UserIdea:  s.UserIdea,
			Status:    s.Status,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}
	if err := WriteJSON(w, http.StatusOK, SessionListResponse{Sessions: items}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
