package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/auth"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/services"
)

// SessionRequest is the body of every agent route.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// SubmitAnswersRequest carries the user's answers to the clarifier questions.
type SubmitAnswersRequest struct {
	SessionID   string         `json:"sessionId"`
	UserAnswers map[string]any `json:"userAnswers"`
}

// ResolveConflictRequest selects a resolution option.
type ResolveConflictRequest struct {
	SessionID         string `json:"sessionId"`
	ChosenOptionIndex *int   `json:"chosenOptionIndex"`
}

// ClarifierResponse is returned by the clarifier route.
type ClarifierResponse struct {
	SessionID         uuid.UUID                `json:"sessionId"`
	Questions         []string                 `json:"questions"`
	DraftRequirements models.DraftRequirements `json:"draftRequirements"`
}

// ConflictsResponse is returned by the conflict resolver route.
type ConflictsResponse struct {
	SessionID uuid.UUID         `json:"sessionId"`
	Conflicts []models.Conflict `json:"conflicts"`
}

// ValidatorResponse is returned by the validator route.
type ValidatorResponse struct {
	SessionID       uuid.UUID              `json:"sessionId"`
	ValidatorOutput models.ValidatorOutput `json:"validatorOutput"`
}

// PrioritizerResponse is returned by the prioritizer route.
type PrioritizerResponse struct {
	SessionID   uuid.UUID                `json:"sessionId"`
	FinalOutput models.PrioritizerOutput `json:"finalOutput"`
}

// MessageResponse acknowledges an operation without a stage output.
type MessageResponse struct {
	SessionID uuid.UUID            `json:"sessionId"`
	Status    models.SessionStatus `json:"status"`
	Message   string               `json:"message"`
}

// AgentHandler runs the workflow stages.
type AgentHandler struct {
	workflow services.WorkflowService
	guard    *OwnershipGuard
	logger   *zap.Logger
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(workflow services.WorkflowService, guard *OwnershipGuard, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		workflow: workflow,
		guard:    guard,
		logger:   logger,
	}
}

// RegisterRoutes registers the agent routes on the given mux.
func (h *AgentHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/agents/clarifier/start", authMiddleware.RequireAuthIfEnabled(h.RunClarifier))
	mux.HandleFunc("POST /api/agents/clarifier/submit-answers", authMiddleware.RequireAuthIfEnabled(h.SubmitAnswers))
	mux.HandleFunc("GET /api/agents/conflict-resolver", authMiddleware.RequireAuthIfEnabled(h.RunConflictResolver))
	mux.HandleFunc("POST /api/agents/conflict-resolver", authMiddleware.RequireAuthIfEnabled(h.RunConflictResolver))
	mux.HandleFunc("POST /api/agents/conflict-resolver/resolve", authMiddleware.RequireAuthIfEnabled(h.ResolveConflict))
	mux.HandleFunc("POST /api/agents/validator", authMiddleware.RequireAuthIfEnabled(h.RunValidator))
	mux.HandleFunc("POST /api/agents/prioritizer", authMiddleware.RequireAuthIfEnabled(h.RunPrioritizer))
}

// RunClarifier handles POST /api/agents/clarifier/start
func (h *AgentHandler) RunClarifier(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFromBody(w, r)
	if !ok {
		return
	}

	sess, err := h.workflow.RunClarifier(r.Context(), sessionID)
	if err != nil {
		WriteServiceError(w, err, "session", h.logger)
		return
	}
	h.respond(w, ClarifierResponse{
		SessionID:         sess.ID,
		Questions:         sess.ClarifierOutput.Questions,
		DraftRequirements: sess.ClarifierOutput.DraftRequirements,
	})
}

// SubmitAnswers handles POST /api/agents/clarifier/submit-answers
func (h *AgentHandler) SubmitAnswers(w http.ResponseWriter, r *http.Request) {
	var req SubmitAnswersRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}
	sessionID, ok := ParseSessionIDValue(w, req.SessionID, h.logger)
	if !ok || !h.guard.AllowSession(w, r, sessionID) {
		return
	}

	sess, err := h.workflow.SubmitAnswers(r.Context(), sessionID, req.UserAnswers)
	if err != nil {
		WriteServiceError(w, err, "session", h.logger)
		return
	}
	h.respond(w, MessageResponse{
		SessionID: sess.ID,
		Status:    sess.Status,
		Message:   "Answers submitted. Next: run conflict resolver agent.",
	})
}

// RunConflictResolver handles GET and POST /api/agents/conflict-resolver.
// The session ID comes from the JSON body or the sessionId query parameter.
func (h *AgentHandler) RunConflictResolver(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.SessionID == "" {
		req.SessionID = r.URL.Query().Get("sessionId")
	}
	sessionID, ok := ParseSessionIDValue(w, req.SessionID, h.logger)
	if !ok || !h.guard.AllowSession(w, r, sessionID) {
		return
	}

	sess, err := h.workflow.RunConflictResolver(r.Context(), sessionID)
	if err != nil {
		WriteServiceError(w, err, "session", h.logger)
		return
	}
	h.respond(w, ConflictsResponse{
		SessionID: sess.ID,
		Conflicts: sess.ConflictOutput.Conflicts,
	})
}

// ResolveConflict handles POST /api/agents/conflict-resolver/resolve
func (h *AgentHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req ResolveConflictRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}
	sessionID, ok := ParseSessionIDValue(w, req.SessionID, h.logger)
	if !ok || !h.guard.AllowSession(w, r, sessionID) {
		return
	}

	sess, err := h.workflow.ResolveConflict(r.Context(), sessionID, req.ChosenOptionIndex)
	if err != nil {
		WriteServiceError(w, err, "session", h.logger)
		return
	}
	h.respond(w, MessageResponse{
		SessionID: sess.ID,
		Status:    sess.Status,
		Message:   "Conflict resolved. Next: run validator agent.",
	})
}

// RunValidator handles POST /api/agents/validator
func (h *AgentHandler) RunValidator(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFromBody(w, r)
	if !ok {
		return
	}

	sess, err := h.workflow.RunValidator(r.Context(), sessionID)
	if err != nil {
		WriteServiceError(w, err, "session", h.logger)
		return
	}
	h.respond(w, ValidatorResponse{
		SessionID:       sess.ID,
		ValidatorOutput: *sess.ValidatorOutput,
	})
}

// RunPrioritizer handles POST /api/agents/prioritizer
func (h *AgentHandler) RunPrioritizer(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFromBody(w, r)
	if !ok {
		return
	}

	sess, err := h.workflow.RunPrioritizer(r.Context(), sessionID)
	if err != nil {
		WriteServiceError(w, err, "session", h.logger)
		return
	}
	h.respond(w, PrioritizerResponse{
		SessionID:   sess.ID,
		FinalOutput: *sess.PrioritizerOutput,
	})
}

func (h *AgentHandler) sessionFromBody(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req SessionRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return uuid.Nil, false
	}
	sessionID, ok := ParseSessionIDValue(w, req.SessionID, h.logger)
	if !ok || !h.guard.AllowSession(w, r, sessionID) {
		return uuid.Nil, false
	}
	return sessionID, true
}

func (h *AgentHandler) respond(w http.ResponseWriter, body any) {
	if err := WriteJSON(w, http.StatusOK, body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
