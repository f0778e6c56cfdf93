package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/agents"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/config"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/llm"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/logging"
)

const storeCheckTimeout = 2 * time.Second

// StoreCheck reports whether the session store is reachable.
type StoreCheck func(ctx context.Context) error

// ProviderStatusFunc reports the agent provider and its circuit state.
type ProviderStatusFunc func() agents.ProviderStatus

// PingResponse describes the running service and its backends.
type PingResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	GoVersion   string `json:"go_version"`
	Environment string `json:"environment"`
	Database    string `json:"database"`
	DatabaseOK  bool   `json:"database_ok"`
	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model,omitempty"`
	LLMCircuit  string `json:"llm_circuit,omitempty"`
}

// HealthHandler serves liveness, readiness and ping.
type HealthHandler struct {
	cfg      *config.Config
	check    StoreCheck
	provider ProviderStatusFunc
	logger   *zap.Logger
}

// NewHealthHandler creates a HealthHandler. A nil check treats the store as
// always reachable; a nil provider leaves the circuit out of /ping.
func NewHealthHandler(cfg *config.Config, check StoreCheck, provider ProviderStatusFunc, logger *zap.Logger) *HealthHandler {
	if check == nil {
		check = func(context.Context) error { return nil }
	}
	return &HealthHandler{cfg: cfg, check: check, provider: provider, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health. The process is alive if it answers.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready handles GET /ready: 200 when the store answers, 503 otherwise.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.storeErr(r.Context()); err != nil {
		if err := ErrorResponse(w, http.StatusServiceUnavailable, "database_unavailable", "Session store is not reachable."); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Ping handles GET /ping.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	dbOK := h.storeErr(r.Context()) == nil

	response := PingResponse{
		Status:      "ok",
		Service:     "ekaya-blueprint",
		Version:     h.cfg.Version,
		GoVersion:   runtime.Version(),
		Environment: h.cfg.Env,
		Database:    h.cfg.Database.Type,
		DatabaseOK:  dbOK,
		LLMProvider: h.cfg.LLM.Provider,
		LLMModel:    h.cfg.LLM.Model,
	}
	if h.provider != nil {
		status := h.provider()
		response.LLMModel = status.Model
		response.LLMCircuit = status.Breaker.State.String()
		if status.Breaker.State == llm.CircuitOpen {
			response.Status = "degraded"
		}
	}
	if !dbOK {
		response.Status = "degraded"
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

func (h *HealthHandler) storeErr(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, storeCheckTimeout)
	defer cancel()
	err := h.check(ctx)
	if err != nil {
		h.logger.Warn("Store check failed", zap.String("error", logging.SanitizeError(err)))
	}
	return err
}
