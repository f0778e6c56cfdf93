package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Middleware puts validated claims on the request context.
// Token checks themselves live in AuthService.
type Middleware struct {
	authService AuthService
	enabled     bool
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware. When enabled is false,
// RequireAuthIfEnabled lets requests through without a token.
func NewMiddleware(authService AuthService, enabled bool, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		enabled:     enabled,
		logger:      logger,
	}
}

// Enabled reports whether session and agent routes require a token.
func (m *Middleware) Enabled() bool {
	return m.enabled
}

// RequireAuth rejects requests without a valid token with 401 and stores
// the claims for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.unauthorized(w, unauthorizedMessage(err))
			return
		}
		next(w, r.WithContext(WithClaims(r.Context(), claims)))
	}
}

// RequireAuthIfEnabled applies RequireAuth only when verification is enabled.
func (m *Middleware) RequireAuthIfEnabled(next http.HandlerFunc) http.HandlerFunc {
	if !m.enabled {
		return next
	}
	return m.RequireAuth(next)
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingAuthorization):
		return "Authentication required."
	case errors.Is(err, ErrInvalidAuthFormat):
		return "Authorization header must use the Bearer scheme."
	default:
		return "Invalid or expired token."
	}
}

func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	}); err != nil {
		m.logger.Error("Failed to write unauthorized response", zap.Error(err))
	}
}
