package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CookieName is the cookie that carries the token for browser clients.
const CookieName = "token"

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrNotOwner             = errors.New("token subject does not own the resource")
)

// AuthService defines the interface for authentication operations.
type AuthService interface {
	// ValidateRequest extracts and validates a JWT from the request.
	// It checks for the token in:
	//   1. Authorization header with "Bearer" scheme (API clients)
	//   2. Cookie named "token" (browser clients)
	// Failures wrap ErrMissingAuthorization, ErrInvalidAuthFormat or
	// ErrInvalidToken.
	ValidateRequest(r *http.Request) (*Claims, error)

	// RequireOwner ensures the token subject is ownerID.
	RequireOwner(claims *Claims, ownerID uuid.UUID) error
}

type authService struct {
	tokens TokenIssuer
	logger *zap.Logger
}

// NewAuthService creates a new AuthService that validates tokens with tokens.
func NewAuthService(tokens TokenIssuer, logger *zap.Logger) AuthService {
	return &authService{
		tokens: tokens,
		logger: logger,
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*Claims, error) {
	var tokenString string
	var tokenSource string

	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.logger.Debug("Invalid Authorization header format",
				zap.String("path", r.URL.Path))
			return nil, ErrInvalidAuthFormat
		}
		tokenString = parts[1]
		tokenSource = "header"
	} else if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		tokenString = cookie.Value
		tokenSource = "cookie"
	} else {
		s.logger.Debug("No JWT found in request",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method))
		return nil, ErrMissingAuthorization
	}

	claims, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("token_source", tokenSource))
		return nil, err
	}

	return claims, nil
}

func (s *authService) RequireOwner(claims *Claims, ownerID uuid.UUID) error {
	if claims == nil {
		return ErrNotOwner
	}
	if id, err := claims.UserID(); err != nil || id != ownerID {
		s.logger.Warn("Owner mismatch",
			zap.String("subject", claims.Subject),
			zap.String("owner_id", ownerID.String()))
		return ErrNotOwner
	}
	return nil
}

// Ensure authService implements AuthService at compile time.
var _ AuthService = (*authService)(nil)
