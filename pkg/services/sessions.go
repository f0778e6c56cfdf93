// Package services holds the workflow state machine and the session and user services.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/repositories"
)

// SessionService creates and reads sessions.
type SessionService interface {
	// Start creates a session in status started for an existing user.
	Start(ctx context.Context, userIdea string, userID uuid.UUID) (*models.Session, error)
	// Get loads a session. Missing sessions return apperrors.ErrNotFound.
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	// ListForUser returns a user's sessions, newest first.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error)
}

type sessionService struct {
	sessions repositories.SessionRepository
	users    repositories.UserRepository
	logger   *zap.Logger
}

var _ SessionService = (*sessionService)(nil)

// NewSessionService creates a SessionService.
func NewSessionService(sessions repositories.SessionRepository, users repositories.UserRepository, logger *zap.Logger) SessionService {
	return &sessionService{
		sessions: sessions,
		users:    users,
		logger:   logger.Named("sessions"),
	}
}

func (s *sessionService) Start(ctx context.Context, userIdea string, userID uuid.UUID) (*models.Session, error) {
	userIdea = strings.TrimSpace(userIdea)
	if userIdea == "" {
		return nil, apperrors.NewValidationError("userIdea", "is required")
	}
	if userID == uuid.Nil {
		return nil, apperrors.NewValidationError("userId", "is required")
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	sess := &models.Session{
		UserIdea: userIdea,
		UserID:   userID,
		Status:   models.StatusStarted,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info("Session started",
		zap.String("session_id", sess.ID.String()),
		zap.String("user_id", userID.String()))
	return sess, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return s.sessions.GetByID(ctx, sessionID)
}

func (s *sessionService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	return sessions, nil
}
