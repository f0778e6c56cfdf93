// Package repositories persists sessions and users in PostgreSQL or SQLite.
package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
)

// SessionRepository stores sessions as self-contained documents.
type SessionRepository interface {
	// Create inserts s with revision 1.
	Create(ctx context.Context, s *models.Session) error
	// GetByID always reads from the store. Missing sessions return apperrors.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	// Update writes s only if the stored revision still equals s.Revision.
	// On success s.Revision is incremented. A concurrent write returns
	// apperrors.ErrConflict and s is left unchanged.
	Update(ctx context.Context, s *models.Session) error
	// ListByUser returns a user's sessions, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error)
}

// UserRepository stores session owners.
type UserRepository interface {
	// Create inserts u. A duplicate email or username returns apperrors.ErrConflict.
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}
