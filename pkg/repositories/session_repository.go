package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/database"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
)

// sessionRepository implements SessionRepository using PostgreSQL.
type sessionRepository struct {
	db *database.DB
}

var _ SessionRepository = (*sessionRepository)(nil)

// NewSessionRepository creates a PostgreSQL-backed session repository.
func NewSessionRepository(db *database.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, s *models.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.Revision = 1

	doc, err := encodeSession(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (id, user_id, status, revision, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.Exec(ctx, query, s.ID, s.UserID, string(s.Status), s.Revision, doc, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isPgForeignKeyViolation(err) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `
		SELECT id, user_id, status, revision, document, created_at, updated_at
		FROM sessions
		WHERE id = $1`

	s, err := scanPgSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (r *sessionRepository) Update(ctx context.Context, s *models.Session) error {
	expected := s.Revision
	prevUpdatedAt := s.UpdatedAt

	s.Revision = expected + 1
	s.UpdatedAt = time.Now().UTC()

	doc, err := encodeSession(s)
	if err != nil {
		s.Revision, s.UpdatedAt = expected, prevUpdatedAt
		return err
	}

	query := `
		UPDATE sessions
		SET status = $3, revision = $4, document = $5, updated_at = $6
		WHERE id = $1 AND revision = $2`

	tag, err := r.db.Exec(ctx, query, s.ID, expected, string(s.Status), s.Revision, doc, s.UpdatedAt)
	if err != nil {
		s.Revision, s.UpdatedAt = expected, prevUpdatedAt
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.Revision, s.UpdatedAt = expected, prevUpdatedAt
		return r.missOrConflict(ctx, s.ID)
	}
	return nil
}

func (r *sessionRepository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if !exists {
		return apperrors.ErrNotFound
	}
	return fmt.Errorf("session %s was modified concurrently: %w", id, apperrors.ErrConflict)
}

func (r *sessionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	query := `
		SELECT id, user_id, status, revision, document, created_at, updated_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanPgSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

func scanPgSession(row pgx.Row) (*models.Session, error) {
	var (
		sr  sessionRow
		doc []byte
	)
	if err := row.Scan(&sr.ID, &sr.UserID, &sr.Status, &sr.Revision, &doc, &sr.CreatedAt, &sr.UpdatedAt); err != nil {
		return nil, err
	}
	return decodeSession(sr, doc)
}
