package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
)

// sqliteSessionRepository implements SessionRepository on a SQLite database.
type sqliteSessionRepository struct {
	db *sql.DB
}

var _ SessionRepository = (*sqliteSessionRepository)(nil)

// NewSQLiteSessionRepository creates a SQLite-backed session repository.
func NewSQLiteSessionRepository(db *sql.DB) SessionRepository {
	return &sqliteSessionRepository{db: db}
}

func (r *sqliteSessionRepository) Create(ctx context.Context, s *models.Session) error {
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

	const q = `INSERT INTO sessions (id, user_id, status, revision, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, q, s.ID.String(), s.UserID.String(), string(s.Status), s.Revision,
		string(doc), formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		if sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sqliteSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const q = `SELECT id, user_id, status, revision, document, created_at, updated_at
		FROM sessions WHERE id = ?`

	s, err := scanSQLiteSession(r.db.QueryRowContext(ctx, q, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Update performs the same compare-and-swap on revision as the PostgreSQL repository.
func (r *sqliteSessionRepository) Update(ctx context.Context, s *models.Session) error {
	expected := s.Revision
	prevUpdatedAt := s.UpdatedAt

	s.Revision = expected + 1
	s.UpdatedAt = time.Now().UTC()

	restore := func() { s.Revision, s.UpdatedAt = expected, prevUpdatedAt }

	doc, err := encodeSession(s)
	if err != nil {
		restore()
		return err
	}

	const q = `UPDATE sessions
		SET status = ?, revision = ?, document = ?, updated_at = ?
		WHERE id = ? AND revision = ?`

	res, err := r.db.ExecContext(ctx, q, string(s.Status), s.Revision, string(doc), formatTime(s.UpdatedAt),
		s.ID.String(), expected)
	if err != nil {
		restore()
		return fmt.Errorf("failed to update session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		restore()
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		restore()
		var one int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, s.ID.String()).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check session: %w", err)
		}
		return fmt.Errorf("session %s was modified concurrently: %w", s.ID, apperrors.ErrConflict)
	}
	return nil
}

func (r *sqliteSessionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	const q = `SELECT id, user_id, status, revision, document, created_at, updated_at
		FROM sessions WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, q, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row rowScanner) (*models.Session, error) {
	var (
		sr                   sessionRow
		id, userID, doc      string
		createdAt, updatedAt string
	)
	if err := row.Scan(&id, &userID, &sr.Status, &sr.Revision, &doc, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if sr.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", id, err)
	}
	if sr.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	if sr.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sr.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return decodeSession(sr, []byte(doc))
}

// timeLayout has a fixed-width fraction so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// sqliteCode returns the extended SQLite result code of err, or 0.
func sqliteCode(err error) int {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()
	}
	return 0
}
