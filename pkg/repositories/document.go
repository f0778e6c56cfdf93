package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
)

// sessionRow is the scalar columns stored next to the session document.
// The columns are authoritative; the document carries everything else.
type sessionRow struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Status    string
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func encodeSession(s *models.Session) ([]byte, error) {
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session document: %w", err)
	}
	return doc, nil
}

func decodeSession(row sessionRow, doc []byte) (*models.Session, error) {
	var s models.Session
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session document: %w", err)
	}

	s.ID = row.ID
	s.UserID = row.UserID
	s.Status = models.SessionStatus(row.Status)
	s.Revision = row.Revision
	s.CreatedAt = row.CreatedAt
	s.UpdatedAt = row.UpdatedAt
	return &s, nil
}
