//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/testhelpers"
)

func TestPostgresRepositories(t *testing.T) {
	ctx := context.Background()
	testDB := testhelpers.GetTestDB(t)
	testDB.Reset(t)
	sessions := NewSessionRepository(testDB.DB)
	users := NewUserRepository(testDB.DB)

	email := uuid.NewString() + "@example.com"
	owner := &models.User{Username: email, Email: email, PasswordHash: "hash"}
	require.NoError(t, users.Create(ctx, owner))

	dup := &models.User{Username: "x" + email, Email: email, PasswordHash: "hash"}
	assert.ErrorIs(t, users.Create(ctx, dup), apperrors.ErrConflict)

	s := &models.Session{UserIdea: "pet social app", UserID: owner.ID, Status: models.StatusStarted}
	require.NoError(t, sessions.Create(ctx, s))

	stale, err := sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)

	s.Status = models.StatusClarified
	s.ClarifierOutput = &models.ClarifierOutput{Questions: []string{"Which pets?"}}
	require.NoError(t, sessions.Update(ctx, s))

	stale.Status = models.StatusClarified
	assert.ErrorIs(t, sessions.Update(ctx, stale), apperrors.ErrConflict)

	got, err := sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClarified, got.Status)
	assert.Equal(t, int64(2), got.Revision)
	assert.Equal(t, []string{"Which pets?"}, got.ClarifierOutput.Questions)

	second := &models.Session{UserIdea: "recipe app", UserID: owner.ID, Status: models.StatusStarted}
	require.NoError(t, sessions.Create(ctx, second))
	list, err := sessions.ListByUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	err = sessions.Create(ctx, &models.Session{UserIdea: "orphan", UserID: uuid.New(), Status: models.StatusStarted})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
