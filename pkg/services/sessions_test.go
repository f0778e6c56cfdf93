package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/repositories"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/testhelpers"
)

func newSessionService(t *testing.T) (SessionService, *models.User) {
	t.Helper()
	db := testhelpers.NewSQLiteDB(t)
	users := repositories.NewSQLiteUserRepository(db)
	owner := &models.User{Username: "grace", Email: "grace@example.com", PasswordHash: "hash"}
	require.NoError(t, users.Create(context.Background(), owner))
	return NewSessionService(repositories.NewSQLiteSessionRepository(db), users, zap.NewNop()), owner
}

func TestSessionService_Start(t *testing.T) {
	ctx := context.Background()
	svc, owner := newSessionService(t)

	sess, err := svc.Start(ctx, "  pet social app  ", owner.ID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sess.ID)
	assert.Equal(t, models.StatusStarted, sess.Status)
	assert.Equal(t, "pet social app", sess.UserIdea)
	assert.Equal(t, int64(1), sess.Revision)

	loaded, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, owner.ID, loaded.UserID)
	assert.Nil(t, loaded.ClarifierOutput)
}

func TestSessionService_StartRejects(t *testing.T) {
	svc, owner := newSessionService(t)

	tests := []struct {
		name    string
		idea    string
		userID  uuid.UUID
		wantErr func(t *testing.T, err error)
	}{
		{
			name:   "empty idea",
			idea:   "   ",
			userID: owner.ID,
			wantErr: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsValidation(err))
			},
		},
		{
			name:   "missing user id",
			idea:   "pet social app",
			userID: uuid.Nil,
			wantErr: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsValidation(err))
			},
		},
		{
			name:   "unknown user",
			idea:   "pet social app",
			userID: uuid.New(),
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, apperrors.ErrNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Start(context.Background(), tt.idea, tt.userID)
			require.Error(t, err)
			tt.wantErr(t, err)
		})
	}
}

func TestSessionService_GetUnknown(t *testing.T) {
	svc, _ := newSessionService(t)
	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionService_ListForUser(t *testing.T) {
	ctx := context.Background()
	svc, owner := newSessionService(t)

	empty, err := svc.ListForUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	first, err := svc.Start(ctx, "first idea", owner.ID)
	require.NoError(t, err)
	second, err := svc.Start(ctx, "second idea", owner.ID)
	require.NoError(t, err)

	list, err := svc.ListForUser(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, []uuid.UUID{list[0].ID, list[1].ID})
}
