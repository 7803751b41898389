package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recetario/internal/models"
)

func newTestSessions(t *testing.T) (*SessionService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionService(client, time.Hour), mr
}

func testUser() *models.User {
	return &models.User{
		ID:         uuid.New(),
		Username:   "chef99",
		Email:      "chef99@example.com",
		AvatarPath: "/uploads/users/chef99/avatar.jpg",
		Role:       models.RoleUser,
		FirstName:  "Ana",
		LastName:   "García",
		IsActive:   true,
	}
}

func TestSessionBind_SnapshotRoundTrip(t *testing.T) {
	s, _ := newTestSessions(t)
	ctx := context.Background()
	user := testUser()

	session, err := s.Bind(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)

	got, err := s.Get(ctx, session.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.UserID)
	assert.Equal(t, "chef99", got.Username)
	assert.Equal(t, "chef99@example.com", got.Email)
	assert.Equal(t, "/uploads/users/chef99/avatar.jpg", got.AvatarPath)
	assert.Equal(t, models.RoleUser, got.Role)
	assert.Equal(t, "Ana", got.FirstName)
}

func TestSessionBind_DisplacesPreviousSession(t *testing.T) {
	s, _ := newTestSessions(t)
	ctx := context.Background()
	user := testUser()

	first, err := s.Bind(ctx, user)
	require.NoError(t, err)
	second, err := s.Bind(ctx, user)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	got, err := s.Get(ctx, first.Token)
	require.NoError(t, err)
	assert.Nil(t, got, "old session should be invalidated")

	got, err = s.Get(ctx, second.Token)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSessionGet_UnknownToken(t *testing.T) {
	s, _ := newTestSessions(t)

	got, err := s.Get(context.Background(), "no-such-token")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionRefreshSnapshot_UpdatesSingleField(t *testing.T) {
	s, mr := newTestSessions(t)
	ctx := context.Background()

	session, err := s.Bind(ctx, testUser())
	require.NoError(t, err)

	require.NoError(t, s.RefreshSnapshot(ctx, session.Token, func(snap *models.Session) {
		snap.Email = "new@example.com"
	}))

	got, err := s.Get(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, "chef99", got.Username, "untouched fields keep their values")

	// TTL survives the rewrite
	assert.Greater(t, mr.TTL(SessionKeyPrefix+session.Token), time.Duration(0))
}

func TestSessionRefreshSnapshot_ExpiredSessionIsNoop(t *testing.T) {
	s, _ := newTestSessions(t)
	assert.NoError(t, s.RefreshSnapshot(context.Background(), "gone", func(snap *models.Session) {
		snap.Email = "x@example.com"
	}))
}

func TestSessionUnbind_IsIdempotent(t *testing.T) {
	s, mr := newTestSessions(t)
	ctx := context.Background()
	user := testUser()

	session, err := s.Bind(ctx, user)
	require.NoError(t, err)

	require.NoError(t, s.Unbind(ctx, session.Token))
	require.NoError(t, s.Unbind(ctx, session.Token))
	require.NoError(t, s.Unbind(ctx, ""))

	got, err := s.Get(ctx, session.Token)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Reverse mapping is gone too
	assert.False(t, mr.Exists(UserSessionKeyPrefix+user.ID.String()))
}

func TestSessionConsumeReturnTarget_IsOneShot(t *testing.T) {
	s, _ := newTestSessions(t)
	ctx := context.Background()

	session, err := s.Bind(ctx, testUser())
	require.NoError(t, err)

	require.NoError(t, s.SetReturnTarget(ctx, session.Token, "/recipes/new"))

	assert.Equal(t, "/recipes/new", s.ConsumeReturnTarget(ctx, session.Token, "/"))
	assert.Equal(t, "/", s.ConsumeReturnTarget(ctx, session.Token, "/"))
}

func TestSessionExpiry(t *testing.T) {
	s, mr := newTestSessions(t)
	ctx := context.Background()

	session, err := s.Bind(ctx, testUser())
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	got, err := s.Get(ctx, session.Token)
	require.NoError(t, err)
	assert.Nil(t, got)
}
