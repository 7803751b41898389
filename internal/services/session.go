package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"recetario/internal/models"
)

const (
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// UserSessionKeyPrefix is the Redis key prefix for user->session mapping
	UserSessionKeyPrefix = "user_session:"
)

// SessionService binds authenticated users to server-persisted sessions in
// Redis. Each session stores a denormalized snapshot of the user record; the
// snapshot only changes when Bind or RefreshSnapshot is called.
type SessionService struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionService(rdb *redis.Client, ttl time.Duration) *SessionService {
	return &SessionService{rdb: rdb, ttl: ttl}
}

// Bind creates a session for a user and stores it in Redis.
// If the user already has a session, the old one is invalidated first so the
// expiration timer resets from the current login.
func (s *SessionService) Bind(ctx context.Context, user *models.User) (*models.Session, error) {
	s.UnbindUser(ctx, user.ID)

	// Generate secure session token
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, err
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)

	session := models.SnapshotFrom(user)
	session.Token = token

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}

	if err := s.rdb.Set(ctx, SessionKeyPrefix+token, payload, s.ttl).Err(); err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, UserSessionKeyPrefix+user.ID.String(), token, s.ttl).Err(); err != nil {
		return nil, err
	}

	return session, nil
}

// Get returns the session for a token, or nil when the token is unknown or
// expired.
func (s *SessionService) Get(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, nil
	}

	payload, err := s.rdb.Get(ctx, SessionKeyPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, err
	}
	session.Token = token
	return &session, nil
}

// RefreshSnapshot applies mutate to the stored snapshot, keeping the
// remaining TTL. Used when a single user field changes post-login so the
// snapshot does not go stale for the rest of the session's life. Call it only
// after the corresponding database write has committed.
func (s *SessionService) RefreshSnapshot(ctx context.Context, token string, mutate func(*models.Session)) error {
	session, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	if session == nil {
		return nil // session expired meanwhile, nothing to refresh
	}

	mutate(session)

	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, SessionKeyPrefix+token, payload, redis.KeepTTL).Err()
}

// Touch extends the session expiration, resetting the inactivity timer.
func (s *SessionService) Touch(ctx context.Context, token string) error {
	session, err := s.Get(ctx, token)
	if err != nil || session == nil {
		return err
	}
	if err := s.rdb.Expire(ctx, SessionKeyPrefix+token, s.ttl).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, UserSessionKeyPrefix+session.UserID.String(), s.ttl).Err()
}

// ConsumeReturnTarget reads and clears the stored post-login redirect target.
// Returns def when none is set.
func (s *SessionService) ConsumeReturnTarget(ctx context.Context, token, def string) string {
	target := def
	s.RefreshSnapshot(ctx, token, func(session *models.Session) {
		if session.ReturnTo != "" {
			target = session.ReturnTo
			session.ReturnTo = ""
		}
	})
	return target
}

// SetReturnTarget stores a redirect target to be consumed after login.
func (s *SessionService) SetReturnTarget(ctx context.Context, token, target string) error {
	return s.RefreshSnapshot(ctx, token, func(session *models.Session) {
		session.ReturnTo = target
	})
}

// Unbind removes a session. Idempotent: unknown tokens are not an error.
func (s *SessionService) Unbind(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	// Drop the reverse mapping first so a half-finished unbind cannot leave
	// a dangling user->session pointer
	if session, err := s.Get(ctx, token); err == nil && session != nil {
		s.rdb.Del(ctx, UserSessionKeyPrefix+session.UserID.String())
	}

	return s.rdb.Del(ctx, SessionKeyPrefix+token).Err()
}

// UnbindUser invalidates the user's current session, if any.
func (s *SessionService) UnbindUser(ctx context.Context, userID uuid.UUID) error {
	userKey := UserSessionKeyPrefix + userID.String()

	token, err := s.rdb.Get(ctx, userKey).Result()
	if err == nil && token != "" {
		s.rdb.Del(ctx, SessionKeyPrefix+token)
	}

	return s.rdb.Del(ctx, userKey).Err()
}
