package models

import "github.com/google/uuid"

// Session is the server-persisted binding between a session token and a user.
// The embedded fields are a point-in-time snapshot of the user record, not a
// live reference: they are refreshed on login and on the specific profile
// updates that touch them, and can diverge otherwise.
type Session struct {
	Token string `json:"-"` // Redis key carries the token, not the payload

	UserID     uuid.UUID `json:"user_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	AvatarPath string    `json:"avatar_path,omitempty"`
	Role       string    `json:"role"`
	FirstName  string    `json:"first_name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`

	// One-shot post-login redirect target
	ReturnTo string `json:"return_to,omitempty"`
}

// SnapshotFrom builds the fixed snapshot field set from a user record.
// The credential hash is deliberately never part of it.
func SnapshotFrom(u *User) *Session {
	return &Session{
		UserID:     u.ID,
		Username:   u.Username,
		Email:      u.Email,
		AvatarPath: u.AvatarPath,
		Role:       u.Role,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	}
}
