package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles
const (
	RoleUser     = "user"
	RoleVerified = "verified"
	RoleAdmin    = "admin"
)

// DefaultAvatarPath is served when a user has not uploaded an avatar.
const DefaultAvatarPath = "/images/placeholders/avatar.png"

type User struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // Never returned in JSON

	// Profile fields
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`
	Location  string `json:"location,omitempty"`
	Website   string `json:"website,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	Facebook  string `json:"facebook,omitempty"`
	YouTube   string `json:"youtube,omitempty"`

	// Storage-root-relative asset paths, empty until first upload
	AvatarPath string `json:"avatar_path,omitempty"`
	CoverPath  string `json:"cover_path,omitempty"`

	Role            string `json:"role"`
	IsActive        bool   `json:"is_active"`
	IsEmailVerified bool   `json:"is_email_verified"`

	// Social counters, maintained in later phases
	FollowerCount  int `json:"follower_count"`
	FollowingCount int `json:"following_count"`
	RecipeCount    int `json:"recipe_count"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// FullName returns the display name, falling back to the username.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Username
}

// Avatar returns the stored avatar path or the placeholder.
func (u *User) Avatar() string {
	if u.AvatarPath != "" {
		return u.AvatarPath
	}
	return DefaultAvatarPath
}
