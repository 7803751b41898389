package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"recetario/internal/models"
	"recetario/pkg/utils"
)

// ProfileUpdate carries the optional profile fields a user can edit.
// Empty strings clear the corresponding column.
type ProfileUpdate struct {
	FirstName string
	LastName  string
	Bio       string
	Country   string
	City      string
	Location  string
	Website   string
	Instagram string
	Twitter   string
	Facebook  string
	YouTube   string
}

// UserStore owns the persisted user record. It enforces the uniqueness and
// hashing invariants and performs no cascading side effects: namespace and
// session cleanup belong to the caller.
type UserStore interface {
	Create(ctx context.Context, username, email, rawPassword, firstName, lastName string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	// FindByLoginIdentifier resolves a username or an email, normalized.
	FindByLoginIdentifier(ctx context.Context, identifier string) (*models.User, error)
	VerifyCredential(u *models.User, rawPassword string) bool
	UpdateCredential(ctx context.Context, id uuid.UUID, newRawPassword string) error
	// UpdateEmail rechecks uniqueness excluding the user itself and resets
	// the email-verified flag.
	UpdateEmail(ctx context.Context, id uuid.UUID, newEmail string) error
	UpdateUsername(ctx context.Context, id uuid.UUID, newUsername string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, p ProfileUpdate) error
	SetAvatarPath(ctx context.Context, id uuid.UUID, path string) error
	SetCoverPath(ctx context.Context, id uuid.UUID, path string) error
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

const userColumns = `id, created_at, updated_at, username, email, password_hash,
	first_name, last_name, bio, country, city, location, website,
	instagram, twitter, facebook, youtube, avatar_path, cover_path,
	role, is_active, is_email_verified,
	follower_count, following_count, recipe_count, last_login_at`

// PostgresUserStore implements UserStore over database/sql.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// Create checks username and email uniqueness in one lookup, hashes the
// password and inserts the row. The raw password is never stored or logged.
func (s *PostgresUserStore) Create(ctx context.Context, username, email, rawPassword, firstName, lastName string) (*models.User, error) {
	normUsername := utils.NormalizeUsername(username)
	normEmail := utils.NormalizeEmail(email)

	var existingUsername, existingEmail string
	err := s.db.QueryRowContext(ctx, `
		SELECT username, email FROM users
		WHERE LOWER(username) = $1 OR LOWER(email) = $2
		LIMIT 1
	`, normUsername, normEmail).Scan(&existingUsername, &existingEmail)
	if err == nil {
		// Username reported first when both collide
		if strings.EqualFold(existingUsername, normUsername) {
			return nil, &DuplicateError{Field: "username"}
		}
		return nil, &DuplicateError{Field: "email"}
	} else if err != sql.ErrNoRows {
		return nil, &StorageError{Op: "user lookup", Err: err}
	}

	hash, err := utils.HashPassword(rawPassword)
	if err != nil {
		// Hashing failures are fatal, never fall back to plaintext
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		Username:     normUsername,
		Email:        normEmail,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         models.RoleUser,
		IsActive:     true,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, created_at, updated_at, username, email, password_hash, first_name, last_name, role, is_active, is_email_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, user.ID, user.CreatedAt, user.UpdatedAt, user.Username, user.Email, user.PasswordHash,
		nullIfEmpty(firstName), nullIfEmpty(lastName), user.Role, true, false)
	if err != nil {
		// A concurrent registration can slip past the lookup; the unique
		// index is the safety net and still gets a field-specific error
		if dup := duplicateFromPq(err); dup != nil {
			return nil, dup
		}
		return nil, &StorageError{Op: "user insert", Err: err}
	}

	return user, nil
}

// VerifyCredential compares a raw password against the stored hash.
// The comparison inside is constant-time.
func (s *PostgresUserStore) VerifyCredential(u *models.User, rawPassword string) bool {
	if u == nil || u.PasswordHash == "" {
		return false
	}
	ok, err := utils.VerifyPassword(rawPassword, u.PasswordHash)
	return err == nil && ok
}

func (s *PostgresUserStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PostgresUserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(username) = $1`,
		utils.NormalizeUsername(username))
	return scanUser(row)
}

// FindByLoginIdentifier resolves a user by username or email in one query.
func (s *PostgresUserStore) FindByLoginIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	norm := strings.ToLower(strings.TrimSpace(identifier))
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE LOWER(username) = $1 OR LOWER(email) = $1
	`, norm)
	return scanUser(row)
}

// UpdateCredential re-hashes and replaces the stored hash in one statement.
func (s *PostgresUserStore) UpdateCredential(ctx context.Context, id uuid.UUID, newRawPassword string) error {
	hash, err := utils.HashPassword(newRawPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.exec(ctx, "credential update", `
		UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2
	`, hash, id)
}

func (s *PostgresUserStore) UpdateEmail(ctx context.Context, id uuid.UUID, newEmail string) error {
	norm := utils.NormalizeEmail(newEmail)

	var ownerID uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM users WHERE LOWER(email) = $1 AND id <> $2
	`, norm, id).Scan(&ownerID)
	if err == nil {
		return &DuplicateError{Field: "email"}
	} else if err != sql.ErrNoRows {
		return &StorageError{Op: "email lookup", Err: err}
	}

	err = s.exec(ctx, "email update", `
		UPDATE users SET email = $1, is_email_verified = FALSE, updated_at = NOW() WHERE id = $2
	`, norm, id)
	if dup := duplicateFromPq(err); dup != nil {
		return dup
	}
	return err
}

func (s *PostgresUserStore) UpdateUsername(ctx context.Context, id uuid.UUID, newUsername string) error {
	norm := utils.NormalizeUsername(newUsername)

	var ownerID uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM users WHERE LOWER(username) = $1 AND id <> $2
	`, norm, id).Scan(&ownerID)
	if err == nil {
		return &DuplicateError{Field: "username"}
	} else if err != sql.ErrNoRows {
		return &StorageError{Op: "username lookup", Err: err}
	}

	return s.exec(ctx, "username update", `
		UPDATE users SET username = $1, updated_at = NOW() WHERE id = $2
	`, norm, id)
}

func (s *PostgresUserStore) UpdateProfile(ctx context.Context, id uuid.UUID, p ProfileUpdate) error {
	return s.exec(ctx, "profile update", `
		UPDATE users SET
			first_name = $1, last_name = $2, bio = $3, country = $4, city = $5,
			location = $6, website = $7, instagram = $8, twitter = $9,
			facebook = $10, youtube = $11, updated_at = NOW()
		WHERE id = $12
	`, nullIfEmpty(p.FirstName), nullIfEmpty(p.LastName), nullIfEmpty(p.Bio),
		nullIfEmpty(p.Country), nullIfEmpty(p.City), nullIfEmpty(p.Location),
		nullIfEmpty(p.Website), nullIfEmpty(p.Instagram), nullIfEmpty(p.Twitter),
		nullIfEmpty(p.Facebook), nullIfEmpty(p.YouTube), id)
}

func (s *PostgresUserStore) SetAvatarPath(ctx context.Context, id uuid.UUID, path string) error {
	return s.exec(ctx, "avatar update", `
		UPDATE users SET avatar_path = $1, updated_at = NOW() WHERE id = $2
	`, path, id)
}

func (s *PostgresUserStore) SetCoverPath(ctx context.Context, id uuid.UUID, path string) error {
	return s.exec(ctx, "cover update", `
		UPDATE users SET cover_path = $1, updated_at = NOW() WHERE id = $2
	`, path, id)
}

func (s *PostgresUserStore) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "login timestamp", `
		UPDATE users SET last_login_at = NOW() WHERE id = $1
	`, id)
}

// Delete hard-deletes the row. No tombstone, no cascading side effects.
func (s *PostgresUserStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return &StorageError{Op: "user delete", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- helpers ---

func (s *PostgresUserStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var firstName, lastName, bio, country, city, location, website sql.NullString
	var instagram, twitter, facebook, youtube, avatarPath, coverPath sql.NullString
	var lastLoginAt sql.NullTime

	err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.Username, &u.Email, &u.PasswordHash,
		&firstName, &lastName, &bio, &country, &city, &location, &website,
		&instagram, &twitter, &facebook, &youtube, &avatarPath, &coverPath,
		&u.Role, &u.IsActive, &u.IsEmailVerified,
		&u.FollowerCount, &u.FollowingCount, &u.RecipeCount, &lastLoginAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "user scan", Err: err}
	}

	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.Bio = bio.String
	u.Country = country.String
	u.City = city.String
	u.Location = location.String
	u.Website = website.String
	u.Instagram = instagram.String
	u.Twitter = twitter.String
	u.Facebook = facebook.String
	u.YouTube = youtube.String
	u.AvatarPath = avatarPath.String
	u.CoverPath = coverPath.String
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// duplicateFromPq maps a unique_violation to the colliding field.
func duplicateFromPq(err error) *DuplicateError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	if strings.Contains(pqErr.Constraint, "email") {
		return &DuplicateError{Field: "email"}
	}
	return &DuplicateError{Field: "username"}
}
