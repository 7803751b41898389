package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"path/filepath"
	"time"

	"recetario/internal/models"
	"recetario/pkg/utils"
)

// DeleteConfirmationPhrase must be typed verbatim to delete an account.
const DeleteConfirmationPhrase = "ELIMINAR"

// AccountService sequences the multi-store account operations: every method
// is a short linear sequence over the user store, the session binder, the
// asset pipeline and the namespace, with explicit commit ordering. It is the
// only component that touches more than one store per operation.
//
// Classified failures come back as a failed Result; only unexpected errors
// are returned as Go errors for the HTTP layer to report generically.
type AccountService struct {
	users    UserStore
	sessions *SessionService
	assets   *AssetPipeline
	ns       *Namespace
}

func NewAccountService(users UserStore, sessions *SessionService, assets *AssetPipeline, ns *Namespace) *AccountService {
	return &AccountService{users: users, sessions: sessions, assets: assets, ns: ns}
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type LoginInput struct {
	Identifier string // username or email
	Password   string
}

// Register validates input, creates the user and binds a session.
// The store's own atomicity is the only rollback needed: create either
// succeeds wholly or not at all.
func (a *AccountService) Register(ctx context.Context, in RegisterInput) (*models.Result, error) {
	if err := utils.ValidateUsername(in.Username); err != nil {
		return models.Fail(err.Error()), nil
	}
	if err := utils.ValidateEmail(in.Email); err != nil {
		return models.Fail(err.Error()), nil
	}
	if err := utils.ValidatePassword(in.Password); err != nil {
		return models.Fail(err.Error()), nil
	}

	user, err := a.users.Create(ctx, in.Username, in.Email, in.Password, in.FirstName, in.LastName)
	if err != nil {
		if dup, ok := IsDuplicate(err); ok {
			return models.Fail(duplicateMessage(dup)), nil
		}
		return nil, err
	}

	session, err := a.sessions.Bind(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("user created but session binding failed: %w", err)
	}

	log.Printf("✅ User registered: %s", user.Username)

	res := models.OK("Account created successfully")
	res.User = user
	res.Redirect = "/"
	res.Session = session
	return res, nil
}

// Login resolves the identifier, verifies the credential, refreshes the
// login timestamp and binds a session. Every rejection path is terminal and
// side-effect-free, and unknown identifier and wrong password share one
// generic message so identifiers cannot be enumerated.
func (a *AccountService) Login(ctx context.Context, in LoginInput) (*models.Result, error) {
	user, err := a.users.FindByLoginIdentifier(ctx, in.Identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.Fail(authFailureMessage), nil
		}
		return nil, err
	}

	if !user.IsActive {
		return models.Fail("Your account has been deactivated. Contact support."), nil
	}

	if !a.users.VerifyCredential(user, in.Password) {
		return models.Fail(authFailureMessage), nil
	}

	if err := a.users.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, err
	}

	session, err := a.sessions.Bind(ctx, user)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ User logged in: %s", user.Username)

	res := models.OK("Login successful")
	res.User = user
	res.Redirect = a.sessions.ConsumeReturnTarget(ctx, session.Token, "/")
	res.Session = session
	return res, nil
}

// Logout destroys the session. Unbind failures are logged and never block
// the logout from completing.
func (a *AccountService) Logout(ctx context.Context, session *models.Session) *models.Result {
	if err := a.sessions.Unbind(ctx, session.Token); err != nil {
		log.Printf("⚠️  Failed to invalidate session for %s: %v", session.Username, err)
	}
	log.Printf("✅ User logged out: %s", session.Username)

	res := models.OK()
	res.Redirect = "/auth/login"
	return res
}

// ChangePassword verifies the current credential and replaces the hash.
// No session refresh is needed: the snapshot never contains the credential.
func (a *AccountService) ChangePassword(ctx context.Context, session *models.Session, currentPassword, newPassword string) (*models.Result, error) {
	user, res, err := a.currentUser(ctx, session)
	if user == nil {
		return res, err
	}

	if !a.users.VerifyCredential(user, currentPassword) {
		return models.Fail("Current password is incorrect"), nil
	}
	if err := utils.ValidatePassword(newPassword); err != nil {
		return models.Fail(err.Error()), nil
	}

	if err := a.users.UpdateCredential(ctx, user.ID, newPassword); err != nil {
		return nil, err
	}

	log.Printf("✅ Password updated: %s", user.Username)
	return models.OK("Password updated successfully"), nil
}

// ChangeEmail verifies the credential, rechecks uniqueness excluding the
// user itself, resets the verified flag and refreshes the session snapshot
// strictly after the row update commits.
func (a *AccountService) ChangeEmail(ctx context.Context, session *models.Session, password, newEmail string) (*models.Result, error) {
	user, res, err := a.currentUser(ctx, session)
	if user == nil {
		return res, err
	}

	if !a.users.VerifyCredential(user, password) {
		return models.Fail("Incorrect password"), nil
	}
	if err := utils.ValidateEmail(newEmail); err != nil {
		return models.Fail(err.Error()), nil
	}

	if err := a.users.UpdateEmail(ctx, user.ID, newEmail); err != nil {
		if dup, ok := IsDuplicate(err); ok {
			return models.Fail(duplicateMessage(dup)), nil
		}
		return nil, err
	}

	norm := utils.NormalizeEmail(newEmail)
	a.refreshSnapshot(ctx, session, func(s *models.Session) { s.Email = norm })

	log.Printf("✅ Email updated: %s", user.Username)
	return models.OK("Email updated successfully"), nil
}

// UpdateProfile replaces the editable profile fields and refreshes the name
// fields mirrored in the session snapshot.
func (a *AccountService) UpdateProfile(ctx context.Context, session *models.Session, p ProfileUpdate) (*models.Result, error) {
	if len(p.Bio) > utils.MaxBioLength {
		return models.Fail("Bio cannot exceed 500 characters"), nil
	}

	if err := a.users.UpdateProfile(ctx, session.UserID, p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.Fail(notFoundMessage), nil
		}
		return nil, err
	}

	a.refreshSnapshot(ctx, session, func(s *models.Session) {
		s.FirstName = p.FirstName
		s.LastName = p.LastName
	})

	user, err := a.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Profile updated: %s", user.Username)
	res := models.OK("Profile updated successfully")
	res.User = user
	return res, nil
}

// UpdateAvatar ingests the upload and, only after the atomic swap succeeded,
// updates the user's path field and the session snapshot.
func (a *AccountService) UpdateAvatar(ctx context.Context, session *models.Session, file multipart.File, header *multipart.FileHeader) (*models.Result, error) {
	return a.updateAsset(ctx, session, SlotAvatar, file, header)
}

// UpdateCover is UpdateAvatar for the cover slot.
func (a *AccountService) UpdateCover(ctx context.Context, session *models.Session, file multipart.File, header *multipart.FileHeader) (*models.Result, error) {
	return a.updateAsset(ctx, session, SlotCover, file, header)
}

func (a *AccountService) updateAsset(ctx context.Context, session *models.Session, slot AssetSlot, file multipart.File, header *multipart.FileHeader) (*models.Result, error) {
	user, res, err := a.currentUser(ctx, session)
	if user == nil {
		return res, err
	}

	path, err := a.assets.Ingest(ctx, user.Username, slot, file, header)
	if err != nil {
		if msg, ok := uploadFailureMessage(err); ok {
			return models.Fail(msg), nil
		}
		return nil, err
	}

	if slot == SlotAvatar {
		err = a.users.SetAvatarPath(ctx, user.ID, path)
	} else {
		err = a.users.SetCoverPath(ctx, user.ID, path)
	}
	if err != nil {
		return nil, err
	}

	if slot == SlotAvatar {
		a.refreshSnapshot(ctx, session, func(s *models.Session) { s.AvatarPath = path })
	}

	log.Printf("✅ %s updated: %s", slot, user.Username)

	out := models.OK()
	// Cache bust so clients pick up the replaced file immediately
	out.AssetURL = fmt.Sprintf("%s?t=%d", path, time.Now().UnixMilli())
	return out, nil
}

// ChangeUsername renames the namespace first and only then updates the row,
// so derived asset paths are never stale longer than the single intervening
// step. A failed row update moves the namespace back.
func (a *AccountService) ChangeUsername(ctx context.Context, session *models.Session, password, newUsername string) (*models.Result, error) {
	user, res, err := a.currentUser(ctx, session)
	if user == nil {
		return res, err
	}

	if !a.users.VerifyCredential(user, password) {
		return models.Fail("Incorrect password"), nil
	}
	if err := utils.ValidateUsername(newUsername); err != nil {
		return models.Fail(err.Error()), nil
	}

	oldUsername := user.Username
	norm := utils.NormalizeUsername(newUsername)
	if norm == oldUsername {
		return models.Fail("That is already your username"), nil
	}

	// Duplicate check up front: the namespace must not move for a username
	// that will be rejected
	if existing, err := a.users.FindByUsername(ctx, norm); err == nil && existing != nil && existing.ID != user.ID {
		return models.Fail(duplicateMessage(&DuplicateError{Field: "username"})), nil
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := a.ns.Rename(oldUsername, norm); err != nil {
		return nil, err
	}

	if err := a.users.UpdateUsername(ctx, user.ID, norm); err != nil {
		if rerr := a.ns.Rename(norm, oldUsername); rerr != nil {
			log.Printf("⚠️  Failed to move namespace back for %s: %v", oldUsername, rerr)
		}
		if dup, ok := IsDuplicate(err); ok {
			return models.Fail(duplicateMessage(dup)), nil
		}
		return nil, err
	}

	// Stored asset paths embed the username; rewrite them to the new subtree
	newAvatar := user.AvatarPath
	if user.AvatarPath != "" {
		newAvatar = a.ns.PublicPath(norm, filepath.Base(user.AvatarPath))
		if err := a.users.SetAvatarPath(ctx, user.ID, newAvatar); err != nil {
			return nil, err
		}
	}
	if user.CoverPath != "" {
		newCover := a.ns.PublicPath(norm, filepath.Base(user.CoverPath))
		if err := a.users.SetCoverPath(ctx, user.ID, newCover); err != nil {
			return nil, err
		}
	}

	a.refreshSnapshot(ctx, session, func(s *models.Session) {
		s.Username = norm
		s.AvatarPath = newAvatar
	})

	log.Printf("✅ Username changed: %s -> %s", oldUsername, norm)

	return models.OK("Username updated successfully"), nil
}

// DeleteAccount verifies the credential and the typed confirmation phrase,
// removes the namespace, hard-deletes the row and destroys the session.
// The namespace goes first: if the row delete then fails, the leftover is an
// orphaned row with no assets rather than assets nothing points at.
func (a *AccountService) DeleteAccount(ctx context.Context, session *models.Session, password, confirmation string) (*models.Result, error) {
	user, res, err := a.currentUser(ctx, session)
	if user == nil {
		return res, err
	}

	if !a.users.VerifyCredential(user, password) {
		return models.Fail("Incorrect password"), nil
	}
	if confirmation != DeleteConfirmationPhrase {
		return models.Fail(`You must type "ELIMINAR" to confirm`), nil
	}

	if err := a.ns.Delete(user.Username); err != nil {
		return nil, err
	}

	if err := a.users.Delete(ctx, user.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := a.sessions.Unbind(ctx, session.Token); err != nil {
		log.Printf("⚠️  Failed to invalidate session for deleted account %s: %v", user.Username, err)
	}

	log.Printf("🗑️  Account deleted: %s", user.Username)

	out := models.OK("Your account has been deleted")
	out.Redirect = "/auth/register?deleted=true"
	return out, nil
}

// --- helpers ---

const (
	authFailureMessage = "Invalid credentials"
	notFoundMessage    = "User not found"
)

// currentUser loads the caller's user row. A missing row means the account
// disappeared underneath a live session: the caller gets a failure result
// pointing at logout.
func (a *AccountService) currentUser(ctx context.Context, session *models.Session) (*models.User, *models.Result, error) {
	user, err := a.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			res := models.Fail(notFoundMessage)
			res.Redirect = "/auth/logout"
			return nil, res, nil
		}
		return nil, nil, err
	}
	return user, nil, nil
}

// refreshSnapshot updates the session copy after a committed write. A stale
// snapshot is tolerable, so failures are logged, not propagated.
func (a *AccountService) refreshSnapshot(ctx context.Context, session *models.Session, mutate func(*models.Session)) {
	mutate(session)
	if err := a.sessions.RefreshSnapshot(ctx, session.Token, mutate); err != nil {
		log.Printf("⚠️  Failed to refresh session snapshot for %s: %v", session.Username, err)
	}
}

func duplicateMessage(d *DuplicateError) string {
	if d.Field == "email" {
		return "This email is already registered"
	}
	return "This username is already in use"
}

// uploadFailureMessage maps classified upload failures to user-facing text.
func uploadFailureMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrNoFile):
		return "No image was uploaded", true
	case errors.Is(err, ErrTooLarge):
		return "Image exceeds the maximum allowed size", true
	case errors.Is(err, ErrUnsupportedType):
		return "Only images are allowed (jpg, jpeg, png, gif, webp)", true
	}
	var perr *ProcessingError
	if errors.As(err, &perr) {
		return "The image could not be processed", true
	}
	var serr *StorageError
	if errors.As(err, &serr) {
		return "Failed to store the image. Try again.", true
	}
	return "", false
}
