package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recetario/internal/models"
	"recetario/pkg/utils"
)

// fakeUserStore is an in-memory UserStore for orchestrator tests. Passwords
// are kept verbatim: hashing has its own tests.
type fakeUserStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*models.User
	passwords map[uuid.UUID]string
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:     make(map[uuid.UUID]*models.User),
		passwords: make(map[uuid.UUID]string),
	}
}

func (f *fakeUserStore) Create(_ context.Context, username, email, rawPassword, firstName, lastName string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	normUsername := utils.NormalizeUsername(username)
	normEmail := utils.NormalizeEmail(email)
	for _, u := range f.users {
		if u.Username == normUsername {
			return nil, &DuplicateError{Field: "username"}
		}
	}
	for _, u := range f.users {
		if u.Email == normEmail {
			return nil, &DuplicateError{Field: "email"}
		}
	}

	user := &models.User{
		ID:           uuid.New(),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		Username:     normUsername,
		Email:        normEmail,
		PasswordHash: "fake-hash",
		FirstName:    firstName,
		LastName:     lastName,
		Role:         models.RoleUser,
		IsActive:     true,
	}
	f.users[user.ID] = user
	f.passwords[user.ID] = rawPassword
	return copyUser(user), nil
}

func (f *fakeUserStore) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, ErrNotFound
}

func (f *fakeUserStore) FindByUsername(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	norm := utils.NormalizeUsername(username)
	for _, u := range f.users {
		if u.Username == norm {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeUserStore) FindByLoginIdentifier(_ context.Context, identifier string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	norm := strings.ToLower(strings.TrimSpace(identifier))
	for _, u := range f.users {
		if u.Username == norm || u.Email == norm {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeUserStore) VerifyCredential(u *models.User, rawPassword string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.passwords[u.ID]
	return ok && stored == rawPassword
}

func (f *fakeUserStore) UpdateCredential(_ context.Context, id uuid.UUID, newRawPassword string) error {
	return f.mutate(id, func(u *models.User) { f.passwords[id] = newRawPassword })
}

func (f *fakeUserStore) UpdateEmail(_ context.Context, id uuid.UUID, newEmail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	norm := utils.NormalizeEmail(newEmail)
	for _, u := range f.users {
		if u.Email == norm && u.ID != id {
			return &DuplicateError{Field: "email"}
		}
	}
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Email = norm
	u.IsEmailVerified = false
	return nil
}

func (f *fakeUserStore) UpdateUsername(_ context.Context, id uuid.UUID, newUsername string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	norm := utils.NormalizeUsername(newUsername)
	for _, u := range f.users {
		if u.Username == norm && u.ID != id {
			return &DuplicateError{Field: "username"}
		}
	}
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Username = norm
	return nil
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, id uuid.UUID, p ProfileUpdate) error {
	return f.mutate(id, func(u *models.User) {
		u.FirstName = p.FirstName
		u.LastName = p.LastName
		u.Bio = p.Bio
		u.Country = p.Country
		u.City = p.City
		u.Location = p.Location
		u.Website = p.Website
		u.Instagram = p.Instagram
		u.Twitter = p.Twitter
		u.Facebook = p.Facebook
		u.YouTube = p.YouTube
	})
}

func (f *fakeUserStore) SetAvatarPath(_ context.Context, id uuid.UUID, path string) error {
	return f.mutate(id, func(u *models.User) { u.AvatarPath = path })
}

func (f *fakeUserStore) SetCoverPath(_ context.Context, id uuid.UUID, path string) error {
	return f.mutate(id, func(u *models.User) { u.CoverPath = path })
}

func (f *fakeUserStore) TouchLastLogin(_ context.Context, id uuid.UUID) error {
	return f.mutate(id, func(u *models.User) {
		now := time.Now()
		u.LastLoginAt = &now
	})
}

func (f *fakeUserStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return ErrNotFound
	}
	delete(f.users, id)
	delete(f.passwords, id)
	return nil
}

func (f *fakeUserStore) mutate(id uuid.UUID, fn func(*models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	return nil
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

// --- fixture ---

type accountsFixture struct {
	accounts *AccountService
	store    *fakeUserStore
	sessions *SessionService
	ns       *Namespace
	redis    *miniredis.Miniredis
}

func newAccountsFixture(t *testing.T) *accountsFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := newFakeUserStore()
	sessions := NewSessionService(client, time.Hour)
	ns := NewNamespace(t.TempDir())
	assets := NewAssetPipeline(ns, 5*1024*1024, 400, 1200, 400)

	return &accountsFixture{
		accounts: NewAccountService(store, sessions, assets, ns),
		store:    store,
		sessions: sessions,
		ns:       ns,
		redis:    mr,
	}
}

func (fx *accountsFixture) register(t *testing.T, username, email, password string) *models.Result {
	t.Helper()
	res, err := fx.accounts.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotNil(t, res.Session)
	return res
}

// --- register / login ---

func TestRegister_CreatesUserAndBindsSession(t *testing.T) {
	fx := newAccountsFixture(t)

	res := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	assert.Equal(t, "/", res.Redirect)
	require.NotNil(t, res.User)
	assert.Equal(t, "chef99", res.User.Username)

	got, err := fx.sessions.Get(context.Background(), res.Session.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "chef99", got.Username)
	assert.Equal(t, res.User.ID, got.UserID)
}

func TestRegister_RejectsInvalidInput(t *testing.T) {
	fx := newAccountsFixture(t)
	ctx := context.Background()

	for _, in := range []RegisterInput{
		{Username: "ab", Email: "a@example.com", Password: "123456"},
		{Username: "chef99", Email: "not-an-email", Password: "123456"},
		{Username: "chef99", Email: "a@example.com", Password: "123"},
	} {
		res, err := fx.accounts.Register(ctx, in)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Messages)
	}
	assert.Empty(t, fx.store.users)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	fx := newAccountsFixture(t)
	fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")

	res, err := fx.accounts.Register(context.Background(), RegisterInput{
		Username: "Chef99", Email: "other@example.com", Password: "123456",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Messages[0], "username")
	assert.Len(t, fx.store.users, 1)
}

func TestLogin_ByUsernameAndEmail(t *testing.T) {
	fx := newAccountsFixture(t)
	fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	for _, identifier := range []string{"chef99", "chef99@example.com", " Chef99 "} {
		res, err := fx.accounts.Login(ctx, LoginInput{Identifier: identifier, Password: "s3cret-pass"})
		require.NoError(t, err)
		assert.True(t, res.Success, "identifier %q", identifier)
		assert.Equal(t, "/", res.Redirect)
		require.NotNil(t, res.Session)
	}

	// Login refreshed the timestamp
	user, err := fx.store.FindByUsername(ctx, "chef99")
	require.NoError(t, err)
	assert.NotNil(t, user.LastLoginAt)
}

func TestLogin_WrongPasswordIsGenericAndSideEffectFree(t *testing.T) {
	fx := newAccountsFixture(t)
	res := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	// Drop the registration session so the store is observably empty after
	require.NoError(t, fx.sessions.Unbind(ctx, res.Session.Token))

	out, err := fx.accounts.Login(ctx, LoginInput{Identifier: "chef99", Password: "wrongpass"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, []string{"Invalid credentials"}, out.Messages)
	assert.Nil(t, out.Session)
	assert.Empty(t, fx.redis.Keys(), "no session may be created")

	user, err := fx.store.FindByUsername(ctx, "chef99")
	require.NoError(t, err)
	assert.Nil(t, user.LastLoginAt, "rejection paths are side-effect-free")
}

func TestLogin_UnknownIdentifierSharesGenericMessage(t *testing.T) {
	fx := newAccountsFixture(t)

	res, err := fx.accounts.Login(context.Background(), LoginInput{Identifier: "ghost", Password: "whatever"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"Invalid credentials"}, res.Messages)
}

func TestLogin_InactiveAccount(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	require.NoError(t, fx.store.mutate(reg.User.ID, func(u *models.User) { u.IsActive = false }))

	res, err := fx.accounts.Login(context.Background(), LoginInput{Identifier: "chef99", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, res.Session)
}

// --- password / email / profile ---

func TestChangePassword(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "old-password")
	ctx := context.Background()

	res, err := fx.accounts.ChangePassword(ctx, reg.Session, "wrong-password", "new-password")
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = fx.accounts.ChangePassword(ctx, reg.Session, "old-password", "new-password")
	require.NoError(t, err)
	assert.True(t, res.Success)

	login, err := fx.accounts.Login(ctx, LoginInput{Identifier: "chef99", Password: "new-password"})
	require.NoError(t, err)
	assert.True(t, login.Success)
}

func TestChangeEmail_DuplicateLeavesEverythingUntouched(t *testing.T) {
	fx := newAccountsFixture(t)
	fx.register(t, "otherchef", "taken@example.com", "123456")
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	res, err := fx.accounts.ChangeEmail(ctx, reg.Session, "s3cret-pass", "taken@example.com")
	require.NoError(t, err)
	assert.False(t, res.Success)

	user, err := fx.store.FindByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "chef99@example.com", user.Email)
	assert.False(t, user.IsEmailVerified)

	snap, err := fx.sessions.Get(ctx, reg.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, "chef99@example.com", snap.Email)
}

func TestChangeEmail_UpdatesRowAndSnapshot(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	res, err := fx.accounts.ChangeEmail(ctx, reg.Session, "s3cret-pass", "New@Example.com")
	require.NoError(t, err)
	assert.True(t, res.Success)

	user, err := fx.store.FindByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.False(t, user.IsEmailVerified)

	snap, err := fx.sessions.Get(ctx, reg.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", snap.Email)
}

func TestChangeEmail_WrongPassword(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")

	res, err := fx.accounts.ChangeEmail(context.Background(), reg.Session, "wrong", "new@example.com")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestUpdateProfile_RefreshesNameSnapshot(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	res, err := fx.accounts.UpdateProfile(ctx, reg.Session, ProfileUpdate{
		FirstName: "Ana", LastName: "García", Bio: "I cook things", City: "Sevilla",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Ana", res.User.FirstName)

	snap, err := fx.sessions.Get(ctx, reg.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, "Ana", snap.FirstName)
	assert.Equal(t, "García", snap.LastName)
}

func TestUpdateProfile_RejectsOverlongBio(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")

	res, err := fx.accounts.UpdateProfile(context.Background(), reg.Session, ProfileUpdate{
		Bio: strings.Repeat("x", utils.MaxBioLength+1),
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

// --- avatar / cover ---

func TestUpdateAvatar_SetsPathAndSnapshot(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	file, header := upload(t, "me.png", "image/png", pngBytes(t, 640, 480))
	res, err := fx.accounts.UpdateAvatar(ctx, reg.Session, file, header)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.AssetURL, "/uploads/users/chef99/avatar.png?t="), res.AssetURL)

	user, err := fx.store.FindByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/users/chef99/avatar.png", user.AvatarPath)

	snap, err := fx.sessions.Get(ctx, reg.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/users/chef99/avatar.png", snap.AvatarPath)
}

func TestUpdateAvatar_IngestFailureLeavesUserUntouched(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	file, header := upload(t, "notes.txt", "text/plain", []byte("not an image"))
	res, err := fx.accounts.UpdateAvatar(ctx, reg.Session, file, header)
	require.NoError(t, err)
	assert.False(t, res.Success)

	user, err := fx.store.FindByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Empty(t, user.AvatarPath)
}

func TestUpdateCover_SetsPath(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	file, header := upload(t, "kitchen.png", "image/png", pngBytes(t, 1600, 900))
	res, err := fx.accounts.UpdateCover(ctx, reg.Session, file, header)
	require.NoError(t, err)
	require.True(t, res.Success)

	user, err := fx.store.FindByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/users/chef99/cover.png", user.CoverPath)
}

// --- username change ---

func TestChangeUsername_MovesNamespaceAndRewritesPaths(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	file, header := upload(t, "me.png", "image/png", pngBytes(t, 500, 500))
	_, err := fx.accounts.UpdateAvatar(ctx, reg.Session, file, header)
	require.NoError(t, err)

	res, err := fx.accounts.ChangeUsername(ctx, reg.Session, "s3cret-pass", "masterchef")
	require.NoError(t, err)
	require.True(t, res.Success)

	_, statErr := os.Stat(fx.ns.Dir("chef99"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(fx.ns.Dir("masterchef"), "avatar.png"))
	assert.NoError(t, statErr)

	user, err := fx.store.FindByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "masterchef", user.Username)
	assert.Equal(t, "/uploads/users/masterchef/avatar.png", user.AvatarPath)

	snap, err := fx.sessions.Get(ctx, reg.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, "masterchef", snap.Username)
	assert.Equal(t, "/uploads/users/masterchef/avatar.png", snap.AvatarPath)
}

func TestChangeUsername_DuplicateKeepsNamespace(t *testing.T) {
	fx := newAccountsFixture(t)
	fx.register(t, "masterchef", "other@example.com", "123456")
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	file, header := upload(t, "me.png", "image/png", pngBytes(t, 500, 500))
	_, err := fx.accounts.UpdateAvatar(ctx, reg.Session, file, header)
	require.NoError(t, err)

	res, err := fx.accounts.ChangeUsername(ctx, reg.Session, "s3cret-pass", "masterchef")
	require.NoError(t, err)
	assert.False(t, res.Success)

	_, statErr := os.Stat(filepath.Join(fx.ns.Dir("chef99"), "avatar.png"))
	assert.NoError(t, statErr, "namespace must not move for a rejected rename")
}

// --- account deletion ---

func TestDeleteAccount_FullScenario(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	file, header := upload(t, "me.png", "image/png", pngBytes(t, 500, 500))
	_, err := fx.accounts.UpdateAvatar(ctx, reg.Session, file, header)
	require.NoError(t, err)

	res, err := fx.accounts.DeleteAccount(ctx, reg.Session, "s3cret-pass", "ELIMINAR")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "/auth/register?deleted=true", res.Redirect)

	// Namespace subtree absent
	_, statErr := os.Stat(fx.ns.Dir("chef99"))
	assert.True(t, os.IsNotExist(statErr))

	// Row absent
	_, err = fx.store.FindByID(ctx, reg.User.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Session destroyed
	snap, err := fx.sessions.Get(ctx, reg.Session.Token)
	require.NoError(t, err)
	assert.Nil(t, snap)

	// Subsequent login fails with the generic auth message
	login, err := fx.accounts.Login(ctx, LoginInput{Identifier: "chef99", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.False(t, login.Success)
	assert.Equal(t, []string{"Invalid credentials"}, login.Messages)
}

func TestDeleteAccount_RequiresConfirmationPhrase(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	for _, phrase := range []string{"", "eliminar", "DELETE", "ELIMINAR "} {
		res, err := fx.accounts.DeleteAccount(ctx, reg.Session, "s3cret-pass", phrase)
		require.NoError(t, err)
		assert.False(t, res.Success, "phrase %q", phrase)
	}

	_, err := fx.store.FindByID(ctx, reg.User.ID)
	assert.NoError(t, err, "account must survive failed confirmations")
}

func TestDeleteAccount_WrongPassword(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")

	res, err := fx.accounts.DeleteAccount(context.Background(), reg.Session, "wrongpass", "ELIMINAR")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

// --- logout ---

func TestLogout_DestroysSession(t *testing.T) {
	fx := newAccountsFixture(t)
	reg := fx.register(t, "chef99", "chef99@example.com", "s3cret-pass")
	ctx := context.Background()

	res := fx.accounts.Logout(ctx, reg.Session)
	assert.True(t, res.Success)
	assert.Equal(t, "/auth/login", res.Redirect)

	snap, err := fx.sessions.Get(ctx, reg.Session.Token)
	require.NoError(t, err)
	assert.Nil(t, snap)
}
