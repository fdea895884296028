package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarium/api/internal/config"
	"librarium/api/internal/models"
	"librarium/api/internal/repository"
	"librarium/api/internal/security"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTAccessSecret:  "access-secret-for-tests",
			JWTRefreshSecret: "refresh-secret-for-tests",
			JWTAccessTTL:     15 * time.Minute,
			JWTRefreshTTL:    7 * 24 * time.Hour,
			ResetTokenTTL:    30 * time.Minute,
			MaxSessions:      10,
		},
		Library: config.LibraryConfig{
			LoanPeriod:     14 * 24 * time.Hour,
			MaxActiveLoans: 5,
		},
	}
}

type authFixture struct {
	svc      *AuthService
	users    *mockUserStore
	sessions *mockSessionStore
	resets   *mockResetStore
	cfg      *config.AppConfig
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()

	users := newMockUserStore()
	sessions := newMockSessionStore()
	resets := newMockResetStore()
	cfg := testConfig()

	svc := NewAuthService(users, sessions, resets, allowAllLimiter{}, cfg, zerolog.Nop())

	return authFixture{
		svc:      svc,
		users:    users,
		sessions: sessions,
		resets:   resets,
		cfg:      cfg,
	}
}

func (f authFixture) seedUser(t *testing.T, email string, password string) models.User {
	t.Helper()

	hash, err := security.HashPassword(password)
	require.NoError(t, err)

	user := models.User{
		ID:           "user-" + email,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Test Reader",
		Role:         models.UserRoleUser,
		Status:       models.UserStatusActive,
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func TestLoginSuccessIssuesParseableAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	user := f.seedUser(t, "reader@example.com", "s3cret-password")

	result, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "Reader@Example.com",
		Password: "s3cret-password",
	})
	require.NoError(t, err)

	claims, err := security.ParseAccessToken(result.AccessToken, f.cfg.Security.JWTAccessSecret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, string(user.Role), claims.Role)

	// The refresh record exists and holds a hash, not the token.
	stored, ok := f.sessions.get(result.SessionID)
	require.True(t, ok)
	assert.Equal(t, security.HashToken(result.RefreshToken), stored.RefreshTokenHash)
	assert.NotContains(t, string(stored.RefreshTokenHash), result.RefreshToken)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "reader@example.com", "s3cret-password")

	_, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "reader@example.com",
		Password: "not-the-password",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 0, f.sessions.len())
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "reader@example.com", "s3cret-password")

	_, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "nobody@example.com",
		Password: "whatever-password",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRateLimited(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "reader@example.com", "s3cret-password")

	svc := NewAuthService(f.users, f.sessions, f.resets, denyLimiter{}, f.cfg, zerolog.Nop())
	_, err := svc.Login(context.Background(), LoginInput{
		Email:    "reader@example.com",
		Password: "s3cret-password",
	})
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "reader@example.com", "s3cret-password")

	login, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "reader@example.com",
		Password: "s3cret-password",
	})
	require.NoError(t, err)

	first, err := f.svc.Refresh(context.Background(), login.RefreshToken, "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, first.RefreshToken)
	assert.NotEqual(t, login.SessionID, first.SessionID)

	// The consumed record is gone, the replacement is stored.
	_, ok := f.sessions.get(login.SessionID)
	assert.False(t, ok)
	_, ok = f.sessions.get(first.SessionID)
	assert.True(t, ok)

	// Replaying the rotated-away token is a theft signal: every session the
	// user owns is revoked, including the replacement.
	_, err = f.svc.Refresh(context.Background(), login.RefreshToken, "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, ErrTokenInvalidated)
	assert.Equal(t, 0, f.sessions.len())

	// And the replacement token obtained from the first refresh is dead too.
	_, err = f.svc.Refresh(context.Background(), first.RefreshToken, "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, ErrTokenInvalidated)
}

func TestRefreshNoToken(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Refresh(context.Background(), "", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestRefreshGarbageToken(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Refresh(context.Background(), "not.a.jwt", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshExpiredRecordIsInvalidNotInvalidated(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "reader@example.com", "s3cret-password")

	login, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "reader@example.com",
		Password: "s3cret-password",
	})
	require.NoError(t, err)

	// Age the stored record past its TTL while the JWT itself still parses.
	stored, ok := f.sessions.get(login.SessionID)
	require.True(t, ok)
	stored.ExpiresAt = time.Now().Add(-time.Hour)
	f.sessions.put(stored)

	_, err = f.svc.Refresh(context.Background(), login.RefreshToken, "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// An expired token is not a theft signal; it is simply removed.
	_, ok = f.sessions.get(login.SessionID)
	assert.False(t, ok)
}

func TestTwoDevicesRefreshIndependently(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "reader@example.com", "s3cret-password")

	device1, err := f.svc.Login(context.Background(), LoginInput{
		Email:     "reader@example.com",
		Password:  "s3cret-password",
		UserAgent: "device-1",
	})
	require.NoError(t, err)

	device2, err := f.svc.Login(context.Background(), LoginInput{
		Email:     "reader@example.com",
		Password:  "s3cret-password",
		UserAgent: "device-2",
	})
	require.NoError(t, err)
	require.Equal(t, 2, f.sessions.len())

	_, err = f.svc.Refresh(context.Background(), device1.RefreshToken, "10.0.0.1", "device-1")
	require.NoError(t, err)

	// Device 2's record is untouched and still refreshes.
	_, ok := f.sessions.get(device2.SessionID)
	assert.True(t, ok)

	_, err = f.svc.Refresh(context.Background(), device2.RefreshToken, "10.0.0.2", "device-2")
	assert.NoError(t, err)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "reader@example.com", "s3cret-password")

	login, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "reader@example.com",
		Password: "s3cret-password",
	})
	require.NoError(t, err)

	f.svc.Logout(context.Background(), login.RefreshToken)
	assert.Equal(t, 0, f.sessions.len())

	// Same token again, empty token, garbage token: all no-ops.
	f.svc.Logout(context.Background(), login.RefreshToken)
	f.svc.Logout(context.Background(), "")
	f.svc.Logout(context.Background(), "not.a.jwt")
	assert.Equal(t, 0, f.sessions.len())
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:       "new@example.com",
		Password:    "s3cret-password",
		DisplayName: "New Reader",
	})
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), RegisterInput{
		Email:       "New@Example.com",
		Password:    "other-password",
		DisplayName: "Imposter",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

// blindEmailStore hides existing users from the pre-insert lookup, the same
// window two concurrent registrations race through.
type blindEmailStore struct{ *mockUserStore }

func (s blindEmailStore) FindByEmail(context.Context, string) (models.User, error) {
	return models.User{}, repository.ErrUserNotFound
}

func TestRegisterDuplicateEmailUnderRace(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "reader@example.com", "s3cret-password")

	svc := NewAuthService(blindEmailStore{f.users}, f.sessions, f.resets, allowAllLimiter{}, f.cfg, zerolog.Nop())

	// The lookup saw nothing, so only the unique constraint stands between
	// this insert and a second account on the same email.
	_, err := svc.Register(context.Background(), RegisterInput{
		Email:       "reader@example.com",
		Password:    "other-password",
		DisplayName: "Second Comer",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestPasswordResetIsSingleUseAndRevokesSessions(t *testing.T) {
	f := newAuthFixture(t)
	user := f.seedUser(t, "reader@example.com", "old-password-123")

	_, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "reader@example.com",
		Password: "old-password-123",
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.sessions.len())

	token, err := f.svc.RequestPasswordReset(context.Background(), "reader@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, f.svc.ConfirmPasswordReset(context.Background(), token, "new-password-456"))

	// All sessions were revoked and the new password works.
	assert.Equal(t, 0, f.sessions.len())
	updated, err := f.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	ok, err := security.VerifyPassword("new-password-456", updated.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second use of the same token fails.
	err = f.svc.ConfirmPasswordReset(context.Background(), token, "another-password")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestPasswordResetUnknownEmailIsGeneric(t *testing.T) {
	f := newAuthFixture(t)

	token, err := f.svc.RequestPasswordReset(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestRevokeSessionOnlyOwn(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "reader@example.com", "s3cret-password")
	f.seedUser(t, "other@example.com", "s3cret-password")

	mine, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "reader@example.com",
		Password: "s3cret-password",
	})
	require.NoError(t, err)

	theirs, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "other@example.com",
		Password: "s3cret-password",
	})
	require.NoError(t, err)

	// A user cannot revoke a session that belongs to someone else.
	err = f.svc.RevokeSession(context.Background(), mine.User.ID, theirs.SessionID)
	assert.Error(t, err)
	_, ok := f.sessions.get(theirs.SessionID)
	assert.True(t, ok)

	require.NoError(t, f.svc.RevokeSession(context.Background(), mine.User.ID, mine.SessionID))
	_, ok = f.sessions.get(mine.SessionID)
	assert.False(t, ok)
}
