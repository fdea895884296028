package service

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"librarium/api/internal/config"
	"librarium/api/internal/ids"
	"librarium/api/internal/models"
	"librarium/api/internal/repository"
	"librarium/api/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserSuspended      = errors.New("user suspended")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrNoToken            = errors.New("no refresh token")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrTokenInvalidated   = errors.New("refresh token invalidated")
	ErrInvalidResetToken  = errors.New("invalid reset token")
)

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	UpdatePasswordHash(ctx context.Context, id string, passwordHash []byte) error
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteAllByUser(ctx context.Context, userID string) error
	DeleteOldestSessions(ctx context.Context, userID string, keepLatest int) error
	Rotate(ctx context.Context, oldID string, replacement models.Session) error
}

type ResetStore interface {
	Create(ctx context.Context, reset models.PasswordReset) error
	FindByTokenHash(ctx context.Context, tokenHash []byte) (models.PasswordReset, error)
	DeleteByID(ctx context.Context, id string) error
}

// LoginLimiter throttles credential guessing; keys are email+ip pairs.
type LoginLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type AuthService struct {
	users    UserStore
	sessions SessionStore
	resets   ResetStore
	limiter  LoginLimiter
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(
	users UserStore,
	sessions SessionStore,
	resets ResetStore,
	limiter LoginLimiter,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		resets:   resets,
		limiter:  limiter,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	IPAddress   string
	UserAgent   string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	User         models.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	email := normalizeEmail(input.Email)

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  input.DisplayName,
		Role:         models.UserRoleUser,
		Status:       models.UserStatusActive,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration can slip past the lookup above; the
		// unique constraint is the authority.
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, err
	}

	return s.createSession(ctx, user, input.IPAddress, input.UserAgent)
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	email := normalizeEmail(input.Email)

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, email+":"+input.IPAddress)
		if err != nil {
			s.log.Warn().Err(err).Msg("login limiter unavailable")
		} else if !allowed {
			return AuthResult{}, ErrTooManyAttempts
		}
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Burn the same hashing work as a real check so the response
			// does not reveal whether the account exists.
			security.DummyVerify(input.Password)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.createSession(ctx, user, input.IPAddress, input.UserAgent)
}

// createSession issues the access/refresh pair and persists the hashed
// refresh record. Tokens are only returned once the record is stored, so no
// token exists without a backing record.
func (s *AuthService) createSession(ctx context.Context, user models.User, ip string, userAgent string) (AuthResult, error) {
	sessionID := ids.New()

	refreshToken, err := security.GenerateRefreshToken(
		s.cfg.Security.JWTRefreshSecret,
		user.ID,
		sessionID,
		s.cfg.Security.JWTRefreshTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	accessToken, err := security.GenerateAccessToken(
		s.cfg.Security.JWTAccessSecret,
		user.ID,
		sessionID,
		string(user.Role),
		s.cfg.Security.JWTAccessTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	session := models.Session{
		ID:               sessionID,
		UserID:           user.ID,
		RefreshTokenHash: security.HashToken(refreshToken),
		IPAddress:        ip,
		UserAgent:        userAgent,
		ExpiresAt:        time.Now().Add(s.cfg.Security.JWTRefreshTTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthResult{}, fmt.Errorf("store session: %w", err)
	}

	if err := s.enforceSessionLimit(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enforce session limit failed")
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
		User:         user,
	}, nil
}

func (s *AuthService) enforceSessionLimit(ctx context.Context, userID string) error {
	count, err := s.sessions.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count <= s.cfg.Security.MaxSessions {
		return nil
	}
	return s.sessions.DeleteOldestSessions(ctx, userID, s.cfg.Security.MaxSessions)
}

// Refresh rotates the presented refresh token: the consumed record is deleted
// and its replacement inserted in one transaction. A verified token that
// matches no stored record is treated as theft; every session the user owns
// is revoked.
func (s *AuthService) Refresh(ctx context.Context, presented string, ip string, userAgent string) (AuthResult, error) {
	if presented == "" {
		return AuthResult{}, ErrNoToken
	}

	claims, err := security.ParseRefreshToken(presented, s.cfg.Security.JWTRefreshSecret)
	if err != nil {
		return AuthResult{}, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidToken
		}
		return AuthResult{}, err
	}
	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	records, err := s.sessions.ListByUser(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	matched, found := matchSession(records, security.HashToken(presented))
	if !found {
		s.log.Warn().Str("user_id", user.ID).Msg("refresh token reuse detected, revoking all sessions")
		if err := s.sessions.DeleteAllByUser(ctx, user.ID); err != nil {
			return AuthResult{}, err
		}
		return AuthResult{}, ErrTokenInvalidated
	}

	if matched.ExpiresAt.Before(time.Now()) {
		_ = s.sessions.DeleteByID(ctx, matched.ID)
		return AuthResult{}, ErrInvalidToken
	}

	sessionID := ids.New()

	refreshToken, err := security.GenerateRefreshToken(
		s.cfg.Security.JWTRefreshSecret,
		user.ID,
		sessionID,
		s.cfg.Security.JWTRefreshTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	accessToken, err := security.GenerateAccessToken(
		s.cfg.Security.JWTAccessSecret,
		user.ID,
		sessionID,
		string(user.Role),
		s.cfg.Security.JWTAccessTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	replacement := models.Session{
		ID:               sessionID,
		UserID:           user.ID,
		RefreshTokenHash: security.HashToken(refreshToken),
		IPAddress:        ip,
		UserAgent:        userAgent,
		ExpiresAt:        time.Now().Add(s.cfg.Security.JWTRefreshTTL),
	}

	if err := s.sessions.Rotate(ctx, matched.ID, replacement); err != nil {
		return AuthResult{}, fmt.Errorf("rotate session: %w", err)
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
		User:         user,
	}, nil
}

// Logout is idempotent: whatever state the presented token is in, the caller
// always succeeds. A verified token that still matches a record removes it.
func (s *AuthService) Logout(ctx context.Context, presented string) {
	if presented == "" {
		return
	}

	claims, err := security.ParseRefreshToken(presented, s.cfg.Security.JWTRefreshSecret)
	if err != nil {
		return
	}

	records, err := s.sessions.ListByUser(ctx, claims.UserID)
	if err != nil {
		s.log.Warn().Err(err).Msg("logout session lookup failed")
		return
	}

	if matched, found := matchSession(records, security.HashToken(presented)); found {
		if err := s.sessions.DeleteByID(ctx, matched.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			s.log.Warn().Err(err).Msg("logout session delete failed")
		}
	}
}

// RevokeSession removes one of the user's own sessions (another device).
func (s *AuthService) RevokeSession(ctx context.Context, userID string, sessionID string) error {
	records, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, record := range records {
		if record.ID == sessionID {
			return s.sessions.DeleteByID(ctx, sessionID)
		}
	}
	return repository.ErrSessionNotFound
}

func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// RequestPasswordReset creates a hashed single-use reset record. The raw
// token is returned to the caller for out-of-band delivery; the HTTP response
// stays generic whether or not the account exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}

	token, tokenHash, err := security.GenerateOpaqueToken(32)
	if err != nil {
		return "", err
	}

	reset := models.PasswordReset{
		ID:        ids.New(),
		UserID:    user.ID,
		TokenHash: tokenHash,
		ExpiresAt: time.Now().Add(s.cfg.Security.ResetTokenTTL),
	}

	if err := s.resets.Create(ctx, reset); err != nil {
		return "", err
	}

	return token, nil
}

// ConfirmPasswordReset consumes the reset token, updates the password hash
// and revokes every outstanding session for the user.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token string, newPassword string) error {
	reset, err := s.resets.FindByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrResetNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	if err := s.resets.DeleteByID(ctx, reset.ID); err != nil && !errors.Is(err, repository.ErrResetNotFound) {
		return err
	}

	if reset.ExpiresAt.Before(time.Now()) {
		return ErrInvalidResetToken
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePasswordHash(ctx, reset.UserID, passwordHash); err != nil {
		return err
	}

	if err := s.sessions.DeleteAllByUser(ctx, reset.UserID); err != nil {
		s.log.Warn().Err(err).Str("user_id", reset.UserID).Msg("revoke sessions after reset failed")
	}

	return nil
}

func (s *AuthService) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.users.GetByID(ctx, id)
}

func matchSession(records []models.Session, tokenHash []byte) (models.Session, bool) {
	for _, record := range records {
		if hmac.Equal(record.RefreshTokenHash, tokenHash) {
			return record, true
		}
	}
	return models.Session{}, false
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
