package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"kaaj/internal/apperrors"
	"kaaj/internal/backend"
	"kaaj/internal/config"
	"kaaj/internal/models"
	"kaaj/internal/worker"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// MinPasswordLength is the only password rule the server enforces.
const MinPasswordLength = 6

// AuthService is the identity provider: accounts, sessions and the events
// clients listen to.
type AuthService interface {
	SignUp(ctx context.Context, email, password string) (*backend.Credentials, error)
	SignIn(ctx context.Context, email, password string) (*backend.Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (*backend.Credentials, error)
	SignOut(ctx context.Context, refreshToken string) error

	Me(ctx context.Context, uid string) (*backend.Identity, error)
	SendVerification(ctx context.Context, uid string) error
	Verify(ctx context.Context, token string) (*backend.Identity, error)
	Reauthenticate(ctx context.Context, uid, password string) error
	UpdatePassword(ctx context.Context, uid, sid, password string) error
	UpdateProfile(ctx context.Context, uid, sid string, change backend.ProfileChange) (*backend.Identity, error)
}

type AuthServiceImpl struct {
	db       *gorm.DB
	tokens   *TokenService
	events   *EventBus
	jobs     *worker.JobQueue
	cfg      config.AuthConfig
	validate *validator.Validate
	logger   *log.Logger
	now      func() time.Time
}

func NewAuthService(db *gorm.DB, tokens *TokenService, events *EventBus, jobs *worker.JobQueue, cfg config.AuthConfig, logger *log.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		db:       db,
		tokens:   tokens,
		events:   events,
		jobs:     jobs,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

func identityView(m *models.Identity) *backend.Identity {
	return &backend.Identity{
		UID:           m.ID,
		Email:         m.Email,
		DisplayName:   m.DisplayName,
		PhotoURL:      m.PhotoURL,
		EmailVerified: m.EmailVerified,
		CreatedAt:     m.CreatedAt,
		LastLoginAt:   m.LastLoginAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthServiceImpl) find(ctx context.Context, uid string) (*models.Identity, error) {
	var ident models.Identity
	if err := s.db.WithContext(ctx).Where("id = ?", uid).First(&ident).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.KindUserNotFound, err)
		}
		return nil, storeError(err, apperrors.KindInternal)
	}
	return &ident, nil
}

func (s *AuthServiceImpl) session(ident *models.Identity, tokens backend.Tokens) *backend.Credentials {
	return &backend.Credentials{Identity: *identityView(ident), Tokens: tokens}
}

func (s *AuthServiceImpl) publish(ctx context.Context, uid string, typ backend.EventType, sid string, ident *models.Identity) {
	evt := backend.IdentityEvent{Type: typ, SessionID: sid, At: s.now()}
	if ident != nil {
		evt.Identity = identityView(ident)
	}
	s.events.Publish(context.WithoutCancel(ctx), uid, evt)
}

func (s *AuthServiceImpl) SignIn(ctx context.Context, email, password string) (*backend.Credentials, error) {
	var ident models.Identity
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&ident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.KindUserNotFound)
	}
	if err != nil {
		return nil, storeError(err, apperrors.KindInternal)
	}
	if ident.Disabled {
		return nil, apperrors.New(apperrors.KindUserDisabled)
	}
	if !VerifyPassword(ident.PasswordHash, password) {
		return nil, apperrors.New(apperrors.KindWrongPassword)
	}

	now := s.now()
	ident.LastLoginAt = &now
	if err := s.db.WithContext(ctx).Model(&ident).Update("last_login_at", now).Error; err != nil {
		return nil, storeError(err, apperrors.KindInternal)
	}

	tokens, err := s.tokens.Issue(ctx, ident.ID, "")
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ident.ID, backend.EventSignedIn, tokens.SessionID, &ident)
	return s.session(&ident, tokens), nil
}

func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (*backend.Credentials, error) {
	uid, tokens, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	ident, err := s.find(ctx, uid)
	if err != nil {
		return nil, err
	}
	if ident.Disabled {
		_, _, _ = s.tokens.Revoke(ctx, tokens.RefreshToken)
		return nil, apperrors.New(apperrors.KindUserDisabled)
	}
	s.publish(ctx, uid, backend.EventTokenRefreshed, tokens.SessionID, ident)
	return s.session(ident, tokens), nil
}

func (s *AuthServiceImpl) SignOut(ctx context.Context, refreshToken string) error {
	uid, sid, err := s.tokens.Revoke(ctx, refreshToken)
	if err != nil {
		return err
	}
	if uid != "" {
		s.publish(ctx, uid, backend.EventSignedOut, sid, nil)
	}
	return nil
}

func (s *AuthServiceImpl) Me(ctx context.Context, uid string) (*backend.Identity, error) {
	ident, err := s.find(ctx, uid)
	if err != nil {
		return nil, err
	}
	return identityView(ident), nil
}

// SendVerification queues a verification mail. Verified accounts get none.
func (s *AuthServiceImpl) SendVerification(ctx context.Context, uid string) error {
	ident, err := s.find(ctx, uid)
	if err != nil {
		return err
	}
	if ident.EmailVerified {
		return nil
	}
	token, err := s.tokens.IssueVerification(ctx, uid)
	if err != nil {
		return err
	}
	link := s.cfg.VerificationURL + "?token=" + url.QueryEscape(token)
	_, err = s.jobs.Enqueue(ctx, worker.QueueMail, worker.JobTypeVerificationEmail, map[string]any{
		"email": ident.Email,
		"link":  link,
	})
	if err != nil {
		return storeError(err, apperrors.KindInternal)
	}
	s.logger.Debug("verification mail queued", "uid", uid)
	return nil
}

func (s *AuthServiceImpl) Verify(ctx context.Context, token string) (*backend.Identity, error) {
	uid, err := s.tokens.ConsumeVerification(ctx, token)
	if err != nil {
		return nil, err
	}
	ident, err := s.find(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(ident).Update("email_verified", true).Error; err != nil {
		return nil, storeError(err, apperrors.KindInternal)
	}
	ident.EmailVerified = true
	s.publish(ctx, uid, backend.EventVerified, "", ident)
	return identityView(ident), nil
}

func (s *AuthServiceImpl) Reauthenticate(ctx context.Context, uid, password string) error {
	ident, err := s.find(ctx, uid)
	if err != nil {
		return err
	}
	if !VerifyPassword(ident.PasswordHash, password) {
		return apperrors.New(apperrors.KindWrongPassword)
	}
	return nil
}

// UpdatePassword changes the password and signs out every other session.
func (s *AuthServiceImpl) UpdatePassword(ctx context.Context, uid, sid, password string) error {
	if len(password) < MinPasswordLength {
		return apperrors.New(apperrors.KindWeakPassword)
	}
	ident, err := s.find(ctx, uid)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BCryptCost)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err)
	}
	if err := s.db.WithContext(ctx).Model(ident).Update("password_hash", string(hash)).Error; err != nil {
		return storeError(err, apperrors.KindInternal)
	}
	if err := s.tokens.RevokeAll(ctx, uid, sid); err != nil {
		return err
	}
	s.publish(ctx, uid, backend.EventSessionsRevoked, sid, ident)

	if _, err := s.jobs.Enqueue(ctx, worker.QueueMail, worker.JobTypePasswordChanged, map[string]any{"email": ident.Email}); err != nil {
		s.logger.Warn("queue password notice", "uid", uid, "err", err)
	}
	return nil
}

func (s *AuthServiceImpl) UpdateProfile(ctx context.Context, uid, sid string, change backend.ProfileChange) (*backend.Identity, error) {
	ident, err := s.find(ctx, uid)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if change.DisplayName != nil {
		updates["display_name"] = *change.DisplayName
		ident.DisplayName = *change.DisplayName
	}
	if change.PhotoURL != nil {
		updates["photo_url"] = *change.PhotoURL
		ident.PhotoURL = *change.PhotoURL
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(ident).Updates(updates).Error; err != nil {
			return nil, storeError(err, apperrors.KindInternal)
		}
		s.publish(ctx, uid, backend.EventProfileUpdated, sid, ident)
	}
	return identityView(ident), nil
}
