// Package session owns the signed-in user: authentication flows against the
// identity provider, the durable profile document and the local session cache.
package session

import (
	"context"
	"strings"
	"sync"

	"kaaj/internal/apperrors"
	"kaaj/internal/backend"
	"kaaj/internal/clock"
	"kaaj/internal/connectivity"
	"kaaj/internal/logging"
	"kaaj/internal/models"
	"kaaj/internal/notify"
	"kaaj/internal/validation"

	"github.com/charmbracelet/log"
)

type Status int

const (
	StatusSignedOut Status = iota
	// StatusPendingVerification means an account exists whose email has not
	// been verified. There is no active session.
	StatusPendingVerification
	StatusSignedIn
)

func (s Status) String() string {
	switch s {
	case StatusPendingVerification:
		return "pending_verification"
	case StatusSignedIn:
		return "signed_in"
	default:
		return "signed_out"
	}
}

type State struct {
	Status  Status
	User    *models.User
	Loading bool
	Err     error
}

type SignUpInput struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,password"`
}

type SignInInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignUpResult struct {
	Email                string
	VerificationRequired bool
}

// Photo is an image file chosen for the profile.
type Photo struct {
	Filename string
	Data     []byte
}

type ProfileInput struct {
	Name  string `json:"name" validate:"required,min=2,max=50"`
	Photo *Photo `json:"-"`
}

type PasswordChange struct {
	CurrentPassword string `json:"current_password" validate:"required,min=6"`
	NewPassword     string `json:"new_password" validate:"required,min=6,password,nefield=CurrentPassword"`
}

type Store struct {
	identity  backend.IdentityProvider
	docs      backend.Documents
	images    backend.ImageHost
	monitor   *connectivity.Monitor
	cache     *Cache
	clock     clock.Clock
	validator *validation.Validator
	logger    *log.Logger
	signedOut func()

	mu      sync.Mutex
	status  Status
	user    *models.User
	pending int
	err     error

	listeners notify.Set[State]
}

type Option func(*Store)

func WithClock(c clock.Clock) Option { return func(s *Store) { s.clock = c } }

func WithLogger(l *log.Logger) Option { return func(s *Store) { s.logger = l } }

func WithImageHost(h backend.ImageHost) Option { return func(s *Store) { s.images = h } }

func WithCache(c *Cache) Option { return func(s *Store) { s.cache = c } }

// OnSignedOut registers fn to run whenever an established session ends.
func OnSignedOut(fn func()) Option { return func(s *Store) { s.signedOut = fn } }

func NewStore(identity backend.IdentityProvider, docs backend.Documents, monitor *connectivity.Monitor, opts ...Option) *Store {
	s := &Store{
		identity: identity,
		docs:     docs,
		monitor:  monitor,
		clock:    clock.Real(),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = validation.New(s.clock.Now)
	return s
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.listeners.Add(fn)
}

// CurrentUserID returns the id of the signed-in user.
func (s *Store) CurrentUserID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusSignedIn || s.user == nil {
		return "", false
	}
	return s.user.ID, true
}

// SignUp creates the account, sends the verification email and writes the
// initial profile. The caller stays signed out until the email is verified
// and SignIn succeeds.
func (s *Store) SignUp(ctx context.Context, in SignUpInput) (SignUpResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validator.Struct(in); err != nil {
		return SignUpResult{}, s.fail(err)
	}

	s.begin()
	id, err := connectivity.Do(ctx, s.monitor, func(ctx context.Context) (*backend.Identity, error) {
		return s.identity.SignUp(ctx, in.Email, in.Password)
	})
	if err != nil {
		return SignUpResult{}, s.end(authError(err, apperrors.KindAuthFailed,
			apperrors.KindDuplicateEmail, apperrors.KindInvalidEmail, apperrors.KindWeakPassword))
	}

	err = s.monitor.WithRetry(ctx, func(ctx context.Context) error {
		return s.identity.SendEmailVerification(ctx)
	})
	if err == nil {
		err = s.monitor.WithRetry(ctx, func(ctx context.Context) error {
			return s.identity.UpdateProfile(ctx, backend.ProfileChange{DisplayName: &in.Name})
		})
	}
	if err == nil {
		now := s.clock.Now().UTC()
		err = s.monitor.WithRetry(ctx, func(ctx context.Context) error {
			return s.docs.MergeProfile(ctx, id.UID, models.ProfileUpdate{
				Name:          &in.Name,
				Email:         &in.Email,
				EmailVerified: models.BoolPtr(false),
				CreatedAt:     &now,
				LastLogin:     &now,
			})
		})
	}
	if err != nil {
		s.logger.Error("finish sign up", "email", in.Email, "err", err)
		return SignUpResult{}, s.end(authError(err, apperrors.KindAuthFailed))
	}

	s.logger.Info("account created, verification pending", "uid", id.UID)
	s.mu.Lock()
	s.status = StatusPendingVerification
	s.user = nil
	s.mu.Unlock()
	s.end(nil)
	return SignUpResult{Email: in.Email, VerificationRequired: true}, nil
}

// SignIn authenticates and establishes the session. Unverified accounts are
// refused with KindEmailNotVerified.
func (s *Store) SignIn(ctx context.Context, in SignInInput) (models.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validator.Struct(in); err != nil {
		return models.User{}, s.fail(err)
	}

	s.begin()
	id, err := connectivity.Do(ctx, s.monitor, func(ctx context.Context) (*backend.Identity, error) {
		return s.identity.SignIn(ctx, in.Email, in.Password)
	})
	if err != nil {
		return models.User{}, s.end(authError(err, apperrors.KindAuthFailed,
			apperrors.KindInvalidEmail, apperrors.KindInvalidCredentials, apperrors.KindUserDisabled,
			apperrors.KindUserNotFound, apperrors.KindWrongPassword, apperrors.KindEmailNotVerified))
	}
	if !id.EmailVerified {
		s.mu.Lock()
		s.status = StatusPendingVerification
		s.user = nil
		s.mu.Unlock()
		return models.User{}, s.end(apperrors.New(apperrors.KindEmailNotVerified))
	}

	now := s.clock.Now().UTC()
	err = s.monitor.WithRetry(ctx, func(ctx context.Context) error {
		return s.docs.MergeProfile(ctx, id.UID, models.ProfileUpdate{
			LastLogin:     &now,
			EmailVerified: models.BoolPtr(true),
		})
	})
	if err != nil {
		return models.User{}, s.end(authError(err, apperrors.KindAuthFailed))
	}
	user, err := s.loadUser(ctx, id)
	if err != nil {
		return models.User{}, s.end(authError(err, apperrors.KindAuthFailed))
	}

	s.establish(user)
	s.end(nil)
	return user, nil
}

// SignOut ends the backend session and clears the local one. On failure the
// local session is kept and the error is recorded.
func (s *Store) SignOut(ctx context.Context) error {
	s.begin()
	err := s.monitor.WithRetry(ctx, func(ctx context.Context) error {
		return s.identity.SignOut(ctx)
	})
	if err != nil {
		s.logger.Warn("sign out", "err", err)
		return s.end(apperrors.Wrap(apperrors.KindSignOutFailed, err))
	}
	s.clear()
	return s.end(nil)
}

// InitSessionListener follows identity changes pushed by the backend until
// the returned func is called.
func (s *Store) InitSessionListener(ctx context.Context) (unsubscribe func()) {
	return s.identity.Subscribe(func(id *backend.Identity) {
		if id == nil {
			if s.State().Status == StatusSignedIn {
				s.logger.Info("identity gone, clearing session")
			}
			s.clear()
			s.fail(nil)
			return
		}
		if !id.EmailVerified {
			s.logger.Debug("ignoring unverified identity", "uid", id.UID)
			return
		}

		user, err := s.loadUser(ctx, id)
		if err != nil {
			s.logger.Error("load profile", "uid", id.UID, "err", err)
			s.fail(err)
			return
		}
		s.establish(user)
		s.fail(nil)
	})
}

// UpdateProfile uploads the photo, if any, then merges name and photo into
// both the identity and the profile document.
func (s *Store) UpdateProfile(ctx context.Context, in ProfileInput) (models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validator.Struct(in); err != nil {
		return models.User{}, s.fail(err)
	}
	id := s.identity.Current()
	if id == nil {
		return models.User{}, s.fail(apperrors.New(apperrors.KindNotAuthenticated))
	}

	s.begin()
	photoURL := id.PhotoURL
	if cur := s.State().User; cur != nil && cur.PhotoURL != "" {
		photoURL = cur.PhotoURL
	}
	if in.Photo != nil {
		url, err := s.upload(ctx, in.Photo)
		if err != nil {
			return models.User{}, s.end(err)
		}
		photoURL = url
	}

	err := s.monitor.WithRetry(ctx, func(ctx context.Context) error {
		return s.identity.UpdateProfile(ctx, backend.ProfileChange{DisplayName: &in.Name, PhotoURL: &photoURL})
	})
	if err == nil {
		now := s.clock.Now().UTC()
		err = s.monitor.WithRetry(ctx, func(ctx context.Context) error {
			return s.docs.MergeProfile(ctx, id.UID, models.ProfileUpdate{
				Name:      &in.Name,
				PhotoURL:  &photoURL,
				UpdatedAt: &now,
			})
		})
	}
	if err != nil {
		return models.User{}, s.end(authError(err, apperrors.KindInternal, apperrors.KindNotAuthenticated, apperrors.KindPermissionDenied))
	}

	s.mu.Lock()
	var user models.User
	if s.user != nil {
		user = *s.user
	} else {
		user = id.User()
	}
	user.Name = in.Name
	user.PhotoURL = photoURL
	s.mu.Unlock()

	if s.State().Status == StatusSignedIn {
		s.establish(user)
	}
	s.end(nil)
	return user, nil
}

// UpdatePassword re-authenticates with current and sets next. Session state
// is unchanged.
func (s *Store) UpdatePassword(ctx context.Context, current, next string) error {
	in := PasswordChange{CurrentPassword: current, NewPassword: next}
	if err := s.validator.Struct(in); err != nil {
		return s.fail(err)
	}
	if s.identity.Current() == nil {
		return s.fail(apperrors.New(apperrors.KindNotAuthenticated))
	}

	s.begin()
	err := s.monitor.WithRetry(ctx, func(ctx context.Context) error {
		return s.identity.Reauthenticate(ctx, current)
	})
	if err != nil {
		if apperrors.Is(err, apperrors.KindUnavailable) || apperrors.Is(err, apperrors.KindNotAuthenticated) {
			return s.end(err)
		}
		return s.end(apperrors.Wrap(apperrors.KindReauthenticationFailed, err))
	}

	err = s.monitor.WithRetry(ctx, func(ctx context.Context) error {
		return s.identity.UpdatePassword(ctx, next)
	})
	if err != nil {
		return s.end(authError(err, apperrors.KindAuthFailed, apperrors.KindWeakPassword))
	}
	return s.end(nil)
}

// ResendVerificationEmail needs a backend session, verified or not. After the
// email is sent the backend session is dropped so the user comes back through
// SignIn.
func (s *Store) ResendVerificationEmail(ctx context.Context) error {
	if s.identity.Current() == nil {
		return s.fail(apperrors.New(apperrors.KindNotAuthenticated))
	}

	s.begin()
	err := s.monitor.WithRetry(ctx, func(ctx context.Context) error {
		return s.identity.SendEmailVerification(ctx)
	})
	if err != nil {
		out := apperrors.Wrap(apperrors.KindAuthFailed, err)
		out.Message = "ভেরিফিকেশন ইমেইল পাঠাতে সমস্যা হয়েছে"
		return s.end(out)
	}
	if err := s.identity.SignOut(ctx); err != nil {
		s.logger.Warn("sign out after verification resend", "err", err)
	}
	s.clear()
	return s.end(nil)
}

// Restore adopts the session cached by a previous run. It reports whether a
// session was restored.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	cached, err := s.cache.Load()
	if err != nil || cached == nil {
		return false, err
	}

	s.identity.Restore(cached.Credentials)
	s.mu.Lock()
	user := cached.User
	s.status = StatusSignedIn
	s.user = &user
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.listeners.Notify(state)

	s.logger.Debug("session restored", "uid", user.ID, "cache", s.cache.Path())
	return true, nil
}

func (s *Store) loadUser(ctx context.Context, id *backend.Identity) (models.User, error) {
	profile, err := connectivity.Do(ctx, s.monitor, func(ctx context.Context) (*models.Profile, error) {
		return s.docs.GetProfile(ctx, id.UID)
	})
	if err != nil && !apperrors.Is(err, apperrors.KindNotFound) {
		return models.User{}, err
	}
	return id.User().WithProfile(profile), nil
}

func (s *Store) upload(ctx context.Context, photo *Photo) (string, error) {
	if s.images == nil {
		return "", apperrors.Newf(apperrors.KindConfig, "ছবি আপলোড কনফিগার করা হয়নি")
	}
	url, err := s.images.Upload(ctx, photo.Filename, photo.Data)
	if err != nil {
		out := apperrors.Wrap(apperrors.KindImageUploadFailed, err)
		if apperrors.Is(err, apperrors.KindInvalidImage) || apperrors.Is(err, apperrors.KindConfig) {
			out.Message = apperrors.Message(err)
		}
		return "", out
	}
	return url, nil
}

func (s *Store) establish(user models.User) {
	s.mu.Lock()
	s.status = StatusSignedIn
	s.user = &user
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.listeners.Notify(state)

	if s.cache == nil {
		return
	}
	creds := s.identity.Credentials()
	if creds == nil {
		return
	}
	if err := s.cache.Save(Cached{User: user, Credentials: *creds}); err != nil {
		s.logger.Warn("save session cache", "err", err)
	}
}

func (s *Store) clear() {
	s.mu.Lock()
	wasSignedIn := s.status == StatusSignedIn
	s.status = StatusSignedOut
	s.user = nil
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Clear(); err != nil {
			s.logger.Warn("clear session cache", "err", err)
		}
	}
	if wasSignedIn && s.signedOut != nil {
		s.signedOut()
	}
}

func (s *Store) begin() {
	s.mu.Lock()
	s.pending++
	s.err = nil
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.listeners.Notify(state)
}

func (s *Store) end(err error) error {
	s.mu.Lock()
	s.pending--
	s.err = err
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.listeners.Notify(state)
	return err
}

// fail records err, which may be nil, outside of a running operation.
func (s *Store) fail(err error) error {
	s.mu.Lock()
	s.err = err
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.listeners.Notify(state)
	return err
}

func (s *Store) snapshotLocked() State {
	st := State{Status: s.status, Loading: s.pending > 0, Err: s.err}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	return st
}

// authError keeps err when it already carries one of the expected kinds or is
// a connectivity failure, and otherwise wraps it in fallback.
func authError(err error, fallback apperrors.Kind, expected ...apperrors.Kind) error {
	kind := apperrors.KindOf(err)
	if kind.Retryable() {
		return err
	}
	for _, k := range expected {
		if kind == k {
			return err
		}
	}
	return apperrors.Wrap(fallback, err)
}
