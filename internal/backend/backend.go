// Package backend declares the remote collaborators the client stores are
// built on: a document store, an identity provider and an image host.
// Implementations report failures as *apperrors.Error so callers can dispatch
// on kind and retryability.
package backend

import (
	"context"
	"time"

	"kaaj/internal/models"
)

// Documents is the remote document store.
type Documents interface {
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// ListTodos returns the todos owned by ownerID, newest first.
	ListTodos(ctx context.Context, ownerID string) ([]models.Todo, error)
	// AddTodo persists todo and returns the canonical record with its
	// backend-assigned id.
	AddTodo(ctx context.Context, todo models.Todo) (models.Todo, error)
	UpdateTodo(ctx context.Context, id string, patch models.TodoPatch) error
	DeleteTodo(ctx context.Context, id string) error

	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	// MergeProfile writes the set fields of update, creating the document when
	// it does not exist. Unset fields are never overwritten.
	MergeProfile(ctx context.Context, userID string, update models.ProfileUpdate) error
}

// Identity is the identity provider's view of the signed-in account.
type Identity struct {
	UID           string     `json:"id" toml:"id"`
	Email         string     `json:"email" toml:"email"`
	DisplayName   string     `json:"display_name" toml:"display_name"`
	PhotoURL      string     `json:"photo_url" toml:"photo_url"`
	EmailVerified bool       `json:"email_verified" toml:"email_verified"`
	CreatedAt     time.Time  `json:"created_at" toml:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty" toml:"last_login_at,omitempty"`
}

// User converts the identity into the session's user shape.
func (i Identity) User() models.User {
	return models.User{
		ID:            i.UID,
		Email:         i.Email,
		Name:          i.DisplayName,
		PhotoURL:      i.PhotoURL,
		EmailVerified: i.EmailVerified,
		CreatedAt:     i.CreatedAt,
		LastLogin:     i.LastLoginAt,
	}
}

// Tokens are the credentials of a backend session.
type Tokens struct {
	SessionID    string    `json:"session_id" toml:"session_id"`
	AccessToken  string    `json:"access_token" toml:"access_token"`
	RefreshToken string    `json:"refresh_token" toml:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" toml:"expires_at"`
}

// Credentials is a backend session: who, and the tokens proving it.
type Credentials struct {
	Identity Identity `json:"identity" toml:"identity"`
	Tokens   Tokens   `json:"tokens" toml:"tokens"`
}

type ProfileChange struct {
	DisplayName *string `json:"display_name,omitempty"`
	PhotoURL    *string `json:"photo_url,omitempty"`
}

// IdentityListener receives the current identity, or nil once it is gone.
type IdentityListener func(*Identity)

// IdentityProvider is the remote authentication service. It holds at most one
// backend session at a time, the way a browser SDK does.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error

	// Current returns the identity of the held backend session, or nil.
	Current() *Identity
	// Credentials returns the held backend session for caching, or nil.
	Credentials() *Credentials
	// Restore adopts previously cached credentials without a network call.
	Restore(creds Credentials)

	SendEmailVerification(ctx context.Context) error
	UpdateProfile(ctx context.Context, change ProfileChange) error
	Reauthenticate(ctx context.Context, password string) error
	UpdatePassword(ctx context.Context, newPassword string) error

	// Subscribe calls fn with the current identity, then again on every
	// identity change until the returned func is called. No call to fn starts
	// after the returned func returns.
	Subscribe(fn IdentityListener) (unsubscribe func())
}

// ImageHost stores images and returns their public URL.
type ImageHost interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}
