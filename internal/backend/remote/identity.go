package remote

import (
	"context"
	"net/http"

	"kaaj/internal/apperrors"
	"kaaj/internal/backend"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*backend.Identity, error) {
	var creds backend.Credentials
	if err := c.send(ctx, http.MethodPost, path, "", credentialsRequest{Email: email, Password: password}, &creds); err != nil {
		return nil, err
	}
	c.setCredentials(&creds)
	ident := creds.Identity
	return &ident, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*backend.Identity, error) {
	return c.authenticate(ctx, "/v1/auth/signup", email, password)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*backend.Identity, error) {
	return c.authenticate(ctx, "/v1/auth/signin", email, password)
}

// SignOut revokes the held session. When the server cannot be reached the
// session is kept and the error returned; a session the server no longer
// knows is dropped.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	if c.creds == nil {
		c.mu.Unlock()
		return nil
	}
	refreshToken := c.creds.Tokens.RefreshToken
	c.mu.Unlock()

	err := c.send(ctx, http.MethodPost, "/v1/auth/signout", "", map[string]string{"refresh_token": refreshToken}, nil)
	if err != nil && !apperrors.Is(err, apperrors.KindTokenExpired) && !apperrors.Is(err, apperrors.KindNotAuthenticated) {
		return err
	}
	c.setCredentials(nil)
	return nil
}

func (c *Client) Current() *backend.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return nil
	}
	ident := c.creds.Identity
	return &ident
}

func (c *Client) Credentials() *backend.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return nil
	}
	creds := *c.creds
	return &creds
}

func (c *Client) Restore(creds backend.Credentials) {
	c.setCredentials(&creds)
}

// Reload fetches the identity of the held session from the server.
func (c *Client) Reload(ctx context.Context) (*backend.Identity, error) {
	var ident backend.Identity
	if err := c.call(ctx, http.MethodGet, "/v1/auth/me", nil, &ident); err != nil {
		return nil, err
	}
	c.setIdentity(ident)
	return &ident, nil
}

func (c *Client) SendEmailVerification(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/v1/auth/verification", nil, nil)
}

func (c *Client) UpdateProfile(ctx context.Context, change backend.ProfileChange) error {
	var ident backend.Identity
	if err := c.call(ctx, http.MethodPatch, "/v1/auth/profile", change, &ident); err != nil {
		return err
	}
	c.setIdentity(ident)
	return nil
}

// VerifyEmail confirms a mailed verification token. It needs no session; when
// the held session belongs to the verified account its identity is updated.
func (c *Client) VerifyEmail(ctx context.Context, token string) (*backend.Identity, error) {
	var ident backend.Identity
	if err := c.send(ctx, http.MethodPost, "/v1/auth/verify", "", map[string]string{"token": token}, &ident); err != nil {
		return nil, err
	}
	c.setIdentity(ident)
	return &ident, nil
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (c *Client) Reauthenticate(ctx context.Context, password string) error {
	return c.call(ctx, http.MethodPost, "/v1/auth/reauthenticate", passwordRequest{Password: password}, nil)
}

func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	return c.call(ctx, http.MethodPut, "/v1/auth/password", passwordRequest{Password: newPassword}, nil)
}

func (c *Client) Subscribe(fn backend.IdentityListener) (unsubscribe func()) {
	fn(c.Current())
	return c.listeners.Add(fn)
}
