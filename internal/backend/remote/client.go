// Package remote implements the backend collaborators over the kaaj HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"kaaj/internal/apperrors"
	"kaaj/internal/backend"
	"kaaj/internal/clock"
	"kaaj/internal/logging"
	"kaaj/internal/notify"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// refreshSkew refreshes access tokens this long before they expire.
const refreshSkew = 30 * time.Second

// Client talks to the API server. It holds at most one backend session.
type Client struct {
	baseURL string
	http    *http.Client
	clock   clock.Clock
	logger  *log.Logger

	reconnectDelay time.Duration

	mu        sync.Mutex
	creds     *backend.Credentials
	refreshes singleflight.Group
	listeners notify.Set[*backend.Identity]
}

var (
	_ backend.Documents        = (*Client)(nil)
	_ backend.IdentityProvider = (*Client)(nil)
)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(l *log.Logger) Option { return func(c *Client) { c.logger = l } }

func WithClock(clk clock.Clock) Option { return func(c *Client) { c.clock = clk } }

// WithReconnectDelay sets how long Listen waits before reopening a dropped
// event stream.
func WithReconnectDelay(d time.Duration) Option { return func(c *Client) { c.reconnectDelay = d } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{Timeout: 15 * time.Second},
		clock:          clock.Real(),
		logger:         logging.Discard(),
		reconnectDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// decodeError turns a non-2xx response into an *apperrors.Error.
func decodeError(resp *http.Response) error {
	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return apperrors.Wrap(apperrors.KindUnavailable, fmt.Errorf("status %d", resp.StatusCode))
		case http.StatusTooManyRequests:
			return apperrors.New(apperrors.KindResourceExhausted)
		}
		return apperrors.Wrap(apperrors.KindUnknown, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data)))
	}
	e := apperrors.New(apperrors.KindFromCode(body.Error))
	if body.Message != "" {
		e.Message = body.Message
	}
	return e
}

// send performs one request. A nil out discards the response body.
func (c *Client) send(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternal, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Debug("request failed", "method", method, "path", path, "err", err)
		return apperrors.Wrap(apperrors.KindUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, fmt.Errorf("decode %s %s: %w", method, path, err))
	}
	return nil
}

// call sends an authenticated request. An access token that has expired is
// refreshed once and the request retried.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	err = c.send(ctx, method, path, token, in, out)
	if !apperrors.Is(err, apperrors.KindTokenExpired) {
		return err
	}
	if token, err = c.refresh(ctx, token); err != nil {
		return err
	}
	return c.send(ctx, method, path, token, in, out)
}

// accessToken returns a usable access token, refreshing it first when it is
// about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.creds == nil {
		c.mu.Unlock()
		return "", apperrors.New(apperrors.KindNotAuthenticated)
	}
	tokens := c.creds.Tokens
	c.mu.Unlock()

	if !tokens.ExpiresAt.IsZero() && c.clock.Now().Add(refreshSkew).After(tokens.ExpiresAt) {
		return c.refresh(ctx, tokens.AccessToken)
	}
	return tokens.AccessToken, nil
}

// refresh rotates the held tokens. Concurrent callers that saw the same stale
// access token share one rotation. A rejected refresh token ends the session.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	v, err, _ := c.refreshes.Do(stale, func() (any, error) {
		c.mu.Lock()
		if c.creds == nil {
			c.mu.Unlock()
			return "", apperrors.New(apperrors.KindNotAuthenticated)
		}
		if c.creds.Tokens.AccessToken != stale {
			token := c.creds.Tokens.AccessToken
			c.mu.Unlock()
			return token, nil
		}
		refreshToken := c.creds.Tokens.RefreshToken
		c.mu.Unlock()

		var creds backend.Credentials
		err := c.send(ctx, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": refreshToken}, &creds)
		switch {
		case apperrors.Is(err, apperrors.KindTokenExpired), apperrors.Is(err, apperrors.KindNotAuthenticated),
			apperrors.Is(err, apperrors.KindUserDisabled):
			c.logger.Info("session rejected by server", "code", apperrors.KindOf(err))
			c.setCredentials(nil)
			return "", apperrors.Wrap(apperrors.KindNotAuthenticated, err)
		case err != nil:
			return "", err
		}

		c.mu.Lock()
		if c.creds != nil && c.creds.Tokens.RefreshToken == refreshToken {
			c.creds.Tokens = creds.Tokens
		}
		c.mu.Unlock()
		c.logger.Debug("access token refreshed", "sid", creds.Tokens.SessionID)
		return creds.Tokens.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// setCredentials replaces the held session and notifies subscribers.
func (c *Client) setCredentials(creds *backend.Credentials) {
	c.mu.Lock()
	var id *backend.Identity
	if creds != nil {
		held := *creds
		c.creds = &held
		ident := held.Identity
		id = &ident
	} else {
		c.creds = nil
	}
	c.mu.Unlock()
	c.listeners.Notify(id)
}

// setIdentity updates the identity of the held session, if it is still uid's.
func (c *Client) setIdentity(ident backend.Identity) {
	c.mu.Lock()
	if c.creds == nil || c.creds.Identity.UID != ident.UID {
		c.mu.Unlock()
		return
	}
	c.creds.Identity = ident
	c.mu.Unlock()
	c.listeners.Notify(&ident)
}

func (c *Client) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return ""
	}
	return c.creds.Tokens.SessionID
}
