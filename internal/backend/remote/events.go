package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"kaaj/internal/apperrors"
	"kaaj/internal/backend"
)

const (
	eventReady    = "ready"
	eventIdentity = "identity"
)

type sseEvent struct {
	name string
	data string
}

// readEvents parses a text/event-stream body, sending each complete event to
// fn until fn returns false or the body ends.
func readEvents(sc *bufio.Scanner, fn func(sseEvent) bool) error {
	var evt sseEvent
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if evt.name == "" && len(data) == 0 {
				continue
			}
			evt.data = strings.Join(data, "\n")
			if !fn(evt) {
				return nil
			}
			evt, data = sseEvent{}, nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			evt.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}

func (c *Client) openStream(ctx context.Context, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/auth/events", nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+token)

	// the stream outlives any request timeout
	hc := &http.Client{Transport: c.http.Transport}
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Wrap(apperrors.KindUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// Events opens the identity event stream of the held session. It returns
// once the server has confirmed the subscription; the channel is closed when
// the stream ends or ctx is done.
func (c *Client) Events(ctx context.Context) (<-chan backend.IdentityEvent, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.openStream(ctx, token)
	if apperrors.Is(err, apperrors.KindTokenExpired) {
		if token, err = c.refresh(ctx, token); err != nil {
			return nil, err
		}
		resp, err = c.openStream(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	sc := bufio.NewScanner(resp.Body)
	ready := false
	if err := readEvents(sc, func(e sseEvent) bool {
		ready = e.name == eventReady
		return !ready
	}); err != nil || !ready {
		resp.Body.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Wrap(apperrors.KindUnavailable, err)
	}

	out := make(chan backend.IdentityEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		_ = readEvents(sc, func(e sseEvent) bool {
			if e.name != eventIdentity {
				return true
			}
			var evt backend.IdentityEvent
			if err := json.Unmarshal([]byte(e.data), &evt); err != nil {
				c.logger.Warn("drop malformed identity event", "err", err)
				return true
			}
			select {
			case out <- evt:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out, nil
}

// apply folds a pushed event into the held session. It reports whether the
// session has ended.
func (c *Client) apply(evt backend.IdentityEvent) bool {
	sid := c.sessionID()
	if sid == "" {
		return true
	}
	if evt.Ends(sid) {
		c.logger.Info("session ended by server", "event", evt.Type)
		c.setCredentials(nil)
		return true
	}
	switch evt.Type {
	case backend.EventProfileUpdated, backend.EventVerified:
		if evt.Identity != nil {
			c.setIdentity(*evt.Identity)
		}
	}
	return false
}

// Listen applies the server's identity events to the held session until ctx
// is done or the session ends. Dropped streams are reopened after the
// reconnect delay.
func (c *Client) Listen(ctx context.Context) error {
	for {
		ended, err := c.listenOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case ended, apperrors.Is(err, apperrors.KindNotAuthenticated):
			return nil
		case err != nil && !apperrors.IsRetryable(err):
			return err
		}
		c.logger.Debug("event stream closed, reconnecting", "delay", c.reconnectDelay, "err", err)
		if err := c.clock.Sleep(ctx, c.reconnectDelay); err != nil {
			return err
		}
	}
}

func (c *Client) listenOnce(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := c.Events(ctx)
	if err != nil {
		return false, err
	}
	for evt := range events {
		if c.apply(evt) {
			return true, nil
		}
	}
	return false, nil
}
