// Package connectivity tracks whether the backend is reachable and owns the
// retry policy every remote operation runs under.
package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"kaaj/internal/apperrors"
	"kaaj/internal/clock"
	"kaaj/internal/logging"
	"kaaj/internal/notify"

	"github.com/charmbracelet/log"
)

const (
	DefaultMaxRetries  = 3
	DefaultPingTimeout = 5 * time.Second
	// RecheckInterval is how long Watch waits before pinging again after a
	// failed ping.
	RecheckInterval = 5 * time.Second
)

// Pinger checks the backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

type State struct {
	Online   bool `json:"online"`
	Retrying bool `json:"retrying"`
}

type Monitor struct {
	pinger      Pinger
	clock       clock.Clock
	logger      *log.Logger
	maxRetries  int
	pingTimeout time.Duration

	mu       sync.Mutex
	online   bool
	inflight int

	listeners notify.Set[State]
	wake      chan struct{}
}

type Option func(*Monitor)

func WithClock(c clock.Clock) Option { return func(m *Monitor) { m.clock = c } }

func WithLogger(l *log.Logger) Option { return func(m *Monitor) { m.logger = l } }

func WithMaxRetries(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.maxRetries = n
		}
	}
}

func WithPingTimeout(d time.Duration) Option { return func(m *Monitor) { m.pingTimeout = d } }

// New returns a monitor that assumes the backend is reachable until a ping or
// an operation says otherwise.
func New(pinger Pinger, opts ...Option) *Monitor {
	m := &Monitor{
		pinger:      pinger,
		clock:       clock.Real(),
		logger:      logging.Discard(),
		maxRetries:  DefaultMaxRetries,
		pingTimeout: DefaultPingTimeout,
		online:      true,
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Online: m.online, Retrying: m.inflight > 0}
}

func (m *Monitor) MaxRetries() int { return m.maxRetries }

// Subscribe registers fn for connection state changes. The returned func
// detaches it.
func (m *Monitor) Subscribe(fn func(State)) (unsubscribe func()) {
	return m.listeners.Add(fn)
}

// CheckConnection pings the backend and records the outcome.
func (m *Monitor) CheckConnection(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	defer cancel()

	err := m.pinger.Ping(pingCtx)
	if err != nil {
		m.logger.Debug("connection check failed", "err", err)
	}
	m.setOnline(err == nil)
	return err == nil
}

// SetNetworkAvailable is the hook for OS-level network transitions. Going
// offline is recorded immediately; coming online triggers a ping.
func (m *Monitor) SetNetworkAvailable(ctx context.Context, available bool) {
	if !available {
		m.setOnline(false)
		return
	}
	m.CheckConnection(ctx)
}

// Watch re-pings the backend while it is offline and whenever Wake is called,
// until ctx is done.
func (m *Monitor) Watch(ctx context.Context) {
	for {
		var retry <-chan time.Time
		if !m.State().Online {
			retry = m.clock.After(RecheckInterval)
		}
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
			m.CheckConnection(ctx)
		case <-retry:
			m.CheckConnection(ctx)
		}
	}
}

// Wake asks a running Watch loop to ping now.
func (m *Monitor) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// WithRetry runs op under the default retry cap.
func (m *Monitor) WithRetry(ctx context.Context, op func(context.Context) error) error {
	return m.WithRetryN(ctx, op, m.maxRetries)
}

// WithRetryN runs op at most maxRetries times. A retryable failure is followed
// by a 2^attempt second backoff and a connectivity re-check; any other failure
// is returned at once. When the attempts run out the last error is returned.
func (m *Monitor) WithRetryN(ctx context.Context, op func(context.Context) error, maxRetries int) error {
	if maxRetries < 1 {
		maxRetries = 1
	}
	m.beginRetry()
	defer m.endRetry()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if !m.State().Online && !m.CheckConnection(ctx) {
			lastErr = apperrors.New(apperrors.KindUnavailable)
		} else {
			err := op(ctx)
			if err == nil {
				m.setOnline(true)
				return nil
			}
			if !apperrors.IsRetryable(err) {
				return err
			}
			if apperrors.Is(err, apperrors.KindUnavailable) {
				m.setOnline(false)
			}
			lastErr = err
		}

		delay := time.Duration(1<<attempt) * time.Second
		m.logger.Warn("transient backend failure",
			"attempt", attempt+1, "max", maxRetries, "backoff", delay, "err", lastErr)
		if err := m.clock.Sleep(ctx, delay); err != nil {
			return errors.Join(lastErr, err)
		}
		m.CheckConnection(ctx)
	}
	return lastErr
}

// Do is WithRetry for operations that return a value.
func Do[T any](ctx context.Context, m *Monitor, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := m.WithRetry(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	state := State{Online: m.online, Retrying: m.inflight > 0}
	m.mu.Unlock()

	if changed {
		m.logger.Info("connection state changed", "online", online)
		m.listeners.Notify(state)
	}
}

func (m *Monitor) beginRetry() {
	m.mu.Lock()
	m.inflight++
	changed := m.inflight == 1
	state := State{Online: m.online, Retrying: true}
	m.mu.Unlock()
	if changed {
		m.listeners.Notify(state)
	}
}

func (m *Monitor) endRetry() {
	m.mu.Lock()
	m.inflight--
	changed := m.inflight == 0
	state := State{Online: m.online, Retrying: m.inflight > 0}
	m.mu.Unlock()
	if changed {
		m.listeners.Notify(state)
	}
}
