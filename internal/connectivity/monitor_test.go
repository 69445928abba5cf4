package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kaaj/internal/apperrors"
	"kaaj/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (p *stubPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *stubPinger) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func newTestMonitor(p Pinger) (*Monitor, *clock.Fake) {
	fc := clock.NewFake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	return New(p, WithClock(fc)), fc
}

func TestWithRetry_SucceedsFirstTime(t *testing.T) {
	m, fc := newTestMonitor(&stubPinger{})

	calls := 0
	err := m.WithRetry(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, fc.Sleeps())
}

func TestWithRetry_StopsAfterMaxAttempts(t *testing.T) {
	m, fc := newTestMonitor(&stubPinger{})

	// fails three times, would succeed on the fourth
	calls := 0
	err := m.WithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls <= 3 {
			return apperrors.New(apperrors.KindUnavailable)
		}
		return nil
	})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUnavailable))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, fc.Sleeps())
}

func TestWithRetry_RecoversWithinCap(t *testing.T) {
	m, fc := newTestMonitor(&stubPinger{})

	calls := 0
	err := m.WithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.New(apperrors.KindFailedPrecondition)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fc.Sleeps())
}

func TestWithRetry_NonRetryablePropagatesImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permission", apperrors.New(apperrors.KindPermissionDenied)},
		{"not found", apperrors.New(apperrors.KindNotFound)},
		{"index", apperrors.New(apperrors.KindIndexBuilding)},
		{"foreign", errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, fc := newTestMonitor(&stubPinger{})
			calls := 0
			err := m.WithRetry(context.Background(), func(context.Context) error {
				calls++
				return tt.err
			})
			assert.Same(t, tt.err, err)
			assert.Equal(t, 1, calls)
			assert.Empty(t, fc.Sleeps())
		})
	}
}

func TestWithRetryN_CustomCap(t *testing.T) {
	m, fc := newTestMonitor(&stubPinger{})

	calls := 0
	err := m.WithRetryN(context.Background(), func(context.Context) error {
		calls++
		return apperrors.New(apperrors.KindUnavailable)
	}, 5)

	require.Error(t, err)
	assert.Equal(t, 5, calls)
	assert.Len(t, fc.Sleeps(), 5)
	assert.Equal(t, 16*time.Second, fc.Sleeps()[4])
}

func TestWithRetry_OfflineCheckCountsAsAttempt(t *testing.T) {
	p := &stubPinger{err: errors.New("no route")}
	m, _ := newTestMonitor(p)
	m.SetNetworkAvailable(context.Background(), false)

	calls := 0
	err := m.WithRetry(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUnavailable))
	assert.Zero(t, calls)
	assert.False(t, m.State().Online)
}

func TestWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	m, _ := newTestMonitor(&stubPinger{})
	ctx, cancel := context.WithCancel(context.Background())

	err := m.WithRetry(ctx, func(context.Context) error {
		cancel()
		return apperrors.New(apperrors.KindUnavailable)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, apperrors.Is(err, apperrors.KindUnavailable))
}

func TestDo_ReturnsValue(t *testing.T) {
	m, _ := newTestMonitor(&stubPinger{})

	calls := 0
	v, err := Do(context.Background(), m, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", apperrors.New(apperrors.KindUnavailable)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCheckConnection_UpdatesStateAndNotifies(t *testing.T) {
	p := &stubPinger{}
	m, _ := newTestMonitor(p)

	var states []State
	unsub := m.Subscribe(func(s State) { states = append(states, s) })

	p.set(errors.New("down"))
	assert.False(t, m.CheckConnection(context.Background()))
	assert.False(t, m.CheckConnection(context.Background()))

	p.set(nil)
	assert.True(t, m.CheckConnection(context.Background()))

	unsub()
	m.SetNetworkAvailable(context.Background(), false)

	assert.Equal(t, []State{{Online: false}, {Online: true}}, states)
	assert.False(t, m.State().Online)
}

func TestState_RetryingWhileOperationRuns(t *testing.T) {
	m, _ := newTestMonitor(&stubPinger{})

	var during State
	err := m.WithRetry(context.Background(), func(context.Context) error {
		during = m.State()
		return nil
	})

	require.NoError(t, err)
	assert.True(t, during.Retrying)
	assert.False(t, m.State().Retrying)
}

func TestWatch_RechecksWhileOffline(t *testing.T) {
	p := &stubPinger{err: errors.New("down")}
	m, fc := newTestMonitor(p)
	m.CheckConnection(context.Background())

	var online atomic.Bool
	m.Subscribe(func(s State) { online.Store(s.Online) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		m.Watch(ctx)
		close(done)
	}()

	p.set(nil)
	require.Eventually(t, func() bool {
		fc.Advance(RecheckInterval)
		return online.Load()
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestWake_TriggersCheck(t *testing.T) {
	p := &stubPinger{}
	m, _ := newTestMonitor(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx)

	p.set(errors.New("down"))
	m.Wake()
	require.Eventually(t, func() bool { return !m.State().Online }, time.Second, 5*time.Millisecond)
}
