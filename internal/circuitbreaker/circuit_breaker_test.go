package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cfg.SuccessThreshold = 2
	cfg.MaxRequests = 5
	cfg.Timeout = 50 * time.Millisecond
	cfg.Interval = 0

	cb := NewCircuitBreaker("synthesis", cfg, zaptest.NewLogger(t))
	ctx := context.Background()
	require.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, func() error { return errBoom }), errBoom)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.False(t, called, "open breaker must not run the call")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	for i := 0; i < 2; i++ {
		require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.Timeout = 30 * time.Millisecond

	cb := NewCircuitBreaker("redis", cfg, zaptest.NewLogger(t))
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errBoom })
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	_ = cb.Execute(ctx, func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerHalfOpenLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRequests = 2
	cfg.SuccessThreshold = 10

	cb := NewCircuitBreaker("limit", cfg, zaptest.NewLogger(t))
	cb.mutex.Lock()
	cb.transition(StateHalfOpen, time.Now())
	cb.mutex.Unlock()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	}
	assert.ErrorIs(t, cb.Execute(ctx, func() error { return nil }), ErrTooManyRequests)
}

func TestCircuitBreakerCounts(t *testing.T) {
	cb := NewCircuitBreaker("counts", DefaultConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return nil })
	_ = cb.Execute(ctx, func() error { return errBoom })
	_ = cb.Execute(ctx, func() error { return nil })

	c := cb.Counts()
	assert.EqualValues(t, 3, c.Requests)
	assert.EqualValues(t, 2, c.TotalSuccesses)
	assert.EqualValues(t, 1, c.TotalFailures)
	assert.EqualValues(t, 1, c.ConsecutiveSuccesses)
}

func TestCircuitBreakerCancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("ctx", DefaultConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func() error { t.Fatal("must not run"); return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, cb.Counts().Requests)
}

func TestCircuitBreakerPanicCountsAsFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cb := NewCircuitBreaker("panic", cfg, zaptest.NewLogger(t))

	assert.Panics(t, func() {
		_ = cb.Execute(context.Background(), func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerClosedWindowExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 2
	cfg.Interval = 30 * time.Millisecond
	cb := NewCircuitBreaker("window", cfg, zaptest.NewLogger(t))
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errBoom })
	time.Sleep(50 * time.Millisecond)
	_ = cb.Execute(ctx, func() error { return errBoom })

	assert.Equal(t, StateClosed, cb.State())
	assert.EqualValues(t, 1, cb.Counts().ConsecutiveFailures)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(7).String())
}

func TestStateChangeCallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 2

	var transitions []string
	cfg.OnStateChange = func(name string, from, to State) {
		transitions = append(transitions, name+":"+from.String()+"->"+to.String())
	}

	cb := NewCircuitBreaker("cb", cfg, zaptest.NewLogger(t))
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func() error { return errBoom })
	}
	assert.Equal(t, []string{"cb:closed->open"}, transitions)
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("CB_SYNTHESIS_FAILURE_THRESHOLD", "9")
	t.Setenv("CB_SYNTHESIS_TIMEOUT", "3s")
	t.Setenv("CB_SYNTHESIS_MAX_REQUESTS", "not-a-number")

	s := SynthesisSettings()
	assert.EqualValues(t, 9, s.FailureThreshold)
	assert.Equal(t, 3*time.Second, s.Timeout)
	assert.EqualValues(t, 2, s.MaxRequests)
}
