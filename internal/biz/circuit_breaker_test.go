package biz

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock shared by breaker and poller tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() log.Logger {
	return log.NewStdLogger(os.Stdout)
}

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	return NewCircuitBreaker(DefaultCircuitBreakerConfig(), testLogger(), WithBreakerClock(clock.Now))
}

func TestCircuitBreaker_OpensExactlyAtThreshold(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	cb.RecordFailure(FailurePersistent)
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure(FailureTransient)
	assert.Equal(t, CircuitClosed, cb.State(), "should not open before the threshold")
	cb.RecordFailure(FailurePersistent)
	assert.Equal(t, CircuitOpen, cb.State(), "should open on the third failure")
}

func TestCircuitBreaker_TerminalOpensImmediately(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.FailureThreshold = 10
	cb := NewCircuitBreaker(cfg, testLogger())

	cb.RecordFailure(FailureTerminal)

	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, 10, cb.Snapshot().FailureCount)
}

func TestCircuitBreaker_SuccessInClosedResetsFailures(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	cb.RecordFailure(FailurePersistent)
	cb.RecordFailure(FailurePersistent)
	cb.RecordSuccess()
	assert.Equal(t, 0, cb.Snapshot().FailureCount)

	cb.RecordFailure(FailurePersistent)
	cb.RecordFailure(FailurePersistent)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_FailureWindowExpiresStreak(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)

	cb.RecordFailure(FailurePersistent)
	cb.RecordFailure(FailurePersistent)
	clock.Advance(11 * time.Minute)
	cb.RecordFailure(FailurePersistent)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 1, cb.Snapshot().FailureCount)
}

func TestCircuitBreaker_HalfOpenLifecycle(t *testing.T) {
	t.Run("cooldown then trial then close", func(t *testing.T) {
		clock := newFakeClock()
		cb := newTestBreaker(clock)
		cb.RecordFailure(FailureTerminal)
		require.Equal(t, CircuitOpen, cb.State())

		assert.False(t, cb.CanAttempt())
		cb.PrepareForAttempt()
		assert.Equal(t, CircuitOpen, cb.State(), "prepare before cooldown is a no-op")

		clock.Advance(5 * time.Minute)
		assert.True(t, cb.CanAttempt())
		assert.Equal(t, CircuitOpen, cb.State(), "canAttempt must not transition")

		cb.PrepareForAttempt()
		assert.Equal(t, CircuitHalfOpen, cb.State())

		cb.RecordSuccess()
		assert.Equal(t, CircuitHalfOpen, cb.State())
		cb.RecordSuccess()
		assert.Equal(t, CircuitClosed, cb.State())
		assert.Equal(t, 0, cb.Snapshot().FailureCount)
	})

	t.Run("failure in half open reopens", func(t *testing.T) {
		clock := newFakeClock()
		cb := newTestBreaker(clock)
		cb.RecordFailure(FailureTerminal)
		clock.Advance(5 * time.Minute)
		cb.PrepareForAttempt()
		cb.RecordSuccess()

		cb.RecordFailure(FailureTransient)

		assert.Equal(t, CircuitOpen, cb.State())
		assert.Equal(t, 0, cb.Snapshot().SuccessCount)
		assert.Equal(t, 5*time.Minute, cb.TimeUntilReset())
	})
}

func TestCircuitBreaker_SuccessWhileOpenIgnored(t *testing.T) {
	cb := newTestBreaker(newFakeClock())
	cb.ForceOpen()

	cb.RecordSuccess()
	cb.RecordSuccess()

	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_TimeUntilReset(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	assert.Equal(t, time.Duration(0), cb.TimeUntilReset())

	cb.ForceOpen()
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 3*time.Minute, cb.TimeUntilReset())

	clock.Advance(10 * time.Minute)
	assert.Equal(t, time.Duration(0), cb.TimeUntilReset())
}

func TestCircuitBreaker_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("records success", func(t *testing.T) {
		cb := newTestBreaker(newFakeClock())
		cb.RecordFailure(FailurePersistent)

		err := cb.Execute(ctx, func(context.Context) error { return nil })

		require.NoError(t, err)
		assert.Equal(t, 0, cb.Snapshot().FailureCount)
	})

	t.Run("records failure and returns it", func(t *testing.T) {
		cb := newTestBreaker(newFakeClock())
		callErr := errors.New("Bad credentials")

		err := cb.Execute(ctx, func(context.Context) error { return callErr })

		assert.ErrorIs(t, err, callErr)
		assert.Equal(t, CircuitOpen, cb.State(), "terminal error text opens the breaker")
	})

	t.Run("rejects without calling fn when open", func(t *testing.T) {
		clock := newFakeClock()
		cb := newTestBreaker(clock)
		cb.ForceOpen()
		clock.Advance(time.Minute)
		called := false

		err := cb.Execute(ctx, func(context.Context) error {
			called = true
			return nil
		})

		require.Error(t, err)
		assert.False(t, called)
		assert.ErrorIs(t, err, ErrCircuitOpen)
		var openErr *CircuitOpenError
		require.ErrorAs(t, err, &openErr)
		assert.Equal(t, CircuitOpen, openErr.State)
		assert.Equal(t, 4*time.Minute, openErr.RetryAfter)
	})

	t.Run("admits a trial after cooldown", func(t *testing.T) {
		clock := newFakeClock()
		cb := newTestBreaker(clock)
		cb.ForceOpen()
		clock.Advance(5 * time.Minute)

		err := cb.Execute(ctx, func(context.Context) error { return nil })

		require.NoError(t, err)
		assert.Equal(t, CircuitHalfOpen, cb.State())
		assert.Equal(t, 1, cb.Snapshot().SuccessCount)
	})
}

func TestCircuitBreaker_ResetAndEvents(t *testing.T) {
	cb := newTestBreaker(newFakeClock())
	events, unsubscribe := cb.Subscribe(16)

	cb.RecordFailure(FailureTerminal)
	cb.Reset()
	unsubscribe()

	var got []BreakerEvent
	for ev := range events {
		got = append(got, ev)
	}

	require.Len(t, got, 3)
	assert.Equal(t, BreakerEventFailureRecorded, got[0].Type)
	assert.Equal(t, FailureTerminal, got[0].Kind)
	assert.Equal(t, BreakerEventStateChange, got[1].Type)
	assert.Equal(t, CircuitClosed, got[1].From)
	assert.Equal(t, CircuitOpen, got[1].To)
	assert.Equal(t, BreakerEventReset, got[2].Type)
	assert.Equal(t, CircuitOpen, got[2].From)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.Snapshot().FailureCount)
}

func TestCircuitBreaker_FullSubscriberDropsEvents(t *testing.T) {
	cb := newTestBreaker(newFakeClock())
	_, unsubscribe := cb.Subscribe(1)
	defer unsubscribe()

	cb.RecordFailure(FailurePersistent)
	cb.RecordFailure(FailurePersistent)

	assert.Equal(t, int64(1), cb.Dropped())
}

func TestCircuitBreaker_UnsubscribeTwice(t *testing.T) {
	cb := newTestBreaker(newFakeClock())
	_, unsubscribe := cb.Subscribe(1)

	assert.NotPanics(t, func() {
		unsubscribe()
		unsubscribe()
		cb.RecordFailure(FailurePersistent)
	})
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half_open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}
