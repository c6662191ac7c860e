package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// CircuitState is the gate position of a CircuitBreaker.
type CircuitState int

const (
	// CircuitClosed lets every attempt through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects attempts until the reset timeout has elapsed.
	CircuitOpen
	// CircuitHalfOpen admits trial attempts; successes close it, a failure reopens it.
	CircuitHalfOpen
)

// String returns the wire name of the state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrCircuitOpen matches every *CircuitOpenError via errors.Is.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError is returned by Execute when the gate denies an attempt.
// Callers should treat it as "try later", not as a failure of the protected call.
type CircuitOpenError struct {
	State      CircuitState
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker is %s: retry after %s", e.State, e.RetryAfter.Round(time.Millisecond))
}

// Is reports whether target is ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// CircuitBreakerConfig tunes the breaker state machine.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive half-open successes that closes it.
	SuccessThreshold int
	// ResetTimeout is how long the circuit stays open before a trial attempt is allowed.
	ResetTimeout time.Duration
	// FailureWindow expires a stale failure streak in the closed state. Zero keeps streaks forever.
	FailureWindow time.Duration
}

// DefaultCircuitBreakerConfig returns the stock breaker settings.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		ResetTimeout:     5 * time.Minute,
		FailureWindow:    10 * time.Minute,
	}
}

// BreakerEventType names a breaker event.
type BreakerEventType string

const (
	BreakerEventStateChange     BreakerEventType = "state_change"
	BreakerEventFailureRecorded BreakerEventType = "failure_recorded"
	BreakerEventReset           BreakerEventType = "reset"
)

// BreakerEvent is delivered to breaker subscribers.
type BreakerEvent struct {
	Type         BreakerEventType `json:"type"`
	From         CircuitState     `json:"from"`
	To           CircuitState     `json:"to"`
	Kind         FailureKind      `json:"kind"`
	FailureCount int              `json:"failure_count"`
	At           time.Time        `json:"at"`
}

// BreakerSnapshot is a point-in-time copy of the breaker state.
type BreakerSnapshot struct {
	State          CircuitState  `json:"state"`
	FailureCount   int           `json:"failure_count"`
	SuccessCount   int           `json:"success_count"`
	LastFailureAt  time.Time     `json:"last_failure_at"`
	StateEnteredAt time.Time     `json:"state_entered_at"`
	TimeUntilReset time.Duration `json:"time_until_reset"`
}

// CircuitBreaker guards calls to an unreliable dependency (the CI / GitHub API).
//
// Counters are guarded by a mutex, so one breaker may be shared by several
// pollers to couple their failure domains. Sharing still means every poller's
// results feed the same streak; give each PR its own breaker to keep them apart.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg CircuitBreakerConfig

	state          CircuitState
	failureCount   int
	successCount   int
	lastFailureAt  time.Time
	stateEnteredAt time.Time

	now    func() time.Time
	events *eventHub[BreakerEvent]
	logger *log.Helper
}

// BreakerOption customises a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerClock replaces time.Now, for tests.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// NewCircuitBreaker creates a closed breaker. Non-positive thresholds fall back to defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig, logger log.Logger, opts ...BreakerOption) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.ResetTimeout < 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}

	cb := &CircuitBreaker{
		cfg:    cfg,
		state:  CircuitClosed,
		now:    time.Now,
		events: newEventHub[BreakerEvent](),
		logger: log.NewHelper(logger),
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.stateEnteredAt = cb.now()
	return cb
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CanAttempt reports whether an attempt is currently allowed.
// An open breaker allows one once ResetTimeout has elapsed; it stays open
// until PrepareForAttempt moves it to half-open.
func (cb *CircuitBreaker) CanAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.canAttemptLocked()
}

func (cb *CircuitBreaker) canAttemptLocked() bool {
	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		return cb.now().Sub(cb.stateEnteredAt) >= cb.cfg.ResetTimeout
	default:
		return false
	}
}

// PrepareForAttempt moves an open breaker whose cooldown has elapsed to half-open.
// It is a no-op in every other situation.
func (cb *CircuitBreaker) PrepareForAttempt() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.canAttemptLocked() {
		cb.transitionLocked(CircuitHalfOpen)
	}
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		cb.logger.Debugw("msg", "half-open trial succeeded",
			"success_count", cb.successCount,
			"success_threshold", cb.cfg.SuccessThreshold)
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.transitionLocked(CircuitClosed)
		}
	case CircuitOpen:
		// No trial was admitted, so there is nothing to credit.
	}
}

// RecordFailure records a failed call of the given kind.
// A terminal failure opens a closed breaker immediately.
func (cb *CircuitBreaker) RecordFailure(kind FailureKind) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if cb.state == CircuitClosed && cb.cfg.FailureWindow > 0 &&
		!cb.lastFailureAt.IsZero() && now.Sub(cb.lastFailureAt) > cb.cfg.FailureWindow {
		cb.failureCount = 0
	}

	cb.failureCount++
	cb.lastFailureAt = now
	if kind == FailureTerminal && cb.failureCount < cb.cfg.FailureThreshold {
		cb.failureCount = cb.cfg.FailureThreshold
	}

	cb.events.publish(BreakerEvent{
		Type:         BreakerEventFailureRecorded,
		From:         cb.state,
		To:           cb.state,
		Kind:         kind,
		FailureCount: cb.failureCount,
		At:           now,
	})

	switch cb.state {
	case CircuitClosed:
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.transitionLocked(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.successCount = 0
		cb.transitionLocked(CircuitOpen)
	case CircuitOpen:
	}
}

// Execute runs fn if the gate allows it and records the outcome.
// It returns a *CircuitOpenError without calling fn when the gate is shut.
// The failure kind of an error is derived from its message.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	cb.mu.Lock()
	if !cb.canAttemptLocked() {
		err := &CircuitOpenError{State: cb.state, RetryAfter: cb.timeUntilResetLocked()}
		cb.mu.Unlock()
		return err
	}
	if cb.state == CircuitOpen {
		cb.transitionLocked(CircuitHalfOpen)
	}
	cb.mu.Unlock()

	if err := fn(ctx); err != nil {
		cb.RecordFailure(DetermineFailureType(err.Error()))
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Reset forces the breaker closed with zeroed counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	from := cb.state
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.stateEnteredAt = cb.now()

	cb.logger.Infow("msg", "circuit breaker reset", "from", from.String())
	cb.events.publish(BreakerEvent{Type: BreakerEventReset, From: from, To: CircuitClosed, At: cb.stateEnteredAt})
}

// ForceOpen opens the breaker regardless of the failure streak (operator override).
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen {
		cb.stateEnteredAt = cb.now()
		return
	}
	cb.transitionLocked(CircuitOpen)
}

// TimeUntilReset returns 0 unless the breaker is open, else the remaining cooldown.
func (cb *CircuitBreaker) TimeUntilReset() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.timeUntilResetLocked()
}

func (cb *CircuitBreaker) timeUntilResetLocked() time.Duration {
	if cb.state != CircuitOpen {
		return 0
	}
	remaining := cb.cfg.ResetTimeout - cb.now().Sub(cb.stateEnteredAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot returns a copy of the current counters.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerSnapshot{
		State:          cb.state,
		FailureCount:   cb.failureCount,
		SuccessCount:   cb.successCount,
		LastFailureAt:  cb.lastFailureAt,
		StateEnteredAt: cb.stateEnteredAt,
		TimeUntilReset: cb.timeUntilResetLocked(),
	}
}

// Subscribe returns a channel of breaker events and a func that ends the
// subscription. Events for a full channel are dropped, see Dropped.
func (cb *CircuitBreaker) Subscribe(buffer int) (<-chan BreakerEvent, func()) {
	return cb.events.subscribe(buffer)
}

// Dropped returns how many events were dropped because a subscriber was full.
func (cb *CircuitBreaker) Dropped() int64 {
	return cb.events.droppedCount()
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.stateEnteredAt = cb.now()

	switch to {
	case CircuitClosed:
		cb.failureCount = 0
		cb.successCount = 0
	case CircuitHalfOpen:
		cb.successCount = 0
	}

	cb.logger.Infow("msg", "circuit breaker state changed",
		"from", from.String(),
		"to", to.String(),
		"failure_count", cb.failureCount)

	cb.events.publish(BreakerEvent{
		Type:         BreakerEventStateChange,
		From:         from,
		To:           to,
		FailureCount: cb.failureCount,
		At:           cb.stateEnteredAt,
	})
}
