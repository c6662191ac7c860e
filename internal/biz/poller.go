package biz

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// StatusChecker returns the current CI status of a pull request.
// A returned error is treated as a failed poll and classified by its message.
type StatusChecker func(ctx context.Context, prNumber int) (*CIStatus, error)

// PollerConfig tunes the backoff schedule and the stop conditions.
type PollerConfig struct {
	InitialInterval    time.Duration
	MaxInterval        time.Duration
	BackoffMultiplier  float64
	MaxJitter          time.Duration
	MaxPolls           int
	FailFastOnTerminal bool
}

// DefaultPollerConfig returns the stock poller settings.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		InitialInterval:    10 * time.Second,
		MaxInterval:        60 * time.Second,
		BackoffMultiplier:  1.5,
		MaxJitter:          time.Second,
		MaxPolls:           60,
		FailFastOnTerminal: true,
	}
}

// PollReason explains why an unsuccessful poll session ended.
type PollReason string

const (
	PollReasonMaxPollsExceeded PollReason = "max_polls_exceeded"
	PollReasonTerminalFailure  PollReason = "terminal_failure"
	PollReasonCircuitOpen      PollReason = "circuit_open"
	PollReasonCancelled        PollReason = "cancelled"
)

// PollResult is the outcome of one PollUntilComplete session.
type PollResult struct {
	PRNumber       int                `json:"pr_number"`
	Success        bool               `json:"success"`
	PollCount      int                `json:"poll_count"`
	Reason         PollReason         `json:"reason,omitempty"`
	FailureDetails *ClassifiedFailure `json:"failure_details,omitempty"`
	LastStatus     *CIStatus          `json:"last_status,omitempty"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
}

// PollEventType names a poller event.
type PollEventType string

const (
	PollEventStart           PollEventType = "poll_start"
	PollEventResult          PollEventType = "poll_result"
	PollEventBackoff         PollEventType = "backoff"
	PollEventTerminalFailure PollEventType = "terminal_failure"
	PollEventComplete        PollEventType = "complete"
)

// PollEvent is delivered to poller subscribers.
type PollEvent struct {
	Type      PollEventType      `json:"type"`
	PRNumber  int                `json:"pr_number"`
	PollCount int                `json:"poll_count"`
	State     CIState            `json:"state,omitempty"`
	Interval  time.Duration      `json:"interval,omitempty"`
	Failure   *ClassifiedFailure `json:"failure,omitempty"`
	Result    *PollResult        `json:"result,omitempty"`
	At        time.Time          `json:"at"`
}

// Poller watches the CI of one pull request per PollUntilComplete call,
// backing off exponentially between polls and consulting a CircuitBreaker
// before every attempt.
//
// The poller keeps no per-session state, so concurrent sessions for
// different PRs may share it. They then also share its breaker.
type Poller struct {
	cfg     PollerConfig
	breaker *CircuitBreaker

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(limit time.Duration) time.Duration
	now    func() time.Time

	events *eventHub[PollEvent]
	logger *log.Helper
}

// PollerOption customises a Poller.
type PollerOption func(*Poller)

// WithSleeper replaces the context-aware backoff wait, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) PollerOption {
	return func(p *Poller) {
		p.sleep = sleep
	}
}

// WithJitter replaces the uniform jitter source, for tests.
func WithJitter(jitter func(limit time.Duration) time.Duration) PollerOption {
	return func(p *Poller) {
		p.jitter = jitter
	}
}

// WithPollerClock replaces time.Now, for tests.
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		p.now = now
	}
}

// NewPoller creates a poller guarded by breaker. Invalid settings fall back to defaults.
func NewPoller(cfg PollerConfig, breaker *CircuitBreaker, logger log.Logger, opts ...PollerOption) *Poller {
	def := DefaultPollerConfig()
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.MaxJitter < 0 {
		cfg.MaxJitter = 0
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = def.MaxPolls
	}

	p := &Poller{
		cfg:     cfg,
		breaker: breaker,
		sleep:   sleepContext,
		jitter:  uniformJitter,
		now:     time.Now,
		events:  newEventHub[PollEvent](),
		logger:  log.NewHelper(logger),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Breaker returns the circuit breaker consulted by the poller.
func (p *Poller) Breaker() *CircuitBreaker {
	return p.breaker
}

// Subscribe returns a channel of poll events and a func that ends the subscription.
func (p *Poller) Subscribe(buffer int) (<-chan PollEvent, func()) {
	return p.events.subscribe(buffer)
}

// Dropped returns how many events were dropped because a subscriber was full.
func (p *Poller) Dropped() int64 {
	return p.events.droppedCount()
}

// BaseInterval returns the un-jittered wait after the given poll:
// min(MaxInterval, InitialInterval * BackoffMultiplier^(pollCount-1)).
func (p *Poller) BaseInterval(pollCount int) time.Duration {
	if pollCount < 1 {
		pollCount = 1
	}
	interval := float64(p.cfg.InitialInterval) * math.Pow(p.cfg.BackoffMultiplier, float64(pollCount-1))
	if interval > float64(p.cfg.MaxInterval) || math.IsInf(interval, 0) {
		return p.cfg.MaxInterval
	}
	return time.Duration(interval)
}

// NextInterval returns BaseInterval plus a jitter drawn uniformly from [0, MaxJitter].
func (p *Poller) NextInterval(pollCount int) time.Duration {
	return p.BaseInterval(pollCount) + p.jitter(p.cfg.MaxJitter)
}

// PollUntilComplete polls checker until CI succeeds or a stop condition is hit:
// the poll budget runs out, a terminal failure is seen (when fail-fast is on),
// the breaker denies an attempt, or ctx is done.
func (p *Poller) PollUntilComplete(ctx context.Context, prNumber int, checker StatusChecker) *PollResult {
	result := &PollResult{PRNumber: prNumber, StartedAt: p.now()}
	finish := func() *PollResult {
		result.FinishedAt = p.now()
		p.logger.Infow("msg", "poll session finished",
			"pr_number", prNumber,
			"success", result.Success,
			"poll_count", result.PollCount,
			"reason", string(result.Reason))
		p.publish(PollEvent{Type: PollEventComplete, PRNumber: prNumber, PollCount: result.PollCount, Result: result})
		return result
	}

	for result.PollCount < p.cfg.MaxPolls {
		if ctx.Err() != nil {
			result.Reason = PollReasonCancelled
			return finish()
		}
		if !p.breaker.CanAttempt() {
			p.logger.Warnw("msg", "circuit open, skipping poll",
				"pr_number", prNumber,
				"retry_after", p.breaker.TimeUntilReset().String())
			result.Reason = PollReasonCircuitOpen
			return finish()
		}
		p.breaker.PrepareForAttempt()

		p.publish(PollEvent{Type: PollEventStart, PRNumber: prNumber, PollCount: result.PollCount + 1})
		result.PollCount++

		status, err := checker(ctx, prNumber)
		if err != nil {
			if ctx.Err() != nil {
				result.Reason = PollReasonCancelled
				return finish()
			}
			failure := ClassifyError("status_check", err)
			p.logger.Warnw("msg", "status check failed",
				"pr_number", prNumber,
				"poll_count", result.PollCount,
				"kind", failure.Kind.String(),
				"error", err)
			p.breaker.RecordFailure(failure.Kind)
			if p.cfg.FailFastOnTerminal && failure.Kind == FailureTerminal {
				return p.terminal(result, failure, finish)
			}
		} else {
			if status == nil {
				status = &CIStatus{State: CIStatePending}
			}
			result.LastStatus = status
			p.publish(PollEvent{Type: PollEventResult, PRNumber: prNumber, PollCount: result.PollCount, State: status.State})

			switch status.State {
			case CIStateSuccess:
				p.breaker.RecordSuccess()
				result.Success = true
				return finish()
			case CIStateFailure:
				failures := classifyStatus(status)
				classified := *status
				classified.Failures = failures
				result.LastStatus = &classified
				if worst, ok := mostSevere(failures); ok {
					p.breaker.RecordFailure(worst.Kind)
				} else {
					p.breaker.RecordFailure(FailurePersistent)
				}
				if p.cfg.FailFastOnTerminal {
					if terminal, ok := firstTerminal(failures); ok {
						return p.terminal(result, terminal, finish)
					}
				}
			}
		}

		// No wait after the last permitted poll.
		if result.PollCount >= p.cfg.MaxPolls {
			break
		}

		interval := p.NextInterval(result.PollCount)
		p.publish(PollEvent{Type: PollEventBackoff, PRNumber: prNumber, PollCount: result.PollCount, Interval: interval})
		p.logger.Debugw("msg", "backing off",
			"pr_number", prNumber,
			"poll_count", result.PollCount,
			"interval", interval.String())

		if err := p.sleep(ctx, interval); err != nil {
			result.Reason = PollReasonCancelled
			return finish()
		}
	}

	result.Reason = PollReasonMaxPollsExceeded
	return finish()
}

func (p *Poller) terminal(result *PollResult, failure ClassifiedFailure, finish func() *PollResult) *PollResult {
	p.logger.Errorw("msg", "terminal CI failure",
		"pr_number", result.PRNumber,
		"check", failure.Name,
		"message", failure.Message)
	result.Reason = PollReasonTerminalFailure
	result.FailureDetails = &failure
	p.publish(PollEvent{Type: PollEventTerminalFailure, PRNumber: result.PRNumber, PollCount: result.PollCount, Failure: &failure})
	return finish()
}

func (p *Poller) publish(ev PollEvent) {
	ev.At = p.now()
	p.events.publish(ev)
}

// classifyStatus returns the checker's classified failures plus a
// classification of every failed check not already among them.
func classifyStatus(status *CIStatus) []ClassifiedFailure {
	failures := make([]ClassifiedFailure, 0, len(status.Failures))
	seen := make(map[string]struct{}, len(status.Failures))
	for _, f := range status.Failures {
		failures = append(failures, f)
		seen[f.Name] = struct{}{}
	}
	for _, check := range status.FailedChecks() {
		if _, ok := seen[check.Name]; ok {
			continue
		}
		failures = append(failures, ClassifyFailure(check.Name, check.Message))
		seen[check.Name] = struct{}{}
	}
	return failures
}

func firstTerminal(failures []ClassifiedFailure) (ClassifiedFailure, bool) {
	for _, f := range failures {
		if f.Kind == FailureTerminal {
			return f, true
		}
	}
	return ClassifiedFailure{}, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func uniformJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(limit) + 1))
}
