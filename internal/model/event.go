package model

import "time"

// BreakerTransitionEvent is published when the CI circuit breaker changes state.
type BreakerTransitionEvent struct {
	From         string
	To           string
	FailureCount int
	At           time.Time
}

// MergeCompletedEvent is published after a pull request has been merged.
type MergeCompletedEvent struct {
	DecisionID string
	PRNumber   int
	Title      string
	SHA        string
	MergedAt   time.Time
}
