package biz

import (
	"context"

	"MergeLane/internal/model"
)

// Notifier delivers engine notifications to operators.
type Notifier interface {
	// NotifyBreakerStateChanged is sent when the CI circuit breaker changes state
	NotifyBreakerStateChanged(ctx context.Context, event *model.BreakerTransitionEvent) error

	// NotifyMergeCompleted is sent after a pull request has been merged
	NotifyMergeCompleted(ctx context.Context, event *model.MergeCompletedEvent) error
}
