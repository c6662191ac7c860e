package data

import (
	"context"

	"MergeLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// NoopNotifier only logs notifications. It stands in for an outbound webhook sender.
type NoopNotifier struct {
	logger *log.Helper
}

// NewNoopNotifier creates a new noop notifier
func NewNoopNotifier(logger log.Logger) *NoopNotifier {
	return &NoopNotifier{
		logger: log.NewHelper(logger),
	}
}

// NotifyBreakerStateChanged logs a CI circuit breaker transition
func (n *NoopNotifier) NotifyBreakerStateChanged(ctx context.Context, event *model.BreakerTransitionEvent) error {
	n.logger.Infow("msg", "circuit breaker state changed (webhook disabled)",
		"from", event.From,
		"to", event.To,
		"failure_count", event.FailureCount,
		"at", event.At)
	return nil
}

// NotifyMergeCompleted logs a completed merge
func (n *NoopNotifier) NotifyMergeCompleted(ctx context.Context, event *model.MergeCompletedEvent) error {
	n.logger.Infow("msg", "pull request merged (webhook disabled)",
		"decision_id", event.DecisionID,
		"pr_number", event.PRNumber,
		"title", event.Title,
		"sha", event.SHA,
		"merged_at", event.MergedAt)
	return nil
}
