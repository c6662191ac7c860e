package biz

import (
	"context"

	"MergeLane/internal/model"
)

// AuditLogger records merge decisions and breaker transitions.
// Implementations must not block the caller.
type AuditLogger interface {
	// LogReadinessEvaluated records one merge readiness verdict
	LogReadinessEvaluated(ctx context.Context, decisionID string, prNumber int, canMerge bool, blockingReasons []string)

	// LogMergeExecuted records a successful merge
	LogMergeExecuted(ctx context.Context, decisionID string, prNumber int, sha string)

	// LogMergeFailed records a merge attempt that did not merge
	LogMergeFailed(ctx context.Context, decisionID string, prNumber int, reason string)

	// LogBreakerStateChanged records a circuit breaker transition
	LogBreakerStateChanged(ctx context.Context, event *model.BreakerTransitionEvent)
}
