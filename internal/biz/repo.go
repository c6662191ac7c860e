package biz

import (
	"context"
	"time"

	"MergeLane/internal/model"
)

// PRInfoProvider returns pull request metadata, mergeability and reviews.
type PRInfoProvider interface {
	GetPRInfo(ctx context.Context, prNumber int) (*model.PRInfo, error)
}

// StatusRollupProvider returns the raw status-check rollup of a pull request head.
type StatusRollupProvider interface {
	GetStatusRollup(ctx context.Context, prNumber int) ([]model.StatusRollupEntry, error)
}

// MergeExecutor performs the actual merge.
type MergeExecutor interface {
	Merge(ctx context.Context, prNumber int, msg model.MergeMessage) (*model.MergeOutcome, error)
}

// MergeLocker serialises merges of the same pull request.
type MergeLocker interface {
	// Acquire returns false without error when another owner holds the lock.
	Acquire(ctx context.Context, prNumber int, owner string, ttl time.Duration) (bool, error)
	// Release only removes the lock if owner still holds it.
	Release(ctx context.Context, prNumber int, owner string) error
}

// ReportCache keeps the latest readiness verdict per pull request.
type ReportCache interface {
	SaveReport(ctx context.Context, report *model.CachedReport, ttl time.Duration) error
	// GetReport returns model.ErrReportNotFound when nothing is cached.
	GetReport(ctx context.Context, prNumber int) (*model.CachedReport, error)
	// DeleteReport invalidates the verdict once it no longer applies.
	DeleteReport(ctx context.Context, prNumber int) error
}
