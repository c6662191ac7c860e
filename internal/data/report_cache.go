package data

import (
	"context"
	"errors"
	"strconv"
	"time"

	"MergeLane/internal/model"
)

// ReportCacheRepo stores the latest readiness report of each pull request.
type ReportCacheRepo struct {
	cache CacheClient
}

// NewReportCacheRepo creates a report cache on top of cache.
func NewReportCacheRepo(cache CacheClient) *ReportCacheRepo {
	return &ReportCacheRepo{cache: cache}
}

func reportKey(prNumber int) string {
	return BuildCacheKey(CacheKeyReport, strconv.Itoa(prNumber))
}

// SaveReport replaces the cached report of report.PRNumber. A non-positive ttl uses TTLReport.
func (r *ReportCacheRepo) SaveReport(ctx context.Context, report *model.CachedReport, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLReport
	}
	return r.cache.Set(ctx, reportKey(report.PRNumber), report, ttl)
}

// GetReport returns model.ErrReportNotFound when nothing is cached for prNumber.
func (r *ReportCacheRepo) GetReport(ctx context.Context, prNumber int) (*model.CachedReport, error) {
	var report model.CachedReport
	if err := r.cache.Get(ctx, reportKey(prNumber), &report); err != nil {
		if errors.Is(err, ErrCacheNotFound) {
			return nil, model.ErrReportNotFound
		}
		return nil, err
	}
	return &report, nil
}

// DeleteReport drops the cached report of prNumber. A missing report is not an error.
func (r *ReportCacheRepo) DeleteReport(ctx context.Context, prNumber int) error {
	return r.cache.Delete(ctx, reportKey(prNumber))
}
