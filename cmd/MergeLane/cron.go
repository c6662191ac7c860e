package main

import (
	"context"
	"fmt"
	"time"

	"MergeLane/internal/conf"
	pkglog "MergeLane/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/robfig/cron/v3"
)

const (
	defaultAuditRetention   = 30 * 24 * time.Hour
	defaultAuditCleanupCron = "0 0 3 * * *"
	auditCleanupTimeout     = 10 * time.Minute
)

// AuditPurger deletes audit records older than a cutoff.
type AuditPurger interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditRetention runs the audit log cleanup on a cron schedule.
// It is registered as a kratos server so the app starts and stops it.
type AuditRetention struct {
	cron      *cron.Cron
	purger    AuditPurger
	retention time.Duration
	schedule  string
	now       func() time.Time
	logger    *pkglog.LogHelper
}

var _ transport.Server = (*AuditRetention)(nil)

// NewAuditRetention registers the cleanup job.
// Schedule uses the 6-field cron format (sec min hour day month weekday); default 03:00 daily.
func NewAuditRetention(c *conf.Audit, purger AuditPurger, logger log.Logger) (*AuditRetention, error) {
	ar := &AuditRetention{
		cron:      cron.New(cron.WithSeconds()),
		purger:    purger,
		retention: defaultAuditRetention,
		schedule:  defaultAuditCleanupCron,
		now:       time.Now,
		logger:    pkglog.NewLogHelper(logger),
	}
	if c != nil {
		if c.Retention > 0 {
			ar.retention = c.Retention
		}
		if c.CleanupCron != "" {
			ar.schedule = c.CleanupCron
		}
	}

	if _, err := ar.cron.AddFunc(ar.schedule, ar.runOnce); err != nil {
		return nil, fmt.Errorf("register audit cleanup job %q: %w", ar.schedule, err)
	}
	return ar, nil
}

func (ar *AuditRetention) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), auditCleanupTimeout)
	defer cancel()
	_, _ = ar.Cleanup(ctx)
}

// Cleanup deletes audit records older than the retention window.
func (ar *AuditRetention) Cleanup(ctx context.Context) (int64, error) {
	cutoff := ar.now().Add(-ar.retention)
	ar.logger.Scheduler("starting audit log cleanup", "before", cutoff.Format(time.RFC3339))

	deleted, err := ar.purger.DeleteBefore(ctx, cutoff)
	if err != nil {
		ar.logger.Errorw("msg", "audit log cleanup failed", "error", err)
		return 0, err
	}
	ar.logger.Scheduler("audit log cleanup completed", "deleted", deleted)
	return deleted, nil
}

// Start starts the cron scheduler.
func (ar *AuditRetention) Start(context.Context) error {
	ar.cron.Start()
	ar.logger.Scheduler("audit cleanup job started",
		"schedule", ar.schedule,
		"retention", ar.retention.String())
	return nil
}

// Stop stops the scheduler and waits for a running cleanup to finish.
func (ar *AuditRetention) Stop(ctx context.Context) error {
	done := ar.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
