package data

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"MergeLane/internal/model"
	dberrors "MergeLane/pkg/errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// MergeAuditLog is the GORM model for merge_audit_logs table
type MergeAuditLog struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	DecisionID string    `gorm:"column:decision_id;type:varchar(36);index"`
	PRNumber   int       `gorm:"column:pr_number;not null;index"`
	ActionType string    `gorm:"column:action_type;type:varchar(50);not null"`
	Details    string    `gorm:"column:details;type:json"` // JSON string
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName specifies the table name for GORM
func (MergeAuditLog) TableName() string {
	return "merge_audit_logs"
}

const auditBufferSize = 1000

// AuditLoggerImpl implements biz.AuditLogger with an async buffered writer.
// Without a database the records are written to the application log.
type AuditLoggerImpl struct {
	db      *gorm.DB
	logChan chan *MergeAuditLog
	done    chan struct{}
	logger  *log.Helper

	mu     sync.RWMutex
	closed bool

	// write persists one record
	write func(ctx context.Context, row *MergeAuditLog) error
	// retryPolicy bounds retries of a retryable write
	retryPolicy func() backoff.BackOff
}

// NewAuditLogger creates the audit logger and starts its writer goroutine.
// The cleanup func drains queued records before returning.
func NewAuditLogger(db *gorm.DB, logger log.Logger) (*AuditLoggerImpl, func()) {
	al := newAuditLogger(db, logger, auditBufferSize, nil)
	return al, al.Close
}

// newAuditLogger starts a writer using write, or the database when write is nil.
func newAuditLogger(db *gorm.DB, logger log.Logger, buffer int, write func(ctx context.Context, row *MergeAuditLog) error) *AuditLoggerImpl {
	al := &AuditLoggerImpl{
		db:      db,
		logChan: make(chan *MergeAuditLog, buffer),
		done:    make(chan struct{}),
		logger:  log.NewHelper(logger),
		retryPolicy: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return backoff.WithMaxRetries(b, 3)
		},
	}
	al.write = write
	if al.write == nil {
		al.write = al.writeDB
	}

	go al.start()

	return al
}

// start processes audit records from the channel until it is closed
func (a *AuditLoggerImpl) start() {
	defer close(a.done)
	for row := range a.logChan {
		a.persist(row)
	}
}

func (a *AuditLoggerImpl) persist(row *MergeAuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	op := func() error {
		if err := a.write(ctx, row); err != nil {
			if dbErr := dberrors.ClassifyDBError(err); dbErr != nil && !dbErr.Retryable() {
				return backoff.Permanent(dbErr)
			}
			return err
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(a.retryPolicy(), ctx)); err != nil {
		a.logger.Errorw("msg", "failed to write audit log",
			"pr_number", row.PRNumber,
			"action_type", row.ActionType,
			"error_type", dberrors.ClassifyDBError(err).Type.String(),
			"error", err)
		return
	}
	a.logger.Debugw("msg", "audit log written",
		"pr_number", row.PRNumber,
		"action_type", row.ActionType)
}

func (a *AuditLoggerImpl) writeDB(ctx context.Context, row *MergeAuditLog) error {
	if a.db == nil {
		a.logger.Infow("msg", "audit",
			"decision_id", row.DecisionID,
			"pr_number", row.PRNumber,
			"action_type", row.ActionType,
			"details", row.Details)
		return nil
	}
	return a.db.WithContext(ctx).Create(row).Error
}

// enqueue sends a record to the writer without blocking
func (a *AuditLoggerImpl) enqueue(decisionID string, prNumber int, actionType string, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("msg", "failed to marshal audit log details", "error", err)
		return
	}

	row := &MergeAuditLog{
		DecisionID: decisionID,
		PRNumber:   prNumber,
		ActionType: actionType,
		Details:    string(detailsJSON),
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.Warnw("msg", "audit logger closed, dropping event",
			"pr_number", prNumber,
			"action_type", actionType)
		return
	}

	select {
	case a.logChan <- row:
	default:
		a.logger.Warnw("msg", "audit log channel full, dropping event",
			"pr_number", prNumber,
			"action_type", actionType)
	}
}

// Close stops accepting records and waits for queued ones to be written.
func (a *AuditLoggerImpl) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.logChan)
	a.mu.Unlock()

	<-a.done
}

// LogReadinessEvaluated records one merge readiness verdict
func (a *AuditLoggerImpl) LogReadinessEvaluated(ctx context.Context, decisionID string, prNumber int, canMerge bool, blockingReasons []string) {
	a.enqueue(decisionID, prNumber, model.AuditReadinessEvaluated, map[string]interface{}{
		"can_merge":        canMerge,
		"blocking_reasons": blockingReasons,
	})
}

// LogMergeExecuted records a successful merge
func (a *AuditLoggerImpl) LogMergeExecuted(ctx context.Context, decisionID string, prNumber int, sha string) {
	a.enqueue(decisionID, prNumber, model.AuditMergeExecuted, map[string]interface{}{
		"sha": sha,
	})
}

// LogMergeFailed records a merge attempt that did not merge
func (a *AuditLoggerImpl) LogMergeFailed(ctx context.Context, decisionID string, prNumber int, reason string) {
	a.enqueue(decisionID, prNumber, model.AuditMergeFailed, map[string]interface{}{
		"reason": reason,
	})
}

// LogBreakerStateChanged records a circuit breaker transition. PR number 0 means "all PRs".
func (a *AuditLoggerImpl) LogBreakerStateChanged(ctx context.Context, event *model.BreakerTransitionEvent) {
	a.enqueue("", 0, model.AuditBreakerStateChanged, map[string]interface{}{
		"from":          event.From,
		"to":            event.To,
		"failure_count": event.FailureCount,
		"at":            event.At.Format(time.RFC3339),
	})
}

// DeleteBefore removes audit records older than before and returns how many were deleted.
func (a *AuditLoggerImpl) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if a.db == nil {
		return 0, nil
	}
	res := a.db.WithContext(ctx).Where("created_at < ?", before).Delete(&MergeAuditLog{})
	if res.Error != nil {
		return 0, dberrors.ClassifyDBError(res.Error)
	}
	return res.RowsAffected, nil
}
