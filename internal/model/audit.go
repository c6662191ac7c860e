package model

// Audit action type constants for the merge_audit_logs table.
const (
	AuditReadinessEvaluated  = "READINESS_EVALUATED"
	AuditMergeExecuted       = "MERGE_EXECUTED"
	AuditMergeFailed         = "MERGE_FAILED"
	AuditBreakerStateChanged = "BREAKER_STATE_CHANGED"
)
