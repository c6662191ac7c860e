package biz

import (
	"context"
	"fmt"
	"strings"

	"MergeLane/internal/model"
)

// StatusRollupFunc returns the raw status-check rollup of a pull request.
type StatusRollupFunc func(ctx context.Context, prNumber int) ([]model.StatusRollupEntry, error)

// CreateStatusChecker adapts a rollup source into a StatusChecker.
// The overall state is success only when every entry passed, failure when
// any entry failed, and pending otherwise.
func CreateStatusChecker(getRollup StatusRollupFunc) StatusChecker {
	return func(ctx context.Context, prNumber int) (*CIStatus, error) {
		entries, err := getRollup(ctx, prNumber)
		if err != nil {
			return nil, fmt.Errorf("fetch status rollup for PR #%d: %w", prNumber, err)
		}
		return StatusFromRollup(entries), nil
	}
}

// StatusFromRollup derives a CIStatus from rollup entries. An empty rollup is a success.
func StatusFromRollup(entries []model.StatusRollupEntry) *CIStatus {
	status := &CIStatus{Checks: make([]CheckRun, 0, len(entries))}

	anyFailed, anyPending := false, false
	for _, e := range entries {
		state := RollupCheckState(e)
		switch state {
		case CheckFailed:
			anyFailed = true
		case CheckPending:
			anyPending = true
		}
		status.Checks = append(status.Checks, CheckRun{Name: e.Name, State: state, Message: e.Description})
	}

	switch {
	case anyFailed:
		status.State = CIStateFailure
	case anyPending:
		status.State = CIStatePending
	default:
		status.State = CIStateSuccess
	}

	for _, c := range status.FailedChecks() {
		status.Failures = append(status.Failures, ClassifyFailure(c.Name, c.Message))
	}
	return status
}

// RollupCheckState maps one rollup entry onto passed, pending or failed.
// Check runs are judged by status then conclusion; commit statuses by state.
func RollupCheckState(e model.StatusRollupEntry) CheckState {
	if e.Status == "" && e.Conclusion == "" {
		return commitStatusState(e.State)
	}

	switch strings.ToLower(e.Status) {
	case "queued", "in_progress", "waiting", "requested", "pending":
		return CheckPending
	}

	switch strings.ToLower(e.Conclusion) {
	case "success", "neutral", "skipped":
		return CheckPassed
	case "failure", "cancelled", "timed_out", "action_required", "startup_failure", "stale", "error":
		return CheckFailed
	default:
		return CheckPending
	}
}

func commitStatusState(state string) CheckState {
	switch strings.ToLower(state) {
	case "success":
		return CheckPassed
	case "failure", "error":
		return CheckFailed
	default:
		return CheckPending
	}
}
