package service

import (
	"errors"
	"fmt"
	"strings"

	"MergeLane/internal/biz"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// Error reasons returned to API clients.
const (
	ReasonInvalidArgument  = "INVALID_ARGUMENT"
	ReasonCircuitOpen      = "CIRCUIT_OPEN"
	ReasonMergeInProgress  = "MERGE_IN_PROGRESS"
	ReasonMergeNotReady    = "MERGE_NOT_READY"
	ReasonReportNotFound   = "REPORT_NOT_FOUND"
	ReasonStoreUnavailable = "STORE_UNAVAILABLE"
)

func errInvalidPRNumber(n int) error {
	return kerrors.BadRequest(ReasonInvalidArgument, fmt.Sprintf("invalid pull request number %d", n))
}

func errCircuitOpen(err error) error {
	e := kerrors.ServiceUnavailable(ReasonCircuitOpen, err.Error())
	var open *biz.CircuitOpenError
	if errors.As(err, &open) {
		e = e.WithMetadata(map[string]string{
			"state":       open.State.String(),
			"retry_after": open.RetryAfter.String(),
		})
	}
	return e
}

func errMergeInProgress(pr int) error {
	return kerrors.Conflict(ReasonMergeInProgress, fmt.Sprintf("a merge of PR #%d is already in progress", pr))
}

func errMergeNotReady(pr int, reasons []string) error {
	msg := fmt.Sprintf("PR #%d is not ready to merge", pr)
	if len(reasons) > 0 {
		msg += ": " + strings.Join(reasons, "; ")
	}
	return kerrors.Conflict(ReasonMergeNotReady, msg)
}

func errReportNotFound(pr int) error {
	return kerrors.NotFound(ReasonReportNotFound, fmt.Sprintf("no readiness report for PR #%d", pr))
}

func errStoreUnavailable(what string, err error) error {
	return kerrors.ServiceUnavailable(ReasonStoreUnavailable, fmt.Sprintf("%s unavailable: %v", what, err)).WithCause(err)
}
