package model

import "errors"

// ErrReportNotFound is returned when no readiness report is cached for a pull request.
var ErrReportNotFound = errors.New("readiness report not found")
