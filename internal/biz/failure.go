package biz

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// FailureKind classifies a CI failure by how likely a retry is to help.
// Values are ordered by severity so kinds can be compared directly.
type FailureKind int

const (
	// FailureTransient is expected to clear on retry (flaky test, timeout, rate limit).
	FailureTransient FailureKind = iota
	// FailurePersistent has no known cause; retried within the poll budget.
	FailurePersistent
	// FailureTerminal will not resolve by retrying (bad credentials, invalid config).
	FailureTerminal
)

// String returns the wire name of the kind.
func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailurePersistent:
		return "persistent"
	case FailureTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *FailureKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "transient":
		*k = FailureTransient
	case "persistent":
		*k = FailurePersistent
	case "terminal":
		*k = FailureTerminal
	default:
		return fmt.Errorf("unknown failure kind %q", string(text))
	}
	return nil
}

// Recoverable reports whether retrying may clear a failure of this kind.
func (k FailureKind) Recoverable() bool {
	return k != FailureTerminal
}

// ClassifiedFailure is a failed check together with its classification.
type ClassifiedFailure struct {
	Name        string      `json:"name"`
	Kind        FailureKind `json:"kind"`
	Recoverable bool        `json:"recoverable"`
	Message     string      `json:"message,omitempty"`
}

// terminalKeywords match failures that a retry cannot fix.
var terminalKeywords = []string{
	"configuration",
	"config",
	"permission",
	"authorization",
	"unauthorized",
	"forbidden",
	"bad credentials",
	"invalid token",
	"invalid_token",
	"token expired",
	"syntax",
}

// transientKeywords match failures that usually clear on their own.
var transientKeywords = []string{
	"test",
	"lint",
	"build",
	"timeout",
	"timed out",
	"rate limit",
	"ratelimit",
	"connection",
	"network",
	"econnreset",
	"temporarily unavailable",
}

// Keywords must start a word: "unit-tests" matches test, "attestation" does not.
var (
	terminalPattern  = keywordPattern(terminalKeywords)
	transientPattern = keywordPattern(transientKeywords)
)

func keywordPattern(keywords []string) *regexp.Regexp {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`(?:^|[^a-z0-9])(?:` + strings.Join(quoted, "|") + `)`)
}

// DetermineFailureType maps free text (check names, error messages) to a FailureKind.
// Terminal vocabulary wins over transient vocabulary; text matching neither is persistent.
func DetermineFailureType(texts ...string) FailureKind {
	joined := strings.ToLower(strings.Join(texts, " "))
	if strings.TrimSpace(joined) == "" {
		return FailurePersistent
	}
	if terminalPattern.MatchString(joined) {
		return FailureTerminal
	}
	if transientPattern.MatchString(joined) {
		return FailureTransient
	}
	return FailurePersistent
}

// ClassifyFailure classifies one failed check by its name and optional error message.
func ClassifyFailure(checkName, errorMessage string) ClassifiedFailure {
	kind := DetermineFailureType(checkName, errorMessage)
	return ClassifiedFailure{
		Name:        checkName,
		Kind:        kind,
		Recoverable: kind.Recoverable(),
		Message:     errorMessage,
	}
}

// APIStatusError is an error from a remote API that carries the HTTP status
// and the server's own message.
type APIStatusError interface {
	error
	HTTPStatus() int
	APIMessage() string
}

// ClassifyError classifies an error returned by a collaborator call.
// API errors are judged by status and server message only, transport errors by
// their cause, so request paths and repository names never decide the kind.
func ClassifyError(checkName string, err error) ClassifiedFailure {
	f := ClassifiedFailure{Name: checkName, Kind: FailurePersistent}
	if err == nil {
		f.Recoverable = true
		return f
	}
	f.Message = err.Error()

	var apiErr APIStatusError
	var urlErr *url.Error
	switch {
	case errors.As(err, &apiErr):
		f.Kind = statusFailureKind(apiErr.HTTPStatus(), apiErr.APIMessage())
	case errors.As(err, &urlErr):
		if urlErr.Timeout() {
			f.Kind = FailureTransient
		} else {
			f.Kind = DetermineFailureType(urlErr.Err.Error())
		}
	default:
		f.Kind = DetermineFailureType(err.Error())
	}
	f.Recoverable = f.Kind.Recoverable()
	return f
}

func statusFailureKind(status int, message string) FailureKind {
	switch {
	case status == http.StatusUnauthorized:
		return FailureTerminal
	case status == http.StatusForbidden:
		// GitHub reports primary and secondary rate limits as 403.
		if strings.Contains(strings.ToLower(message), "rate limit") {
			return FailureTransient
		}
		return FailureTerminal
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return FailureTransient
	}
	return DetermineFailureType(message)
}

// mostSevere returns the failure with the highest kind; the first one wins ties.
func mostSevere(failures []ClassifiedFailure) (ClassifiedFailure, bool) {
	if len(failures) == 0 {
		return ClassifiedFailure{}, false
	}
	worst := failures[0]
	for _, f := range failures[1:] {
		if f.Kind > worst.Kind {
			worst = f
		}
	}
	return worst, true
}
