package biz

// CIState is the overall state of a PR's CI at one poll.
type CIState string

const (
	CIStateSuccess CIState = "success"
	CIStatePending CIState = "pending"
	CIStateFailure CIState = "failure"
)

// CheckState is the normalized state of a single named check.
type CheckState string

const (
	CheckPassed  CheckState = "passed"
	CheckPending CheckState = "pending"
	CheckFailed  CheckState = "failed"
)

// CheckRun is one named check within a CIStatus.
type CheckRun struct {
	Name    string     `json:"name"`
	State   CheckState `json:"state"`
	Message string     `json:"message,omitempty"`
}

// CIStatus is the observation returned by a status checker for one poll.
// Failures may arrive pre-classified; the poller classifies the failed checks that are not.
type CIStatus struct {
	State    CIState             `json:"state"`
	Checks   []CheckRun          `json:"checks"`
	Failures []ClassifiedFailure `json:"failures,omitempty"`
}

// FailedChecks returns the checks in the failed state, in order.
func (s *CIStatus) FailedChecks() []CheckRun {
	var failed []CheckRun
	for _, c := range s.Checks {
		if c.State == CheckFailed {
			failed = append(failed, c)
		}
	}
	return failed
}
