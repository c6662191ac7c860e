package model

import "time"

// MergeMessage is the commit title and body used for a squash merge.
type MergeMessage struct {
	Title        string `json:"title"`
	Body         string `json:"body"`
	ClosesIssues []int  `json:"closes_issues,omitempty"`
}

// MergeOutcome is what the merge-execution collaborator reports back.
type MergeOutcome struct {
	Merged  bool   `json:"merged"`
	SHA     string `json:"sha,omitempty"`
	Message string `json:"message,omitempty"`
}

// CachedReport is the last readiness verdict stored for a pull request.
type CachedReport struct {
	DecisionID      string    `json:"decision_id"`
	PRNumber        int       `json:"pr_number"`
	CanMerge        bool      `json:"can_merge"`
	BlockingReasons []string  `json:"blocking_reasons"`
	Summary         string    `json:"summary"`
	Markdown        string    `json:"markdown"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
}
