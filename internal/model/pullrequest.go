// Package model holds value types shared by the biz and data layers.
package model

import "time"

// Review states reported by GitHub.
const (
	ReviewApproved         = "APPROVED"
	ReviewChangesRequested = "CHANGES_REQUESTED"
	ReviewCommented        = "COMMENTED"
	ReviewDismissed        = "DISMISSED"
	ReviewPending          = "PENDING"
)

// PRInfo is the pull request snapshot returned by the PR-info collaborator.
type PRInfo struct {
	Number           int       `json:"number"`
	Title            string    `json:"title"`
	HeadSHA          string    `json:"head_sha"`
	Mergeable        bool      `json:"mergeable"`
	MergeableState   string    `json:"mergeable_state"`
	ConflictingFiles []string  `json:"conflicting_files,omitempty"`
	Reviews          []Review  `json:"reviews,omitempty"`
	FetchedAt        time.Time `json:"fetched_at"`
}

// Review is a single submitted pull request review.
type Review struct {
	Author      string    `json:"author"`
	State       string    `json:"state"`
	Body        string    `json:"body,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// StatusRollupEntry is one raw entry of a PR's status-check rollup.
// Check runs carry Status and Conclusion; commit status contexts carry State.
type StatusRollupEntry struct {
	Name        string `json:"name"`
	Status      string `json:"status,omitempty"`
	Conclusion  string `json:"conclusion,omitempty"`
	State       string `json:"state,omitempty"`
	Description string `json:"description,omitempty"`
}
