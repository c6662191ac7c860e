package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MergeLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// Blocking reasons, in the order they are reported.
const (
	ReasonQualityGatesFailed = "Quality gates failed"
	ReasonCIPipelineFailed   = "CI pipeline failed"
	ReasonMergeConflicts     = "Merge conflicts present"
)

// ConflictInfo is the conflict state of a pull request.
type ConflictInfo struct {
	HasConflicts     bool     `json:"has_conflicts"`
	Mergeable        bool     `json:"mergeable"`
	MergeableState   string   `json:"mergeable_state"`
	ConflictingFiles []string `json:"conflicting_files,omitempty"`
}

// unknownConflicts is assumed when conflict state cannot be fetched.
func unknownConflicts() ConflictInfo {
	return ConflictInfo{HasConflicts: false, Mergeable: false, MergeableState: "unknown"}
}

// BlockingReview is a review whose latest verdict requests changes.
type BlockingReview struct {
	Author      string    `json:"author"`
	State       string    `json:"state"`
	Body        string    `json:"body,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// MergeReadinessResult is the combined verdict for one pull request.
type MergeReadinessResult struct {
	DecisionID      string             `json:"decision_id"`
	PRNumber        int                `json:"pr_number"`
	CanMerge        bool               `json:"can_merge"`
	QualityGate     *QualityGateResult `json:"quality_gate"`
	Conflicts       ConflictInfo       `json:"conflicts"`
	BlockingReviews []BlockingReview   `json:"blocking_reviews"`
	CIPassed        bool               `json:"ci_passed"`
	BlockingReasons []string           `json:"blocking_reasons"`
	Report          *DetailedReport    `json:"report"`
	EvaluatedAt     time.Time          `json:"evaluated_at"`
}

// MergeResult is the outcome of ExecuteMerge. Failures are reported in Error, never returned.
type MergeResult struct {
	Success bool   `json:"success"`
	SHA     string `json:"sha,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FetchResult carries either a fetched value or the error that prevented it.
type FetchResult[T any] struct {
	Value T
	Err   error
}

// fetchResult runs fn and captures its outcome.
func fetchResult[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) FetchResult[T] {
	v, err := fn(ctx)
	return FetchResult[T]{Value: v, Err: err}
}

// OrDefault returns the value, or def after passing the error to onErr.
func (r FetchResult[T]) OrDefault(def T, onErr func(error)) T {
	if r.Err != nil {
		if onErr != nil {
			onErr(r.Err)
		}
		return def
	}
	return r.Value
}

// MergeDecision folds quality gates, CI, conflicts and reviews into one merge verdict.
type MergeDecision struct {
	prInfo     PRInfoProvider
	executor   MergeExecutor
	thresholds QualityThresholds
	logger     *log.Helper

	now   func() time.Time
	newID func() string
}

// NewMergeDecision creates the merge decision use case. Report thresholds come from gate.
func NewMergeDecision(prInfo PRInfoProvider, executor MergeExecutor, gate *QualityGate, logger log.Logger) *MergeDecision {
	thresholds := DefaultQualityThresholds()
	if gate != nil {
		thresholds = gate.Thresholds()
	}
	return &MergeDecision{
		prInfo:     prInfo,
		executor:   executor,
		thresholds: thresholds,
		logger:     log.NewHelper(logger),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// prSignals fetches the pull request once and derives the conflict state and the
// blocking reviews from it. A fetch error yields the unknown conflict state (no
// conflicts, not mergeable) and no blocking reviews.
func (d *MergeDecision) prSignals(ctx context.Context, prNumber int) (ConflictInfo, []BlockingReview) {
	info := fetchResult(ctx, func(ctx context.Context) (*model.PRInfo, error) {
		return d.prInfo.GetPRInfo(ctx, prNumber)
	}).OrDefault(nil, func(err error) {
		// Graceful degradation: the verdict proceeds without PR data
		d.logger.Warnw("msg", "failed to fetch PR info, assuming unknown conflict state and no blocking reviews",
			"pr_number", prNumber,
			"error", err)
	})
	if info == nil {
		return unknownConflicts(), []BlockingReview{}
	}
	return conflictsFromPR(info), blockingReviews(info.Reviews)
}

// CheckMergeConflicts returns the conflict state of a pull request.
// A fetch error yields the unknown state (no conflicts, not mergeable).
func (d *MergeDecision) CheckMergeConflicts(ctx context.Context, prNumber int) ConflictInfo {
	conflicts, _ := d.prSignals(ctx, prNumber)
	return conflicts
}

// CheckBlockingReviews returns the reviews currently requesting changes.
// A fetch error yields no blocking reviews.
func (d *MergeDecision) CheckBlockingReviews(ctx context.Context, prNumber int) []BlockingReview {
	_, reviews := d.prSignals(ctx, prNumber)
	return reviews
}

// CheckMergeReadiness combines conflicts and reviews from a single PR fetch with
// the quality gate and CI outcome. The result always carries a report.
func (d *MergeDecision) CheckMergeReadiness(ctx context.Context, prNumber int, qualityGate *QualityGateResult, metrics QualityMetrics, checks CheckResults) *MergeReadinessResult {
	if qualityGate == nil {
		qualityGate = &QualityGateResult{Passed: false, Failures: []string{"Quality gates were not evaluated"}}
	}

	conflicts, reviews := d.prSignals(ctx, prNumber)

	ciPassed := checks.CIPassed
	canMerge := qualityGate.Passed && ciPassed && !conflicts.HasConflicts && len(reviews) == 0

	reasons := []string{}
	if !qualityGate.Passed {
		reasons = append(reasons, ReasonQualityGatesFailed)
	}
	if !ciPassed {
		reasons = append(reasons, ReasonCIPipelineFailed)
	}
	if conflicts.HasConflicts {
		reasons = append(reasons, ReasonMergeConflicts)
	}
	if len(reviews) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d blocking review(s) pending", len(reviews)))
	}

	result := &MergeReadinessResult{
		DecisionID:      d.newID(),
		PRNumber:        prNumber,
		CanMerge:        canMerge,
		QualityGate:     qualityGate,
		Conflicts:       conflicts,
		BlockingReviews: reviews,
		CIPassed:        ciPassed,
		BlockingReasons: reasons,
		Report:          d.GenerateDetailedReport(prNumber, qualityGate, metrics, checks),
		EvaluatedAt:     d.now(),
	}

	d.logger.Infow("msg", "merge readiness evaluated",
		"decision_id", result.DecisionID,
		"pr_number", prNumber,
		"can_merge", canMerge,
		"blocking_reasons", strings.Join(reasons, "; "))
	return result
}

// GenerateDetailedReport renders the quality gate report with the configured thresholds.
func (d *MergeDecision) GenerateDetailedReport(prNumber int, qualityGate *QualityGateResult, metrics QualityMetrics, checks CheckResults) *DetailedReport {
	return RenderDetailedReport(prNumber, d.thresholds, qualityGate, metrics, checks)
}

// GenerateSquashMessage builds the squash commit message for pr.
// An issueNumber of zero and an empty summary are omitted from the body.
func GenerateSquashMessage(pr *model.PRInfo, issueNumber int, summary string) model.MergeMessage {
	msg := model.MergeMessage{
		Title: fmt.Sprintf("%s (#%d)", pr.Title, pr.Number),
	}

	var parts []string
	if s := strings.TrimSpace(summary); s != "" {
		parts = append(parts, s)
	}
	if issueNumber > 0 {
		parts = append(parts, fmt.Sprintf("Closes #%d", issueNumber))
		msg.ClosesIssues = []int{issueNumber}
	}
	msg.Body = strings.Join(parts, "\n\n")
	return msg
}

// ExecuteMerge merges the pull request through the executor.
func (d *MergeDecision) ExecuteMerge(ctx context.Context, prNumber int, msg model.MergeMessage) MergeResult {
	outcome, err := d.executor.Merge(ctx, prNumber, msg)
	if err != nil {
		d.logger.Errorw("msg", "merge failed",
			"pr_number", prNumber,
			"error", err)
		return MergeResult{Success: false, Error: err.Error()}
	}
	if outcome == nil || !outcome.Merged {
		reason := "merge was not performed"
		if outcome != nil && outcome.Message != "" {
			reason = outcome.Message
		}
		d.logger.Warnw("msg", "merge rejected",
			"pr_number", prNumber,
			"reason", reason)
		return MergeResult{Success: false, Error: reason}
	}

	d.logger.Infow("msg", "pull request merged",
		"pr_number", prNumber,
		"sha", outcome.SHA)
	return MergeResult{Success: true, SHA: outcome.SHA}
}

func conflictsFromPR(info *model.PRInfo) ConflictInfo {
	state := info.MergeableState
	if state == "" {
		state = "unknown"
	}
	return ConflictInfo{
		HasConflicts:     strings.EqualFold(state, "dirty") || len(info.ConflictingFiles) > 0,
		Mergeable:        info.Mergeable,
		MergeableState:   state,
		ConflictingFiles: info.ConflictingFiles,
	}
}

// blockingReviews keeps each author's latest verdict and returns those requesting changes.
// Comment-only and pending reviews do not change a verdict.
func blockingReviews(reviews []model.Review) []BlockingReview {
	latest := make(map[string]model.Review)
	var order []string
	for _, r := range reviews {
		switch strings.ToUpper(r.State) {
		case model.ReviewApproved, model.ReviewChangesRequested, model.ReviewDismissed:
		default:
			continue
		}
		prev, seen := latest[r.Author]
		if !seen {
			order = append(order, r.Author)
		}
		if !seen || !r.SubmittedAt.Before(prev.SubmittedAt) {
			latest[r.Author] = r
		}
	}

	blocking := []BlockingReview{}
	for _, author := range order {
		r := latest[author]
		if strings.EqualFold(r.State, model.ReviewChangesRequested) {
			blocking = append(blocking, BlockingReview{
				Author:      r.Author,
				State:       model.ReviewChangesRequested,
				Body:        r.Body,
				SubmittedAt: r.SubmittedAt,
			})
		}
	}
	return blocking
}
