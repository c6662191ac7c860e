package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"MergeLane/internal/biz"
	"MergeLane/internal/conf"
	"MergeLane/internal/model"
	pkglog "MergeLane/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// pollResultCacheSize bounds the recent CI watch results kept in memory.
	pollResultCacheSize = 256
	breakerEventBuffer  = 64

	defaultLockTTL   = 2 * time.Minute
	defaultReportTTL = 24 * time.Hour
)

// ReadinessChecks are the pipeline outcomes supplied by the caller.
// A nil CIPassed is filled from the latest CI watch of the PR.
type ReadinessChecks struct {
	TestsPassed bool  `json:"tests_passed"`
	BuildPassed bool  `json:"build_passed"`
	LintPassed  bool  `json:"lint_passed"`
	CIPassed    *bool `json:"ci_passed,omitempty"`
}

// ReadinessRequest asks for a merge readiness verdict.
type ReadinessRequest struct {
	Number   int                 `json:"number"`
	Metrics  biz.QualityMetrics  `json:"metrics"`
	Checks   ReadinessChecks     `json:"checks"`
	Comments []biz.ReviewComment `json:"comments"`
}

// MergeRequest asks for a squash merge of a pull request.
type MergeRequest struct {
	Number  int    `json:"number"`
	Issue   int    `json:"issue,omitempty"`
	Summary string `json:"summary,omitempty"`
	// Force skips the cached readiness verdict.
	Force bool `json:"force,omitempty"`
}

// MergeReply is the outcome of a merge request.
type MergeReply struct {
	biz.MergeResult
	DecisionID string `json:"decision_id"`
	PRNumber   int    `json:"pr_number"`
	Forced     bool   `json:"forced,omitempty"`
}

// BreakerStatusReply is the operator view of the CI circuit breaker.
type BreakerStatusReply struct {
	biz.BreakerSnapshot
	DroppedEvents int64 `json:"dropped_events"`
}

// MergeService orchestrates CI watching, readiness evaluation and merging.
type MergeService struct {
	poller   *biz.Poller
	breaker  *biz.CircuitBreaker
	gate     *biz.QualityGate
	decision *biz.MergeDecision

	rollup   biz.StatusRollupProvider
	prInfo   biz.PRInfoProvider
	locker   biz.MergeLocker
	reports  biz.ReportCache
	audit    biz.AuditLogger
	notifier biz.Notifier

	results   *lru.Cache[int, *biz.PollResult]
	lockTTL   time.Duration
	reportTTL time.Duration
	newOwner  func() string

	logger *pkglog.LogHelper

	unsubscribe func()
	forwardDone chan struct{}
	closeOnce   sync.Once
}

// NewMergeService creates the merge service and starts forwarding breaker transitions
// to the notifier and the audit log. The cleanup func stops the forwarding.
func NewMergeService(
	c *conf.Engine,
	poller *biz.Poller,
	gate *biz.QualityGate,
	decision *biz.MergeDecision,
	rollup biz.StatusRollupProvider,
	prInfo biz.PRInfoProvider,
	locker biz.MergeLocker,
	reports biz.ReportCache,
	audit biz.AuditLogger,
	notifier biz.Notifier,
	logger log.Logger,
) (*MergeService, func(), error) {
	results, err := lru.New[int, *biz.PollResult](pollResultCacheSize)
	if err != nil {
		return nil, nil, err
	}

	s := &MergeService{
		poller:      poller,
		breaker:     poller.Breaker(),
		gate:        gate,
		decision:    decision,
		rollup:      rollup,
		prInfo:      prInfo,
		locker:      locker,
		reports:     reports,
		audit:       audit,
		notifier:    notifier,
		results:     results,
		lockTTL:     defaultLockTTL,
		reportTTL:   defaultReportTTL,
		newOwner:    uuid.NewString,
		logger:      pkglog.NewLogHelper(logger),
		forwardDone: make(chan struct{}),
	}
	if c != nil && c.Merge != nil {
		if c.Merge.LockTTL > 0 {
			s.lockTTL = c.Merge.LockTTL
		}
		if c.Merge.ReportTTL > 0 {
			s.reportTTL = c.Merge.ReportTTL
		}
	}

	events, unsubscribe := s.breaker.Subscribe(breakerEventBuffer)
	s.unsubscribe = unsubscribe
	go s.forwardBreakerEvents(events)

	return s, s.Close, nil
}

// Close stops forwarding breaker events.
func (s *MergeService) Close() {
	s.closeOnce.Do(func() {
		s.unsubscribe()
		<-s.forwardDone
	})
}

func (s *MergeService) forwardBreakerEvents(events <-chan biz.BreakerEvent) {
	defer close(s.forwardDone)
	for ev := range events {
		isTransition := ev.Type == biz.BreakerEventStateChange ||
			(ev.Type == biz.BreakerEventReset && ev.From != ev.To)
		if !isTransition {
			continue
		}
		transition := &model.BreakerTransitionEvent{
			From:         ev.From.String(),
			To:           ev.To.String(),
			FailureCount: ev.FailureCount,
			At:           ev.At,
		}
		ctx := context.Background()
		s.logger.Breaker("CI circuit breaker transition",
			"from", transition.From,
			"to", transition.To,
			"failure_count", transition.FailureCount)
		s.audit.LogBreakerStateChanged(ctx, transition)
		if err := s.notifier.NotifyBreakerStateChanged(ctx, transition); err != nil {
			s.logger.Warnw("msg", "failed to notify breaker transition", "error", err)
		}
	}
}

// WatchCI polls the CI of a pull request until it settles and remembers the result.
func (s *MergeService) WatchCI(ctx context.Context, prNumber int) (*biz.PollResult, error) {
	if prNumber <= 0 {
		return nil, errInvalidPRNumber(prNumber)
	}
	ctx = pkglog.WithPRNumber(ctx, prNumber)

	checker := biz.CreateStatusChecker(s.rollup.GetStatusRollup)
	result := s.poller.PollUntilComplete(ctx, prNumber, checker)

	if result.Reason == biz.PollReasonCircuitOpen && result.PollCount == 0 {
		snap := s.breaker.Snapshot()
		return nil, errCircuitOpen(&biz.CircuitOpenError{State: snap.State, RetryAfter: snap.TimeUntilReset})
	}

	s.results.Add(prNumber, result)
	s.logger.Poll("CI watch finished",
		"pr_number", prNumber,
		"success", result.Success,
		"poll_count", result.PollCount,
		"reason", string(result.Reason))
	return result, nil
}

// LastPollResult returns the most recent CI watch result of a pull request.
func (s *MergeService) LastPollResult(prNumber int) (*biz.PollResult, bool) {
	return s.results.Get(prNumber)
}

// Readiness evaluates the quality gates and the merge readiness of a pull request,
// audits the verdict and caches it for Merge and Report.
func (s *MergeService) Readiness(ctx context.Context, req *ReadinessRequest) (*biz.MergeReadinessResult, error) {
	if req == nil || req.Number <= 0 {
		n := 0
		if req != nil {
			n = req.Number
		}
		return nil, errInvalidPRNumber(n)
	}
	ctx = pkglog.WithPRNumber(ctx, req.Number)

	checks := biz.CheckResults{
		TestsPassed: req.Checks.TestsPassed,
		BuildPassed: req.Checks.BuildPassed,
		LintPassed:  req.Checks.LintPassed,
	}
	if req.Checks.CIPassed != nil {
		checks.CIPassed = *req.Checks.CIPassed
	} else if last, ok := s.results.Get(req.Number); ok {
		checks.CIPassed = last.Success
	}

	qg := s.gate.Evaluate(req.Metrics, checks, req.Comments)
	s.logger.Gate("quality gates evaluated",
		"pr_number", req.Number,
		"passed", qg.Passed,
		"failures", len(qg.Failures),
		"warnings", len(qg.Warnings))

	result := s.decision.CheckMergeReadiness(ctx, req.Number, qg, req.Metrics, checks)
	s.audit.LogReadinessEvaluated(ctx, result.DecisionID, req.Number, result.CanMerge, result.BlockingReasons)

	cached := &model.CachedReport{
		DecisionID:      result.DecisionID,
		PRNumber:        req.Number,
		CanMerge:        result.CanMerge,
		BlockingReasons: result.BlockingReasons,
		Summary:         biz.GetSummary(qg),
		Markdown:        result.Report.Markdown,
		EvaluatedAt:     result.EvaluatedAt,
	}
	if err := s.reports.SaveReport(ctx, cached, s.reportTTL); err != nil {
		// graceful degradation: the verdict is still returned, Merge will need force
		s.logger.Warnw("msg", "failed to cache readiness report",
			"pr_number", req.Number,
			"decision_id", result.DecisionID,
			"error", err)
	}

	return result, nil
}

// Merge squash-merges a pull request whose last readiness verdict allowed it.
// The merge runs under a per-PR lock; merge failures are reported in the reply.
func (s *MergeService) Merge(ctx context.Context, req *MergeRequest) (*MergeReply, error) {
	if req == nil || req.Number <= 0 {
		n := 0
		if req != nil {
			n = req.Number
		}
		return nil, errInvalidPRNumber(n)
	}
	pr := req.Number
	ctx = pkglog.WithPRNumber(ctx, pr)

	report, err := s.reports.GetReport(ctx, pr)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrReportNotFound):
		report = nil
	default:
		if !req.Force {
			return nil, errStoreUnavailable("report cache", err)
		}
		report = nil
	}
	if !req.Force {
		if report == nil {
			return nil, errMergeNotReady(pr, []string{"readiness has not been evaluated"})
		}
		if !report.CanMerge {
			return nil, errMergeNotReady(pr, report.BlockingReasons)
		}
	}

	decisionID := uuid.NewString()
	if report != nil && report.DecisionID != "" {
		decisionID = report.DecisionID
	}
	ctx = pkglog.WithDecisionID(ctx, decisionID)

	owner := s.newOwner()
	acquired, err := s.locker.Acquire(ctx, pr, owner, s.lockTTL)
	if err != nil {
		return nil, errStoreUnavailable("merge lock", err)
	}
	if !acquired {
		return nil, errMergeInProgress(pr)
	}
	s.logger.Lock("merge lock acquired", "pr_number", pr, "owner", owner)
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), pr, owner); err != nil {
			s.logger.Warnw("msg", "failed to release merge lock",
				"pr_number", pr,
				"error", err)
		}
	}()

	s.logger.MergeWithContext(ctx, "merge requested", "force", req.Force, "issue", req.Issue)

	reply := &MergeReply{DecisionID: decisionID, PRNumber: pr, Forced: req.Force}

	info, err := s.prInfo.GetPRInfo(ctx, pr)
	if err != nil {
		reply.MergeResult = biz.MergeResult{Success: false, Error: err.Error()}
		s.audit.LogMergeFailed(ctx, decisionID, pr, reply.Error)
		return reply, nil
	}

	msg := biz.GenerateSquashMessage(info, req.Issue, req.Summary)
	reply.MergeResult = s.decision.ExecuteMerge(ctx, pr, msg)
	if !reply.Success {
		s.audit.LogMergeFailed(ctx, decisionID, pr, reply.Error)
		return reply, nil
	}

	s.audit.LogMergeExecuted(ctx, decisionID, pr, reply.SHA)
	// The verdict described the pre-merge head; do not let it authorize another merge.
	if err := s.reports.DeleteReport(context.WithoutCancel(ctx), pr); err != nil {
		s.logger.Warnw("msg", "failed to invalidate readiness report", "pr_number", pr, "error", err)
	}
	s.logger.Success("pull request merged",
		"pr_number", pr,
		"decision_id", decisionID,
		"sha", reply.SHA)
	event := &model.MergeCompletedEvent{
		DecisionID: decisionID,
		PRNumber:   pr,
		Title:      msg.Title,
		SHA:        reply.SHA,
		MergedAt:   time.Now(),
	}
	if err := s.notifier.NotifyMergeCompleted(ctx, event); err != nil {
		s.logger.Warnw("msg", "failed to notify merge", "pr_number", pr, "error", err)
	}
	return reply, nil
}

// Report returns the last cached readiness report of a pull request.
func (s *MergeService) Report(ctx context.Context, prNumber int) (*model.CachedReport, error) {
	if prNumber <= 0 {
		return nil, errInvalidPRNumber(prNumber)
	}
	report, err := s.reports.GetReport(ctx, prNumber)
	if err != nil {
		if errors.Is(err, model.ErrReportNotFound) {
			return nil, errReportNotFound(prNumber)
		}
		return nil, errStoreUnavailable("report cache", err)
	}
	return report, nil
}

// BreakerStatus returns the CI circuit breaker state.
func (s *MergeService) BreakerStatus(_ context.Context) *BreakerStatusReply {
	return &BreakerStatusReply{
		BreakerSnapshot: s.breaker.Snapshot(),
		DroppedEvents:   s.breaker.Dropped(),
	}
}

// ResetBreaker closes the CI circuit breaker and clears its counters.
func (s *MergeService) ResetBreaker(ctx context.Context) *BreakerStatusReply {
	s.breaker.Reset()
	s.logger.Breaker("CI circuit breaker reset by operator")
	return s.BreakerStatus(ctx)
}

// ForceOpenBreaker opens the CI circuit breaker until its reset timeout elapses.
func (s *MergeService) ForceOpenBreaker(ctx context.Context) *BreakerStatusReply {
	s.breaker.ForceOpen()
	s.logger.Breaker("CI circuit breaker forced open by operator")
	return s.BreakerStatus(ctx)
}
