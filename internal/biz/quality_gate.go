package biz

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
)

// Gate names one quality gate. The set is closed; see RequiredGates and RecommendedGates.
type Gate string

// Required gates fail the evaluation.
const (
	GateTestsPassed      Gate = "tests_passed"
	GateBuildPassed      Gate = "build_passed"
	GateLintPassed       Gate = "lint_passed"
	GateCodeCoverage     Gate = "code_coverage"
	GateSecurityIssues   Gate = "security_issues"
	GateCriticalComments Gate = "critical_comments"
)

// Recommended gates only produce warnings.
const (
	GateNewLinesCoverage Gate = "new_lines_coverage"
	GateComplexity       Gate = "complexity"
	GateStyleViolations  Gate = "style_violations"
	GateMajorComments    Gate = "major_comments"
)

// RequiredGates lists the required gates in evaluation and report order.
var RequiredGates = []Gate{
	GateTestsPassed,
	GateBuildPassed,
	GateLintPassed,
	GateCodeCoverage,
	GateSecurityIssues,
	GateCriticalComments,
}

// RecommendedGates lists the recommended gates in evaluation and report order.
var RecommendedGates = []Gate{
	GateNewLinesCoverage,
	GateComplexity,
	GateStyleViolations,
	GateMajorComments,
}

var gateLabels = map[Gate]string{
	GateTestsPassed:      "Tests",
	GateBuildPassed:      "Build",
	GateLintPassed:       "Lint",
	GateCodeCoverage:     "Code Coverage",
	GateSecurityIssues:   "Critical Security Issues",
	GateCriticalComments: "Critical Review Comments",
	GateNewLinesCoverage: "New Lines Coverage",
	GateComplexity:       "Complexity",
	GateStyleViolations:  "Style Violations",
	GateMajorComments:    "Major Review Comments",
}

// Label returns the human-readable gate name used in reports.
func (g Gate) Label() string {
	if label, ok := gateLabels[g]; ok {
		return label
	}
	return string(g)
}

// Comment severities.
const (
	SeverityCritical   = "critical"
	SeverityMajor      = "major"
	SeverityMinor      = "minor"
	SeveritySuggestion = "suggestion"
)

// SecurityIssues counts security findings by severity.
type SecurityIssues struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// QualityMetrics are the measured code metrics of a pull request.
type QualityMetrics struct {
	CodeCoverage     float64        `json:"code_coverage"`
	NewLinesCoverage float64        `json:"new_lines_coverage"`
	ComplexityScore  float64        `json:"complexity_score"`
	SecurityIssues   SecurityIssues `json:"security_issues"`
	StyleViolations  int            `json:"style_violations"`
}

// CheckResults are the boolean pipeline outcomes of a pull request.
type CheckResults struct {
	TestsPassed bool `json:"tests_passed"`
	BuildPassed bool `json:"build_passed"`
	LintPassed  bool `json:"lint_passed"`
	CIPassed    bool `json:"ci_passed"`
}

// ReviewComment is one code review comment.
type ReviewComment struct {
	ID       string `json:"id,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message,omitempty"`
	Resolved bool   `json:"resolved"`
}

// QualityThresholds configures the numeric gates.
type QualityThresholds struct {
	CodeCoverage     float64
	NewLinesCoverage float64
	MaxComplexity    float64
}

// DefaultQualityThresholds returns the stock gate thresholds.
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		CodeCoverage:     80,
		NewLinesCoverage: 90,
		MaxComplexity:    10,
	}
}

// GateOutcome is the pass/fail result of one gate.
type GateOutcome struct {
	Gate   Gate `json:"gate"`
	Passed bool `json:"passed"`
}

// QualityGateResult is the outcome of one Evaluate call.
// Required and Recommended hold every gate in declaration order, passed or not.
type QualityGateResult struct {
	Passed      bool          `json:"passed"`
	Required    []GateOutcome `json:"required"`
	Recommended []GateOutcome `json:"recommended"`
	Failures    []string      `json:"failures"`
	Warnings    []string      `json:"warnings"`
}

// Outcome returns the recorded result of gate g.
func (r *QualityGateResult) Outcome(g Gate) (passed bool, ok bool) {
	for _, o := range r.Required {
		if o.Gate == g {
			return o.Passed, true
		}
	}
	for _, o := range r.Recommended {
		if o.Gate == g {
			return o.Passed, true
		}
	}
	return false, false
}

// QualityGate evaluates required and recommended gates over PR metrics.
type QualityGate struct {
	thresholds QualityThresholds
	logger     *log.Helper
}

// NewQualityGate creates a quality gate with the given thresholds.
func NewQualityGate(thresholds QualityThresholds, logger log.Logger) *QualityGate {
	return &QualityGate{
		thresholds: thresholds,
		logger:     log.NewHelper(logger),
	}
}

// Thresholds returns the configured thresholds.
func (q *QualityGate) Thresholds() QualityThresholds {
	return q.thresholds
}

// Evaluate checks every gate. Any failed required gate fails the result;
// failed recommended gates only add warnings.
func (q *QualityGate) Evaluate(metrics QualityMetrics, checks CheckResults, comments []ReviewComment) *QualityGateResult {
	result := &QualityGateResult{
		Required:    make([]GateOutcome, 0, len(RequiredGates)),
		Recommended: make([]GateOutcome, 0, len(RecommendedGates)),
		Failures:    []string{},
		Warnings:    []string{},
	}

	criticalOpen := countUnresolved(comments, SeverityCritical)
	majorOpen := countUnresolved(comments, SeverityMajor)

	required := func(g Gate, passed bool, failure string) {
		result.Required = append(result.Required, GateOutcome{Gate: g, Passed: passed})
		if !passed {
			result.Failures = append(result.Failures, failure)
		}
	}
	recommended := func(g Gate, passed bool, warning string) {
		result.Recommended = append(result.Recommended, GateOutcome{Gate: g, Passed: passed})
		if !passed {
			result.Warnings = append(result.Warnings, warning)
		}
	}

	required(GateTestsPassed, checks.TestsPassed, "Tests must pass")
	required(GateBuildPassed, checks.BuildPassed, "Build must pass")
	required(GateLintPassed, checks.LintPassed, "Lint must pass")
	required(GateCodeCoverage, metrics.CodeCoverage >= q.thresholds.CodeCoverage,
		fmt.Sprintf("Code coverage %s is below required %s",
			formatPercent(metrics.CodeCoverage), formatPercent(q.thresholds.CodeCoverage)))
	required(GateSecurityIssues, metrics.SecurityIssues.Critical == 0,
		fmt.Sprintf("%d critical security issue(s) must be resolved", metrics.SecurityIssues.Critical))
	required(GateCriticalComments, criticalOpen == 0,
		fmt.Sprintf("%d unresolved critical review comment(s)", criticalOpen))

	recommended(GateNewLinesCoverage, metrics.NewLinesCoverage >= q.thresholds.NewLinesCoverage,
		fmt.Sprintf("New lines coverage %s is below recommended %s",
			formatPercent(metrics.NewLinesCoverage), formatPercent(q.thresholds.NewLinesCoverage)))
	recommended(GateComplexity, metrics.ComplexityScore <= q.thresholds.MaxComplexity,
		fmt.Sprintf("Complexity score %s exceeds recommended maximum %s",
			formatNumber(metrics.ComplexityScore), formatNumber(q.thresholds.MaxComplexity)))
	recommended(GateStyleViolations, metrics.StyleViolations == 0,
		fmt.Sprintf("%d style violation(s) found", metrics.StyleViolations))
	recommended(GateMajorComments, majorOpen == 0,
		fmt.Sprintf("%d unresolved major review comment(s)", majorOpen))

	result.Passed = len(result.Failures) == 0

	q.logger.Debugw("msg", "quality gates evaluated",
		"passed", result.Passed,
		"failures", len(result.Failures),
		"warnings", len(result.Warnings))
	return result
}

// GetSummary renders a short human summary of a result.
func GetSummary(result *QualityGateResult) string {
	var b strings.Builder
	if result.Passed {
		b.WriteString("✅ All quality gates passed")
	} else {
		b.WriteString("❌ Quality gates failed")
	}

	if len(result.Failures) > 0 {
		b.WriteString("\n\nFailures:\n")
		for _, f := range result.Failures {
			b.WriteString("- " + f + "\n")
		}
	}
	if len(result.Warnings) > 0 {
		if len(result.Failures) == 0 {
			b.WriteString("\n")
		}
		b.WriteString("\nWarnings:\n")
		for _, w := range result.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func countUnresolved(comments []ReviewComment, severity string) int {
	n := 0
	for _, c := range comments {
		if !c.Resolved && strings.EqualFold(c.Severity, severity) {
			n++
		}
	}
	return n
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPercent(v float64) string {
	return formatNumber(v) + "%"
}
