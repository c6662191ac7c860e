package biz

import (
	"fmt"
	"strings"
)

// DetailedReport is the rendered quality gate report of a pull request.
type DetailedReport struct {
	Passed          bool     `json:"passed"`
	PRNumber        int      `json:"pr_number"`
	RequiredActions []string `json:"required_actions"`
	Recommendations []string `json:"recommendations"`
	Markdown        string   `json:"markdown"`
}

// RenderDetailedReport renders the markdown report. It depends only on its arguments.
// Downstream tooling greps the heading, the table header and the section headers.
func RenderDetailedReport(prNumber int, thresholds QualityThresholds, qualityGate *QualityGateResult, metrics QualityMetrics, checks CheckResults) *DetailedReport {
	report := &DetailedReport{
		Passed:          qualityGate.Passed,
		PRNumber:        prNumber,
		RequiredActions: []string{},
		Recommendations: []string{},
	}
	if !qualityGate.Passed {
		report.RequiredActions = append(report.RequiredActions, qualityGate.Failures...)
	}
	report.Recommendations = append(report.Recommendations, qualityGate.Warnings...)

	var b strings.Builder
	b.WriteString("## Quality Gate Report\n\n")
	fmt.Fprintf(&b, "**PR:** #%d\n", prNumber)
	if qualityGate.Passed {
		b.WriteString("**Status:** ✅ PASSED\n\n")
	} else {
		b.WriteString("**Status:** ❌ FAILED\n\n")
	}

	b.WriteString("| Gate | Threshold | Actual | Status |\n")
	b.WriteString("|------|-----------|--------|--------|\n")
	for _, g := range RequiredGates {
		threshold, actual := gateRow(g, thresholds, metrics, checks, qualityGate)
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", g.Label(), threshold, actual, gateStatus(qualityGate, g, "❌"))
	}
	for _, g := range RecommendedGates {
		threshold, actual := gateRow(g, thresholds, metrics, checks, qualityGate)
		fmt.Fprintf(&b, "| %s (recommended) | %s | %s | %s |\n", g.Label(), threshold, actual, gateStatus(qualityGate, g, "⚠️"))
	}

	if len(report.RequiredActions) > 0 {
		b.WriteString("\n### Required Actions\n\n")
		for _, a := range report.RequiredActions {
			fmt.Fprintf(&b, "- [ ] %s\n", a)
		}
	}
	if len(report.Recommendations) > 0 {
		b.WriteString("\n### Recommendations\n\n")
		for _, r := range report.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	report.Markdown = b.String()
	return report
}

func gateRow(g Gate, t QualityThresholds, m QualityMetrics, c CheckResults, qg *QualityGateResult) (threshold, actual string) {
	switch g {
	case GateTestsPassed:
		return "Pass", passFail(c.TestsPassed)
	case GateBuildPassed:
		return "Pass", passFail(c.BuildPassed)
	case GateLintPassed:
		return "Pass", passFail(c.LintPassed)
	case GateCodeCoverage:
		return "≥ " + formatPercent(t.CodeCoverage), formatPercent(m.CodeCoverage)
	case GateSecurityIssues:
		return "0", fmt.Sprint(m.SecurityIssues.Critical)
	case GateNewLinesCoverage:
		return "≥ " + formatPercent(t.NewLinesCoverage), formatPercent(m.NewLinesCoverage)
	case GateComplexity:
		return "≤ " + formatNumber(t.MaxComplexity), formatNumber(m.ComplexityScore)
	case GateStyleViolations:
		return "0", fmt.Sprint(m.StyleViolations)
	default:
		// Comment gates only know their outcome.
		passed, _ := qg.Outcome(g)
		if passed {
			return "None open", "None open"
		}
		return "None open", "Unresolved"
	}
}

func gateStatus(qg *QualityGateResult, g Gate, failMark string) string {
	passed, ok := qg.Outcome(g)
	switch {
	case !ok:
		return "-"
	case passed:
		return "✅"
	default:
		return failMark
	}
}

func passFail(ok bool) string {
	if ok {
		return "Pass"
	}
	return "Fail"
}
