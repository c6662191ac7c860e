package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goodMetrics() QualityMetrics {
	return QualityMetrics{
		CodeCoverage:     85,
		NewLinesCoverage: 95,
		ComplexityScore:  6,
	}
}

func goodChecks() CheckResults {
	return CheckResults{TestsPassed: true, BuildPassed: true, LintPassed: true, CIPassed: true}
}

func newTestQualityGate() *QualityGate {
	return NewQualityGate(DefaultQualityThresholds(), testLogger())
}

func TestQualityGate_AllPassed(t *testing.T) {
	result := newTestQualityGate().Evaluate(goodMetrics(), goodChecks(), nil)

	assert.True(t, result.Passed)
	assert.Empty(t, result.Failures)
	assert.Empty(t, result.Warnings)
	require.Len(t, result.Required, len(RequiredGates))
	require.Len(t, result.Recommended, len(RecommendedGates))
	for i, g := range RequiredGates {
		assert.Equal(t, g, result.Required[i].Gate)
		assert.True(t, result.Required[i].Passed)
	}
	for i, g := range RecommendedGates {
		assert.Equal(t, g, result.Recommended[i].Gate)
	}
}

func TestQualityGate_RequiredFailures(t *testing.T) {
	tests := []struct {
		name     string
		metrics  func(*QualityMetrics)
		checks   func(*CheckResults)
		comments []ReviewComment
		gate     Gate
		contains []string
	}{
		{
			name:     "tests failed",
			checks:   func(c *CheckResults) { c.TestsPassed = false },
			gate:     GateTestsPassed,
			contains: []string{"Tests must pass"},
		},
		{
			name:     "build failed",
			checks:   func(c *CheckResults) { c.BuildPassed = false },
			gate:     GateBuildPassed,
			contains: []string{"Build must pass"},
		},
		{
			name:     "lint failed",
			checks:   func(c *CheckResults) { c.LintPassed = false },
			gate:     GateLintPassed,
			contains: []string{"Lint must pass"},
		},
		{
			name:     "coverage below threshold",
			metrics:  func(m *QualityMetrics) { m.CodeCoverage = 70 },
			gate:     GateCodeCoverage,
			contains: []string{"70%", "80%"},
		},
		{
			name:     "critical security issue",
			metrics:  func(m *QualityMetrics) { m.SecurityIssues.Critical = 2 },
			gate:     GateSecurityIssues,
			contains: []string{"2 critical security issue(s)"},
		},
		{
			name: "unresolved critical comment",
			comments: []ReviewComment{
				{Severity: SeverityCritical, Resolved: false},
				{Severity: SeverityCritical, Resolved: true},
			},
			gate:     GateCriticalComments,
			contains: []string{"1 unresolved critical review comment(s)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics, checks := goodMetrics(), goodChecks()
			if tt.metrics != nil {
				tt.metrics(&metrics)
			}
			if tt.checks != nil {
				tt.checks(&checks)
			}

			result := newTestQualityGate().Evaluate(metrics, checks, tt.comments)

			assert.False(t, result.Passed)
			require.Len(t, result.Failures, 1)
			for _, s := range tt.contains {
				assert.Contains(t, result.Failures[0], s)
			}
			passed, ok := result.Outcome(tt.gate)
			assert.True(t, ok)
			assert.False(t, passed)
		})
	}
}

func TestQualityGate_CoverageMessageExact(t *testing.T) {
	metrics := goodMetrics()
	metrics.CodeCoverage = 70

	result := newTestQualityGate().Evaluate(metrics, goodChecks(), nil)

	assert.Equal(t, "Code coverage 70% is below required 80%", result.Failures[0])
}

func TestQualityGate_RecommendedOnlyWarn(t *testing.T) {
	metrics := goodMetrics()
	metrics.NewLinesCoverage = 50
	metrics.ComplexityScore = 12.5
	metrics.StyleViolations = 4
	comments := []ReviewComment{{Severity: "MAJOR"}}

	result := newTestQualityGate().Evaluate(metrics, goodChecks(), comments)

	assert.True(t, result.Passed, "recommended gates never fail the result")
	assert.Empty(t, result.Failures)
	assert.Equal(t, []string{
		"New lines coverage 50% is below recommended 90%",
		"Complexity score 12.5 exceeds recommended maximum 10",
		"4 style violation(s) found",
		"1 unresolved major review comment(s)",
	}, result.Warnings)
	for _, o := range result.Recommended {
		assert.False(t, o.Passed, o.Gate)
	}
}

func TestQualityGate_ThresholdBoundaries(t *testing.T) {
	metrics := QualityMetrics{CodeCoverage: 80, NewLinesCoverage: 90, ComplexityScore: 10}

	result := newTestQualityGate().Evaluate(metrics, goodChecks(), nil)

	assert.True(t, result.Passed)
	assert.Empty(t, result.Warnings)
}

func TestGetSummary(t *testing.T) {
	t.Run("passed", func(t *testing.T) {
		summary := GetSummary(&QualityGateResult{Passed: true})
		assert.Equal(t, "✅ All quality gates passed", summary)
	})

	t.Run("passed with warnings", func(t *testing.T) {
		summary := GetSummary(&QualityGateResult{Passed: true, Warnings: []string{"4 style violation(s) found"}})
		assert.Equal(t, "✅ All quality gates passed\n\nWarnings:\n- 4 style violation(s) found", summary)
	})

	t.Run("failed", func(t *testing.T) {
		summary := GetSummary(&QualityGateResult{
			Failures: []string{"Tests must pass"},
			Warnings: []string{"1 unresolved major review comment(s)"},
		})
		assert.Equal(t, "❌ Quality gates failed\n\nFailures:\n- Tests must pass\n\nWarnings:\n- 1 unresolved major review comment(s)", summary)
	})
}
