// Package biz contains the merge-readiness decision engine.
// It holds the circuit breaker, the CI poller, the quality gate and the merge decision.
package biz

import (
	"MergeLane/internal/conf"
	"MergeLane/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewCIBreaker,
	NewCIPoller,
	NewConfiguredQualityGate,
	NewMergeDecision,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(PRInfoProvider), new(*data.GitHubClient)),
	wire.Bind(new(StatusRollupProvider), new(*data.GitHubClient)),
	wire.Bind(new(MergeExecutor), new(*data.GitHubClient)),
	wire.Bind(new(MergeLocker), new(*data.RedisMergeLock)),
	wire.Bind(new(ReportCache), new(*data.ReportCacheRepo)),
	wire.Bind(new(AuditLogger), new(*data.AuditLoggerImpl)),
	wire.Bind(new(Notifier), new(*data.NoopNotifier)),
)

// NewCIBreaker creates the circuit breaker shared by every CI poll session,
// so an unavailable GitHub API trips one breaker for all pull requests.
func NewCIBreaker(c *conf.Engine, logger log.Logger) *CircuitBreaker {
	return NewCircuitBreaker(BreakerConfigFromConf(c), logger)
}

// NewCIPoller creates the CI poller guarded by breaker.
func NewCIPoller(c *conf.Engine, breaker *CircuitBreaker, logger log.Logger) *Poller {
	return NewPoller(PollerConfigFromConf(c), breaker, logger)
}

// NewConfiguredQualityGate creates the quality gate with configured thresholds.
func NewConfiguredQualityGate(c *conf.Engine, logger log.Logger) *QualityGate {
	return NewQualityGate(QualityThresholdsFromConf(c), logger)
}

// BreakerConfigFromConf converts engine settings; missing sections yield defaults.
func BreakerConfigFromConf(c *conf.Engine) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if c == nil || c.Breaker == nil {
		return cfg
	}
	cfg.FailureThreshold = c.Breaker.FailureThreshold
	cfg.SuccessThreshold = c.Breaker.SuccessThreshold
	cfg.ResetTimeout = c.Breaker.ResetTimeout
	cfg.FailureWindow = c.Breaker.FailureWindow
	return cfg
}

// PollerConfigFromConf converts engine settings; missing sections yield defaults.
func PollerConfigFromConf(c *conf.Engine) PollerConfig {
	cfg := DefaultPollerConfig()
	if c == nil || c.Poller == nil {
		return cfg
	}
	cfg.InitialInterval = c.Poller.InitialInterval
	cfg.MaxInterval = c.Poller.MaxInterval
	cfg.BackoffMultiplier = c.Poller.BackoffMultiplier
	cfg.MaxJitter = c.Poller.MaxJitter
	cfg.MaxPolls = c.Poller.MaxPolls
	cfg.FailFastOnTerminal = c.Poller.FailFastOnTerminal
	return cfg
}

// QualityThresholdsFromConf converts engine settings; missing sections yield defaults.
func QualityThresholdsFromConf(c *conf.Engine) QualityThresholds {
	t := DefaultQualityThresholds()
	if c == nil || c.Quality == nil {
		return t
	}
	t.CodeCoverage = c.Quality.CodeCoverage
	t.NewLinesCoverage = c.Quality.NewLinesCoverage
	t.MaxComplexity = c.Quality.MaxComplexity
	return t
}
