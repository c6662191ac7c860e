package biz

import (
	"testing"
	"time"

	"MergeLane/internal/conf"

	"github.com/stretchr/testify/assert"
)

func TestConfigFromConf_NilUsesDefaults(t *testing.T) {
	assert.Equal(t, DefaultCircuitBreakerConfig(), BreakerConfigFromConf(nil))
	assert.Equal(t, DefaultPollerConfig(), PollerConfigFromConf(&conf.Engine{}))
	assert.Equal(t, DefaultQualityThresholds(), QualityThresholdsFromConf(nil))
}

func TestConfigFromConf(t *testing.T) {
	c := &conf.Engine{
		Breaker: &conf.Engine_Breaker{FailureThreshold: 5, SuccessThreshold: 1, ResetTimeout: time.Minute, FailureWindow: time.Hour},
		Poller: &conf.Engine_Poller{
			InitialInterval:   time.Second,
			MaxInterval:       10 * time.Second,
			BackoffMultiplier: 2,
			MaxJitter:         100 * time.Millisecond,
			MaxPolls:          7,
		},
		Quality: &conf.Engine_Quality{CodeCoverage: 75, NewLinesCoverage: 85, MaxComplexity: 15},
	}

	assert.Equal(t, CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 1, ResetTimeout: time.Minute, FailureWindow: time.Hour},
		BreakerConfigFromConf(c))

	pc := PollerConfigFromConf(c)
	assert.Equal(t, 7, pc.MaxPolls)
	assert.Equal(t, 2.0, pc.BackoffMultiplier)
	assert.False(t, pc.FailFastOnTerminal)

	assert.Equal(t, QualityThresholds{CodeCoverage: 75, NewLinesCoverage: 85, MaxComplexity: 15}, QualityThresholdsFromConf(c))

	p := NewCIPoller(c, NewCIBreaker(c, testLogger()), testLogger())
	assert.Equal(t, 4*time.Second, p.BaseInterval(3))
	assert.Equal(t, 10*time.Second, p.BaseInterval(5))
}
