// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with MERGELANE_.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Required settings:
//   - GITHUB_TOKEN or MERGELANE_GITHUB_TOKEN: GitHub API token
//   - github.owner / github.repo: repository the engine watches
//
// MYSQL_DSN is optional; without it audit records are only logged.
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MERGELANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Plain names are accepted for the secrets most deployments already export
	_ = v.BindEnv("github.token", "GITHUB_TOKEN", "MERGELANE_GITHUB_TOKEN")
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "MERGELANE_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "MERGELANE_DATA_REDIS_ADDR")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: v.GetDuration("server.http.timeout"),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  v.GetDuration("data.redis.read_timeout"),
				WriteTimeout: v.GetDuration("data.redis.write_timeout"),
			},
		},
		GitHub: &GitHub{
			BaseURL:         v.GetString("github.base_url"),
			Owner:           v.GetString("github.owner"),
			Repo:            v.GetString("github.repo"),
			Token:           v.GetString("github.token"),
			ProxyURL:        v.GetString("github.proxy_url"),
			Timeout:         v.GetDuration("github.timeout"),
			MaxRetryElapsed: v.GetDuration("github.max_retry_elapsed"),
		},
		Engine: &Engine{
			Breaker: &Engine_Breaker{
				FailureThreshold: v.GetInt("engine.breaker.failure_threshold"),
				SuccessThreshold: v.GetInt("engine.breaker.success_threshold"),
				ResetTimeout:     v.GetDuration("engine.breaker.reset_timeout"),
				FailureWindow:    v.GetDuration("engine.breaker.failure_window"),
			},
			Poller: &Engine_Poller{
				InitialInterval:    v.GetDuration("engine.poller.initial_interval"),
				MaxInterval:        v.GetDuration("engine.poller.max_interval"),
				BackoffMultiplier:  v.GetFloat64("engine.poller.backoff_multiplier"),
				MaxJitter:          v.GetDuration("engine.poller.max_jitter"),
				MaxPolls:           v.GetInt("engine.poller.max_polls"),
				FailFastOnTerminal: v.GetBool("engine.poller.fail_fast_on_terminal"),
			},
			Quality: &Engine_Quality{
				CodeCoverage:     v.GetFloat64("engine.quality.code_coverage"),
				NewLinesCoverage: v.GetFloat64("engine.quality.new_lines_coverage"),
				MaxComplexity:    v.GetFloat64("engine.quality.max_complexity"),
			},
			Merge: &Engine_Merge{
				LockTTL:     v.GetDuration("engine.merge.lock_ttl"),
				ReportTTL:   v.GetDuration("engine.merge.report_ttl"),
				MergeMethod: v.GetString("engine.merge.merge_method"),
			},
		},
		Audit: &Audit{
			Retention:   v.GetDuration("audit.retention"),
			CleanupCron: v.GetString("audit.cleanup_cron"),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 10*time.Minute)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// GitHub defaults
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.timeout", 15*time.Second)
	v.SetDefault("github.max_retry_elapsed", 30*time.Second)

	// Engine defaults
	v.SetDefault("engine.breaker.failure_threshold", 3)
	v.SetDefault("engine.breaker.success_threshold", 2)
	v.SetDefault("engine.breaker.reset_timeout", 5*time.Minute)
	v.SetDefault("engine.breaker.failure_window", 10*time.Minute)

	v.SetDefault("engine.poller.initial_interval", 10*time.Second)
	v.SetDefault("engine.poller.max_interval", 60*time.Second)
	v.SetDefault("engine.poller.backoff_multiplier", 1.5)
	v.SetDefault("engine.poller.max_jitter", 1*time.Second)
	v.SetDefault("engine.poller.max_polls", 60)
	v.SetDefault("engine.poller.fail_fast_on_terminal", true)

	v.SetDefault("engine.quality.code_coverage", 80.0)
	v.SetDefault("engine.quality.new_lines_coverage", 90.0)
	v.SetDefault("engine.quality.max_complexity", 10.0)

	v.SetDefault("engine.merge.lock_ttl", 2*time.Minute)
	v.SetDefault("engine.merge.report_ttl", 24*time.Hour)
	v.SetDefault("engine.merge.merge_method", "squash")

	// Audit defaults
	v.SetDefault("audit.retention", 30*24*time.Hour)
	v.SetDefault("audit.cleanup_cron", "0 0 3 * * *")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing every problem found.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	if bc.GitHub == nil || bc.GitHub.Token == "" {
		missingFields = append(missingFields, "github.token (GITHUB_TOKEN)")
	}
	if bc.GitHub == nil || bc.GitHub.Owner == "" {
		missingFields = append(missingFields, "github.owner")
	}
	if bc.GitHub == nil || bc.GitHub.Repo == "" {
		missingFields = append(missingFields, "github.repo")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	if bc.Engine == nil {
		return fmt.Errorf("engine configuration is required")
	}

	var invalid []string
	if b := bc.Engine.Breaker; b != nil {
		if b.FailureThreshold < 1 {
			invalid = append(invalid, "engine.breaker.failure_threshold must be >= 1")
		}
		if b.SuccessThreshold < 1 {
			invalid = append(invalid, "engine.breaker.success_threshold must be >= 1")
		}
		if b.ResetTimeout < 0 {
			invalid = append(invalid, "engine.breaker.reset_timeout must not be negative")
		}
	}
	if p := bc.Engine.Poller; p != nil {
		if p.MaxPolls < 1 {
			invalid = append(invalid, "engine.poller.max_polls must be >= 1")
		}
		if p.BackoffMultiplier < 1 {
			invalid = append(invalid, "engine.poller.backoff_multiplier must be >= 1")
		}
		if p.InitialInterval > p.MaxInterval {
			invalid = append(invalid, "engine.poller.initial_interval must not exceed max_interval")
		}
		if p.MaxJitter < 0 {
			invalid = append(invalid, "engine.poller.max_jitter must not be negative")
		}
	}
	if q := bc.Engine.Quality; q != nil {
		if q.CodeCoverage < 0 || q.CodeCoverage > 100 {
			invalid = append(invalid, "engine.quality.code_coverage must be within 0..100")
		}
		if q.NewLinesCoverage < 0 || q.NewLinesCoverage > 100 {
			invalid = append(invalid, "engine.quality.new_lines_coverage must be within 0..100")
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, "; "))
	}

	return nil
}
