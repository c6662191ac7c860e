package conf

import "time"

// Bootstrap is the root configuration of MergeLane.
type Bootstrap struct {
	Server *Server
	Data   *Data
	GitHub *GitHub
	Engine *Engine
	Audit  *Audit
	Log    *Log
}

// Server holds transport settings.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP configures the kratos HTTP server.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout time.Duration
}

// Data holds storage settings.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database configures the audit log database. An empty Source disables it.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis configures the merge lock and report cache store.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// GitHub configures the pull request collaborator.
type GitHub struct {
	BaseURL         string
	Owner           string
	Repo            string
	Token           string
	ProxyURL        string
	Timeout         time.Duration
	MaxRetryElapsed time.Duration
}

// Engine groups the decision engine settings.
type Engine struct {
	Breaker *Engine_Breaker
	Poller  *Engine_Poller
	Quality *Engine_Quality
	Merge   *Engine_Merge
}

// Engine_Breaker configures the CI circuit breaker.
type Engine_Breaker struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
	FailureWindow    time.Duration
}

// Engine_Poller configures CI polling.
type Engine_Poller struct {
	InitialInterval    time.Duration
	MaxInterval        time.Duration
	BackoffMultiplier  float64
	MaxJitter          time.Duration
	MaxPolls           int
	FailFastOnTerminal bool
}

// Engine_Quality holds quality gate thresholds.
type Engine_Quality struct {
	CodeCoverage     float64
	NewLinesCoverage float64
	MaxComplexity    float64
}

// Engine_Merge configures merge execution.
type Engine_Merge struct {
	LockTTL     time.Duration
	ReportTTL   time.Duration
	MergeMethod string
}

// Audit configures audit log retention.
type Audit struct {
	Retention   time.Duration
	CleanupCron string
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
