package bench

import (
	"time"

	"github.com/torosent/kvscope/internal/runner"
)

// RunConfig describes one benchmark run.
type RunConfig struct {
	Concurrency   int                 `json:"concurrency"`
	Duration      time.Duration       `json:"-"`
	DurationSecs  float64             `json:"duration_secs"`
	ReadPct       int                 `json:"read_pct"`
	RatePerSecond int                 `json:"rate,omitempty"`
	ArrivalModel  runner.ArrivalModel `json:"arrival_model,omitempty"`
}

// Default run shape used when a field is omitted by the caller.
const (
	DefaultConcurrency = 10
	DefaultDuration    = 30 * time.Second
	DefaultReadPct     = 70
)

// Limits bound what Start accepts.
type Limits struct {
	MaxConcurrency int
	MaxDuration    time.Duration
}

// DefaultLimits matches the control API's documented bounds.
var DefaultLimits = Limits{MaxConcurrency: 500, MaxDuration: 300 * time.Second}

// Validate reports every problem with cfg under l. Zero limits mean unbounded.
func (cfg RunConfig) Validate(l Limits) error {
	issues := &ConfigError{}
	if cfg.Concurrency < 1 {
		issues.add("concurrency must be at least 1, got %d", cfg.Concurrency)
	} else if l.MaxConcurrency > 0 && cfg.Concurrency > l.MaxConcurrency {
		issues.add("concurrency must be at most %d, got %d", l.MaxConcurrency, cfg.Concurrency)
	}
	if cfg.Duration <= 0 {
		issues.add("duration must be positive, got %s", cfg.Duration)
	} else if l.MaxDuration > 0 && cfg.Duration > l.MaxDuration {
		issues.add("duration must be at most %s, got %s", l.MaxDuration, cfg.Duration)
	}
	if cfg.ReadPct < 0 || cfg.ReadPct > 100 {
		issues.add("read_pct must be between 0 and 100, got %d", cfg.ReadPct)
	}
	if cfg.RatePerSecond < 0 {
		issues.add("rate must be non-negative, got %d", cfg.RatePerSecond)
	}
	switch cfg.ArrivalModel {
	case "", runner.ArrivalModelUniform, runner.ArrivalModelPoisson:
	default:
		issues.add("arrival_model must be uniform or poisson, got %q", cfg.ArrivalModel)
	}
	if len(issues.issues) > 0 {
		return issues
	}
	return nil
}
