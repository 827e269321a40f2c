package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

type StoreBackend string

const (
	StoreRedis  StoreBackend = "redis"
	StoreMemory StoreBackend = "memory"
)

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type LogFormat string

const (
	LogFormatJSON    LogFormat = "json"
	LogFormatConsole LogFormat = "console"
)

type Config struct {
	Listen     string        `mapstructure:"listen"`
	ConfigFile string        `mapstructure:"-"`
	Store      StoreConfig   `mapstructure:",squash"`
	Publish    PublishConfig `mapstructure:",squash"`
	Limits     LimitsConfig  `mapstructure:",squash"`
	Seed       SeedConfig    `mapstructure:",squash"`
	Log        LogConfig     `mapstructure:",squash"`
	Tracing    TracingConfig `mapstructure:"tracing"`
	Run        RunConfig     `mapstructure:",squash"`
	Watch      string        `mapstructure:"watch"`
}

type StoreConfig struct {
	Backend     StoreBackend  `mapstructure:"store"`
	RedisURL    string        `mapstructure:"redis_url"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	OpTimeout   time.Duration `mapstructure:"op_timeout"`
}

type PublishConfig struct {
	Interval     time.Duration `mapstructure:"publish_interval"`
	FeedCapacity int           `mapstructure:"feed_capacity"`
	RateWindow   time.Duration `mapstructure:"rate_window"`
}

type LimitsConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxDuration    time.Duration `mapstructure:"max_duration"`
}

type SeedConfig struct {
	Enabled   bool `mapstructure:"seed"`
	Users     int  `mapstructure:"seed_users"`
	Products  int  `mapstructure:"seed_products"`
	BatchSize int  `mapstructure:"seed_batch"`
	Workers   int  `mapstructure:"seed_workers"`
}

type LogConfig struct {
	Level  string    `mapstructure:"log_level"`
	Format LogFormat `mapstructure:"log_format"`
	Errors bool      `mapstructure:"log_errors"`
}

// TracingConfig controls OTLP span export. An empty endpoint with no
// OTEL_EXPORTER_OTLP_ENDPOINT in the environment disables tracing.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
	Propagate   *bool   `mapstructure:"propagate"`
}

func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate defaults to Enabled when Propagate is unset.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// RunConfig holds the headless run settings.
type RunConfig struct {
	Headless     bool          `mapstructure:"run"`
	Concurrency  int           `mapstructure:"concurrency"`
	Duration     time.Duration `mapstructure:"duration"`
	ReadPct      int           `mapstructure:"read_pct"`
	Rate         int           `mapstructure:"rate"`
	ArrivalModel ArrivalModel  `mapstructure:"arrival_model"`
	Dashboard    bool          `mapstructure:"dashboard"`
	JSONOutput   bool          `mapstructure:"json_output"`
	YAMLOutput   bool          `mapstructure:"yaml_output"`
	HTMLOutput   string        `mapstructure:"html_output"`
	Thresholds   []string      `mapstructure:"thresholds"`
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// watchSchemes are served by the WebSocket (ws, wss) and SSE (http, https) clients.
var watchSchemes = map[string]bool{"ws": true, "wss": true, "http": true, "https": true}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Listen) == "" && !c.Run.Headless && c.Watch == "" {
		issues = append(issues, "listen address is required")
	}

	issues = append(issues, validateStoreConfig(c.Store)...)
	issues = append(issues, validatePublishConfig(c.Publish)...)

	if c.Limits.MaxConcurrency < 1 {
		issues = append(issues, "max_concurrency must be >= 1")
	}
	if c.Limits.MaxDuration <= 0 {
		issues = append(issues, "max_duration must be > 0")
	}

	if c.Seed.Enabled {
		if c.Seed.Users < 1 {
			issues = append(issues, "seed_users must be >= 1")
		}
		if c.Seed.Products < 1 {
			issues = append(issues, "seed_products must be >= 1")
		}
		if c.Seed.BatchSize < 1 {
			issues = append(issues, "seed_batch must be >= 1")
		}
		if c.Seed.Workers < 1 {
			issues = append(issues, "seed_workers must be >= 1")
		}
	}

	switch c.Log.Format {
	case LogFormatJSON, LogFormatConsole:
	default:
		issues = append(issues, fmt.Sprintf("log_format must be json or console, got %q", c.Log.Format))
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if c.Run.Headless {
		issues = append(issues, validateRunConfig(c.Run)...)
	}

	if c.Watch != "" {
		u, err := url.Parse(c.Watch)
		if err != nil || u.Host == "" || !watchSchemes[u.Scheme] {
			issues = append(issues, fmt.Sprintf("watch must be a ws, wss, http or https URL, got %q", c.Watch))
		}
		if c.Run.Headless {
			issues = append(issues, "watch and run are mutually exclusive")
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateStoreConfig(s StoreConfig) []string {
	var issues []string
	switch s.Backend {
	case StoreRedis:
		if strings.TrimSpace(s.RedisURL) == "" {
			issues = append(issues, "redis_url is required for the redis store")
		}
	case StoreMemory:
	default:
		issues = append(issues, fmt.Sprintf("store must be redis or memory, got %q", s.Backend))
	}
	if s.PoolSize < 1 {
		issues = append(issues, "pool_size must be >= 1")
	}
	if s.PoolTimeout < 0 {
		issues = append(issues, "pool_timeout must be >= 0")
	}
	if s.OpTimeout < 0 {
		issues = append(issues, "op_timeout must be >= 0")
	}
	return issues
}

func validatePublishConfig(p PublishConfig) []string {
	var issues []string
	if p.Interval <= 0 {
		issues = append(issues, "publish_interval must be > 0")
	}
	if p.FeedCapacity < 1 {
		issues = append(issues, "feed_capacity must be >= 1")
	}
	if p.RateWindow <= 0 {
		issues = append(issues, "rate_window must be > 0")
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol must be grpc or http, got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing.sample_rate must be between 0.0 and 1.0")
	}
	return issues
}

func validateRunConfig(r RunConfig) []string {
	var issues []string
	if r.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if r.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if r.ReadPct < 0 || r.ReadPct > 100 {
		issues = append(issues, "read_pct must be between 0 and 100")
	}
	if r.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	switch r.ArrivalModel {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival_model must be uniform or poisson, got %q", r.ArrivalModel))
	}
	if r.Dashboard && (r.JSONOutput || r.YAMLOutput) {
		issues = append(issues, "dashboard and json/yaml output are mutually exclusive")
	}
	if r.JSONOutput && r.YAMLOutput {
		issues = append(issues, "json-output and yaml-output are mutually exclusive")
	}
	return issues
}
