package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Defaults shared by flag registration and the loader.
const (
	DefaultListen          = ":3000"
	DefaultRedisURL        = "redis://127.0.0.1:6379/0"
	DefaultPoolSize        = 64
	DefaultPoolTimeout     = 5 * time.Second
	DefaultOpTimeout       = 2 * time.Second
	DefaultPublishInterval = 500 * time.Millisecond
	DefaultFeedCapacity    = 500
	DefaultRateWindow      = 5 * time.Second
	DefaultMaxConcurrency  = 500
	DefaultMaxDuration     = 300 * time.Second
	DefaultSeedUsers       = 10000
	DefaultSeedProducts    = 500
	DefaultSeedBatch       = 500
	DefaultSeedWorkers     = 4
	DefaultConcurrency     = 10
	DefaultDuration        = 30 * time.Second
	DefaultReadPct         = 70
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kvscope",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")
	flags.String("listen", DefaultListen, "Address for the HTTP control and streaming API")

	// Store flags
	flags.String("store", string(StoreRedis), "Store backend: 'redis' or 'memory'")
	flags.String("redis-url", DefaultRedisURL, "Redis connection URL")
	flags.Int("pool-size", DefaultPoolSize, "Maximum store connections shared by all workers")
	flags.Duration("pool-timeout", DefaultPoolTimeout, "Max wait for a free store connection")
	flags.Duration("op-timeout", DefaultOpTimeout, "Per-operation store timeout")

	// Metrics flags
	flags.Duration("publish-interval", DefaultPublishInterval, "Interval between published snapshots")
	flags.Int("feed-capacity", DefaultFeedCapacity, "Number of recent samples kept in the live feed")
	flags.Duration("rate-window", DefaultRateWindow, "Horizon of the rolling request rate")
	flags.Int("max-concurrency", DefaultMaxConcurrency, "Largest concurrency a run may request")
	flags.Duration("max-duration", DefaultMaxDuration, "Longest duration a run may request")

	// Seed flags
	flags.Bool("seed", true, "Populate the store with the demo catalog before serving")
	flags.Int("seed-users", DefaultSeedUsers, "Number of users to seed")
	flags.Int("seed-products", DefaultSeedProducts, "Number of products to seed")
	flags.Int("seed-batch", DefaultSeedBatch, "Records per pipelined seed batch")
	flags.Int("seed-workers", DefaultSeedWorkers, "Parallel seed batch writers")

	// Logging flags
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", string(LogFormatJSON), "Log format: 'json' or 'console'")
	flags.Bool("log-errors", false, "Log each failed operation")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of operations traced (0.0 to 1.0)")
	flags.String("tracing-service-name", "", "Service name reported with spans")

	// Headless run flags
	flags.Bool("run", false, "Run one benchmark from the command line and exit")
	flags.IntP("concurrency", "c", DefaultConcurrency, "Number of concurrent workers")
	flags.DurationP("duration", "d", DefaultDuration, "How long to run the benchmark (e.g. 30s, 1m)")
	flags.Int("read-pct", DefaultReadPct, "Percentage of operations that are reads (0-100)")
	flags.IntP("rate", "r", 0, "Operations per second across all workers (0 means unlimited)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing operations (uniform or poisson)")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("json-output", false, "Emit the final report as JSON")
	flags.Bool("yaml-output", false, "Emit the final report as YAML")
	flags.String("html-output", "", "Also write an HTML report to this path")
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g. 'e2e:p99 < 5')")

	// Watch flags
	flags.String("watch", "", "Render a remote server's snapshot stream (ws://host:3000/api/metrics/ws or http://host:3000/api/metrics/stream)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and the environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"listen", &cfg.Listen},
		{"redis-url", &cfg.Store.RedisURL},
		{"log-level", &cfg.Log.Level},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
		{"watch", &cfg.Watch},
		{"html-output", &cfg.Run.HTMLOutput},
	}
	for _, s := range strs {
		if !fs.Changed(s.name) {
			continue
		}
		val, err := fs.GetString(s.name)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(val)
	}

	if fs.Changed("store") {
		val, err := fs.GetString("store")
		if err != nil {
			return err
		}
		cfg.Store.Backend = StoreBackend(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.Log.Format = LogFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Run.ArrivalModel = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"pool-size", &cfg.Store.PoolSize},
		{"feed-capacity", &cfg.Publish.FeedCapacity},
		{"max-concurrency", &cfg.Limits.MaxConcurrency},
		{"seed-users", &cfg.Seed.Users},
		{"seed-products", &cfg.Seed.Products},
		{"seed-batch", &cfg.Seed.BatchSize},
		{"seed-workers", &cfg.Seed.Workers},
		{"concurrency", &cfg.Run.Concurrency},
		{"read-pct", &cfg.Run.ReadPct},
		{"rate", &cfg.Run.Rate},
	}
	for _, i := range ints {
		if !fs.Changed(i.name) {
			continue
		}
		val, err := fs.GetInt(i.name)
		if err != nil {
			return err
		}
		*i.dst = val
	}

	durs := []struct {
		name string
		dst  *time.Duration
	}{
		{"pool-timeout", &cfg.Store.PoolTimeout},
		{"op-timeout", &cfg.Store.OpTimeout},
		{"publish-interval", &cfg.Publish.Interval},
		{"rate-window", &cfg.Publish.RateWindow},
		{"max-duration", &cfg.Limits.MaxDuration},
		{"duration", &cfg.Run.Duration},
	}
	for _, d := range durs {
		if !fs.Changed(d.name) {
			continue
		}
		val, err := fs.GetDuration(d.name)
		if err != nil {
			return err
		}
		*d.dst = val
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"seed", &cfg.Seed.Enabled},
		{"log-errors", &cfg.Log.Errors},
		{"tracing-insecure", &cfg.Tracing.Insecure},
		{"run", &cfg.Run.Headless},
		{"dashboard", &cfg.Run.Dashboard},
		{"json-output", &cfg.Run.JSONOutput},
		{"yaml-output", &cfg.Run.YAMLOutput},
	}
	for _, b := range bools {
		if !fs.Changed(b.name) {
			continue
		}
		val, err := fs.GetBool(b.name)
		if err != nil {
			return err
		}
		*b.dst = val
	}

	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Run.Thresholds = append(cfg.Run.Thresholds, val...)
	}
	return nil
}
