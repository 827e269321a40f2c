package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. KVSCOPE_REDIS_URL or KVSCOPE_TRACING_ENDPOINT.
const EnvPrefix = "KVSCOPE"

// envKeys are the settings that may be supplied through the environment.
var envKeys = []string{
	"listen", "store", "redis_url", "pool_size", "pool_timeout", "op_timeout",
	"publish_interval", "feed_capacity", "rate_window", "max_concurrency", "max_duration",
	"seed", "seed_users", "seed_products", "seed_batch", "seed_workers",
	"log_level", "log_format", "log_errors",
	"tracing.endpoint", "tracing.protocol", "tracing.insecure", "tracing.sample_rate",
	"tracing.service_name", "tracing.propagate",
	"run", "concurrency", "duration", "read_pct", "rate", "arrival_model",
	"dashboard", "json_output", "yaml_output", "html_output", "thresholds", "watch",
}

// Loader handles loading configuration from files, the environment and
// command-line arguments.
type Loader struct {
	// LookupEnv overrides environment lookups; nil uses the process environment.
	LookupEnv func(key string) (string, bool)
}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Listen: DefaultListen,
		Store: StoreConfig{
			Backend:     StoreRedis,
			RedisURL:    DefaultRedisURL,
			PoolSize:    DefaultPoolSize,
			PoolTimeout: DefaultPoolTimeout,
			OpTimeout:   DefaultOpTimeout,
		},
		Publish: PublishConfig{
			Interval:     DefaultPublishInterval,
			FeedCapacity: DefaultFeedCapacity,
			RateWindow:   DefaultRateWindow,
		},
		Limits: LimitsConfig{
			MaxConcurrency: DefaultMaxConcurrency,
			MaxDuration:    DefaultMaxDuration,
		},
		Seed: SeedConfig{
			Enabled:   true,
			Users:     DefaultSeedUsers,
			Products:  DefaultSeedProducts,
			BatchSize: DefaultSeedBatch,
			Workers:   DefaultSeedWorkers,
		},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatJSON,
		},
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
		Run: RunConfig{
			Concurrency:  DefaultConcurrency,
			Duration:     DefaultDuration,
			ReadPct:      DefaultReadPct,
			ArrivalModel: ArrivalModelUniform,
		},
	}
}

// Load parses command-line arguments, the environment and an optional
// configuration file to produce a Config. Precedence is flags, then
// environment, then file, then defaults.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()
	if err := l.mergeEnv(settings); err != nil {
		return nil, err
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Listen = strings.TrimSpace(cfg.Listen)
	cfg.Store.RedisURL = strings.TrimSpace(cfg.Store.RedisURL)

	return &cfg, nil
}

// mergeEnv overlays KVSCOPE_* variables onto settings. An injected LookupEnv
// bypasses viper so tests stay independent of the process environment.
func (l Loader) mergeEnv(settings map[string]interface{}) error {
	lookup := l.LookupEnv
	if lookup == nil {
		envViper := viper.New()
		envViper.SetEnvPrefix(EnvPrefix)
		envViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		envViper.AutomaticEnv()
		for _, key := range envKeys {
			if err := envViper.BindEnv(key); err != nil {
				return fmt.Errorf("bind env %s: %w", key, err)
			}
		}
		lookup = func(key string) (string, bool) {
			if !envViper.IsSet(key) {
				return "", false
			}
			return envViper.GetString(key), true
		}
	} else {
		inner := lookup
		lookup = func(key string) (string, bool) {
			name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
			return inner(name)
		}
	}

	for _, key := range envKeys {
		val, ok := lookup(key)
		if !ok {
			continue
		}
		section, leaf, nested := strings.Cut(key, ".")
		if !nested {
			settings[key] = val
			continue
		}
		sub, err := sectionMap(settings, section)
		if err != nil {
			return fmt.Errorf("%s: %w", section, err)
		}
		sub[leaf] = val
		settings[section] = sub
	}
	return nil
}

func sectionMap(settings map[string]interface{}, section string) (map[string]interface{}, error) {
	raw, ok := settings[section]
	if !ok || raw == nil {
		return map[string]interface{}{}, nil
	}
	return toStringKeyMap(raw)
}

// applyConfigSettings applies settings from a config file or the
// environment to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"listen", &cfg.Listen},
		{"redis_url", &cfg.Store.RedisURL},
		{"log_level", &cfg.Log.Level},
		{"watch", &cfg.Watch},
		{"html_output", &cfg.Run.HTMLOutput},
	}
	for _, s := range strs {
		if raw, ok := lookupSetting(settings, settingKeys(s.name)...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
			*s.dst = strings.TrimSpace(val)
		}
	}

	if raw, ok := lookupSetting(settings, "store"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		cfg.Store.Backend = StoreBackend(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "logformat", "log_format", "log-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_format: %w", err)
		}
		cfg.Log.Format = LogFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "arrivalmodel", "arrival_model", "arrival-model"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("arrival_model: %w", err)
		}
		if model := strings.ToLower(strings.TrimSpace(val)); model != "" {
			cfg.Run.ArrivalModel = ArrivalModel(model)
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"pool_size", &cfg.Store.PoolSize},
		{"feed_capacity", &cfg.Publish.FeedCapacity},
		{"max_concurrency", &cfg.Limits.MaxConcurrency},
		{"seed_users", &cfg.Seed.Users},
		{"seed_products", &cfg.Seed.Products},
		{"seed_batch", &cfg.Seed.BatchSize},
		{"seed_workers", &cfg.Seed.Workers},
		{"concurrency", &cfg.Run.Concurrency},
		{"read_pct", &cfg.Run.ReadPct},
		{"rate", &cfg.Run.Rate},
	}
	for _, i := range ints {
		if raw, ok := lookupSetting(settings, settingKeys(i.name)...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", i.name, err)
			}
			*i.dst = val
		}
	}

	durs := []struct {
		name string
		dst  *time.Duration
	}{
		{"pool_timeout", &cfg.Store.PoolTimeout},
		{"op_timeout", &cfg.Store.OpTimeout},
		{"publish_interval", &cfg.Publish.Interval},
		{"rate_window", &cfg.Publish.RateWindow},
		{"max_duration", &cfg.Limits.MaxDuration},
		{"duration", &cfg.Run.Duration},
	}
	for _, d := range durs {
		if raw, ok := lookupSetting(settings, settingKeys(d.name)...); ok {
			val, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", d.name, err)
			}
			*d.dst = val
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"seed", &cfg.Seed.Enabled},
		{"log_errors", &cfg.Log.Errors},
		{"run", &cfg.Run.Headless},
		{"dashboard", &cfg.Run.Dashboard},
		{"json_output", &cfg.Run.JSONOutput},
		{"yaml_output", &cfg.Run.YAMLOutput},
	}
	for _, b := range bools {
		if raw, ok := lookupSetting(settings, settingKeys(b.name)...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", b.name, err)
			}
			*b.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Run.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

// settingKeys returns the accepted spellings of a snake_case setting.
func settingKeys(name string) []string {
	return []string{name, strings.ReplaceAll(name, "_", ""), strings.ReplaceAll(name, "_", "-")}
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	tracing := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tracing.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tracing.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tracing.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tracing.Propagate = &val
	}
	return tracing, nil
}
