package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/bench"
	"github.com/torosent/kvscope/internal/config"
	"github.com/torosent/kvscope/internal/httpapi"
	"github.com/torosent/kvscope/internal/logging"
	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/publish"
	"github.com/torosent/kvscope/internal/runner"
	"github.com/torosent/kvscope/internal/seed"
	"github.com/torosent/kvscope/internal/store"
	"github.com/torosent/kvscope/internal/tracing"
	"github.com/torosent/kvscope/internal/workload"
)

const (
	shutdownTimeout = 10 * time.Second
	pingTimeout     = 3 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logLevel(cfg), string(cfg.Log.Format))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Watch != "" {
		return watch(ctx, cfg, stdout, logger)
	}

	provider, err := tracing.Init(ctx, cfg.Tracing, tracing.Options{Target: storeTarget(cfg)})
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := provider.Shutdown(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	app, err := newApp(ctx, cfg, provider, logger)
	if err != nil {
		return err
	}
	defer app.close()

	if cfg.Run.Headless {
		return runHeadless(ctx, cfg, app, stdout)
	}
	return serve(ctx, cfg, app, provider)
}

// logLevel quiets logging while the terminal dashboard owns the screen.
func logLevel(cfg *config.Config) string {
	if cfg.Run.Dashboard && (cfg.Run.Headless || cfg.Watch != "") {
		return "error"
	}
	return cfg.Log.Level
}

// storeTarget names the store under test for the tracing resource.
func storeTarget(cfg *config.Config) tracing.Target {
	t := tracing.Target{Backend: string(cfg.Store.Backend), PoolSize: cfg.Store.PoolSize}
	if cfg.Store.Backend == config.StoreRedis {
		if u, err := url.Parse(cfg.Store.RedisURL); err == nil {
			t.Address = u.Host
		}
	}
	return t
}

// app is the benchmark core shared by server and headless modes.
type app struct {
	store  store.Store
	agg    *metrics.Aggregator
	gen    *workload.Generator
	orch   *bench.Orchestrator
	pub    *publish.Publisher
	tracer trace.Tracer
	logger *zap.Logger

	stopPublisher context.CancelFunc
	publisherDone chan struct{}
}

func newApp(ctx context.Context, cfg *config.Config, provider *tracing.Provider, logger *zap.Logger) (*app, error) {
	st, err := store.Open(store.Config{
		Backend:     string(cfg.Store.Backend),
		URL:         cfg.Store.RedisURL,
		PoolSize:    cfg.Store.PoolSize,
		PoolTimeout: cfg.Store.PoolTimeout,
		OpTimeout:   cfg.Store.OpTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Seed.Enabled {
		res, err := seed.Seed(ctx, st, seed.Options{
			Users:     cfg.Seed.Users,
			Products:  cfg.Seed.Products,
			BatchSize: cfg.Seed.BatchSize,
			Workers:   cfg.Seed.Workers,
			Logger:    logger,
		})
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("seed store: %w", err)
		}
		logger.Info("store seeded",
			zap.Int("users", res.Users),
			zap.Int("products", res.Products),
			zap.Duration("took", res.Duration),
		)
	} else {
		pctx, pcancel := context.WithTimeout(ctx, pingTimeout)
		if err := st.Ping(pctx); err != nil {
			// Runs against an unreachable store still complete with every sample failed.
			logger.Warn("store unreachable", zap.String("backend", string(cfg.Store.Backend)), zap.Error(err))
		}
		pcancel()
	}

	gen := workload.NewGenerator(st)
	gen.Users = cfg.Seed.Users
	gen.Products = cfg.Seed.Products

	agg := metrics.NewAggregator(metrics.AggregatorOptions{
		FeedCapacity: cfg.Publish.FeedCapacity,
		RateWindow:   cfg.Publish.RateWindow,
	})

	var tracer trace.Tracer
	if provider.Enabled() {
		tracer = provider.Tracer()
	}

	var failures runner.FailureLogger
	if cfg.Log.Errors {
		failures = newFailureLogger(logger)
	}

	orch := bench.NewOrchestrator(bench.Options{
		Aggregator: agg,
		Source:     gen,
		Limits: bench.Limits{
			MaxConcurrency: cfg.Limits.MaxConcurrency,
			MaxDuration:    cfg.Limits.MaxDuration,
		},
		OpTimeout:     cfg.Store.OpTimeout,
		FailureLogger: failures,
		Tracer:        tracer,
		Logger:        logger,
	})

	pub := publish.New(agg, publish.Options{Interval: cfg.Publish.Interval, Logger: logger})
	pctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pub.Run(pctx)
	}()

	return &app{
		store:         st,
		agg:           agg,
		gen:           gen,
		orch:          orch,
		pub:           pub,
		tracer:        tracer,
		logger:        logger,
		stopPublisher: stop,
		publisherDone: done,
	}, nil
}

// close stops any active run, then the publisher, then the store.
func (a *app) close() {
	if err := a.orch.Stop(); err != nil && !errors.Is(err, bench.ErrNotRunning) {
		a.logger.Warn("stop benchmark", zap.Error(err))
	}
	a.stopPublisher()
	<-a.publisherDone
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
}

func serve(ctx context.Context, cfg *config.Config, a *app, provider *tracing.Provider) error {
	srv, err := httpapi.New(httpapi.Options{
		Orchestrator: a.orch,
		Publisher:    a.pub,
		Generator:    a.gen,
		Store:        a.store,
		OpTimeout:    cfg.Store.OpTimeout,
		Tracer:       a.tracer,
		Propagate:    provider.ShouldPropagate(),
		Logger:       a.logger,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, cfg.Listen, shutdownTimeout)
}
