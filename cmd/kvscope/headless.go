package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/bench"
	"github.com/torosent/kvscope/internal/config"
	"github.com/torosent/kvscope/internal/dashboard"
	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/output"
	"github.com/torosent/kvscope/internal/runner"
	"github.com/torosent/kvscope/internal/threshold"
)

// errThresholdsFailed is returned when a headless run misses a threshold.
var errThresholdsFailed = errors.New("thresholds failed")

func runHeadless(ctx context.Context, cfg *config.Config, a *app, stdout io.Writer) error {
	parsed, err := threshold.ParseMultiple(cfg.Run.Thresholds)
	if err != nil {
		return err
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	// Displays attach before Start so they see the run from its first tick.
	var (
		dash     *dashboard.Dashboard
		progress *output.ProgressReporter
	)
	if cfg.Run.Dashboard || (!cfg.Run.JSONOutput && !cfg.Run.YAMLOutput) {
		sub, err := a.pub.Subscribe()
		if err != nil {
			return err
		}
		defer sub.Close()

		if cfg.Run.Dashboard {
			dash, err = dashboard.New(sub.C, dashboardConfig(cfg), stopRun)
			if err != nil {
				return err
			}
		} else {
			progress = output.NewProgressReporter(sub.C, stdout)
		}
	}

	st, err := a.orch.Start(bench.RunConfig{
		Concurrency:   cfg.Run.Concurrency,
		Duration:      cfg.Run.Duration,
		ReadPct:       cfg.Run.ReadPct,
		RatePerSecond: cfg.Run.Rate,
		ArrivalModel:  runner.ArrivalModel(cfg.Run.ArrivalModel),
	})
	if err != nil {
		if dash != nil {
			dash.Stop()
		}
		return err
	}

	if dash != nil {
		dash.Start()
	}
	if progress != nil {
		progress.Start()
	}

	select {
	case <-a.orch.Done():
	case <-runCtx.Done():
		if err := a.orch.Stop(); err != nil && !errors.Is(err, bench.ErrNotRunning) {
			return err
		}
	}

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
	}

	snap := a.agg.Snapshot()
	results := threshold.NewEvaluator(parsed).Evaluate(snap)
	meta := reportMetadata(cfg, st)

	if err := writeReport(stdout, cfg, snap, results, meta); err != nil {
		return err
	}
	if cfg.Run.HTMLOutput != "" {
		if err := writeHTMLReport(cfg.Run.HTMLOutput, snap, results, meta); err != nil {
			return err
		}
		a.logger.Info("html report written", zap.String("path", cfg.Run.HTMLOutput))
	}

	if !threshold.AllPassed(results) {
		sum := output.Summarize(results)
		return fmt.Errorf("%w: %d of %d", errThresholdsFailed, sum.Failed, sum.Total)
	}
	return nil
}

func dashboardConfig(cfg *config.Config) dashboard.RunConfig {
	return dashboard.RunConfig{
		Store:        string(cfg.Store.Backend),
		Concurrency:  cfg.Run.Concurrency,
		Duration:     cfg.Run.Duration,
		ReadPct:      cfg.Run.ReadPct,
		Rate:         cfg.Run.Rate,
		ArrivalModel: string(cfg.Run.ArrivalModel),
		ConfigFile:   cfg.ConfigFile,
	}
}

func reportMetadata(cfg *config.Config, st bench.Status) output.ReportMetadata {
	meta := output.ReportMetadata{
		RunID:        st.RunID,
		Store:        string(cfg.Store.Backend),
		Concurrency:  cfg.Run.Concurrency,
		DurationSecs: cfg.Run.Duration.Seconds(),
		ReadPct:      cfg.Run.ReadPct,
		Rate:         cfg.Run.Rate,
		ArrivalModel: string(cfg.Run.ArrivalModel),
		StartedAt:    time.Now(),
	}
	if st.StartedAt != nil {
		meta.StartedAt = *st.StartedAt
	}
	return meta
}

func writeReport(w io.Writer, cfg *config.Config, snap metrics.Snapshot, results []threshold.Result, meta output.ReportMetadata) error {
	switch {
	case cfg.Run.JSONOutput:
		return output.PrintJSONReport(w, output.NewReport(snap, results, meta))
	case cfg.Run.YAMLOutput:
		return output.PrintYAMLReport(w, output.NewReport(snap, results, meta))
	default:
		output.PrintReport(w, snap, results)
		return nil
	}
}

func writeHTMLReport(path string, snap metrics.Snapshot, results []threshold.Result, meta output.ReportMetadata) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}
	if err := output.GenerateHTMLReport(f, snap, results, meta); err != nil {
		_ = f.Close()
		return fmt.Errorf("write html report: %w", err)
	}
	return f.Close()
}
