// Package bench owns the lifecycle of benchmark runs: Idle, then Running, then
// Finished, and back to Running on the next Start.
package bench

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/runner"
)

// State is the orchestrator's run state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StateIdle
	case "running":
		*s = StateRunning
	case "finished":
		*s = StateFinished
	default:
		return fmt.Errorf("bench: unknown state %q", b)
	}
	return nil
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State       State          `json:"state"`
	Running     bool           `json:"running"`
	RunID       string         `json:"run_id,omitempty"`
	Config      *RunConfig     `json:"config,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	ElapsedSecs float64        `json:"elapsed_secs"`
	Result      *runner.Result `json:"result,omitempty"`
}

// Options wires the orchestrator to the rest of the system.
type Options struct {
	Aggregator    *metrics.Aggregator
	Source        runner.Source
	Limits        Limits
	OpTimeout     time.Duration
	FailureLogger runner.FailureLogger
	Tracer        trace.Tracer
	Logger        *zap.Logger
}

// Orchestrator serializes Start and Stop; at most one run is active.
type Orchestrator struct {
	opts Options

	mu       sync.Mutex
	state    State
	runID    string
	cfg      RunConfig
	started  time.Time
	finished time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	result   *runner.Result
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Aggregator == nil {
		opts.Aggregator = metrics.NewAggregator(metrics.AggregatorOptions{})
	}
	return &Orchestrator{opts: opts}
}

// Aggregator returns the sink runs record into.
func (o *Orchestrator) Aggregator() *metrics.Aggregator { return o.opts.Aggregator }

// Start validates cfg, clears the aggregator and launches the workers. It
// returns once the run is Running; the run ends on its own after
// cfg.Duration or when Stop is called.
func (o *Orchestrator) Start(cfg RunConfig) (Status, error) {
	if err := cfg.Validate(o.opts.Limits); err != nil {
		return o.Status(), err
	}
	if cfg.ArrivalModel == "" {
		cfg.ArrivalModel = runner.ArrivalModelUniform
	}
	cfg.DurationSecs = cfg.Duration.Seconds()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		return o.statusLocked(time.Now()), ErrAlreadyRunning
	}

	now := time.Now()
	o.opts.Aggregator.Reset(now)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.state = StateRunning
	o.runID = ulid.Make().String()
	o.cfg = cfg
	o.started = now
	o.finished = time.Time{}
	o.cancel = cancel
	o.done = done
	o.result = nil

	r := runner.New(runner.Options{
		Concurrency:   cfg.Concurrency,
		Duration:      cfg.Duration,
		ReadPct:       cfg.ReadPct,
		RatePerSecond: cfg.RatePerSecond,
		ArrivalModel:  cfg.ArrivalModel,
		OpTimeout:     o.opts.OpTimeout,
		Source:        o.opts.Source,
		Recorder:      o.opts.Aggregator,
		FailureLogger: o.opts.FailureLogger,
		Tracer:        o.opts.Tracer,
	})

	o.opts.Logger.Info("benchmark started",
		zap.String("run_id", o.runID),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Duration("duration", cfg.Duration),
		zap.Int("read_pct", cfg.ReadPct),
		zap.Int("rate", cfg.RatePerSecond),
	)

	runID := o.runID
	go func() {
		res := r.Run(ctx)
		cancel()
		o.finish(runID, res, done)
	}()

	return o.statusLocked(now), nil
}

func (o *Orchestrator) finish(runID string, res runner.Result, done chan struct{}) {
	o.mu.Lock()
	now := time.Now()
	o.state = StateFinished
	o.finished = now
	o.result = &res
	o.cancel = nil
	o.opts.Aggregator.MarkFinished(now)
	o.mu.Unlock()

	o.opts.Logger.Info("benchmark finished",
		zap.String("run_id", runID),
		zap.Int64("operations", res.Total),
		zap.Int64("errors", res.Errors),
		zap.Duration("took", res.Duration),
	)
	close(done)
}

// Stop cancels the active run and waits until every worker has recorded
// its in-flight operation. The orchestrator is Finished when Stop returns.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done, runID := o.cancel, o.done, o.runID
	o.mu.Unlock()

	o.opts.Logger.Info("benchmark stop requested", zap.String("run_id", runID))
	if cancel != nil {
		cancel()
	}
	<-done
	return nil
}

// Done returns a channel closed when the current run finishes. It is nil
// before the first Start.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Wait blocks until the current run finishes or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := o.Done()
	if done == nil {
		return ErrNotRunning
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the current state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked(time.Now())
}

func (o *Orchestrator) statusLocked(now time.Time) Status {
	st := Status{State: o.state, Running: o.state == StateRunning}
	if o.state == StateIdle {
		return st
	}
	cfg := o.cfg
	started := o.started
	st.RunID = o.runID
	st.Config = &cfg
	st.StartedAt = &started
	switch o.state {
	case StateRunning:
		st.ElapsedSecs = now.Sub(o.started).Seconds()
	case StateFinished:
		finished := o.finished
		st.FinishedAt = &finished
		st.ElapsedSecs = o.finished.Sub(o.started).Seconds()
		if o.result != nil {
			res := *o.result
			st.Result = &res
		}
	}
	return st
}
