package runner

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/tracing"
)

// Result captures execution summary.
type Result struct {
	Total    int64         `json:"total"`
	Reads    int64         `json:"reads"`
	Writes   int64         `json:"writes"`
	Errors   int64         `json:"errors"`
	Duration time.Duration `json:"duration_ns"`
}

// Runner coordinates concurrent execution with optional rate limiting.
type Runner struct {
	opt     Options
	arrival arrivalController
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt, arrival: newArrivalController(opt)}
}

// Run blocks until the duration elapses, TotalRequests is reached or ctx
// ends, and every worker has recorded its last operation.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	var total, reads, writes, errs atomic.Int64

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.opt.Duration > 0 {
		deadlineCtx, deadlineCancel := context.WithTimeout(ctx, r.opt.Duration)
		ctx = deadlineCtx
		defer deadlineCancel()
	}

	var permits chan struct{}
	if r.arrival != nil || r.opt.TotalRequests > 0 {
		permits = make(chan struct{}, r.opt.Concurrency)
		go r.schedule(ctx, permits)
	}

	var wg sync.WaitGroup
	wg.Add(r.opt.Concurrency)
	for i := 0; i < r.opt.Concurrency; i++ {
		go func(id int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(r.opt.SeedBase + int64(id)))
			for {
				if permits != nil {
					if _, ok := <-permits; !ok {
						return
					}
				}
				if ctx.Err() != nil {
					return
				}

				kind := metrics.OpWrite
				if rng.Intn(100) < r.opt.ReadPct {
					kind = metrics.OpRead
				}
				s := r.execute(ctx, r.opt.Source.Next(rng, kind))

				total.Add(1)
				if kind == metrics.OpRead {
					reads.Add(1)
				} else {
					writes.Add(1)
				}
				if !s.Success {
					errs.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()

	return Result{
		Total:    total.Load(),
		Reads:    reads.Load(),
		Writes:   writes.Load(),
		Errors:   errs.Load(),
		Duration: time.Since(start),
	}
}

// schedule serializes pacing so concurrent workers cannot overshoot the
// configured rate.
func (r *Runner) schedule(ctx context.Context, permits chan<- struct{}) {
	defer close(permits)
	var allocated int
	for {
		if ctx.Err() != nil {
			return
		}
		if r.opt.TotalRequests > 0 && allocated >= r.opt.TotalRequests {
			return
		}
		if r.arrival != nil {
			if err := r.arrival.Wait(ctx); err != nil {
				return
			}
		}
		select {
		case permits <- struct{}{}:
			allocated++
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) execute(ctx context.Context, op Operation) metrics.Sample {
	// In-flight store calls are not interrupted by stop or deadline.
	opCtx := context.WithoutCancel(ctx)
	if r.opt.OpTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(opCtx, r.opt.OpTimeout)
		defer cancel()
	}

	var span trace.Span
	if r.opt.Tracer != nil {
		opCtx, span = tracing.StartOperationSpan(opCtx, r.opt.Tracer, op.Endpoint(), op.Kind().String())
	}

	_, s := Execute(opCtx, op)

	if span != nil {
		tracing.EndOperationSpan(span, s.StoreLatency, s.Err)
	}
	if r.opt.Recorder != nil {
		r.opt.Recorder.Record(s)
	}
	if !s.Success && r.opt.FailureLogger != nil {
		r.opt.FailureLogger.LogFailure(s)
	}
	return s
}
