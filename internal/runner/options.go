package runner

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/torosent/kvscope/internal/metrics"
)

// ArrivalModel selects how paced operations are spaced.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// DefaultSeedBase offsets per-worker random seeds: worker i uses SeedBase+i.
const DefaultSeedBase = 1000

// Recorder receives one sample per completed operation. It must be safe
// for concurrent use.
type Recorder interface {
	Record(metrics.Sample)
}

// FailureLogger is told about every failed sample.
type FailureLogger interface {
	LogFailure(s metrics.Sample)
}

// Options configure the Runner.
type Options struct {
	Concurrency   int           // number of worker goroutines
	Duration      time.Duration // overall time limit (0 means until the context ends)
	TotalRequests int           // operations to execute (0 means unlimited)
	ReadPct       int           // chance in percent that an operation is a read
	RatePerSecond int           // pool-wide pacing (0 means unlimited)
	ArrivalModel  ArrivalModel
	OpTimeout     time.Duration // bound on a single store call (0 means none)
	SeedBase      int64

	Source        Source   // operation generator (required)
	Recorder      Recorder // sample sink (required)
	FailureLogger FailureLogger
	Tracer        trace.Tracer

	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	PoissonSampler func() float64              // optional injection for tests
	RandomSeed     int64                       // seed for the Poisson sampler
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.TotalRequests < 0 {
		o.TotalRequests = 0
	}
	if o.ReadPct < 0 {
		o.ReadPct = 0
	}
	if o.ReadPct > 100 {
		o.ReadPct = 100
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.SeedBase == 0 {
		o.SeedBase = DefaultSeedBase
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}
