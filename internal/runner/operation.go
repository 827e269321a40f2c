package runner

import (
	"context"
	"math/rand"
	"time"

	"github.com/torosent/kvscope/internal/metrics"
)

// Finish performs the client-side work that follows a store reply and
// returns the decoded result.
type Finish func() (any, error)

// Operation is one prepared client action. Call performs only the store
// round trip; everything else it needs is prepared before Call.
type Operation interface {
	Kind() metrics.OpKind
	Endpoint() string
	Call(ctx context.Context) (Finish, error)
}

// Source builds operations. rng belongs to the calling worker.
type Source interface {
	Next(rng *rand.Rand, kind metrics.OpKind) Operation
}

// Execute runs op once and decomposes its latency. A store failure skips
// post-processing; a post-processing error also fails the sample.
func Execute(ctx context.Context, op Operation) (any, metrics.Sample) {
	t0 := time.Now()
	finish, err := op.Call(ctx)
	t1 := time.Now()

	var result any
	if err == nil && finish != nil {
		result, err = finish()
	}
	t2 := time.Now()

	return result, metrics.Sample{
		Kind:         op.Kind(),
		Endpoint:     op.Endpoint(),
		StoreLatency: t1.Sub(t0),
		TotalLatency: t2.Sub(t0),
		Success:      err == nil,
		Err:          err,
		Timestamp:    t0,
	}
}
