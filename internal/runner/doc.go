// Package runner drives a pool of load workers against the store.
//
// Each worker owns a deterministic random stream, draws read or write with
// probability ReadPct/100, asks its [Source] for an [Operation] and measures
// it with [Execute]:
//
//	t0 := now()        // immediately before the store call
//	op.Call(ctx)       // store round trip only
//	t1 := now()
//	finish()           // client-side post-processing
//	t2 := now()
//
// store = t1-t0, total = t2-t0 and overhead = total-store, never negative.
// The resulting [metrics.Sample] goes to the [Recorder].
//
// # Basic Usage
//
//	r := runner.New(runner.Options{
//		Concurrency: 10,
//		Duration:    30 * time.Second,
//		ReadPct:     70,
//		Source:      gen,
//		Recorder:    aggregator,
//	})
//	result := r.Run(ctx)
//
// # Stopping
//
// Workers poll the run context once per iteration; an operation already in
// flight completes and is recorded. Store calls run on a context detached
// from the run's cancellation and bounded only by OpTimeout.
//
// # Pacing
//
// RatePerSecond caps the pool-wide start rate. Uniform arrivals use a token
// bucket; Poisson arrivals sample exponential gaps. Zero means workers run
// back to back.
package runner
