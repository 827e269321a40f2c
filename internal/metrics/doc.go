// Package metrics aggregates the samples produced by load workers into
// read-only snapshots.
//
// # Aggregator
//
// The [Aggregator] owns every live sub-structure of a run:
//
//	agg := metrics.NewAggregator(metrics.AggregatorOptions{})
//	agg.Reset(time.Now()) // new run, zero everything
//
//	agg.Record(metrics.Sample{
//		Kind:         metrics.OpRead,
//		Endpoint:     "GET /api/users/:id",
//		StoreLatency: 180 * time.Microsecond,
//		TotalLatency: 240 * time.Microsecond,
//		Success:      true,
//	})
//
//	snap := agg.Snapshot()
//
// A sample updates four latency histograms (store read, store write,
// client overhead, end to end), a fixed-boundary distribution table, a
// rolling request-rate window, a bounded feed of recent samples and a
// per-second timeline. Failed samples are kept out of the histograms but
// still count everywhere else.
//
// # Thread Safety
//
// Each sub-structure carries its own lock and counters are atomics, so
// concurrent Record calls contend only on the structure they touch. A
// [Snapshot] is a deep copy; it stays valid after the aggregator moves on or
// is reset. A snapshot taken while samples are arriving may mix state from
// slightly different instants of individual structures.
package metrics
