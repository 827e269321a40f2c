// Package promexport exposes aggregator snapshots in the Prometheus text
// format. Values are read from a fresh snapshot on every scrape.
package promexport

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/pool"
)

const namespace = "kvscope"

// Snapshotter is the read side of the metrics aggregator.
type Snapshotter interface {
	Snapshot() metrics.Snapshot
}

// Options adds optional sources to the collector.
type Options struct {
	// Running reports whether a benchmark is in progress.
	Running func() bool
	// Pool reports store connection pool counters.
	Pool func() pool.Stats
}

// Collector implements prometheus.Collector over a Snapshotter.
type Collector struct {
	src  Snapshotter
	opts Options

	requests *prometheus.Desc
	errors   *prometheus.Desc
	rate     *prometheus.Desc
	avgRate  *prometheus.Desc
	elapsed  *prometheus.Desc
	latency  *prometheus.Desc
	running  *prometheus.Desc
	poolSize *prometheus.Desc
	poolUsed *prometheus.Desc
	poolWait *prometheus.Desc
	poolTime *prometheus.Desc
}

// NewCollector builds a collector reading from src.
func NewCollector(src Snapshotter, opts Options) *Collector {
	return &Collector{
		src:  src,
		opts: opts,
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_total"),
			"Operations issued in the current run",
			[]string{"kind"}, nil,
		),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "errors_total"),
			"Failed operations in the current run by error",
			[]string{"error"}, nil,
		),
		rate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_per_second"),
			"Operations per second over the rolling window",
			nil, nil,
		),
		avgRate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_per_second_avg"),
			"Operations per second since the run started",
			nil, nil,
		),
		elapsed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "elapsed_seconds"),
			"Seconds since the first recorded operation",
			nil, nil,
		),
		latency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "latency_microseconds"),
			"Latency by stage from the HDR histograms",
			[]string{"stage"}, nil,
		),
		running: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "benchmark", "running"),
			"1 while a benchmark is running",
			nil, nil,
		),
		poolSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store_pool", "size"),
			"Maximum store connections",
			nil, nil,
		),
		poolUsed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store_pool", "in_use"),
			"Store connections currently checked out",
			nil, nil,
		),
		poolWait: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store_pool", "waits_total"),
			"Times a caller waited for a store connection",
			nil, nil,
		),
		poolTime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store_pool", "timeouts_total"),
			"Times a caller gave up waiting for a store connection",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.errors
	ch <- c.rate
	ch <- c.avgRate
	ch <- c.elapsed
	ch <- c.latency
	if c.opts.Running != nil {
		ch <- c.running
	}
	if c.opts.Pool != nil {
		ch <- c.poolSize
		ch <- c.poolUsed
		ch <- c.poolWait
		ch <- c.poolTime
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.src.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(snap.TotalReads), metrics.OpRead.String())
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(snap.TotalWrites), metrics.OpWrite.String())
	for label, n := range snap.Errors {
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(n), label)
	}
	ch <- prometheus.MustNewConstMetric(c.rate, prometheus.GaugeValue, snap.RequestsPerSec)
	ch <- prometheus.MustNewConstMetric(c.avgRate, prometheus.GaugeValue, snap.AvgRequestsPerSec)
	ch <- prometheus.MustNewConstMetric(c.elapsed, prometheus.GaugeValue, snap.ElapsedSecs)

	stages := []struct {
		name string
		set  metrics.PercentileSet
	}{
		{"store_read", snap.StoreRead},
		{"store_write", snap.StoreWrite},
		{"overhead", snap.Overhead},
		{"e2e", snap.EndToEnd},
	}
	for _, s := range stages {
		ch <- prometheus.MustNewConstSummary(c.latency,
			uint64(s.set.Count),
			s.set.MeanUs*float64(s.set.Count),
			quantiles(s.set),
			s.name,
		)
	}

	if c.opts.Running != nil {
		v := 0.0
		if c.opts.Running() {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, v)
	}
	if c.opts.Pool != nil {
		st := c.opts.Pool()
		ch <- prometheus.MustNewConstMetric(c.poolSize, prometheus.GaugeValue, float64(st.Size))
		ch <- prometheus.MustNewConstMetric(c.poolUsed, prometheus.GaugeValue, float64(st.InUse))
		ch <- prometheus.MustNewConstMetric(c.poolWait, prometheus.CounterValue, float64(st.Waits))
		ch <- prometheus.MustNewConstMetric(c.poolTime, prometheus.CounterValue, float64(st.Timeouts))
	}
}

func quantiles(p metrics.PercentileSet) map[float64]float64 {
	if p.NoData {
		return map[float64]float64{}
	}
	return map[float64]float64{
		0.5:   float64(p.P50Us),
		0.95:  float64(p.P95Us),
		0.99:  float64(p.P99Us),
		0.999: float64(p.P999Us),
	}
}

// Handler registers c on a private registry, together with the Go runtime
// and process collectors, and serves it.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	for _, col := range []prometheus.Collector{
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
