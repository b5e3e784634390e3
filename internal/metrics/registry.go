// Package metrics implements MetricsRegistry (spec C11, ambient): the
// process-level Prometheus gauges/counters named in SPEC_FULL.md §4.11,
// exposed over a /metrics HTTP handler by cmd/whaleservice.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every gauge/counter this process publishes. A zero
// Registry is unusable; build one with New.
type Registry struct {
	SnapshotJobDuration   prometheus.Histogram
	MulticallFailures     prometheus.Counter
	DataQualityScore      prometheus.Gauge
	AccumulationScorePct  prometheus.Gauge
	AccumulationIsAnomaly prometheus.Gauge
}

// New builds a Registry and registers every metric on reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		SnapshotJobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "whale_snapshot_job_duration_seconds",
			Help:    "Duration of one hourly_snapshot job tick.",
			Buckets: prometheus.DefBuckets,
		}),
		MulticallFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whale_multicall_failures_total",
			Help: "Count of multicall chunk RPC failures across all batchers.",
		}),
		DataQualityScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "whale_data_quality_score",
			Help: "Aggregate DataQualityValidator score of the most recent analysis tick.",
		}),
		AccumulationScorePct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "whale_accumulation_score_native_pct",
			Help: "score_native_pct of the most recent analysis tick.",
		}),
		AccumulationIsAnomaly: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "whale_accumulation_is_anomaly",
			Help: "1 if the most recent analysis tick was flagged anomalous, else 0.",
		}),
	}

	reg.MustRegister(
		r.SnapshotJobDuration,
		r.MulticallFailures,
		r.DataQualityScore,
		r.AccumulationScorePct,
		r.AccumulationIsAnomaly,
	)
	return r
}

// ObserveMetric records a completed, non-critical analysis tick's
// headline numbers.
func (r *Registry) ObserveMetric(qualityScore float64, scoreNativePct *float64, isAnomaly bool) {
	r.DataQualityScore.Set(qualityScore)
	if scoreNativePct != nil {
		r.AccumulationScorePct.Set(*scoreNativePct)
	}
	if isAnomaly {
		r.AccumulationIsAnomaly.Set(1)
	} else {
		r.AccumulationIsAnomaly.Set(0)
	}
}
