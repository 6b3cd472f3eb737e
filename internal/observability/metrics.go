package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "town_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion pipeline.
type Metrics struct {
	PipelineRunning   prometheus.Gauge
	Cycles            *prometheus.CounterVec // labels: outcome={ok,fetch_error,aborted}
	CycleDuration     prometheus.Histogram
	FetchDuration     prometheus.Histogram
	AreasFetched      prometheus.Gauge
	TownsMerged       prometheus.Gauge
	TownsPersisted    prometheus.Counter
	PersistErrors     *prometheus.CounterVec // labels: class={transient,fatal}
	LastCycleSuccess  prometheus.Gauge
	PublishErrors     prometheus.Counter
	ArchiveErrors     prometheus.Counter
	CacheLookups      *prometheus.CounterVec // labels: result={hit,miss,error}
	SnapshotsProduced prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the scheduler is active, 0 when shut down.",
		}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Poll cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-merge-transform-persist cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Marker feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		AreasFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "areas_fetched",
			Help:      "Area markers decoded in the last successful fetch.",
		}),
		TownsMerged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "towns_merged",
			Help:      "Towns produced by the merge step in the last cycle.",
		}),
		TownsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "towns_persisted_total",
			Help:      "Town snapshots written to the store.",
		}),
		PersistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Store write failures by class.",
		}, []string{"class"}),
		LastCycleSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_cycle_timestamp_seconds",
			Help:      "Unix time of the last cycle that completed its fetch.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Snapshot batches that failed to publish.",
		}),
		ArchiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_errors_total",
			Help:      "Raw feed payloads that failed to archive.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Snapshot cache lookups by result.",
		}, []string{"result"}),
		SnapshotsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_produced_total",
			Help:      "Snapshots written to the Kafka topic.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.Cycles,
		m.CycleDuration,
		m.FetchDuration,
		m.AreasFetched,
		m.TownsMerged,
		m.TownsPersisted,
		m.PersistErrors,
		m.LastCycleSuccess,
		m.PublishErrors,
		m.ArchiveErrors,
		m.CacheLookups,
		m.SnapshotsProduced,
	}
}
