package metrics

import "github.com/prometheus/client_golang/prometheus"

// Data layer Prometheus metrics.
var (
	PipelineStages = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dataforge",
			Name:      "pipeline_stages",
			Help:      "Number of stages in built search pipelines",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	RelationSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataforge",
			Name:      "relation_skips_total",
			Help:      "Relations left unresolved while building pipelines",
		},
		[]string{"reason"}, // "cycle" / "missing_model" / "depth"
	)

	ImportChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataforge",
			Name:      "import_chunks_total",
			Help:      "Import chunks processed",
		},
		[]string{"status"}, // "ok" / "failed"
	)

	SchemaCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataforge",
			Name:      "schema_cache_total",
			Help:      "Model schema cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dataforge",
			Name:      "search_duration_seconds",
			Help:      "Search aggregation duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"status"}, // "ok" / "timeout" / "error"
	)
)

var dataMetricsRegistered bool

// RegisterDataMetrics registers the data layer metrics. Must be called once from main.
func RegisterDataMetrics() {
	if dataMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineStages)
	prometheus.MustRegister(RelationSkipsTotal)
	prometheus.MustRegister(ImportChunksTotal)
	prometheus.MustRegister(SchemaCacheTotal)
	prometheus.MustRegister(SearchDuration)
	dataMetricsRegistered = true
}
