package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodlens_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlens_query_total",
			Help: "Total number of questions answered",
		},
		[]string{"source"},
	)

	FallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlens_fallback_total",
			Help: "Total augmented answers that fell back to rules",
		},
		[]string{"reason"},
	)

	RecordsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlens_records_ingested_total",
			Help: "Total mood records written",
		},
		[]string{"source"},
	)

	IndexDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moodlens_index_documents",
			Help: "Documents in the current index snapshot",
		},
	)

	IndexRebuilds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moodlens_index_rebuilds_total",
			Help: "Total index rebuilds",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlens_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlens_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	RetrievalResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moodlens_retrieval_results_count",
			Help:    "Number of retrieved documents per augmented query",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	DetectionConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moodlens_detection_confidence",
			Help:    "Confidence of ingested emotion detections",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(FallbackTotal)
	prometheus.MustRegister(RecordsIngested)
	prometheus.MustRegister(IndexDocuments)
	prometheus.MustRegister(IndexRebuilds)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(RetrievalResults)
	prometheus.MustRegister(DetectionConfidence)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
