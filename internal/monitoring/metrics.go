package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Search metrics
	trialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regime_optimizer_trials_total",
			Help: "Total number of optimization trials by stage and final state",
		},
		[]string{"stage", "state"},
	)

	trialDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regime_optimizer_trial_duration_seconds",
			Help:    "Wall time of a single optimization trial",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	bestScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "regime_optimizer_best_score",
			Help: "Best score observed so far in a study",
		},
		[]string{"study"},
	)

	// Classification metrics
	runtimeFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regime_optimizer_runtime_faults_total",
			Help: "Runtime faults isolated during evaluation",
		},
		[]string{"component"},
	)

	barsClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regime_optimizer_bars_classified_total",
			Help: "Bars labelled by the regime classifier",
		},
		[]string{"regime"},
	)

	// Artifact metrics
	artifactsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regime_optimizer_artifacts_written_total",
			Help: "JSON artifacts written by kind",
		},
		[]string{"kind"},
	)

	// Data metrics
	dataRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regime_optimizer_data_requests_total",
			Help: "Market data requests by source and outcome",
		},
		[]string{"source", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(trialsTotal)
	prometheus.MustRegister(trialDuration)
	prometheus.MustRegister(bestScore)
	prometheus.MustRegister(runtimeFaults)
	prometheus.MustRegister(barsClassified)
	prometheus.MustRegister(artifactsWritten)
	prometheus.MustRegister(dataRequests)
}

// MetricsHandler serves the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordTrial records a finished trial
func RecordTrial(stage, state string, elapsed time.Duration) {
	trialsTotal.WithLabelValues(stage, state).Inc()
	trialDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// UpdateBestScore updates the best score gauge of a study
func UpdateBestScore(study string, score float64) {
	bestScore.WithLabelValues(study).Set(score)
}

// RecordRuntimeFault counts an isolated runtime fault
func RecordRuntimeFault(component string) {
	runtimeFaults.WithLabelValues(component).Inc()
}

// RecordClassified counts labelled bars per regime
func RecordClassified(counts map[string]int) {
	for regime, n := range counts {
		barsClassified.WithLabelValues(regime).Add(float64(n))
	}
}

// RecordArtifact counts a written artifact
func RecordArtifact(kind string) {
	artifactsWritten.WithLabelValues(kind).Inc()
}

// RecordDataRequest counts a market data request
func RecordDataRequest(source, outcome string) {
	dataRequests.WithLabelValues(source, outcome).Inc()
}
