package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speak2sql_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "speak2sql_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	completionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speak2sql_completions_total",
			Help: "Completion provider calls by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	completionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "speak2sql_completion_duration_seconds",
			Help:    "Completion provider latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"provider"},
	)
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speak2sql_translations_total",
			Help: "Natural language translations by path (query, mutation) and outcome.",
		},
		[]string{"path", "outcome"},
	)
	statementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speak2sql_statements_total",
			Help: "Executed SQL statements by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	statementDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "speak2sql_statement_duration_seconds",
			Help:    "SQL execution latency by statement kind.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	historyEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "speak2sql_history_entries",
			Help: "Operations currently held in the history log.",
		},
	)
	historySaveFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "speak2sql_history_save_failures_total",
			Help: "History persistence failures.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		completionsTotal,
		completionDurationSeconds,
		translationsTotal,
		statementsTotal,
		statementDurationSeconds,
		historyEntries,
		historySaveFailuresTotal,
	)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveCompletion(provider string, elapsed time.Duration, err error) {
	completionsTotal.WithLabelValues(provider, outcome(err)).Inc()
	completionDurationSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func ObserveTranslation(path string, err error) {
	translationsTotal.WithLabelValues(path, outcome(err)).Inc()
}

func ObserveStatement(kind string, elapsed time.Duration, err error) {
	statementsTotal.WithLabelValues(kind, outcome(err)).Inc()
	statementDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func SetHistoryEntries(n int) {
	historyEntries.Set(float64(n))
}

func IncrementHistorySaveFailures() {
	historySaveFailuresTotal.Inc()
}
