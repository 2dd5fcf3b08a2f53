// Package metrics exposes Prometheus instrumentation for the station service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const metricPrefix = "stations_"

const (
	ResultSuccess = "success"
)

// Metrics holds the service collectors.
type Metrics struct {
	mutations          *prometheus.CounterVec
	mutationLatency    *prometheus.HistogramVec
	collectionRequests prometheus.Counter
	httpRequests       *prometheus.CounterVec
	rateLimited        prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mutations_total",
				Help: "Station mutations by operation and result",
			},
			[]string{"operation", "result"},
		),
		mutationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "mutation_duration_seconds",
				Help:    "Latency of station mutations including the ledger append",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		collectionRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "collection_requests_total",
			Help: "Collection requests raised by volume updates crossing the threshold",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),
	}

	reg.MustRegister(m.mutations, m.mutationLatency, m.collectionRequests, m.httpRequests, m.rateLimited)
	return m
}

// ObserveMutation records one registry mutation. result is ResultSuccess or an error kind.
func (m *Metrics) ObserveMutation(operation, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(operation, result).Inc()
	m.mutationLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// IncCollectionRequests counts a raised collection request.
func (m *Metrics) IncCollectionRequests() {
	if m == nil {
		return
	}
	m.collectionRequests.Inc()
}

// ObserveHTTP counts a served request.
func (m *Metrics) ObserveHTTP(method, route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// IncRateLimited counts a rejected request.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// RegisterDBGauges registers gauges computed from the database on every scrape.
func RegisterDBGauges(reg prometheus.Registerer, db *gorm.DB, log *zap.Logger) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "pending_collection",
			Help: "Stations waiting for a collection to be confirmed",
		},
		func() float64 {
			return queryCount(db, log, "SELECT COUNT(*) FROM stations WHERE collection_requested = ?", true)
		},
	))

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "history_records",
			Help: "Records in the history ledger",
		},
		func() float64 {
			return queryCount(db, log, "SELECT COUNT(*) FROM history_records")
		},
	))
}

func queryCount(db *gorm.DB, log *zap.Logger, query string, args ...any) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		if log != nil {
			log.Warn("metrics query failed", zap.String("query", query), zap.Error(err))
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
