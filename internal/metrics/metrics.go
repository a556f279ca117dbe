// Package metrics provides Prometheus metrics for the departure board service.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Realtime feed metrics
	FeedFetchesTotal     *prometheus.CounterVec
	FeedFetchDuration    *prometheus.HistogramVec
	RealtimeArrivals     *prometheus.GaugeVec
	RealtimeLastRefreshS *prometheus.GaugeVec

	// Schedule metrics
	ResolveDuration     *prometheus.HistogramVec
	ResolveResultsTotal *prometheus.CounterVec

	// Datasource metrics
	DatasourceStatus         *prometheus.GaugeVec
	DatasourceIngestDuration *prometheus.HistogramVec

	// Database metrics, labelled by datasource
	DBConnectionsOpen  *prometheus.GaugeVec
	DBConnectionsInUse *prometheus.GaugeVec
	DBConnectionsIdle  *prometheus.GaugeVec
	DBWaitSecondsTotal *prometheus.CounterVec

	// logger for error reporting
	logger *slog.Logger

	mu         sync.Mutex
	collectors map[string]context.CancelFunc

	// wg tracks the DB stats collector goroutines for graceful shutdown
	wg sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "departureboard_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "departureboard_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		FeedFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "departureboard_feed_fetches_total",
			Help: "Realtime feed fetches by target, feed kind and result",
		}, []string{"target", "feed", "result"}),
		FeedFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "departureboard_feed_fetch_duration_seconds",
			Help:    "Realtime feed fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"feed"}),
		RealtimeArrivals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "departureboard_realtime_arrivals",
			Help: "Upcoming realtime arrivals at the watched stop",
		}, []string{"target"}),
		RealtimeLastRefreshS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "departureboard_realtime_last_refresh_timestamp_seconds",
			Help: "Unix time of the last completed refresh",
		}, []string{"target"}),

		ResolveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "departureboard_resolve_duration_seconds",
			Help:    "Schedule query latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		ResolveResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "departureboard_resolve_results_total",
			Help: "Schedule query outcomes",
		}, []string{"kind", "result"}),

		DatasourceStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "departureboard_datasource_status",
			Help: "Datasource status (0 idle, 1 extracting, 2 ready, 3 failed)",
		}, []string{"datasource"}),
		DatasourceIngestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "departureboard_datasource_ingest_duration_seconds",
			Help:    "Time spent ingesting a static schedule",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"datasource"}),

		DBConnectionsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "departureboard_db_connections_open",
			Help: "Number of open database connections",
		}, []string{"datasource"}),
		DBConnectionsInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "departureboard_db_connections_in_use",
			Help: "Number of database connections currently in use",
		}, []string{"datasource"}),
		DBConnectionsIdle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "departureboard_db_connections_idle",
			Help: "Number of idle database connections",
		}, []string{"datasource"}),
		DBWaitSecondsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "departureboard_db_wait_seconds_total",
			Help: "Total time blocked waiting for a database connection",
		}, []string{"datasource"}),

		logger:     logger,
		collectors: make(map[string]context.CancelFunc),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.FeedFetchesTotal,
		m.FeedFetchDuration,
		m.RealtimeArrivals,
		m.RealtimeLastRefreshS,
		m.ResolveDuration,
		m.ResolveResultsTotal,
		m.DatasourceStatus,
		m.DatasourceIngestDuration,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBWaitSecondsTotal,
	)
	return m
}

// ObserveResolve records the latency and outcome of one schedule query.
func (m *Metrics) ObserveResolve(kind, result string, elapsed time.Duration) {
	m.ResolveDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	m.ResolveResultsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveFeedFetch records one realtime feed request.
func (m *Metrics) ObserveFeedFetch(target, feed string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FeedFetchesTotal.WithLabelValues(target, feed, result).Inc()
	m.FeedFetchDuration.WithLabelValues(feed).Observe(elapsed.Seconds())
}

// StartDBStatsCollector starts a goroutine that periodically collects the
// connection pool statistics of one datasource database.
// Calling it again for the same datasource has no effect until
// StopDBStatsCollector is called for it.
func (m *Metrics) StartDBStatsCollector(datasource string, db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.collectors[datasource]; running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.collectors[datasource] = cancel
	m.wg.Add(1)

	open := m.DBConnectionsOpen.WithLabelValues(datasource)
	inUse := m.DBConnectionsInUse.WithLabelValues(datasource)
	idle := m.DBConnectionsIdle.WithLabelValues(datasource)
	wait := m.DBWaitSecondsTotal.WithLabelValues(datasource)

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in DB stats collector", "error", r, "datasource", datasource)
				}
			}
		}()

		var lastWaitDuration time.Duration
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				open.Set(float64(stats.OpenConnections))
				inUse.Set(float64(stats.InUse))
				idle.Set(float64(stats.Idle))

				if waitDelta := stats.WaitDuration - lastWaitDuration; waitDelta > 0 {
					wait.Add(waitDelta.Seconds())
				}
				lastWaitDuration = stats.WaitDuration

			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopDBStatsCollector stops the collector of one datasource, if running.
func (m *Metrics) StopDBStatsCollector(datasource string) {
	m.mu.Lock()
	cancel, ok := m.collectors[datasource]
	delete(m.collectors, datasource)
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

func (m *Metrics) collectorRunning(datasource string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.collectors[datasource]
	return ok
}

// Shutdown stops every DB stats collector and waits for them to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	m.mu.Lock()
	for name, cancel := range m.collectors {
		cancel()
		delete(m.collectors, name)
	}
	m.mu.Unlock()
	m.wg.Wait()
}
