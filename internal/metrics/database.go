package metrics

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection pool gauges, labelled by store driver (postgres or sqlite).
var (
	DBConnectionsOpen = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Total number of open database connections",
		},
		[]string{"driver"},
	)

	DBConnectionsInUse = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_in_use",
			Help:      "Number of database connections currently in use",
		},
		[]string{"driver"},
	)

	DBConnectionsIdle = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"driver"},
	)

	DBConnectionsMaxOpen = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_max_open",
			Help:      "Maximum number of open database connections allowed (0 means unlimited)",
		},
		[]string{"driver"},
	)

	// DBQueryDuration records repository call latency by operation.
	DBQueryDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	// DBErrors counts failed repository calls by operation and cause.
	DBErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_errors_total",
			Help:      "Total number of database errors",
		},
		[]string{"operation", "error_type"},
	)
)

// PoolStats is a point-in-time view of a connection pool.
type PoolStats struct {
	Open    int
	InUse   int
	Idle    int
	MaxOpen int
}

// StatsSource reports pool statistics for one store backend.
type StatsSource interface {
	PoolStats() PoolStats
}

// PgxPoolStats reads statistics from a pgx pool.
type PgxPoolStats struct {
	Pool *pgxpool.Pool
}

func (s PgxPoolStats) PoolStats() PoolStats {
	if s.Pool == nil {
		return PoolStats{}
	}
	stat := s.Pool.Stat()
	return PoolStats{
		Open:    int(stat.TotalConns()),
		InUse:   int(stat.AcquiredConns()),
		Idle:    int(stat.IdleConns()),
		MaxOpen: int(stat.MaxConns()),
	}
}

// SQLDBStats reads statistics from a database/sql handle.
type SQLDBStats struct {
	DB *sql.DB
}

func (s SQLDBStats) PoolStats() PoolStats {
	if s.DB == nil {
		return PoolStats{}
	}
	stat := s.DB.Stats()
	return PoolStats{
		Open:    stat.OpenConnections,
		InUse:   stat.InUse,
		Idle:    stat.Idle,
		MaxOpen: stat.MaxOpenConnections,
	}
}

// DBCollector periodically copies pool statistics into the driver-labelled
// gauges.
type DBCollector struct {
	driver   string
	source   StatsSource
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewDBCollector(driver string, source StatsSource) *DBCollector {
	return &DBCollector{
		driver:   driver,
		source:   source,
		stopChan: make(chan struct{}),
	}
}

// Start collects immediately, then every interval until Stop or ctx is done.
func (c *DBCollector) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends collection. It is safe to call more than once.
func (c *DBCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *DBCollector) collect() {
	if c.source == nil {
		return
	}
	stat := c.source.PoolStats()
	DBConnectionsOpen.WithLabelValues(c.driver).Set(float64(stat.Open))
	DBConnectionsInUse.WithLabelValues(c.driver).Set(float64(stat.InUse))
	DBConnectionsIdle.WithLabelValues(c.driver).Set(float64(stat.Idle))
	DBConnectionsMaxOpen.WithLabelValues(c.driver).Set(float64(stat.MaxOpen))
}

// RecordQuery records latency and failures of one repository call. Call it
// with defer:
//
//	defer metrics.RecordQuery("get_event", time.Now(), err)
func RecordQuery(operation string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err == nil {
		return
	}
	errorType := "query_error"
	switch {
	case errors.Is(err, context.Canceled):
		errorType = "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		errorType = "timeout"
	}
	DBErrors.WithLabelValues(operation, errorType).Inc()
}
