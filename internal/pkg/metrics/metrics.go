package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "georesolver",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "georesolver",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "georesolver",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Resolution metrics
	BoundaryQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "georesolver",
		Subsystem: "boundary",
		Name:      "queries_total",
		Help:      "Total point-in-polygon queries against the boundary store",
	}, []string{"status"})

	BoundaryQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "georesolver",
		Subsystem: "boundary",
		Name:      "query_duration_seconds",
		Help:      "Duration of point-in-polygon queries",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	ClassifierLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "georesolver",
		Subsystem: "classifier",
		Name:      "lookups_total",
		Help:      "Total offline classifier lookups by outcome",
	}, []string{"outcome"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "georesolver",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total resolution cache hits",
	}, []string{"tier"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "georesolver",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total resolution cache misses",
	}, []string{"tier"})

	// Pipeline metrics
	RecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "georesolver",
		Subsystem: "pipeline",
		Name:      "records_total",
		Help:      "Total pipeline records by result",
	}, []string{"result"})

	CheckpointSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "georesolver",
		Subsystem: "pipeline",
		Name:      "checkpoint_saves_total",
		Help:      "Total checkpoint save attempts",
	}, []string{"status"})

	CheckpointRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "georesolver",
		Subsystem: "pipeline",
		Name:      "checkpoint_records",
		Help:      "Records in the last successfully saved checkpoint",
	})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "georesolver",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "georesolver",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "georesolver",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
// The stat parameter is matched structurally so this package does not import
// pgxpool.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
