package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "shop"
	unmatchedRoute   = "unmatched"
)

// apiMetrics groups the request-level series of the shop API.
type apiMetrics struct {
	requests       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	inFlight       prometheus.Gauge
	authRejections *prometheus.CounterVec
}

func newAPIMetrics() *apiMetrics {
	return &apiMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Shop API requests by route template and status",
		}, []string{"method", "endpoint", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Shop API latency by route template",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "endpoint"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_in_flight",
			Help:      "Shop API requests currently being served",
		}),
		authRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_rejections_total",
			Help:      "Requests turned away by the bearer token or role guard",
		}, []string{"status", "reason"}),
	}
}

func (m *apiMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.latency, m.inFlight, m.authRejections}
}

func (m *apiMetrics) rejected(status int, reason string) {
	m.authRejections.WithLabelValues(strconv.Itoa(status), reason).Inc()
}

var metrics = newAPIMetrics()

func init() {
	prometheus.MustRegister(metrics.collectors()...)
}

// MetricsMiddleware records every request under its route template, so
// /api/orders/:id is one series regardless of the id.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = unmatchedRoute
		}

		metrics.inFlight.Inc()
		defer metrics.inFlight.Dec()
		start := time.Now()
		c.Next()

		metrics.requests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.latency.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
