package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	dirRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentdir_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	dirRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentdir_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	dirRegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentdir_registrations_total",
		Help: "Total registration attempts by result.",
	}, []string{"result"})

	dirHeartbeatsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentdir_heartbeats_total",
		Help: "Total heartbeat attempts by result (accepted, unauthorized, invalid).",
	}, []string{"result"})

	dirAgentsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentdir_registered_agents",
		Help: "Agents registered by this process since start.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request
// metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		dirRequestsTotal.WithLabelValues(method, path, status).Inc()
		dirRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordRegistration records a registration attempt.
func RecordRegistration(success bool) {
	if success {
		dirRegistrationsTotal.WithLabelValues("accepted").Inc()
		dirAgentsRegistered.Inc()
	} else {
		dirRegistrationsTotal.WithLabelValues("rejected").Inc()
	}
}

// RecordHeartbeat records a heartbeat attempt with its outcome label.
func RecordHeartbeat(result string) {
	dirHeartbeatsTotal.WithLabelValues(result).Inc()
}
