package middlewares

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_service_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"tenant", "method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_service_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"tenant", "method", "path", "status"},
	)

	operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_service_operations_total",
			Help: "Total number of order, bill, table and call operations",
		},
		[]string{"tenant", "operation", "status"},
	)
)

// PrometheusMiddleware records request counts and latency per tenant and route
// template. Routes outside /api/:tenant and /ws/:tenant are labelled "none".
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		tenant := tenantLabel(c.Param("tenant"))

		httpRequestsTotal.WithLabelValues(
			tenant,
			c.Request.Method,
			path,
			status,
		).Inc()

		httpRequestDuration.WithLabelValues(
			tenant,
			c.Request.Method,
			path,
			status,
		).Observe(duration)
	}
}

func tenantLabel(tenantID string) string {
	if tenantID == "" {
		return "none"
	}
	return tenantID
}

// RecordOperation counts an order, bill, table or call operation of a tenant
// by outcome. status is one of success, conflict, rejected or error.
func RecordOperation(tenantID, operation, status string) {
	operations.WithLabelValues(tenantLabel(tenantID), operation, status).Inc()
}
