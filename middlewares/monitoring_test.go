package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMiddleware_LabelsTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(PrometheusMiddleware())
	r.GET("/api/:tenant/tables", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	tenantReqs := httpRequestsTotal.WithLabelValues("cafe-9", http.MethodGet, "/api/:tenant/tables", "200")
	healthReqs := httpRequestsTotal.WithLabelValues("none", http.MethodGet, "/health", "200")
	beforeTenant, beforeHealth := testutil.ToFloat64(tenantReqs), testutil.ToFloat64(healthReqs)

	for _, path := range []string{"/api/cafe-9/tables", "/api/cafe-9/tables", "/health"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(tenantReqs) - beforeTenant; got != 2 {
		t.Fatalf("expected 2 requests for cafe-9, got %v", got)
	}
	if got := testutil.ToFloat64(healthReqs) - beforeHealth; got != 1 {
		t.Fatalf("expected 1 health request under tenant none, got %v", got)
	}
}

func TestRecordOperation(t *testing.T) {
	paid := operations.WithLabelValues("cafe-9", "mark_bill_paid", "conflict")
	before := testutil.ToFloat64(paid)

	RecordOperation("cafe-9", "mark_bill_paid", "conflict")
	RecordOperation("", "mark_bill_paid", "conflict")

	if got := testutil.ToFloat64(paid) - before; got != 1 {
		t.Fatalf("expected one conflict for cafe-9, got %v", got)
	}
	if got := testutil.ToFloat64(operations.WithLabelValues("none", "mark_bill_paid", "conflict")); got < 1 {
		t.Fatalf("expected operation without tenant under none, got %v", got)
	}
}
