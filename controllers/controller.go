package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement-service/config"
	"settlement-service/locks"
	"settlement-service/middlewares"
	"settlement-service/models"
	"settlement-service/realtime"
	"settlement-service/services"
)

var (
	svc *services.Service
	hub *realtime.Hub
)

func SetService(s *services.Service) {
	svc = s
}

func SetHub(h *realtime.Hub) {
	hub = h
}

// RegisterRoutes mounts the customer, staff and websocket routes on r.
func RegisterRoutes(r *gin.Engine) {
	// customer routes: reached from the table QR code, no staff token
	public := r.Group("/api/:tenant", middlewares.TenantMiddleware())
	{
		public.POST("/orders", SubmitOrder)
		public.POST("/calls", CreateCall)
	}

	staff := r.Group("/api/:tenant", middlewares.TenantMiddleware(), middlewares.AuthMiddleware())
	{
		staff.GET("/orders", ListOrders)
		staff.GET("/orders/:id", GetOrder)
		staff.PATCH("/orders/:id/status", UpdateOrderStatus)
		staff.DELETE("/orders/:id", DeleteOrder)
		staff.POST("/orders/:id/bill", CreateBillFromOrder)

		staff.POST("/tables", CreateTable)
		staff.GET("/tables", ListTables)
		staff.POST("/tables/:id/bill", CreateTableBill)
		staff.POST("/tables/:id/reset", ResetTable)

		staff.GET("/bills/active", GetActiveBills)
		staff.GET("/bills/history", GetBillHistory)
		staff.GET("/bills/:id", GetBill)
		staff.PATCH("/bills/:id", UpdateBill)
		staff.POST("/bills/:id/finalize", FinalizeBill)
		staff.POST("/bills/:id/mark-paid", MarkBillPaid)

		staff.POST("/pricing", CreatePricingConfig)
		staff.GET("/pricing/active", GetActivePricingConfig)

		staff.GET("/calls/active", GetActiveCalls)
		staff.POST("/calls/:id/resolve", ResolveCall)
	}

	ws := r.Group("/ws/:tenant", middlewares.TenantMiddleware())
	{
		ws.GET("/staff", middlewares.AuthMiddleware(), StaffSocket)
		ws.GET("/tables/:table/sessions/:session", CustomerSocket)
	}
}

func tenantOf(c *gin.Context) string {
	return c.GetString(middlewares.TenantKey)
}

// recordOperation is deferred by every handler; it reads the final response status.
func recordOperation(c *gin.Context, operation string) {
	code := c.Writer.Status()
	status := "error"
	switch {
	case code >= 200 && code < 300:
		status = "success"
	case code == http.StatusConflict:
		status = "conflict"
	case code >= 400 && code < 500:
		status = "rejected"
	}
	middlewares.RecordOperation(tenantOf(c), operation, status)
}

// respondError maps domain errors onto HTTP statuses. A bill conflict carries
// the existing bill so the client can reuse it.
func respondError(c *gin.Context, funcName string, err error) {
	var conflict *models.ConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "bill": conflict.Bill})
	case errors.Is(err, models.ErrVersionMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, locks.ErrNotObtained):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Resource is busy, retry"})
	default:
		config.LogError(config.GetLogger(), "controllers", funcName, "request failed", c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
