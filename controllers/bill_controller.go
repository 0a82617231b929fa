package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"settlement-service/models"
)

const idempotencyHeader = "Idempotency-Key"

func CreateBillFromOrder(c *gin.Context) {
	defer recordOperation(c, "create_bill")

	bill, err := svc.CreateFromOrder(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		respondError(c, "CreateBillFromOrder", err)
		return
	}
	c.JSON(http.StatusCreated, bill)
}

func CreateTableBill(c *gin.Context) {
	defer recordOperation(c, "create_table_bill")

	bill, err := svc.CreateForTable(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		respondError(c, "CreateTableBill", err)
		return
	}
	c.JSON(http.StatusCreated, bill)
}

func GetActiveBills(c *gin.Context) {
	defer recordOperation(c, "list_active_bills")

	bills, err := svc.ActiveBills(c.Request.Context(), tenantOf(c))
	if err != nil {
		respondError(c, "GetActiveBills", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(bills))
}

func GetBillHistory(c *gin.Context) {
	defer recordOperation(c, "list_bill_history")

	bills, err := svc.BillHistory(c.Request.Context(), tenantOf(c))
	if err != nil {
		respondError(c, "GetBillHistory", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(bills))
}

func GetBill(c *gin.Context) {
	defer recordOperation(c, "get_bill")

	bill, err := svc.GetBill(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		respondError(c, "GetBill", err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

// UpdateBill edits a draft. Totals in the body are ignored; the server recomputes them.
func UpdateBill(c *gin.Context) {
	defer recordOperation(c, "update_bill")

	var patch models.BillPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bill, err := svc.UpdateDraft(c.Request.Context(), tenantOf(c), c.Param("id"), patch)
	if err != nil {
		respondError(c, "UpdateBill", err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func FinalizeBill(c *gin.Context) {
	defer recordOperation(c, "finalize_bill")

	var req models.FinalizeBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bill, err := svc.Finalize(c.Request.Context(), tenantOf(c), c.Param("id"), req.StaffAlias)
	if err != nil {
		respondError(c, "FinalizeBill", err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func MarkBillPaid(c *gin.Context) {
	defer recordOperation(c, "mark_bill_paid")

	key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": idempotencyHeader + " header is required"})
		return
	}
	var req models.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bill, err := svc.MarkPaid(c.Request.Context(), tenantOf(c), c.Param("id"), req, key)
	if err != nil {
		respondError(c, "MarkBillPaid", err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
