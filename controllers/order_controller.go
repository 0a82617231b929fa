package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement-service/models"
)

func SubmitOrder(c *gin.Context) {
	defer recordOperation(c, "submit_order")

	var req models.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := svc.SubmitOrder(c.Request.Context(), tenantOf(c), req)
	if err != nil {
		respondError(c, "SubmitOrder", err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func ListOrders(c *gin.Context) {
	defer recordOperation(c, "list_orders")

	orders, err := svc.ListTableOrders(c.Request.Context(), tenantOf(c), c.Query("tableId"))
	if err != nil {
		respondError(c, "ListOrders", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(orders))
}

func GetOrder(c *gin.Context) {
	defer recordOperation(c, "get_order")

	order, err := svc.GetOrder(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		respondError(c, "GetOrder", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func UpdateOrderStatus(c *gin.Context) {
	defer recordOperation(c, "update_order_status")

	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := svc.UpdateStatus(c.Request.Context(), tenantOf(c), c.Param("id"), req.Status, req.Version)
	if err != nil {
		respondError(c, "UpdateOrderStatus", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// DeleteOrder rejects an order that has not been billed beyond draft.
func DeleteOrder(c *gin.Context) {
	defer recordOperation(c, "delete_order")

	orderID := c.Param("id")
	if err := svc.DeleteOrder(c.Request.Context(), tenantOf(c), orderID); err != nil {
		respondError(c, "DeleteOrder", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order rejected", "order_id": orderID})
}
