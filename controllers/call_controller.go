package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement-service/middlewares"
	"settlement-service/models"
)

func CreateCall(c *gin.Context) {
	defer recordOperation(c, "create_call")

	var req models.CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	call, err := svc.CreateCall(c.Request.Context(), tenantOf(c), req)
	if err != nil {
		respondError(c, "CreateCall", err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

func ResolveCall(c *gin.Context) {
	defer recordOperation(c, "resolve_call")

	var req models.ResolveCallRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = c.GetString(middlewares.StaffAliasKey)
	}

	call, err := svc.ResolveCall(c.Request.Context(), tenantOf(c), c.Param("id"), req.ResolvedBy)
	if err != nil {
		respondError(c, "ResolveCall", err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func GetActiveCalls(c *gin.Context) {
	defer recordOperation(c, "list_active_calls")

	calls, err := svc.ActiveCalls(c.Request.Context(), tenantOf(c))
	if err != nil {
		respondError(c, "GetActiveCalls", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(calls))
}
