package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement-service/models"
)

func CreatePricingConfig(c *gin.Context) {
	defer recordOperation(c, "create_pricing_config")

	var req models.CreatePricingConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := svc.CreatePricingConfig(c.Request.Context(), tenantOf(c), req)
	if err != nil {
		respondError(c, "CreatePricingConfig", err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func GetActivePricingConfig(c *gin.Context) {
	defer recordOperation(c, "get_pricing_config")

	cfg, err := svc.ActivePricingConfig(c.Request.Context(), tenantOf(c))
	if err != nil {
		respondError(c, "GetActivePricingConfig", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
