package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement-service/models"
)

func CreateTable(c *gin.Context) {
	defer recordOperation(c, "create_table")

	var req models.CreateTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	table, err := svc.CreateTable(c.Request.Context(), tenantOf(c), req)
	if err != nil {
		respondError(c, "CreateTable", err)
		return
	}
	c.JSON(http.StatusCreated, table.View())
}

func ListTables(c *gin.Context) {
	defer recordOperation(c, "list_tables")

	tables, err := svc.ListTables(c.Request.Context(), tenantOf(c))
	if err != nil {
		respondError(c, "ListTables", err)
		return
	}
	views := make([]models.TableView, 0, len(tables))
	for _, t := range tables {
		views = append(views, t.View())
	}
	c.JSON(http.StatusOK, views)
}

// ResetTable closes the session and paid orders; unpaid orders stay open.
func ResetTable(c *gin.Context) {
	defer recordOperation(c, "reset_table")

	table, err := svc.ResetTable(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		respondError(c, "ResetTable", err)
		return
	}
	c.JSON(http.StatusOK, table.View())
}
