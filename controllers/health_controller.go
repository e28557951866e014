package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/utils"
)

// HealthCheck handles the health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Autoelectric CRM API is running",
	})
}

// DatabaseStatus checks database connectivity and returns table information
func DatabaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		utils.RespondError(c, apperrors.New(apperrors.CodeDatabase, "Database is not connected"))
		return
	}

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		utils.RespondError(c, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to get database instance"))
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		utils.RespondError(c, apperrors.Wrap(apperrors.CodeDatabase, err, "Database connection failed"))
		return
	}

	tables, err := db.WithContext(c.Request.Context()).Migrator().GetTables()
	if err != nil {
		utils.RespondError(c, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to query tables"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
