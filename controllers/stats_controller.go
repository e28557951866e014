package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/services"
	"github.com/vipauto/autoelectric-crm/utils"
)

// GetGeneralStats handles GET /api/v1/stats/general (director/admin)
func GetGeneralStats(c *gin.Context) {
	dates, ok := parseDateRange(c)
	if !ok {
		return
	}

	stats, err := services.NewStatsService(config.GetDB()).General(c.Request.Context(), dates)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondOK(c, stats)
}

// GetDashboardStats handles GET /api/v1/stats/dashboard?period=week|month|year (director/admin)
func GetDashboardStats(c *gin.Context) {
	stats, err := services.NewStatsService(config.GetDB()).Dashboard(c.Request.Context(), c.Query("period"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondOK(c, stats)
}
