package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/services"
	"github.com/vipauto/autoelectric-crm/utils"
)

func newSettingsService() *services.SettingsService {
	return services.NewSettingsService(config.GetDB(), defaultOwnerPercentage())
}

// GetSettings handles GET /api/v1/settings (director/admin)
func GetSettings(c *gin.Context) {
	setting, err := newSettingsService().Get(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondOK(c, setting)
}

// UpdateSettings handles PUT /api/v1/settings (director/admin)
// A new owner percentage only applies to orders completed afterwards.
func UpdateSettings(c *gin.Context) {
	var req services.SettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err)
		return
	}

	setting, err := newSettingsService().Update(c.Request.Context(), req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    setting,
		"message": "Settings updated successfully",
	})
}

// GetCompanyInfo handles GET /api/v1/settings/company - public company details
func GetCompanyInfo(c *gin.Context) {
	setting, err := newSettingsService().Get(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondOK(c, setting.CompanyInfo())
}
