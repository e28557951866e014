package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/middleware"
	"github.com/vipauto/autoelectric-crm/models"
	"github.com/vipauto/autoelectric-crm/utils"
)

var fallbackOwnerPercentage = decimal.NewFromInt(50)

// defaultOwnerPercentage is used when the settings row does not exist yet
func defaultOwnerPercentage() decimal.Decimal {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg.DefaultOwnerPercentage
	}
	return fallbackOwnerPercentage
}

// currentMaster returns the authenticated master or writes a 401 response
func currentMaster(c *gin.Context) (*models.Master, bool) {
	master, err := middleware.GetCurrentMaster(c)
	if err != nil {
		utils.RespondError(c, apperrors.Wrap(apperrors.CodeUnauthorized, err, "Could not extract user information"))
		return nil, false
	}
	return master, true
}

// paramID parses a positive numeric path parameter or writes a 400 response
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.RespondError(c, apperrors.Newf(apperrors.CodeValidation, "Invalid %s", name))
		return 0, false
	}
	return uint(id), true
}

// queryID parses an optional numeric query parameter; zero means absent
func queryID(c *gin.Context, name string) (uint, bool) {
	value := c.Query(name)
	if value == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		utils.RespondError(c, apperrors.Newf(apperrors.CodeValidation, "Invalid %s", name))
		return 0, false
	}
	return uint(id), true
}

// parseDateRange reads date_from/date_to or writes a 400 response
func parseDateRange(c *gin.Context) (utils.DateRange, bool) {
	dates, err := utils.ParseDateRange(c.Query("date_from"), c.Query("date_to"))
	if err != nil {
		utils.RespondError(c, err)
		return dates, false
	}
	return dates, true
}

// authorizeSelfOrManager lets a master read their own resources and managers read everyone's
func authorizeSelfOrManager(c *gin.Context, actor *models.Master, masterID uint) bool {
	if actor.IsManager() || actor.ID == masterID {
		return true
	}
	utils.RespondError(c, apperrors.New(apperrors.CodeForbidden, "You can only access your own data"))
	return false
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondList(c *gin.Context, data interface{}, page utils.Page, total int64) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       data,
		"pagination": page.Pagination(total),
	})
}
