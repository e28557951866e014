package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/models"
	"github.com/vipauto/autoelectric-crm/services"
	"github.com/vipauto/autoelectric-crm/utils"
)

// ListMasters handles GET /api/v1/masters - paginated staff list (director/admin)
func ListMasters(c *gin.Context) {
	page := utils.ParsePage(c)
	filter := services.MasterFilter{
		Search: c.Query("search"),
		Role:   models.Role(c.Query("role")),
	}
	if value := c.Query("is_active"); value != "" {
		active, err := strconv.ParseBool(value)
		if err != nil {
			utils.RespondError(c, apperrors.New(apperrors.CodeValidation, "is_active must be true or false"))
			return
		}
		filter.IsActive = &active
	}
	if filter.Role != "" && !filter.Role.IsValid() {
		utils.RespondError(c, apperrors.New(apperrors.CodeValidation, "Invalid role"))
		return
	}

	masters, total, err := services.NewMasterService(config.GetDB()).List(c.Request.Context(), filter, page)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondList(c, masters, page, total)
}

// GetMaster handles GET /api/v1/masters/:id - self or director/admin
func GetMaster(c *gin.Context) {
	actor, ok := currentMaster(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !authorizeSelfOrManager(c, actor, id) {
		return
	}

	master, err := services.NewMasterService(config.GetDB()).Get(c.Request.Context(), id)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondOK(c, master)
}

// CreateMaster handles POST /api/v1/masters - creates a master with any role (director/admin)
func CreateMaster(c *gin.Context) {
	var req services.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err)
		return
	}

	master, err := services.NewMasterService(config.GetDB()).Create(c.Request.Context(), req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    master,
		"message": "Master created successfully",
	})
}

// UpdateMaster handles PUT /api/v1/masters/:id (director/admin)
func UpdateMaster(c *gin.Context) {
	actor, ok := currentMaster(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.MasterUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err)
		return
	}

	master, err := services.NewMasterService(config.GetDB()).Update(c.Request.Context(), id, req, actor)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    master,
		"message": "Master updated successfully",
	})
}

// DeleteMaster handles DELETE /api/v1/masters/:id (director/admin)
func DeleteMaster(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := services.NewMasterService(config.GetDB()).Delete(c.Request.Context(), id); err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Master deleted successfully",
	})
}

// GetMasterStats handles GET /api/v1/masters/:id/stats - self or director/admin
func GetMasterStats(c *gin.Context) {
	actor, ok := currentMaster(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !authorizeSelfOrManager(c, actor, id) {
		return
	}

	stats, err := services.NewStatsService(config.GetDB()).Master(c.Request.Context(), id, c.Query("period"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondOK(c, stats)
}
