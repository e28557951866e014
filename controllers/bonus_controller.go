package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/services"
	"github.com/vipauto/autoelectric-crm/utils"
)

// ListBonuses handles GET /api/v1/bonuses - all bonuses, optionally for one master (director/admin)
func ListBonuses(c *gin.Context) {
	masterID, ok := queryID(c, "master_id")
	if !ok {
		return
	}
	dates, ok := parseDateRange(c)
	if !ok {
		return
	}
	listBonuses(c, services.BonusFilter{MasterID: masterID, Range: dates})
}

// GetMyBonuses handles GET /api/v1/bonuses/my-bonuses - bonuses of the signed-in master
func GetMyBonuses(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}
	dates, ok := parseDateRange(c)
	if !ok {
		return
	}
	listBonuses(c, services.BonusFilter{MasterID: master.ID, Range: dates})
}

func listBonuses(c *gin.Context, filter services.BonusFilter) {
	page := utils.ParsePage(c)
	bonuses, total, err := services.NewBonusService(config.GetDB()).List(c.Request.Context(), filter, page)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondList(c, bonuses, page, total)
}

// GetBonusStats handles GET /api/v1/bonuses/stats
// Masters always get their own totals; directors and admins may pass master_id or see everyone.
func GetBonusStats(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}
	masterID, ok := queryID(c, "master_id")
	if !ok {
		return
	}
	if !master.IsManager() {
		masterID = master.ID
	}
	dates, ok := parseDateRange(c)
	if !ok {
		return
	}

	stats, err := services.NewBonusService(config.GetDB()).Stats(c.Request.Context(), masterID, dates)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondOK(c, stats)
}

// GetBonus handles GET /api/v1/bonuses/:id - own bonus or director/admin
func GetBonus(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	bonus, err := services.NewBonusService(config.GetDB()).Get(c.Request.Context(), id, master)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondOK(c, bonus)
}

// CreateBonus handles POST /api/v1/bonuses - records a manual bonus (director/admin)
func CreateBonus(c *gin.Context) {
	var req services.BonusInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err)
		return
	}

	bonus, err := services.NewBonusService(config.GetDB()).Create(c.Request.Context(), req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    bonus,
		"message": "Bonus created successfully",
	})
}

// UpdateBonus handles PUT /api/v1/bonuses/:id - manual bonuses only (director/admin)
func UpdateBonus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.BonusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err)
		return
	}

	bonus, err := services.NewBonusService(config.GetDB()).Update(c.Request.Context(), id, req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    bonus,
		"message": "Bonus updated successfully",
	})
}

// DeleteBonus handles DELETE /api/v1/bonuses/:id - manual bonuses only (director/admin)
func DeleteBonus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := services.NewBonusService(config.GetDB()).Delete(c.Request.Context(), id); err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Bonus deleted successfully",
	})
}
