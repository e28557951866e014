package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/logger"
	"github.com/vipauto/autoelectric-crm/services"
	"github.com/vipauto/autoelectric-crm/utils"
)

func newAuthService() (*services.AuthService, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, errors.New("configuration is not loaded")
	}
	return services.NewAuthService(config.GetDB(), services.NewTokenService(cfg)), nil
}

// Register handles POST /api/v1/auth/register - creates a regular master account and returns a token
func Register(c *gin.Context) {
	var req services.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err)
		return
	}

	authService, err := newAuthService()
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	session, err := authService.Register(c.Request.Context(), req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	logger.Get().Info(logger.Get().WithMasterID(c.Request.Context(), session.Master.ID), "master registered")
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    session,
		"message": "Registration successful",
	})
}

// Login handles POST /api/v1/auth/login - exchanges phone and password for a token
func Login(c *gin.Context) {
	var req services.LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err)
		return
	}

	authService, err := newAuthService()
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	session, err := authService.Login(c.Request.Context(), req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    session,
		"message": "Login successful",
	})
}

// Logout handles POST /api/v1/auth/logout
// Tokens are stateless, so the client simply discards its copy
func Logout(c *gin.Context) {
	if _, ok := currentMaster(c); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out successfully",
	})
}

// GetMe handles GET /api/v1/auth/me - returns the signed-in master
func GetMe(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}
	respondOK(c, master)
}

// UpdateProfile handles PUT /api/v1/auth/update-profile - updates name, phone or password
func UpdateProfile(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}

	var req services.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err)
		return
	}

	authService, err := newAuthService()
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	updated, err := authService.UpdateProfile(c.Request.Context(), master, req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    updated,
		"message": "Profile updated successfully",
	})
}
