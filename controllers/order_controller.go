package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/logger"
	"github.com/vipauto/autoelectric-crm/models"
	"github.com/vipauto/autoelectric-crm/services"
	"github.com/vipauto/autoelectric-crm/utils"
)

// ChangeStatusRequest represents the request body for PATCH /orders/:id/status
type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func newOrderService() *services.OrderService {
	return services.NewOrderService(config.GetDB(), defaultOwnerPercentage())
}

// attachImageURL fills the computed image URL of an order; storage failures only drop the link
func attachImageURL(ctx context.Context, order *models.Order) {
	if order.ImageS3Key == nil || *order.ImageS3Key == "" {
		return
	}
	imageService := services.GetImageService()
	if imageService == nil {
		return
	}
	url, err := imageService.GetImageURL(ctx, *order.ImageS3Key)
	if err != nil {
		logger.Get().Error(logger.Get().WithOrderID(ctx, order.ID), "failed to build order image url", err)
		return
	}
	order.ImageURL = &url
}

// CreateOrder handles POST /api/v1/orders - creates an order with its masters and line items
func CreateOrder(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}

	var req services.OrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err)
		return
	}

	order, err := newOrderService().Create(c.Request.Context(), req, master.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	logger.Get().Info(logger.Get().WithOrderID(c.Request.Context(), order.ID), "order created")
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    order,
		"message": "Order created successfully",
	})
}

// ListOrders handles GET /api/v1/orders - masters only see orders they are assigned to
func ListOrders(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}

	page := utils.ParsePage(c)
	dates, ok := parseDateRange(c)
	if !ok {
		return
	}
	filter := services.OrderFilter{
		Range:  dates,
		Search: c.Query("search"),
	}
	if value := c.Query("status"); value != "" {
		status, err := models.ParseOrderStatus(value)
		if err != nil {
			utils.RespondError(c, apperrors.Wrap(apperrors.CodeValidation, err, "Invalid status filter").
				WithDetails(gin.H{"allowed": models.OrderStatuses()}))
			return
		}
		filter.Status = status
	}

	orders, total, err := newOrderService().List(c.Request.Context(), filter, page, master)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondList(c, orders, page, total)
}

// GetOrder handles GET /api/v1/orders/:id
func GetOrder(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	order, err := newOrderService().Get(c.Request.Context(), id, master)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	attachImageURL(c.Request.Context(), order)
	respondOK(c, order)
}

// UpdateOrder handles PUT /api/v1/orders/:id - rejected once the order is completed
func UpdateOrder(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.OrderUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err)
		return
	}

	order, err := newOrderService().Update(c.Request.Context(), id, req, master)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	attachImageURL(c.Request.Context(), order)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
		"message": "Order updated successfully",
	})
}

// DeleteOrder handles DELETE /api/v1/orders/:id - rejected once bonuses were allocated
func DeleteOrder(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	orderService := newOrderService()
	order, err := orderService.Get(c.Request.Context(), id, master)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := orderService.Delete(c.Request.Context(), id); err != nil {
		utils.RespondError(c, err)
		return
	}

	if order.ImageS3Key != nil && *order.ImageS3Key != "" {
		if imageService := services.GetImageService(); imageService != nil {
			if err := imageService.DeleteImage(c.Request.Context(), *order.ImageS3Key); err != nil {
				logger.Get().Error(logger.Get().WithOrderID(c.Request.Context(), id), "failed to delete order image", err)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order deleted successfully",
	})
}

// ChangeOrderStatus handles PATCH /api/v1/orders/:id/status
// Moving an order to completed distributes its revenue between the owner and the assigned masters.
func ChangeOrderStatus(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err)
		return
	}
	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		utils.RespondError(c, apperrors.Wrap(apperrors.CodeValidation, err, "Invalid status").
			WithDetails(gin.H{"allowed": models.OrderStatuses()}))
		return
	}

	if _, err := newOrderService().Get(c.Request.Context(), id, master); err != nil {
		utils.RespondError(c, err)
		return
	}

	change, err := services.NewOrderStatusService(config.GetDB(), defaultOwnerPercentage()).
		ChangeStatus(c.Request.Context(), id, status, master.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    change,
		"message": "Order status updated successfully",
	})
}

// GetOrderDistribution handles GET /api/v1/orders/:id/distribution
func GetOrderDistribution(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	distribution, err := newOrderService().Distribution(c.Request.Context(), id, master)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	respondOK(c, distribution)
}

// UploadOrderImage handles POST /api/v1/orders/:id/image - stores the intake photo of an order
func UploadOrderImage(c *gin.Context) {
	master, ok := currentMaster(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	imageService := services.GetImageService()
	if imageService == nil {
		utils.RespondError(c, apperrors.New(apperrors.CodeInternal, "Image storage is not configured"))
		return
	}

	orderService := newOrderService()
	if _, err := orderService.Get(c.Request.Context(), id, master); err != nil {
		utils.RespondError(c, err)
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		utils.RespondError(c, &utils.FileUploadError{Code: "NO_FILE", Message: "No image file provided"})
		return
	}

	key, err := imageService.UploadImage(c.Request.Context(), id, fileHeader)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	previous, err := orderService.SetImage(c.Request.Context(), id, key, master)
	if err != nil {
		if deleteErr := imageService.DeleteImage(c.Request.Context(), key); deleteErr != nil {
			logger.Get().Error(logger.Get().WithOrderID(c.Request.Context(), id), "failed to clean up uploaded image", deleteErr)
		}
		utils.RespondError(c, err)
		return
	}
	if previous != "" && previous != key {
		if err := imageService.DeleteImage(c.Request.Context(), previous); err != nil {
			logger.Get().Error(logger.Get().WithOrderID(c.Request.Context(), id), "failed to delete replaced image", err)
		}
	}

	order, err := orderService.Get(c.Request.Context(), id, nil)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	attachImageURL(c.Request.Context(), order)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
		"message": "Image uploaded successfully",
	})
}
