package controllers

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/utils"
)

// GetUploadedImage handles GET /api/v1/uploads/:filename - serves order photos kept on local disk
func GetUploadedImage(c *gin.Context) {
	filename := c.Param("filename")

	if filename == "" {
		utils.RespondError(c, apperrors.New(apperrors.CodeValidation, "Filename is required"))
		return
	}

	// Security: Prevent directory traversal attacks
	if !utils.IsSafeFilename(filename) {
		utils.RespondError(c, apperrors.New(apperrors.CodeValidation, "Invalid filename"))
		return
	}

	contentType, ok := utils.ImageContentType(filename)
	if !ok {
		utils.RespondError(c, apperrors.New(apperrors.CodeValidation, "Only PNG and JPEG images are supported"))
		return
	}

	filePath := filepath.Join(utils.UploadDir, filename)
	if info, err := os.Stat(filePath); err != nil || info.IsDir() {
		utils.RespondError(c, apperrors.New(apperrors.CodeNotFound, "Image not found"))
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "private, max-age=86400")
	c.File(filePath)
}
