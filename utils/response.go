package utils

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/logger"
)

// RespondError writes the standard error envelope for err and aborts the request
func RespondError(c *gin.Context, err error) {
	var uploadErr *FileUploadError
	if errors.As(err, &uploadErr) {
		err = apperrors.New(apperrors.CodeValidation, uploadErr.Message).
			WithDetails(gin.H{"reason": uploadErr.Code})
	}

	typed := apperrors.As(err)
	if typed == nil {
		typed = apperrors.Wrap(apperrors.CodeInternal, err, "")
	}
	meta := apperrors.MetadataFor(typed.Code())

	message := typed.Message()
	if meta.HTTPStatus >= 500 || message == "" {
		message = meta.PublicMessage
	}
	if meta.HTTPStatus >= 500 {
		logger.Get().Error(c.Request.Context(), "request failed", err)
	}

	body := gin.H{
		"code":    typed.Code(),
		"message": message,
	}
	if meta.DetailsAllowed && typed.Details() != nil {
		body["details"] = typed.Details()
	}

	c.AbortWithStatusJSON(meta.HTTPStatus, gin.H{
		"success": false,
		"error":   body,
	})
}

// RespondValidationError reports a request binding failure
func RespondValidationError(c *gin.Context, err error) {
	RespondError(c, apperrors.New(apperrors.CodeValidation, "Invalid request data").WithDetails(err.Error()))
}
