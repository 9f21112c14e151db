// Package response provides the standard JSON envelope for HTTP handlers.
package response

import (
	"net/http"

	"arena/pkg/errors"
	"arena/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response represents a standard API response.
type Response struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    interface{}      `json:"data,omitempty"`
}

// Success sends a successful response with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.Success,
		Message: "Success",
		Data:    data,
	})
}

// Error sends an error response, extracting code and message from the error.
func Error(c *gin.Context, err error) {
	customErr := errors.GetError(err)

	if customErr.Code == errors.InternalServerError || customErr.Code == errors.JudgeSystemError {
		logger.Error(c.Request.Context(), "request error",
			zap.Int("code", int(customErr.Code)),
			zap.String("message", customErr.Error()),
		)
	}

	c.JSON(customErr.Code.HTTPStatus(), Response{
		Code:    customErr.Code,
		Message: customErr.Error(),
	})
}

// ErrorWithCode sends an error response with a specific error code.
func ErrorWithCode(c *gin.Context, code errors.ErrorCode, message string) {
	if message == "" {
		message = code.Message()
	}
	c.JSON(code.HTTPStatus(), Response{Code: code, Message: message})
}
