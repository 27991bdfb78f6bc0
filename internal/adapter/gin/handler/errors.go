package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"social-graph-service/internal/adapter/gin/middleware"
	pkgerrors "social-graph-service/pkg/errors"
	"social-graph-service/pkg/logger"
)

// ErrorResponse represents an error response
type ErrorResponse = middleware.ErrorBody

// respondError writes err using the status and code of its error type.
// Store failures and unknown errors are reported without their cause.
func respondError(c *gin.Context, log *zap.Logger, msg string, err error) {
	status := pkgerrors.HTTPStatus(err)
	code := pkgerrors.Code(err)
	_ = c.Error(err)

	l := logger.WithContext(c.Request.Context(), log)
	switch code {
	case "internal_error":
		l.Error(msg, zap.Error(err))
		c.JSON(status, ErrorResponse{Error: code, Message: "An internal error occurred"})
		return
	case "store_unavailable":
		l.Error(msg, zap.Error(err))
		c.JSON(status, ErrorResponse{Error: code, Message: "storage temporarily unavailable"})
		return
	}

	l.Warn(msg, zap.Error(err))
	c.JSON(status, ErrorResponse{
		Error:   code,
		Message: err.Error(),
	})
}
