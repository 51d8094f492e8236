package api

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/promptops/scheduler/internal/domain/errs"
)

const ownerKey = "owner_id"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func Cors() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-User-ID"}
	return cors.New(config)
}

// OwnerRequired resolves the acting user from the X-User-ID header. Every
// task route is owner-scoped; a request without an identity is rejected
// before any handler runs.
func OwnerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := c.GetHeader("X-User-ID")
		if ownerID == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Code:    "UNAUTHENTICATED",
				Message: "X-User-ID header is required",
			})
			c.Abort()
			return
		}
		c.Set(ownerKey, ownerID)
		c.Next()
	}
}

func ownerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}

func ErrorHandlingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method))

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Code:    "INTERNAL_ERROR",
					Message: "An internal error occurred",
				})
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			logger.Error("request error",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method))

			writeError(c, err)
		}
	}
}

func writeError(c *gin.Context, err error) {
	var schedErr *errs.InvalidScheduleError
	var limitErr *errs.LimitExceededError
	var bizErr *errs.BusinessError

	switch {
	case errors.As(err, &schedErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_SCHEDULE",
			Message: schedErr.Error(),
		})
	case errors.As(err, &limitErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Code:    "LIMIT_EXCEEDED",
			Message: limitErr.Error(),
			Details: string(limitErr.Kind),
		})
	case errors.Is(err, errs.ErrTaskNotFound), errors.Is(err, errs.ErrExecutionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Resource not found",
		})
	case errors.Is(err, errs.ErrTaskArchived):
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "TASK_ARCHIVED",
			Message: "Archived tasks cannot be modified",
		})
	case errors.As(err, &bizErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    bizErr.Code(),
			Message: bizErr.Message(),
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "An error occurred while processing your request",
			Details: err.Error(),
		})
	}
}
