package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/wfunc/loracam/internal/errors"
)

const requestIDKey = "request_id"

// requestID 为每个请求生成ID，已有 X-Request-ID 时沿用
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// respondError 按错误码返回统一错误响应
func respondError(c *gin.Context, err error) {
	appErr := apperrors.Wrap(err, apperrors.ErrUnknown)
	c.JSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(appErr, getRequestID(c)))
}

// respondBadRequest 参数错误
func respondBadRequest(c *gin.Context, details string) {
	c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse(
		apperrors.New(apperrors.ErrInvalidParam, details), getRequestID(c)))
}
