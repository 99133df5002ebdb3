// Package respond 统一把业务错误映射为 HTTP 状态码与错误体。
package respond

import (
	"log/slog"
	"net/http"

	"supertodo/internal/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorBody 是所有错误响应的固定结构。
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Status 返回错误类别对应的 HTTP 状态码。
func Status(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindDuplicateEmail, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvalidCredentials, apperr.KindUnauthorized, apperr.KindTokenInvalid, apperr.KindTokenExpired:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Body 构造错误体；内部错误不暴露原因。
func Body(err error) ErrorBody {
	return ErrorBody{
		Error:   string(apperr.KindOf(err)),
		Message: apperr.MessageOf(err),
	}
}

// Error 写出错误响应。内部错误的原因只记录在日志中。
func Error(c *gin.Context, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal && logger != nil {
		logger.Error("request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(Status(kind), Body(err))
}

// Abort 写出错误响应并终止后续 handler，供中间件使用。
func Abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(Status(apperr.KindOf(err)), Body(err))
}
