package middleware

import (
	"strings"

	"supertodo/internal/api/respond"
	"supertodo/internal/apperr"
	"supertodo/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// TokenVerifier 校验令牌并返回 subject。
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

var (
	errMissingAuth = apperr.New(apperr.KindUnauthorized, "missing authorization")
	errInvalidAuth = apperr.New(apperr.KindUnauthorized, "invalid authorization header")
)

// AuthMiddleware 校验 Bearer 令牌并将 userID 写入上下文。
//
// 只做令牌校验，不访问存储。
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Vary", "Authorization")

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			respond.Abort(c, errMissingAuth)
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			respond.Abort(c, errInvalidAuth)
			return
		}

		userID, err := verifier.Verify(parts[1])
		metrics.ObserveAuth("verify", err)
		if err != nil {
			respond.Abort(c, err)
			return
		}

		c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), userID))
		c.Set(ginUserIDKey, userID)
		c.Next()
	}
}
