package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

type ctxKey int

const userIDKey ctxKey = iota

// ginUserIDKey 是写入 gin.Context 的键。
const ginUserIDKey = "userID"

// WithUserID 将调用者 ID 附加到 ctx。
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext 取出 AuthMiddleware 附加的调用者 ID。
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// UserID 从 gin.Context 中读取调用者 ID，未认证时为空。
func UserID(c *gin.Context) string {
	if id, ok := UserIDFromContext(c.Request.Context()); ok {
		return id
	}
	return c.GetString(ginUserIDKey)
}
