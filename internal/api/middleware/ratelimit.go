package middleware

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"supertodo/internal/api/respond"
	"supertodo/internal/apperr"
	"supertodo/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Limiter 是按 key 计数的限流器。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

var errRateLimited = apperr.New(apperr.KindRateLimited, "too many requests")

// RateLimit 按客户端 IP 限流。limiter 为 nil 时直接放行；Redis 出错时放行并告警。
func RateLimit(limiter Limiter, scope string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		allowed, wait, err := limiter.Allow(ctx, scope+":"+c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limiter unavailable", slog.String("scope", scope), slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimitRejectedTotal.WithLabelValues(scope).Inc()
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			respond.Abort(c, errRateLimited)
			return
		}
		c.Next()
	}
}

func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
