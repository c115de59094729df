package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"future-self-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// RateLimiter 基于 Redis 有序集合实现按 IP 的滑动窗口限流，用于登录与注册接口。
type RateLimiter struct {
	client    redis.Cmdable
	maxReqs   int
	window    time.Duration
	keyPrefix string
}

// NewRateLimiter 创建一个在 window 内最多允许 maxReqs 次请求的限流器。
func NewRateLimiter(client redis.Cmdable, maxReqs int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, maxReqs: maxReqs, window: window, keyPrefix: "ratelimit:auth:"}
}

// Middleware 返回执行限流的 gin 中间件。Redis 出错时放行。
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		allowed, err := rl.allow(c.Request.Context(), rl.keyPrefix+ip)
		if err != nil {
			log.Warnw("rate limiter: redis error, failing open", "error", err, "ip", ip)
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-rl.window).UnixMilli()

	var countCmd *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))
		countCmd = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixMilli()), Member: fmt.Sprintf("%d", now.UnixNano())})
		pipe.Expire(ctx, key, rl.window+time.Second)
		return nil
	})
	if err != nil {
		return false, err
	}
	return countCmd.Val() < int64(rl.maxReqs), nil
}
