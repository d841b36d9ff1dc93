package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/shop-api/pkg/response"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitOptions 固定窗口限流参数
type RateLimitOptions struct {
	Limit         int
	Window        time.Duration
	BlockDuration time.Duration
	KeyPrefix     string
}

// RateLimiter 基于 Redis 的固定窗口限流，超限后封禁 BlockDuration。
// Redis 不可用时放行请求
func RateLimiter(rdb redis.Cmdable, opts RateLimitOptions, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		clientID := "ip:" + c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			clientID = "uid:" + userID
		}
		key := fmt.Sprintf("%s:%s:%s", opts.KeyPrefix, c.FullPath(), clientID)
		blockKey := key + ":blocked"

		if ttl, err := rdb.TTL(ctx, blockKey).Result(); err == nil && ttl > 0 {
			c.Header("Retry-After", strconv.Itoa(retrySeconds(ttl)))
			response.AbortWithError(c, http.StatusTooManyRequests,
				"Too many requests. Please try again in "+ttl.Round(time.Second).String()+".", nil)
			return
		}

		var incr *redis.IntCmd
		var ttl *redis.DurationCmd
		_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			ttl = pipe.TTL(ctx, key)
			return nil
		})
		if err != nil {
			log.Warnw("限流计数失败，放行请求", "key", key, "error", err)
			c.Next()
			return
		}
		count := incr.Val()
		// 计数器没有过期时间时补设，上次 EXPIRE 失败的计数器也会在这里恢复
		window := ttl.Val()
		if window < 0 {
			if err := rdb.Expire(ctx, key, opts.Window).Err(); err != nil {
				log.Warnw("设置限流窗口失败", "key", key, "error", err)
			}
			window = opts.Window
		}

		if count > int64(opts.Limit) {
			rdb.Set(ctx, blockKey, "1", opts.BlockDuration)
			log.Warnw("请求过于频繁，已封禁", "key", key, "count", count)
			c.Header("Retry-After", strconv.Itoa(retrySeconds(opts.BlockDuration)))
			response.AbortWithError(c, http.StatusTooManyRequests,
				"Too many requests. Please try again in "+opts.BlockDuration.String()+".", nil)
			return
		}

		remaining := opts.Limit - int(count)
		c.Header("X-RateLimit-Limit", strconv.Itoa(opts.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(retrySeconds(window)))

		c.Next()
	}
}

// retrySeconds 向上取整，至少 1 秒
func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
