package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/savannah-faces/data-service/internal/utils"
	"go.uber.org/zap"
)

// RateLimiterConfig defines rate limiting rules
type RateLimiterConfig struct {
	MaxRequests int           // Maximum requests allowed in the window
	Window      time.Duration // Time window (e.g., 1 minute)
	BlockTime   time.Duration // How long to block after exceeding limit
}

// RateLimiter counts requests per client and scope in Redis. Clients are keyed
// by a hash of their IP, so raw addresses never reach the store.
type RateLimiter struct {
	redis  *redis.Client
	config RateLimiterConfig
	log    *zap.Logger
}

func NewRateLimiter(redisClient *redis.Client, config RateLimiterConfig, log *zap.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		config: config,
		log:    log,
	}
}

// Middleware limits requests to one scope (e.g. "login"). Redis errors let the
// request through.
func (rl *RateLimiter) Middleware(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := rl.CheckLimit(c.Request.Context(), scope, c.ClientIP())
		if err != nil {
			rl.log.Warn("Rate limiter unavailable, allowing request",
				zap.String("scope", scope),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			seconds := int(retryAfter.Seconds())
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests. Please try again later.",
				"retry_after": seconds,
			})
			return
		}

		c.Next()
	}
}

// CheckLimit counts one request from ip in scope.
// Returns: (allowed bool, retryAfter duration, error)
func (rl *RateLimiter) CheckLimit(ctx context.Context, scope, ip string) (bool, time.Duration, error) {
	client := utils.HashIP(ip)
	key := fmt.Sprintf("ratelimit:%s:%s", scope, client)
	blockKey := fmt.Sprintf("ratelimit:block:%s:%s", scope, client)

	// A blocked client stays blocked until the block key expires
	blocked, err := rl.redis.TTL(ctx, blockKey).Result()
	if err != nil {
		return false, 0, err
	}
	if blocked > 0 {
		return false, blocked, nil
	}

	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}

	// Start the window on the first request
	if count == 1 {
		if err := rl.redis.Expire(ctx, key, rl.config.Window).Err(); err != nil {
			return false, 0, err
		}
	}

	if count > int64(rl.config.MaxRequests) {
		if rl.config.BlockTime <= 0 {
			ttl, err := rl.redis.TTL(ctx, key).Result()
			if err != nil || ttl <= 0 {
				ttl = rl.config.Window
			}
			return false, ttl, nil
		}

		if err := rl.redis.Set(ctx, blockKey, 1, rl.config.BlockTime).Err(); err != nil {
			return false, 0, err
		}
		rl.log.Warn("Client blocked after too many requests",
			zap.String("scope", scope),
			zap.String("client", client),
			zap.Duration("block_time", rl.config.BlockTime),
		)
		return false, rl.config.BlockTime, nil
	}

	return true, 0, nil
}
