package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles outbound messages per chat with a sliding window
// in Redis. Telegram rejects more than one message per second to the same
// chat, so the limiter keeps workers from burning retries on 429s. A Lua
// script makes the clean-count-add sequence atomic.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
}

// Sliding window check:
// 1. drop entries older than the window
// 2. count what remains
// 3. under the limit: record this send, return 1
// 4. otherwise return 0
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
else
    return 0
end
`)

func NewRateLimiter(redisClient *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
	}
}

func rlKey(userID int64) string {
	return fmt.Sprintf("rl:chat:%d", userID)
}

// Allow reports whether a message to this chat fits in the per-second
// budget. limit <= 0 disables the limiter. Redis failures fail open; the
// channel's own 429 handling is the backstop.
func (rl *RateLimiter) Allow(ctx context.Context, userID int64, limit int) bool {
	if limit <= 0 {
		return true
	}

	key := rlKey(userID)
	now := time.Now().UnixMilli()
	window := int64(1000)
	member := fmt.Sprintf("%d:%d", now, time.Now().UnixNano()%10000)

	result, err := rl.script.Run(ctx, rl.redisClient, []string{key},
		now, window, limit, member,
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "user_id", userID)
		return true
	}

	if result == 0 {
		rl.logger.Debug("rate limited", "user_id", userID, "limit", limit)
		return false
	}

	return true
}
