package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/pkg/response"
)

// Counter counts hits on key inside a fixed window and reports how long
// the window has left.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisCounter shares windows across replicas.
type RedisCounter struct {
	redis *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{redis: client}
}

func (rc *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := rc.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		rc.redis.Expire(ctx, key, window)
	}
	ttl, err := rc.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return count, ttl, nil
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryCounter keeps windows in process for single-instance deployments.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*memoryWindow), now: time.Now}
}

func (mc *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	w, ok := mc.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		mc.windows[key] = w
	}
	w.count++

	// drop stale windows while we hold the lock
	for k, other := range mc.windows {
		if !now.Before(other.resetAt) {
			delete(mc.windows, k)
		}
	}
	return w.count, w.resetAt.Sub(now), nil
}

type RateLimiter struct {
	counter Counter
	logger  arbor.ILogger
}

func NewRateLimiter(counter Counter, logger arbor.ILogger) *RateLimiter {
	return &RateLimiter{counter: counter, logger: logger}
}

// Limit allows maxRequests per window for each user, or for each client IP
// on unauthenticated routes. A non-positive maxRequests disables the limit.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if maxRequests <= 0 {
			return c.Next()
		}

		subject := GetUserID(c)
		if subject == "" {
			subject = "ip:" + c.IP()
		}
		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, subject)

		count, ttl, err := rl.counter.Incr(c.UserContext(), key, window)
		if err != nil {
			// the limiter fails open
			rl.logger.Warn().Err(err).Str("key", key).Msg("Rate limit counter unavailable")
			return c.Next()
		}

		if count > int64(maxRequests) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(maxRequests-int(count)))
		return c.Next()
	}
}

func (rl *RateLimiter) RenderLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("render", maxPerHour, time.Hour)
}

func (rl *RateLimiter) OverlayLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("overlay", maxPerHour, time.Hour)
}

func (rl *RateLimiter) UploadLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("upload", maxPerHour, time.Hour)
}

// ScriptLimit covers the chat model endpoints
func (rl *RateLimiter) ScriptLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("script", maxPerHour, time.Hour)
}
