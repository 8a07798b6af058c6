// ratelimit.go enforces per-client request budgets and answers 429 with a
// Retry-After header once a client's budget is spent.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate allowed per client
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed; 0 means RequestsPerMinute
	BurstSize int
	// CleanupInterval is how often idle memory buckets are evicted
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
		BurstSize:         30,
		CleanupInterval:   5 * time.Minute,
	}
}

func (c RateLimitConfig) burst() int {
	if c.BurstSize > 0 {
		return c.BurstSize
	}
	return c.RequestsPerMinute
}

// RateLimitResult is the outcome of a single Allow call.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
	// Limit is the advertised requests-per-minute for X-RateLimit-Limit.
	Limit() int
}

// idleTTL is how long a memory bucket may sit unused before eviction.
const idleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory. Limits
// are per replica.
type MemoryLimiter struct {
	config   RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryLimiter creates a limiter and starts its cleanup goroutine; call
// Stop to release it.
func NewMemoryLimiter(config RateLimitConfig) *MemoryLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	ml := &MemoryLimiter{
		config:   config,
		visitors: make(map[string]*visitor),
		stopCh:   make(chan struct{}),
	}
	go ml.cleanup()
	return ml
}

func (ml *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(ml.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ml.evictIdle(time.Now())
		case <-ml.stopCh:
			return
		}
	}
}

func (ml *MemoryLimiter) evictIdle(now time.Time) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	for key, v := range ml.visitors {
		if now.Sub(v.lastSeen) > idleTTL {
			delete(ml.visitors, key)
		}
	}
}

func (ml *MemoryLimiter) bucket(key string, now time.Time) *rate.Limiter {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	v, ok := ml.visitors[key]
	if !ok {
		perSecond := rate.Limit(float64(ml.config.RequestsPerMinute) / 60)
		v = &visitor{limiter: rate.NewLimiter(perSecond, ml.config.burst())}
		ml.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Allow consumes one token from key's bucket.
func (ml *MemoryLimiter) Allow(_ context.Context, key string) (RateLimitResult, error) {
	now := time.Now()
	lim := ml.bucket(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return RateLimitResult{RetryAfter: time.Minute}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return RateLimitResult{RetryAfter: delay}, nil
	}
	remaining := int(math.Max(0, math.Floor(lim.TokensAt(now))))
	return RateLimitResult{Allowed: true, Remaining: remaining}, nil
}

// Limit returns the configured requests per minute.
func (ml *MemoryLimiter) Limit() int { return ml.config.RequestsPerMinute }

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (ml *MemoryLimiter) Stop() {
	ml.stopOnce.Do(func() { close(ml.stopCh) })
}

// RedisLimiter shares budgets across replicas using the GCRA implementation
// in redis_rate. Redis errors fail open.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisLimiter wraps an existing client. Keys are namespaced under prefix.
func NewRedisLimiter(rdb redis.UniversalClient, config RateLimitConfig, prefix string) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  config.burst(),
			Period: time.Minute,
		},
		prefix: prefix,
	}
}

// Allow asks redis for one unit of key's budget.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	res, err := rl.limiter.Allow(ctx, rl.prefix+key, rl.limit)
	if err != nil {
		return RateLimitResult{Allowed: true}, fmt.Errorf("redis rate limit: %w", err)
	}
	return RateLimitResult{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}

// Limit returns the configured requests per minute.
func (rl *RedisLimiter) Limit() int { return rl.limit.Rate }

// getRateLimitKey keys by caller address when one has been resolved and by
// client IP otherwise.
func getRateLimitKey(c *gin.Context) string {
	if caller, ok := GetCaller(c); ok {
		return "caller:" + caller.Hex()
	}
	return "ip:" + c.ClientIP()
}

// retryAfterSeconds rounds d up to whole seconds, minimum 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// RateLimitMiddleware rejects requests over budget with 429. A limiter error
// is logged and the request proceeds.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	limitHeader := strconv.Itoa(limiter.Limit())
	return func(c *gin.Context) {
		key := getRateLimitKey(c)
		res, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limitHeader)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(res.RetryAfter)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
