package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc maps a request to the bucket it draws tokens from.
type KeyFunc func(*gin.Context) string

// KeyByCallerOrIP buckets identified callers by user id and anonymous
// requests by client IP.
func KeyByCallerOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if id := CallerFrom(c); id != "" {
			return "user:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token bucket per key. Idle buckets are
// swept every sweepEvery lookups.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn KeyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	idleTTL time.Duration
	lookups int
}

const sweepEvery = 5000

// NewRateLimiter builds a limiter allowing rps tokens per second with the
// given burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByCallerOrIP()
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		idleTTL: 10 * time.Minute,
	}
}

func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Sweep before touching key so a stale bucket for key is also dropped.
	rl.lookups++
	if rl.lookups >= sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// IsRateBypass reports whether Idempotency marked the request as a replay.
func IsRateBypass(c *gin.Context) bool { return c.GetBool(ctxKeyRateBypass) }

// Handler rejects requests over the limit with 429 and Retry-After.
// Idempotent replays are never limited.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		lim := rl.limiterFor(rl.keyFn(c), time.Now())
		if lim.Allow() {
			c.Next()
			return
		}
		retry := 1
		if rl.limit > 0 {
			retry = max(1, int(math.Ceil(1/float64(rl.limit))))
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
