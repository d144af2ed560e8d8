package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultRateLimitGroup = "DEFAULT"

	// Buckets idle longer than this are dropped on the next sweep.
	bucketIdleTTL = time.Hour
)

// RateLimitRule describes a token-bucket refill rate (tokens/sec) and
// burst size.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

// RateLimitConfig maps request groups to rules. Requests whose group has
// no rule pass through unlimited.
type RateLimitConfig struct {
	Rules        map[string]RateLimitRule
	DefaultGroup string
	GroupFor     func(*gin.Context) string
	Limiter      *RateLimiter
}

// RateLimiter tracks token buckets per principal+group.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	now     func() time.Time
	sweepAt time.Time
}

type rateBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter constructs a RateLimiter; now may be nil for wall clock.
func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		buckets: make(map[string]*rateBucket),
		now:     now,
	}
}

// RateLimit enforces per-principal token-bucket limits on grouped routes.
// The principal is the authenticated user (or guest) id, falling back to
// the client IP.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nil)
	}
	if cfg.DefaultGroup == "" {
		cfg.DefaultGroup = defaultRateLimitGroup
	}
	return func(c *gin.Context) {
		group := cfg.DefaultGroup
		if cfg.GroupFor != nil {
			if g := strings.TrimSpace(cfg.GroupFor(c)); g != "" {
				group = g
			}
		}
		rule, limited := cfg.Rules[group]
		if !limited {
			c.Next()
			return
		}

		principal := strings.TrimSpace(UserIDFromContext(c))
		if principal == "" {
			principal = strings.TrimSpace(c.ClientIP())
		}

		allowed, retryAfter := cfg.Limiter.Allow(principal+"|"+group, rule)
		if allowed {
			c.Next()
			return
		}
		rejectRateLimited(c, retryAfter)
	}
}

func rejectRateLimited(c *gin.Context, retryAfter time.Duration) {
	retryAfterMs := int(retryAfter / time.Millisecond)
	if retryAfterMs <= 0 {
		retryAfterMs = 1000
	}
	retryAfterSeconds := int(math.Ceil(float64(retryAfterMs) / 1000.0))
	if retryAfterSeconds <= 0 {
		retryAfterSeconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":        "rate_limited",
		"retryAfterMs": retryAfterMs,
	})
	c.Abort()
}

// Allow reports whether the key may proceed under the rule, and how long
// to wait otherwise.
func (l *RateLimiter) Allow(key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil || rule.Rate <= 0 || rule.Burst <= 0 {
		return true, 0
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeSweep(now)

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &rateBucket{tokens: float64(rule.Burst), lastRefill: now}
		l.buckets[key] = bucket
	}
	if elapsed := now.Sub(bucket.lastRefill).Seconds(); elapsed > 0 {
		bucket.tokens = math.Min(float64(rule.Burst), bucket.tokens+elapsed*rule.Rate)
		bucket.lastRefill = now
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true, 0
	}

	waitSec := (1 - bucket.tokens) / rule.Rate
	if waitSec < 0 {
		waitSec = 0
	}
	return false, time.Duration(math.Ceil(waitSec*1000.0)) * time.Millisecond
}

// maybeSweep drops buckets that have been idle past the TTL. Called with
// the mutex held.
func (l *RateLimiter) maybeSweep(now time.Time) {
	if now.Before(l.sweepAt) {
		return
	}
	l.sweepAt = now.Add(bucketIdleTTL)
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastRefill) > bucketIdleTTL {
			delete(l.buckets, key)
		}
	}
}
