// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a process-local token-bucket rate limiter with
// per-client buckets and opportunistic eviction of idle ones. The router
// installs two instances: a general one for the whole API and a tighter one
// on the generate endpoint, since every generate call consumes a sequence
// value. Idempotent replays (see IdempotencyValidator) skip both.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// HeaderClientID lets an upstream ERP gateway name the calling workstation.
// Without it clients are keyed by IP.
const HeaderClientID = "X-Client-ID"

// maxClientIDLen bounds HeaderClientID values; longer ones fall back to IP.
const maxClientIDLen = 64

// KeyFunc maps a request to its bucket identity.
type KeyFunc func(*gin.Context) string

// ClientID identifies the caller as "client:<X-Client-ID>" when the header is
// present and short, otherwise as "ip:<addr>". Idempotency records and rate
// buckets are both scoped by it.
func ClientID(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(HeaderClientID)); v != "" && len(v) <= maxClientIDLen {
		return "client:" + v
	}
	return "ip:" + c.ClientIP()
}

// KeyByClient returns a KeyFunc using ClientID.
func KeyByClient() KeyFunc { return ClientID }

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces rps/burst per key. Safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    KeyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
	now      func() time.Time
}

// NewRateLimiter builds a limiter. burst <= 0 is coerced to 1; a nil keyFn
// keys by ClientID.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = ClientID
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
		now:      time.Now,
	}
}

// getVisitor returns the limiter for key, creating it if needed. Every 5000
// lookups idle buckets are evicted first, so a stale bucket being fetched is
// replaced by a fresh one.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked the request as a
// replay.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the limiting middleware. Rejected requests get 429 with
// Retry-After and the standard error envelope.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		if rl.getVisitor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
