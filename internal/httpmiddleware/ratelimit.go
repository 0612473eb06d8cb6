package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"presensi/internal/auth"
)

// SimpleTokenBucket is an in-memory rate limiter keyed by session subject,
// falling back to client IP for anonymous requests.
type SimpleTokenBucket struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates limiter with capacity tokens and rate per minute.
func NewSimpleTokenBucket(capacity, perMinute int) *SimpleTokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &SimpleTokenBucket{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
		now:      time.Now,
	}
}

// GinMiddleware returns gin handler enforcing per-caller limits. Mount it
// after auth.RequireSession to limit by session.
func (l *SimpleTokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rate <= 0 {
			c.Next()
			return
		}
		if !l.allow(callerKey(c)) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func callerKey(c *gin.Context) string {
	if claims, ok := auth.FromContext(c); ok && claims.Subject != "" {
		return "sub:" + claims.Subject
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func (l *SimpleTokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := l.now()
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
