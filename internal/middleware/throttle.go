package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Throttle is an in-process token bucket per client IP. It guards endpoints that
// call out to third parties and must keep working when the cache is down.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*throttleEntry
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewThrottle(perSecond float64, burst int) *Throttle {
	return &Throttle{
		limiters: make(map[string]*throttleEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (t *Throttle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entry, ok := t.limiters[key]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than the idle window.
func (t *Throttle) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.idle)
	removed := 0
	for key, entry := range t.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(t.limiters, key)
			removed++
		}
	}
	return removed
}

func (t *Throttle) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}
