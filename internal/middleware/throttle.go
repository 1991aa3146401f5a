package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// IPThrottle applies a per-client-IP token bucket to a route group.
// This is transport-level abuse protection; the forwarding guard's
// per-user sliding window is enforced separately in the service layer.
type IPThrottle struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
	maxAge   time.Duration
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPThrottle allows rps requests per second with the given burst.
func NewIPThrottle(rps float64, burst int) *IPThrottle {
	return &IPThrottle{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		maxAge:   10 * time.Minute,
	}
}

// Handler returns the gin middleware.
func (t *IPThrottle) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (t *IPThrottle) allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

// Sweep drops limiters not seen within maxAge and reports how many
// were evicted.
func (t *IPThrottle) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-t.maxAge)
	evicted := 0
	for ip, entry := range t.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(t.limiters, ip)
			evicted++
		}
	}
	return evicted
}
