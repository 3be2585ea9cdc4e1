package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"prescription-analytics-api/internal/dto"
)

// RateLimiter keeps a token bucket per client IP
type RateLimiter struct {
	clients     map[string]*clientLimiter
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	perMinute   int
	idleTimeout time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMin per client with
// the given burst
func NewRateLimiter(requestsPerMin, burst int, idleTimeout time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Minute
	}
	return &RateLimiter{
		clients:     make(map[string]*clientLimiter),
		limit:       rate.Limit(float64(requestsPerMin) / 60),
		burst:       burst,
		perMinute:   requestsPerMin,
		idleTimeout: idleTimeout,
	}
}

// RateLimit returns a gin middleware for rate limiting
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.limiterFor(c.ClientIP())

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))
		if !limiter.Allow() {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				dto.NewRateLimitResponse().WithRequestID(c.GetString(RequestIDKey)))
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))

		c.Next()
	}
}

func (rl *RateLimiter) limiterFor(clientIP string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, ok := rl.clients[clientIP]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[clientIP] = client
	}
	client.lastSeen = now
	return client.limiter
}

// Cleanup drops limiters idle for longer than the idle timeout
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-rl.idleTimeout)
	for ip, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until stop is closed
func (rl *RateLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-stop:
				return
			}
		}
	}()
}
