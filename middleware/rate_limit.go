package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"identity-hub/internal/domain"
	"identity-hub/metrics"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 3 * time.Minute
	limiterIdleTimeout     = 5 * time.Minute
)

// ipLimiter holds a rate limiter and the last time it was seen.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-client-IP token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a per-IP rate limiter and starts its cleanup loop.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     r,
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// NewRateLimiterPerMinute allows perMinute requests per IP per minute, all of which
// may arrive in one burst.
func NewRateLimiterPerMinute(perMinute int) *RateLimiter {
	perMinute = max(perMinute, 1)
	return NewRateLimiter(rate.Limit(float64(perMinute)/60), perMinute)
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, exists := rl.limiters[ip]; exists {
		l.lastSeen = time.Now()
		return l.limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[ip] = &ipLimiter{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, l := range rl.limiters {
				if time.Since(l.lastSeen) > limiterIdleTimeout {
					delete(rl.limiters, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Middleware returns an Echo middleware that enforces the rate limit.
// Preflight requests are not counted. Rejections return domain.ErrRateLimited for
// the HTTP error handler to render as 429.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	retryAfter := strconv.Itoa(max(int(math.Ceil(1/float64(rl.rate))), 1))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodOptions {
				return next(c)
			}

			if !rl.getLimiter(c.RealIP()).Allow() {
				metrics.RateLimitedTotal.Inc()
				c.Response().Header().Set("Retry-After", retryAfter)
				return domain.ErrRateLimited
			}

			return next(c)
		}
	}
}
