package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// SecurityHeaders adds the headers every JSON API response carries.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP and forgets idle clients after ttl.
type RateLimiter struct {
	mu    sync.Mutex
	ips   map[string]*limiterEntry
	rate  rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(r rate.Limit, burst int, ttl time.Duration) *RateLimiter {
	return &RateLimiter{
		ips:   make(map[string]*limiterEntry),
		rate:  r,
		burst: burst,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Allow reports whether ip may make a request now. Stale entries are evicted lazily.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.ips[ip]
	if !ok {
		if len(rl.ips) > 0 && len(rl.ips)%1024 == 0 {
			rl.evictLocked(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.ips[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) evictLocked(now time.Time) {
	for ip, e := range rl.ips {
		if now.Sub(e.lastSeen) > rl.ttl {
			delete(rl.ips, ip)
		}
	}
}

// RateLimitMiddleware limits each client IP to perMinute requests with the given burst.
// A non-positive perMinute disables limiting.
func RateLimitMiddleware(perMinute, burst int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := NewRateLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst, 5*time.Minute)

	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Please try again later."})
			return
		}
		c.Next()
	}
}

// CORS builds the cors middleware from a comma separated allowlist; "*" or empty allows all.
func CORS(allowedOrigins string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:       12 * time.Hour,
	}

	allowedOrigins = strings.TrimSpace(allowedOrigins)
	if allowedOrigins == "" || allowedOrigins == "*" {
		cfg.AllowAllOrigins = true
	} else {
		for _, o := range strings.Split(allowedOrigins, ",") {
			if o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o != "" {
				cfg.AllowOrigins = append(cfg.AllowOrigins, o)
			}
		}
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
