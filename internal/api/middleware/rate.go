package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// Clients idle longer than this are forgotten. Zero keeps them forever.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the configuration used when limiting is on.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		Burst:             100,
		IdleTTL:           10 * time.Minute,
	}
}

// rateLimited is the body of a 429 response.
var rateLimited = gin.H{
	"error":             "rate_limited",
	"error_description": "rate limit exceeded, retry later",
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one limiter per client IP.
type limiterSet struct {
	cfg       RateLimitConfig
	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

func (s *limiterSet) get(ip string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.IdleTTL > 0 && now.Sub(s.lastSweep) > s.cfg.IdleTTL {
		for key, c := range s.clients {
			if now.Sub(c.lastSeen) > s.cfg.IdleTTL {
				delete(s.clients, key)
			}
		}
		s.lastSweep = now
	}

	c, ok := s.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)}
		s.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	set := &limiterSet{cfg: cfg, clients: make(map[string]*client), lastSweep: time.Now()}

	return func(c *gin.Context) {
		if !set.get(c.ClientIP(), time.Now()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, rateLimited)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a single limiter shared by all clients.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, rateLimited)
			return
		}
		c.Next()
	}
}
