// Package ratelimit provides request rate limiting and the per-flagger daily
// flag quota for the walletscope API.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config configures rate limiting
type Config struct {
	// RequestsPerMinute is the max requests per key per minute
	RequestsPerMinute int
	// BurstSize allows brief bursts above the limit
	BurstSize int
	// CleanupInterval is how often to clean old entries
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 120,
		BurstSize:         20,
		CleanupInterval:   time.Minute,
	}
}

// KeyFunc derives the limiter key for a request. An empty key skips limiting.
type KeyFunc func(c *gin.Context) string

// ClientKey keys by bearer token prefix when present, otherwise by client IP.
func ClientKey(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		return "auth:" + h[:min(24, len(h))]
	}
	return c.ClientIP()
}

// Limiter tracks token buckets by key
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	clients map[string]*clientState
	stop    chan struct{}
	once    sync.Once
	now     func() time.Time
}

type clientState struct {
	tokens    float64
	lastCheck time.Time
}

// New creates a new rate limiter
func New(cfg Config) *Limiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	l := &Limiter{
		cfg:     cfg,
		clients: make(map[string]*clientState),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go l.cleanup()
	return l
}

// cleanup removes stale entries periodically
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.now().Add(-2 * time.Minute)
			for key, state := range l.clients {
				if state.lastCheck.Before(cutoff) {
					delete(l.clients, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Allow checks if a request should be allowed
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, exists := l.clients[key]

	if !exists {
		l.clients[key] = &clientState{
			tokens:    float64(l.cfg.BurstSize - 1),
			lastCheck: now,
		}
		return true
	}

	// Token bucket algorithm
	elapsed := now.Sub(state.lastCheck).Seconds()
	tokensPerSecond := float64(l.cfg.RequestsPerMinute) / 60.0
	state.tokens += elapsed * tokensPerSecond

	if state.tokens > float64(l.cfg.BurstSize) {
		state.tokens = float64(l.cfg.BurstSize)
	}

	state.lastCheck = now

	if state.tokens >= 1 {
		state.tokens--
		return true
	}

	return false
}

// Middleware returns a Gin middleware that rate limits by key.
func (l *Limiter) Middleware(keyFn KeyFunc) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = ClientKey
	}
	return func(c *gin.Context) {
		key := keyFn(c)
		if key != "" && !l.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"message":     "Too many requests. Please slow down.",
				"retry_after": 1,
			})
			return
		}
		c.Next()
	}
}

// DailyQuota is a fixed-window counter that resets at UTC midnight. It caps
// how many flags one wallet can submit per day.
type DailyQuota struct {
	limit int
	mu    sync.Mutex
	day   string
	used  map[string]int
	now   func() time.Time
}

// NewDailyQuota creates a quota of limit actions per key per UTC day.
// A limit below 1 disables the quota.
func NewDailyQuota(limit int) *DailyQuota {
	return &DailyQuota{limit: limit, used: make(map[string]int), now: time.Now}
}

// Take consumes one unit for key and reports whether it was within quota,
// along with the units remaining today.
func (q *DailyQuota) Take(key string) (remaining int, ok bool) {
	if q.limit < 1 {
		return 0, true
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	today := q.now().UTC().Format(time.DateOnly)
	if today != q.day {
		q.day = today
		q.used = make(map[string]int)
	}
	if q.used[key] >= q.limit {
		return 0, false
	}
	q.used[key]++
	return q.limit - q.used[key], true
}

// Middleware enforces the quota keyed by keyFn. Requests with an empty key
// pass through untouched.
func (q *DailyQuota) Middleware(keyFn KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			c.Next()
			return
		}
		remaining, ok := q.Take(key)
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Daily flag limit reached. Try again tomorrow.",
			})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}
