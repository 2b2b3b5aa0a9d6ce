package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLimiterAllow(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	key := "test-ip"

	// Should allow burst size requests immediately
	for i := 0; i < 5; i++ {
		if !limiter.Allow(key) {
			t.Errorf("Request %d should be allowed (within burst)", i)
		}
	}

	// Next request should be denied
	if limiter.Allow(key) {
		t.Error("Request after burst should be denied")
	}

	// Wait for token replenishment (1 second = 1 token at 60/min)
	time.Sleep(time.Second)

	// Should allow again
	if !limiter.Allow(key) {
		t.Error("Request after waiting should be allowed")
	}
}

func TestLimiterMultipleClients(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	// Client A uses up their tokens
	for i := 0; i < 3; i++ {
		limiter.Allow("client-a")
	}

	// Client A is now rate limited
	if limiter.Allow("client-a") {
		t.Error("Client A should be rate limited")
	}

	// Client B should still have tokens
	if !limiter.Allow("client-b") {
		t.Error("Client B should not be rate limited")
	}
}

func TestLimiterTokenReplenishment(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 600, // 10 per second
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	key := "test"

	// Use the one token
	if !limiter.Allow(key) {
		t.Error("First request should be allowed")
	}

	// Should be denied
	if limiter.Allow(key) {
		t.Error("Second immediate request should be denied")
	}

	// Wait 100ms (should get 1 token at 10/sec)
	time.Sleep(110 * time.Millisecond)

	// Should be allowed again
	if !limiter.Allow(key) {
		t.Error("Request after 100ms should be allowed")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestsPerMinute != 120 {
		t.Errorf("Expected 120 requests/min, got %d", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 20 {
		t.Errorf("Expected burst size 20, got %d", cfg.BurstSize)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("Expected 1 minute cleanup interval, got %v", cfg.CleanupInterval)
	}
}

func TestLimiterStopTwice(t *testing.T) {
	limiter := New(DefaultConfig())
	limiter.Stop()
	limiter.Stop()
}

func TestMiddleware_RateLimited(t *testing.T) {
	limiter := New(Config{RequestsPerMinute: 1, BurstSize: 1})
	defer limiter.Stop()

	r := gin.New()
	r.Use(limiter.Middleware(func(*gin.Context) string { return "k" }))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", w.Code)
	}
}

func TestDailyQuota(t *testing.T) {
	q := NewDailyQuota(2)
	day := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return day }

	if rem, ok := q.Take("0xabc"); !ok || rem != 1 {
		t.Errorf("first take: got (%d, %v)", rem, ok)
	}
	if rem, ok := q.Take("0xabc"); !ok || rem != 0 {
		t.Errorf("second take: got (%d, %v)", rem, ok)
	}
	if _, ok := q.Take("0xabc"); ok {
		t.Error("third take should exceed the quota")
	}
	if _, ok := q.Take("0xdef"); !ok {
		t.Error("other wallets have their own quota")
	}

	day = day.Add(2 * time.Hour)
	if _, ok := q.Take("0xabc"); !ok {
		t.Error("quota should reset on the next UTC day")
	}
}

func TestDailyQuota_Disabled(t *testing.T) {
	q := NewDailyQuota(0)
	for i := 0; i < 100; i++ {
		if _, ok := q.Take("k"); !ok {
			t.Fatal("disabled quota should always allow")
		}
	}
}

func TestDailyQuota_MiddlewareSkipsEmptyKey(t *testing.T) {
	q := NewDailyQuota(1)
	r := gin.New()
	r.Use(q.Middleware(func(*gin.Context) string { return "" }))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusCreated) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
		if w.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i, w.Code)
		}
	}
}
