package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstSize         int // Defaults to 10
}

// tokenBucket implements a token bucket rate limiter.
type tokenBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

func (tb *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.last).Seconds()
	tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.last = now
}

// take consumes a token if one is available and returns the tokens left and
// the time until the bucket is full again.
func (tb *tokenBucket) take(now time.Time) (bool, int, time.Duration) {
	tb.refill(now)
	ok := tb.tokens >= 1.0
	if ok {
		tb.tokens--
	}
	missing := tb.capacity - tb.tokens
	untilFull := time.Duration(missing / tb.refillRate * float64(time.Second))
	return ok, int(tb.tokens), untilFull
}

// RateLimiter manages per-IP rate limiting.
type RateLimiter struct {
	config     RateLimiterConfig
	now        func() time.Time
	cleanupTTL time.Duration

	mu          sync.Mutex
	buckets     map[string]*tokenBucket
	lastCleanup time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 10
	}
	return &RateLimiter{
		config:     config,
		now:        time.Now,
		cleanupTTL: 5 * time.Minute,
		buckets:    make(map[string]*tokenBucket),
	}
}

// Allow consumes one request for ip.
func (rl *RateLimiter) Allow(ip string) bool {
	ok, _, _ := rl.take(ip)
	return ok
}

func (rl *RateLimiter) take(ip string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanupLocked(now)

	bucket, ok := rl.buckets[ip]
	if !ok {
		capacity := float64(rl.config.BurstSize)
		bucket = &tokenBucket{
			tokens:     capacity,
			capacity:   capacity,
			refillRate: float64(rl.config.RequestsPerMinute) / 60.0,
			last:       now,
		}
		rl.buckets[ip] = bucket
	}
	return bucket.take(now)
}

// cleanupLocked drops buckets idle for longer than cleanupTTL, at most once a minute.
func (rl *RateLimiter) cleanupLocked(now time.Time) {
	if now.Sub(rl.lastCleanup) < time.Minute {
		return
	}
	rl.lastCleanup = now
	for ip, bucket := range rl.buckets {
		if now.Sub(bucket.last) > rl.cleanupTTL {
			delete(rl.buckets, ip)
		}
	}
}

// Middleware returns an HTTP middleware that applies rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining, untilFull := rl.take(getClientIP(r))

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", rl.now().Add(untilFull).Unix()))

		if !ok {
			retryAfter := int(60.0/float64(rl.config.RequestsPerMinute)) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
				fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP address from the request.
// Checks X-Forwarded-For and X-Real-IP headers before falling back to RemoteAddr.
func getClientIP(r *http.Request) string {
	// Format: X-Forwarded-For: client, proxy1, proxy2
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		clientIP := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if isValidIP(clientIP) {
			return clientIP
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" && isValidIP(realIP) {
		return realIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if isValidIP(ip) {
		return ip
	}
	return "unknown"
}

func isValidIP(ipStr string) bool {
	return net.ParseIP(ipStr) != nil
}
