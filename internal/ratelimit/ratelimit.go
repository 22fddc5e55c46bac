// File: internal/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds rate limiting configuration.
type Config struct {
	WindowSize    time.Duration // time window for rate limiting
	MaxAttempts   int           // maximum attempts per window
	CleanupPeriod time.Duration // how often to clean up old entries
}

// DefaultStreamConfig limits how often one client may open a reply stream.
func DefaultStreamConfig() *Config {
	return &Config{
		WindowSize:    time.Minute,
		MaxAttempts:   20,
		CleanupPeriod: 10 * time.Minute,
	}
}

type attemptRecord struct {
	count     int
	firstSeen time.Time
}

// MemoryRateLimiter implements in-memory per-identifier rate limiting.
type MemoryRateLimiter struct {
	config   *Config
	attempts map[string]*attemptRecord
	mu       sync.Mutex
	stopCh   chan struct{}
}

func NewMemoryRateLimiter(config *Config) *MemoryRateLimiter {
	limiter := &MemoryRateLimiter{
		config:   config,
		attempts: make(map[string]*attemptRecord),
		stopCh:   make(chan struct{}),
	}
	go limiter.cleanupLoop()
	return limiter
}

// Allow checks whether a request from the identifier should be allowed and
// returns the remaining budget and the time the window resets.
func (rl *MemoryRateLimiter) Allow(identifier string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	record, ok := rl.attempts[identifier]
	if !ok || now.Sub(record.firstSeen) > rl.config.WindowSize {
		rl.attempts[identifier] = &attemptRecord{count: 1, firstSeen: now}
		return true, rl.config.MaxAttempts - 1, now.Add(rl.config.WindowSize)
	}

	record.count++
	reset := record.firstSeen.Add(rl.config.WindowSize)
	if record.count > rl.config.MaxAttempts {
		return false, 0, reset
	}
	return true, rl.config.MaxAttempts - record.count, reset
}

func (rl *MemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *MemoryRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for identifier, record := range rl.attempts {
		if now.Sub(record.firstSeen) > rl.config.WindowSize {
			delete(rl.attempts, identifier)
		}
	}
}

// Close stops the cleanup goroutine.
func (rl *MemoryRateLimiter) Close() {
	close(rl.stopCh)
}

// GetClientIP extracts the real client IP from the request, honoring proxy
// headers.
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
