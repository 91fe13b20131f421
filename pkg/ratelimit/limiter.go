package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages named rate limiters, one per platform API.
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter registers a limiter for a platform name.
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the named limiter allows an event. Unknown names
// pass through so a missing limiter never blocks a publish.
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return nil
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now.
func (m *MultiLimiter) Allow(name string) (bool, error) {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Allow(), nil
}

// NewDefaultLimiter creates limiters tuned to the platform API quotas.
func NewDefaultLimiter() *MultiLimiter {
	m := NewMultiLimiter()

	// Telegram bot API: 30 msg/s global, stay well under
	m.AddLimiter("tg", 20, 5)

	// VK: 3 requests per second per token
	m.AddLimiter("vk", 3, 3)

	// OK: 10 requests per second per app
	m.AddLimiter("ok", 5, 5)

	// Instagram Graph: 200 calls per hour
	m.AddLimiter("ig", 200.0/3600, 5)

	// Max bot API
	m.AddLimiter("max", 5, 5)

	return m
}
