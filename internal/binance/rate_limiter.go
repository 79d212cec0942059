package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	// spotWeightPerMinute is the REST request weight budget per IP
	spotWeightPerMinute = 6000

	// klinesWeight is the request weight of /api/v3/klines
	klinesWeight = 2

	usedWeightHeader = "X-Mbx-Used-Weight-1m"
)

// AcquireResult is the outcome of a non-blocking TryAcquire
type AcquireResult struct {
	Acquired bool
	WaitTime time.Duration // Suggested wait when not acquired
	Reason   string
}

// RateLimiter tracks the per-minute request weight and honours exchange
// bans (HTTP 418/429) by refusing requests until the ban expires.
type RateLimiter struct {
	mu sync.Mutex

	maxWeight     int
	currentWeight int
	weightResetAt time.Time

	banUntil          time.Time
	consecutiveErrors int

	now func() time.Time
}

// NewRateLimiter creates a limiter that admits requests up to 60% of
// maxWeight per minute.
func NewRateLimiter(maxWeight int) *RateLimiter {
	if maxWeight <= 0 {
		maxWeight = spotWeightPerMinute
	}
	return &RateLimiter{
		maxWeight: maxWeight * 6 / 10,
		now:       time.Now,
	}
}

// TryAcquire atomically checks the budget and records weight
func (r *RateLimiter) TryAcquire(weight int) AcquireResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.After(r.weightResetAt) {
		r.currentWeight = 0
		r.weightResetAt = now.Add(time.Minute)
	}

	if now.Before(r.banUntil) {
		return AcquireResult{WaitTime: r.banUntil.Sub(now), Reason: "banned"}
	}
	if r.currentWeight+weight > r.maxWeight {
		return AcquireResult{WaitTime: r.weightResetAt.Sub(now), Reason: "weight_limit_exceeded"}
	}

	r.currentWeight += weight
	return AcquireResult{Acquired: true}
}

// Wait blocks until weight can be acquired or ctx is done
func (r *RateLimiter) Wait(ctx context.Context, weight int) error {
	for {
		res := r.TryAcquire(weight)
		if res.Acquired {
			return nil
		}
		timer := time.NewTimer(res.WaitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limiter (%s): %w", res.Reason, ctx.Err())
		case <-timer.C:
		}
	}
}

// UpdateFromHeader syncs the local counter with the weight the exchange reports
func (r *RateLimiter) UpdateFromHeader(value string) {
	used, err := strconv.Atoi(value)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if used > r.currentWeight {
		r.currentWeight = used
	}
	r.consecutiveErrors = 0
}

// RecordBan opens the breaker. retryAfter is the Retry-After header in
// seconds; without it the backoff doubles per consecutive ban, capped at 5m.
func (r *RateLimiter) RecordBan(retryAfter string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveErrors++
	var wait time.Duration
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		wait = time.Duration(secs) * time.Second
	} else {
		wait = time.Duration(1<<min(r.consecutiveErrors-1, 8)) * time.Second
		if wait > 5*time.Minute {
			wait = 5 * time.Minute
		}
	}
	r.banUntil = r.now().Add(wait)
	return r.banUntil
}

// Usage returns the weight used in the current window and the budget
func (r *RateLimiter) Usage() (current, budget int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentWeight, r.maxWeight
}
