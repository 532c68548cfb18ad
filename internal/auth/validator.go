/*-------------------------------------------------------------------------
 *
 * validator.go
 *    Rate limiting for gateway callers
 *
 * Provides thread-safe rate limiting with per-caller tracking and
 * automatic reset based on time windows. The gateway has two static
 * trust domains (agent and approver), so keys are domain names rather
 * than per-user identifiers.
 *
 * IDENTIFICATION
 *    internal/auth/validator.go
 *
 *-------------------------------------------------------------------------
 */

package auth

import (
	"sync"
	"time"
)

type RateLimiter struct {
	limits map[string]*rateLimit
	mu     sync.Mutex
}

type rateLimit struct {
	count     int
	resetTime time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limits: make(map[string]*rateLimit),
	}
}

/* CheckLimit reports whether the caller is within its per-minute budget */
func (r *RateLimiter) CheckLimit(caller string, limitPerMin int) bool {
	if limitPerMin <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	rl, exists := r.limits[caller]

	if !exists || now.After(rl.resetTime) {
		r.limits[caller] = &rateLimit{
			count:     1,
			resetTime: now.Add(1 * time.Minute),
		}
		return true
	}

	if rl.count >= limitPerMin {
		return false
	}

	rl.count++
	return true
}
