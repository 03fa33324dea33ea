// Package limiter holds one token bucket per platform API key.
package limiter

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"likeness/internal/ratelimit/models"
)

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// KeyLimiter allows ratePerSec sustained requests per key with bursts up to
// burst. Idle keys are forgotten after idleTTL.
type KeyLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

func New(ratePerSec float64, burst int, idleTTL time.Duration) *KeyLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &KeyLimiter{
		limiters: make(map[string]*keyLimiter),
		rate:     rate.Limit(ratePerSec),
		burst:    burst,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// Allow consumes one token for key.
func (l *KeyLimiter) Allow(key string) models.Result {
	now := l.now()
	lim := l.limiterFor(key, now)

	res := models.Result{Limit: l.burst, ResetAt: now}
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		res.RetryAfter = 1
		return res
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = max(1, int(math.Ceil(delay.Seconds())))
		res.ResetAt = now.Add(delay)
		return res
	}

	res.Allowed = true
	tokens := lim.TokensAt(now)
	res.Remaining = max(0, int(tokens))
	if missing := float64(l.burst) - tokens; missing > 0 && l.rate > 0 {
		res.ResetAt = now.Add(time.Duration(missing / float64(l.rate) * float64(time.Second)))
	}
	return res
}

func (l *KeyLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if kl, ok := l.limiters[key]; ok {
		kl.lastAccess = now
		return kl.limiter
	}
	kl := &keyLimiter{limiter: rate.NewLimiter(l.rate, l.burst), lastAccess: now}
	l.limiters[key] = kl
	return kl.limiter
}

// Cleanup drops limiters idle for longer than idleTTL and returns how many
// remain.
func (l *KeyLimiter) Cleanup() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, kl := range l.limiters {
		if now.Sub(kl.lastAccess) > l.idleTTL {
			delete(l.limiters, key)
		}
	}
	return len(l.limiters)
}

// Len reports how many keys hold a limiter.
func (l *KeyLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
