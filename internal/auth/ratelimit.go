package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultOperatorRate  = 5
	defaultOperatorBurst = 10
	limiterTTL           = 10 * time.Minute
)

// OperatorLimiter keeps one token bucket per operator id.
type OperatorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter *rate.Limiter
	expires time.Time
}

// NewOperatorLimiter creates a limiter allowing perSecond requests with the
// given burst. Zero values fall back to the defaults.
func NewOperatorLimiter(perSecond float64, burst int) *OperatorLimiter {
	limit := rate.Limit(perSecond)
	if perSecond == 0 {
		limit = defaultOperatorRate
	}
	if burst == 0 {
		burst = defaultOperatorBurst
	}
	return &OperatorLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		ttl:      limiterTTL,
		now:      time.Now,
	}
}

// Allow consumes one token from the operator's bucket.
func (l *OperatorLimiter) Allow(operatorID string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[operatorID]
	if !ok || now.After(entry.expires) {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[operatorID] = entry
	}
	entry.expires = now.Add(l.ttl)
	l.evict(now)
	return entry.limiter.AllowN(now, 1)
}

// evict drops idle buckets. Caller holds mu.
func (l *OperatorLimiter) evict(now time.Time) {
	for id, entry := range l.limiters {
		if now.After(entry.expires) {
			delete(l.limiters, id)
		}
	}
}
