// Package ratelimit provides per-key token bucket limiting.
package ratelimit

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	defaultBurst = 5
	defaultIdle  = 10 * time.Minute
)

// Limiter keeps one token bucket per key. Buckets unused for the idle period are evicted;
// by then they have refilled, so eviction never loosens the limit.
type Limiter struct {
	limit    rate.Limit
	burst    int
	limiters *gocache.Cache
}

// New creates a limiter allowing perSecond events per key with the given burst.
func New(perSecond float64, burst int, idle time.Duration) *Limiter {
	if burst <= 0 {
		burst = defaultBurst
	}
	if idle <= 0 {
		idle = defaultIdle
	}

	return &Limiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: gocache.New(idle, idle),
	}
}

// Allow reports whether an event for key may happen now, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Interval is the time it takes one token to refill.
func (l *Limiter) Interval() time.Duration {
	if l.limit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l.limit))
}

func (l *Limiter) get(key string) *rate.Limiter {
	if v, found := l.limiters.Get(key); found {
		limiter := v.(*rate.Limiter)
		// Touch to push out the idle expiry.
		l.limiters.SetDefault(key, limiter)
		return limiter
	}

	limiter := rate.NewLimiter(l.limit, l.burst)
	if err := l.limiters.Add(key, limiter, gocache.DefaultExpiration); err != nil {
		// Another request created it first
		if v, found := l.limiters.Get(key); found {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	return l.limiters.ItemCount()
}
