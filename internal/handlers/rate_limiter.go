package handlers

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type rateLimiter interface {
	Allow(key string) bool
}

// clientLimiter hands every client key its own token bucket that refills to
// burst over one window. Buckets idle for longer than idleAfter are evicted
// the next time a new client shows up.
type clientLimiter struct {
	every     rate.Limit
	burst     int
	idleAfter time.Duration
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(burst int, window time.Duration, clock func() time.Time) rateLimiter {
	if burst <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &clientLimiter{
		every:     rate.Limit(float64(burst) / window.Seconds()),
		burst:     burst,
		idleAfter: window,
		now:       clock,
		buckets:   make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}
	at := l.now()

	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		l.evictIdleLocked(at)
		bucket = &clientBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = at
	l.mu.Unlock()

	return bucket.limiter.AllowN(at, 1)
}

func (l *clientLimiter) evictIdleLocked(at time.Time) {
	for key, bucket := range l.buckets {
		if at.Sub(bucket.lastSeen) > l.idleAfter {
			delete(l.buckets, key)
		}
	}
}
