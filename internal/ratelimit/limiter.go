package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Idle entries are evicted during Allow once they have not been seen
// for this long, instead of a randomized sampling cleanup.
const entryTTL = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserLimiter applies a per-user token bucket. It is safe for
// concurrent use and evicts idle users lazily.
type UserLimiter struct {
	mu        sync.Mutex
	users     map[string]*entry
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// New builds a limiter allowing perMinute sustained requests per user
// with the given burst.
func New(perMinute, burst int) *UserLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &UserLimiter{
		users: make(map[string]*entry),
		limit: rate.Limit(float64(perMinute) / 60),
		burst: burst,
		now:   time.Now,
	}
}

// Allow reports whether the user may proceed with one more request.
func (l *UserLimiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > entryTTL {
		l.sweep(now)
		l.lastSweep = now
	}

	e, ok := l.users[userID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *UserLimiter) sweep(now time.Time) {
	for id, e := range l.users {
		if now.Sub(e.lastSeen) > entryTTL {
			delete(l.users, id)
		}
	}
}
