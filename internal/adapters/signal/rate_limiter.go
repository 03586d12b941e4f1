package signal

import (
	"sync"
	"time"

	"github.com/dkeye/voicelink/internal/app"
	"golang.org/x/time/rate"
)

const limiterSweepPeriod = time.Minute

// ConnectLimiter caps connect attempts per client.
type ConnectLimiter struct {
	mu        sync.Mutex
	limiters  map[app.ClientID]*rate.Limiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewConnectLimiter allows limit attempts per interval for each client.
// A non-positive limit disables limiting.
func NewConnectLimiter(limit int, interval time.Duration) *ConnectLimiter {
	l := &ConnectLimiter{
		limiters: make(map[app.ClientID]*rate.Limiter),
		limit:    rate.Inf,
		burst:    limit,
		now:      time.Now,
	}
	if limit > 0 && interval > 0 {
		l.limit = rate.Every(interval / time.Duration(limit))
	}
	return l
}

func (l *ConnectLimiter) Allow(id app.ClientID) bool {
	if l.limit == rate.Inf {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= limiterSweepPeriod {
		l.sweep(now)
	}
	lim, ok := l.limiters[id]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[id] = lim
	}
	return lim.AllowN(now, 1)
}

// sweep drops limiters that refilled completely; they behave like new ones.
func (l *ConnectLimiter) sweep(now time.Time) {
	for id, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, id)
		}
	}
	l.lastSweep = now
}

// Len reports how many clients are tracked.
func (l *ConnectLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
