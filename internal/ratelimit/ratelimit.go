package ratelimit

import (
	"sync"
	"time"

	"churchattend/internal/metrics"
)

// Default spacing between calls against the spreadsheet API.
const (
	DefaultReadInterval  = time.Second
	DefaultWriteInterval = 2 * time.Second
)

// Limiter spaces out calls per named operation. Each operation keeps the
// completion time of its previous call; the next call sleeps for whatever
// remains of the interval. The first call of an operation runs immediately.
type Limiter struct {
	mu    sync.Mutex
	last  map[string]time.Time
	now   func() time.Time
	sleep func(time.Duration)
}

// New returns a Limiter using the wall clock.
func New() *Limiter {
	return &Limiter{
		last:  make(map[string]time.Time),
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// NewWithClock returns a Limiter driven by the given clock and sleep
// functions. Tests use this to avoid real waiting.
func NewWithClock(now func() time.Time, sleep func(time.Duration)) *Limiter {
	return &Limiter{
		last:  make(map[string]time.Time),
		now:   now,
		sleep: sleep,
	}
}

// Do runs fn, first sleeping until at least interval has passed since the
// previous call of op completed. The stamp is taken after fn returns, so the
// interval is measured end-to-start regardless of how long fn itself runs.
func (l *Limiter) Do(op string, interval time.Duration, fn func() error) error {
	l.wait(op, interval)
	err := fn()
	l.mu.Lock()
	l.last[op] = l.now()
	l.mu.Unlock()
	return err
}

func (l *Limiter) wait(op string, interval time.Duration) {
	l.mu.Lock()
	prev, ok := l.last[op]
	l.mu.Unlock()
	if !ok {
		return
	}
	remaining := interval - l.now().Sub(prev)
	if remaining <= 0 {
		return
	}
	metrics.RateLimitWaitSeconds.WithLabelValues(op).Observe(remaining.Seconds())
	l.sleep(remaining)
}
