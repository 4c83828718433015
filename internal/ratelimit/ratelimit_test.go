package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock advances only when slept on, so tests never block for real.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	return NewWithClock(clock.Now, clock.Sleep), clock
}

func TestDoFirstCallRunsImmediately(t *testing.T) {
	l, clock := newFakeLimiter()

	called := false
	err := l.Do("read", time.Second, func() error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
	assert.Empty(t, clock.sleeps)
}

func TestDoSleepsRemainderOfInterval(t *testing.T) {
	l, clock := newFakeLimiter()

	assert.NoError(t, l.Do("read", time.Second, func() error { return nil }))
	clock.Advance(300 * time.Millisecond)
	assert.NoError(t, l.Do("read", time.Second, func() error { return nil }))

	assert.Equal(t, []time.Duration{700 * time.Millisecond}, clock.sleeps)
}

func TestDoSkipsSleepAfterIntervalElapsed(t *testing.T) {
	l, clock := newFakeLimiter()

	assert.NoError(t, l.Do("write", 2*time.Second, func() error { return nil }))
	clock.Advance(3 * time.Second)
	assert.NoError(t, l.Do("write", 2*time.Second, func() error { return nil }))

	assert.Empty(t, clock.sleeps)
}

func TestDoTracksOperationsIndependently(t *testing.T) {
	l, clock := newFakeLimiter()

	assert.NoError(t, l.Do("read", time.Second, func() error { return nil }))
	// A different operation is not throttled by the first one.
	assert.NoError(t, l.Do("write", 2*time.Second, func() error { return nil }))
	assert.Empty(t, clock.sleeps)

	// But a repeat of each is.
	assert.NoError(t, l.Do("read", time.Second, func() error { return nil }))
	assert.NoError(t, l.Do("write", 2*time.Second, func() error { return nil }))
	assert.Len(t, clock.sleeps, 2)
}

func TestDoMeasuresFromCompletion(t *testing.T) {
	l, clock := newFakeLimiter()

	// The first call itself takes 5s; the stamp is taken after it returns.
	assert.NoError(t, l.Do("read", time.Second, func() error {
		clock.Advance(5 * time.Second)
		return nil
	}))
	start := clock.now
	assert.NoError(t, l.Do("read", time.Second, func() error { return nil }))

	// Full interval slept because no time passed since completion.
	assert.Equal(t, []time.Duration{time.Second}, clock.sleeps)
	assert.Equal(t, start.Add(time.Second), clock.now)
}

func TestDoStampsEvenWhenFnFails(t *testing.T) {
	l, clock := newFakeLimiter()
	boom := errors.New("boom")

	err := l.Do("read", time.Second, func() error { return boom })
	assert.ErrorIs(t, err, boom)

	// The failed call still counts for spacing purposes.
	assert.NoError(t, l.Do("read", time.Second, func() error { return nil }))
	assert.Equal(t, []time.Duration{time.Second}, clock.sleeps)
}
