package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(ttl time.Duration) (*Timed, *time.Time) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewTimedWithClock(ttl, func() time.Time { return now })
	return c, &now
}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		op   string
		args []string
		want string
	}{
		{name: "no args", op: "members", want: "members"},
		{name: "one arg", op: "attendance", args: []string{"2025-03-01"}, want: "attendance|2025-03-01"},
		{name: "several args", op: "attendance", args: []string{"2025-03-01", "Choir"}, want: "attendance|2025-03-01|Choir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.op, tt.args...))
		})
	}
}

func TestGetReturnsFreshValue(t *testing.T) {
	c, now := newTestCache(5 * time.Minute)

	c.Set("members", []string{"M001"})
	*now = now.Add(4 * time.Minute)

	got, ok := c.Get("members")
	assert.True(t, ok)
	assert.Equal(t, []string{"M001"}, got)
}

func TestGetEvictsExpiredValue(t *testing.T) {
	c, now := newTestCache(5 * time.Minute)

	c.Set("members", []string{"M001"})
	*now = now.Add(5 * time.Minute)

	_, ok := c.Get("members")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry should be dropped on lookup")
}

func TestGetMissingKey(t *testing.T) {
	c, _ := newTestCache(5 * time.Minute)

	_, ok := c.Get("absent")
	assert.False(t, ok)
}

func TestSetOverwritesAndRestampsEntry(t *testing.T) {
	c, now := newTestCache(5 * time.Minute)

	c.Set("members", "old")
	*now = now.Add(4 * time.Minute)
	c.Set("members", "new")
	*now = now.Add(2 * time.Minute)

	got, ok := c.Get("members")
	assert.True(t, ok)
	assert.Equal(t, "new", got)
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache(5 * time.Minute)

	c.Set("members", 1)
	c.Set("attendance", 2)
	c.Invalidate("members")

	_, ok := c.Get("members")
	assert.False(t, ok)
	_, ok = c.Get("attendance")
	assert.True(t, ok)
}

func TestInvalidateAll(t *testing.T) {
	c, _ := newTestCache(5 * time.Minute)

	c.Set("members", 1)
	c.Set("attendance", 2)
	c.InvalidateAll()

	assert.Equal(t, 0, c.Len())
}

func TestOldestAge(t *testing.T) {
	c, now := newTestCache(10 * time.Minute)

	_, ok := c.OldestAge()
	assert.False(t, ok, "empty cache has no oldest entry")

	c.Set("members", 1)
	*now = now.Add(3 * time.Minute)
	c.Set("attendance", 2)
	*now = now.Add(1 * time.Minute)

	age, ok := c.OldestAge()
	assert.True(t, ok)
	assert.Equal(t, 4*time.Minute, age)
}
