package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchattend/internal/auth"
	"churchattend/internal/cache"
	"churchattend/internal/ratelimit"
	"churchattend/internal/records"
	"churchattend/internal/sheets"
	"churchattend/internal/sheets/sheetstest"
)

func testFactory() Factory {
	return func() (*records.Store, *auth.Service) {
		fake := sheetstest.NewFake()
		conn := sheets.NewConn(func(ctx context.Context) (sheets.API, error) {
			return fake, nil
		}, time.Hour)
		store := records.NewStore(conn, cache.NewTimed(5*time.Minute), ratelimit.New(), time.Second, 2*time.Second)
		return store, auth.NewService(store, "test-secret")
	}
}

func newTestRegistry(idleTTL time.Duration) (*Registry, *time.Time) {
	r := NewRegistry(testFactory(), idleTTL)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestCreateAndGet(t *testing.T) {
	r, _ := newTestRegistry(time.Hour)

	w := r.Create("grace", auth.RoleStaff)
	require.NotEmpty(t, w.ID)
	require.NotNil(t, w.Store)
	require.NotNil(t, w.Auth)

	got, ok := r.Get(w.ID)
	require.True(t, ok)
	assert.Same(t, w, got)
	assert.Equal(t, 1, r.Len())
}

func TestWorkspacesAreIsolated(t *testing.T) {
	r, _ := newTestRegistry(time.Hour)

	a := r.Create("grace", auth.RoleStaff)
	b := r.Create("peter", auth.RoleViewer)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotSame(t, a.Store, b.Store, "each session owns its own store stack")
	assert.NotSame(t, a.Store.Cache(), b.Store.Cache())
	assert.Equal(t, 2, r.Len())
}

func TestGetUnknownID(t *testing.T) {
	r, _ := newTestRegistry(time.Hour)

	_, ok := r.Get("no-such-session")
	assert.False(t, ok)
}

func TestDropEndsSession(t *testing.T) {
	r, _ := newTestRegistry(time.Hour)

	w := r.Create("grace", auth.RoleStaff)
	r.Drop(w.ID)

	_, ok := r.Get(w.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestIdleWorkspacesAreSwept(t *testing.T) {
	r, now := newTestRegistry(30 * time.Minute)

	stale := r.Create("grace", auth.RoleStaff)
	*now = now.Add(20 * time.Minute)
	fresh := r.Create("peter", auth.RoleViewer)

	// Another 20 minutes pass: grace has been idle 40 minutes, peter 20.
	*now = now.Add(20 * time.Minute)

	_, ok := r.Get(stale.ID)
	assert.False(t, ok, "idle workspace should be gone")
	_, ok = r.Get(fresh.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestGetKeepsWorkspaceAlive(t *testing.T) {
	r, now := newTestRegistry(30 * time.Minute)

	w := r.Create("grace", auth.RoleStaff)
	for i := 0; i < 4; i++ {
		*now = now.Add(20 * time.Minute)
		_, ok := r.Get(w.ID)
		require.True(t, ok, "touched workspace must stay live")
	}

	assert.Equal(t, 80*time.Minute, w.Age(*now))
}
