// Package session owns the per-login workspaces. Every login gets its own
// connection, cache and rate limiter, so no two sessions ever share mutable
// store state.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"churchattend/internal/auth"
	"churchattend/internal/records"
)

// Workspace is the store stack one login session works through.
type Workspace struct {
	ID       string
	Username string
	Role     string

	Store *records.Store
	Auth  *auth.Service

	mu        sync.Mutex
	createdAt time.Time
	lastSeen  time.Time
}

// NewWorkspace builds a standalone workspace outside any registry. The login
// endpoints authenticate through one of these before any session exists.
func NewWorkspace(store *records.Store, authSvc *auth.Service) *Workspace {
	now := time.Now()
	return &Workspace{
		ID:        uuid.NewString(),
		Store:     store,
		Auth:      authSvc,
		createdAt: now,
		lastSeen:  now,
	}
}

// Lock serializes work within this session. The store stack underneath is
// single-session by contract, so the HTTP layer holds the lock for the whole
// of each request that touches the workspace.
func (w *Workspace) Lock() { w.mu.Lock() }

// Unlock releases the session for the next request.
func (w *Workspace) Unlock() { w.mu.Unlock() }

// Age reports how long ago the workspace was created.
func (w *Workspace) Age(now time.Time) time.Duration {
	return now.Sub(w.createdAt)
}

// Factory builds the store stack for one new workspace.
type Factory func() (*records.Store, *auth.Service)

// Registry hands out workspaces by session ID. The registry itself is shared
// across requests and locked; the workspaces it holds are not, matching the
// single-session contract of the store stack. Idle workspaces are swept
// lazily whenever the registry is touched.
type Registry struct {
	factory Factory
	idleTTL time.Duration
	now     func() time.Time

	mu sync.Mutex
	ws map[string]*Workspace
}

// DefaultIdleTTL matches the connection handle lifetime: a workspace idle
// that long holds nothing worth keeping.
const DefaultIdleTTL = time.Hour

// NewRegistry returns an empty registry minting workspaces with factory.
func NewRegistry(factory Factory, idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Registry{
		factory: factory,
		idleTTL: idleTTL,
		now:     time.Now,
		ws:      make(map[string]*Workspace),
	}
}

// Create mints a workspace for one authenticated login and returns it.
func (r *Registry) Create(username, role string) *Workspace {
	store, authSvc := r.factory()
	now := r.now()
	w := &Workspace{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		Store:     store,
		Auth:      authSvc,
		createdAt: now,
		lastSeen:  now,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep(now)
	r.ws[w.ID] = w
	return w
}

// Get returns the workspace for a session ID and marks it as just used.
// Expired and unknown IDs both report false.
func (r *Registry) Get(id string) (*Workspace, bool) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep(now)
	w, ok := r.ws[id]
	if !ok {
		return nil, false
	}
	w.lastSeen = now
	return w, true
}

// Drop removes a workspace, ending the session.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ws, id)
}

// Len reports how many workspaces are currently live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ws)
}

// sweep drops workspaces idle past the TTL. Caller holds the lock.
func (r *Registry) sweep(now time.Time) {
	for id, w := range r.ws {
		if now.Sub(w.lastSeen) >= r.idleTTL {
			delete(r.ws, id)
		}
	}
}
