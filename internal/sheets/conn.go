package sheets

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultTTL is how long a connection handle is trusted before being redialed.
const DefaultTTL = time.Hour

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Dialer opens a fresh handle to the spreadsheet service.
type Dialer func(ctx context.Context) (API, error)

// Conn manages a spreadsheet connection handle. Every Ensure verifies the
// handle is actually live before handing it out; a handle older than the TTL
// is redialed outright. A dead handle gets one transparent reconnect, after
// which failures surface as ErrUnavailable. Connection trouble is never
// fatal to the process.
type Conn struct {
	dial Dialer
	ttl  time.Duration
	now  func() time.Time

	mu          sync.Mutex
	api         API
	connectedAt time.Time
}

// NewConn returns a disconnected manager that dials lazily on first Ensure.
func NewConn(dial Dialer, ttl time.Duration) *Conn {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Conn{dial: dial, ttl: ttl, now: time.Now}
}

// Ensure returns a live API handle, dialing or redialing as needed.
func (c *Conn) Ensure(ctx context.Context) (API, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.api != nil && c.now().Sub(c.connectedAt) < c.ttl {
		if err := c.api.Probe(ctx); err == nil {
			return c.api, nil
		}
		log.Printf("sheets: handle went stale, reconnecting")
	}

	api, err := c.connect(ctx)
	if err != nil {
		c.api = nil
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return api, nil
}

// connect dials and probes once. Caller holds the lock.
func (c *Conn) connect(ctx context.Context) (API, error) {
	api, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := api.Probe(ctx); err != nil {
		return nil, err
	}
	c.api = api
	c.connectedAt = c.now()
	return api, nil
}

// State reports whether a handle is currently held.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil {
		return Disconnected
	}
	return Connected
}

// Age reports how long the current handle has been held, and false when
// disconnected.
func (c *Conn) Age() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil {
		return 0, false
	}
	return c.now().Sub(c.connectedAt), true
}
