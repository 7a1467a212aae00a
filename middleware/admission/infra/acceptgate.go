package infra

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"admission-gateway/middleware/admission/domain"
)

// AcceptGate wraps a net.Listener and blocks Accept until a connection-pool
// token is available.
//
// Go's net.Listener.Accept already blocks the calling goroutine until a
// connection arrives, so acquiring the token and waiting for a socket
// collapse into one step here: acquire the token first (this is the
// blocking point when the pool is full), then call the inner Accept. If the
// inner Accept fails for any reason, the token is released before returning
// so a failed accept never holds a slot.
type AcceptGate struct {
	net.Listener
	pool domain.SlotPool
}

// NewAcceptGate wraps inner with pool-gated accepts.
func NewAcceptGate(inner net.Listener, pool domain.SlotPool) *AcceptGate {
	return &AcceptGate{Listener: inner, pool: pool}
}

// Accept implements net.Listener.
func (g *AcceptGate) Accept() (net.Conn, error) {
	// Accept-gate acquires have no timeout in normal operation: the caller
	// blocks exactly because it must wait for a slot.
	tok, err := g.pool.Acquire(context.Background(), domain.AcceptPriority)
	if err != nil {
		return nil, err
	}

	conn, err := g.Listener.Accept()
	if err != nil {
		g.pool.Release(tok)
		return nil, err
	}

	gc := &GatedConn{Conn: conn, pool: g.pool, token: tok}
	gc.persistent.Store(true)
	return gc, nil
}

// GatedConn is the accepted socket plus its owned connection-pool token. Its
// Close releases the token exactly once, unless the token has already been
// borrowed and released by a long task's promotion — Release is idempotent,
// so Close after a promotion is a no-op on the pool side.
//
// GatedConn implements domain.Connection so the request interceptor can
// discover and borrow its token, and net.Conn (by embedding) so it is a
// drop-in replacement for the raw accepted socket.
type GatedConn struct {
	net.Conn
	pool domain.SlotPool

	mu         sync.Mutex
	token      domain.Token
	persistent atomic.Bool
	closeOnce  sync.Once
}

// HasToken implements domain.Connection.
func (c *GatedConn) HasToken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != nil
}

// BorrowToken implements domain.Connection. It releases the held token
// back to the connection pool and clears it, so a subsequent Close does not
// attempt to release it again.
func (c *GatedConn) BorrowToken() bool {
	c.mu.Lock()
	tok := c.token
	c.token = nil
	c.mu.Unlock()
	if tok == nil {
		return false
	}
	c.pool.Release(tok)
	return true
}

// RestoreToken implements domain.Connection.
func (c *GatedConn) RestoreToken(ctx context.Context, priority domain.Priority) error {
	tok, err := c.pool.Acquire(ctx, priority)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	return nil
}

// SetPersistent implements domain.Connection.
func (c *GatedConn) SetPersistent(persistent bool) { c.persistent.Store(persistent) }

// Persistent reports the current value set by SetPersistent. A freshly
// accepted connection starts persistent.
func (c *GatedConn) Persistent() bool { return c.persistent.Load() }

// Close releases any token still owned by this connection and closes the
// underlying socket exactly once.
func (c *GatedConn) Close() error {
	c.BorrowToken()
	var err error
	c.closeOnce.Do(func() { err = c.Conn.Close() })
	return err
}
