package domain

import "context"

// Connection is the subset of an accepted connection a long task needs: a
// way to discover and borrow its connection-pool token, a way to hand one
// back on demotion, and a way to mark the connection non-persistent once
// its token has been handed back to the accept gate.
//
// The pool a connection's token belongs to is deliberately hidden behind
// this interface: a long task never touches a domain.SlotPool directly for
// the connection side, only for its own long-task pool. This keeps
// discovering a token from the request's connection a matter of a type
// assertion against Connection, not a multi-hop walk through concrete
// types.
//
// A request whose connection does not implement Connection (or whose
// HasToken reports false) is still promotable: the long task simply has
// nothing to borrow or hand back, and operates as a pure long-task-pool
// gate. This is a reduced mode, not an error.
type Connection interface {
	// HasToken reports whether this connection currently holds a
	// connection-pool token.
	HasToken() bool

	// BorrowToken releases the connection's currently held token back to
	// its owning pool, unblocking the accept gate. Returns false if no
	// token was held (already borrowed, or never gated).
	BorrowToken() bool

	// RestoreToken re-acquires a connection-pool token at the given
	// priority, blocking until ctx is done or a slot becomes available.
	// It is a no-op returning nil if this connection has no pool to
	// borrow from.
	RestoreToken(ctx context.Context, priority Priority) error

	// SetPersistent controls whether the transport may reuse this
	// connection for a subsequent request. Implementations that cannot
	// support the flag should make SetPersistent a no-op rather than
	// erroring; the caller treats it as best-effort.
	SetPersistent(persistent bool)
}
