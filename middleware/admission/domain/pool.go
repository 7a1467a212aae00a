package domain

import "context"

// Priority orders waiters on a SlotPool. Higher values win; ties are broken
// by arrival order (FIFO).
type Priority int

const (
	// AcceptPriority is the priority the accept gate uses to acquire a
	// connection-pool slot for a freshly accepted socket.
	AcceptPriority Priority = 0

	// DemotePriority is the priority a long task uses to re-acquire a
	// connection-pool slot on demotion. It must exceed AcceptPriority so a
	// demoting request is never starved by unbounded fresh accepts.
	DemotePriority Priority = 1000

	// LongTaskPriority is the priority a long task uses to acquire the
	// long-task pool itself, whether the acquire is immediate or the
	// product of a delayed start. A promoted long task waiting for a
	// long-task slot has no urgency advantage over its peers, so this is
	// the same value as AcceptPriority, named separately for call-site
	// clarity.
	LongTaskPriority Priority = 0
)

// Snapshot is a read-only view of a SlotPool's occupancy, safe to copy.
type Snapshot struct {
	Capacity  int
	Available int
	Waiting   int
}

// Token is a held or released handle to one unit of a SlotPool's capacity.
// A Token is returned by Acquire/TryAcquire and is valid until Release.
//
// Token is not safe to share across goroutines for writes; a long task owns
// at most one of each kind of token at a time and never hands the same
// Token to two concurrent releasers without synchronizing the release
// itself (Release is idempotent, so a race merely makes one caller's
// release a no-op).
type Token interface {
	// Priority is the priority this token was (re)acquired at.
	Priority() Priority

	// Released reports whether Release has already been called on this
	// token.
	Released() bool
}

// SlotPool is a bounded, priority-ordered semaphore. It is the sole
// synchronization primitive the admission controller uses to gate the
// connection pool and the long-task pool.
type SlotPool interface {
	// Acquire blocks until a slot is available or ctx is done, whichever
	// comes first. On success it returns a held Token. On ctx cancellation
	// it returns (nil, ctx.Err()).
	Acquire(ctx context.Context, priority Priority) (Token, error)

	// TryAcquire is Acquire with an already-expired deadline: it returns
	// immediately, never enqueuing a waiter.
	TryAcquire(priority Priority) (Token, bool)

	// Release returns tok's slot to the pool, or hands it directly to the
	// highest-priority waiter. Release is idempotent: releasing an
	// already-released token is a silent no-op.
	Release(tok Token)

	// Reacquire is valid only on an already-released token and is
	// equivalent to Release (a no-op, since tok is already released)
	// followed by Acquire at the given priority, except that it reuses
	// tok's identity. Implementations that treat tokens as plain values
	// may implement Reacquire as Acquire and discard the old token.
	Reacquire(ctx context.Context, tok Token, priority Priority) (Token, error)

	// Snapshot reports current occupancy. It never blocks and never
	// mutates pool state.
	Snapshot() Snapshot
}
