package application

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
)

// DefaultStartDelay is the default delay before a promotion takes effect.
const DefaultStartDelay = 100 * time.Millisecond

// LongTask is the per-request promotion/demotion state machine: idle,
// pending a delayed promotion, or promoted. It holds at most one
// connection-pool token (borrowed from its Connection) and at most one
// long-task-pool token, and exposes Start/Stop, scoped execution via
// StartWith, and current-task lookup via Current.
//
// A LongTask's state transitions are single-writer except for the
// delayed-start goroutine, which only ever touches state under mu: state
// transitions touch only fields owned by the long task, guarded by a
// per-long-task mutex; only the slot-pool mutex protects cross-request
// state.
type LongTask struct {
	pool domain.SlotPool // the long-task pool
	conn domain.Connection
	hadConnToken bool // recorded at construction; decides Stop's re-acquire
	startDelay   time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	state   domain.State
	token   domain.Token // held long-task token, nil unless Promoted
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a LongTask at construction.
type Option func(*LongTask)

// WithLogger attaches a logger for promotion/demotion/cancellation events.
// A nil logger (the default) disables logging.
func WithLogger(logger *zap.Logger) Option {
	return func(lt *LongTask) { lt.logger = logger }
}

// WithDelay overrides DefaultStartDelay as the delay StartDefault uses.
// Negative values are ignored.
func WithDelay(d time.Duration) Option {
	return func(lt *LongTask) {
		if d >= 0 {
			lt.startDelay = d
		}
	}
}

// New constructs a LongTask bound to conn (which may be nil if the
// request's connection did not expose one) and gated by pool, the
// long-task pool.
func New(pool domain.SlotPool, conn domain.Connection, opts ...Option) *LongTask {
	lt := &LongTask{
		pool:       pool,
		conn:       conn,
		startDelay: DefaultStartDelay,
	}
	if conn != nil {
		lt.hadConnToken = conn.HasToken()
	}
	for _, opt := range opts {
		opt(lt)
	}
	return lt
}

// Started reports whether the long task is Pending or Promoted.
func (lt *LongTask) Started() bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.state == domain.Pending || lt.state == domain.Promoted
}

// State returns the long task's current observable state.
func (lt *LongTask) State() domain.State {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.state
}

// Start promotes the long task, using delay as the wait before the
// promotion takes effect. delay == 0 acquires the long-task slot
// synchronously; delay > 0 schedules a cancellable delayed promotion and
// returns immediately. If the long task is already started, Start is a
// no-op and returns immediately.
func (lt *LongTask) Start(delay time.Duration) {
	lt.mu.Lock()
	if lt.state != domain.Idle {
		lt.mu.Unlock()
		return
	}

	if delay <= 0 {
		lt.mu.Unlock()
		lt.promote(context.Background())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lt.state = domain.Pending
	lt.cancel = cancel
	lt.done = done
	lt.mu.Unlock()

	go lt.runDelayed(ctx, delay, done)
}

// StartDefault starts the long task with its configured default delay.
func (lt *LongTask) StartDefault() { lt.Start(lt.startDelay) }

// StartWith runs fn with the long task promoted (or, if already started,
// simply runs fn) and guarantees Stop(force=false) on fn's return. fn runs
// even if the long task was already started; stopping it is then the
// caller's block exit.
func (lt *LongTask) StartWith(delay time.Duration, fn func()) {
	lt.Start(delay)
	defer lt.Stop(false)
	fn()
}

func (lt *LongTask) runDelayed(ctx context.Context, delay time.Duration, done chan struct{}) {
	defer close(done)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	}

	tok, err := lt.pool.Acquire(ctx, domain.LongTaskPriority)
	if err != nil {
		// Canceled before the long-task pool handed us a slot: Stop has
		// already reset state to Idle. Nothing to release.
		return
	}

	lt.mu.Lock()
	if lt.state != domain.Pending {
		// Stop raced the acquire and won: the pool's priority-biased
		// wakeup handed us a slot after Stop had already decided we were
		// done. Promote briefly, then demote immediately rather than
		// leaking the token.
		lt.mu.Unlock()
		lt.pool.Release(tok)
		return
	}
	lt.token = tok
	lt.state = domain.Promoted
	lt.mu.Unlock()

	lt.handOffConnection()
	lt.log("promoted", nil)
}

// promote performs the synchronous acquire-then-hand-off path used by
// Start with delay == 0.
func (lt *LongTask) promote(ctx context.Context) {
	tok, err := lt.pool.Acquire(ctx, domain.LongTaskPriority)
	if err != nil {
		lt.mu.Lock()
		lt.state = domain.Idle
		lt.mu.Unlock()
		return
	}

	lt.mu.Lock()
	lt.token = tok
	lt.state = domain.Promoted
	lt.mu.Unlock()

	lt.handOffConnection()
	lt.log("promoted", nil)
}

// handOffConnection releases the borrowed connection-pool token (if any)
// and marks the connection non-persistent. Both steps are mandatory once a
// long-task slot is held: keeping the connection alive after releasing its
// slot would let a later request on the same connection run without any
// slot at all.
func (lt *LongTask) handOffConnection() {
	if lt.conn == nil {
		return
	}
	lt.conn.BorrowToken()
	lt.conn.SetPersistent(false)
}

// Stop demotes the long task. If force is false and the long task was
// constructed with a connection token, Stop re-acquires a connection-pool
// slot at DemotePriority before returning. If force is true, that
// re-acquire is skipped — the caller asserts the connection is terminal.
//
// Stop is idempotent: calling it on an Idle long task is a no-op, and
// calling it twice concurrently releases the long-task token at most once.
func (lt *LongTask) Stop(force bool) {
	lt.mu.Lock()
	switch lt.state {
	case domain.Idle:
		lt.mu.Unlock()
		return

	case domain.Pending:
		cancel := lt.cancel
		done := lt.done
		lt.state = domain.Idle
		lt.cancel = nil
		lt.done = nil
		lt.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if done != nil {
			<-done
		}
		lt.log("canceled", nil)
		return

	case domain.Promoted:
		tok := lt.token
		lt.token = nil
		lt.state = domain.Idle
		lt.mu.Unlock()

		lt.pool.Release(tok)
		lt.log("demoted", nil)

		if !force && lt.hadConnToken && lt.conn != nil {
			if err := lt.conn.RestoreToken(context.Background(), domain.DemotePriority); err != nil {
				lt.log("demote-reacquire-failed", err)
			}
		}
		return
	}
}

func (lt *LongTask) log(event string, err error) {
	if lt.logger == nil {
		return
	}
	fields := []zap.Field{zap.String("event", event)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	lt.logger.Debug("admission long task", fields...)
}
