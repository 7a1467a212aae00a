package admission

import (
	"context"
	"net"
	"net/http"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"go.uber.org/zap"
)

// Controller owns the connection-admission pool and the long-task pool and
// wires them into a listener and an HTTP handler chain.
type Controller struct {
	cfg          Config
	connPool     domain.SlotPool
	longTaskPool domain.SlotPool
	enabled      bool
	logger       *zap.Logger
}

// New constructs a Controller from cfg. A nil logger disables admission
// logging.
func New(cfg Config, logger *zap.Logger) *Controller {
	cfg = cfg.normalize()
	c := &Controller{
		cfg:      cfg,
		connPool: infra.NewPriorityPool(cfg.MaximumConnections),
		enabled:  cfg.MaximumLongTasks > 0,
		logger:   logger,
	}
	if c.enabled {
		c.longTaskPool = infra.NewPriorityPool(cfg.MaximumLongTasks)
	}
	return c
}

// Gate wraps inner so that Accept blocks on the connection-admission pool.
func (c *Controller) Gate(inner net.Listener) net.Listener {
	return infra.NewAcceptGate(inner, c.connPool)
}

// ConnContext is installed as an *http.Server's ConnContext hook so the
// request interceptor can discover each request's connection-pool token.
// Connections not produced by Gate (e.g. in tests using httptest) simply
// leave the context unchanged, and the resulting LongTask operates without
// a connection token — a reduced mode, not an error.
func ConnContext(ctx context.Context, c net.Conn) context.Context {
	if gc, ok := c.(domain.Connection); ok {
		return context.WithValue(ctx, connKey{}, gc)
	}
	return ctx
}

type connKey struct{}

// connectionFromContext retrieves the domain.Connection ConnContext
// installed, if any.
func connectionFromContext(ctx context.Context) (domain.Connection, bool) {
	conn, ok := ctx.Value(connKey{}).(domain.Connection)
	return conn, ok
}

// Middleware returns the request interceptor: for each request it
// constructs a LongTask bound to the request's connection (if
// discoverable), installs it as the current long task for the handler's
// execution context, and guarantees a terminal Stop(force=true) exactly
// once when the handler returns by any means.
//
// If long tasks are disabled (MaximumLongTasks <= 0), Middleware is
// transparent: no LongTask is constructed and CurrentLongTask is always
// absent downstream.
func (c *Controller) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !c.enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, _ := connectionFromContext(r.Context())

			opts := []application.Option{application.WithDelay(c.cfg.StartDelay)}
			if c.logger != nil {
				opts = append(opts, application.WithLogger(c.logger))
			}
			lt := application.New(c.longTaskPool, conn, opts...)

			r = r.WithContext(application.WithCurrent(r.Context(), lt))

			defer func() {
				p := recover()
				// Terminal stop is always forced: by the time the handler
				// returns (normally, on error, or on panic) the response
				// is done and the connection is going away regardless, so
				// re-acquiring a connection slot just to drop it again
				// would only contend with pending accepts.
				lt.Stop(true)
				if p != nil {
					panic(p)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CurrentLongTask returns the long task bound to ctx, or (nil, false) if
// long tasks are disabled or ctx was never processed by Middleware.
func CurrentLongTask(ctx context.Context) (*application.LongTask, bool) {
	return application.Current(ctx)
}

// Statistics is a read-only snapshot of both pools.
type Statistics struct {
	ConnectionPool domain.Snapshot `json:"connection_pool"`
	LongTaskPool   domain.Snapshot `json:"long_task_pool"`
}

// Statistics returns the current snapshot. It never blocks and never
// mutates pool state.
func (c *Controller) Statistics() Statistics {
	stats := Statistics{ConnectionPool: c.connPool.Snapshot()}
	if c.longTaskPool != nil {
		stats.LongTaskPool = c.longTaskPool.Snapshot()
	}
	return stats
}
