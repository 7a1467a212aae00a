// Package admission provides the concurrency-admission controller: a
// connection-pool accept gate and a long-task pool coordinated through a
// per-request promotion state machine.
//
// Layers (domain/application/infra, the same split the teacher's
// middleware packages use):
//
//   - domain: contracts and types (SlotPool, Token, Connection, State) with
//     no dependency on net/http or a concrete pool implementation.
//   - application: the LongTask state machine and the context-scoped
//     current-long-task accessor. Depends only on domain.
//   - infra: the priority-ordered slot pool and the accept-gate
//     net.Listener wrapper — concrete implementations of domain's
//     contracts.
//   - admission (this package): Controller, which wires the two pools
//     together, the HTTP middleware (the request interceptor) that
//     installs a LongTask as the request's current long task, and the
//     net/http ConnContext glue that lets the interceptor discover a
//     request's connection-pool token.
//
// A handler reaches its own long task with CurrentLongTask(r.Context()),
// calls Start to promote before a known-long I/O wait, and either lets the
// interceptor's terminal Stop(force=true) run when the handler returns, or
// calls Stop itself for an early demotion.
package admission
