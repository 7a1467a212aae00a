// Package infra contains concrete implementations of the domain contracts:
// the priority-ordered slot pool (a bounded semaphore) and the accept
// gate, a net.Listener wrapper that binds a connection-pool token to each
// accepted socket.
package infra
