// Package breaker implements the per-exchange circuit breaker.
//
// Each guarded resource owns exactly one Breaker; instances are never
// shared across workers. The three-state machine (closed, open,
// half-open) is delegated to sony/gobreaker and surfaced through a small
// wrapper that maps its sentinel errors onto ErrCircuitOpen, exposes
// state transitions to observers, and supports administrative reset.
package breaker
