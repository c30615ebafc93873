// Package worker runs the per-exchange collection loop.
//
// Each Worker polls every symbol in the shared set on a fixed interval,
// fetching ticker, order book, and funding data through its retry
// policy and circuit breaker, and publishes the assembled snapshot to
// the bus. Fetch outcomes feed the health monitor; an UNHEALTHY
// exchange is skipped until its cooldown elapses. Publish failures are
// tracked separately and never count against exchange health.
package worker
