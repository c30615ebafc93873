// Package health tracks per-exchange health verdicts.
//
// Two signal paths feed one state machine per exchange: active probes run
// on their own interval by the Monitor, and passive outcomes reported by
// workers after every real fetch. Consecutive failures demote an exchange
// HEALTHY -> DEGRADED -> UNHEALTHY; a run of consecutive successes
// restores it. A breaker opening forces UNHEALTHY directly.
package health
