// Package orchestrator wires the collector together.
//
// It builds one worker, circuit breaker, and retry policy per
// configured exchange, registers reachability probes with the health
// monitor, and owns startup and graceful shutdown of the fleet. A
// worker that dies to a panic is restarted with a fresh breaker up to a
// bounded number of times.
package orchestrator
