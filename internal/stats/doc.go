// Package stats accumulates collector counters.
//
// Two sets of counters are kept: cumulative totals served to the control
// plane, and a rolling window the orchestrator logs and resets on its
// reporting interval. Reads take a snapshot copy so long-running readers
// never hold the lock against the hot write path.
package stats
