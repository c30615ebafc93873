// Package retry implements the bounded-attempt backoff policy that wraps
// every guarded fetch.
//
// A Policy is immutable configuration; all per-call state (attempt
// counter, computed delay) lives on the caller's stack, so one Policy is
// safely shared by any number of concurrent workers. Sleeps between
// attempts honor context cancellation so shutdown is never delayed by a
// backoff in progress.
package retry
