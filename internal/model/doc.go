// Package model defines the market data types shared across the collector.
//
// A FuturesSnapshot is the unit of work: one exchange, one symbol, one
// point in time. Snapshots are serialized to JSON and published to the
// message bus with a routing key derived from exchange and symbol.
package model
