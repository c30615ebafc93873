// Package bus owns the RabbitMQ connection for the collector.
//
// One connection carries both directions: snapshot publishes on the
// data topic exchange and control-command consumption from the control
// queue. The bus reconnects with exponential backoff when the broker
// drops the connection and re-establishes topology and the consumer
// on every successful dial.
package bus
