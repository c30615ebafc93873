// Package exchange defines the capability interface the collector core
// uses to talk to a futures venue, plus a REST implementation.
//
// The core is generic over the Client interface and never branches on
// exchange identity. The REST client speaks to a ccxt-compatible market
// data gateway exposing a unified schema per venue; the resilience layer
// treats every fetch as one opaque operation and only inspects errors for
// retryability.
package exchange
