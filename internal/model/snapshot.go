package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Ticker holds top-of-book prices for a perpetual futures contract.
type Ticker struct {
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	Volume24h decimal.Decimal `json:"volume_24h"`
}

// Level is a single price level in an order book.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBook holds bid and ask levels, best first.
type OrderBook struct {
	Bids      []Level `json:"bids"`
	Asks      []Level `json:"asks"`
	Timestamp int64   `json:"timestamp,omitempty"` // ms since epoch, 0 if the venue omits it
}

// FundingInfo holds the current funding rate of a perpetual contract.
// MarkPrice rides along when the venue reports it with funding.
type FundingInfo struct {
	Rate            decimal.Decimal `json:"rate"`
	NextFundingTime int64           `json:"next_funding_time,omitempty"` // ms since epoch
	MarkPrice       decimal.Decimal `json:"mark_price,omitempty"`
}

// FuturesSnapshot is one collected observation of a symbol on an exchange.
type FuturesSnapshot struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Timestamp int64     `json:"timestamp"` // ms since epoch, collection time
	Ticker    Ticker    `json:"ticker"`
	OrderBook OrderBook `json:"orderbook"`

	// Optional fields, absent when the venue does not expose them.
	FundingRate     *decimal.Decimal `json:"funding_rate,omitempty"`
	NextFundingTime *int64           `json:"next_funding_time,omitempty"`
	MarkPrice       *decimal.Decimal `json:"mark_price,omitempty"`
}

// RoutingKey returns the bus routing key for this snapshot, e.g.
// "futures.binanceusdm.BTCUSDT" for symbol "BTC/USDT:USDT".
func (s FuturesSnapshot) RoutingKey() string {
	return "futures." + s.Exchange + "." + NormalizeSymbol(s.Symbol)
}

// NormalizeSymbol strips the separators unified symbols carry ("/" and ":")
// so the result is safe inside a dotted routing key.
func NormalizeSymbol(symbol string) string {
	symbol = strings.ReplaceAll(symbol, "/", "")
	return strings.ReplaceAll(symbol, ":", "")
}

// BestBid returns the ticker bid, falling back to the top order book level
// when the venue's ticker omits it.
func (s FuturesSnapshot) BestBid() decimal.Decimal {
	if !s.Ticker.Bid.IsZero() {
		return s.Ticker.Bid
	}
	if len(s.OrderBook.Bids) > 0 {
		return s.OrderBook.Bids[0].Price
	}
	return decimal.Zero
}

// BestAsk returns the ticker ask, falling back to the top order book level.
func (s FuturesSnapshot) BestAsk() decimal.Decimal {
	if !s.Ticker.Ask.IsZero() {
		return s.Ticker.Ask
	}
	if len(s.OrderBook.Asks) > 0 {
		return s.OrderBook.Asks[0].Price
	}
	return decimal.Zero
}
