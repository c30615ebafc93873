package exchange

import (
	"context"

	"github.com/avolkov/futures-data/internal/model"
)

// Client provides futures market data for one exchange.
type Client interface {
	// Name returns the exchange identifier, e.g. "binanceusdm".
	Name() string

	// Ping checks reachability of the venue without fetching data.
	Ping(ctx context.Context) error

	FetchTicker(ctx context.Context, symbol string) (model.Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string) (model.OrderBook, error)
	FetchFundingRate(ctx context.Context, symbol string) (model.FundingInfo, error)
}
