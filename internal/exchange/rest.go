package exchange

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/futures-data/internal/model"
)

// RESTClient fetches unified futures market data over HTTP.
//
// Retries are deliberately NOT performed here: the worker wraps every
// fetch in its retry policy and circuit breaker, and a second retry loop
// underneath would multiply attempts against a struggling venue.
type RESTClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	orderBookDepth int
}

// Option configures a RESTClient.
type Option func(*RESTClient)

// NewRESTClient creates a market data client for one exchange.
func NewRESTClient(name, baseURL string, opts ...Option) *RESTClient {
	c := &RESTClient{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:         slog.Default(),
		orderBookDepth: 25,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *RESTClient) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *RESTClient) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *RESTClient) {
		c.httpClient = hc
	}
}

// WithOrderBookDepth sets how many levels per side to request.
func WithOrderBookDepth(n int) Option {
	return func(c *RESTClient) {
		c.orderBookDepth = n
	}
}

// Name returns the exchange identifier.
func (c *RESTClient) Name() string { return c.name }

// Ping checks venue reachability.
func (c *RESTClient) Ping(ctx context.Context) error {
	var out struct {
		ServerTime int64 `json:"server_time"`
	}
	return c.get(ctx, "/api/v1/ping", nil, &out)
}

type tickerResponse struct {
	Bid         decimal.Decimal `json:"bid"`
	Ask         decimal.Decimal `json:"ask"`
	Last        decimal.Decimal `json:"last"`
	Close       decimal.Decimal `json:"close"`
	QuoteVolume decimal.Decimal `json:"quote_volume"`
}

// FetchTicker returns top-of-book prices for a symbol.
func (c *RESTClient) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	query := url.Values{"symbol": {symbol}}

	var resp tickerResponse
	if err := c.get(ctx, "/api/v1/ticker", query, &resp); err != nil {
		return model.Ticker{}, err
	}

	last := resp.Last
	if last.IsZero() {
		last = resp.Close
	}

	return model.Ticker{
		Bid:       resp.Bid,
		Ask:       resp.Ask,
		Last:      last,
		Volume24h: resp.QuoteVolume,
	}, nil
}

type orderBookResponse struct {
	Bids      [][]decimal.Decimal `json:"bids"`
	Asks      [][]decimal.Decimal `json:"asks"`
	Timestamp int64               `json:"timestamp"`
}

// FetchOrderBook returns up to orderBookDepth levels per side.
func (c *RESTClient) FetchOrderBook(ctx context.Context, symbol string) (model.OrderBook, error) {
	query := url.Values{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(c.orderBookDepth)},
	}

	var resp orderBookResponse
	if err := c.get(ctx, "/api/v1/orderbook", query, &resp); err != nil {
		return model.OrderBook{}, err
	}

	return model.OrderBook{
		Bids:      toLevels(resp.Bids),
		Asks:      toLevels(resp.Asks),
		Timestamp: resp.Timestamp,
	}, nil
}

type fundingResponse struct {
	FundingRate     decimal.Decimal `json:"funding_rate"`
	NextFundingTime int64           `json:"next_funding_time"`
	MarkPrice       decimal.Decimal `json:"mark_price"`
}

// FetchFundingRate returns the current funding rate for a perpetual,
// plus the mark price when the venue reports it alongside funding.
func (c *RESTClient) FetchFundingRate(ctx context.Context, symbol string) (model.FundingInfo, error) {
	query := url.Values{"symbol": {symbol}}

	var resp fundingResponse
	if err := c.get(ctx, "/api/v1/funding", query, &resp); err != nil {
		return model.FundingInfo{}, err
	}

	return model.FundingInfo{
		Rate:            resp.FundingRate,
		NextFundingTime: resp.NextFundingTime,
		MarkPrice:       resp.MarkPrice,
	}, nil
}

func toLevels(raw [][]decimal.Decimal) []model.Level {
	levels := make([]model.Level, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		levels = append(levels, model.Level{Price: pair[0], Size: pair[1]})
	}
	return levels
}
