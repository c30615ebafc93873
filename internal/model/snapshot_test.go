package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		exchange string
		symbol   string
		want     string
	}{
		{"binanceusdm", "BTC/USDT:USDT", "futures.binanceusdm.BTCUSDTUSDT"},
		{"bybit", "ETHUSDT", "futures.bybit.ETHUSDT"},
		{"okx", "SOL/USDT", "futures.okx.SOLUSDT"},
	}

	for _, tt := range tests {
		s := FuturesSnapshot{Exchange: tt.exchange, Symbol: tt.symbol}
		if got := s.RoutingKey(); got != tt.want {
			t.Errorf("RoutingKey(%q, %q) = %q, want %q", tt.exchange, tt.symbol, got, tt.want)
		}
	}
}

func TestBestBid_FallsBackToOrderBook(t *testing.T) {
	s := FuturesSnapshot{
		OrderBook: OrderBook{
			Bids: []Level{{Price: decimal.NewFromFloat(100.5), Size: decimal.NewFromInt(3)}},
		},
	}

	if got := s.BestBid(); !got.Equal(decimal.NewFromFloat(100.5)) {
		t.Errorf("BestBid = %s, want 100.5", got)
	}
}

func TestBestAsk_PrefersTicker(t *testing.T) {
	s := FuturesSnapshot{
		Ticker: Ticker{Ask: decimal.NewFromInt(101)},
		OrderBook: OrderBook{
			Asks: []Level{{Price: decimal.NewFromInt(102), Size: decimal.NewFromInt(1)}},
		},
	}

	if got := s.BestAsk(); !got.Equal(decimal.NewFromInt(101)) {
		t.Errorf("BestAsk = %s, want 101", got)
	}
}

func TestBestBid_Empty(t *testing.T) {
	var s FuturesSnapshot
	if got := s.BestBid(); !got.IsZero() {
		t.Errorf("BestBid on empty snapshot = %s, want 0", got)
	}
}
