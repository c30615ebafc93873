package control

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/avolkov/futures-data/internal/bus"
	"github.com/avolkov/futures-data/internal/stats"
	"github.com/avolkov/futures-data/internal/symbols"
)

type fakeResponder struct {
	mu     sync.Mutex
	keys   []string
	bodies [][]byte
}

func (f *fakeResponder) PublishResponse(ctx context.Context, routingKey string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, routingKey)
	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakeResponder) lastKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.keys) == 0 {
		return ""
	}
	return f.keys[len(f.keys)-1]
}

type fakeStats struct {
	snap stats.Snapshot
}

func (f *fakeStats) Statistics() stats.Snapshot { return f.snap }

func newTestPlane(initial []string) (*Plane, *symbols.Set, *fakeResponder) {
	set := symbols.NewSet(initial)
	responder := &fakeResponder{}
	source := &fakeStats{snap: stats.Snapshot{
		FetchSuccess: map[string]uint64{"binance": 42},
		FetchFailure: map[string]uint64{"binance": 3},
		Published:    40,
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := New(set, source, responder, nil, logger)
	p.now = func() int64 { return 1700000000 }
	return p, set, responder
}

func mustDispatch(t *testing.T, p *Plane, payload string) Response {
	t.Helper()
	return p.dispatch([]byte(payload))
}

func TestAddSymbol(t *testing.T) {
	p, set, _ := newTestPlane([]string{"BTC/USDT:USDT"})

	resp := mustDispatch(t, p, `{"command":"add_symbol","correlation_id":"c1","symbol":"ETH/USDT:USDT"}`)

	if !resp.Success {
		t.Fatalf("Success = false, message = %q", resp.Message)
	}
	if resp.CorrelationID != "c1" {
		t.Errorf("CorrelationID = %q, want c1", resp.CorrelationID)
	}
	if resp.Error != "" {
		t.Errorf("Error = %q, want empty", resp.Error)
	}
	if set.Len() != 2 {
		t.Errorf("set.Len() = %d, want 2", set.Len())
	}

	data := resp.Data.(map[string]any)
	if data["symbol"] != "ETH/USDT:USDT" {
		t.Errorf("data.symbol = %v", data["symbol"])
	}
	current := data["current_symbols"].([]string)
	want := []string{"BTC/USDT:USDT", "ETH/USDT:USDT"}
	if !reflect.DeepEqual(current, want) {
		t.Errorf("current_symbols = %v, want %v", current, want)
	}
}

func TestAddSymbolDuplicate(t *testing.T) {
	p, _, _ := newTestPlane([]string{"BTC/USDT:USDT"})

	resp := mustDispatch(t, p, `{"command":"add_symbol","correlation_id":"c2","symbol":"BTC/USDT:USDT"}`)

	if resp.Success {
		t.Error("Success = true, want false for duplicate")
	}
	if resp.Error != ErrCodeDuplicateSymbol {
		t.Errorf("Error = %q, want %q", resp.Error, ErrCodeDuplicateSymbol)
	}
	if resp.Message != "Symbol BTC/USDT:USDT already exists" {
		t.Errorf("Message = %q", resp.Message)
	}
}

func TestAddSymbolMissingField(t *testing.T) {
	p, _, _ := newTestPlane(nil)

	resp := mustDispatch(t, p, `{"command":"add_symbol","correlation_id":"c3"}`)

	if resp.Success || resp.Error != ErrCodeInvalidCommand {
		t.Errorf("Success = %v, Error = %q, want invalid_command failure", resp.Success, resp.Error)
	}
	if resp.Message != "Missing required field: symbol" {
		t.Errorf("Message = %q", resp.Message)
	}
}

func TestRemoveSymbol(t *testing.T) {
	p, set, _ := newTestPlane([]string{"BTC/USDT:USDT", "ETH/USDT:USDT"})

	resp := mustDispatch(t, p, `{"command":"remove_symbol","symbol":"ETH/USDT:USDT"}`)

	if !resp.Success {
		t.Fatalf("Success = false, message = %q", resp.Message)
	}
	if set.Len() != 1 {
		t.Errorf("set.Len() = %d, want 1", set.Len())
	}
}

func TestRemoveSymbolNotFound(t *testing.T) {
	p, _, _ := newTestPlane([]string{"BTC/USDT:USDT"})

	resp := mustDispatch(t, p, `{"command":"remove_symbol","symbol":"XRP/USDT:USDT"}`)

	if resp.Success {
		t.Error("Success = true, want false")
	}
	if resp.Error != ErrCodeSymbolNotFound {
		t.Errorf("Error = %q, want %q", resp.Error, ErrCodeSymbolNotFound)
	}
}

func TestSetSymbols(t *testing.T) {
	p, set, _ := newTestPlane([]string{"BTC/USDT:USDT"})

	resp := mustDispatch(t, p, `{"command":"set_symbols","symbols":["SOL/USDT:USDT","ETH/USDT:USDT"]}`)

	if !resp.Success {
		t.Fatalf("Success = false, message = %q", resp.Message)
	}

	data := resp.Data.(map[string]any)
	if data["count"] != 2 {
		t.Errorf("data.count = %v, want 2", data["count"])
	}
	want := []string{"ETH/USDT:USDT", "SOL/USDT:USDT"}
	if got := set.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("set = %v, want %v", got, want)
	}
}

func TestSetSymbolsEmptyRejected(t *testing.T) {
	p, set, _ := newTestPlane([]string{"BTC/USDT:USDT"})

	for _, payload := range []string{
		`{"command":"set_symbols"}`,
		`{"command":"set_symbols","symbols":[]}`,
	} {
		resp := mustDispatch(t, p, payload)
		if resp.Success || resp.Error != ErrCodeInvalidCommand {
			t.Errorf("dispatch(%s): Success = %v, Error = %q, want invalid_command failure",
				payload, resp.Success, resp.Error)
		}
	}

	if set.Len() != 1 {
		t.Errorf("set mutated by rejected set_symbols, Len() = %d", set.Len())
	}
}

func TestGetSymbols(t *testing.T) {
	p, _, _ := newTestPlane([]string{"ETH/USDT:USDT", "BTC/USDT:USDT"})

	resp := mustDispatch(t, p, `{"command":"get_symbols","correlation_id":"c9"}`)

	if !resp.Success {
		t.Fatalf("Success = false")
	}

	data := resp.Data.(map[string]any)
	want := []string{"BTC/USDT:USDT", "ETH/USDT:USDT"}
	if got := data["symbols"].([]string); !reflect.DeepEqual(got, want) {
		t.Errorf("symbols = %v, want %v", got, want)
	}
	if data["count"] != 2 {
		t.Errorf("count = %v, want 2", data["count"])
	}
}

func TestGetStatistics(t *testing.T) {
	p, _, _ := newTestPlane(nil)

	resp := mustDispatch(t, p, `{"command":"get_statistics"}`)

	if !resp.Success {
		t.Fatalf("Success = false")
	}

	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var decoded struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	for _, key := range []string{"exchange_success", "exchange_errors", "rabbitmq_published", "rabbitmq_failed"} {
		if _, ok := decoded.Data[key]; !ok {
			t.Errorf("statistics payload missing %q", key)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	p, _, _ := newTestPlane(nil)

	resp := mustDispatch(t, p, `{"command":"reboot","correlation_id":"c5"}`)

	if resp.Success || resp.Error != ErrCodeUnknownCommand {
		t.Errorf("Success = %v, Error = %q, want unknown_command failure", resp.Success, resp.Error)
	}
	if resp.Message != "Unknown command: reboot" {
		t.Errorf("Message = %q", resp.Message)
	}
}

func TestMissingCommand(t *testing.T) {
	p, _, _ := newTestPlane(nil)

	resp := mustDispatch(t, p, `{"correlation_id":"c6"}`)

	if resp.Success || resp.Error != ErrCodeInvalidCommand {
		t.Errorf("Success = %v, Error = %q, want invalid_command failure", resp.Success, resp.Error)
	}
	if resp.CorrelationID != "c6" {
		t.Errorf("CorrelationID = %q, want c6", resp.CorrelationID)
	}
}

func TestInvalidJSON(t *testing.T) {
	p, _, _ := newTestPlane(nil)

	resp := mustDispatch(t, p, `{not json`)

	if resp.Success || resp.Error != ErrCodeInvalidJSON {
		t.Errorf("Success = %v, Error = %q, want invalid_json failure", resp.Success, resp.Error)
	}
}

func TestResponseRoutingKey(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"add_symbol", "control.response.add_symbol"},
		{"get_statistics", "control.response.get_statistics"},
		{"", "control.response.unknown"},
	}

	for _, tt := range tests {
		r := Response{Command: tt.command}
		if got := r.RoutingKey(); got != tt.want {
			t.Errorf("RoutingKey(%q) = %q, want %q", tt.command, got, tt.want)
		}
	}
}

func TestPlaneConsumesAndAcks(t *testing.T) {
	set := symbols.NewSet([]string{"BTC/USDT:USDT"})
	responder := &fakeResponder{}
	inbound := make(chan bus.InboundMessage, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := New(set, &fakeStats{}, responder, inbound, logger)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := p.Stop(ctx); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	}()

	var mu sync.Mutex
	acked := false
	inbound <- bus.InboundMessage{
		Body: []byte(`{"command":"get_symbols","correlation_id":"c7"}`),
		Ack: func() error {
			mu.Lock()
			acked = true
			mu.Unlock()
			return nil
		},
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := acked
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("message never acked")
		case <-time.After(time.Millisecond):
		}
	}

	if got := responder.lastKey(); got != "control.response.get_symbols" {
		t.Errorf("response routing key = %q, want control.response.get_symbols", got)
	}

	responder.mu.Lock()
	body := responder.bodies[0]
	responder.mu.Unlock()

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.CorrelationID != "c7" || !resp.Success {
		t.Errorf("response = %+v", resp)
	}
}
