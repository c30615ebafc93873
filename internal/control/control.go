package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avolkov/futures-data/internal/bus"
	"github.com/avolkov/futures-data/internal/stats"
	"github.com/avolkov/futures-data/internal/symbols"
)

// Command names accepted on the control queue.
const (
	CmdAddSymbol     = "add_symbol"
	CmdRemoveSymbol  = "remove_symbol"
	CmdSetSymbols    = "set_symbols"
	CmdGetSymbols    = "get_symbols"
	CmdGetStatistics = "get_statistics"
)

// Error codes carried in the response envelope.
const (
	ErrCodeDuplicateSymbol = "duplicate_symbol"
	ErrCodeSymbolNotFound  = "symbol_not_found"
	ErrCodeInvalidCommand  = "invalid_command"
	ErrCodeUnknownCommand  = "unknown_command"
	ErrCodeInvalidJSON     = "invalid_json"
	ErrCodeInternalError   = "internal_error"
)

// Command is the inbound control envelope.
type Command struct {
	Command       string   `json:"command"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	Timestamp     int64    `json:"timestamp,omitempty"`
	Symbol        string   `json:"symbol,omitempty"`
	Symbols       []string `json:"symbols,omitempty"`
}

// Response is the outbound envelope. Every command produces exactly one.
type Response struct {
	CorrelationID string `json:"correlation_id"`
	Success       bool   `json:"success"`
	Command       string `json:"command"`
	Message       string `json:"message"`
	Error         string `json:"error,omitempty"`
	Data          any    `json:"data,omitempty"`
	Timestamp     int64  `json:"timestamp"` // seconds since epoch
}

// RoutingKey returns the response exchange routing key for this
// response, control.response.<command> with "unknown" standing in when
// the request carried no parseable command.
func (r Response) RoutingKey() string {
	cmd := r.Command
	if cmd == "" {
		cmd = "unknown"
	}
	return "control.response." + cmd
}

// SymbolStore is the mutable symbol set the commands operate on.
type SymbolStore interface {
	Add(symbol string) error
	Remove(symbol string) error
	ReplaceAll(symbols []string) error
	Snapshot() []string
}

// StatisticsSource answers get_statistics.
type StatisticsSource interface {
	Statistics() stats.Snapshot
}

// Responder publishes response envelopes.
type Responder interface {
	PublishResponse(ctx context.Context, routingKey string, body []byte) error
}

// Plane consumes control commands and executes them serially.
type Plane struct {
	store     SymbolStore
	source    StatisticsSource
	responder Responder
	inbound   <-chan bus.InboundMessage
	logger    *slog.Logger

	now func() int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Plane consuming from inbound.
func New(store SymbolStore, source StatisticsSource, responder Responder,
	inbound <-chan bus.InboundMessage, logger *slog.Logger) *Plane {

	if logger == nil {
		logger = slog.Default()
	}
	return &Plane{
		store:     store,
		source:    source,
		responder: responder,
		inbound:   inbound,
		logger:    logger,
		now:       func() int64 { return time.Now().Unix() },
	}
}

// Start launches the single command-handling goroutine. One goroutine
// keeps command execution serialized in arrival order.
func (p *Plane) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("control plane started")
	return nil
}

// Stop halts command handling. Bounded by ctx.
func (p *Plane) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("control plane stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Plane) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case msg, ok := <-p.inbound:
			if !ok {
				return
			}
			p.handle(msg)
		}
	}
}

// handle processes one inbound command. The message is acked after the
// response is sent; a failed response publish is logged but never
// blocks the queue.
func (p *Plane) handle(msg bus.InboundMessage) {
	resp := p.dispatch(msg.Body)

	p.respond(resp)

	if msg.Ack != nil {
		if err := msg.Ack(); err != nil {
			p.logger.Warn("ack failed", "error", err)
		}
	}
}

// dispatch parses and executes one command body.
func (p *Plane) dispatch(body []byte) Response {
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		p.logger.Error("invalid control payload", "error", err)
		return Response{
			Success:   false,
			Message:   fmt.Sprintf("Invalid JSON: %v", err),
			Error:     ErrCodeInvalidJSON,
			Timestamp: p.now(),
		}
	}

	p.logger.Info("received command", "command", cmd.Command, "correlation_id", cmd.CorrelationID)

	if cmd.Command == "" {
		return Response{
			CorrelationID: cmd.CorrelationID,
			Success:       false,
			Message:       "Missing required field: command",
			Error:         ErrCodeInvalidCommand,
			Timestamp:     p.now(),
		}
	}

	return p.execute(cmd)
}

func (p *Plane) execute(cmd Command) Response {
	resp := Response{
		CorrelationID: cmd.CorrelationID,
		Command:       cmd.Command,
		Timestamp:     p.now(),
	}

	switch cmd.Command {
	case CmdAddSymbol:
		return p.addSymbol(cmd, resp)
	case CmdRemoveSymbol:
		return p.removeSymbol(cmd, resp)
	case CmdSetSymbols:
		return p.setSymbols(cmd, resp)
	case CmdGetSymbols:
		current := p.store.Snapshot()
		resp.Success = true
		resp.Message = "Symbols retrieved successfully"
		resp.Data = map[string]any{
			"symbols": current,
			"count":   len(current),
		}
		return resp
	case CmdGetStatistics:
		resp.Success = true
		resp.Message = "Statistics retrieved successfully"
		resp.Data = p.source.Statistics()
		return resp
	default:
		resp.Success = false
		resp.Message = fmt.Sprintf("Unknown command: %s", cmd.Command)
		resp.Error = ErrCodeUnknownCommand
		return resp
	}
}

func (p *Plane) addSymbol(cmd Command, resp Response) Response {
	if cmd.Symbol == "" {
		resp.Success = false
		resp.Message = "Missing required field: symbol"
		resp.Error = ErrCodeInvalidCommand
		return resp
	}

	err := p.store.Add(cmd.Symbol)
	switch {
	case err == nil:
		resp.Success = true
		resp.Message = fmt.Sprintf("Symbol %s added successfully", cmd.Symbol)
	case errors.Is(err, symbols.ErrDuplicateSymbol):
		resp.Success = false
		resp.Message = fmt.Sprintf("Symbol %s already exists", cmd.Symbol)
		resp.Error = ErrCodeDuplicateSymbol
	default:
		return p.internalError(resp, err)
	}

	resp.Data = map[string]any{
		"symbol":          cmd.Symbol,
		"current_symbols": p.store.Snapshot(),
	}
	return resp
}

func (p *Plane) removeSymbol(cmd Command, resp Response) Response {
	if cmd.Symbol == "" {
		resp.Success = false
		resp.Message = "Missing required field: symbol"
		resp.Error = ErrCodeInvalidCommand
		return resp
	}

	err := p.store.Remove(cmd.Symbol)
	switch {
	case err == nil:
		resp.Success = true
		resp.Message = fmt.Sprintf("Symbol %s removed successfully", cmd.Symbol)
	case errors.Is(err, symbols.ErrSymbolNotFound):
		resp.Success = false
		resp.Message = fmt.Sprintf("Symbol %s not found", cmd.Symbol)
		resp.Error = ErrCodeSymbolNotFound
	default:
		return p.internalError(resp, err)
	}

	resp.Data = map[string]any{
		"symbol":          cmd.Symbol,
		"current_symbols": p.store.Snapshot(),
	}
	return resp
}

func (p *Plane) setSymbols(cmd Command, resp Response) Response {
	if len(cmd.Symbols) == 0 {
		resp.Success = false
		resp.Message = "Missing or invalid field: symbols (must be array)"
		resp.Error = ErrCodeInvalidCommand
		return resp
	}

	if err := p.store.ReplaceAll(cmd.Symbols); err != nil {
		return p.internalError(resp, err)
	}

	current := p.store.Snapshot()
	resp.Success = true
	resp.Message = "Symbols updated successfully"
	resp.Data = map[string]any{
		"symbols": current,
		"count":   len(current),
	}
	return resp
}

func (p *Plane) internalError(resp Response, err error) Response {
	p.logger.Error("command failed", "command", resp.Command, "error", err)
	resp.Success = false
	resp.Message = fmt.Sprintf("Internal error: %v", err)
	resp.Error = ErrCodeInternalError
	return resp
}

func (p *Plane) respond(resp Response) {
	body, err := json.Marshal(resp)
	if err != nil {
		p.logger.Error("marshal response failed", "error", err)
		return
	}

	if err := p.responder.PublishResponse(p.ctx, resp.RoutingKey(), body); err != nil {
		p.logger.Error("failed to send response",
			"command", resp.Command,
			"correlation_id", resp.CorrelationID,
			"error", err,
		)
		return
	}

	p.logger.Info("response sent",
		"command", resp.Command,
		"correlation_id", resp.CorrelationID,
		"success", resp.Success,
	)
}
