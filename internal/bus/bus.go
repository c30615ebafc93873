package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned by publish operations while the broker
// connection is down.
var ErrNotConnected = errors.New("bus: not connected")

// PublishError wraps a failed publish with its destination.
type PublishError struct {
	Exchange   string
	RoutingKey string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s/%s: %v", e.Exchange, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// InboundMessage is one control command delivered from the broker.
// Ack must be called exactly once after the command has been handled.
type InboundMessage struct {
	Body       []byte
	RoutingKey string
	Ack        func() error
}

// Config holds broker settings for the Bus.
type Config struct {
	URL              string
	DataExchange     string
	ResponseExchange string
	ControlQueue     string

	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
	PublishTimeout    time.Duration
}

// channel is the subset of amqp.Channel the bus uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// connection is the subset of amqp.Connection the bus uses.
type connection interface {
	Channel() (channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (channel, error) { return c.conn.Channel() }

func (c *amqpConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(receiver)
}

func (c *amqpConnection) Close() error { return c.conn.Close() }

func amqpDial(url string) (connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

// Bus manages the broker connection, topology, and the control consumer.
type Bus struct {
	cfg    Config
	logger *slog.Logger
	dial   func(url string) (connection, error)

	mu      sync.Mutex
	conn    connection
	ch      channel
	closeCh chan *amqp.Error

	inbound chan InboundMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Bus.
type Option func(*Bus)

// WithDialer replaces the broker dialer. Used in tests.
func WithDialer(dial func(url string) (connection, error)) Option {
	return func(b *Bus) {
		b.dial = dial
	}
}

// New creates a Bus. Start must be called before publishing.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = time.Second
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = 60 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	b := &Bus{
		cfg:     cfg,
		logger:  logger,
		dial:    amqpDial,
		inbound: make(chan InboundMessage, 100),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start connects to the broker, declares topology, and begins consuming
// the control queue. The initial connection failing is fatal; drops
// after that trigger background reconnection.
func (b *Bus) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	if err := b.connect(); err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}

	b.wg.Add(1)
	go b.supervise()

	b.logger.Info("bus started",
		"data_exchange", b.cfg.DataExchange,
		"control_queue", b.cfg.ControlQueue,
	)
	return nil
}

// Stop closes the broker connection and waits for goroutines. Bounded
// by ctx.
func (b *Bus) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}

	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
		b.ch = nil
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("bus shutdown timeout")
		return ctx.Err()
	}

	close(b.inbound)
	b.logger.Info("bus stopped")
	return nil
}

// Inbound returns the channel of control commands. Closed on Stop.
func (b *Bus) Inbound() <-chan InboundMessage {
	return b.inbound
}

// Publish sends a data payload to the data topic exchange.
func (b *Bus) Publish(ctx context.Context, routingKey string, body []byte) error {
	return b.publish(ctx, b.cfg.DataExchange, routingKey, body)
}

// PublishResponse sends a control response to the response topic exchange.
func (b *Bus) PublishResponse(ctx context.Context, routingKey string, body []byte) error {
	return b.publish(ctx, b.cfg.ResponseExchange, routingKey, body)
}

func (b *Bus) publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()

	if ch == nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: ErrNotConnected}
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
	defer cancel()

	err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: err}
	}
	return nil
}

// connect dials the broker and sets up topology and the consumer.
func (b *Bus) connect() error {
	conn, err := b.dial(b.cfg.URL)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := b.declareTopology(ch); err != nil {
		conn.Close()
		return err
	}

	deliveries, err := ch.Consume(b.cfg.ControlQueue, "", false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("consume %s: %w", b.cfg.ControlQueue, err)
	}

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

	b.mu.Lock()
	b.conn = conn
	b.ch = ch
	b.closeCh = closeCh
	b.mu.Unlock()

	b.wg.Add(1)
	go b.consumeLoop(deliveries)

	return nil
}

func (b *Bus) declareTopology(ch channel) error {
	for _, name := range []string{b.cfg.DataExchange, b.cfg.ResponseExchange} {
		if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	if _, err := ch.QueueDeclare(b.cfg.ControlQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", b.cfg.ControlQueue, err)
	}
	return nil
}

// consumeLoop forwards broker deliveries to the inbound channel until
// the delivery channel closes (connection drop) or shutdown.
func (b *Bus) consumeLoop(deliveries <-chan amqp.Delivery) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}

			msg := InboundMessage{
				Body:       d.Body,
				RoutingKey: d.RoutingKey,
				Ack: func() error {
					return d.Ack(false)
				},
			}

			select {
			case b.inbound <- msg:
			case <-b.ctx.Done():
				return
			}
		}
	}
}

// supervise watches for connection drops and reconnects with
// exponential backoff.
func (b *Bus) supervise() {
	defer b.wg.Done()

	for {
		b.mu.Lock()
		closeCh := b.closeCh
		b.mu.Unlock()

		select {
		case <-b.ctx.Done():
			return
		case amqpErr, ok := <-closeCh:
			if !ok || amqpErr == nil {
				// Clean close, triggered by Stop.
				return
			}
			b.logger.Warn("broker connection lost", "error", amqpErr)
		}

		b.mu.Lock()
		b.conn = nil
		b.ch = nil
		b.mu.Unlock()

		if !b.reconnect() {
			return
		}
	}
}

// reconnect retries connect until it succeeds or shutdown begins.
func (b *Bus) reconnect() bool {
	wait := b.cfg.ReconnectBaseWait

	for {
		select {
		case <-b.ctx.Done():
			return false
		case <-time.After(wait):
		}

		b.logger.Info("attempting broker reconnection", "wait", wait)

		if err := b.connect(); err != nil {
			b.logger.Warn("broker reconnection failed", "error", err)
			wait = nextBackoff(wait, b.cfg.ReconnectMaxWait)
			continue
		}

		b.logger.Info("reconnected to broker")
		return true
	}
}

func nextBackoff(wait, max time.Duration) time.Duration {
	wait *= 2
	if wait > max {
		wait = max
	}
	return wait
}
