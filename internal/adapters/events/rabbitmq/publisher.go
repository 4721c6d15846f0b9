// Package rabbitmq publishes zonecast events to a RabbitMQ fanout exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/pkg/log"
)

// DefaultExchange is the fanout exchange events are published to.
const DefaultExchange = "zonecast.events"

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements ports.EventPublisher.
type Publisher struct {
	ch       channel
	conn     io.Closer
	exchange string
	logger   log.Logger

	mu     sync.Mutex
	closed bool
}

var _ ports.EventPublisher = (*Publisher)(nil)

// Dial connects to url and declares a durable fanout exchange.
func Dial(url, exchange string, logger log.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return newPublisher(ch, conn, exchange, logger), nil
}

func newPublisher(ch channel, conn io.Closer, exchange string, logger log.Logger) *Publisher {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Publisher{ch: ch, conn: conn, exchange: exchange, logger: logger}
}

// Publish sends the event as JSON.
func (p *Publisher) Publish(ctx context.Context, event ports.Event) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return domain.ErrClosed
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, event.Type, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   event.Timestamp,
		Type:        event.Type,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close closes the channel and the connection. Safe to call repeatedly.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
