/*
Package events delivers engine lifecycle events to other services.

PUBLISHERS:
  AMQP:     JSON messages on a durable topic exchange; the routing key is
            the event type (booking.created, review.deleted, ...)
  Nop:      Drops everything; used when no broker is configured
  Recorder: Keeps events in memory for tests and the demo scenarios

  The engine publishes only after commit and logs publish failures, so a
  broker outage never fails a booking.
*/
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/warp/stay-engine/engine"
)

// Message is the wire form of an engine.Event.
type Message struct {
	Type       string    `json:"type"`
	BookingID  string    `json:"booking_id,omitempty"`
	PropertyID string    `json:"property_id,omitempty"`
	ReviewID   string    `json:"review_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	At         time.Time `json:"at"`
}

func NewMessage(e engine.Event) Message {
	m := Message{
		Type:       string(e.Type),
		BookingID:  string(e.BookingID),
		PropertyID: string(e.PropertyID),
		ReviewID:   string(e.ReviewID),
		ActorID:    string(e.ActorID),
		At:         e.At,
	}
	if e.Amount.Currency != "" {
		m.Amount = e.Amount.Value.StringFixed(2)
		m.Currency = string(e.Amount.Currency)
	}
	return m
}

// =============================================================================
// AMQP
// =============================================================================

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type AMQP struct {
	conn     *amqp.Connection
	mu       sync.Mutex // amqp channels are not safe for concurrent publishing
	ch       channel
	exchange string
}

var _ engine.Publisher = (*AMQP)(nil)

// DialAMQP connects and declares the exchange.
func DialAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQP{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQP) Publish(ctx context.Context, e engine.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(NewMessage(e))
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish(p.exchange, string(e.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At,
		Type:         string(e.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// =============================================================================
// NOP / RECORDER
// =============================================================================

type Nop struct{}

func (Nop) Publish(context.Context, engine.Event) error { return nil }

// Recorder keeps every published event.
type Recorder struct {
	mu     sync.Mutex
	events []engine.Event
}

func (r *Recorder) Publish(_ context.Context, e engine.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []engine.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.Event(nil), r.events...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
