package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ridesim/internal/model"
)

// AMQP publishes events to a durable topic exchange with publisher confirms.
type AMQP struct {
	Exchange   string
	RoutingKey string

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
}

// DialAMQP connects, declares the exchange and enables confirms.
func DialAMQP(url, exchange, routingKey string) (*AMQP, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(30 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: enable confirms: %w", err)
	}
	return &AMQP{
		Exchange:   exchange,
		RoutingKey: routingKey,
		conn:       conn,
		ch:         ch,
		confirms:   ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

func (a *AMQP) Name() string { return "amqp" }

// routingKey maps an event type onto the configured key; failures go to
// simulation.failed when the default key is in use.
func (a *AMQP) routingKey(ev model.Event) string {
	if a.RoutingKey == "" || a.RoutingKey == model.EventCompleted {
		return ev.Type
	}
	return a.RoutingKey
}

func (a *AMQP) Notify(ctx context.Context, ev model.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil || a.conn.IsClosed() || a.ch == nil || a.ch.IsClosed() {
		return errors.New("amqp: channel is not open")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag := a.ch.GetNextPublishSeqNo()
	if err := a.ch.PublishWithContext(ctx, a.Exchange, a.routingKey(ev), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Type:         ev.Type,
		MessageId:    ev.RunID,
		Body:         body,
	}); err != nil {
		return err
	}
	return awaitConfirm(ctx, a.confirms, tag)
}

// awaitConfirm waits for the confirm of delivery tag. Confirms with lower
// tags belong to earlier publishes that timed out and are discarded.
func awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation, tag uint64) error {
	for {
		select {
		case c, ok := <-confirms:
			if !ok {
				return errors.New("amqp: confirm stream closed")
			}
			if c.DeliveryTag < tag {
				continue
			}
			if !c.Ack {
				return fmt.Errorf("amqp: publish %d not acknowledged", tag)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn, a.ch = nil, nil
	return err
}
