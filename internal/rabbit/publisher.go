package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"techstore-order-service/internal/service"
)

// channelPublisher es lo que usa Publisher de *amqp091.Channel.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Publisher envía los eventos de pedido al exchange fanout order_events.
// Un *amqp091.Channel no admite publicaciones concurrentes, de ahí el mutex.
type Publisher struct {
	mu       sync.Mutex
	ch       channelPublisher
	exchange string
	timeout  time.Duration
}

func NewPublisher(ch *amqp091.Channel) (*Publisher, error) {
	if err := ch.ExchangeDeclare(OrderEventsExchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declarar exchange %s: %w", OrderEventsExchange, err)
	}
	return newPublisher(ch), nil
}

func newPublisher(ch channelPublisher) *Publisher {
	return &Publisher{ch: ch, exchange: OrderEventsExchange, timeout: 5 * time.Second}
}

func (p *Publisher) Publish(ctx context.Context, ev service.OrderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serializar evento: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, ev.Event, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    ev.At,
		Type:         ev.Event,
		Body:         body,
	})
}
