// setup.go
package rabbit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rabbitmq/amqp091-go"
)

const (
	CartCommittedExchange = "cart_committed"
	CartQueue             = "order_ledger_carts"
	OrderEventsExchange   = "order_events"
)

// SetupConsumers declara la cola, la bindea al exchange fanout y arranca el
// consumo. Devuelve un canal que se cierra cuando termina el loop.
func SetupConsumers(ctx context.Context, ch *amqp091.Channel, consumer *CartCommittedConsumer, log *slog.Logger) (<-chan struct{}, error) {
	// 1. Declarar exchange y queue
	if err := ch.ExchangeDeclare(CartCommittedExchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declarar exchange %s: %w", CartCommittedExchange, err)
	}
	q, err := ch.QueueDeclare(
		CartQueue, // cola exclusiva para este micro
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declarar queue: %w", err)
	}

	// 2. Bindear al exchange fanout
	err = ch.QueueBind(
		q.Name,
		"", // fanout ignora routing key
		CartCommittedExchange,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("bind exchange: %w", err)
	}

	// 3. Consumir con ack manual
	msgs, err := ch.Consume(
		q.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consumir queue: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				ackOrNack(log, m, handleDelivery(ctx, consumer, m.Body))
			}
		}
	}()

	log.Info("suscrito a exchange fanout", "exchange", CartCommittedExchange, "queue", q.Name)
	return done, nil
}

type ackMode int

const (
	ack ackMode = iota
	nackDrop
	nackRequeue
)

// handleDelivery decide qué hacer con el mensaje según el resultado.
// Mal formado o rechazado por reglas de negocio: se descarta, reintentarlo
// daría lo mismo. Fallos de infraestructura: vuelve a la cola.
func handleDelivery(ctx context.Context, consumer *CartCommittedConsumer, body []byte) ackMode {
	_, err := consumer.Handle(ctx, body)
	switch {
	case err == nil:
		return ack
	case errors.Is(err, ErrMalformedMessage), isBusinessError(err):
		return nackDrop
	}
	return nackRequeue
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func ackOrNack(log *slog.Logger, d acknowledger, mode ackMode) {
	var err error
	switch mode {
	case ack:
		err = d.Ack(false)
	case nackDrop:
		err = d.Nack(false, false)
	case nackRequeue:
		err = d.Nack(false, true)
	}
	if err != nil {
		log.Error("no se pudo confirmar mensaje", "error", err)
	}
}
