package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"techstore-order-service/internal/ledger"
	"techstore-order-service/internal/model"
	"techstore-order-service/internal/service"
)

// OrderCreator es la parte de OrderService que usa el consumidor.
type OrderCreator interface {
	Create(ctx context.Context, in service.NewOrder) (*model.Order, error)
}

// ErrMalformedMessage marca mensajes que nunca se van a poder procesar.
var ErrMalformedMessage = errors.New("mensaje de carrito mal formado")

type CartCommittedConsumer struct {
	Service OrderCreator
	Log     *slog.Logger
}

func NewCartCommittedConsumer(s OrderCreator, log *slog.Logger) *CartCommittedConsumer {
	return &CartCommittedConsumer{Service: s, Log: log}
}

type ShippingMessage struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

// Sobre que publica el servicio de carrito al confirmar la compra.
type CartCommittedMessage struct {
	CorrelationID string `json:"correlation_id"`
	Exchange      string `json:"exchange"`
	RoutingKey    string `json:"routing_key"`
	Message       struct {
		CartID   string `json:"cartId"`
		UserID   string `json:"userId"`
		Articles []struct {
			ArticleID string `json:"articleId"`
			Name      string `json:"name"`
			Price     int64  `json:"price"`
			Quantity  int    `json:"quantity"`
			Image     string `json:"image"`
		} `json:"articles"`
		ShippingMethod string          `json:"shippingMethod"`
		PaymentMethod  string          `json:"paymentMethod"`
		Discount       int64           `json:"discount"`
		Shipping       ShippingMessage `json:"shipping"`
	} `json:"message"`
}

func (m *CartCommittedMessage) toNewOrder() service.NewOrder {
	items := make([]model.LineItem, 0, len(m.Message.Articles))
	for _, a := range m.Message.Articles {
		items = append(items, model.LineItem{
			ProductID: a.ArticleID,
			Name:      a.Name,
			UnitPrice: a.Price,
			Quantity:  a.Quantity,
			Image:     a.Image,
		})
	}
	s := m.Message.Shipping
	return service.NewOrder{
		UserID:         m.Message.UserID,
		Items:          items,
		ShippingMethod: model.ShippingMethod(m.Message.ShippingMethod),
		PaymentMethod:  model.PaymentMethod(m.Message.PaymentMethod),
		Discount:       m.Message.Discount,
		Shipping: model.ShippingAddress{
			FirstName: s.FirstName,
			LastName:  s.LastName,
			Street:    s.Street,
			City:      s.City,
			State:     s.State,
			ZipCode:   s.ZipCode,
			Country:   s.Country,
			Phone:     s.Phone,
		},
	}
}

// Handle crea el pedido a partir del carrito. Devuelve ErrMalformedMessage
// envuelto cuando el cuerpo no es JSON válido o falta el usuario.
func (c *CartCommittedConsumer) Handle(ctx context.Context, body []byte) (*model.Order, error) {
	var event CartCommittedMessage
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if event.Message.UserID == "" {
		return nil, fmt.Errorf("%w: falta userId", ErrMalformedMessage)
	}

	log := c.Log.With("correlationId", event.CorrelationID, "cartId", event.Message.CartID)
	log.Info("evento recibido: cart_committed")

	o, err := c.Service.Create(ctx, event.toNewOrder())
	if err != nil {
		log.Error("error creando pedido desde carrito", "error", err)
		return nil, err
	}

	log.Info("pedido creado desde carrito", "orderId", o.OrderID)
	return o, nil
}

// Errores de datos del carrito: reintentar no cambia el resultado.
func isBusinessError(err error) bool {
	return errors.Is(err, service.ErrInvalidOrder) ||
		errors.Is(err, ledger.ErrInvalidLineItem) ||
		errors.Is(err, ledger.ErrAmountOutOfRange)
}
