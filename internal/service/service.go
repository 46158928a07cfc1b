package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"techstore-order-service/internal/clock"
	"techstore-order-service/internal/ledger"
	"techstore-order-service/internal/model"
	"techstore-order-service/internal/repository"
)

// Interfaz que debe implementar repository
type OrderRepository interface {
	Insert(ctx context.Context, o *model.Order) error
	Save(ctx context.Context, o *model.Order, expectedVersion int64) error
	FindByID(ctx context.Context, orderID string) (*model.Order, error)
	MaxSequenceForPeriod(ctx context.Context, period string) (int, error)
	FindAll(ctx context.Context) ([]*model.Order, error)
	FindByStatus(ctx context.Context, status model.OrderStatus) ([]*model.Order, error)
	FindByOwner(ctx context.Context, userID string) ([]*model.Order, error)
}

// ProductCatalog da precio y nombre vigentes; el pedido los copia al agregar la línea.
type ProductCatalog interface {
	FindProduct(ctx context.Context, id string) (*model.Product, error)
}

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderItemsChanged  = "order.items_changed"
)

type OrderEvent struct {
	Event   string            `json:"event"`
	OrderID string            `json:"orderId"`
	UserID  string            `json:"userId"`
	Status  model.OrderStatus `json:"status"`
	Total   int64             `json:"total"`
	ActorID string            `json:"actorId,omitempty"`
	At      time.Time         `json:"at"`
}

// EventPublisher avisa a otros servicios; un fallo aquí no deshace el cambio.
type EventPublisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }

const (
	maxWriteAttempts  = 3
	maxInsertAttempts = 5
)

type OrderService struct {
	repo      OrderRepository
	catalog   ProductCatalog
	pricing   ledger.Pricing
	clock     clock.Clock
	publisher EventPublisher
	log       *slog.Logger

	// Serializa "leer secuencia máxima -> insertar" dentro del proceso. Entre
	// procesos lo cubre el índice único sobre order_id.
	seqMu sync.Mutex
}

type OrderOption func(*OrderService)

func WithPricing(p ledger.Pricing) OrderOption {
	return func(s *OrderService) { s.pricing = p }
}

func WithCatalog(c ProductCatalog) OrderOption {
	return func(s *OrderService) { s.catalog = c }
}

func WithPublisher(p EventPublisher) OrderOption {
	return func(s *OrderService) { s.publisher = p }
}

func WithOrderLogger(l *slog.Logger) OrderOption {
	return func(s *OrderService) { s.log = l }
}

func NewOrderService(r OrderRepository, clk clock.Clock, opts ...OrderOption) *OrderService {
	s := &OrderService{
		repo:      r,
		catalog:   repository.NewMemoryProductCatalog(),
		pricing:   ledger.DefaultPricing(),
		clock:     clk,
		publisher: NopPublisher{},
		log:       slog.Default(),
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type NewOrder struct {
	UserID         string
	Items          []model.LineItem
	ShippingMethod model.ShippingMethod
	PaymentMethod  model.PaymentMethod
	Shipping       model.ShippingAddress
	Discount       int64
}

// LineRequest es lo que puede pedir un cliente: producto y cantidad. El precio
// y el nombre salen del catálogo.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// PriceLines arma las líneas con precio y nombre del catálogo.
func (s *OrderService) PriceLines(ctx context.Context, reqs []LineRequest) ([]model.LineItem, error) {
	items := make([]model.LineItem, 0, len(reqs))
	for _, r := range reqs {
		it, err := s.priceLine(ctx, r)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *OrderService) priceLine(ctx context.Context, r LineRequest) (model.LineItem, error) {
	p, err := s.catalog.FindProduct(ctx, r.ProductID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.LineItem{}, fmt.Errorf("%w: %s no existe", ErrProductUnavailable, r.ProductID)
	}
	if err != nil {
		return model.LineItem{}, fmt.Errorf("find product %s: %w", r.ProductID, err)
	}
	if !p.InStock || p.Quantity < r.Quantity {
		return model.LineItem{}, fmt.Errorf("%w: %s sin existencias suficientes", ErrProductUnavailable, r.ProductID)
	}
	return model.LineItem{
		ProductID: r.ProductID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  r.Quantity,
		Image:     p.MainImage,
	}, nil
}

// PlaceOrder es la creación desde la API: las líneas se cotizan contra el catálogo.
func (s *OrderService) PlaceOrder(ctx context.Context, in NewOrder, lines []LineRequest) (*model.Order, error) {
	items, err := s.PriceLines(ctx, lines)
	if err != nil {
		return nil, err
	}
	in.Items = items
	return s.Create(ctx, in)
}

// Create arma el pedido en pending, calcula totales y le asigna número. Las
// líneas ya traen precio: vienen del catálogo o del carrito confirmado.
func (s *OrderService) Create(ctx context.Context, in NewOrder) (*model.Order, error) {
	if in.UserID == "" || len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: se requiere usuario y al menos un producto", ErrInvalidOrder)
	}
	if in.ShippingMethod == "" {
		in.ShippingMethod = model.ShippingStandard
	}
	if !in.ShippingMethod.Valid() {
		return nil, fmt.Errorf("%w: %q no es un método de envío válido", ErrInvalidOrder, in.ShippingMethod)
	}
	if !in.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: %q no es un método de pago válido", ErrInvalidOrder, in.PaymentMethod)
	}
	if in.Discount < 0 {
		return nil, fmt.Errorf("%w: el descuento no puede ser negativo", ErrInvalidOrder)
	}
	if in.Shipping.Country == "" {
		in.Shipping.Country = "Colombia"
	}

	now := s.clock.Now()
	o := &model.Order{
		UserID:         in.UserID,
		ShippingMethod: in.ShippingMethod,
		PaymentMethod:  in.PaymentMethod,
		Shipping:       in.Shipping,
		Totals:         model.Totals{Discount: in.Discount},
		Rules:          s.pricing.RulesFor(in.ShippingMethod),
	}
	ledger.Open(o, in.UserID, now)
	for _, it := range in.Items {
		if err := ledger.AddLineItem(o, it); err != nil {
			return nil, err
		}
	}
	if err := ledger.Reprice(o); err != nil {
		return nil, err
	}

	if err := s.insertWithSequence(ctx, o, now); err != nil {
		return nil, err
	}

	s.log.Info("pedido creado", "orderId", o.OrderID, "userId", o.UserID, "total", o.Totals.Total)
	s.publish(ctx, EventOrderCreated, o, in.UserID)
	return o, nil
}

func (s *OrderService) insertWithSequence(ctx context.Context, o *model.Order, now time.Time) error {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	period := ledger.Period(now)
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		last, err := s.repo.MaxSequenceForPeriod(ctx, period)
		if err != nil {
			return err
		}
		o.Period = period
		o.Sequence = last + 1
		o.OrderID = ledger.FormatOrderID(period, o.Sequence)

		err = s.repo.Insert(ctx, o)
		if errors.Is(err, repository.ErrDuplicateOrderID) {
			// Otra instancia ganó la misma secuencia; se vuelve a leer.
			continue
		}
		if err != nil {
			return fmt.Errorf("insert order %s: %w", o.OrderID, err)
		}
		return nil
	}
	return ErrOrderIDExhausted
}

// mutate es el ciclo leer -> validar -> escribir con control de versión.
// Ante un conflicto se relee y se vuelve a validar contra el estado nuevo,
// así dos transiciones desde el mismo estado nunca pasan las dos.
func (s *OrderService) mutate(ctx context.Context, orderID string, fn func(o *model.Order) error) (*model.Order, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		current, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		if err := ledger.Reprice(next); err != nil {
			return nil, err
		}
		next.UpdatedAt = s.clock.Now()

		err = s.repo.Save(ctx, next, current.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			s.log.Debug("conflicto de versión, releyendo pedido", "orderId", orderID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save order %s: %w", orderID, err)
		}
		return next, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrConcurrentUpdate, repository.ErrVersionConflict)
}

// ChangeStatus valida y realiza la transición entre estados según la tabla.
func (s *OrderService) ChangeStatus(ctx context.Context, orderID string, to model.OrderStatus, note string, actor *model.Principal) (*model.Order, error) {
	o, err := s.mutate(ctx, orderID, func(o *model.Order) error {
		return ledger.ChangeStatus(o, to, note, actor.ID, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("estado de pedido actualizado", "audit", true, "event", "ORDER_STATUS_CHANGED",
		"orderId", o.OrderID, "status", o.Status, "actorId", actor.ID)
	s.publish(ctx, EventOrderStatusChanged, o, actor.ID)
	return o, nil
}

// Cancel lo puede pedir el dueño del pedido mientras no se haya enviado.
func (s *OrderService) Cancel(ctx context.Context, orderID, note string, actor *model.Principal) (*model.Order, error) {
	o, err := s.mutate(ctx, orderID, func(o *model.Order) error {
		if !CanModify(actor, o) {
			return ErrNotOwner
		}
		if note == "" {
			note = "Cancelado por el cliente"
		}
		return ledger.ChangeStatus(o, model.StatusCancelled, note, actor.ID, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("pedido cancelado", "audit", true, "event", "ORDER_CANCELLED", "orderId", o.OrderID, "actorId", actor.ID)
	s.publish(ctx, EventOrderStatusChanged, o, actor.ID)
	return o, nil
}

// AddLineItem cotiza el producto contra el catálogo y lo agrega al pedido.
func (s *OrderService) AddLineItem(ctx context.Context, orderID string, req LineRequest, actor *model.Principal) (*model.Order, error) {
	item, err := s.priceLine(ctx, req)
	if err != nil {
		return nil, err
	}
	o, err := s.mutate(ctx, orderID, func(o *model.Order) error {
		if !CanModify(actor, o) {
			return ErrNotOwner
		}
		return ledger.AddLineItem(o, item)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventOrderItemsChanged, o, actor.ID)
	return o, nil
}

func (s *OrderService) RemoveLineItem(ctx context.Context, orderID, productID string, actor *model.Principal) (*model.Order, error) {
	o, err := s.mutate(ctx, orderID, func(o *model.Order) error {
		if !CanModify(actor, o) {
			return ErrNotOwner
		}
		return ledger.RemoveLineItem(o, productID)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventOrderItemsChanged, o, actor.ID)
	return o, nil
}

// Getters
func (s *OrderService) GetForPrincipal(ctx context.Context, orderID string, actor *model.Principal) (*model.Order, error) {
	o, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanView(actor, o) {
		return nil, ErrNotOwner
	}
	return o, nil
}

func (s *OrderService) GetAll(ctx context.Context) ([]*model.Order, error) {
	return s.repo.FindAll(ctx)
}

func (s *OrderService) GetByStatus(ctx context.Context, status model.OrderStatus) ([]*model.Order, error) {
	return s.repo.FindByStatus(ctx, status)
}

func (s *OrderService) GetByUserID(ctx context.Context, userID string) ([]*model.Order, error) {
	return s.repo.FindByOwner(ctx, userID)
}

var staffRoles = []model.Role{model.RoleAdmin, model.RoleModerator}

// CanView: el dueño, admin o moderador.
func CanView(p *model.Principal, o *model.Order) bool {
	return p != nil && (p.ID == o.UserID || slices.Contains(staffRoles, p.Role))
}

// CanModify: el dueño o un admin.
func CanModify(p *model.Principal, o *model.Order) bool {
	return p != nil && (p.ID == o.UserID || p.Role == model.RoleAdmin)
}

func (s *OrderService) publish(ctx context.Context, event string, o *model.Order, actorID string) {
	ev := OrderEvent{
		Event:   event,
		OrderID: o.OrderID,
		UserID:  o.UserID,
		Status:  o.Status,
		Total:   o.Totals.Total,
		ActorID: actorID,
		At:      s.clock.Now(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Error("no se pudo publicar evento de pedido", "event", event, "orderId", o.OrderID, "error", err)
	}
}
