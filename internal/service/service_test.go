package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techstore-order-service/internal/clock"
	"techstore-order-service/internal/ledger"
	"techstore-order-service/internal/model"
	"techstore-order-service/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, ev OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingPublisher) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Event
	}
	return out
}

var (
	customer  = &model.Principal{ID: "cliente-1", Role: model.RoleCustomer, Active: true}
	stranger  = &model.Principal{ID: "cliente-2", Role: model.RoleCustomer, Active: true}
	admin     = &model.Principal{ID: "admin-1", Role: model.RoleAdmin, Active: true}
	moderator = &model.Principal{ID: "mod-1", Role: model.RoleModerator, Active: true}
)

func testCatalog() *repository.MemoryProductCatalog {
	return repository.NewMemoryProductCatalog(
		model.Product{ID: "laptop", Name: "Laptop", Price: 100000, InStock: true, Quantity: 10},
		model.Product{ID: "mouse", Name: "Mouse", Price: 10000, InStock: true, Quantity: 50},
		model.Product{ID: "monitor", Name: "Monitor", Price: 90000, MainImage: "monitor.png", InStock: true, Quantity: 3},
		model.Product{ID: "agotado", Name: "Agotado", Price: 5000, InStock: false},
	)
}

func newOrderFixture(t *testing.T) (*OrderService, *repository.MemoryOrderRepository, *recordingPublisher, *clock.Manual) {
	t.Helper()
	repo := repository.NewMemoryOrderRepository()
	pub := &recordingPublisher{}
	clk := clock.NewManual(t0)
	svc := NewOrderService(repo, clk, WithCatalog(testCatalog()), WithPublisher(pub), WithOrderLogger(discardLogger()))
	return svc, repo, pub, clk
}

func sampleOrder() NewOrder {
	return NewOrder{
		UserID: customer.ID,
		Items: []model.LineItem{
			{ProductID: "laptop", Name: "Laptop", UnitPrice: 100000, Quantity: 1},
			{ProductID: "mouse", Name: "Mouse", UnitPrice: 10000, Quantity: 2},
		},
		ShippingMethod: model.ShippingStandard,
		PaymentMethod:  model.PaymentPSE,
		Shipping:       model.ShippingAddress{FirstName: "Ana", City: "Bogotá"},
	}
}

func TestOrderService_Create(t *testing.T) {
	t.Parallel()
	svc, _, pub, _ := newOrderFixture(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, "2026-10-0001", o.OrderID)
	assert.Equal(t, model.StatusPending, o.Status)
	require.Len(t, o.History, 1)
	assert.Equal(t, "Colombia", o.Shipping.Country)

	// 120000 + 22800 de IVA + 25000 de envío estándar
	assert.Equal(t, int64(120000), o.Totals.Subtotal)
	assert.Equal(t, int64(22800), o.Totals.Tax)
	assert.Equal(t, int64(25000), o.Totals.Shipping)
	assert.Equal(t, int64(167800), o.Totals.Total)

	second, err := svc.Create(ctx, sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, "2026-10-0002", second.OrderID)
	assert.Equal(t, []string{EventOrderCreated, EventOrderCreated}, pub.names())
}

func TestOrderService_CreateValidation(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newOrderFixture(t)
	ctx := context.Background()

	in := sampleOrder()
	in.Items = nil
	_, err := svc.Create(ctx, in)
	require.ErrorIs(t, err, ErrInvalidOrder)

	in = sampleOrder()
	in.PaymentMethod = "bitcoin"
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, ErrInvalidOrder)

	in = sampleOrder()
	in.ShippingMethod = "teleport"
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, ErrInvalidOrder)

	in = sampleOrder()
	in.Items[0].Quantity = 0
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, ledger.ErrInvalidLineItem)
}

func TestOrderService_CreateRejectsOutOfRangePrices(t *testing.T) {
	t.Parallel()
	svc, repo, _, _ := newOrderFixture(t)
	ctx := context.Background()

	in := sampleOrder()
	in.Items = []model.LineItem{
		{ProductID: "a", UnitPrice: 9_000_000_000_000_000_000, Quantity: 1},
		{ProductID: "b", UnitPrice: 1_000_000_000_000_000_000, Quantity: 1},
	}
	_, err := svc.Create(ctx, in)
	require.ErrorIs(t, err, ledger.ErrInvalidLineItem)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOrderService_PlaceOrderPricesFromCatalog(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newOrderFixture(t)
	ctx := context.Background()

	in := sampleOrder()
	in.Items = nil
	o, err := svc.PlaceOrder(ctx, in, []LineRequest{
		{ProductID: "laptop", Quantity: 1},
		{ProductID: "mouse", Quantity: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "Laptop", o.Items[0].Name)
	assert.Equal(t, int64(100000), o.Items[0].UnitPrice)
	assert.Equal(t, int64(167800), o.Totals.Total)

	tests := []struct {
		name  string
		lines []LineRequest
	}{
		{"unknown product", []LineRequest{{ProductID: "nada", Quantity: 1}}},
		{"out of stock", []LineRequest{{ProductID: "agotado", Quantity: 1}}},
		{"not enough stock", []LineRequest{{ProductID: "monitor", Quantity: 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(ctx, in, tt.lines)
			require.ErrorIs(t, err, ErrProductUnavailable)
		})
	}
}

func TestOrderService_LaterConfigDoesNotRepriceOrders(t *testing.T) {
	t.Parallel()
	repo := repository.NewMemoryOrderRepository()
	clk := clock.NewManual(t0)
	before := NewOrderService(repo, clk, WithCatalog(testCatalog()), WithOrderLogger(discardLogger()))

	o, err := before.Create(context.Background(), sampleOrder())
	require.NoError(t, err)
	require.Equal(t, int64(167800), o.Totals.Total)

	// reinicio con otra tarifa de IVA y de envío
	after := NewOrderService(repo, clk,
		WithCatalog(testCatalog()),
		WithOrderLogger(discardLogger()),
		WithPricing(ledger.Pricing{
			TaxRate: 0.05,
			Shipping: ledger.ShippingPolicy{
				FreeThreshold: 1_000_000,
				Costs:         map[model.ShippingMethod]int64{model.ShippingStandard: 99000},
			},
		}),
	)

	confirmed, err := after.ChangeStatus(context.Background(), o.OrderID, model.StatusConfirmed, "", admin)
	require.NoError(t, err)
	assert.Equal(t, o.Totals, confirmed.Totals)
	assert.InDelta(t, 0.19, confirmed.Totals.TaxRate, 1e-9)

	// una línea nueva se cobra con las reglas del pedido: 210000 ya tiene envío gratis
	updated, err := after.AddLineItem(context.Background(), o.OrderID, LineRequest{ProductID: "monitor", Quantity: 1}, customer)
	require.NoError(t, err)
	assert.Equal(t, int64(249900), updated.Totals.Total)

	fresh, err := after.Create(context.Background(), sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, int64(120000+6000+99000), fresh.Totals.Total)
}

func TestOrderService_SequenceRestartsEachMonth(t *testing.T) {
	t.Parallel()
	svc, _, _, clk := newOrderFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, sampleOrder())
	require.NoError(t, err)

	clk.Advance(20 * 24 * time.Hour)
	o, err := svc.Create(ctx, sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, "2026-11-0001", o.OrderID)
}

func TestOrderService_ConcurrentCreatesGetUniqueNumbers(t *testing.T) {
	t.Parallel()
	svc, repo, _, _ := newOrderFixture(t)
	ctx := context.Background()

	const n = 40
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := svc.Create(ctx, sampleOrder())
			if assert.NoError(t, err) {
				ids <- o.OrderID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "número repetido %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	top, err := repo.MaxSequenceForPeriod(ctx, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, n, top)
}

// dupOnceRepo simula otra instancia que ya tomó el siguiente número.
type dupOnceRepo struct {
	*repository.MemoryOrderRepository
	fired atomic.Bool
}

func (d *dupOnceRepo) Insert(ctx context.Context, o *model.Order) error {
	if d.fired.CompareAndSwap(false, true) {
		taken := o.Clone()
		if err := d.MemoryOrderRepository.Insert(ctx, taken); err != nil {
			return err
		}
		return repository.ErrDuplicateOrderID
	}
	return d.MemoryOrderRepository.Insert(ctx, o)
}

func TestOrderService_CreateRetriesOnDuplicateNumber(t *testing.T) {
	t.Parallel()
	repo := &dupOnceRepo{MemoryOrderRepository: repository.NewMemoryOrderRepository()}
	svc := NewOrderService(repo, clock.NewManual(t0), WithOrderLogger(discardLogger()))

	o, err := svc.Create(context.Background(), sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, "2026-10-0002", o.OrderID)
}

func TestOrderService_ChangeStatus(t *testing.T) {
	t.Parallel()
	svc, repo, pub, _ := newOrderFixture(t)
	ctx := context.Background()
	o, err := svc.Create(ctx, sampleOrder())
	require.NoError(t, err)

	updated, err := svc.ChangeStatus(ctx, o.OrderID, model.StatusConfirmed, "pago aprobado", admin)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, updated.Status)
	require.Len(t, updated.History, 2)
	assert.Equal(t, admin.ID, updated.History[1].ActorID)

	_, err = svc.ChangeStatus(ctx, o.OrderID, model.StatusDelivered, "", admin)
	require.ErrorIs(t, err, ledger.ErrIllegalTransition)

	stored, err := repo.FindByID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, stored.Status)
	assert.Equal(t, int64(2), stored.Version)

	_, err = svc.ChangeStatus(ctx, "2026-10-9999", model.StatusConfirmed, "", admin)
	require.ErrorIs(t, err, repository.ErrNotFound)

	assert.Equal(t, []string{EventOrderCreated, EventOrderStatusChanged}, pub.names())
}

func TestOrderService_ConcurrentTransitionsOnlyOneWins(t *testing.T) {
	t.Parallel()
	svc, repo, _, _ := newOrderFixture(t)
	ctx := context.Background()
	o, err := svc.Create(ctx, sampleOrder())
	require.NoError(t, err)

	const n = 10
	var ok, illegal atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ChangeStatus(ctx, o.OrderID, model.StatusConfirmed, "", admin)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ledger.ErrIllegalTransition), errors.Is(err, ErrConcurrentUpdate):
				illegal.Add(1)
			default:
				t.Errorf("error inesperado: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), illegal.Load())

	stored, err := repo.FindByID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Len(t, stored.History, 2)
}

func TestOrderService_Cancel(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newOrderFixture(t)
	ctx := context.Background()
	o, err := svc.Create(ctx, sampleOrder())
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, o.OrderID, "", stranger)
	require.ErrorIs(t, err, ErrNotOwner)

	cancelled, err := svc.Cancel(ctx, o.OrderID, "", customer)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, "Cancelado por el cliente", cancelled.History[1].Note)

	other, err := svc.Create(ctx, sampleOrder())
	require.NoError(t, err)
	for _, s := range []model.OrderStatus{model.StatusConfirmed, model.StatusProcessing, model.StatusShipped} {
		_, err = svc.ChangeStatus(ctx, other.OrderID, s, "", admin)
		require.NoError(t, err)
	}
	_, err = svc.Cancel(ctx, other.OrderID, "", customer)
	require.ErrorIs(t, err, ledger.ErrIllegalTransition)
}

func TestOrderService_LineItems(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newOrderFixture(t)
	ctx := context.Background()
	o, err := svc.Create(ctx, sampleOrder())
	require.NoError(t, err)

	updated, err := svc.AddLineItem(ctx, o.OrderID, LineRequest{ProductID: "monitor", Quantity: 1}, customer)
	require.NoError(t, err)
	require.Len(t, updated.Items, 3)
	assert.Equal(t, model.LineItem{ProductID: "monitor", Name: "Monitor", UnitPrice: 90000, Quantity: 1, Image: "monitor.png"}, updated.Items[2])
	// 210000 supera el umbral: envío gratis
	assert.Equal(t, int64(210000), updated.Totals.Subtotal)
	assert.Zero(t, updated.Totals.Shipping)
	assert.Equal(t, int64(249900), updated.Totals.Total)

	_, err = svc.AddLineItem(ctx, o.OrderID, LineRequest{ProductID: "monitor", Quantity: 1}, stranger)
	require.ErrorIs(t, err, ErrNotOwner)

	_, err = svc.AddLineItem(ctx, o.OrderID, LineRequest{ProductID: "agotado", Quantity: 1}, customer)
	require.ErrorIs(t, err, ErrProductUnavailable)

	updated, err = svc.RemoveLineItem(ctx, o.OrderID, "monitor", admin)
	require.NoError(t, err)
	assert.Equal(t, int64(167800), updated.Totals.Total)

	_, err = svc.RemoveLineItem(ctx, o.OrderID, "monitor", customer)
	require.ErrorIs(t, err, ledger.ErrLineItemNotFound)

	// el moderador puede ver pero no editar
	_, err = svc.RemoveLineItem(ctx, o.OrderID, "mouse", moderator)
	require.ErrorIs(t, err, ErrNotOwner)

	for _, s := range []model.OrderStatus{model.StatusConfirmed, model.StatusProcessing, model.StatusShipped} {
		_, err = svc.ChangeStatus(ctx, o.OrderID, s, "", admin)
		require.NoError(t, err)
	}
	_, err = svc.AddLineItem(ctx, o.OrderID, LineRequest{ProductID: "monitor", Quantity: 1}, customer)
	require.ErrorIs(t, err, ledger.ErrOrderLocked)
}

func TestOrderService_GetForPrincipal(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newOrderFixture(t)
	ctx := context.Background()
	o, err := svc.Create(ctx, sampleOrder())
	require.NoError(t, err)

	for _, p := range []*model.Principal{customer, admin, moderator} {
		got, err := svc.GetForPrincipal(ctx, o.OrderID, p)
		require.NoError(t, err)
		assert.Equal(t, o.OrderID, got.OrderID)
	}
	_, err = svc.GetForPrincipal(ctx, o.OrderID, stranger)
	require.ErrorIs(t, err, ErrNotOwner)

	mine, err := svc.GetByUserID(ctx, customer.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	pending, err := svc.GetByStatus(ctx, model.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestOrderService_PublishFailureDoesNotFailOperation(t *testing.T) {
	t.Parallel()
	repo := repository.NewMemoryOrderRepository()
	pub := &recordingPublisher{err: errors.New("rabbit caído")}
	svc := NewOrderService(repo, clock.NewManual(t0), WithPublisher(pub), WithOrderLogger(discardLogger()))

	o, err := svc.Create(context.Background(), sampleOrder())
	require.NoError(t, err)
	assert.NotEmpty(t, o.OrderID)
	assert.Len(t, pub.names(), 1)
}
