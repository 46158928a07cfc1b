package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"techstore-order-service/internal/model"
)

// MemoryOrderRepository cumple el mismo contrato que la versión Mongo
// (versionado optimista, número de pedido único). Se usa en tests y con
// STORAGE_DRIVER=memory.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*model.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]*model.Order)}
}

func (m *MemoryOrderRepository) Insert(_ context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[o.OrderID]; ok {
		return ErrDuplicateOrderID
	}
	o.Version = 1
	m.orders[o.OrderID] = o.Clone()
	return nil
}

func (m *MemoryOrderRepository) Save(_ context.Context, o *model.Order, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.orders[o.OrderID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	next := o.Clone()
	next.Version = expectedVersion + 1
	m.orders[o.OrderID] = next
	o.Version = next.Version
	return nil
}

func (m *MemoryOrderRepository) FindByID(_ context.Context, orderID string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (m *MemoryOrderRepository) MaxSequenceForPeriod(_ context.Context, period string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	top := 0
	for _, o := range m.orders {
		if o.Period == period && o.Sequence > top {
			top = o.Sequence
		}
	}
	return top, nil
}

func (m *MemoryOrderRepository) FindAll(_ context.Context) ([]*model.Order, error) {
	return m.filter(func(*model.Order) bool { return true }), nil
}

func (m *MemoryOrderRepository) FindByStatus(_ context.Context, status model.OrderStatus) ([]*model.Order, error) {
	return m.filter(func(o *model.Order) bool { return o.Status == status }), nil
}

func (m *MemoryOrderRepository) FindByOwner(_ context.Context, userID string) ([]*model.Order, error) {
	return m.filter(func(o *model.Order) bool { return o.UserID == userID }), nil
}

func (m *MemoryOrderRepository) filter(keep func(*model.Order) bool) []*model.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*model.Order{}
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	// Más recientes primero, igual que en Mongo.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID > out[j].OrderID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

type MemoryPrincipalRepository struct {
	mu    sync.RWMutex
	byID  map[string]*model.Principal
	email map[string]string
}

func NewMemoryPrincipalRepository() *MemoryPrincipalRepository {
	return &MemoryPrincipalRepository{
		byID:  make(map[string]*model.Principal),
		email: make(map[string]string),
	}
}

func clonePrincipal(p *model.Principal) *model.Principal {
	c := *p
	if p.LockUntil != nil {
		t := *p.LockUntil
		c.LockUntil = &t
	}
	if p.LastLogin != nil {
		t := *p.LastLogin
		c.LastLogin = &t
	}
	if p.Address != nil {
		a := *p.Address
		c.Address = &a
	}
	return &c
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (m *MemoryPrincipalRepository) FindByID(_ context.Context, id string) (*model.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (m *MemoryPrincipalRepository) FindByEmail(ctx context.Context, email string) (*model.Principal, error) {
	m.mu.RLock()
	id, ok := m.email[normalizeEmail(email)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.FindByID(ctx, id)
}

func (m *MemoryPrincipalRepository) Insert(_ context.Context, p *model.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeEmail(p.Email)
	if _, ok := m.email[key]; ok {
		return ErrDuplicateEmail
	}
	m.byID[p.ID] = clonePrincipal(p)
	m.email[key] = p.ID
	return nil
}

func (m *MemoryPrincipalRepository) Save(_ context.Context, p *model.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.byID[p.ID]
	if !ok {
		return ErrNotFound
	}
	key := normalizeEmail(p.Email)
	if owner, taken := m.email[key]; taken && owner != p.ID {
		return ErrDuplicateEmail
	}
	delete(m.email, normalizeEmail(cur.Email))
	m.email[key] = p.ID
	m.byID[p.ID] = clonePrincipal(p)
	return nil
}

func (m *MemoryPrincipalRepository) RecordFailedLogin(_ context.Context, id string, now time.Time, policy model.LockoutPolicy) (*model.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.RegisterFailedLogin(now, policy)
	p.UpdatedAt = now
	return clonePrincipal(p), nil
}

func (m *MemoryPrincipalRepository) ClearFailedLogins(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.ClearFailedLogins(now)
	p.UpdatedAt = now
	return nil
}
