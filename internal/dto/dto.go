// dto.go
package dto

import (
	"time"

	"techstore-order-service/internal/ledger"
	"techstore-order-service/internal/model"
	"techstore-order-service/internal/service"
)

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"firstName" binding:"required,max=50"`
	LastName  string `json:"lastName" binding:"required,max=50"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LineItemDTO se usa al crear el pedido y al agregar productos. El precio y
// el nombre no se aceptan del cliente: salen del catálogo.
type LineItemDTO struct {
	ProductID string `json:"productId" binding:"required,max=100"`
	Quantity  int    `json:"quantity" binding:"required,min=1,max=100"`
}

func (d LineItemDTO) ToRequest() service.LineRequest {
	return service.LineRequest{ProductID: d.ProductID, Quantity: d.Quantity}
}

func LineRequests(items []LineItemDTO) []service.LineRequest {
	out := make([]service.LineRequest, len(items))
	for i, it := range items {
		out[i] = it.ToRequest()
	}
	return out
}

// ShippingDTO para la dirección de entrega
type ShippingDTO struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"`
	Street    string `json:"street" binding:"required"`
	City      string `json:"city" binding:"required"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

func (d ShippingDTO) ToModel() model.ShippingAddress {
	return model.ShippingAddress{
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Street:    d.Street,
		City:      d.City,
		State:     d.State,
		ZipCode:   d.ZipCode,
		Country:   d.Country,
		Phone:     d.Phone,
	}
}

type CreateOrderRequest struct {
	Items          []LineItemDTO `json:"items" binding:"required,min=1,dive"`
	ShippingMethod string        `json:"shippingMethod" binding:"omitempty,oneof=standard express overnight pickup"`
	PaymentMethod  string        `json:"paymentMethod" binding:"required,oneof=credit_card debit_card pse cash_on_delivery bank_transfer"`
	Shipping       ShippingDTO   `json:"shippingAddress"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending confirmed processing shipped delivered cancelled returned"`
	Note   string `json:"note" binding:"max=500"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type UpdatePrincipalRequest struct {
	Role   *string `json:"role" binding:"omitempty,oneof=customer admin moderator"`
	Active *bool   `json:"active"`
}

// UpdateProfileRequest sólo admite los campos que el usuario puede cambiar
// de sí mismo; email, rol y estado quedan fuera.
type UpdateProfileRequest struct {
	FirstName *string     `json:"firstName" binding:"omitempty,min=2,max=50"`
	LastName  *string     `json:"lastName" binding:"omitempty,min=2,max=50"`
	Phone     *string     `json:"phone" binding:"omitempty,len=10,numeric"`
	Address   *AddressDTO `json:"address"`
}

type AddressDTO struct {
	Street  string `json:"street" binding:"max=200"`
	City    string `json:"city" binding:"max=100"`
	State   string `json:"state" binding:"max=100"`
	ZipCode string `json:"zipCode" binding:"max=10"`
	Country string `json:"country" binding:"max=50"`
}

func (r UpdateProfileRequest) ToUpdate() service.ProfileUpdate {
	upd := service.ProfileUpdate{FirstName: r.FirstName, LastName: r.LastName, Phone: r.Phone}
	if r.Address != nil {
		upd.Address = &model.Address{
			Street:  r.Address.Street,
			City:    r.Address.City,
			State:   r.Address.State,
			ZipCode: r.Address.ZipCode,
			Country: r.Address.Country,
		}
	}
	return upd
}

type OrderResponse struct {
	OrderID               string                `json:"orderId"`
	UserID                string                `json:"userId"`
	Items                 []model.LineItem      `json:"items"`
	Totals                model.Totals          `json:"totals"`
	Status                model.OrderStatus     `json:"status"`
	StatusText            string                `json:"statusText"`
	History               []model.StatusRecord  `json:"statusHistory"`
	ShippingMethod        model.ShippingMethod  `json:"shippingMethod"`
	PaymentMethod         model.PaymentMethod   `json:"paymentMethod"`
	Shipping              model.ShippingAddress `json:"shippingAddress"`
	TotalItems            int                   `json:"totalItems"`
	CanBeCancelled        bool                  `json:"canBeCancelled"`
	EstimatedDeliveryDays int                   `json:"estimatedDeliveryDays"`
	DeliveredAt           *time.Time            `json:"deliveredAt,omitempty"`
	CreatedAt             time.Time             `json:"createdAt"`
	UpdatedAt             time.Time             `json:"updatedAt"`
	NextStatuses          []model.OrderStatus   `json:"nextStatuses"`
}

func NewOrderResponse(o *model.Order) OrderResponse {
	return OrderResponse{
		OrderID:               o.OrderID,
		UserID:                o.UserID,
		Items:                 o.Items,
		Totals:                o.Totals,
		Status:                o.Status,
		StatusText:            o.Status.Text(),
		History:               o.History,
		ShippingMethod:        o.ShippingMethod,
		PaymentMethod:         o.PaymentMethod,
		Shipping:              o.Shipping,
		TotalItems:            o.TotalItems(),
		CanBeCancelled:        ledger.CanBeCancelled(o.Status),
		EstimatedDeliveryDays: ledger.EstimatedDeliveryDays(o.ShippingMethod),
		DeliveredAt:           o.DeliveredAt,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
		NextStatuses:          ledger.AllowedTransitions(o.Status),
	}
}

func NewOrderResponses(orders []*model.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, NewOrderResponse(o))
	}
	return out
}

// OrderSummary es la vista resumida del listado admin
type OrderSummary struct {
	OrderID    string            `json:"orderId"`
	UserID     string            `json:"userId"`
	Status     model.OrderStatus `json:"status"`
	StatusText string            `json:"statusText"`
	Total      int64             `json:"total"`
	TotalItems int               `json:"totalItems"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func NewOrderSummaries(orders []*model.Order) []OrderSummary {
	out := make([]OrderSummary, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderSummary{
			OrderID:    o.OrderID,
			UserID:     o.UserID,
			Status:     o.Status,
			StatusText: o.Status.Text(),
			Total:      o.Totals.Total,
			TotalItems: o.TotalItems(),
			CreatedAt:  o.CreatedAt,
		})
	}
	return out
}
