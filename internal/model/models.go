// models.go
package model

import "time"

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusReturned   OrderStatus = "returned"
)

// Etiquetas en español que muestra el front.
var statusTexts = map[OrderStatus]string{
	StatusPending:    "Pendiente",
	StatusConfirmed:  "Confirmado",
	StatusProcessing: "En Preparación",
	StatusShipped:    "Enviado",
	StatusDelivered:  "Entregado",
	StatusCancelled:  "Cancelado",
	StatusReturned:   "Devuelto",
}

func (s OrderStatus) Valid() bool {
	_, ok := statusTexts[s]
	return ok
}

func (s OrderStatus) Text() string {
	if t, ok := statusTexts[s]; ok {
		return t
	}
	return string(s)
}

type ShippingMethod string

const (
	ShippingStandard  ShippingMethod = "standard"
	ShippingExpress   ShippingMethod = "express"
	ShippingOvernight ShippingMethod = "overnight"
	ShippingPickup    ShippingMethod = "pickup"
)

func (m ShippingMethod) Valid() bool {
	switch m {
	case ShippingStandard, ShippingExpress, ShippingOvernight, ShippingPickup:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCreditCard     PaymentMethod = "credit_card"
	PaymentDebitCard      PaymentMethod = "debit_card"
	PaymentPSE            PaymentMethod = "pse"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentBankTransfer   PaymentMethod = "bank_transfer"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCreditCard, PaymentDebitCard, PaymentPSE, PaymentCashOnDelivery, PaymentBankTransfer:
		return true
	}
	return false
}

// Order es el pedido completo. Los montos son enteros en pesos (COP no tiene centavos).
type Order struct {
	OrderID        string          `bson:"order_id" json:"orderId"`
	Period         string          `bson:"period" json:"-"`
	Sequence       int             `bson:"sequence" json:"-"`
	UserID         string          `bson:"user_id" json:"userId"`
	Items          []LineItem      `bson:"items" json:"items"`
	Totals         Totals          `bson:"totals" json:"totals"`
	Rules          PriceRules      `bson:"price_rules" json:"-"`
	Status         OrderStatus     `bson:"status" json:"status"`
	History        []StatusRecord  `bson:"history" json:"history"`
	ShippingMethod ShippingMethod  `bson:"shipping_method" json:"shippingMethod"`
	PaymentMethod  PaymentMethod   `bson:"payment_method" json:"paymentMethod"`
	Shipping       ShippingAddress `bson:"shipping" json:"shipping"`
	DeliveredAt    *time.Time      `bson:"delivered_at" json:"deliveredAt,omitempty"`
	CreatedAt      time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `bson:"updated_at" json:"updatedAt"`

	// Control de concurrencia optimista; lo incrementa el repositorio en cada Save.
	Version int64 `bson:"version" json:"version"`
}

// LineItem copia precio y nombre al momento de la compra.
type LineItem struct {
	ProductID string `bson:"product_id" json:"productId"`
	Name      string `bson:"name" json:"name"`
	UnitPrice int64  `bson:"unit_price" json:"unitPrice"`
	Quantity  int    `bson:"quantity" json:"quantity"`
	Image     string `bson:"image,omitempty" json:"image,omitempty"`
}

type Totals struct {
	Subtotal int64   `bson:"subtotal" json:"subtotal"`
	TaxRate  float64 `bson:"tax_rate" json:"taxRate"`
	Tax      int64   `bson:"tax" json:"tax"`
	Shipping int64   `bson:"shipping" json:"shipping"`
	Discount int64   `bson:"discount" json:"discount"`
	Total    int64   `bson:"total" json:"total"`
}

// PriceRules se congela al crear el pedido; los recálculos posteriores usan
// estas reglas y no la configuración vigente.
type PriceRules struct {
	TaxRate               float64 `bson:"tax_rate"`
	ShippingCost          int64   `bson:"shipping_cost"`
	FreeShippingThreshold int64   `bson:"free_shipping_threshold"`
}

// Product es la parte del catálogo que el pedido necesita. El catálogo lo
// administra otro servicio; aquí sólo se lee.
type Product struct {
	ID        string `bson:"-" json:"id"`
	Name      string `bson:"name" json:"name"`
	Price     int64  `bson:"price" json:"price"`
	MainImage string `bson:"mainImage" json:"mainImage"`
	InStock   bool   `bson:"inStock" json:"inStock"`
	Quantity  int    `bson:"quantity" json:"quantity"`
}

type ShippingAddress struct {
	FirstName string `bson:"first_name" json:"firstName"`
	LastName  string `bson:"last_name" json:"lastName"`
	Street    string `bson:"street" json:"street"`
	City      string `bson:"city" json:"city"`
	State     string `bson:"state" json:"state"`
	ZipCode   string `bson:"zip_code" json:"zipCode"`
	Country   string `bson:"country" json:"country"`
	Phone     string `bson:"phone" json:"phone"`
}

type StatusRecord struct {
	Status    OrderStatus `bson:"status" json:"status"`
	Note      string      `bson:"note" json:"note"`
	ActorID   string      `bson:"actor_id" json:"actorId"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}

// TotalItems suma las unidades de todas las líneas.
func (o *Order) TotalItems() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// LatestStatus devuelve la última entrada del historial, o nil si está vacío.
func (o *Order) LatestStatus() *StatusRecord {
	if len(o.History) == 0 {
		return nil
	}
	return &o.History[len(o.History)-1]
}

// Clone copia el pedido para poder mutarlo sin tocar el original.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	c.History = append([]StatusRecord(nil), o.History...)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		c.DeliveredAt = &t
	}
	return &c
}
