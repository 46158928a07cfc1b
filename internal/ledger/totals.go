// Package ledger contiene las reglas puras del pedido: totales, máquina de
// estados y manejo de líneas. Nada aquí toca la base de datos; el servicio
// llama a estas funciones justo antes de persistir.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"techstore-order-service/internal/model"
)

const (
	DefaultTaxRate               = 0.19 // IVA Colombia
	DefaultFreeShippingThreshold = 200000

	// MaxUnitPrice es el tope del catálogo ($999.999.999).
	MaxUnitPrice = 999_999_999
	// MaxOrderAmount acota el subtotal; con impuesto y envío sigue lejos del límite de int64.
	MaxOrderAmount = 1_000_000_000_000_000
)

type ShippingPolicy struct {
	FreeThreshold int64
	Costs         map[model.ShippingMethod]int64
}

func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{
		FreeThreshold: DefaultFreeShippingThreshold,
		Costs: map[model.ShippingMethod]int64{
			model.ShippingStandard:  25000,
			model.ShippingExpress:   45000,
			model.ShippingOvernight: 75000,
			model.ShippingPickup:    0,
		},
	}
}

// Cost devuelve la tarifa base del método, sin aplicar el umbral de envío
// gratis. Un método desconocido se cobra como standard.
func (p ShippingPolicy) Cost(method model.ShippingMethod) int64 {
	if method == model.ShippingPickup {
		return 0
	}
	if c, ok := p.Costs[method]; ok {
		return c
	}
	return p.Costs[model.ShippingStandard]
}

// ComputeTotals es determinista: mismo input, mismo resultado. El impuesto se
// redondea half-up al peso; el total nunca baja de cero. Un subtotal que
// supere MaxOrderAmount se rechaza antes de desbordar int64.
func ComputeTotals(items []model.LineItem, rules model.PriceRules, discount int64) (model.Totals, error) {
	if rules.TaxRate < 0 || rules.TaxRate > 1 || rules.ShippingCost < 0 || rules.ShippingCost > MaxOrderAmount {
		return model.Totals{}, fmt.Errorf("%w: reglas de precio fuera de rango", ErrAmountOutOfRange)
	}

	var subtotal int64
	for _, it := range items {
		if it.UnitPrice < 0 || it.Quantity < 0 {
			return model.Totals{}, ErrInvalidLineItem
		}
		if it.Quantity > 0 && it.UnitPrice > (MaxOrderAmount-subtotal)/int64(it.Quantity) {
			return model.Totals{}, fmt.Errorf("%w: el subtotal supera %d", ErrAmountOutOfRange, int64(MaxOrderAmount))
		}
		subtotal += it.UnitPrice * int64(it.Quantity)
	}
	if discount < 0 {
		discount = 0
	}

	tax := decimal.NewFromInt(subtotal).
		Mul(decimal.NewFromFloat(rules.TaxRate)).
		Round(0).
		IntPart()

	var shipping int64
	if subtotal < rules.FreeShippingThreshold {
		shipping = rules.ShippingCost
	}

	total := subtotal + tax + shipping - discount
	if total < 0 {
		total = 0
	}

	return model.Totals{
		Subtotal: subtotal,
		TaxRate:  rules.TaxRate,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    total,
	}, nil
}

// Pricing es la configuración vigente. Sólo se lee al crear un pedido.
type Pricing struct {
	TaxRate  float64
	Shipping ShippingPolicy
}

func DefaultPricing() Pricing {
	return Pricing{TaxRate: DefaultTaxRate, Shipping: DefaultShippingPolicy()}
}

// RulesFor congela las reglas con las que se cobrará un pedido con ese método de envío.
func (p Pricing) RulesFor(method model.ShippingMethod) model.PriceRules {
	return model.PriceRules{
		TaxRate:               p.TaxRate,
		ShippingCost:          p.Shipping.Cost(method),
		FreeShippingThreshold: p.Shipping.FreeThreshold,
	}
}

// Reprice recalcula los totales con las reglas guardadas en el pedido,
// conservando su descuento.
func Reprice(o *model.Order) error {
	t, err := ComputeTotals(o.Items, o.Rules, o.Totals.Discount)
	if err != nil {
		return err
	}
	o.Totals = t
	return nil
}

var deliveryDays = map[model.ShippingMethod]int{
	model.ShippingStandard:  5,
	model.ShippingExpress:   3,
	model.ShippingOvernight: 1,
	model.ShippingPickup:    0,
}

func EstimatedDeliveryDays(method model.ShippingMethod) int {
	if d, ok := deliveryDays[method]; ok {
		return d
	}
	return 5
}
