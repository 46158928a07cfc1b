package ledger

import (
	"techstore-order-service/internal/model"
)

const MaxQuantityPerLine = 100

// IsEditable: sólo antes del envío se pueden tocar las líneas.
func IsEditable(s model.OrderStatus) bool {
	switch s {
	case model.StatusPending, model.StatusConfirmed, model.StatusProcessing:
		return true
	}
	return false
}

func ValidateLineItem(it model.LineItem) error {
	if it.ProductID == "" || it.Quantity < 1 || it.Quantity > MaxQuantityPerLine ||
		it.UnitPrice < 0 || it.UnitPrice > MaxUnitPrice {
		return ErrInvalidLineItem
	}
	return nil
}

// AddLineItem suma cantidades si el producto ya está (tope 100) o agrega una
// línea nueva. El llamador debe recalcular totales antes de guardar.
func AddLineItem(o *model.Order, it model.LineItem) error {
	if !IsEditable(o.Status) {
		return &LockedError{Status: o.Status}
	}
	if err := ValidateLineItem(it); err != nil {
		return err
	}

	for i := range o.Items {
		if o.Items[i].ProductID == it.ProductID {
			o.Items[i].Quantity = min(o.Items[i].Quantity+it.Quantity, MaxQuantityPerLine)
			return nil
		}
	}
	o.Items = append(o.Items, it)
	return nil
}

func RemoveLineItem(o *model.Order, productID string) error {
	if !IsEditable(o.Status) {
		return &LockedError{Status: o.Status}
	}
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			o.Items = append(o.Items[:i:i], o.Items[i+1:]...)
			return nil
		}
	}
	return ErrLineItemNotFound
}
