package ledger

import (
	"errors"
	"fmt"

	"techstore-order-service/internal/model"
)

// Errores de negocio del pedido. Nunca se corrigen al "estado más cercano":
// el llamador recibe el rechazo tal cual.
var (
	ErrIllegalTransition = errors.New("transición de estado inválida")
	ErrOrderLocked       = errors.New("el pedido ya no admite cambios en sus productos")
	ErrLineItemNotFound  = errors.New("producto no encontrado en el pedido")
	ErrInvalidLineItem   = errors.New("línea de pedido inválida")
	ErrAmountOutOfRange  = errors.New("importe fuera de rango")
)

// TransitionError informa el estado actual y el pedido.
type TransitionError struct {
	From model.OrderStatus
	To   model.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("No se puede cambiar de %s a %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrIllegalTransition }

type LockedError struct {
	Status model.OrderStatus
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("el pedido en estado %s ya no admite cambios en sus productos", e.Status)
}

func (e *LockedError) Is(target error) bool { return target == ErrOrderLocked }
