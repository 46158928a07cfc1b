package ledger

import (
	"slices"
	"time"

	"techstore-order-service/internal/model"
)

// Transiciones permitidas. cancelled y returned son finales.
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.StatusPending:    {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed:  {model.StatusProcessing, model.StatusCancelled},
	model.StatusProcessing: {model.StatusShipped, model.StatusCancelled},
	model.StatusShipped:    {model.StatusDelivered, model.StatusReturned},
	model.StatusDelivered:  {model.StatusReturned},
	model.StatusCancelled:  {},
	model.StatusReturned:   {},
}

func AllowedTransitions(from model.OrderStatus) []model.OrderStatus {
	return slices.Clone(transitions[from])
}

// CanTransition nunca acepta from == to.
func CanTransition(from, to model.OrderStatus) bool {
	return slices.Contains(transitions[from], to)
}

func IsTerminal(s model.OrderStatus) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanBeCancelled coincide con los estados previos al envío.
func CanBeCancelled(s model.OrderStatus) bool {
	return CanTransition(s, model.StatusCancelled)
}

// Open deja el pedido en pending con su primera entrada de historial.
func Open(o *model.Order, actorID string, now time.Time) {
	o.Status = model.StatusPending
	o.History = []model.StatusRecord{{
		Status:    model.StatusPending,
		Note:      "Pedido creado",
		ActorID:   actorID,
		Timestamp: now,
	}}
	o.CreatedAt = now
	o.UpdatedAt = now
}

// ChangeStatus aplica la transición sólo si está en la tabla. Si falla, el
// pedido queda intacto.
func ChangeStatus(o *model.Order, to model.OrderStatus, note, actorID string, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{From: o.Status, To: to}
	}

	o.Status = to
	o.History = append(o.History, model.StatusRecord{
		Status:    to,
		Note:      note,
		ActorID:   actorID,
		Timestamp: now,
	})
	if to == model.StatusDelivered && o.DeliveredAt == nil {
		t := now
		o.DeliveredAt = &t
	}
	o.UpdatedAt = now
	return nil
}
