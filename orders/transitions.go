package orders

import (
	"shop-service/apperr"
	"shop-service/models"
)

// transitions is the single authoritative table of allowed status moves.
// Every transition request is validated here; there are no ad hoc status
// checks scattered per operation. CANCELLED, REFUNDED, COMPLETED and FAILED
// have no outbound transitions.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:    {models.StatusProcessing, models.StatusCancelled, models.StatusOnHold, models.StatusFailed},
	models.StatusProcessing: {models.StatusShipped, models.StatusCancelled, models.StatusOnHold},
	models.StatusOnHold:     {models.StatusProcessing, models.StatusCancelled},
	models.StatusShipped:    {models.StatusDelivered, models.StatusReturned},
	models.StatusDelivered:  {models.StatusReturned, models.StatusCompleted},
	models.StatusReturned:   {models.StatusRefunded},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to models.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable from the given one.
func AllowedTargets(from models.OrderStatus) []models.OrderStatus {
	return transitions[from]
}

func checkTransition(from, to models.OrderStatus) error {
	if !CanTransition(from, to) {
		return apperr.Newf(apperr.KindInvalidTransition,
			"cannot transition order from %s to %s", from, to)
	}
	return nil
}

// notCancellable lists the statuses from which CancelOrder is rejected.
var notCancellable = map[models.OrderStatus]bool{
	models.StatusShipped:   true,
	models.StatusDelivered: true,
	models.StatusCompleted: true,
	models.StatusCancelled: true,
	models.StatusRefunded:  true,
}

// IsCancellable reports whether an order in the given status may be
// cancelled.
func IsCancellable(status models.OrderStatus) bool {
	return !notCancellable[status]
}
