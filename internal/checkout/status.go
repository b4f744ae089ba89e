package checkout

import (
	"fmt"

	"github.com/swishtrade/swish/internal/models"
)

// transitions is the single source of truth for purchase lifecycle moves.
// Terminal statuses have no entry. Enforced server-side regardless of what
// a client submits.
var transitions = map[models.PurchaseStatus][]models.PurchaseStatus{
	models.PurchasePending:   {models.PurchasePaid, models.PurchaseCancelled},
	models.PurchasePaid:      {models.PurchaseShipped, models.PurchaseCancelled, models.PurchaseRefunded},
	models.PurchaseShipped:   {models.PurchaseDelivered, models.PurchaseRefunded},
	models.PurchaseDelivered: {models.PurchaseCompleted, models.PurchaseRefunded},
}

func CanTransition(from, to models.PurchaseStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError reports a lifecycle move outside the transition table.
// A client-side fault, distinguishable from storage failures.
type TransitionError struct {
	From, To models.PurchaseStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func ValidateTransition(from, to models.PurchaseStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
