package booking

import "github.com/tabletopreserve/tabletop/services/booking-service/internal/model"

// Allowed source statuses per target status, one map per booking kind.
var transitionMap = map[model.Kind]map[model.Status][]model.Status{
	model.KindTable: {
		model.StatusConfirmed: {model.StatusPending},
		model.StatusCompleted: {model.StatusConfirmed},
		model.StatusCancelled: {model.StatusPending, model.StatusConfirmed},
	},
	model.KindEvent: {
		model.StatusCompleted: {model.StatusConfirmed},
		model.StatusCancelled: {model.StatusConfirmed},
	},
}

func ValidTransition(kind model.Kind, from, to model.Status) bool {
	allowed, ok := transitionMap[kind][to]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}
