package services

import (
	"time"

	"github.com/shiftworks/assignment-service/internal/models"
	"github.com/shiftworks/assignment-service/internal/utils"
)

type AssignmentEvent string

const (
	EventCheckIn  AssignmentEvent = "check_in"
	EventCheckOut AssignmentEvent = "check_out"
	EventAdvance  AssignmentEvent = "advance"
	EventCancel   AssignmentEvent = "cancel"
)

var deliveryAdvance = map[models.AssignmentStatusType]models.AssignmentStatusType{
	models.AssignmentStatusPendingPickup: models.AssignmentStatusPickingUp,
	models.AssignmentStatusPickingUp:     models.AssignmentStatusInDelivery,
	models.AssignmentStatusInDelivery:    models.AssignmentStatusDelivered,
}

func eventForTokenType(t models.TokenType) AssignmentEvent {
	if t == models.TokenTypeCheckOut {
		return EventCheckOut
	}
	return EventCheckIn
}

// CheckRedemptionState returns utils.ErrWrongState unless a is in the
// state the given direction requires. Used both before issuing a token
// and before redeeming one.
func CheckRedemptionState(a *models.Assignment, direction models.TokenType) error {
	switch direction {
	case models.TokenTypeCheckIn:
		if a.StartedAt != nil || a.Status.IsTerminal() {
			return utils.ErrWrongState
		}
	case models.TokenTypeCheckOut:
		if a.StartedAt == nil || a.CompletedAt != nil || a.Status != models.AssignmentStatusActive {
			return utils.ErrWrongState
		}
	default:
		return utils.ErrInvalidToken
	}
	return nil
}

// ApplyAssignmentEvent moves a to its next state and stamps the matching
// timestamps. a is left untouched on error.
func ApplyAssignmentEvent(a *models.Assignment, ev AssignmentEvent, now time.Time) error {
	switch ev {
	case EventCheckIn:
		if err := CheckRedemptionState(a, models.TokenTypeCheckIn); err != nil {
			return err
		}
		a.Status = models.AssignmentStatusActive
		a.StartedAt = utils.Ptr(now)

	case EventCheckOut:
		if err := CheckRedemptionState(a, models.TokenTypeCheckOut); err != nil {
			return err
		}
		a.Status = models.AssignmentStatusCompleted
		a.CompletedAt = utils.Ptr(now)

	case EventAdvance:
		next, ok := deliveryAdvance[a.Status]
		if !ok {
			return utils.NewInvalidTransitionError(a.Status, string(ev))
		}
		a.Status = next
		switch next {
		case models.AssignmentStatusInDelivery:
			if a.PickedUpAt == nil {
				a.PickedUpAt = utils.Ptr(now)
			}
		case models.AssignmentStatusDelivered:
			a.DeliveredAt = utils.Ptr(now)
			a.CompletedAt = utils.Ptr(now)
		}

	case EventCancel:
		if a.Status.IsTerminal() {
			return utils.NewInvalidTransitionError(a.Status, string(ev))
		}
		a.Status = models.AssignmentStatusCancelled

	default:
		return utils.NewInvalidTransitionError(a.Status, string(ev))
	}
	return nil
}
