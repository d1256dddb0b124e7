package utils

import (
	"errors"
	"fmt"

	"github.com/shiftworks/assignment-service/internal/models"
)

/*
Sentinel errors for the assignment core.
Callers can do: if errors.Is(err, ErrXYZ) { ... }
Each kind is client-correctable and must reach the caller unchanged.
*/
var (
	ErrInvalidToken        = errors.New("invalid_token")
	ErrNotYourAssignment   = errors.New("not_your_assignment")
	ErrTokenAlreadyUsed    = errors.New("token_already_used")
	ErrTokenExpired        = errors.New("token_expired")
	ErrWrongState          = errors.New("wrong_state")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrBankAccountNotFound = errors.New("bank_account_not_found")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrNotFound            = errors.New("not_found")
	ErrInvalidPayload      = errors.New("invalid_payload")

	// For concurrency conflicts
	ErrRowVersionConflict = errors.New("row_version_conflict")

	// For external service failures (e.g. SendGrid)
	ErrExternalServiceFailure = errors.New("external_service_failure")
)

/*
InvalidTransitionError names the state an assignment was in when a
transition was refused. errors.Is(err, ErrInvalidTransition) holds.
*/
type InvalidTransitionError struct {
	Current models.AssignmentStatusType
	Event   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid_transition: cannot %s from %s", e.Event, e.Current)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func NewInvalidTransitionError(current models.AssignmentStatusType, event string) error {
	return &InvalidTransitionError{Current: current, Event: event}
}
