package models

import (
	"time"

	"github.com/google/uuid"
)

type SettlementTaskStatusType string

const (
	SettlementTaskStatusPending   SettlementTaskStatusType = "PENDING"
	SettlementTaskStatusSucceeded SettlementTaskStatusType = "SUCCEEDED"
	SettlementTaskStatusSkipped   SettlementTaskStatusType = "SKIPPED"
	SettlementTaskStatusFailed    SettlementTaskStatusType = "FAILED"
)

// SettlementTask is the durable record of a pending or failed settlement.
// One row per assignment; it is written in the same transaction that moves
// the assignment into a settling state.
type SettlementTask struct {
	Versioned

	ID                uuid.UUID                `json:"id"`
	AssignmentID      uuid.UUID                `json:"assignment_id"`
	Status            SettlementTaskStatusType `json:"status"`
	Attempts          int                      `json:"attempts"`
	LastFailureReason *string                  `json:"last_failure_reason,omitempty"`
	NextAttemptAt     *time.Time               `json:"next_attempt_at,omitempty"`
	PaymentID         *uuid.UUID               `json:"payment_id,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

func (t *SettlementTask) GetID() string {
	return t.ID.String()
}
