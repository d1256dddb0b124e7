package models

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawalStatusType string

const (
	WithdrawalStatusPending    WithdrawalStatusType = "PENDING"
	WithdrawalStatusProcessing WithdrawalStatusType = "PROCESSING"
	WithdrawalStatusCompleted  WithdrawalStatusType = "COMPLETED"
	WithdrawalStatusRejected   WithdrawalStatusType = "REJECTED"
)

func (s WithdrawalStatusType) Valid() bool {
	switch s {
	case WithdrawalStatusPending, WithdrawalStatusProcessing, WithdrawalStatusCompleted, WithdrawalStatusRejected:
		return true
	}
	return false
}

// IsFinal reports whether processed_at must be stamped for this status.
func (s WithdrawalStatusType) IsFinal() bool {
	return s == WithdrawalStatusCompleted || s == WithdrawalStatusRejected
}

// Withdrawals in these statuses are deducted from the available balance.
var DeductedWithdrawalStatuses = []WithdrawalStatusType{
	WithdrawalStatusProcessing,
	WithdrawalStatusCompleted,
}

type WithdrawalRequest struct {
	Versioned

	ID            uuid.UUID            `json:"id"`
	UserID        uuid.UUID            `json:"user_id"`
	BankAccountID uuid.UUID            `json:"bank_account_id"`
	Amount        int64                `json:"amount"`
	Currency      string               `json:"currency"`
	Status        WithdrawalStatusType `json:"status"`
	ProcessedAt   *time.Time           `json:"processed_at,omitempty"`
	Notes         *string              `json:"notes,omitempty"`
	AdminNotes    *string              `json:"admin_notes,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func (w *WithdrawalRequest) GetID() string {
	return w.ID.String()
}
