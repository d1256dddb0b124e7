package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatusType string

const (
	PaymentStatusRequiresPaymentMethod PaymentStatusType = "REQUIRES_PAYMENT_METHOD"
	PaymentStatusProcessing            PaymentStatusType = "PROCESSING"
	PaymentStatusSucceeded             PaymentStatusType = "SUCCEEDED"
	PaymentStatusCanceled              PaymentStatusType = "CANCELED"
	PaymentStatusFailed                PaymentStatusType = "FAILED"
)

const CurrencyJPY = "JPY"

type Payment struct {
	ID                    uuid.UUID         `json:"id"`
	AssignmentID          uuid.UUID         `json:"assignment_id"`
	Amount                int64             `json:"amount"`
	Currency              string            `json:"currency"`
	Status                PaymentStatusType `json:"status"`
	StripePaymentIntentID *string           `json:"stripe_payment_intent_id,omitempty"`
	StripeTransferID      *string           `json:"stripe_transfer_id,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}
