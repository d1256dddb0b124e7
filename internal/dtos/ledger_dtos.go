package dtos

import "github.com/google/uuid"

type CreateWithdrawalRequest struct {
	BankAccountID uuid.UUID `json:"bank_account_id" validate:"required"`
	Amount        int64     `json:"amount" validate:"gte=100"`
	Notes         *string   `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// BalanceResponse: Available follows the ledger formula, Pending is the
// sum of PENDING requests and Withdrawable is what a new request may take.
type BalanceResponse struct {
	Available    int64 `json:"available"`
	Pending      int64 `json:"pending"`
	Withdrawable int64 `json:"withdrawable"`
}
