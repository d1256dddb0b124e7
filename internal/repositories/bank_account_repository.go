package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/shiftworks/assignment-service/internal/models"
)

type BankAccountRepository interface {
	// GetByIDForOwner returns nil when the account does not exist or
	// belongs to someone else.
	GetByIDForOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.BankAccount, error)
}

type bankAccountRepo struct {
	db DB
}

func NewBankAccountRepository(db DB) BankAccountRepository {
	return &bankAccountRepo{db: db}
}

func (r *bankAccountRepo) GetByIDForOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.BankAccount, error) {
	var b models.BankAccount
	err := r.db.QueryRow(ctx, `
        SELECT id, user_id, bank_name, account_holder_name, account_last4
        FROM bank_accounts
        WHERE id=$1 AND user_id=$2
    `, id, ownerID).Scan(&b.ID, &b.UserID, &b.BankName, &b.AccountHolderName, &b.AccountLast4)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}
