package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/shiftworks/assignment-service/internal/models"
)

type WithdrawalRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	UpdateIfVersion(ctx context.Context, w *models.WithdrawalRequest, expected int64) (pgconn.CommandTag, error)
	UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.WithdrawalRequest) error) error
}

type withdrawalRepo struct {
	*BaseVersionedRepo[*models.WithdrawalRequest]
	db DB
}

func NewWithdrawalRepository(db DB) WithdrawalRepository {
	r := &withdrawalRepo{db: db}
	r.BaseVersionedRepo = NewBaseRepo(db, baseSelectWithdrawal()+" WHERE id=$1", scanWithdrawal)
	return r
}

func (r *withdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	row := r.db.QueryRow(ctx, baseSelectWithdrawal()+" WHERE id=$1", id)
	return scanWithdrawal(row)
}

func (r *withdrawalRepo) UpdateIfVersion(ctx context.Context, w *models.WithdrawalRequest, expected int64) (pgconn.CommandTag, error) {
	return r.db.Exec(ctx, `
        UPDATE withdrawal_requests
        SET status=$1, processed_at=$2, admin_notes=$3, row_version=row_version+1, updated_at=NOW()
        WHERE id=$4 AND row_version=$5
    `, w.Status, w.ProcessedAt, w.AdminNotes, w.ID, expected)
}

func (r *withdrawalRepo) UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.WithdrawalRequest) error) error {
	return r.BaseVersionedRepo.UpdateWithRetry(ctx, id.String(), mutate, r.UpdateIfVersion)
}

func insertWithdrawal(ctx context.Context, q Querier, w *models.WithdrawalRequest) error {
	return q.QueryRow(ctx, `
        INSERT INTO withdrawal_requests (
            id, user_id, bank_account_id, amount, currency, status,
            processed_at, notes, admin_notes, row_version, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1,NOW(),NOW())
        RETURNING row_version, created_at, updated_at
    `,
		w.ID, w.UserID, w.BankAccountID, w.Amount, w.Currency, w.Status,
		w.ProcessedAt, w.Notes, w.AdminNotes,
	).Scan(&w.RowVersion, &w.CreatedAt, &w.UpdatedAt)
}

func baseSelectWithdrawal() string {
	return `
        SELECT id, user_id, bank_account_id, amount, currency, status,
               processed_at, notes, admin_notes, row_version, created_at, updated_at
        FROM withdrawal_requests`
}

func scanWithdrawal(row pgx.Row) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(
		&w.ID, &w.UserID, &w.BankAccountID, &w.Amount, &w.Currency, &w.Status,
		&w.ProcessedAt, &w.Notes, &w.AdminNotes, &w.RowVersion, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}
