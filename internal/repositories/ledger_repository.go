package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/shiftworks/assignment-service/internal/models"
)

// LedgerReader exposes the two sums the available balance is derived from.
type LedgerReader interface {
	SumSucceededPayments(ctx context.Context, workerID uuid.UUID) (int64, error)
	SumWithdrawals(ctx context.Context, userID uuid.UUID, statuses []models.WithdrawalStatusType) (int64, error)
}

// LedgerTx is a LedgerReader bound to a transaction holding the user's
// ledger lock.
type LedgerTx interface {
	LedgerReader
	InsertWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error
}

type LedgerRepository interface {
	LedgerReader

	// WithUserLock runs fn in a transaction holding a per-user advisory
	// lock, so balance checks and withdrawal inserts for one user never
	// interleave.
	WithUserLock(ctx context.Context, userID uuid.UUID, fn func(LedgerTx) error) error
}

type ledgerRepo struct {
	db DB
}

func NewLedgerRepository(db DB) LedgerRepository {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) SumSucceededPayments(ctx context.Context, workerID uuid.UUID) (int64, error) {
	return sumSucceededPayments(ctx, r.db, workerID)
}

func (r *ledgerRepo) SumWithdrawals(ctx context.Context, userID uuid.UUID, statuses []models.WithdrawalStatusType) (int64, error) {
	return sumWithdrawals(ctx, r.db, userID, statuses)
}

func (r *ledgerRepo) WithUserLock(ctx context.Context, userID uuid.UUID, fn func(LedgerTx) error) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, userID.String()); err != nil {
			return err
		}
		return fn(&ledgerTx{tx: tx})
	})
}

type ledgerTx struct {
	tx pgx.Tx
}

func (l *ledgerTx) SumSucceededPayments(ctx context.Context, workerID uuid.UUID) (int64, error) {
	return sumSucceededPayments(ctx, l.tx, workerID)
}

func (l *ledgerTx) SumWithdrawals(ctx context.Context, userID uuid.UUID, statuses []models.WithdrawalStatusType) (int64, error) {
	return sumWithdrawals(ctx, l.tx, userID, statuses)
}

func (l *ledgerTx) InsertWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	return insertWithdrawal(ctx, l.tx, w)
}

func sumSucceededPayments(ctx context.Context, q Querier, workerID uuid.UUID) (int64, error) {
	var total int64
	err := q.QueryRow(ctx, `
        SELECT COALESCE(SUM(p.amount), 0)::BIGINT
        FROM payments p
        JOIN assignments a ON a.id = p.assignment_id
        WHERE a.worker_id=$1 AND p.status=$2
    `, workerID, models.PaymentStatusSucceeded).Scan(&total)
	return total, err
}

func sumWithdrawals(ctx context.Context, q Querier, userID uuid.UUID, statuses []models.WithdrawalStatusType) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	var total int64
	err := q.QueryRow(ctx, `
        SELECT COALESCE(SUM(amount), 0)::BIGINT
        FROM withdrawal_requests
        WHERE user_id=$1 AND status = ANY($2)
    `, userID, names).Scan(&total)
	return total, err
}
