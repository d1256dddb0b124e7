package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/shiftworks/assignment-service/internal/models"
)

type PaymentRepository interface {
	// CreateIfNotExists inserts p unless a payment for p.AssignmentID
	// already exists. created reports whether this call inserted it.
	CreateIfNotExists(ctx context.Context, p *models.Payment) (created bool, err error)
	GetByAssignmentID(ctx context.Context, assignmentID uuid.UUID) (*models.Payment, error)
}

type paymentRepo struct {
	db DB
}

func NewPaymentRepository(db DB) PaymentRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) CreateIfNotExists(ctx context.Context, p *models.Payment) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        INSERT INTO payments (
            id, assignment_id, amount, currency, status,
            stripe_payment_intent_id, stripe_transfer_id, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
        ON CONFLICT (assignment_id) DO NOTHING
    `, p.ID, p.AssignmentID, p.Amount, p.Currency, p.Status, p.StripePaymentIntentID, p.StripeTransferID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) GetByAssignmentID(ctx context.Context, assignmentID uuid.UUID) (*models.Payment, error) {
	row := r.db.QueryRow(ctx, `
        SELECT id, assignment_id, amount, currency, status,
               stripe_payment_intent_id, stripe_transfer_id, created_at, updated_at
        FROM payments
        WHERE assignment_id=$1
    `, assignmentID)
	return scanPayment(row)
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID, &p.AssignmentID, &p.Amount, &p.Currency, &p.Status,
		&p.StripePaymentIntentID, &p.StripeTransferID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
