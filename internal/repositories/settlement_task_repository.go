package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/shiftworks/assignment-service/internal/models"
)

type SettlementTaskRepository interface {
	// Enqueue creates a PENDING task for the assignment unless one exists.
	Enqueue(ctx context.Context, assignmentID uuid.UUID) error
	GetByAssignmentID(ctx context.Context, assignmentID uuid.UUID) (*models.SettlementTask, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.SettlementTask, error)
	ListUnsettled(ctx context.Context) ([]*models.SettlementTask, error)
	UpdateIfVersion(ctx context.Context, t *models.SettlementTask, expected int64) (pgconn.CommandTag, error)
	UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.SettlementTask) error) error
}

type settlementTaskRepo struct {
	*BaseVersionedRepo[*models.SettlementTask]
	db DB
}

func NewSettlementTaskRepository(db DB) SettlementTaskRepository {
	r := &settlementTaskRepo{db: db}
	r.BaseVersionedRepo = NewBaseRepo(db, baseSelectSettlementTask()+" WHERE id=$1", scanSettlementTask)
	return r
}

func (r *settlementTaskRepo) Enqueue(ctx context.Context, assignmentID uuid.UUID) error {
	return enqueueSettlementTx(ctx, r.db, assignmentID)
}

// enqueueSettlementTx delays the first reconciler pickup so the inline
// attempt that follows the commit normally gets there first. A task
// skipped earlier (e.g. settled before completion) is put back in the queue.
func enqueueSettlementTx(ctx context.Context, q Querier, assignmentID uuid.UUID) error {
	_, err := q.Exec(ctx, `
        INSERT INTO settlement_tasks (
            id, assignment_id, status, attempts, next_attempt_at, row_version, created_at, updated_at
        ) VALUES ($1,$2,'PENDING',0,NOW() + INTERVAL '2 minutes',1,NOW(),NOW())
        ON CONFLICT (assignment_id) DO UPDATE
        SET status='PENDING',
            last_failure_reason=NULL,
            next_attempt_at=EXCLUDED.next_attempt_at,
            row_version=settlement_tasks.row_version+1,
            updated_at=NOW()
        WHERE settlement_tasks.status='SKIPPED'
    `, uuid.New(), assignmentID)
	return err
}

func (r *settlementTaskRepo) GetByAssignmentID(ctx context.Context, assignmentID uuid.UUID) (*models.SettlementTask, error) {
	row := r.db.QueryRow(ctx, baseSelectSettlementTask()+" WHERE assignment_id=$1", assignmentID)
	return scanSettlementTask(row)
}

func (r *settlementTaskRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.SettlementTask, error) {
	return r.list(ctx, baseSelectSettlementTask()+`
        WHERE status IN ('PENDING','FAILED')
          AND next_attempt_at IS NOT NULL
          AND next_attempt_at <= $1
        ORDER BY next_attempt_at
        LIMIT $2
    `, now, limit)
}

func (r *settlementTaskRepo) ListUnsettled(ctx context.Context) ([]*models.SettlementTask, error) {
	return r.list(ctx, baseSelectSettlementTask()+`
        WHERE status IN ('FAILED','SKIPPED')
        ORDER BY created_at
    `)
}

func (r *settlementTaskRepo) UpdateIfVersion(ctx context.Context, t *models.SettlementTask, expected int64) (pgconn.CommandTag, error) {
	return r.db.Exec(ctx, `
        UPDATE settlement_tasks
        SET status=$1, attempts=$2, last_failure_reason=$3, next_attempt_at=$4, payment_id=$5,
            row_version=row_version+1, updated_at=NOW()
        WHERE id=$6 AND row_version=$7
    `, t.Status, t.Attempts, t.LastFailureReason, t.NextAttemptAt, t.PaymentID, t.ID, expected)
}

func (r *settlementTaskRepo) UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.SettlementTask) error) error {
	return r.BaseVersionedRepo.UpdateWithRetry(ctx, id.String(), mutate, r.UpdateIfVersion)
}

func (r *settlementTaskRepo) list(ctx context.Context, q string, args ...any) ([]*models.SettlementTask, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SettlementTask
	for rows.Next() {
		t, err := scanSettlementTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func baseSelectSettlementTask() string {
	return `
        SELECT id, assignment_id, status, attempts, last_failure_reason, next_attempt_at,
               payment_id, row_version, created_at, updated_at
        FROM settlement_tasks`
}

func scanSettlementTask(row pgx.Row) (*models.SettlementTask, error) {
	var t models.SettlementTask
	err := row.Scan(
		&t.ID, &t.AssignmentID, &t.Status, &t.Attempts, &t.LastFailureReason, &t.NextAttemptAt,
		&t.PaymentID, &t.RowVersion, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
