package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/shiftworks/assignment-service/internal/models"
	"github.com/shiftworks/assignment-service/internal/utils"
)

type AssignmentRepository interface {
	Create(ctx context.Context, a *models.Assignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	// GetActiveDeliveryForWorker returns the most recently created delivery
	// that is not yet delivered, or nil.
	GetActiveDeliveryForWorker(ctx context.Context, workerID uuid.UUID) (*models.Assignment, error)

	// TransitionAtomic locks the row, lets mutate change it, and writes it
	// back in one transaction. A settlement task is enqueued in the same
	// transaction when the new status settles the assignment.
	TransitionAtomic(ctx context.Context, id uuid.UUID, mutate func(*models.Assignment) error) (*models.Assignment, error)
}

type assignmentRepo struct {
	db DB
}

func NewAssignmentRepository(db DB) AssignmentRepository {
	return &assignmentRepo{db: db}
}

func (r *assignmentRepo) Create(ctx context.Context, a *models.Assignment) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO assignments (
            id, job_id, worker_id, application_id, status,
            started_at, completed_at, picked_up_at, delivered_at,
            notes, metadata, row_version, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,1,NOW(),NOW())
    `,
		a.ID, a.JobID, a.WorkerID, a.ApplicationID, a.Status,
		a.StartedAt, a.CompletedAt, a.PickedUpAt, a.DeliveredAt,
		a.Notes, a.Metadata,
	)
	return err
}

func (r *assignmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	row := r.db.QueryRow(ctx, baseSelectAssignment()+" WHERE id=$1", id)
	return scanAssignment(row)
}

func (r *assignmentRepo) GetActiveDeliveryForWorker(ctx context.Context, workerID uuid.UUID) (*models.Assignment, error) {
	row := r.db.QueryRow(ctx, baseSelectAssignment()+`
        WHERE worker_id=$1 AND status IN ('PENDING_PICKUP','PICKING_UP','IN_DELIVERY')
        ORDER BY created_at DESC
        LIMIT 1
    `, workerID)
	return scanAssignment(row)
}

func (r *assignmentRepo) TransitionAtomic(
	ctx context.Context,
	id uuid.UUID,
	mutate func(*models.Assignment) error,
) (*models.Assignment, error) {
	var out *models.Assignment
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		out, err = applyAssignmentMutationTx(ctx, tx, id, mutate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applyAssignmentMutationTx must run inside a transaction. The row stays
// locked until the caller's transaction ends.
func applyAssignmentMutationTx(
	ctx context.Context,
	tx pgx.Tx,
	id uuid.UUID,
	mutate func(*models.Assignment) error,
) (*models.Assignment, error) {
	row := tx.QueryRow(ctx, baseSelectAssignment()+" WHERE id=$1 FOR UPDATE", id)
	a, err := scanAssignment(row)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, pgx.ErrNoRows
	}

	prevStatus := a.Status
	expected := a.RowVersion
	if err := mutate(a); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
        UPDATE assignments
        SET status=$1,
            started_at=$2,
            completed_at=$3,
            picked_up_at=$4,
            delivered_at=$5,
            notes=$6,
            metadata=$7,
            row_version=row_version+1,
            updated_at=NOW()
        WHERE id=$8 AND row_version=$9
    `, a.Status, a.StartedAt, a.CompletedAt, a.PickedUpAt, a.DeliveredAt, a.Notes, a.Metadata, a.ID, expected)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() != 1 {
		return nil, utils.ErrRowVersionConflict
	}

	if a.Status != prevStatus && a.Status.TriggersSettlement() {
		if err := enqueueSettlementTx(ctx, tx, a.ID); err != nil {
			return nil, fmt.Errorf("enqueue settlement for %s: %w", a.ID, err)
		}
	}

	newRow := tx.QueryRow(ctx, baseSelectAssignment()+" WHERE id=$1", id)
	return scanAssignment(newRow)
}

// lockAssignmentTx takes the row lock without reading the full record.
func lockAssignmentTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM assignments WHERE id=$1 FOR UPDATE`, id).Scan(&locked)
	return err
}

func baseSelectAssignment() string {
	return "SELECT " + assignmentColumns("") + " FROM assignments"
}

func assignmentColumns(alias string) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	return fmt.Sprintf(`
            %[1]sid, %[1]sjob_id, %[1]sworker_id, %[1]sapplication_id, %[1]sstatus,
            %[1]sstarted_at, %[1]scompleted_at, %[1]spicked_up_at, %[1]sdelivered_at,
            %[1]snotes, %[1]smetadata, %[1]srow_version, %[1]screated_at, %[1]supdated_at`, p)
}

func assignmentScanTargets(a *models.Assignment) []any {
	return []any{
		&a.ID, &a.JobID, &a.WorkerID, &a.ApplicationID, &a.Status,
		&a.StartedAt, &a.CompletedAt, &a.PickedUpAt, &a.DeliveredAt,
		&a.Notes, &a.Metadata, &a.RowVersion, &a.CreatedAt, &a.UpdatedAt,
	}
}

func scanAssignment(row pgx.Row) (*models.Assignment, error) {
	var a models.Assignment
	if err := row.Scan(assignmentScanTargets(&a)...); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}
