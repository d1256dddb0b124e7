package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/shiftworks/assignment-service/internal/models"
)

// JobRepository is a read-only view over jobs owned by the marketplace.
type JobRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type jobRepo struct {
	db DB
}

func NewJobRepository(db DB) JobRepository {
	return &jobRepo{db: db}
}

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := r.db.QueryRow(ctx, `
        SELECT id, company_id, title, hourly_rate
        FROM jobs
        WHERE id=$1
    `, id).Scan(&j.ID, &j.CompanyID, &j.Title, &j.HourlyRate)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &j, nil
}
