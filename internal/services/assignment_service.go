package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/shiftworks/assignment-service/internal/constants"
	"github.com/shiftworks/assignment-service/internal/models"
	"github.com/shiftworks/assignment-service/internal/repositories"
	"github.com/shiftworks/assignment-service/internal/utils"
	"github.com/sirupsen/logrus"
)

type CreateAssignmentParams struct {
	JobID         uuid.UUID
	WorkerID      uuid.UUID
	ApplicationID uuid.UUID
	Flow          models.AssignmentFlowType
	Notes         *string
	Metadata      models.AssignmentMetadata
}

type AssignmentService struct {
	assignmentRepo repositories.AssignmentRepository
	jobRepo        repositories.JobRepository
	settler        Settler
	now            func() time.Time
}

func NewAssignmentService(
	assignmentRepo repositories.AssignmentRepository,
	jobRepo repositories.JobRepository,
	settler Settler,
) *AssignmentService {
	return &AssignmentService{
		assignmentRepo: assignmentRepo,
		jobRepo:        jobRepo,
		settler:        settler,
		now:            time.Now,
	}
}

// Create starts an assignment for an accepted application. On-site work
// starts ACTIVE, deliveries start PENDING_PICKUP.
func (s *AssignmentService) Create(ctx context.Context, p CreateAssignmentParams) (*models.Assignment, error) {
	job, err := s.jobRepo.GetByID(ctx, p.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, utils.ErrNotFound
	}

	status := models.AssignmentStatusActive
	switch p.Flow {
	case "", models.AssignmentFlowOnSite:
	case models.AssignmentFlowDelivery:
		status = models.AssignmentStatusPendingPickup
	default:
		return nil, fmt.Errorf("%w: unknown assignment flow %q", utils.ErrInvalidPayload, p.Flow)
	}

	now := s.now().UTC()
	a := &models.Assignment{
		ID:            uuid.New(),
		JobID:         p.JobID,
		WorkerID:      p.WorkerID,
		ApplicationID: p.ApplicationID,
		Status:        status,
		Notes:         p.Notes,
		Metadata:      p.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	a.RowVersion = 1
	if err := s.assignmentRepo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AssignmentService) GetByID(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	a, err := s.assignmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, utils.ErrNotFound
	}
	return a, nil
}

// GetActiveDelivery returns the worker's newest undelivered delivery, or nil.
func (s *AssignmentService) GetActiveDelivery(ctx context.Context, workerID uuid.UUID) (*models.Assignment, error) {
	return s.assignmentRepo.GetActiveDeliveryForWorker(ctx, workerID)
}

// AdvanceDeliveryStatus moves a delivery one step along
// PENDING_PICKUP -> PICKING_UP -> IN_DELIVERY -> DELIVERED.
func (s *AssignmentService) AdvanceDeliveryStatus(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	return s.transition(ctx, id, EventAdvance)
}

func (s *AssignmentService) Cancel(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	return s.transition(ctx, id, EventCancel)
}

func (s *AssignmentService) transition(ctx context.Context, id uuid.UUID, ev AssignmentEvent) (*models.Assignment, error) {
	now := s.now().UTC()
	updated, err := s.assignmentRepo.TransitionAtomic(ctx, id, func(a *models.Assignment) error {
		return ApplyAssignmentEvent(a, ev, now)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}

	utils.Logger.WithFields(logrus.Fields{
		"assignment_id": id,
		"event":         ev,
		"status":        updated.Status,
	}).Info("Assignment transitioned")

	if updated.Status.TriggersSettlement() && s.settler != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.SettlementInlineTimeout)
		defer cancel()
		s.settler.SettleIfEligible(sctx, updated.ID)
	}
	return updated, nil
}
