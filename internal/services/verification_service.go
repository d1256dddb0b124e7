package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/shiftworks/assignment-service/internal/constants"
	"github.com/shiftworks/assignment-service/internal/dtos"
	"github.com/shiftworks/assignment-service/internal/models"
	"github.com/shiftworks/assignment-service/internal/repositories"
	"github.com/shiftworks/assignment-service/internal/utils"
	"github.com/sirupsen/logrus"
)

// Settler is the settlement hook fired after an assignment completes.
type Settler interface {
	SettleIfEligible(ctx context.Context, assignmentID uuid.UUID) SettlementOutcome
}

// VerificationService issues check-in/check-out QR codes to companies and
// redeems them for workers.
type VerificationService struct {
	assignmentRepo repositories.AssignmentRepository
	jobRepo        repositories.JobRepository
	tokenRepo      repositories.VerificationTokenRepository
	tokens         *TokenService
	settler        Settler
	now            func() time.Time
}

func NewVerificationService(
	assignmentRepo repositories.AssignmentRepository,
	jobRepo repositories.JobRepository,
	tokenRepo repositories.VerificationTokenRepository,
	tokens *TokenService,
	settler Settler,
) *VerificationService {
	return &VerificationService{
		assignmentRepo: assignmentRepo,
		jobRepo:        jobRepo,
		tokenRepo:      tokenRepo,
		tokens:         tokens,
		settler:        settler,
		now:            time.Now,
	}
}

func (s *VerificationService) IssueCheckInQR(ctx context.Context, companyID, assignmentID uuid.UUID) (*dtos.IssuedToken, error) {
	return s.issue(ctx, companyID, assignmentID, models.TokenTypeCheckIn)
}

func (s *VerificationService) IssueCheckOutQR(ctx context.Context, companyID, assignmentID uuid.UUID) (*dtos.IssuedToken, error) {
	return s.issue(ctx, companyID, assignmentID, models.TokenTypeCheckOut)
}

func (s *VerificationService) issue(
	ctx context.Context,
	companyID, assignmentID uuid.UUID,
	direction models.TokenType,
) (*dtos.IssuedToken, error) {
	a, err := s.assignmentRepo.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, utils.ErrNotFound
	}

	job, err := s.jobRepo.GetByID(ctx, a.JobID)
	if err != nil {
		return nil, err
	}
	// Another company's assignment is reported as missing.
	if job == nil || job.CompanyID != companyID {
		return nil, utils.ErrNotFound
	}

	if err := CheckRedemptionState(a, direction); err != nil {
		return nil, err
	}
	return s.tokens.IssueToken(ctx, assignmentID, companyID, direction)
}

func (s *VerificationService) RedeemCheckIn(ctx context.Context, workerID uuid.UUID, token string, assignmentID uuid.UUID) (*dtos.RedeemResponse, error) {
	return s.Redeem(ctx, workerID, token, assignmentID, models.TokenTypeCheckIn)
}

func (s *VerificationService) RedeemCheckOut(ctx context.Context, workerID uuid.UUID, token string, assignmentID uuid.UUID) (*dtos.RedeemResponse, error) {
	return s.Redeem(ctx, workerID, token, assignmentID, models.TokenTypeCheckOut)
}

// Redeem consumes token exactly once and applies the matching transition.
// Failures are checked in this order: ErrInvalidToken, ErrNotYourAssignment,
// ErrTokenAlreadyUsed, ErrTokenExpired, ErrWrongState.
func (s *VerificationService) Redeem(
	ctx context.Context,
	workerID uuid.UUID,
	token string,
	assignmentID uuid.UUID,
	direction models.TokenType,
) (*dtos.RedeemResponse, error) {
	if !direction.Valid() || token == "" {
		return nil, utils.ErrInvalidToken
	}

	r, err := s.tokenRepo.GetForRedemption(ctx, token, assignmentID, direction)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, utils.ErrInvalidToken
	}
	if r.Assignment.WorkerID != workerID {
		return nil, utils.ErrNotYourAssignment
	}
	if r.Token.UsedAt != nil {
		return nil, utils.ErrTokenAlreadyUsed
	}
	now := s.now().UTC()
	if now.After(r.Token.ExpiresAt) {
		return nil, utils.ErrTokenExpired
	}
	if err := CheckRedemptionState(r.Assignment, direction); err != nil {
		return nil, err
	}

	ev := eventForTokenType(direction)
	updated, err := s.tokenRepo.RedeemAtomic(ctx, r.Token.ID, assignmentID, now, func(a *models.Assignment) error {
		return ApplyAssignmentEvent(a, ev, now)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}

	utils.Logger.WithFields(logrus.Fields{
		"assignment_id": assignmentID,
		"worker_id":     workerID,
		"direction":     direction,
	}).Info("Verification token redeemed")

	if updated.Status.TriggersSettlement() {
		s.settle(ctx, updated.ID)
	}

	resp := &dtos.RedeemResponse{
		Success:      true,
		AssignmentID: updated.ID,
		CompanyName:  r.CompanyName,
		Assignment:   updated,
	}
	switch direction {
	case models.TokenTypeCheckIn:
		resp.CheckedInAt = updated.StartedAt
	case models.TokenTypeCheckOut:
		resp.CheckedOutAt = updated.CompletedAt
		resp.HoursWorked = utils.Ptr(utils.HoursWorked(updated.WorkedDuration()))
	}
	return resp, nil
}

// settle runs the inline settlement attempt. It outlives the caller's
// cancellation so a client disconnect right after check-out does not
// abort it; the reconciler covers anything left behind.
func (s *VerificationService) settle(ctx context.Context, assignmentID uuid.UUID) {
	if s.settler == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.SettlementInlineTimeout)
	defer cancel()
	s.settler.SettleIfEligible(sctx, assignmentID)
}
