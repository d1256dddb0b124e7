package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shiftworks/assignment-service/internal/config"
	"github.com/shiftworks/assignment-service/internal/constants"
	"github.com/shiftworks/assignment-service/internal/models"
	"github.com/shiftworks/assignment-service/internal/repositories"
	"github.com/shiftworks/assignment-service/internal/utils"
	"github.com/sirupsen/logrus"
)

type SettlementOutcome string

const (
	SettlementCreated        SettlementOutcome = "created"
	SettlementAlreadySettled SettlementOutcome = "already_settled"
	SettlementNotEligible    SettlementOutcome = "not_eligible"
	SettlementFailed         SettlementOutcome = "failed"
)

// SettlementService turns completed assignments into exactly one payment
// each. Errors never reach the caller; every outcome is recorded on the
// assignment's settlement task instead.
type SettlementService struct {
	cfg            *config.Config
	assignmentRepo repositories.AssignmentRepository
	jobRepo        repositories.JobRepository
	paymentRepo    repositories.PaymentRepository
	taskRepo       repositories.SettlementTaskRepository
	notifier       OperatorNotifier
	now            func() time.Time
}

func NewSettlementService(
	cfg *config.Config,
	assignmentRepo repositories.AssignmentRepository,
	jobRepo repositories.JobRepository,
	paymentRepo repositories.PaymentRepository,
	taskRepo repositories.SettlementTaskRepository,
	notifier OperatorNotifier,
) *SettlementService {
	return &SettlementService{
		cfg:            cfg,
		assignmentRepo: assignmentRepo,
		jobRepo:        jobRepo,
		paymentRepo:    paymentRepo,
		taskRepo:       taskRepo,
		notifier:       notifier,
		now:            time.Now,
	}
}

type settlementAttempt struct {
	outcome SettlementOutcome
	payment *models.Payment
	reason  string
	err     error
}

func (s *SettlementService) SettleIfEligible(ctx context.Context, assignmentID uuid.UUID) SettlementOutcome {
	res := s.attempt(ctx, assignmentID)

	entry := utils.Logger.WithFields(logrus.Fields{
		"assignment_id": assignmentID,
		"outcome":       res.outcome,
	})
	switch res.outcome {
	case SettlementCreated:
		entry.WithField("amount", res.payment.Amount).Info("Settlement payment created")
	case SettlementAlreadySettled:
		entry.Debug("Assignment already settled")
	case SettlementNotEligible:
		entry.WithField("reason", res.reason).Warn("Assignment not eligible for settlement")
	case SettlementFailed:
		entry.WithError(res.err).WithField("reason", res.reason).Error("Settlement failed")
	}

	s.record(ctx, assignmentID, res)
	return res.outcome
}

func (s *SettlementService) attempt(ctx context.Context, assignmentID uuid.UUID) settlementAttempt {
	failed := func(err error) settlementAttempt {
		return settlementAttempt{outcome: SettlementFailed, reason: constants.ReasonStoreError, err: err}
	}
	notEligible := func(reason string) settlementAttempt {
		return settlementAttempt{outcome: SettlementNotEligible, reason: reason}
	}

	existing, err := s.paymentRepo.GetByAssignmentID(ctx, assignmentID)
	if err != nil {
		return failed(err)
	}
	if existing != nil {
		return settlementAttempt{outcome: SettlementAlreadySettled, payment: existing}
	}

	a, err := s.assignmentRepo.GetByID(ctx, assignmentID)
	if err != nil {
		return failed(err)
	}
	if a == nil {
		return notEligible(constants.ReasonAssignmentNotFound)
	}
	if !a.Status.TriggersSettlement() {
		return notEligible(constants.ReasonAssignmentNotSettled)
	}
	if a.StartedAt == nil || a.CompletedAt == nil {
		return notEligible(constants.ReasonMissingTimestamps)
	}

	job, err := s.jobRepo.GetByID(ctx, a.JobID)
	if err != nil {
		return failed(err)
	}
	if job == nil {
		return notEligible(constants.ReasonJobNotFound)
	}
	rate := utils.Val(job.HourlyRate)
	if rate <= 0 {
		return notEligible(constants.ReasonNoHourlyRate)
	}

	p := &models.Payment{
		ID:           uuid.New(),
		AssignmentID: assignmentID,
		Amount:       utils.ComputePay(a.WorkedDuration(), rate),
		Currency:     models.CurrencyJPY,
		Status:       models.PaymentStatusSucceeded,
	}
	created, err := s.paymentRepo.CreateIfNotExists(ctx, p)
	if err != nil {
		return failed(err)
	}
	if !created {
		// Lost a race with a concurrent settlement.
		winner, err := s.paymentRepo.GetByAssignmentID(ctx, assignmentID)
		if err != nil {
			return failed(err)
		}
		return settlementAttempt{outcome: SettlementAlreadySettled, payment: winner}
	}
	return settlementAttempt{outcome: SettlementCreated, payment: p}
}

// record writes the attempt outcome to the durable settlement task.
func (s *SettlementService) record(ctx context.Context, assignmentID uuid.UUID, res settlementAttempt) {
	log := utils.Logger.WithField("assignment_id", assignmentID)

	var (
		task *models.SettlementTask
		err  error
	)
	if opensNoTask(res) {
		task, err = s.taskRepo.GetByAssignmentID(ctx, assignmentID)
		if err == nil && task == nil {
			log.WithField("reason", res.reason).Debug("No settlement task for unsettled assignment; nothing to record")
			return
		}
	} else {
		task, err = s.ensureTask(ctx, assignmentID)
	}
	if err != nil {
		log.WithError(err).Error("Failed to load settlement task; outcome not recorded")
		return
	}

	now := s.now().UTC()
	var deadLettered *models.SettlementTask
	err = s.taskRepo.UpdateWithRetry(ctx, task.ID, func(t *models.SettlementTask) error {
		deadLettered = nil
		switch res.outcome {
		case SettlementCreated, SettlementAlreadySettled:
			t.Status = models.SettlementTaskStatusSucceeded
			t.NextAttemptAt = nil
			t.LastFailureReason = nil
			if res.payment != nil {
				t.PaymentID = utils.Ptr(res.payment.ID)
			}
		case SettlementNotEligible:
			t.Status = models.SettlementTaskStatusSkipped
			t.NextAttemptAt = nil
			t.LastFailureReason = utils.Ptr(res.reason)
		case SettlementFailed:
			if t.Status == models.SettlementTaskStatusSucceeded {
				return nil
			}
			t.Attempts++
			t.Status = models.SettlementTaskStatusFailed
			reason := res.reason
			if res.err != nil {
				reason = fmt.Sprintf("%s: %v", res.reason, res.err)
			}
			t.LastFailureReason = utils.Ptr(reason)
			if t.Attempts >= s.maxAttempts() {
				t.NextAttemptAt = nil
				deadLettered = t
			} else {
				t.NextAttemptAt = utils.Ptr(now.Add(SettlementRetryDelay(t.Attempts)))
			}
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to record settlement outcome")
		return
	}

	if deadLettered != nil && s.notifier != nil {
		if err := s.notifier.NotifySettlementDeadLetter(ctx, deadLettered); err != nil {
			log.WithError(err).Error("Failed to notify operators of dead-lettered settlement")
		}
	}
}

// opensNoTask reports outcomes that only update an existing task. An
// assignment that is missing or not yet settled gets no task of its own.
func opensNoTask(res settlementAttempt) bool {
	if res.outcome != SettlementNotEligible {
		return false
	}
	return res.reason == constants.ReasonAssignmentNotFound || res.reason == constants.ReasonAssignmentNotSettled
}

func (s *SettlementService) ensureTask(ctx context.Context, assignmentID uuid.UUID) (*models.SettlementTask, error) {
	task, err := s.taskRepo.GetByAssignmentID(ctx, assignmentID)
	if err != nil || task != nil {
		return task, err
	}
	if err := s.taskRepo.Enqueue(ctx, assignmentID); err != nil {
		return nil, err
	}
	task, err = s.taskRepo.GetByAssignmentID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("settlement task for %s missing after enqueue", assignmentID)
	}
	return task, nil
}

func (s *SettlementService) maxAttempts() int {
	return constants.SettlementMaxAttempts
}

func (s *SettlementService) batchSize() int {
	if s.cfg != nil && s.cfg.SettlementBatchSize > 0 {
		return s.cfg.SettlementBatchSize
	}
	return constants.SettlementBatchSize
}

// SettlementRetryDelay doubles from the base delay with each failed attempt.
func SettlementRetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return constants.SettlementBaseRetryDelay * time.Duration(1<<(attempts-1))
}

// ProcessDueSettlements retries every task whose next attempt is due.
func (s *SettlementService) ProcessDueSettlements(ctx context.Context) error {
	tasks, err := s.taskRepo.ListDue(ctx, s.now().UTC(), s.batchSize())
	if err != nil {
		return fmt.Errorf("list due settlement tasks: %w", err)
	}
	if len(tasks) == 0 {
		utils.Logger.Debug("No settlement tasks due")
		return nil
	}

	counts := make(map[SettlementOutcome]int)
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		counts[s.SettleIfEligible(ctx, t.AssignmentID)]++
	}

	utils.Logger.WithFields(logrus.Fields{
		"due":             len(tasks),
		"created":         counts[SettlementCreated],
		"already_settled": counts[SettlementAlreadySettled],
		"not_eligible":    counts[SettlementNotEligible],
		"failed":          counts[SettlementFailed],
	}).Info("Settlement reconciliation finished")
	return nil
}

// ListUnsettled returns the failed and skipped settlement records that
// need an operator.
func (s *SettlementService) ListUnsettled(ctx context.Context) ([]*models.SettlementTask, error) {
	return s.taskRepo.ListUnsettled(ctx)
}
