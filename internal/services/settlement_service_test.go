package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shiftworks/assignment-service/internal/constants"
	"github.com/shiftworks/assignment-service/internal/models"
	"github.com/shiftworks/assignment-service/internal/utils"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("connection refused")

// completedAssignment stores a COMPLETED assignment that ran for worked.
func (e *testEnv) completedAssignment(worked time.Duration) *models.Assignment {
	start := e.clock.Now().Add(-worked)
	end := e.clock.Now()
	a := e.newAssignment(models.AssignmentStatusCompleted)
	a.StartedAt = &start
	a.CompletedAt = &end
	e.store.putAssignment(a)
	return a
}

func TestSettleIfEligible_PayComputation(t *testing.T) {
	env := newTestEnv(t)
	a := env.completedAssignment(90 * time.Minute)

	outcome := env.settlement.SettleIfEligible(context.Background(), a.ID)
	require.Equal(t, SettlementCreated, outcome)

	p, err := (&fakePaymentRepo{s: env.store}).GetByAssignmentID(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3000), p.Amount)
	require.Equal(t, models.PaymentStatusSucceeded, p.Status)
	require.Equal(t, models.CurrencyJPY, p.Currency)

	task := env.store.task(a.ID)
	require.Equal(t, models.SettlementTaskStatusSucceeded, task.Status)
	require.Equal(t, p.ID, *task.PaymentID)
}

func TestSettleIfEligible_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	a := env.completedAssignment(2 * time.Hour)
	ctx := context.Background()

	require.Equal(t, SettlementCreated, env.settlement.SettleIfEligible(ctx, a.ID))
	require.Equal(t, SettlementAlreadySettled, env.settlement.SettleIfEligible(ctx, a.ID))
	require.Equal(t, 1, env.store.paymentCount(a.ID))
}

func TestSettleIfEligible_ActiveAssignmentThenCompleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.newAssignment(models.AssignmentStatusActive)
	a.StartedAt = utils.Ptr(env.clock.Now())
	env.store.putAssignment(a)
	require.Equal(t, SettlementNotEligible, env.settlement.SettleIfEligible(ctx, a.ID))
	require.Nil(t, env.store.task(a.ID))

	env.clock.Advance(time.Hour)
	a.Status = models.AssignmentStatusCompleted
	a.CompletedAt = utils.Ptr(env.clock.Now())
	env.store.putAssignment(a)
	require.Equal(t, SettlementCreated, env.settlement.SettleIfEligible(ctx, a.ID))
	require.Equal(t, models.SettlementTaskStatusSucceeded, env.store.task(a.ID).Status)

	unsettled, err := env.settlement.ListUnsettled(ctx)
	require.NoError(t, err)
	require.Empty(t, unsettled)
}

func TestSettleIfEligible_NotEligible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("missing start time", func(t *testing.T) {
		a := env.newAssignment(models.AssignmentStatusDelivered)
		a.CompletedAt = utils.Ptr(env.clock.Now())
		env.store.putAssignment(a)

		require.Equal(t, SettlementNotEligible, env.settlement.SettleIfEligible(ctx, a.ID))
		require.Equal(t, 0, env.store.paymentCount(a.ID))
		task := env.store.task(a.ID)
		require.Equal(t, models.SettlementTaskStatusSkipped, task.Status)
		require.Equal(t, constants.ReasonMissingTimestamps, *task.LastFailureReason)
	})

	t.Run("no hourly rate", func(t *testing.T) {
		job := env.store.addJob(env.companyID, nil)
		a := env.completedAssignment(time.Hour)
		a.JobID = job.ID
		env.store.putAssignment(a)

		require.Equal(t, SettlementNotEligible, env.settlement.SettleIfEligible(ctx, a.ID))
		require.Equal(t, 0, env.store.paymentCount(a.ID))
		require.Equal(t, constants.ReasonNoHourlyRate, *env.store.task(a.ID).LastFailureReason)
	})

	t.Run("zero hourly rate", func(t *testing.T) {
		job := env.store.addJob(env.companyID, utils.Ptr(int64(0)))
		a := env.completedAssignment(time.Hour)
		a.JobID = job.ID
		env.store.putAssignment(a)

		require.Equal(t, SettlementNotEligible, env.settlement.SettleIfEligible(ctx, a.ID))
	})

	t.Run("still active", func(t *testing.T) {
		a := env.newAssignment(models.AssignmentStatusActive)
		require.Equal(t, SettlementNotEligible, env.settlement.SettleIfEligible(ctx, a.ID))
		require.Nil(t, env.store.task(a.ID))
	})

	t.Run("unknown assignment", func(t *testing.T) {
		id := uuid.New()
		require.Equal(t, SettlementNotEligible, env.settlement.SettleIfEligible(ctx, id))
		require.Nil(t, env.store.task(id))
	})

	// Only assignments that reached a settling state show up for operators.
	unsettled, err := env.settlement.ListUnsettled(ctx)
	require.NoError(t, err)
	require.Len(t, unsettled, 3)
}

func TestSettlement_FailureIsRetriedByReconciler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.completedAssignment(90 * time.Minute)

	env.store.setFailPayments(errStoreDown)
	require.Equal(t, SettlementFailed, env.settlement.SettleIfEligible(ctx, a.ID))

	task := env.store.task(a.ID)
	require.Equal(t, models.SettlementTaskStatusFailed, task.Status)
	require.Equal(t, 1, task.Attempts)
	require.Equal(t, env.clock.Now().Add(constants.SettlementBaseRetryDelay), *task.NextAttemptAt)

	// not due yet
	require.NoError(t, env.settlement.ProcessDueSettlements(ctx))
	require.Equal(t, 1, env.store.task(a.ID).Attempts)

	env.store.setFailPayments(nil)
	env.clock.Advance(constants.SettlementBaseRetryDelay)
	require.NoError(t, env.settlement.ProcessDueSettlements(ctx))

	task = env.store.task(a.ID)
	require.Equal(t, models.SettlementTaskStatusSucceeded, task.Status)
	require.Nil(t, task.NextAttemptAt)
	require.Equal(t, 1, env.store.paymentCount(a.ID))
}

func TestSettlement_DeadLetterNotifiesOperators(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.completedAssignment(time.Hour)
	env.store.setFailPayments(errStoreDown)

	for i := 1; i <= constants.SettlementMaxAttempts; i++ {
		require.Equal(t, SettlementFailed, env.settlement.SettleIfEligible(ctx, a.ID))
		require.Equal(t, i, env.store.task(a.ID).Attempts)
	}

	task := env.store.task(a.ID)
	require.Equal(t, models.SettlementTaskStatusFailed, task.Status)
	require.Nil(t, task.NextAttemptAt, "exhausted tasks leave the retry queue")
	require.Equal(t, 1, env.notifier.count())

	env.clock.Advance(24 * time.Hour)
	require.NoError(t, env.settlement.ProcessDueSettlements(ctx))
	require.Equal(t, constants.SettlementMaxAttempts, env.store.task(a.ID).Attempts)
}

func TestSettlementRetryDelay(t *testing.T) {
	require.Equal(t, time.Minute, SettlementRetryDelay(1))
	require.Equal(t, 2*time.Minute, SettlementRetryDelay(2))
	require.Equal(t, 8*time.Minute, SettlementRetryDelay(4))
	require.Equal(t, time.Minute, SettlementRetryDelay(0))
}

func TestProcessDueSettlements_PicksUpOrphanedTasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newAssignment(models.AssignmentStatusActive)
	start := env.clock.Now()
	a.StartedAt = &start
	env.store.putAssignment(a)

	// Complete through the repository only, as if the process died before
	// the inline settlement ran.
	env.clock.Advance(time.Hour)
	_, err := (&fakeAssignmentRepo{s: env.store}).TransitionAtomic(ctx, a.ID, func(a *models.Assignment) error {
		return ApplyAssignmentEvent(a, EventCheckOut, env.clock.Now())
	})
	require.NoError(t, err)
	require.Equal(t, models.SettlementTaskStatusPending, env.store.task(a.ID).Status)
	require.Equal(t, 0, env.store.paymentCount(a.ID))

	env.clock.Advance(5 * time.Minute)
	require.NoError(t, env.settlement.ProcessDueSettlements(ctx))
	require.Equal(t, 1, env.store.paymentCount(a.ID))
	require.Equal(t, models.SettlementTaskStatusSucceeded, env.store.task(a.ID).Status)
}
