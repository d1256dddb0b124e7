package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/shiftworks/assignment-service/internal/config"
	"github.com/shiftworks/assignment-service/internal/dtos"
	"github.com/shiftworks/assignment-service/internal/models"
	"github.com/shiftworks/assignment-service/internal/repositories"
	"github.com/shiftworks/assignment-service/internal/utils"
	"github.com/sirupsen/logrus"
)

// LedgerService derives worker balances from settled payments and gates
// withdrawal requests against them.
type LedgerService struct {
	cfg            *config.Config
	ledgerRepo     repositories.LedgerRepository
	withdrawalRepo repositories.WithdrawalRepository
	bankRepo       repositories.BankAccountRepository
	validate       *validator.Validate
	now            func() time.Time
}

func NewLedgerService(
	cfg *config.Config,
	ledgerRepo repositories.LedgerRepository,
	withdrawalRepo repositories.WithdrawalRepository,
	bankRepo repositories.BankAccountRepository,
) *LedgerService {
	return &LedgerService{
		cfg:            cfg,
		ledgerRepo:     ledgerRepo,
		withdrawalRepo: withdrawalRepo,
		bankRepo:       bankRepo,
		validate:       validator.New(),
		now:            time.Now,
	}
}

// AvailableBalance = succeeded payments - processing/completed withdrawals.
func (s *LedgerService) AvailableBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	b, err := s.balance(ctx, s.ledgerRepo, userID)
	if err != nil {
		return 0, err
	}
	return b.Available, nil
}

func (s *LedgerService) GetBalance(ctx context.Context, userID uuid.UUID) (*dtos.BalanceResponse, error) {
	return s.balance(ctx, s.ledgerRepo, userID)
}

func (s *LedgerService) balance(ctx context.Context, r repositories.LedgerReader, userID uuid.UUID) (*dtos.BalanceResponse, error) {
	earned, err := r.SumSucceededPayments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sum payments for %s: %w", userID, err)
	}
	withdrawn, err := r.SumWithdrawals(ctx, userID, models.DeductedWithdrawalStatuses)
	if err != nil {
		return nil, fmt.Errorf("sum withdrawals for %s: %w", userID, err)
	}
	pending, err := r.SumWithdrawals(ctx, userID, []models.WithdrawalStatusType{models.WithdrawalStatusPending})
	if err != nil {
		return nil, fmt.Errorf("sum pending withdrawals for %s: %w", userID, err)
	}

	available := earned - withdrawn
	withdrawable := available
	if s.reservePending() {
		withdrawable -= pending
	}
	if withdrawable < 0 {
		withdrawable = 0
	}
	return &dtos.BalanceResponse{
		Available:    available,
		Pending:      pending,
		Withdrawable: withdrawable,
	}, nil
}

func (s *LedgerService) reservePending() bool {
	return s.cfg != nil && s.cfg.LDFlag_ReservePendingWithdrawals
}

// CreateWithdrawal checks ownership of the bank account, then checks the
// balance and inserts the PENDING request under the user's ledger lock.
func (s *LedgerService) CreateWithdrawal(
	ctx context.Context,
	userID uuid.UUID,
	req dtos.CreateWithdrawalRequest,
) (*models.WithdrawalRequest, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidPayload, err)
	}

	acct, err := s.bankRepo.GetByIDForOwner(ctx, req.BankAccountID, userID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, utils.ErrBankAccountNotFound
	}

	w := &models.WithdrawalRequest{
		ID:            uuid.New(),
		UserID:        userID,
		BankAccountID: req.BankAccountID,
		Amount:        req.Amount,
		Currency:      models.CurrencyJPY,
		Status:        models.WithdrawalStatusPending,
		Notes:         req.Notes,
	}

	err = s.ledgerRepo.WithUserLock(ctx, userID, func(tx repositories.LedgerTx) error {
		b, err := s.balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if req.Amount > b.Withdrawable {
			return utils.ErrInsufficientBalance
		}
		return tx.InsertWithdrawal(ctx, w)
	})
	if err != nil {
		return nil, err
	}

	utils.Logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"withdrawal_id": w.ID,
		"amount":        w.Amount,
	}).Info("Withdrawal request created")
	return w, nil
}

// UpdateStatus accepts any status change. processed_at is stamped for
// COMPLETED and REJECTED and cleared otherwise.
func (s *LedgerService) UpdateStatus(
	ctx context.Context,
	requestID uuid.UUID,
	status models.WithdrawalStatusType,
	adminNotes *string,
) (*models.WithdrawalRequest, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown withdrawal status %q", utils.ErrInvalidPayload, status)
	}

	now := s.now().UTC()
	var updated *models.WithdrawalRequest
	err := s.withdrawalRepo.UpdateWithRetry(ctx, requestID, func(w *models.WithdrawalRequest) error {
		w.Status = status
		if status.IsFinal() {
			w.ProcessedAt = utils.Ptr(now)
		} else {
			w.ProcessedAt = nil
		}
		if adminNotes != nil {
			w.AdminNotes = adminNotes
		}
		updated = w
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}
