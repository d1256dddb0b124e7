package app

import (
	"github.com/shiftworks/assignment-service/internal/config"
	"github.com/shiftworks/assignment-service/internal/repositories"
	"github.com/shiftworks/assignment-service/internal/services"
)

// Services is the assignment lifecycle core, wired against one database.
type Services struct {
	Tokens       *services.TokenService
	Verification *services.VerificationService
	Assignments  *services.AssignmentService
	Settlement   *services.SettlementService
	Ledger       *services.LedgerService
}

func NewServices(cfg *config.Config, db repositories.DB) *Services {
	// Repositories
	assignmentRepo := repositories.NewAssignmentRepository(db)
	tokenRepo := repositories.NewVerificationTokenRepository(db)
	jobRepo := repositories.NewJobRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	taskRepo := repositories.NewSettlementTaskRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)
	withdrawalRepo := repositories.NewWithdrawalRepository(db)
	bankRepo := repositories.NewBankAccountRepository(db)

	notifier := services.NewSendgridOperatorNotifier(cfg)
	settlement := services.NewSettlementService(cfg, assignmentRepo, jobRepo, paymentRepo, taskRepo, notifier)
	tokens := services.NewTokenService(cfg, tokenRepo)

	return &Services{
		Tokens:       tokens,
		Verification: services.NewVerificationService(assignmentRepo, jobRepo, tokenRepo, tokens, settlement),
		Assignments:  services.NewAssignmentService(assignmentRepo, jobRepo, settlement),
		Settlement:   settlement,
		Ledger:       services.NewLedgerService(cfg, ledgerRepo, withdrawalRepo, bankRepo),
	}
}
