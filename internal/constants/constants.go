package constants

import "time"

// Verification tokens
const (
	DefaultTokenValidity = 30 * time.Minute
)

// Settlement failure reasons recorded on settlement_tasks.
const (
	ReasonAssignmentNotFound   = "assignment_not_found"
	ReasonAssignmentNotSettled = "assignment_not_in_settled_state"
	ReasonMissingTimestamps    = "missing_start_or_completion_time"
	ReasonJobNotFound          = "job_not_found"
	ReasonNoHourlyRate         = "job_has_no_positive_hourly_rate"
	ReasonStoreError           = "store_error"
)

// Settlement retry policy
const (
	SettlementMaxAttempts    = 5
	SettlementBaseRetryDelay = time.Minute
	SettlementBatchSize      = 100
)

// Settlement job scheduling and timeouts
const (
	SettlementReconcileCronSpec   = "*/5 * * * *" // every 5 minutes
	SettlementReconcileJobTimeout = 4 * time.Minute
	SettlementInlineTimeout       = 10 * time.Second
)

// Operator notifications
const (
	EmailSubjectSettlementDeadLetter = "URGENT: Settlement failed for assignment %s"
	OperationsTeamEmail              = "ops@shiftworks.jp"
	OperationsTeamName               = "ShiftWorks Operations"
)
