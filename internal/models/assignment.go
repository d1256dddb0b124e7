package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AssignmentStatusType string

const (
	AssignmentStatusActive    AssignmentStatusType = "ACTIVE"
	AssignmentStatusCompleted AssignmentStatusType = "COMPLETED"
	AssignmentStatusCancelled AssignmentStatusType = "CANCELLED"

	AssignmentStatusPendingPickup AssignmentStatusType = "PENDING_PICKUP"
	AssignmentStatusPickingUp     AssignmentStatusType = "PICKING_UP"
	AssignmentStatusInDelivery    AssignmentStatusType = "IN_DELIVERY"
	AssignmentStatusDelivered     AssignmentStatusType = "DELIVERED"
)

// IsTerminal reports whether no further transitions are accepted.
func (s AssignmentStatusType) IsTerminal() bool {
	switch s {
	case AssignmentStatusCompleted, AssignmentStatusCancelled, AssignmentStatusDelivered:
		return true
	}
	return false
}

// TriggersSettlement reports whether reaching s should produce a payment.
func (s AssignmentStatusType) TriggersSettlement() bool {
	return s == AssignmentStatusCompleted || s == AssignmentStatusDelivered
}

// AssignmentFlowType selects the initial state of a new assignment.
type AssignmentFlowType string

const (
	AssignmentFlowOnSite   AssignmentFlowType = "ON_SITE"
	AssignmentFlowDelivery AssignmentFlowType = "DELIVERY"
)

const metadataKeyWorkerStripeAccount = "worker_stripe_account"

// AssignmentMetadata is the free-form jsonb column. Known keys are typed;
// every other top-level key is carried in Extra and written back unchanged.
type AssignmentMetadata struct {
	WorkerStripeAccount *string
	Extra               map[string]json.RawMessage
}

func (m AssignmentMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+1)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.WorkerStripeAccount != nil {
		raw, err := json.Marshal(*m.WorkerStripeAccount)
		if err != nil {
			return nil, err
		}
		out[metadataKeyWorkerStripeAccount] = raw
	}
	return json.Marshal(out)
}

func (m *AssignmentMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = AssignmentMetadata{}
	if v, ok := raw[metadataKeyWorkerStripeAccount]; ok {
		delete(raw, metadataKeyWorkerStripeAccount)
		var acct *string
		if err := json.Unmarshal(v, &acct); err != nil {
			return fmt.Errorf("metadata %s: %w", metadataKeyWorkerStripeAccount, err)
		}
		m.WorkerStripeAccount = acct
	}
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

type Assignment struct {
	Versioned

	ID            uuid.UUID            `json:"id"`
	JobID         uuid.UUID            `json:"job_id"`
	WorkerID      uuid.UUID            `json:"worker_id"`
	ApplicationID uuid.UUID            `json:"application_id"`
	Status        AssignmentStatusType `json:"status"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	Notes    *string            `json:"notes,omitempty"`
	Metadata AssignmentMetadata `json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Assignment) GetID() string {
	return a.ID.String()
}

// WorkedDuration is zero until both the start and completion are recorded.
func (a *Assignment) WorkedDuration() time.Duration {
	if a.StartedAt == nil || a.CompletedAt == nil {
		return 0
	}
	return a.CompletedAt.Sub(*a.StartedAt)
}
