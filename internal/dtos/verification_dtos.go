package dtos

import (
	"time"

	"github.com/google/uuid"
	"github.com/shiftworks/assignment-service/internal/models"
)

// QRPayload is what the scanned code decodes to.
type QRPayload struct {
	Token        string           `json:"token"`
	AssignmentID uuid.UUID        `json:"assignment_id"`
	Type         models.TokenType `json:"type"`
}

// IssuedToken is returned to the company that requested a QR code.
type IssuedToken struct {
	Token        string           `json:"token"`
	TokenType    models.TokenType `json:"token_type"`
	AssignmentID uuid.UUID        `json:"assignment_id"`
	ExpiresAt    time.Time        `json:"expires_at"`
	QRData       string           `json:"qr_data"`
	QRCodeImage  string           `json:"qr_code_image"`
}

// RedeemResponse is the persisted shape of a successful redemption.
// CheckedInAt is set for check-in, CheckedOutAt and HoursWorked for
// check-out.
type RedeemResponse struct {
	Success      bool       `json:"success"`
	AssignmentID uuid.UUID  `json:"assignment_id"`
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"`
	CheckedOutAt *time.Time `json:"checked_out_at,omitempty"`
	HoursWorked  *float64   `json:"hours_worked,omitempty"`
	CompanyName  string     `json:"company_name"`

	Assignment *models.Assignment `json:"-"`
}
