package models

import (
	"time"

	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeCheckIn  TokenType = "check_in"
	TokenTypeCheckOut TokenType = "check_out"
)

func (t TokenType) Valid() bool {
	return t == TokenTypeCheckIn || t == TokenTypeCheckOut
}

// VerificationToken for verification_tokens table. Rows are never deleted.
type VerificationToken struct {
	ID           uuid.UUID  `json:"id"`
	AssignmentID uuid.UUID  `json:"assignment_id"`
	CompanyID    uuid.UUID  `json:"company_id"`
	Token        string     `json:"token"`
	TokenType    TokenType  `json:"token_type"`
	ExpiresAt    time.Time  `json:"expires_at"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TokenRedemption is a token joined with its assignment and the company
// that owns the assignment's job.
type TokenRedemption struct {
	Token       *VerificationToken
	Assignment  *Assignment
	CompanyName string
}
