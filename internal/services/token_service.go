package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/shiftworks/assignment-service/internal/config"
	"github.com/shiftworks/assignment-service/internal/constants"
	"github.com/shiftworks/assignment-service/internal/dtos"
	"github.com/shiftworks/assignment-service/internal/models"
	"github.com/shiftworks/assignment-service/internal/repositories"
	"github.com/shiftworks/assignment-service/internal/utils"
)

// TokenService mints single-use verification tokens. It never touches
// assignment state; callers check preconditions first.
type TokenService struct {
	cfg       *config.Config
	tokenRepo repositories.VerificationTokenRepository
	now       func() time.Time
}

func NewTokenService(cfg *config.Config, tokenRepo repositories.VerificationTokenRepository) *TokenService {
	return &TokenService{cfg: cfg, tokenRepo: tokenRepo, now: time.Now}
}

func (s *TokenService) validity() time.Duration {
	if s.cfg != nil && s.cfg.TokenValidity > 0 {
		return s.cfg.TokenValidity
	}
	return constants.DefaultTokenValidity
}

// IssueToken supersedes any unused token for (assignmentID, tokenType) and
// returns the new one along with its QR rendering.
func (s *TokenService) IssueToken(
	ctx context.Context,
	assignmentID, companyID uuid.UUID,
	tokenType models.TokenType,
) (*dtos.IssuedToken, error) {
	if !tokenType.Valid() {
		return nil, fmt.Errorf("%w: unknown token type %q", utils.ErrInvalidPayload, tokenType)
	}

	value, err := utils.RandomURLSafeToken(utils.TokenByteLength)
	if err != nil {
		return nil, err
	}

	qrData, err := json.Marshal(dtos.QRPayload{
		Token:        value,
		AssignmentID: assignmentID,
		Type:         tokenType,
	})
	if err != nil {
		return nil, err
	}
	qrImage, err := utils.EncodeQRCodeDataURL(string(qrData))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tok := &models.VerificationToken{
		ID:           uuid.New(),
		AssignmentID: assignmentID,
		CompanyID:    companyID,
		Token:        value,
		TokenType:    tokenType,
		ExpiresAt:    now.Add(s.validity()),
	}
	if err := s.tokenRepo.IssueAtomic(ctx, tok, now); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("issue %s token for assignment %s: %w", tokenType, assignmentID, err)
	}

	utils.Logger.WithField("assignment_id", assignmentID).
		Debugf("Issued %s token expiring at %s", tokenType, tok.ExpiresAt.Format(time.RFC3339))

	return &dtos.IssuedToken{
		Token:        value,
		TokenType:    tokenType,
		AssignmentID: assignmentID,
		ExpiresAt:    tok.ExpiresAt,
		QRData:       string(qrData),
		QRCodeImage:  qrImage,
	}, nil
}
