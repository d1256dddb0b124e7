package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/shiftworks/assignment-service/internal/models"
	"github.com/shiftworks/assignment-service/internal/utils"
)

type VerificationTokenRepository interface {
	// IssueAtomic marks every unused token of the same (assignment, type) as
	// used at now and inserts tok, in one transaction.
	IssueAtomic(ctx context.Context, tok *models.VerificationToken, now time.Time) error

	GetForRedemption(ctx context.Context, token string, assignmentID uuid.UUID, tokenType models.TokenType) (*models.TokenRedemption, error)

	// RedeemAtomic consumes the token with a compare-and-set on used_at and
	// applies mutate to the locked assignment in the same transaction.
	// Returns utils.ErrTokenAlreadyUsed when another redemption won.
	RedeemAtomic(
		ctx context.Context,
		tokenID, assignmentID uuid.UUID,
		usedAt time.Time,
		mutate func(*models.Assignment) error,
	) (*models.Assignment, error)
}

type verificationTokenRepo struct {
	db DB
}

func NewVerificationTokenRepository(db DB) VerificationTokenRepository {
	return &verificationTokenRepo{db: db}
}

func (r *verificationTokenRepo) IssueAtomic(ctx context.Context, tok *models.VerificationToken, now time.Time) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		// Serializes concurrent issuance for the same assignment so the
		// partial unique index never sees two unused rows.
		if err := lockAssignmentTx(ctx, tx, tok.AssignmentID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
            UPDATE verification_tokens
            SET used_at=$1
            WHERE assignment_id=$2 AND token_type=$3 AND used_at IS NULL
        `, now, tok.AssignmentID, tok.TokenType); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
            INSERT INTO verification_tokens (
                id, assignment_id, company_id, token, token_type, expires_at, used_at, created_at
            ) VALUES ($1,$2,$3,$4,$5,$6,NULL,$7)
        `, tok.ID, tok.AssignmentID, tok.CompanyID, tok.Token, tok.TokenType, tok.ExpiresAt, now)
		if err != nil {
			return err
		}
		tok.CreatedAt = now
		return nil
	})
}

func (r *verificationTokenRepo) GetForRedemption(
	ctx context.Context,
	token string,
	assignmentID uuid.UUID,
	tokenType models.TokenType,
) (*models.TokenRedemption, error) {
	row := r.db.QueryRow(ctx, `
        SELECT
            t.id, t.assignment_id, t.company_id, t.token, t.token_type, t.expires_at, t.used_at, t.created_at,
            `+assignmentColumns("a")+`,
            COALESCE(u.full_name, '')
        FROM verification_tokens t
        JOIN assignments a ON a.id = t.assignment_id
        JOIN jobs j ON j.id = a.job_id
        LEFT JOIN users u ON u.id = j.company_id
        WHERE t.token=$1 AND t.assignment_id=$2 AND t.token_type=$3
    `, token, assignmentID, tokenType)

	var (
		tok models.VerificationToken
		a   models.Assignment
		out models.TokenRedemption
	)
	targets := []any{
		&tok.ID, &tok.AssignmentID, &tok.CompanyID, &tok.Token, &tok.TokenType,
		&tok.ExpiresAt, &tok.UsedAt, &tok.CreatedAt,
	}
	targets = append(targets, assignmentScanTargets(&a)...)
	targets = append(targets, &out.CompanyName)

	if err := row.Scan(targets...); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	out.Token = &tok
	out.Assignment = &a
	return &out, nil
}

func (r *verificationTokenRepo) RedeemAtomic(
	ctx context.Context,
	tokenID, assignmentID uuid.UUID,
	usedAt time.Time,
	mutate func(*models.Assignment) error,
) (*models.Assignment, error) {
	var out *models.Assignment
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE verification_tokens
            SET used_at=$1
            WHERE id=$2 AND assignment_id=$3 AND used_at IS NULL
        `, usedAt, tokenID, assignmentID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return utils.ErrTokenAlreadyUsed
		}

		out, err = applyAssignmentMutationTx(ctx, tx, assignmentID, mutate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
