package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"librarium/api/internal/models"
)

var ErrResetNotFound = errors.New("password reset not found")

type ResetRepository struct {
	pool *pgxpool.Pool
}

func NewResetRepository(pool *pgxpool.Pool) *ResetRepository {
	return &ResetRepository{pool: pool}
}

// Create stores a reset record, superseding any outstanding one for the user.
func (r *ResetRepository) Create(ctx context.Context, reset models.PasswordReset) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM password_resets WHERE user_id = $1`, reset.UserID); err != nil {
		return err
	}

	const query = `
		INSERT INTO password_resets (id, user_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, NOW(), $4)
	`
	if _, err := tx.Exec(ctx, query, reset.ID, reset.UserID, reset.TokenHash, reset.ExpiresAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ResetRepository) FindByTokenHash(ctx context.Context, tokenHash []byte) (models.PasswordReset, error) {
	const query = `
		SELECT id, user_id, token_hash, created_at, expires_at
		FROM password_resets
		WHERE token_hash = $1
	`

	var reset models.PasswordReset
	if err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&reset.ID,
		&reset.UserID,
		&reset.TokenHash,
		&reset.CreatedAt,
		&reset.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PasswordReset{}, ErrResetNotFound
		}
		return models.PasswordReset{}, err
	}
	return reset, nil
}

func (r *ResetRepository) DeleteByID(ctx context.Context, id string) error {
	const query = `DELETE FROM password_resets WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrResetNotFound
	}
	return nil
}

func (r *ResetRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM password_resets WHERE expires_at < NOW()`
	cmd, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
