package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
)

// OneTimeCodeRepository keeps at most one code per (identifier, purpose).
// Attempt and used-flag updates are conditional so concurrent verifications
// of the same code cannot both succeed.
type OneTimeCodeRepository interface {
	// Replace stores c, discarding any prior code for the same key.
	Replace(ctx context.Context, c *models.OneTimeCode) error
	// FindActive returns the unused, unexpired code for the key or ErrNotFound.
	FindActive(ctx context.Context, identifier, purpose string, now time.Time) (*models.OneTimeCode, error)
	// IncrementAttempts adds one attempt to an unused code and returns the new count.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	// MarkUsed flips used=false -> true; ErrNotFound if it was already used or gone.
	MarkUsed(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// PurgeExpired removes codes past expiry or older than retention.
	PurgeExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}

type oneTimeCodeRepository struct {
	DB *sql.DB
}

func NewOneTimeCodeRepository(db *sql.DB) OneTimeCodeRepository {
	return &oneTimeCodeRepository{DB: db}
}

func (r *oneTimeCodeRepository) Replace(ctx context.Context, c *models.OneTimeCode) error {
	const q = `
		INSERT INTO one_time_codes (id, identifier, purpose, code, expires_at, used, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, 0, $6)
		ON CONFLICT (identifier, purpose) DO UPDATE
		SET id = EXCLUDED.id,
			code = EXCLUDED.code,
			expires_at = EXCLUDED.expires_at,
			used = FALSE,
			attempts = 0,
			created_at = EXCLUDED.created_at
	`
	if _, err := r.DB.ExecContext(ctx, q,
		c.ID, c.Identifier, c.Purpose, c.Code, c.ExpiresAt, c.CreatedAt,
	); err != nil {
		return fmt.Errorf("one_time_code replace: %w", err)
	}
	return nil
}

func (r *oneTimeCodeRepository) FindActive(ctx context.Context, identifier, purpose string, now time.Time) (*models.OneTimeCode, error) {
	const q = `
		SELECT id, identifier, purpose, code, expires_at, used, attempts, created_at
		FROM one_time_codes
		WHERE identifier = $1 AND purpose = $2 AND used = FALSE AND expires_at > $3
	`
	var c models.OneTimeCode
	err := r.DB.QueryRowContext(ctx, q, identifier, purpose, now).Scan(
		&c.ID, &c.Identifier, &c.Purpose, &c.Code, &c.ExpiresAt, &c.Used, &c.Attempts, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("one_time_code find active: %w", err)
	}
	return &c, nil
}

func (r *oneTimeCodeRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	const q = `
		UPDATE one_time_codes
		SET attempts = attempts + 1
		WHERE id = $1 AND used = FALSE
		RETURNING attempts
	`
	var attempts int
	err := r.DB.QueryRowContext(ctx, q, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("one_time_code increment attempts: %w", err)
	}
	return attempts, nil
}

func (r *oneTimeCodeRepository) MarkUsed(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE one_time_codes SET used = TRUE WHERE id = $1 AND used = FALSE`, id)
	if err != nil {
		return fmt.Errorf("one_time_code mark used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("one_time_code mark used: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *oneTimeCodeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM one_time_codes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("one_time_code delete: %w", err)
	}
	return nil
}

func (r *oneTimeCodeRepository) PurgeExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM one_time_codes WHERE expires_at <= $1 OR created_at <= $2`,
		now, now.Add(-retention),
	)
	if err != nil {
		return 0, fmt.Errorf("one_time_code purge: %w", err)
	}
	return res.RowsAffected()
}
