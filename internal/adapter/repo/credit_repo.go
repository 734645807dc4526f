package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"masterpost/internal/domain"
)

// CreditRepositoryPG implements domain.CreditRepository on top of three
// tables: user_credits (current balance), credit_ledger (append-only) and
// usage_counters (per-tier lifetime counts).
type CreditRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCreditRepository creates a new credit repository backed by PostgreSQL.
func NewCreditRepository(pool *pgxpool.Pool) *CreditRepositoryPG {
	return &CreditRepositoryPG{pool: pool}
}

// Balance returns the user's current credit balance.
func (r *CreditRepositoryPG) Balance(ctx context.Context, userID string) (int, error) {
	query := `
SELECT balance
FROM user_credits
WHERE user_id = $1;
`
	var balance int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// Settle applies one job's deduction atomically: balance update, ledger row
// and usage counters either all land or none do. The balance row is locked
// for the duration so concurrent settlements serialize.
func (r *CreditRepositoryPG) Settle(ctx context.Context, entry *domain.CreditEntry, basicCount, premiumCount int) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int
	err = tx.QueryRow(ctx, `
SELECT balance
FROM user_credits
WHERE user_id = $1
FOR UPDATE;
`, entry.UserID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}

	amount := -entry.Delta
	if balance < amount {
		return balance, fmt.Errorf("%w: balance %d, need %d", domain.ErrInsufficientFunds, balance, amount)
	}
	balance -= amount

	if _, err := tx.Exec(ctx, `
UPDATE user_credits
SET balance = $2, updated_at = NOW()
WHERE user_id = $1;
`, entry.UserID, balance); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO credit_ledger (id, job_id, user_id, delta, balance, description)
VALUES ($1, $2, $3, $4, $5, $6);
`, entry.ID, entry.JobID, entry.UserID, entry.Delta, balance, entry.Description); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO usage_counters (user_id, basic_images, premium_images, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_id)
DO UPDATE SET basic_images   = usage_counters.basic_images + EXCLUDED.basic_images,
              premium_images = usage_counters.premium_images + EXCLUDED.premium_images,
              updated_at     = NOW();
`, entry.UserID, basicCount, premiumCount); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit settlement: %w", err)
	}
	entry.Balance = balance
	return balance, nil
}
