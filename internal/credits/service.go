package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"masterpost/internal/domain"
)

// Service settles job costs against user balances. Settlement happens exactly
// once per job, after it completes with at least one processed image; failed
// images are never charged and cancelled jobs never reach this code.
type Service struct {
	repo   domain.CreditRepository
	logger zerolog.Logger
}

func NewService(repo domain.CreditRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Balance returns the user's current credit balance.
func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	return s.repo.Balance(ctx, userID)
}

// Settle deducts the cost of a finished job and records the ledger entry and
// per-tier usage counters atomically. A deduction failure is logged for
// manual reconciliation and returned wrapped in ErrSettlementFailure; the
// caller must not revert the job's completion and must not retry.
func (s *Service) Settle(ctx context.Context, job *domain.Job) error {
	amount := domain.Cost(job.Tier, job.Processed)
	if amount == 0 {
		return nil
	}

	entry := &domain.CreditEntry{
		ID:          uuid.NewString(),
		JobID:       job.ID,
		UserID:      job.UserID,
		Delta:       -amount,
		Description: fmt.Sprintf("Processed %d images (%s tier, pipeline %s)", job.Processed, job.Tier, job.Pipeline),
		CreatedAt:   time.Now().UTC(),
	}

	basic, premium := 0, 0
	if job.Tier == domain.TierPremium {
		premium = job.Processed
	} else {
		basic = job.Processed
	}

	balance, err := s.repo.Settle(ctx, entry, basic, premium)
	if err != nil {
		s.logger.Error().Err(err).
			Str("job_id", job.ID).
			Str("user_id", job.UserID).
			Int("amount", amount).
			Msg("credits: deduction failed, needs reconciliation")
		return fmt.Errorf("%w: job %s: %v", domain.ErrSettlementFailure, job.ID, err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Int("amount", amount).
		Int("balance", balance).
		Msg("credits: settled")
	return nil
}
