package domain

import "context"

// JobRepository defines persistence for job records. The job row is mutated by
// a single orchestrator at a time; progress counters are written after every
// completed image so external queries stay near-real-time.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, errMsg string) error
	UpdateProgress(ctx context.Context, jobID string, processed, failed int) error
	// MarkProcessing atomically moves one job from uploaded to processing.
	// Exactly one of several concurrent callers wins; the rest get
	// ErrInvalidState, or ErrNotFound for an unknown job.
	MarkProcessing(ctx context.Context, jobID string) error
	// ClaimUploaded atomically moves the oldest uploaded job to processing and
	// returns it, or ErrNotFound when no job is waiting.
	ClaimUploaded(ctx context.Context) (*Job, error)
}

// CreditRepository handles balances, the append-only ledger and per-tier
// usage counters.
type CreditRepository interface {
	Balance(ctx context.Context, userID string) (int, error)
	// Settle deducts -entry.Delta from the user's balance, appends the ledger
	// entry and increments the per-tier usage counters in one transaction. It
	// returns the resulting balance, or ErrInsufficientFunds without touching
	// anything when the balance cannot cover the deduction.
	Settle(ctx context.Context, entry *CreditEntry, basicCount, premiumCount int) (int, error)
}
