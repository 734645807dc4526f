package domain

import "time"

// CreditEntry is one row of the append-only credit ledger. Exactly one debit
// entry is written per job, and only when the job completes with at least one
// successfully processed image.
type CreditEntry struct {
	ID          string
	JobID       string
	UserID      string
	Delta       int
	Balance     int
	Description string
	CreatedAt   time.Time
}

const (
	creditsPerImageBasic   = 1
	creditsPerImagePremium = 3
)

// Cost returns the credit price for processing count images at the given tier.
// Failed images are never charged, so callers pass the processed count only.
func Cost(tier Tier, count int) int {
	if count <= 0 {
		return 0
	}
	if tier == TierPremium {
		return count * creditsPerImagePremium
	}
	return count * creditsPerImageBasic
}
