package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrValidation        = errors.New("validation failed")
	ErrTaskTimeout       = errors.New("task timed out")
	ErrProviderFailure   = errors.New("provider failure")
	ErrSettlementFailure = errors.New("settlement failure")
	ErrInsufficientFunds = errors.New("insufficient credits")
)
