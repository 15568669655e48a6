package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrRewardUnavailable   = errors.New("reward unavailable")
	ErrAlreadyClaimed      = errors.New("reward already claimed")
	ErrNoEligibleCard      = errors.New("no eligible loyalty card")
	ErrNotFound            = errors.New("not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrStorageFailure      = errors.New("storage failure")

	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrCardNotFound        = fmt.Errorf("loyalty card %w", ErrNotFound)
	ErrRewardNotFound      = fmt.Errorf("reward %w", ErrNotFound)
	ErrMerchantNotFound    = fmt.Errorf("merchant %w", ErrNotFound)
	ErrRedemptionNotFound  = fmt.Errorf("redemption %w", ErrNotFound)
	ErrAccountArchived     = fmt.Errorf("account is archived: %w", ErrValidation)
	ErrCurrencyMismatch    = fmt.Errorf("currency mismatch: %w", ErrValidation)
	ErrAmountSign          = fmt.Errorf("amount sign does not match transaction kind: %w", ErrValidation)
	ErrAmountZero          = fmt.Errorf("amount must not be zero: %w", ErrValidation)
	ErrPointsNotPositive   = fmt.Errorf("points must be positive: %w", ErrValidation)
	ErrPointsNegative      = fmt.Errorf("points must not be negative: %w", ErrValidation)
	ErrBalanceOverflow     = fmt.Errorf("balance out of range: %w", ErrValidation)
	ErrSelfTransfer        = fmt.Errorf("transfer source and destination are the same: %w", ErrValidation)
	ErrTransferKind        = fmt.Errorf("transfer transactions are recorded in pairs only: %w", ErrValidation)
	ErrInvalidTierTable    = fmt.Errorf("invalid tier threshold table: %w", ErrValidation)
	ErrInvalidPageCursor   = fmt.Errorf("invalid page cursor: %w", ErrValidation)
	ErrInvalidRewardConfig = fmt.Errorf("invalid reward: %w", ErrValidation)
)
