package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the externally visible class of a wallet error
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindInsufficientFunds   Kind = "insufficient_funds"
	KindInsufficientPoints  Kind = "insufficient_points"
	KindRewardUnavailable   Kind = "reward_unavailable"
	KindAlreadyClaimed      Kind = "already_claimed"
	KindNoEligibleCard      Kind = "no_eligible_card"
	KindNotFound            Kind = "not_found"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindStorageFailure      Kind = "storage_failure"
)

// Order matters: more specific sentinels first.
var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrRewardUnavailable, KindRewardUnavailable},
	{ErrAlreadyClaimed, KindAlreadyClaimed},
	{ErrNoEligibleCard, KindNoEligibleCard},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrInsufficientPoints, KindInsufficientPoints},
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrConcurrencyConflict, KindConcurrencyConflict},
	{ErrStorageFailure, KindStorageFailure},
}

// Error is returned by the wallet facade
// Op names the facade operation, Err keeps the original chain for errors.Is
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may repeat the same request
func (e *Error) Retryable() bool {
	return e.Kind == KindConcurrencyConflict || e.Kind == KindStorageFailure
}

// KindOf classifies any error; unknown errors are storage failures
func KindOf(err error) Kind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}

	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}

	return KindStorageFailure
}

// Wrap translates err into *Error, nil stays nil
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var werr *Error
	if errors.As(err, &werr) {
		return err
	}

	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// Retryable reports whether err is worth retrying by the caller
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindConcurrencyConflict || k == KindStorageFailure
}
