package model

import "github.com/pkg/errors"

// Route operation errors. Every failure aborts the whole operation; callers
// match them with errors.Is after the service has wrapped them with context.
var (
	ErrInvalidSchedule      = errors.New("invalid schedule")
	ErrInvalidParty         = errors.New("invalid party address")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrNotPayer             = errors.New("caller is not the payer")
	ErrNotBeneficiary       = errors.New("caller is not the beneficiary")
	ErrNotDepositor         = errors.New("caller is not the depositor")
	ErrAlreadyDecided       = errors.New("route is no longer pending")
	ErrExceedsDeposit       = errors.New("approval exceeds deposit")
	ErrNothingClaimable     = errors.New("nothing claimable yet")
	ErrFeePolicyUnavailable = errors.New("fee policy unavailable")
	ErrUnsupportedOperation = errors.New("operation not supported for route kind")
	ErrRouteNotFound        = errors.New("route not found")
	ErrInvalidAmount        = errors.New("amount must be positive")
)
