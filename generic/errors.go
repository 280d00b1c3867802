/*
errors.go - Centralized error types for the vesting engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Token backends, the consumption ledger, and the API layer wrap or map
  these errors; they never invent their own categories.

ERROR CATEGORIES:
  1. Validation errors - Bad input, rejected before any state change
  2. Authorization errors - Caller is not the operator
  3. Insufficient funds - Balance/allowance shortfall on the token ledger
  4. Insufficient reward pool - Engine balance cannot cover a release
  5. Not found - Unknown schedule

USAGE:
  if errors.Is(err, generic.ErrInsufficientRewardPool) {
      // top up the pool with DepositPermanently and retry
  }

SEE ALSO:
  - engine.go: Produces these errors
  - api/handlers.go: Maps categories to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidStartTime is returned when a schedule start is not strictly
	// after the creation time.
	ErrInvalidStartTime = errors.New("invalid start time")

	// ErrInvalidDuration is returned when a schedule duration is below one unit.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidDurationUnit is returned for unknown or disabled duration units.
	ErrInvalidDurationUnit = errors.New("invalid duration unit")

	// ErrInvalidRate is returned when a reward rate or multiplier is negative.
	ErrInvalidRate = errors.New("invalid rate")

	// ErrInvalidOperator is returned when the new operator identity is empty.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrInvalidAddress is returned for an empty beneficiary, depositor, or holder.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrUnauthorized is returned when a non-operator calls an operator-only function.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientBalance is returned by the token ledger when a holder's
	// balance cannot cover a transfer or burn.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAllowanceExceeded is returned by the token ledger when a spender's
	// allowance cannot cover a transfer-from or burn-from.
	ErrAllowanceExceeded = errors.New("allowance exceeded")

	// ErrAllowanceInsufficient is returned by the consumption ledger when the
	// burner has not approved enough for the ledger to burn.
	ErrAllowanceInsufficient = fmt.Errorf("insufficient allowance: %w", ErrAllowanceExceeded)

	// ErrInsufficientRewardPool is returned when the engine account cannot
	// cover principal plus reward for a release.
	ErrInsufficientRewardPool = errors.New("tokens for reward is not enough")

	// ErrScheduleNotFound is returned when a schedule ID doesn't exist.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrInvariantViolated is returned if a release would pay more principal
	// than a schedule holds. Seeing it means the vesting math is broken.
	ErrInvariantViolated = errors.New("vesting invariant violated")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientRewardPoolError records the shortfall of a rejected release.
type InsufficientRewardPoolError struct {
	Beneficiary Address
	Principal   Amount
	Reward      Amount
	Available   Amount
}

func (e *InsufficientRewardPoolError) Required() Amount {
	return e.Principal.Add(e.Reward)
}

func (e *InsufficientRewardPoolError) Shortfall() Amount {
	return e.Required().Sub(e.Available)
}

func (e *InsufficientRewardPoolError) Error() string {
	return fmt.Sprintf("tokens for reward is not enough: beneficiary %s requires %v (principal %v, reward %v), available %v",
		e.Beneficiary, e.Required(), e.Principal, e.Reward, e.Available)
}

func (e *InsufficientRewardPoolError) Unwrap() error {
	return ErrInsufficientRewardPool
}

// UnauthorizedError names the caller and the operator it was checked against.
type UnauthorizedError struct {
	Caller   Address
	Operator Address
	Action   string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("!auth: %s may not %s (operator is %s)", e.Caller, e.Action, e.Operator)
}

func (e *UnauthorizedError) Unwrap() error {
	return ErrUnauthorized
}

// FundsError describes a token ledger shortfall.
type FundsError struct {
	Kind      error // ErrInsufficientBalance or ErrAllowanceExceeded
	Holder    Address
	Spender   Address
	Available Amount
	Requested Amount
}

func (e *FundsError) Error() string {
	if e.Spender != "" {
		return fmt.Sprintf("%v: holder %s spender %s available %v, requested %v",
			e.Kind, e.Holder, e.Spender, e.Available, e.Requested)
	}
	return fmt.Sprintf("%v: holder %s available %v, requested %v",
		e.Kind, e.Holder, e.Available, e.Requested)
}

func (e *FundsError) Unwrap() error {
	return e.Kind
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to invalid client input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidStartTime) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDurationUnit) ||
		errors.Is(err, ErrInvalidRate) ||
		errors.Is(err, ErrInvalidOperator) ||
		errors.Is(err, ErrInvalidAddress)
}

// IsAuthorization returns true if the caller lacked the operator role.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsInsufficientFunds returns true for balance or allowance shortfalls.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrAllowanceExceeded)
}

// IsRetryable returns true if the error might succeed once the pool is topped up.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInsufficientRewardPool)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}
