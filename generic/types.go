/*
Package generic provides the core vesting engine.

PURPOSE:
  This package contains the domain types and algorithms for time-based token
  release. A depositor locks principal into a schedule for a beneficiary; the
  principal unlocks linearly per elapsed duration unit, and reward-bearing
  deployments pay a proportional yield out of a shared reward pool.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: An integer token quantity in the smallest unit (1 ether = 1e18)
  - Rate: A fixed-point fraction scaled by 1e18 (1e18 = 100%)
  - VestingSchedule: One deposit's linear release plan
  - ReleaseEntry: An immutable record of principal/reward paid from a schedule
  - PoolDeposit: An irreversible contribution to the reward pool

DESIGN PRINCIPLES:
  1. Immutability: Schedules are never edited; releases are appended
  2. Precision: decimal.Decimal with explicit truncating division
  3. Type Safety: Address and ScheduleID are distinct types
  4. Determinism: Same inputs, same outputs, regardless of call order

USAGE:
  amount := generic.Ether(100)
  s := generic.VestingSchedule{
      Beneficiary: "alice",
      Start:       start,
      Duration:    4,
      Unit:        generic.Days30,
      AmountTotal: amount,
  }

SEE ALSO:
  - units.go: Duration unit table
  - vesting.go: Releasable amount calculation
  - engine.go: Create, release, deposit operations
*/
package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FIXED-POINT SCALE
// =============================================================================

// ScaleDecimals is the number of decimals used by token amounts and rates.
const ScaleDecimals = 18

// Scale is 1e18: one whole token, or a rate of 100%.
var Scale = decimal.New(1, ScaleDecimals)

// =============================================================================
// AMOUNT - Integer token quantity (smallest unit)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value int64) Amount { return Amount{Value: decimal.NewFromInt(value)} }

// Ether returns n whole tokens.
func Ether(n int64) Amount { return Amount{Value: decimal.NewFromInt(n).Mul(Scale)} }

// ParseAmount parses an integer string in the smallest unit.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return Amount{}, fmt.Errorf("invalid amount %q: must be an integer", s)
	}
	return Amount{Value: d}, nil
}

// ParseEther parses a decimal number of whole tokens ("0.25" -> 0.25e18),
// truncating anything below the smallest unit.
func ParseEther(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid ether amount %q: %w", s, err)
	}
	return Amount{Value: d.Mul(Scale).Truncate(0)}, nil
}

// MustParseEther is ParseEther for constants and tests.
func MustParseEther(s string) Amount {
	a, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return a
}

func ZeroAmount() Amount { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) String() string            { return a.Value.String() }

// MulDiv returns floor(a * num / den) for non-negative operands.
func (a Amount) MulDiv(num, den decimal.Decimal) Amount {
	return Amount{Value: truncDiv(a.Value.Mul(num), den)}
}

// MulRate returns floor(a * r / 1e18).
func (a Amount) MulRate(r Rate) Amount {
	return a.MulDiv(r.Value, Scale)
}

// EtherString formats the amount in whole tokens without losing precision.
func (a Amount) EtherString() string {
	return a.Value.Shift(-ScaleDecimals).String()
}

// =============================================================================
// RATE - Fixed-point fraction scaled by 1e18
// =============================================================================

// Rate is a fixed-point number where 1e18 means 1.0 (100% for reward rates,
// ×1.0 for multipliers).
type Rate struct {
	Value decimal.Decimal
}

// One is a rate of exactly 1.0.
func One() Rate { return Rate{Value: Scale} }

func ZeroRate() Rate { return Rate{Value: decimal.Zero} }

// ParseRate parses a human fraction ("0.01" -> 0.01e18).
func ParseRate(s string) (Rate, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{}, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	return Rate{Value: d.Mul(Scale).Truncate(0)}, nil
}

// MustParseRate is ParseRate for constants and tests.
func MustParseRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// RateFromScaled wraps an already scaled integer string ("10000000000000000").
func RateFromScaled(s string) (Rate, error) {
	a, err := ParseAmount(s)
	if err != nil {
		return Rate{}, err
	}
	return Rate{Value: a.Value}, nil
}

// Mul returns floor(r * o / 1e18).
func (r Rate) Mul(o Rate) Rate {
	return Rate{Value: truncDiv(r.Value.Mul(o.Value), Scale)}
}

func (r Rate) IsNegative() bool       { return r.Value.IsNegative() }
func (r Rate) Equal(o Rate) bool      { return r.Value.Equal(o.Value) }
func (r Rate) String() string         { return r.Value.String() }
func (r Rate) FractionString() string { return r.Value.Shift(-ScaleDecimals).String() }

// truncDiv is integer division truncated toward zero.
func truncDiv(num, den decimal.Decimal) decimal.Decimal {
	q, _ := num.QuoRem(den, 0)
	return q
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Address identifies an account on the token ledger (beneficiary, depositor,
// operator, or the engine itself).
type Address string

type ScheduleID string
type ReleaseID string

// =============================================================================
// VESTING SCHEDULE - One deposit's release plan
// =============================================================================

type VestingSchedule struct {
	ID          ScheduleID
	Beneficiary Address
	Depositor   Address
	Start       time.Time
	Duration    int64 // number of Unit periods, >= 1
	Unit        DurationUnit
	AmountTotal Amount
	YieldRate   Rate // captured at creation
	CreatedAt   time.Time

	// Derived from release entries; never written directly.
	Released Amount
	Rewarded Amount
}

// Locked is the principal not yet paid out.
func (s VestingSchedule) Locked() Amount {
	return s.AmountTotal.Sub(s.Released)
}

// =============================================================================
// RELEASE ENTRY - Append-only payout record
// =============================================================================

type ReleaseEntry struct {
	ReleaseID   ReleaseID
	ScheduleID  ScheduleID
	Beneficiary Address
	Principal   Amount
	Reward      Amount
	At          time.Time
}

// =============================================================================
// POOL DEPOSIT - Irreversible reward reserve contribution
// =============================================================================

type PoolDeposit struct {
	ID     string
	From   Address
	Amount Amount
	At     time.Time
}
