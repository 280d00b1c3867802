package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VESTING MATH - Pure releasable computation
// =============================================================================

// Releasable is what one schedule (or a beneficiary's whole list) can pay out
// at a point in time.
type Releasable struct {
	Principal Amount
	Reward    Amount
}

func (r Releasable) Total() Amount { return r.Principal.Add(r.Reward) }

func (r Releasable) IsZero() bool { return r.Principal.IsZero() && r.Reward.IsZero() }

func (r Releasable) Add(o Releasable) Releasable {
	return Releasable{Principal: r.Principal.Add(o.Principal), Reward: r.Reward.Add(o.Reward)}
}

// VestedUnits returns the number of whole units elapsed at `at`, clamped to
// the schedule's duration.
func VestedUnits(s VestingSchedule, at time.Time, secondsPerUnit int64) int64 {
	elapsed := ElapsedUnits(s.Start, at, secondsPerUnit)
	if elapsed > s.Duration {
		return s.Duration
	}
	return elapsed
}

// VestedTotal returns floor(amountTotal * elapsedUnits / duration): the
// cumulative principal unlocked at `at`, including what was already released.
func VestedTotal(s VestingSchedule, at time.Time, secondsPerUnit int64) Amount {
	if s.Duration <= 0 {
		return ZeroAmount()
	}
	units := VestedUnits(s, at, secondsPerUnit)
	if units == 0 {
		return ZeroAmount()
	}
	return s.AmountTotal.MulDiv(decimal.NewFromInt(units), decimal.NewFromInt(s.Duration))
}

// ReleasableAt computes the principal and reward a schedule can pay at `at`.
// It does not mutate the schedule.
func ReleasableAt(s VestingSchedule, at time.Time, secondsPerUnit int64) Releasable {
	principal := VestedTotal(s, at, secondsPerUnit).Sub(s.Released)
	if !principal.IsPositive() {
		return Releasable{Principal: ZeroAmount(), Reward: ZeroAmount()}
	}
	return Releasable{
		Principal: principal,
		Reward:    principal.MulRate(s.YieldRate),
	}
}
