package generic

import "fmt"

// =============================================================================
// REWARD MODEL - How a schedule's yield rate is fixed at creation
// =============================================================================

// RewardModel computes the yield rate captured on a schedule when it is
// created. The captured rate is used for every later release of that
// schedule; changing the unit table afterwards affects only new schedules.
type RewardModel interface {
	// Name identifies the model in configuration ("none", "fixed", "compounding").
	Name() string

	// YieldRate returns the rate to store on a new schedule.
	YieldRate(row UnitRewards, duration int64) Rate
}

// RewardModelByName resolves a configured model name.
func RewardModelByName(name string) (RewardModel, error) {
	switch name {
	case "", "fixed":
		return FixedReward{}, nil
	case "none":
		return NoReward{}, nil
	case "compounding":
		return CompoundingReward{}, nil
	}
	return nil, fmt.Errorf("unknown reward model %q", name)
}

// NoReward is plain release vesting: principal only.
type NoReward struct{}

func (NoReward) Name() string                      { return "none" }
func (NoReward) YieldRate(UnitRewards, int64) Rate { return ZeroRate() }

// FixedReward captures the unit's reward rate as is.
type FixedReward struct{}

func (FixedReward) Name() string { return "fixed" }

func (FixedReward) YieldRate(row UnitRewards, _ int64) Rate { return row.RewardRate }

// CompoundingReward captures rate * multiplier^(duration-1). Each
// multiplication truncates to 1e18 precision, so a 4-unit schedule is
// ((rate*m/1e18)*m/1e18)*m/1e18. Once the rate truncates to zero it stays
// zero.
type CompoundingReward struct{}

func (CompoundingReward) Name() string { return "compounding" }

func (CompoundingReward) YieldRate(row UnitRewards, duration int64) Rate {
	rate := row.RewardRate
	for i := int64(1); i < duration && !rate.Value.IsZero(); i++ {
		rate = rate.Mul(row.Multiplier)
	}
	return rate
}
