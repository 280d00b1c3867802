package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vesting-engine/generic"
)

func schedule(total generic.Amount, duration int64, rate string) generic.VestingSchedule {
	return generic.VestingSchedule{
		ID:          "s-1",
		Beneficiary: "bob",
		Start:       genesis,
		Duration:    duration,
		Unit:        generic.Days30,
		AmountTotal: total,
		YieldRate:   generic.MustParseRate(rate),
		Released:    generic.ZeroAmount(),
		Rewarded:    generic.ZeroAmount(),
	}
}

func TestVestedUnits_ClampedToDuration(t *testing.T) {
	s := schedule(generic.Ether(100), 4, "0")
	secs := generic.Days30.DefaultSeconds()

	tests := []struct {
		at   time.Time
		want int64
	}{
		{genesis.Add(-time.Second), 0},
		{genesis, 0},
		{genesis.Add(generic.DaysDuration(29)), 0},
		{genesis.Add(generic.DaysDuration(30)), 1},
		{genesis.Add(generic.DaysDuration(119)), 3},
		{genesis.Add(generic.DaysDuration(120)), 4},
		{genesis.Add(generic.DaysDuration(5000)), 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, generic.VestedUnits(s, tt.at, secs), "at %s", tt.at)
	}
}

func TestReleasableAt_SubtractsReleased(t *testing.T) {
	// GIVEN: 25 of 100 already released
	// WHEN: Computing at T+60d with 1%
	// THEN: 25 more principal, 0.25 reward
	s := schedule(generic.Ether(100), 4, "0.01")
	s.Released = generic.Ether(25)

	r := generic.ReleasableAt(s, genesis.Add(generic.DaysDuration(60)), generic.Days30.DefaultSeconds())

	assert.True(t, r.Principal.Equal(generic.Ether(25)), "principal %v", r.Principal)
	assert.True(t, r.Reward.Equal(generic.MustParseEther("0.25")), "reward %v", r.Reward)
}

func TestReleasableAt_RewardTruncates(t *testing.T) {
	// 3 wei at 50% pays 1 wei reward, not 1.5
	s := schedule(generic.NewAmount(3), 1, "0.5")

	r := generic.ReleasableAt(s, genesis.Add(generic.DaysDuration(30)), generic.Days30.DefaultSeconds())

	assert.True(t, r.Principal.Equal(generic.NewAmount(3)))
	assert.True(t, r.Reward.Equal(generic.NewAmount(1)), "reward %v", r.Reward)
}

func TestSummarize(t *testing.T) {
	a := schedule(generic.Ether(100), 4, "0")
	a.Released = generic.Ether(25)
	b := schedule(generic.Ether(10), 1, "0")
	b.Rewarded = generic.Ether(1)

	sum := generic.Summarize([]generic.VestingSchedule{a, b})

	assert.True(t, sum.AmountTotal.Equal(generic.Ether(110)))
	assert.True(t, sum.Locked().Equal(generic.Ether(85)))
	assert.True(t, sum.RewardedTotal.Equal(generic.Ether(1)))
}

func TestApplyReleases(t *testing.T) {
	s := schedule(generic.Ether(100), 4, "0.01")
	entries := []generic.ReleaseEntry{
		{ScheduleID: "s-1", Principal: generic.Ether(25), Reward: generic.MustParseEther("0.25")},
		{ScheduleID: "other", Principal: generic.Ether(5), Reward: generic.ZeroAmount()},
		{ScheduleID: "s-1", Principal: generic.Ether(50), Reward: generic.MustParseEther("0.5")},
	}

	out := generic.ApplyReleases([]generic.VestingSchedule{s}, entries)

	require.Len(t, out, 1)
	assert.True(t, out[0].Released.Equal(generic.Ether(75)))
	assert.True(t, out[0].Rewarded.Equal(generic.MustParseEther("0.75")))
	assert.True(t, out[0].Locked().Equal(generic.Ether(25)))
}

// =============================================================================
// UNITS AND RATES
// =============================================================================

func TestParseDurationUnit(t *testing.T) {
	u, err := generic.ParseDurationUnit("days90")
	require.NoError(t, err)
	assert.Equal(t, generic.Days90, u)
	assert.Equal(t, int64(90*86400), u.DefaultSeconds())

	_, err = generic.ParseDurationUnit("Weeks")
	assert.True(t, errors.Is(err, generic.ErrInvalidDurationUnit))

	var parsed generic.DurationUnit
	require.NoError(t, parsed.UnmarshalText([]byte("Days1080")))
	assert.Equal(t, generic.Days1080, parsed)
}

func TestUnitTable_Lookups(t *testing.T) {
	table, err := generic.NewUnitTable(units("0.01"))
	require.NoError(t, err)

	secs, err := table.SecondsFor(generic.Days30)
	require.NoError(t, err)
	assert.Equal(t, int64(30*86400), secs)

	mult, _ := table.MultiplierFor(generic.Days)
	assert.True(t, mult.Equal(generic.One()), "unset multiplier defaults to 1.0")

	_, err = table.RewardRateFor(generic.Days360)
	assert.True(t, errors.Is(err, generic.ErrInvalidDurationUnit))
}

func TestNewUnitTable_RejectsBadRows(t *testing.T) {
	_, err := generic.NewUnitTable([]generic.UnitRewards{{Unit: generic.Days, SecondsPerUnit: 0}})
	assert.True(t, errors.Is(err, generic.ErrInvalidDurationUnit))

	_, err = generic.NewUnitTable([]generic.UnitRewards{{Unit: generic.Days, SecondsPerUnit: 1, RewardRate: generic.MustParseRate("-0.1")}})
	assert.True(t, errors.Is(err, generic.ErrInvalidRate))
}

func TestRewardModels(t *testing.T) {
	row := generic.UnitRewards{Unit: generic.Days30, SecondsPerUnit: 1, RewardRate: generic.MustParseRate("0.02"), Multiplier: generic.MustParseRate("1.5")}

	assert.True(t, generic.NoReward{}.YieldRate(row, 3).Equal(generic.ZeroRate()))
	assert.True(t, generic.FixedReward{}.YieldRate(row, 3).Equal(generic.MustParseRate("0.02")))
	assert.True(t, generic.CompoundingReward{}.YieldRate(row, 1).Equal(generic.MustParseRate("0.02")), "one unit never compounds")
	assert.True(t, generic.CompoundingReward{}.YieldRate(row, 3).Equal(generic.MustParseRate("0.045")))

	m, err := generic.RewardModelByName("compounding")
	require.NoError(t, err)
	assert.Equal(t, "compounding", m.Name())
	_, err = generic.RewardModelByName("linear-ish")
	assert.Error(t, err)
}

func TestCompoundingReward_StopsAtZero(t *testing.T) {
	// GIVEN: A shrinking multiplier that truncates the rate to zero within ~60 steps
	// WHEN: Asking for a rate over a huge duration
	// THEN: It returns zero without iterating the whole duration
	row := generic.UnitRewards{Unit: generic.Days, SecondsPerUnit: 1, RewardRate: generic.MustParseRate("0.01"), Multiplier: generic.MustParseRate("0.5")}

	got := generic.CompoundingReward{}.YieldRate(row, 1<<62)

	assert.True(t, got.Equal(generic.ZeroRate()), "got %s", got)
}

func TestRateMul_Truncates(t *testing.T) {
	third, err := generic.RateFromScaled("333333333333333333")
	require.NoError(t, err)

	got := third.Mul(generic.MustParseRate("0.5"))

	want, _ := generic.RateFromScaled("166666666666666666")
	assert.True(t, got.Equal(want), "got %s", got)
}

func TestManualClock_NeverGoesBack(t *testing.T) {
	c := generic.NewManualClock(genesis)

	c.Advance(-time.Hour)
	c.Set(genesis.Add(-time.Hour))
	assert.Equal(t, genesis, c.Now())

	c.Advance(generic.DaysDuration(1))
	assert.Equal(t, genesis.Add(24*time.Hour), c.Now())
}
