/*
ledger.go - Release ledger aggregation

PURPOSE:
  Release entries are the immutable source of truth for what a schedule has
  paid out. Released and Rewarded are computed by replaying entries - there
  is no stored cumulative field that can get out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Entries are never updated or deleted
  2. BOUNDED: Sum of principal entries never exceeds AmountTotal
  3. AUDITABLE: Every payout carries its release call ID and timestamp

EXAMPLE FLOW:
  Schedule: 100 ether over 4 x Days30
  1. Day 30 release:  entry +25 principal, +0.25 reward
  2. Day 120 release: entry +75 principal, +0.75 reward
  Released = 100, Rewarded = 1, Locked = 0

SEE ALSO:
  - store.go: Persistence interface
  - generic/store/memory.go, store/sqlite/sqlite.go: Apply these helpers
*/
package generic

// =============================================================================
// AGGREGATION
// =============================================================================

// SumReleases totals release entries per schedule.
func SumReleases(entries []ReleaseEntry) map[ScheduleID]Releasable {
	sums := make(map[ScheduleID]Releasable)
	for _, e := range entries {
		cur, ok := sums[e.ScheduleID]
		if !ok {
			cur = Releasable{Principal: ZeroAmount(), Reward: ZeroAmount()}
		}
		sums[e.ScheduleID] = cur.Add(Releasable{Principal: e.Principal, Reward: e.Reward})
	}
	return sums
}

// ApplyReleases sets Released/Rewarded on each schedule from entries.
func ApplyReleases(schedules []VestingSchedule, entries []ReleaseEntry) []VestingSchedule {
	sums := SumReleases(entries)
	out := make([]VestingSchedule, len(schedules))
	for i, s := range schedules {
		paid, ok := sums[s.ID]
		if !ok {
			paid = Releasable{Principal: ZeroAmount(), Reward: ZeroAmount()}
		}
		s.Released = paid.Principal
		s.Rewarded = paid.Reward
		out[i] = s
	}
	return out
}

// =============================================================================
// SUMMARIES
// =============================================================================

// AmountSummary is the beneficiary-wide view returned by GetAmount.
type AmountSummary struct {
	AmountTotal   Amount
	ReleasedTotal Amount
	RewardedTotal Amount
}

// Locked is principal not yet paid out across all schedules.
func (s AmountSummary) Locked() Amount {
	return s.AmountTotal.Sub(s.ReleasedTotal)
}

// Summarize totals a beneficiary's schedules.
func Summarize(schedules []VestingSchedule) AmountSummary {
	sum := AmountSummary{AmountTotal: ZeroAmount(), ReleasedTotal: ZeroAmount(), RewardedTotal: ZeroAmount()}
	for _, s := range schedules {
		sum.AmountTotal = sum.AmountTotal.Add(s.AmountTotal)
		sum.ReleasedTotal = sum.ReleasedTotal.Add(s.Released)
		sum.RewardedTotal = sum.RewardedTotal.Add(s.Rewarded)
	}
	return sum
}
