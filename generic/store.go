/*
store.go - Persistence interface for schedules, releases, and pool state

PURPOSE:
  Defines the interface between the vesting engine and the database.
  Schedules and release entries are append-only; a schedule's Released and
  Rewarded totals are always derived by summing its release entries, so
  there is no cumulative field that can drift.

KEY INTERFACES:
  Store:   Schedules, releases, pool deposits, settings, events
  TxStore: Atomic multi-write operations (create, release, deposit)

APPEND-ONLY CONTRACT:
  - AppendSchedule(): One schedule per deposit, never merged
  - AppendReleases(): One entry per schedule per release call
  - AppendPoolDeposit(): Reward pool contributions, never withdrawn
  - NO Update() or Delete() for schedules or releases

MUTABLE SETTINGS:
  Only the operator identity and the duration unit rates change in place.
  Both are written by operator-only engine calls.

ATOMIC OPERATIONS:
  WithTx() ensures all-or-nothing semantics. A release that appends entries
  for three schedules and then fails on the token transfer leaves no entries
  behind.

TOKEN BALANCES IN THE SAME BACKEND:
  If the Store handed to a WithTx callback also implements Token, the engine
  moves tokens through it so balances commit with schedule state.
  store/sqlite does this; the memory store pairs with token.Memory instead.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: The only writer
  - ledger.go: Release aggregation helpers shared by implementations
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for vesting persistence
// =============================================================================

type Store interface {
	// AppendSchedule persists a new schedule. Released/Rewarded are ignored.
	AppendSchedule(ctx context.Context, s VestingSchedule) error

	// AppendReleases persists release entries. Within a TxStore callback
	// they become visible to Schedules() immediately.
	AppendReleases(ctx context.Context, entries []ReleaseEntry) error

	// Schedules returns a beneficiary's schedules in insertion order, with
	// Released/Rewarded summed from release entries.
	Schedules(ctx context.Context, beneficiary Address) ([]VestingSchedule, error)

	// Schedule returns one schedule or ErrScheduleNotFound.
	Schedule(ctx context.Context, id ScheduleID) (VestingSchedule, error)

	// Releases returns the release entries of a schedule, oldest first.
	Releases(ctx context.Context, id ScheduleID) ([]ReleaseEntry, error)

	// Beneficiaries returns every beneficiary with at least one schedule,
	// ordered by first schedule.
	Beneficiaries(ctx context.Context) ([]Address, error)

	// AppendPoolDeposit records a permanent reward pool deposit.
	AppendPoolDeposit(ctx context.Context, d PoolDeposit) error

	// PermanentTotal sums all pool deposits.
	PermanentTotal(ctx context.Context) (Amount, error)

	// Operator returns the stored operator, or "" before first initialization.
	Operator(ctx context.Context) (Address, error)

	// SetOperator replaces the operator.
	SetOperator(ctx context.Context, operator Address) error

	// UnitRewards returns the persisted duration unit table, or nil.
	UnitRewards(ctx context.Context) ([]UnitRewards, error)

	// SaveUnitRewards replaces the persisted duration unit table.
	SaveUnitRewards(ctx context.Context, rows []UnitRewards) error

	// AppendEvent records a notification. Events written inside WithTx are
	// discarded on rollback.
	AppendEvent(ctx context.Context, ev Event) error

	// Events returns recorded notifications matching the filter, oldest first.
	Events(ctx context.Context, filter EventFilter) ([]Event, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// EVENTS - Notifications recorded alongside state changes
// =============================================================================

type EventType string

const (
	EventScheduleCreated    EventType = "VestingScheduleCreated"
	EventTokensReleased     EventType = "TokensReleased"
	EventPermanentDeposited EventType = "PermanentDeposited"
	EventOperatorChanged    EventType = "OperatorChanged"
	EventUnitRewardsChanged EventType = "DurationUnitRewardsChanged"
	EventConsumptionBurned  EventType = "ConsumptionBurned"
)

// Event is an immutable notification. Account is the primary party
// (beneficiary, depositor, operator, or burner); Payload carries the
// event-specific fields as strings.
type Event struct {
	ID      string
	Type    EventType
	At      time.Time
	Account Address
	Payload map[string]string
}

// EventFilter narrows an event query. Zero values match everything.
type EventFilter struct {
	Account *Address
	Types   []EventType
	Limit   int
}

// Matches reports whether ev passes the filter (Limit is applied by callers).
func (f EventFilter) Matches(ev Event) bool {
	if f.Account != nil && ev.Account != *f.Account {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// EventAppender is the write half of the event log, for collaborators such
// as the consumption ledger that record but never query.
type EventAppender interface {
	AppendEvent(ctx context.Context, ev Event) error
}
