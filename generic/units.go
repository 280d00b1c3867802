package generic

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// DURATION UNIT - Time bucket used to quantize vesting
// =============================================================================

type DurationUnit int

const (
	Days DurationUnit = iota
	Days30
	Days90
	Days180
	Days360
	Days720
	Days1080
)

var unitNames = [...]string{"Days", "Days30", "Days90", "Days180", "Days360", "Days720", "Days1080"}

// unitDays is the fixed length of each unit. Seconds per unit never change for
// a deployment; only rates do.
var unitDays = [...]int64{1, 30, 90, 180, 360, 720, 1080}

// AllUnits lists every known unit in tag order.
func AllUnits() []DurationUnit {
	units := make([]DurationUnit, len(unitNames))
	for i := range unitNames {
		units[i] = DurationUnit(i)
	}
	return units
}

func (u DurationUnit) Valid() bool { return u >= 0 && int(u) < len(unitNames) }

func (u DurationUnit) String() string {
	if !u.Valid() {
		return fmt.Sprintf("DurationUnit(%d)", int(u))
	}
	return unitNames[u]
}

// DefaultSeconds is the canonical length of the unit.
func (u DurationUnit) DefaultSeconds() int64 {
	if !u.Valid() {
		return 0
	}
	return unitDays[u] * SecondsPerDay
}

// ParseDurationUnit accepts a unit name ("Days30", case-insensitive).
func ParseDurationUnit(s string) (DurationUnit, error) {
	for i, n := range unitNames {
		if strings.EqualFold(n, s) {
			return DurationUnit(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDurationUnit, s)
}

func (u DurationUnit) MarshalText() ([]byte, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDurationUnit, int(u))
	}
	return []byte(u.String()), nil
}

func (u *DurationUnit) UnmarshalText(b []byte) error {
	parsed, err := ParseDurationUnit(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// =============================================================================
// UNIT REWARDS - One row of the duration unit table
// =============================================================================

type UnitRewards struct {
	Unit           DurationUnit
	SecondsPerUnit int64
	RewardRate     Rate // per unit, 1e18 = 100%
	Multiplier     Rate // compounding per extra unit, 1e18 = x1.0
}

func (r UnitRewards) validate() error {
	if !r.Unit.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidDurationUnit, int(r.Unit))
	}
	if r.SecondsPerUnit <= 0 {
		return fmt.Errorf("%w: %s has non-positive seconds per unit", ErrInvalidDurationUnit, r.Unit)
	}
	if r.RewardRate.IsNegative() || r.Multiplier.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidRate, r.Unit)
	}
	return nil
}

// =============================================================================
// UNIT TABLE - Enabled units with their rates
// =============================================================================

// UnitTable maps enabled duration units to seconds and reward rates.
// Reads are safe from any goroutine; writes go through the engine, which
// checks the operator first.
type UnitTable struct {
	mu   sync.RWMutex
	rows map[DurationUnit]UnitRewards
}

// NewUnitTable builds a table from rows. Multiplier defaults to 1.0 when unset.
func NewUnitTable(rows []UnitRewards) (*UnitTable, error) {
	t := &UnitTable{rows: make(map[DurationUnit]UnitRewards, len(rows))}
	for _, r := range rows {
		if r.Multiplier.Value.IsZero() {
			r.Multiplier = One()
		}
		if err := r.validate(); err != nil {
			return nil, err
		}
		t.rows[r.Unit] = r
	}
	return t, nil
}

func (t *UnitTable) lookup(u DurationUnit) (UnitRewards, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[u]
	if !ok {
		return UnitRewards{}, fmt.Errorf("%w: %s", ErrInvalidDurationUnit, u)
	}
	return r, nil
}

// SecondsFor returns the length of one unit.
func (t *UnitTable) SecondsFor(u DurationUnit) (int64, error) {
	r, err := t.lookup(u)
	if err != nil {
		return 0, err
	}
	return r.SecondsPerUnit, nil
}

// RewardRateFor returns the current reward rate for new schedules of unit u.
func (t *UnitTable) RewardRateFor(u DurationUnit) (Rate, error) {
	r, err := t.lookup(u)
	if err != nil {
		return Rate{}, err
	}
	return r.RewardRate, nil
}

// MultiplierFor returns the compounding multiplier for unit u.
func (t *UnitTable) MultiplierFor(u DurationUnit) (Rate, error) {
	r, err := t.lookup(u)
	if err != nil {
		return Rate{}, err
	}
	return r.Multiplier, nil
}

// Get returns the full row for unit u.
func (t *UnitTable) Get(u DurationUnit) (UnitRewards, error) {
	return t.lookup(u)
}

// Rows returns a copy of the table ordered by unit tag.
func (t *UnitTable) Rows() []UnitRewards {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := make([]UnitRewards, 0, len(t.rows))
	for _, r := range t.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Unit < rows[j].Unit })
	return rows
}

// preview validates updates and returns the table as it would look with all
// of them applied. The table itself is untouched.
func (t *UnitTable) preview(updates []UnitRewards) ([]UnitRewards, error) {
	t.mu.RLock()
	next := make(map[DurationUnit]UnitRewards, len(t.rows))
	for u, r := range t.rows {
		next[u] = r
	}
	t.mu.RUnlock()

	for _, up := range updates {
		r, ok := next[up.Unit]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDurationUnit, up.Unit)
		}
		if up.RewardRate.IsNegative() || up.Multiplier.IsNegative() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRate, up.Unit)
		}
		// Seconds per unit are fixed at deployment.
		r.RewardRate = up.RewardRate
		r.Multiplier = up.Multiplier
		if r.Multiplier.Value.IsZero() {
			r.Multiplier = One()
		}
		next[up.Unit] = r
	}

	rows := make([]UnitRewards, 0, len(next))
	for _, r := range next {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Unit < rows[j].Unit })
	return rows, nil
}

// load swaps in a complete, already validated set of rows.
func (t *UnitTable) load(rows []UnitRewards) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = make(map[DurationUnit]UnitRewards, len(rows))
	for _, r := range rows {
		t.rows[r.Unit] = r
	}
}
