package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/vesting-engine/generic"
)

const (
	settingOperator    = "operator"
	settingTokenSupply = "token_supply"
)

// =============================================================================
// SCHEDULES AND RELEASES
// =============================================================================

func (v view) AppendSchedule(ctx context.Context, s generic.VestingSchedule) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO schedules
		(id, beneficiary, depositor, start_at, duration, unit, amount_total, yield_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(s.ID),
		string(s.Beneficiary),
		string(s.Depositor),
		s.Start.UTC().Format(time.RFC3339),
		s.Duration,
		s.Unit.String(),
		s.AmountTotal.String(),
		s.YieldRate.String(),
		s.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("schedule %s already exists", s.ID)
		}
		return fmt.Errorf("failed to append schedule: %w", err)
	}
	return nil
}

func (v view) AppendReleases(ctx context.Context, entries []generic.ReleaseEntry) error {
	for _, e := range entries {
		_, err := v.q.ExecContext(ctx, `
			INSERT INTO releases
			(release_id, schedule_id, beneficiary, principal, reward, released_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			string(e.ReleaseID),
			string(e.ScheduleID),
			string(e.Beneficiary),
			e.Principal.String(),
			e.Reward.String(),
			e.At.UTC().Format(time.RFC3339),
		)
		if err != nil {
			if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
				return fmt.Errorf("%w: %s", generic.ErrScheduleNotFound, e.ScheduleID)
			}
			return fmt.Errorf("failed to append release: %w", err)
		}
	}
	return nil
}

const scheduleColumns = `id, beneficiary, depositor, start_at, duration, unit, amount_total, yield_rate, created_at`

func scanSchedule(row interface{ Scan(dest ...any) error }) (generic.VestingSchedule, error) {
	var (
		s                        generic.VestingSchedule
		id, beneficiary, dep     string
		startAt, unit, createdAt string
		amount, rate             string
	)
	if err := row.Scan(&id, &beneficiary, &dep, &startAt, &s.Duration, &unit, &amount, &rate, &createdAt); err != nil {
		return s, err
	}

	var err error
	s.ID = generic.ScheduleID(id)
	s.Beneficiary = generic.Address(beneficiary)
	s.Depositor = generic.Address(dep)
	if s.Start, err = parseTime("start_at", startAt); err != nil {
		return s, err
	}
	if s.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return s, err
	}
	if s.Unit, err = generic.ParseDurationUnit(unit); err != nil {
		return s, err
	}
	if s.AmountTotal, err = generic.ParseAmount(amount); err != nil {
		return s, err
	}
	if s.YieldRate, err = generic.RateFromScaled(rate); err != nil {
		return s, err
	}
	return s, nil
}

func (v view) queryReleases(ctx context.Context, query string, args ...any) ([]generic.ReleaseEntry, error) {
	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query releases: %w", err)
	}
	defer rows.Close()

	var entries []generic.ReleaseEntry
	for rows.Next() {
		var (
			e                                  generic.ReleaseEntry
			releaseID, scheduleID, beneficiary string
			principal, reward, releasedAt      string
		)
		if err := rows.Scan(&releaseID, &scheduleID, &beneficiary, &principal, &reward, &releasedAt); err != nil {
			return nil, fmt.Errorf("failed to scan release: %w", err)
		}
		e.ReleaseID = generic.ReleaseID(releaseID)
		e.ScheduleID = generic.ScheduleID(scheduleID)
		e.Beneficiary = generic.Address(beneficiary)
		if e.Principal, err = generic.ParseAmount(principal); err != nil {
			return nil, err
		}
		if e.Reward, err = generic.ParseAmount(reward); err != nil {
			return nil, err
		}
		if e.At, err = parseTime("released_at", releasedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const releaseColumns = `release_id, schedule_id, beneficiary, principal, reward, released_at`

func (v view) Schedules(ctx context.Context, beneficiary generic.Address) ([]generic.VestingSchedule, error) {
	rows, err := v.q.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE beneficiary = ? ORDER BY seq ASC`,
		string(beneficiary))
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	var schedules []generic.VestingSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Single connection: the schedule cursor must be closed before the next query.
	rows.Close()

	entries, err := v.queryReleases(ctx,
		`SELECT `+releaseColumns+` FROM releases WHERE beneficiary = ? ORDER BY seq ASC`,
		string(beneficiary))
	if err != nil {
		return nil, err
	}
	return generic.ApplyReleases(schedules, entries), nil
}

func (v view) Schedule(ctx context.Context, id generic.ScheduleID) (generic.VestingSchedule, error) {
	row := v.q.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, string(id))
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.VestingSchedule{}, fmt.Errorf("%w: %s", generic.ErrScheduleNotFound, id)
	}
	if err != nil {
		return generic.VestingSchedule{}, fmt.Errorf("failed to load schedule: %w", err)
	}

	entries, err := v.Releases(ctx, id)
	if err != nil {
		return generic.VestingSchedule{}, err
	}
	return generic.ApplyReleases([]generic.VestingSchedule{s}, entries)[0], nil
}

func (v view) Releases(ctx context.Context, id generic.ScheduleID) ([]generic.ReleaseEntry, error) {
	return v.queryReleases(ctx,
		`SELECT `+releaseColumns+` FROM releases WHERE schedule_id = ? ORDER BY seq ASC`,
		string(id))
}

func (v view) Beneficiaries(ctx context.Context) ([]generic.Address, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT beneficiary FROM schedules
		GROUP BY beneficiary
		ORDER BY MIN(seq) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query beneficiaries: %w", err)
	}
	defer rows.Close()

	var out []generic.Address
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		out = append(out, generic.Address(b))
	}
	return out, rows.Err()
}

// =============================================================================
// REWARD POOL
// =============================================================================

func (v view) AppendPoolDeposit(ctx context.Context, d generic.PoolDeposit) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO pool_deposits (id, depositor, amount, deposited_at)
		VALUES (?, ?, ?, ?)
	`, d.ID, string(d.From), d.Amount.String(), d.At.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append pool deposit: %w", err)
	}
	return nil
}

// PermanentTotal sums in Go: amounts exceed SQLite's integer range.
func (v view) PermanentTotal(ctx context.Context) (generic.Amount, error) {
	rows, err := v.q.QueryContext(ctx, `SELECT amount FROM pool_deposits ORDER BY seq ASC`)
	if err != nil {
		return generic.Amount{}, fmt.Errorf("failed to query pool deposits: %w", err)
	}
	defer rows.Close()

	total := generic.ZeroAmount()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return generic.Amount{}, err
		}
		a, err := generic.ParseAmount(raw)
		if err != nil {
			return generic.Amount{}, err
		}
		total = total.Add(a)
	}
	return total, rows.Err()
}

// =============================================================================
// SETTINGS
// =============================================================================

func (v view) setting(ctx context.Context, key string) (string, error) {
	var value string
	err := v.q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (v view) saveSetting(ctx context.Context, key, value string) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (v view) Operator(ctx context.Context) (generic.Address, error) {
	op, err := v.setting(ctx, settingOperator)
	return generic.Address(op), err
}

func (v view) SetOperator(ctx context.Context, operator generic.Address) error {
	return v.saveSetting(ctx, settingOperator, string(operator))
}

func (v view) UnitRewards(ctx context.Context) ([]generic.UnitRewards, error) {
	rows, err := v.q.QueryContext(ctx, `SELECT unit, seconds_per_unit, reward_rate, multiplier FROM unit_rewards`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unit rewards: %w", err)
	}
	defer rows.Close()

	var out []generic.UnitRewards
	for rows.Next() {
		var (
			r                    generic.UnitRewards
			unit, rate, multiple string
		)
		if err := rows.Scan(&unit, &r.SecondsPerUnit, &rate, &multiple); err != nil {
			return nil, err
		}
		if r.Unit, err = generic.ParseDurationUnit(unit); err != nil {
			return nil, err
		}
		if r.RewardRate, err = generic.RateFromScaled(rate); err != nil {
			return nil, err
		}
		if r.Multiplier, err = generic.RateFromScaled(multiple); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (v view) SaveUnitRewards(ctx context.Context, rows []generic.UnitRewards) error {
	if _, err := v.q.ExecContext(ctx, `DELETE FROM unit_rewards`); err != nil {
		return err
	}
	for _, r := range rows {
		_, err := v.q.ExecContext(ctx, `
			INSERT INTO unit_rewards (unit, seconds_per_unit, reward_rate, multiplier)
			VALUES (?, ?, ?, ?)
		`, r.Unit.String(), r.SecondsPerUnit, r.RewardRate.String(), r.Multiplier.String())
		if err != nil {
			return fmt.Errorf("failed to save unit %s: %w", r.Unit, err)
		}
	}
	return nil
}

// =============================================================================
// EVENTS
// =============================================================================

func (v view) AppendEvent(ctx context.Context, ev generic.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	_, err = v.q.ExecContext(ctx, `
		INSERT INTO events (id, type, account, payload_json, at)
		VALUES (?, ?, ?, ?, ?)
	`, ev.ID, string(ev.Type), string(ev.Account), string(payload), ev.At.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Events returns the newest Limit matches, oldest first.
func (v view) Events(ctx context.Context, filter generic.EventFilter) ([]generic.Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.Account != nil {
		where = append(where, "account = ?")
		args = append(args, string(*filter.Account))
	}
	if len(filter.Types) > 0 {
		marks := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT id, type, account, payload_json, at FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []generic.Event
	for rows.Next() {
		var (
			ev                    generic.Event
			typ, account, payload string
			at                    string
		)
		if err := rows.Scan(&ev.ID, &typ, &account, &payload, &at); err != nil {
			return nil, err
		}
		ev.Type = generic.EventType(typ)
		ev.Account = generic.Address(account)
		if ev.At, err = parseTime("event at", at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// =============================================================================
// STORE (generic.Store interface) - Locked wrappers over the view
// =============================================================================

func (s *Store) AppendSchedule(ctx context.Context, sch generic.VestingSchedule) error {
	return s.inTx(ctx, func(v view) error { return v.AppendSchedule(ctx, sch) })
}

func (s *Store) AppendReleases(ctx context.Context, entries []generic.ReleaseEntry) error {
	return s.inTx(ctx, func(v view) error { return v.AppendReleases(ctx, entries) })
}

func (s *Store) Schedules(ctx context.Context, beneficiary generic.Address) ([]generic.VestingSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().Schedules(ctx, beneficiary)
}

func (s *Store) Schedule(ctx context.Context, id generic.ScheduleID) (generic.VestingSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().Schedule(ctx, id)
}

func (s *Store) Releases(ctx context.Context, id generic.ScheduleID) ([]generic.ReleaseEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().Releases(ctx, id)
}

func (s *Store) Beneficiaries(ctx context.Context) ([]generic.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().Beneficiaries(ctx)
}

func (s *Store) AppendPoolDeposit(ctx context.Context, d generic.PoolDeposit) error {
	return s.inTx(ctx, func(v view) error { return v.AppendPoolDeposit(ctx, d) })
}

func (s *Store) PermanentTotal(ctx context.Context) (generic.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().PermanentTotal(ctx)
}

func (s *Store) Operator(ctx context.Context) (generic.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().Operator(ctx)
}

func (s *Store) SetOperator(ctx context.Context, operator generic.Address) error {
	return s.inTx(ctx, func(v view) error { return v.SetOperator(ctx, operator) })
}

func (s *Store) UnitRewards(ctx context.Context) ([]generic.UnitRewards, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().UnitRewards(ctx)
}

func (s *Store) SaveUnitRewards(ctx context.Context, rows []generic.UnitRewards) error {
	return s.inTx(ctx, func(v view) error { return v.SaveUnitRewards(ctx, rows) })
}

func (s *Store) AppendEvent(ctx context.Context, ev generic.Event) error {
	return s.inTx(ctx, func(v view) error { return v.AppendEvent(ctx, ev) })
}

func (s *Store) Events(ctx context.Context, filter generic.EventFilter) ([]generic.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().Events(ctx, filter)
}
