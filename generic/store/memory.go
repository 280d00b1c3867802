// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/vesting-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps all vesting state in process. It implements generic.TxStore;
// token balances live in a separate ledger such as token.Memory.
type Memory struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	schedules     []generic.VestingSchedule
	index         map[generic.ScheduleID]int
	byBeneficiary map[generic.Address][]int
	beneficiaries []generic.Address
	releases      map[generic.ScheduleID][]generic.ReleaseEntry
	deposits      []generic.PoolDeposit
	operator      generic.Address
	units         []generic.UnitRewards
	events        []generic.Event
}

func newMemState() *memState {
	return &memState{
		index:         make(map[generic.ScheduleID]int),
		byBeneficiary: make(map[generic.Address][]int),
		releases:      make(map[generic.ScheduleID][]generic.ReleaseEntry),
	}
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

// =============================================================================
// STATE OPERATIONS - Callers hold the lock
// =============================================================================

func (s *memState) appendSchedule(v generic.VestingSchedule) error {
	if _, ok := s.index[v.ID]; ok {
		return fmt.Errorf("schedule %s already exists", v.ID)
	}
	v.Released = generic.ZeroAmount()
	v.Rewarded = generic.ZeroAmount()
	s.index[v.ID] = len(s.schedules)
	s.schedules = append(s.schedules, v)
	if _, ok := s.byBeneficiary[v.Beneficiary]; !ok {
		s.beneficiaries = append(s.beneficiaries, v.Beneficiary)
	}
	s.byBeneficiary[v.Beneficiary] = append(s.byBeneficiary[v.Beneficiary], s.index[v.ID])
	return nil
}

func (s *memState) appendReleases(entries []generic.ReleaseEntry) error {
	for _, e := range entries {
		if _, ok := s.index[e.ScheduleID]; !ok {
			return fmt.Errorf("%w: %s", generic.ErrScheduleNotFound, e.ScheduleID)
		}
	}
	for _, e := range entries {
		s.releases[e.ScheduleID] = append(s.releases[e.ScheduleID], e)
	}
	return nil
}

// withTotals fills Released/Rewarded from the schedule's entries.
func (s *memState) withTotals(v generic.VestingSchedule) generic.VestingSchedule {
	return generic.ApplyReleases([]generic.VestingSchedule{v}, s.releases[v.ID])[0]
}

func (s *memState) schedulesOf(beneficiary generic.Address) []generic.VestingSchedule {
	idx := s.byBeneficiary[beneficiary]
	out := make([]generic.VestingSchedule, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.withTotals(s.schedules[i]))
	}
	return out
}

func (s *memState) schedule(id generic.ScheduleID) (generic.VestingSchedule, error) {
	i, ok := s.index[id]
	if !ok {
		return generic.VestingSchedule{}, fmt.Errorf("%w: %s", generic.ErrScheduleNotFound, id)
	}
	return s.withTotals(s.schedules[i]), nil
}

func (s *memState) releasesOf(id generic.ScheduleID) []generic.ReleaseEntry {
	return append([]generic.ReleaseEntry{}, s.releases[id]...)
}

func (s *memState) permanentTotal() generic.Amount {
	total := generic.ZeroAmount()
	for _, d := range s.deposits {
		total = total.Add(d.Amount)
	}
	return total
}

func (s *memState) eventsMatching(filter generic.EventFilter) []generic.Event {
	var out []generic.Event
	for _, ev := range s.events {
		if !filter.Matches(ev) {
			continue
		}
		out = append(out, ev)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

// clone deep-copies everything a transaction may append to.
func (s *memState) clone() *memState {
	c := &memState{
		schedules:     append([]generic.VestingSchedule{}, s.schedules...),
		index:         make(map[generic.ScheduleID]int, len(s.index)),
		byBeneficiary: make(map[generic.Address][]int, len(s.byBeneficiary)),
		beneficiaries: append([]generic.Address{}, s.beneficiaries...),
		releases:      make(map[generic.ScheduleID][]generic.ReleaseEntry, len(s.releases)),
		deposits:      append([]generic.PoolDeposit{}, s.deposits...),
		operator:      s.operator,
		units:         append([]generic.UnitRewards(nil), s.units...),
		events:        append([]generic.Event{}, s.events...),
	}
	for k, v := range s.index {
		c.index[k] = v
	}
	for k, v := range s.byBeneficiary {
		c.byBeneficiary[k] = append([]int{}, v...)
	}
	for k, v := range s.releases {
		c.releases[k] = append([]generic.ReleaseEntry{}, v...)
	}
	return c
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

func (m *Memory) AppendSchedule(_ context.Context, v generic.VestingSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.appendSchedule(v)
}

func (m *Memory) AppendReleases(_ context.Context, entries []generic.ReleaseEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.appendReleases(entries)
}

func (m *Memory) Schedules(_ context.Context, beneficiary generic.Address) ([]generic.VestingSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.schedulesOf(beneficiary), nil
}

func (m *Memory) Schedule(_ context.Context, id generic.ScheduleID) (generic.VestingSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.schedule(id)
}

func (m *Memory) Releases(_ context.Context, id generic.ScheduleID) ([]generic.ReleaseEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.releasesOf(id), nil
}

func (m *Memory) Beneficiaries(_ context.Context) ([]generic.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]generic.Address{}, m.state.beneficiaries...), nil
}

func (m *Memory) AppendPoolDeposit(_ context.Context, d generic.PoolDeposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.deposits = append(m.state.deposits, d)
	return nil
}

func (m *Memory) PermanentTotal(_ context.Context) (generic.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.permanentTotal(), nil
}

func (m *Memory) Operator(_ context.Context) (generic.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.operator, nil
}

func (m *Memory) SetOperator(_ context.Context, operator generic.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.operator = operator
	return nil
}

func (m *Memory) UnitRewards(_ context.Context) ([]generic.UnitRewards, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]generic.UnitRewards(nil), m.state.units...), nil
}

func (m *Memory) SaveUnitRewards(_ context.Context, rows []generic.UnitRewards) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.units = append([]generic.UnitRewards(nil), rows...)
	return nil
}

func (m *Memory) AppendEvent(_ context.Context, ev generic.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.events = append(m.state.events, ev)
	return nil
}

func (m *Memory) Events(_ context.Context, filter generic.EventFilter) ([]generic.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.eventsMatching(filter), nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&txMemoryView{state: m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// txMemoryView runs against the live state while the parent lock is held.
type txMemoryView struct {
	state *memState
}

func (tv *txMemoryView) AppendSchedule(_ context.Context, v generic.VestingSchedule) error {
	return tv.state.appendSchedule(v)
}

func (tv *txMemoryView) AppendReleases(_ context.Context, entries []generic.ReleaseEntry) error {
	return tv.state.appendReleases(entries)
}

func (tv *txMemoryView) Schedules(_ context.Context, beneficiary generic.Address) ([]generic.VestingSchedule, error) {
	return tv.state.schedulesOf(beneficiary), nil
}

func (tv *txMemoryView) Schedule(_ context.Context, id generic.ScheduleID) (generic.VestingSchedule, error) {
	return tv.state.schedule(id)
}

func (tv *txMemoryView) Releases(_ context.Context, id generic.ScheduleID) ([]generic.ReleaseEntry, error) {
	return tv.state.releasesOf(id), nil
}

func (tv *txMemoryView) Beneficiaries(_ context.Context) ([]generic.Address, error) {
	return append([]generic.Address{}, tv.state.beneficiaries...), nil
}

func (tv *txMemoryView) AppendPoolDeposit(_ context.Context, d generic.PoolDeposit) error {
	tv.state.deposits = append(tv.state.deposits, d)
	return nil
}

func (tv *txMemoryView) PermanentTotal(_ context.Context) (generic.Amount, error) {
	return tv.state.permanentTotal(), nil
}

func (tv *txMemoryView) Operator(_ context.Context) (generic.Address, error) {
	return tv.state.operator, nil
}

func (tv *txMemoryView) SetOperator(_ context.Context, operator generic.Address) error {
	tv.state.operator = operator
	return nil
}

func (tv *txMemoryView) UnitRewards(_ context.Context) ([]generic.UnitRewards, error) {
	return append([]generic.UnitRewards(nil), tv.state.units...), nil
}

func (tv *txMemoryView) SaveUnitRewards(_ context.Context, rows []generic.UnitRewards) error {
	tv.state.units = append([]generic.UnitRewards(nil), rows...)
	return nil
}

func (tv *txMemoryView) AppendEvent(_ context.Context, ev generic.Event) error {
	tv.state.events = append(tv.state.events, ev)
	return nil
}

func (tv *txMemoryView) Events(_ context.Context, filter generic.EventFilter) ([]generic.Event, error) {
	return tv.state.eventsMatching(filter), nil
}

var (
	_ generic.TxStore = (*Memory)(nil)
	_ generic.Store   = (*txMemoryView)(nil)
)
