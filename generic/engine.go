/*
engine.go - Vesting engine: schedule creation, release, and reward pool

PURPOSE:
  The Engine is the only writer of vesting state. It validates input, pulls
  principal and pool deposits through the Token collaborator, computes what
  each schedule can pay, and releases principal plus reward in one atomic
  step.

KEY CONCEPTS:
  Engine account: The token account that holds all principal and the
                  reward pool. Both share one balance.
  Yield rate:     Captured on the schedule at creation by the RewardModel.
                  Later rate changes only affect new schedules.
  Release:        Batch over every schedule of a beneficiary. Zero
                  releasable is a silent no-op.

ATOMICITY:
  Every mutating call runs under the engine mutex and inside one
  TxStore.WithTx. A release whose transfer fails leaves no release entries
  behind. When the transaction view also implements Token (store/sqlite),
  token movements commit with the schedule state.

SOLVENCY:
  Release checks the raw engine account balance, not PermanentTotal.
  If balance < principal + reward, the whole call is rejected with
  *InsufficientRewardPoolError and nothing changes.

SEE ALSO:
  - vesting.go: Pure releasable math
  - reward.go: Yield rate models
  - units.go: Duration unit table
*/
package generic

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONFIG
// =============================================================================

type Config struct {
	// Account is the engine's own token account.
	Account Address

	// Deployer becomes the operator on first start.
	Deployer Address

	// Units enables duration units with their initial rates. Ignored once a
	// unit table has been persisted.
	Units []UnitRewards

	// Model fixes each new schedule's yield rate. Defaults to FixedReward.
	Model RewardModel

	Clock  Clock
	Logger Logger
}

// MaxDuration caps a schedule's number of units. Ten thousand Days units
// is over 27 years.
const MaxDuration int64 = 10_000

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	mu      sync.Mutex
	store   TxStore
	token   Token
	account Address
	units   *UnitTable
	model   RewardModel
	clock   Clock
	log     Logger
}

// NewEngine wires the engine to its store and token ledger. When tok is nil
// the store itself must implement Token.
//
// On first start it persists the deployer as operator and the configured
// unit table. On later starts the persisted values win.
func NewEngine(ctx context.Context, store TxStore, tok Token, cfg Config) (*Engine, error) {
	if cfg.Account == "" {
		return nil, fmt.Errorf("%w: engine account is required", ErrInvalidAddress)
	}
	if tok == nil {
		t, ok := store.(Token)
		if !ok {
			return nil, fmt.Errorf("no token ledger: store %T does not implement Token", store)
		}
		tok = t
	}

	units, err := NewUnitTable(cfg.Units)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:   store,
		token:   tok,
		account: cfg.Account,
		units:   units,
		model:   cfg.Model,
		clock:   cfg.Clock,
		log:     cfg.Logger,
	}
	if e.model == nil {
		e.model = FixedReward{}
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.log == nil {
		e.log = NopLogger{}
	}

	err = store.WithTx(ctx, func(st Store) error {
		op, err := st.Operator(ctx)
		if err != nil {
			return err
		}
		if op == "" {
			if cfg.Deployer == "" {
				return fmt.Errorf("%w: deployer is required", ErrInvalidOperator)
			}
			if err := st.SetOperator(ctx, cfg.Deployer); err != nil {
				return err
			}
		}

		persisted, err := st.UnitRewards(ctx)
		if err != nil {
			return err
		}
		if len(persisted) > 0 {
			e.units.load(persisted)
			return nil
		}
		return st.SaveUnitRewards(ctx, e.units.Rows())
	})
	if err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}

	e.log.Info("[Engine] started: account=%s model=%s units=%d", e.account, e.model.Name(), len(e.units.Rows()))
	return e, nil
}

// Account is the token account holding principal and the reward pool.
func (e *Engine) Account() Address { return e.account }

// Model is the reward model fixing new schedules' yield rates.
func (e *Engine) Model() RewardModel { return e.model }

// Token is the ledger the engine moves funds through.
func (e *Engine) Token() Token { return e.token }

// Now is the engine's current time.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// tokenIn prefers the transaction's own token view so balances commit with
// schedule state.
func (e *Engine) tokenIn(st Store) Token {
	if t, ok := st.(Token); ok {
		return t
	}
	return e.token
}

// secondsFor never fails: a unit dropped from the table after creation falls
// back to its canonical length.
func (e *Engine) secondsFor(u DurationUnit) int64 {
	if secs, err := e.units.SecondsFor(u); err == nil {
		return secs
	}
	return u.DefaultSeconds()
}

func newEvent(typ EventType, at time.Time, account Address, payload map[string]string) Event {
	return Event{ID: uuid.NewString(), Type: typ, At: at, Account: account, Payload: payload}
}

// =============================================================================
// SCHEDULE CREATION
// =============================================================================

// CreateVestingSchedule pulls amount from depositor (the engine account is
// the spender) and appends one new schedule for beneficiary.
func (e *Engine) CreateVestingSchedule(ctx context.Context, depositor, beneficiary Address, start time.Time, duration int64, unit DurationUnit, amount Amount) (VestingSchedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	start = start.UTC().Truncate(time.Second)
	if depositor == "" || beneficiary == "" {
		return VestingSchedule{}, fmt.Errorf("%w: depositor and beneficiary are required", ErrInvalidAddress)
	}
	if !start.After(now) {
		return VestingSchedule{}, fmt.Errorf("%w: start %s is not after %s", ErrInvalidStartTime, start.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	if duration < 1 || duration > MaxDuration {
		return VestingSchedule{}, fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidDuration, duration, MaxDuration)
	}
	if !amount.IsPositive() {
		return VestingSchedule{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	row, err := e.units.Get(unit)
	if err != nil {
		return VestingSchedule{}, err
	}

	s := VestingSchedule{
		ID:          ScheduleID(uuid.NewString()),
		Beneficiary: beneficiary,
		Depositor:   depositor,
		Start:       start,
		Duration:    duration,
		Unit:        unit,
		AmountTotal: amount,
		YieldRate:   e.model.YieldRate(row, duration),
		CreatedAt:   now,
		Released:    ZeroAmount(),
		Rewarded:    ZeroAmount(),
	}

	err = e.store.WithTx(ctx, func(st Store) error {
		if err := st.AppendSchedule(ctx, s); err != nil {
			return err
		}
		if err := e.tokenIn(st).TransferFrom(ctx, e.account, depositor, e.account, amount); err != nil {
			return err
		}
		return st.AppendEvent(ctx, newEvent(EventScheduleCreated, now, beneficiary, map[string]string{
			"schedule_id": string(s.ID),
			"depositor":   string(depositor),
			"start":       s.Start.Format(time.RFC3339),
			"duration":    strconv.FormatInt(duration, 10),
			"unit":        unit.String(),
			"amount":      amount.String(),
			"rate":        s.YieldRate.String(),
		}))
	})
	if err != nil {
		return VestingSchedule{}, err
	}

	e.log.Info("[Engine] schedule %s created: beneficiary=%s amount=%s duration=%d x %s rate=%s",
		s.ID, beneficiary, amount.EtherString(), duration, unit, s.YieldRate.FractionString())
	return s, nil
}

// =============================================================================
// RELEASE
// =============================================================================

// plan computes one release entry per schedule with something to pay.
func (e *Engine) plan(schedules []VestingSchedule, at time.Time) ([]ReleaseEntry, Releasable, error) {
	total := Releasable{Principal: ZeroAmount(), Reward: ZeroAmount()}
	var entries []ReleaseEntry
	for _, s := range schedules {
		r := ReleasableAt(s, at, e.secondsFor(s.Unit))
		if r.IsZero() {
			continue
		}
		if s.Released.Add(r.Principal).GreaterThan(s.AmountTotal) {
			return nil, Releasable{}, fmt.Errorf("%w: schedule %s would release %v of %v",
				ErrInvariantViolated, s.ID, s.Released.Add(r.Principal), s.AmountTotal)
		}
		entries = append(entries, ReleaseEntry{
			ScheduleID:  s.ID,
			Beneficiary: s.Beneficiary,
			Principal:   r.Principal,
			Reward:      r.Reward,
			At:          at,
		})
		total = total.Add(r)
	}
	return entries, total, nil
}

// Release pays out everything currently releasable for beneficiary and
// returns what was paid. Nothing releasable is not an error.
func (e *Engine) Release(ctx context.Context, beneficiary Address) (Releasable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if beneficiary == "" {
		return Releasable{}, fmt.Errorf("%w: beneficiary is required", ErrInvalidAddress)
	}

	now := e.clock.Now()
	paid := Releasable{Principal: ZeroAmount(), Reward: ZeroAmount()}

	err := e.store.WithTx(ctx, func(st Store) error {
		schedules, err := st.Schedules(ctx, beneficiary)
		if err != nil {
			return err
		}
		entries, total, err := e.plan(schedules, now)
		if err != nil {
			return err
		}
		if total.IsZero() {
			return nil
		}

		tok := e.tokenIn(st)
		available, err := tok.BalanceOf(ctx, e.account)
		if err != nil {
			return err
		}
		if available.LessThan(total.Total()) {
			return &InsufficientRewardPoolError{
				Beneficiary: beneficiary,
				Principal:   total.Principal,
				Reward:      total.Reward,
				Available:   available,
			}
		}

		releaseID := ReleaseID(uuid.NewString())
		for i := range entries {
			entries[i].ReleaseID = releaseID
		}
		if err := st.AppendReleases(ctx, entries); err != nil {
			return err
		}
		if err := tok.Transfer(ctx, e.account, beneficiary, total.Total()); err != nil {
			return err
		}
		if err := st.AppendEvent(ctx, newEvent(EventTokensReleased, now, beneficiary, map[string]string{
			"release_id": string(releaseID),
			"principal":  total.Principal.String(),
			"reward":     total.Reward.String(),
			"schedules":  strconv.Itoa(len(entries)),
		})); err != nil {
			return err
		}
		paid = total
		return nil
	})
	if err != nil {
		if IsRetryable(err) {
			e.log.Warn("[Engine] release for %s rejected: %v", beneficiary, err)
		}
		return Releasable{}, err
	}

	if !paid.IsZero() {
		e.log.Info("[Engine] released to %s: principal=%s reward=%s",
			beneficiary, paid.Principal.EtherString(), paid.Reward.EtherString())
	}
	return paid, nil
}

// =============================================================================
// READ VIEWS
// =============================================================================

// GetReleasableAmount sums what Release would pay right now.
func (e *Engine) GetReleasableAmount(ctx context.Context, beneficiary Address) (Releasable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	schedules, err := e.store.Schedules(ctx, beneficiary)
	if err != nil {
		return Releasable{}, err
	}
	_, total, err := e.plan(schedules, e.clock.Now())
	return total, err
}

// GetLockedAmount is principal not yet released across all schedules.
func (e *Engine) GetLockedAmount(ctx context.Context, beneficiary Address) (Amount, error) {
	sum, err := e.GetAmount(ctx, beneficiary)
	if err != nil {
		return Amount{}, err
	}
	return sum.Locked(), nil
}

// GetVestingSchedule lists a beneficiary's schedules in creation order.
func (e *Engine) GetVestingSchedule(ctx context.Context, beneficiary Address) ([]VestingSchedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Schedules(ctx, beneficiary)
}

// GetAmount totals deposited, released, and rewarded amounts.
func (e *Engine) GetAmount(ctx context.Context, beneficiary Address) (AmountSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	schedules, err := e.store.Schedules(ctx, beneficiary)
	if err != nil {
		return AmountSummary{}, err
	}
	return Summarize(schedules), nil
}

func (e *Engine) Schedule(ctx context.Context, id ScheduleID) (VestingSchedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Schedule(ctx, id)
}

func (e *Engine) Releases(ctx context.Context, id ScheduleID) ([]ReleaseEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.Schedule(ctx, id); err != nil {
		return nil, err
	}
	return e.store.Releases(ctx, id)
}

func (e *Engine) Beneficiaries(ctx context.Context) ([]Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Beneficiaries(ctx)
}

func (e *Engine) Events(ctx context.Context, filter EventFilter) ([]Event, error) {
	return e.store.Events(ctx, filter)
}

// Balance is the engine account's raw token balance: principal plus pool.
func (e *Engine) Balance(ctx context.Context) (Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token.BalanceOf(ctx, e.account)
}

// =============================================================================
// REWARD POOL
// =============================================================================

// DepositPermanently moves amount from `from` into the engine account for
// paying rewards. There is no withdrawal.
func (e *Engine) DepositPermanently(ctx context.Context, from Address, amount Amount) (PoolDeposit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if from == "" {
		return PoolDeposit{}, fmt.Errorf("%w: depositor is required", ErrInvalidAddress)
	}
	if !amount.IsPositive() {
		return PoolDeposit{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	d := PoolDeposit{ID: uuid.NewString(), From: from, Amount: amount, At: e.clock.Now()}
	err := e.store.WithTx(ctx, func(st Store) error {
		if err := st.AppendPoolDeposit(ctx, d); err != nil {
			return err
		}
		if err := e.tokenIn(st).TransferFrom(ctx, e.account, from, e.account, amount); err != nil {
			return err
		}
		return st.AppendEvent(ctx, newEvent(EventPermanentDeposited, d.At, from, map[string]string{
			"deposit_id": d.ID,
			"amount":     amount.String(),
		}))
	})
	if err != nil {
		return PoolDeposit{}, err
	}

	e.log.Info("[Engine] pool deposit from %s: %s", from, amount.EtherString())
	return d, nil
}

// PermanentTotal sums all pool deposits. Informational only.
func (e *Engine) PermanentTotal(ctx context.Context) (Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.PermanentTotal(ctx)
}

// =============================================================================
// OPERATOR
// =============================================================================

func (e *Engine) Operator(ctx context.Context) (Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Operator(ctx)
}

func requireOperator(ctx context.Context, st Store, caller Address, action string) (Address, error) {
	op, err := st.Operator(ctx)
	if err != nil {
		return "", err
	}
	if caller == "" || caller != op {
		return "", &UnauthorizedError{Caller: caller, Operator: op, Action: action}
	}
	return op, nil
}

// SetOperator hands the operator role to next. Only the current operator
// may call it.
func (e *Engine) SetOperator(ctx context.Context, caller, next Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.store.WithTx(ctx, func(st Store) error {
		prev, err := requireOperator(ctx, st, caller, "set operator")
		if err != nil {
			return err
		}
		if next == "" {
			return ErrInvalidOperator
		}
		if err := st.SetOperator(ctx, next); err != nil {
			return err
		}
		return st.AppendEvent(ctx, newEvent(EventOperatorChanged, e.clock.Now(), next, map[string]string{
			"previous": string(prev),
			"operator": string(next),
		}))
	})
	if err != nil {
		return err
	}

	e.log.Info("[Engine] operator changed to %s by %s", next, caller)
	return nil
}

// =============================================================================
// DURATION UNIT REWARDS
// =============================================================================

// SetDurationUnitRewards updates rate and multiplier of enabled units. All
// updates are validated before any is applied; seconds per unit are fixed.
func (e *Engine) SetDurationUnitRewards(ctx context.Context, caller Address, updates []UnitRewards) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rows []UnitRewards
	err := e.store.WithTx(ctx, func(st Store) error {
		if _, err := requireOperator(ctx, st, caller, "set duration unit rewards"); err != nil {
			return err
		}
		if len(updates) == 0 {
			return fmt.Errorf("%w: no units given", ErrInvalidDurationUnit)
		}
		next, err := e.units.preview(updates)
		if err != nil {
			return err
		}
		if err := st.SaveUnitRewards(ctx, next); err != nil {
			return err
		}
		at := e.clock.Now()
		for _, up := range updates {
			if err := st.AppendEvent(ctx, newEvent(EventUnitRewardsChanged, at, caller, map[string]string{
				"unit":       up.Unit.String(),
				"rate":       up.RewardRate.String(),
				"multiplier": up.Multiplier.String(),
			})); err != nil {
				return err
			}
		}
		rows = next
		return nil
	})
	if err != nil {
		return err
	}

	e.units.load(rows)
	e.log.Info("[Engine] duration unit rewards updated by %s: %d unit(s)", caller, len(updates))
	return nil
}

// SetRates updates a single unit.
func (e *Engine) SetRates(ctx context.Context, caller Address, unit DurationUnit, rate, multiplier Rate) error {
	return e.SetDurationUnitRewards(ctx, caller, []UnitRewards{{Unit: unit, RewardRate: rate, Multiplier: multiplier}})
}

// GetDurationUnitRewards returns the enabled units ordered by tag.
func (e *Engine) GetDurationUnitRewards() []UnitRewards {
	return e.units.Rows()
}
