/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the engine's
  types from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS AND RATES:
  Token amounts are decimal strings in whole tokens ("0.25"). Rates and
  multipliers are decimal fractions ("0.01" = 1%, "1.1" = x1.1). Both are
  exact to 18 decimals.

CALLER:
  Mutating endpoints act on behalf of the X-Account header.

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/vesting-engine/consumption"
	"github.com/warp/vesting-engine/generic"
	"github.com/warp/vesting-engine/store/sqlite"
)

// =============================================================================
// SCHEDULES
// =============================================================================

// ScheduleDTO represents one vesting schedule.
type ScheduleDTO struct {
	ID          string    `json:"id"`
	Beneficiary string    `json:"beneficiary"`
	Start       time.Time `json:"start"`
	Duration    int64     `json:"duration"`
	Unit        string    `json:"unit"`
	AmountTotal string    `json:"amount_total"`
	Released    string    `json:"released"`
	Rewarded    string    `json:"rewarded"`
	Locked      string    `json:"locked"`
	YieldRate   string    `json:"yield_rate"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateScheduleRequest creates a schedule funded by the caller.
type CreateScheduleRequest struct {
	Beneficiary string    `json:"beneficiary"`
	Start       time.Time `json:"start"`
	Duration    int64     `json:"duration"`
	Unit        string    `json:"unit"`
	Amount      string    `json:"amount"`
}

// ReleaseEntryDTO is one schedule's share of a release.
type ReleaseEntryDTO struct {
	ReleaseID  string    `json:"release_id"`
	ScheduleID string    `json:"schedule_id"`
	Principal  string    `json:"principal"`
	Reward     string    `json:"reward"`
	ReleasedAt time.Time `json:"released_at"`
}

// ReleasableDTO is a principal and reward pair.
type ReleasableDTO struct {
	Principal string `json:"principal"`
	Reward    string `json:"reward"`
	Total     string `json:"total"`
}

// AmountDTO aggregates a beneficiary's schedules.
type AmountDTO struct {
	AmountTotal   string `json:"amount_total"`
	ReleasedTotal string `json:"released_total"`
	RewardedTotal string `json:"rewarded_total"`
	Locked        string `json:"locked"`
}

// =============================================================================
// REWARD POOL
// =============================================================================

// PoolDTO reports the engine account.
type PoolDTO struct {
	Account        string `json:"account"`
	Balance        string `json:"balance"`
	PermanentTotal string `json:"permanent_total"`
}

// DepositRequest adds caller funds to the reward pool.
type DepositRequest struct {
	Amount string `json:"amount"`
}

// DepositDTO is a recorded pool deposit.
type DepositDTO struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	Amount      string    `json:"amount"`
	DepositedAt time.Time `json:"deposited_at"`
}

// =============================================================================
// ADMIN
// =============================================================================

// OperatorDTO names the current operator.
type OperatorDTO struct {
	Operator string `json:"operator"`
}

// SetOperatorRequest hands the operator role to another identity.
type SetOperatorRequest struct {
	Operator string `json:"operator"`
}

// UnitRewardsDTO is one row of the duration unit table.
type UnitRewardsDTO struct {
	Unit           string `json:"unit"`
	SecondsPerUnit int64  `json:"seconds_per_unit,omitempty"`
	RewardRate     string `json:"reward_rate"`
	Multiplier     string `json:"multiplier,omitempty"`
}

// SetUnitRewardsRequest updates rates for one or more units.
type SetUnitRewardsRequest struct {
	Units []UnitRewardsDTO `json:"units"`
}

// =============================================================================
// TOKENS AND CONSUMPTION
// =============================================================================

// BalanceDTO is a token balance.
type BalanceDTO struct {
	Holder  string `json:"holder"`
	Balance string `json:"balance"`
}

// SupplyDTO is the token total supply.
type SupplyDTO struct {
	TotalSupply string `json:"total_supply"`
}

// TransferRequest moves caller tokens.
type TransferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// ApproveRequest sets the caller's allowance for spender.
type ApproveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// MintRequest credits new tokens. Operator only.
type MintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// BurnRequest consumes caller tokens through the consumption ledger.
type BurnRequest struct {
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

// BurnDTO is a recorded consumption.
type BurnDTO struct {
	ID        string `json:"id"`
	Holder    string `json:"holder"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

// =============================================================================
// EVENTS, RUNS, CLOCK
// =============================================================================

// EventDTO is one notification from the event log.
type EventDTO struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	At      time.Time         `json:"at"`
	Account string            `json:"account"`
	Payload map[string]string `json:"payload,omitempty"`
}

// ReleaseRunDTO is one auto-release sweep.
type ReleaseRunDTO struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Beneficiaries int        `json:"beneficiaries"`
	Released      int        `json:"released"`
	Failed        int        `json:"failed"`
	Principal     string     `json:"principal"`
	Reward        string     `json:"reward"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ClockDTO reports engine time.
type ClockDTO struct {
	Now    time.Time `json:"now"`
	Manual bool      `json:"manual"`
}

// AdvanceClockRequest moves a manual clock forward.
type AdvanceClockRequest struct {
	Days    int   `json:"days,omitempty"`
	Seconds int64 `json:"seconds,omitempty"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Preset      string `json:"preset"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toScheduleDTO(s generic.VestingSchedule) ScheduleDTO {
	return ScheduleDTO{
		ID:          string(s.ID),
		Beneficiary: string(s.Beneficiary),
		Start:       s.Start,
		Duration:    s.Duration,
		Unit:        s.Unit.String(),
		AmountTotal: s.AmountTotal.EtherString(),
		Released:    s.Released.EtherString(),
		Rewarded:    s.Rewarded.EtherString(),
		Locked:      s.Locked().EtherString(),
		YieldRate:   s.YieldRate.FractionString(),
		CreatedAt:   s.CreatedAt,
	}
}

func toScheduleDTOs(schedules []generic.VestingSchedule) []ScheduleDTO {
	dtos := make([]ScheduleDTO, 0, len(schedules))
	for _, s := range schedules {
		dtos = append(dtos, toScheduleDTO(s))
	}
	return dtos
}

func toReleaseEntryDTOs(entries []generic.ReleaseEntry) []ReleaseEntryDTO {
	dtos := make([]ReleaseEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, ReleaseEntryDTO{
			ReleaseID:  string(e.ReleaseID),
			ScheduleID: string(e.ScheduleID),
			Principal:  e.Principal.EtherString(),
			Reward:     e.Reward.EtherString(),
			ReleasedAt: e.At,
		})
	}
	return dtos
}

func toReleasableDTO(r generic.Releasable) ReleasableDTO {
	return ReleasableDTO{
		Principal: r.Principal.EtherString(),
		Reward:    r.Reward.EtherString(),
		Total:     r.Total().EtherString(),
	}
}

func toAmountDTO(s generic.AmountSummary) AmountDTO {
	return AmountDTO{
		AmountTotal:   s.AmountTotal.EtherString(),
		ReleasedTotal: s.ReleasedTotal.EtherString(),
		RewardedTotal: s.RewardedTotal.EtherString(),
		Locked:        s.Locked().EtherString(),
	}
}

func toUnitRewardsDTOs(rows []generic.UnitRewards) []UnitRewardsDTO {
	dtos := make([]UnitRewardsDTO, 0, len(rows))
	for _, r := range rows {
		dtos = append(dtos, UnitRewardsDTO{
			Unit:           r.Unit.String(),
			SecondsPerUnit: r.SecondsPerUnit,
			RewardRate:     r.RewardRate.FractionString(),
			Multiplier:     r.Multiplier.FractionString(),
		})
	}
	return dtos
}

func toEventDTOs(events []generic.Event) []EventDTO {
	dtos := make([]EventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, EventDTO{
			ID:      ev.ID,
			Type:    string(ev.Type),
			At:      ev.At,
			Account: string(ev.Account),
			Payload: ev.Payload,
		})
	}
	return dtos
}

func toBurnDTO(b consumption.Burn) BurnDTO {
	return BurnDTO{
		ID:        b.ID,
		Holder:    string(b.Holder),
		Amount:    b.Amount.EtherString(),
		Reference: b.Reference,
	}
}

func toReleaseRunDTO(r sqlite.ReleaseRun) ReleaseRunDTO {
	return ReleaseRunDTO{
		ID:            r.ID,
		Status:        r.Status,
		Beneficiaries: r.Beneficiaries,
		Released:      r.Released,
		Failed:        r.Failed,
		Principal:     r.Principal.EtherString(),
		Reward:        r.Reward.EtherString(),
		Error:         r.Error,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
	}
}
