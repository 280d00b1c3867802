/*
handlers.go - HTTP API handlers for the vesting engine

PURPOSE:
  Exposes the vesting engine, reward pool, consumption ledger, and token
  ledger via REST API. Handles HTTP request/response and JSON serialization
  and delegates everything else to the engine.

ENDPOINTS:
  Schedules:
    GET    /api/beneficiaries                     Beneficiaries with schedules
    POST   /api/schedules                         Create schedule (caller funds it)
    GET    /api/schedules/{id}                    One schedule
    GET    /api/schedules/{id}/releases           Its release entries

  Accounts:
    GET    /api/accounts/{address}/schedules      Schedules of a beneficiary
    GET    /api/accounts/{address}/releasable     Releasable principal and reward
    GET    /api/accounts/{address}/locked         Principal still locked
    GET    /api/accounts/{address}/amount         Totals across schedules
    POST   /api/accounts/{address}/release        Release everything vested
    GET    /api/accounts/{address}/balance        Token balance
    GET    /api/accounts/{address}/burns          Consumption history

  Reward pool:
    GET    /api/pool                              Balance and permanent total
    POST   /api/pool/deposits                     Deposit permanently

  Admin (operator only for writes):
    GET    /api/admin/operator
    PUT    /api/admin/operator
    GET    /api/admin/duration-units
    PUT    /api/admin/duration-units

  Tokens and consumption:
    GET    /api/tokens/supply
    POST   /api/tokens/approve
    POST   /api/tokens/transfer
    POST   /api/tokens/mint                       Operator only
    POST   /api/consumption/burn

  Audit:
    GET    /api/events?account=&type=&limit=
    GET    /api/release-runs?status=&limit=

CALLER IDENTITY:
  The X-Account header names the caller. There is no authentication; the
  header stands in for a signed transaction sender.

ERROR HANDLING:
  Errors are returned as JSON with a status chosen by statusFor:
  - 400: Validation errors, invalid input
  - 403: Caller is not the operator
  - 404: Schedule not found
  - 409: Insufficient balance, allowance, or reward pool
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - scheduler.go: Auto-release sweeper
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/vesting-engine/consumption"
	"github.com/warp/vesting-engine/factory"
	"github.com/warp/vesting-engine/generic"
	"github.com/warp/vesting-engine/store/sqlite"
)

// CallerHeader carries the caller's address.
const CallerHeader = "X-Account"

const defaultConsumptionAccount generic.Address = "consumption"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Deployment *factory.Deployment
	Clock      generic.Clock
	Log        generic.Logger

	// Rebuilt when a scenario resets the database.
	mu     sync.RWMutex
	eng    *generic.Engine
	burner *consumption.Ledger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler starts an engine over store for deployment d. Genesis
// allocations are minted when the token ledger is empty.
func NewHandler(ctx context.Context, store *sqlite.Store, d *factory.Deployment, clock generic.Clock, log generic.Logger) (*Handler, error) {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if log == nil {
		log = generic.NopLogger{}
	}
	h := &Handler{Store: store, Deployment: d, Clock: clock, Log: log}
	if err := h.bootstrap(ctx, d); err != nil {
		return nil, err
	}
	return h, nil
}

// bootstrap (re)builds the engine and consumption ledger for d.
func (h *Handler) bootstrap(ctx context.Context, d *factory.Deployment) error {
	supply, err := h.Store.TotalSupply(ctx)
	if err != nil {
		return err
	}
	if supply.IsZero() {
		if err := d.Genesis(ctx, h.Store); err != nil {
			return err
		}
	}

	cfg := d.Config
	cfg.Clock = h.Clock
	cfg.Logger = h.Log
	eng, err := generic.NewEngine(ctx, h.Store, nil, cfg)
	if err != nil {
		return err
	}

	account := d.ConsumptionAccount
	if account == "" {
		account = defaultConsumptionAccount
	}
	burner, err := consumption.NewLedger(h.Store, nil, account, h.Clock, h.Log)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.Deployment = d
	h.eng = eng
	h.burner = burner
	h.mu.Unlock()
	return nil
}

// Engine returns the current engine.
func (h *Handler) Engine() *generic.Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.eng
}

func (h *Handler) ledger() *consumption.Ledger {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.burner
}

func caller(r *http.Request) generic.Address {
	return generic.Address(r.Header.Get(CallerHeader))
}

func address(r *http.Request) generic.Address {
	return generic.Address(chi.URLParam(r, "address"))
}

// custodial reports whether a is the engine or consumption account. Their
// tokens only move through Release and Burn.
func (h *Handler) custodial(a generic.Address) bool {
	return a == h.Engine().Account() || a == h.ledger().Account()
}

// rejectCustodial writes 403 when the caller is a custodial account.
func (h *Handler) rejectCustodial(w http.ResponseWriter, c generic.Address, action string) bool {
	if !h.custodial(c) {
		return false
	}
	writeError(w, http.StatusForbidden, "Custodial account cannot "+action+" directly",
		fmt.Errorf("%w: %s funds only leave through the engine", generic.ErrUnauthorized, c))
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func parseAmount(w http.ResponseWriter, s string) (generic.Amount, bool) {
	amount, err := generic.ParseEther(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return generic.Amount{}, false
	}
	return amount, true
}

// =============================================================================
// SCHEDULE ENDPOINTS
// =============================================================================

// ListBeneficiaries returns every address with at least one schedule.
func (h *Handler) ListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.Engine().Beneficiaries(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to list beneficiaries", err)
		return
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, string(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateSchedule creates a vesting schedule funded by the caller.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if !decode(w, r, &req) {
		return
	}
	unit, err := generic.ParseDurationUnit(req.Unit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid duration unit", err)
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}

	s, err := h.Engine().CreateVestingSchedule(r.Context(), caller(r), generic.Address(req.Beneficiary), req.Start, req.Duration, unit, amount)
	if err != nil {
		writeEngineError(w, "Failed to create schedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleDTO(s))
}

// GetSchedule returns one schedule by ID.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine().Schedule(r.Context(), generic.ScheduleID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(s))
}

// GetScheduleReleases returns a schedule's release entries.
func (h *Handler) GetScheduleReleases(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine().Releases(r.Context(), generic.ScheduleID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to get releases", err)
		return
	}
	writeJSON(w, http.StatusOK, toReleaseEntryDTOs(entries))
}

// =============================================================================
// ACCOUNT ENDPOINTS
// =============================================================================

// GetAccountSchedules returns a beneficiary's schedules in creation order.
func (h *Handler) GetAccountSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Engine().GetVestingSchedule(r.Context(), address(r))
	if err != nil {
		writeEngineError(w, "Failed to get schedules", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTOs(schedules))
}

// GetReleasable returns what a release would pay now.
func (h *Handler) GetReleasable(w http.ResponseWriter, r *http.Request) {
	rel, err := h.Engine().GetReleasableAmount(r.Context(), address(r))
	if err != nil {
		writeEngineError(w, "Failed to get releasable amount", err)
		return
	}
	writeJSON(w, http.StatusOK, toReleasableDTO(rel))
}

// GetLocked returns principal not yet released.
func (h *Handler) GetLocked(w http.ResponseWriter, r *http.Request) {
	locked, err := h.Engine().GetLockedAmount(r.Context(), address(r))
	if err != nil {
		writeEngineError(w, "Failed to get locked amount", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{Holder: string(address(r)), Balance: locked.EtherString()})
}

// GetAmount returns totals across a beneficiary's schedules.
func (h *Handler) GetAmount(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Engine().GetAmount(r.Context(), address(r))
	if err != nil {
		writeEngineError(w, "Failed to get amount", err)
		return
	}
	writeJSON(w, http.StatusOK, toAmountDTO(sum))
}

// Release pays out everything vested for the beneficiary. A zero release
// succeeds with zero amounts.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	paid, err := h.Engine().Release(r.Context(), address(r))
	if err != nil {
		var poolErr *generic.InsufficientRewardPoolError
		if errors.As(err, &poolErr) {
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Error:   "Reward pool cannot cover release",
				Code:    "insufficient_reward_pool",
				Details: map[string]string{"required": poolErr.Required().EtherString(), "available": poolErr.Available.EtherString(), "shortfall": poolErr.Shortfall().EtherString()},
			})
			return
		}
		writeEngineError(w, "Failed to release", err)
		return
	}
	writeJSON(w, http.StatusOK, toReleasableDTO(paid))
}

// GetTokenBalance returns an account's token balance.
func (h *Handler) GetTokenBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.Store.BalanceOf(r.Context(), address(r))
	if err != nil {
		writeEngineError(w, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{Holder: string(address(r)), Balance: bal.EtherString()})
}

// GetBurns returns an account's consumption history.
func (h *Handler) GetBurns(w http.ResponseWriter, r *http.Request) {
	holder := address(r)
	burns, err := h.ledger().Burns(r.Context(), &holder, queryInt(r, "limit"))
	if err != nil {
		writeEngineError(w, "Failed to list burns", err)
		return
	}
	dtos := make([]BurnDTO, 0, len(burns))
	for _, b := range burns {
		dtos = append(dtos, toBurnDTO(b))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REWARD POOL ENDPOINTS
// =============================================================================

// GetPool returns the engine account balance and the permanent total.
func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eng := h.Engine()
	bal, err := eng.Balance(ctx)
	if err != nil {
		writeEngineError(w, "Failed to get pool balance", err)
		return
	}
	total, err := eng.PermanentTotal(ctx)
	if err != nil {
		writeEngineError(w, "Failed to get permanent total", err)
		return
	}
	writeJSON(w, http.StatusOK, PoolDTO{
		Account:        string(eng.Account()),
		Balance:        bal.EtherString(),
		PermanentTotal: total.EtherString(),
	})
}

// DepositPermanently adds caller funds to the reward pool.
func (h *Handler) DepositPermanently(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	d, err := h.Engine().DepositPermanently(r.Context(), caller(r), amount)
	if err != nil {
		writeEngineError(w, "Failed to deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, DepositDTO{ID: d.ID, From: string(d.From), Amount: d.Amount.EtherString(), DepositedAt: d.At})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// GetOperator returns the current operator.
func (h *Handler) GetOperator(w http.ResponseWriter, r *http.Request) {
	op, err := h.Engine().Operator(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to get operator", err)
		return
	}
	writeJSON(w, http.StatusOK, OperatorDTO{Operator: string(op)})
}

// SetOperator hands the operator role over. Caller must be the operator.
func (h *Handler) SetOperator(w http.ResponseWriter, r *http.Request) {
	var req SetOperatorRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Engine().SetOperator(r.Context(), caller(r), generic.Address(req.Operator)); err != nil {
		writeEngineError(w, "Failed to set operator", err)
		return
	}
	writeJSON(w, http.StatusOK, OperatorDTO{Operator: req.Operator})
}

// GetDurationUnits returns the enabled units with their rates.
func (h *Handler) GetDurationUnits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUnitRewardsDTOs(h.Engine().GetDurationUnitRewards()))
}

// SetDurationUnits updates rates; all rows are applied or none are.
// An omitted multiplier means x1.0.
func (h *Handler) SetDurationUnits(w http.ResponseWriter, r *http.Request) {
	var req SetUnitRewardsRequest
	if !decode(w, r, &req) {
		return
	}

	updates := make([]generic.UnitRewards, 0, len(req.Units))
	for _, u := range req.Units {
		unit, err := generic.ParseDurationUnit(u.Unit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid duration unit", err)
			return
		}
		rate, err := generic.ParseRate(u.RewardRate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid reward rate", err)
			return
		}
		mult := generic.One()
		if u.Multiplier != "" {
			if mult, err = generic.ParseRate(u.Multiplier); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid multiplier", err)
				return
			}
		}
		updates = append(updates, generic.UnitRewards{Unit: unit, RewardRate: rate, Multiplier: mult})
	}

	eng := h.Engine()
	if err := eng.SetDurationUnitRewards(r.Context(), caller(r), updates); err != nil {
		writeEngineError(w, "Failed to set duration unit rewards", err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitRewardsDTOs(eng.GetDurationUnitRewards()))
}

// =============================================================================
// TOKEN AND CONSUMPTION ENDPOINTS
// =============================================================================

// GetSupply returns the token total supply.
func (h *Handler) GetSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := h.Store.TotalSupply(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to get supply", err)
		return
	}
	writeJSON(w, http.StatusOK, SupplyDTO{TotalSupply: supply.EtherString()})
}

// Approve sets the caller's allowance for a spender, typically the engine
// or consumption account.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	owner := caller(r)
	if owner == "" || req.Spender == "" {
		writeError(w, http.StatusBadRequest, "Owner and spender are required", generic.ErrInvalidAddress)
		return
	}
	if h.rejectCustodial(w, owner, "approve") {
		return
	}
	if err := h.Store.Approve(r.Context(), owner, generic.Address(req.Spender), amount); err != nil {
		writeEngineError(w, "Failed to approve", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": string(owner), "spender": req.Spender, "amount": amount.EtherString()})
}

// Transfer moves caller tokens to another account.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	from := caller(r)
	if from == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "Sender and recipient are required", generic.ErrInvalidAddress)
		return
	}
	if h.rejectCustodial(w, from, "transfer") {
		return
	}
	if err := h.Store.Transfer(r.Context(), from, generic.Address(req.To), amount); err != nil {
		writeEngineError(w, "Failed to transfer", err)
		return
	}
	bal, err := h.Store.BalanceOf(r.Context(), from)
	if err != nil {
		writeEngineError(w, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{Holder: string(from), Balance: bal.EtherString()})
}

// Mint credits new tokens. Only the operator may mint.
func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	ctx := r.Context()
	op, err := h.Engine().Operator(ctx)
	if err != nil {
		writeEngineError(w, "Failed to get operator", err)
		return
	}
	if c := caller(r); c == "" || c != op {
		writeEngineError(w, "Failed to mint", &generic.UnauthorizedError{Caller: c, Operator: op, Action: "mint"})
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "Recipient is required", generic.ErrInvalidAddress)
		return
	}
	if err := h.Store.Mint(ctx, generic.Address(req.To), amount); err != nil {
		writeEngineError(w, "Failed to mint", err)
		return
	}
	writeJSON(w, http.StatusCreated, BalanceDTO{Holder: req.To, Balance: amount.EtherString()})
}

// Burn consumes caller tokens through the consumption ledger.
func (h *Handler) Burn(w http.ResponseWriter, r *http.Request) {
	var req BurnRequest
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	b, err := h.ledger().Burn(r.Context(), caller(r), amount, req.Reference)
	if err != nil {
		writeEngineError(w, "Failed to burn", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBurnDTO(b))
}

// =============================================================================
// AUDIT ENDPOINTS
// =============================================================================

// ListEvents returns the event log, oldest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter := generic.EventFilter{Limit: queryInt(r, "limit")}
	if a := r.URL.Query().Get("account"); a != "" {
		acct := generic.Address(a)
		filter.Account = &acct
	}
	for _, t := range r.URL.Query()["type"] {
		filter.Types = append(filter.Types, generic.EventType(t))
	}

	events, err := h.Engine().Events(r.Context(), filter)
	if err != nil {
		writeEngineError(w, "Failed to list events", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// ListReleaseRuns returns auto-release sweep history, newest first.
func (h *Handler) ListReleaseRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.GetReleaseRuns(r.Context(), r.URL.Query().Get("status"), queryInt(r, "limit"))
	if err != nil {
		writeEngineError(w, "Failed to list release runs", err)
		return
	}
	dtos := make([]ReleaseRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toReleaseRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CLOCK ENDPOINTS
// =============================================================================

// GetClock returns engine time.
func (h *Handler) GetClock(w http.ResponseWriter, r *http.Request) {
	_, manual := h.Clock.(*generic.ManualClock)
	writeJSON(w, http.StatusOK, ClockDTO{Now: h.Clock.Now(), Manual: manual})
}

// AdvanceClock moves a manual clock forward. Rejected on the system clock.
func (h *Handler) AdvanceClock(w http.ResponseWriter, r *http.Request) {
	mc, ok := h.Clock.(*generic.ManualClock)
	if !ok {
		writeError(w, http.StatusBadRequest, "Clock is not manual", nil)
		return
	}
	var req AdvanceClockRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Days < 0 || req.Seconds < 0 {
		writeError(w, http.StatusBadRequest, "Clock only moves forward", nil)
		return
	}
	now := mc.Advance(generic.DaysDuration(req.Days) + time.Duration(req.Seconds)*time.Second)
	writeJSON(w, http.StatusOK, ClockDTO{Now: now, Manual: true})
}

// =============================================================================
// HELPERS
// =============================================================================

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// statusFor maps engine error categories to HTTP status codes.
func statusFor(err error) int {
	switch {
	case generic.IsValidation(err):
		return http.StatusBadRequest
	case generic.IsAuthorization(err):
		return http.StatusForbidden
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsInsufficientFunds(err), generic.IsRetryable(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// ResetDatabase clears all data and restarts the configured deployment.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	d := h.Deployment
	h.mu.RUnlock()
	if err := h.reset(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context, d *factory.Deployment) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	if err := h.bootstrap(ctx, d); err != nil {
		return fmt.Errorf("restart deployment %s: %w", d.Name, err)
	}
	return nil
}
