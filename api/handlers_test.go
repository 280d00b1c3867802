/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Schedule creation, release, and the reward pool shortfall response
- Operator-only admin endpoints
- Token and consumption endpoints
- Error to status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vesting-engine/factory"
	"github.com/warp/vesting-engine/generic"
	"github.com/warp/vesting-engine/presets"
	"github.com/warp/vesting-engine/store/sqlite"
)

var testGenesis = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

type testServer struct {
	h      *Handler
	router *chi.Mux
	clock  *generic.ManualClock
}

func setupTestHandler(t *testing.T, preset string) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	jsonStr, err := presets.ByName(preset, presets.Accounts{Deployer: "owner"})
	require.NoError(t, err)
	d, err := factory.NewDeploymentFactory().ParseDeployment(jsonStr)
	require.NoError(t, err)

	clock := generic.NewManualClock(testGenesis)
	h, err := NewHandler(context.Background(), store, d, clock, nil)
	require.NoError(t, err)
	return &testServer{h: h, router: NewRouter(h, nil), clock: clock}
}

func (ts *testServer) do(t *testing.T, method, path string, caller generic.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(CallerHeader, string(caller))
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// createSchedule approves the engine and vests amount for beneficiary,
// starting one minute from now.
func (ts *testServer) createSchedule(t *testing.T, beneficiary string, duration int64, amount string) ScheduleDTO {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/tokens/approve", "owner", ApproveRequest{Spender: "vesting", Amount: amount})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/schedules", "owner", CreateScheduleRequest{
		Beneficiary: beneficiary,
		Start:       ts.clock.Now().Add(time.Minute),
		Duration:    duration,
		Unit:        "Days30",
		Amount:      amount,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAs[ScheduleDTO](t, rec)
}

// =============================================================================
// SCHEDULES AND RELEASE
// =============================================================================

func TestCreateAndRelease_RewardPoolShortfall(t *testing.T) {
	// GIVEN: 100 tokens for bob over 4 x Days30 at 1%, no pool deposit
	// WHEN: Releasing after one unit, then at the end
	// THEN: The first release pays 25.25, the last is short by the 1 token reward
	ts := setupTestHandler(t, "reward-fixed")
	s := ts.createSchedule(t, "bob", 4, "100")
	assert.Equal(t, "0.01", s.YieldRate)
	assert.Equal(t, "100", s.Locked)

	ts.clock.Set(s.Start.Add(generic.DaysDuration(30)))
	rec := ts.do(t, http.MethodGet, "/api/accounts/bob/releasable", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rel := decodeAs[ReleasableDTO](t, rec)
	assert.Equal(t, "25", rel.Principal)
	assert.Equal(t, "0.25", rel.Reward)

	rec = ts.do(t, http.MethodPost, "/api/accounts/bob/release", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "25.25", decodeAs[ReleasableDTO](t, rec).Total)

	ts.clock.Set(s.Start.Add(generic.DaysDuration(120)))
	rec = ts.do(t, http.MethodPost, "/api/accounts/bob/release", "bob", nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	errResp := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "insufficient_reward_pool", errResp.Code)

	rec = ts.do(t, http.MethodGet, "/api/accounts/bob/amount", "", nil)
	amount := decodeAs[AmountDTO](t, rec)
	assert.Equal(t, "25", amount.ReleasedTotal, "failed release must change nothing")
	assert.Equal(t, "0.25", amount.RewardedTotal)

	// Top up the pool and retry.
	ts.do(t, http.MethodPost, "/api/tokens/approve", "owner", ApproveRequest{Spender: "vesting", Amount: "1"})
	rec = ts.do(t, http.MethodPost, "/api/pool/deposits", "owner", DepositRequest{Amount: "1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodPost, "/api/accounts/bob/release", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/accounts/bob/balance", "", nil)
	assert.Equal(t, "101", decodeAs[BalanceDTO](t, rec).Balance)
	rec = ts.do(t, http.MethodGet, "/api/pool", "", nil)
	pool := decodeAs[PoolDTO](t, rec)
	assert.Equal(t, "0", pool.Balance)
	assert.Equal(t, "1", pool.PermanentTotal)

	rec = ts.do(t, http.MethodGet, "/api/schedules/"+s.ID+"/releases", "", nil)
	assert.Len(t, decodeAs[[]ReleaseEntryDTO](t, rec), 2)
}

func TestRelease_NothingVestedIsZero(t *testing.T) {
	ts := setupTestHandler(t, "plain")
	ts.createSchedule(t, "alice", 4, "100")

	rec := ts.do(t, http.MethodPost, "/api/accounts/alice/release", "alice", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", decodeAs[ReleasableDTO](t, rec).Total)
	rec = ts.do(t, http.MethodGet, "/api/events?type=TokensReleased", "", nil)
	assert.Empty(t, decodeAs[[]EventDTO](t, rec))
}

func TestCreateSchedule_Validation(t *testing.T) {
	ts := setupTestHandler(t, "plain")
	ts.do(t, http.MethodPost, "/api/tokens/approve", "owner", ApproveRequest{Spender: "vesting", Amount: "100"})

	tests := []struct {
		name string
		req  CreateScheduleRequest
		want int
	}{
		{"start not in future", CreateScheduleRequest{Beneficiary: "bob", Start: testGenesis, Duration: 1, Unit: "Days30", Amount: "1"}, http.StatusBadRequest},
		{"zero duration", CreateScheduleRequest{Beneficiary: "bob", Start: testGenesis.Add(time.Hour), Duration: 0, Unit: "Days30", Amount: "1"}, http.StatusBadRequest},
		{"zero amount", CreateScheduleRequest{Beneficiary: "bob", Start: testGenesis.Add(time.Hour), Duration: 1, Unit: "Days30", Amount: "0"}, http.StatusBadRequest},
		{"unknown unit", CreateScheduleRequest{Beneficiary: "bob", Start: testGenesis.Add(time.Hour), Duration: 1, Unit: "Days7", Amount: "1"}, http.StatusBadRequest},
		{"disabled unit", CreateScheduleRequest{Beneficiary: "bob", Start: testGenesis.Add(time.Hour), Duration: 1, Unit: "Days1080", Amount: "1"}, http.StatusBadRequest},
		{"bad amount", CreateScheduleRequest{Beneficiary: "bob", Start: testGenesis.Add(time.Hour), Duration: 1, Unit: "Days30", Amount: "lots"}, http.StatusBadRequest},
		{"over allowance", CreateScheduleRequest{Beneficiary: "bob", Start: testGenesis.Add(time.Hour), Duration: 1, Unit: "Days30", Amount: "101"}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/schedules", "owner", tt.req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := ts.do(t, http.MethodGet, "/api/beneficiaries", "", nil)
	assert.Empty(t, decodeAs[[]string](t, rec), "no schedule may be stored")
}

func TestGetSchedule_NotFound(t *testing.T) {
	ts := setupTestHandler(t, "plain")

	rec := ts.do(t, http.MethodGet, "/api/schedules/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/schedules/missing/releases", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountViews(t *testing.T) {
	ts := setupTestHandler(t, "plain")
	s := ts.createSchedule(t, "alice", 4, "100")
	ts.createSchedule(t, "alice", 2, "10")
	ts.clock.Set(s.Start.Add(generic.DaysDuration(60)))
	ts.do(t, http.MethodPost, "/api/accounts/alice/release", "alice", nil)

	rec := ts.do(t, http.MethodGet, "/api/accounts/alice/schedules", "", nil)
	schedules := decodeAs[[]ScheduleDTO](t, rec)
	require.Len(t, schedules, 2)
	assert.Equal(t, "50", schedules[0].Released)
	assert.Equal(t, "10", schedules[1].Released)

	rec = ts.do(t, http.MethodGet, "/api/accounts/alice/locked", "", nil)
	assert.Equal(t, "50", decodeAs[BalanceDTO](t, rec).Balance)

	rec = ts.do(t, http.MethodGet, "/api/accounts/alice/amount", "", nil)
	amount := decodeAs[AmountDTO](t, rec)
	assert.Equal(t, "110", amount.AmountTotal)
	assert.Equal(t, "60", amount.ReleasedTotal)
	assert.Equal(t, "0", amount.RewardedTotal)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestDurationUnits_OperatorOnly(t *testing.T) {
	ts := setupTestHandler(t, "reward-fixed")
	req := SetUnitRewardsRequest{Units: []UnitRewardsDTO{{Unit: "Days90", RewardRate: "0.02", Multiplier: "1.1"}}}

	rec := ts.do(t, http.MethodPut, "/api/admin/duration-units", "mallory", req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/admin/duration-units", "owner", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/admin/duration-units", "", nil)
	rows := decodeAs[[]UnitRewardsDTO](t, rec)
	require.Len(t, rows, 6)
	assert.Equal(t, "Days90", rows[1].Unit)
	assert.Equal(t, "0.02", rows[1].RewardRate)
	assert.Equal(t, "1.1", rows[1].Multiplier)
	assert.Equal(t, "0.01", rows[0].RewardRate)

	bad := SetUnitRewardsRequest{Units: []UnitRewardsDTO{
		{Unit: "Days30", RewardRate: "0.05"},
		{Unit: "Days", RewardRate: "0.05"},
	}}
	rec = ts.do(t, http.MethodPut, "/api/admin/duration-units", "owner", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/admin/duration-units", "", nil)
	assert.Equal(t, "0.01", decodeAs[[]UnitRewardsDTO](t, rec)[0].RewardRate, "all or nothing")
}

func TestOperator_Handover(t *testing.T) {
	ts := setupTestHandler(t, "plain")

	rec := ts.do(t, http.MethodPut, "/api/admin/operator", "mallory", SetOperatorRequest{Operator: "mallory"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.do(t, http.MethodPut, "/api/admin/operator", "owner", SetOperatorRequest{Operator: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPut, "/api/admin/operator", "owner", SetOperatorRequest{Operator: "ops"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/operator", "", nil)
	assert.Equal(t, "ops", decodeAs[OperatorDTO](t, rec).Operator)
	rec = ts.do(t, http.MethodPost, "/api/tokens/mint", "owner", MintRequest{To: "owner", Amount: "1"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "old operator lost the role")
}

// =============================================================================
// TOKENS AND CONSUMPTION
// =============================================================================

func TestTokens_MintTransferSupply(t *testing.T) {
	ts := setupTestHandler(t, "plain")

	rec := ts.do(t, http.MethodGet, "/api/tokens/supply", "", nil)
	assert.Equal(t, "1000000000", decodeAs[SupplyDTO](t, rec).TotalSupply)

	rec = ts.do(t, http.MethodPost, "/api/tokens/mint", "mallory", MintRequest{To: "mallory", Amount: "5"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/tokens/mint", "owner", MintRequest{To: "carol", Amount: "5"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/tokens/transfer", "carol", TransferRequest{To: "dave", Amount: "6"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/tokens/transfer", "carol", TransferRequest{To: "dave", Amount: "2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", decodeAs[BalanceDTO](t, rec).Balance)

	rec = ts.do(t, http.MethodGet, "/api/tokens/supply", "", nil)
	assert.Equal(t, "1000000005", decodeAs[SupplyDTO](t, rec).TotalSupply)
}

func TestTokens_CustodialAccountsCannotMoveFunds(t *testing.T) {
	// GIVEN: The engine account holds 100 tokens of locked principal
	// WHEN: A request claims to be the engine or consumption account
	// THEN: Transfer and approve are refused and the engine balance is intact
	ts := setupTestHandler(t, "reward-fixed")
	ts.createSchedule(t, "bob", 4, "100")

	for _, c := range []generic.Address{"vesting", "consumption"} {
		rec := ts.do(t, http.MethodPost, "/api/tokens/transfer", c, TransferRequest{To: "mallory", Amount: "100"})
		assert.Equal(t, http.StatusForbidden, rec.Code, "transfer as %s", c)
		rec = ts.do(t, http.MethodPost, "/api/tokens/approve", c, ApproveRequest{Spender: "mallory", Amount: "100"})
		assert.Equal(t, http.StatusForbidden, rec.Code, "approve as %s", c)
	}

	rec := ts.do(t, http.MethodGet, "/api/pool", "", nil)
	assert.Equal(t, "100", decodeAs[PoolDTO](t, rec).Balance)
	rec = ts.do(t, http.MethodGet, "/api/accounts/mallory/balance", "", nil)
	assert.Equal(t, "0", decodeAs[BalanceDTO](t, rec).Balance)
}

func TestBurn_RequiresAllowance(t *testing.T) {
	ts := setupTestHandler(t, "plain")

	rec := ts.do(t, http.MethodPost, "/api/consumption/burn", "owner", BurnRequest{Amount: "10", Reference: "invoice-1"})
	require.Equal(t, http.StatusConflict, rec.Code)

	ts.do(t, http.MethodPost, "/api/tokens/approve", "owner", ApproveRequest{Spender: "consumption", Amount: "10"})
	rec = ts.do(t, http.MethodPost, "/api/consumption/burn", "owner", BurnRequest{Amount: "10", Reference: "invoice-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/accounts/owner/burns", "", nil)
	burns := decodeAs[[]BurnDTO](t, rec)
	require.Len(t, burns, 1)
	assert.Equal(t, "10", burns[0].Amount)
	assert.Equal(t, "invoice-1", burns[0].Reference)

	rec = ts.do(t, http.MethodGet, "/api/tokens/supply", "", nil)
	assert.Equal(t, "999999990", decodeAs[SupplyDTO](t, rec).TotalSupply)
}

// =============================================================================
// AUDIT AND CLOCK
// =============================================================================

func TestEvents_FilterByType(t *testing.T) {
	ts := setupTestHandler(t, "plain")
	ts.createSchedule(t, "alice", 1, "5")
	ts.createSchedule(t, "bob", 1, "5")

	rec := ts.do(t, http.MethodGet, "/api/events?type=VestingScheduleCreated", "", nil)
	assert.Len(t, decodeAs[[]EventDTO](t, rec), 2)

	rec = ts.do(t, http.MethodGet, "/api/events?type=VestingScheduleCreated&account=bob", "", nil)
	events := decodeAs[[]EventDTO](t, rec)
	require.Len(t, events, 1)
	assert.Equal(t, "5000000000000000000", events[0].Payload["amount"])

	rec = ts.do(t, http.MethodGet, "/api/events?limit=1", "", nil)
	assert.Len(t, decodeAs[[]EventDTO](t, rec), 1)
}

func TestClock_Advance(t *testing.T) {
	ts := setupTestHandler(t, "plain")

	rec := ts.do(t, http.MethodPost, "/api/clock/advance", "", AdvanceClockRequest{Days: 2, Seconds: 30})
	require.Equal(t, http.StatusOK, rec.Code)
	now := decodeAs[ClockDTO](t, rec).Now
	assert.True(t, testGenesis.Add(48*time.Hour+30*time.Second).Equal(now), "now %v", now)

	rec = ts.do(t, http.MethodPost, "/api/clock/advance", "", AdvanceClockRequest{Days: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{generic.ErrInvalidStartTime, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", generic.ErrInvalidDurationUnit), http.StatusBadRequest},
		{&generic.UnauthorizedError{Caller: "x", Operator: "y"}, http.StatusForbidden},
		{generic.ErrScheduleNotFound, http.StatusNotFound},
		{&generic.FundsError{Kind: generic.ErrInsufficientBalance}, http.StatusConflict},
		{generic.ErrAllowanceInsufficient, http.StatusConflict},
		{&generic.InsufficientRewardPoolError{}, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}
