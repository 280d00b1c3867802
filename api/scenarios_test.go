/*
scenarios_test.go - Unit tests for demo scenarios and the release sweeper

PURPOSE:
	Tests that each scenario sets up the expected state on a manual clock,
	and that the sweeper releases for every beneficiary and records its run.
*/
package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vesting-engine/generic"
)

func TestScenario_LinearVesting(t *testing.T) {
	// GIVEN: Linear vesting scenario
	// WHEN: Loading the scenario
	// THEN: One of four units has been released to alice
	ts := setupTestHandler(t, "reward-fixed")
	ctx := context.Background()

	require.NoError(t, ts.h.loadScenario(ctx, "linear-vesting"))

	eng := ts.h.Engine()
	assert.Equal(t, "none", eng.Model().Name(), "scenario restarts with its own preset")
	locked, err := eng.GetLockedAmount(ctx, scenarioAlice)
	require.NoError(t, err)
	assert.True(t, locked.Equal(generic.Ether(75)), "locked %v", locked)
	bal, _ := ts.h.Store.BalanceOf(ctx, scenarioAlice)
	assert.True(t, bal.Equal(generic.Ether(25)), "alice %v", bal)
	assert.Equal(t, "linear-vesting", ts.h.scenario())
}

func TestScenario_RewardFixed(t *testing.T) {
	ts := setupTestHandler(t, "plain")
	ctx := context.Background()

	require.NoError(t, ts.h.loadScenario(ctx, "reward-fixed"))

	bal, _ := ts.h.Store.BalanceOf(ctx, scenarioBob)
	assert.True(t, bal.Equal(generic.Ether(101)), "bob %v", bal)
	held, _ := ts.h.Engine().Balance(ctx)
	assert.True(t, held.IsZero(), "pool fully spent, got %v", held)
	total, _ := ts.h.Engine().PermanentTotal(ctx)
	assert.True(t, total.Equal(generic.Ether(1)))
}

func TestScenario_RewardUnderfunded(t *testing.T) {
	// GIVEN: Reward scenario with an empty pool
	// WHEN: Loading it (the final release is attempted and rejected)
	// THEN: Nothing was released and the engine still holds the principal
	ts := setupTestHandler(t, "plain")
	ctx := context.Background()

	require.NoError(t, ts.h.loadScenario(ctx, "reward-underfunded"))

	sum, err := ts.h.Engine().GetAmount(ctx, scenarioBob)
	require.NoError(t, err)
	assert.True(t, sum.ReleasedTotal.IsZero())
	held, _ := ts.h.Engine().Balance(ctx)
	assert.True(t, held.Equal(generic.Ether(100)))
	rel, _ := ts.h.Engine().GetReleasableAmount(ctx, scenarioBob)
	assert.True(t, rel.Reward.Equal(generic.Ether(1)))
}

func TestScenario_Consumption(t *testing.T) {
	ts := setupTestHandler(t, "plain")
	ctx := context.Background()

	require.NoError(t, ts.h.loadScenario(ctx, "consumption"))

	bal, _ := ts.h.Store.BalanceOf(ctx, scenarioCarol)
	assert.True(t, bal.Equal(generic.Ether(35)), "carol %v", bal)
	holder := scenarioCarol
	burns, err := ts.h.ledger().Burns(ctx, &holder, 0)
	require.NoError(t, err)
	assert.Len(t, burns, 2)
	supply, _ := ts.h.Store.TotalSupply(ctx)
	assert.True(t, supply.Equal(generic.Ether(1_000_000_000-15)))
}

func TestScenario_LoadReplacesPreviousState(t *testing.T) {
	ts := setupTestHandler(t, "plain")
	ctx := context.Background()
	require.NoError(t, ts.h.loadScenario(ctx, "consumption"))

	require.NoError(t, ts.h.loadScenario(ctx, "linear-vesting"))

	bal, _ := ts.h.Store.BalanceOf(ctx, scenarioCarol)
	assert.True(t, bal.IsZero(), "reset must clear carol, got %v", bal)
	supply, _ := ts.h.Store.TotalSupply(ctx)
	assert.True(t, supply.Equal(generic.Ether(1_000_000_000)), "genesis minted once, got %v", supply)
}

func TestScenario_HTTP(t *testing.T) {
	ts := setupTestHandler(t, "plain")

	rec := ts.do(t, http.MethodGet, "/api/scenarios", "", nil)
	assert.Len(t, decodeAs[[]ScenarioDTO](t, rec), len(scenarios))

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "reward-fixed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", "", nil)
	assert.Equal(t, "reward-fixed", decodeAs[ScenarioDTO](t, rec).ID)

	rec = ts.do(t, http.MethodPost, "/api/scenarios/reset", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/beneficiaries", "", nil)
	assert.Empty(t, decodeAs[[]string](t, rec))
}

// =============================================================================
// RELEASE SWEEPER
// =============================================================================

func TestReleaseScheduler_Sweep(t *testing.T) {
	// GIVEN: alice has a fully vested plain schedule, bob an underfunded reward one
	// WHEN: The sweeper runs once
	// THEN: alice is paid, bob's shortfall is counted, the run is recorded
	ts := setupTestHandler(t, "reward-fixed")
	ctx := context.Background()
	alice := ts.createSchedule(t, "alice", 1, "10")
	ts.createSchedule(t, "bob", 1, "10")
	ts.clock.Set(alice.Start.Add(generic.DaysDuration(30)))

	// 20 held, each release needs 10.1: the first succeeds, the second is short.
	run := NewReleaseScheduler(ts.h).Sweep(ctx)

	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 2, run.Beneficiaries)
	assert.Equal(t, 1, run.Released)
	assert.Equal(t, 1, run.Failed)
	assert.True(t, run.Principal.Equal(generic.Ether(10)))
	assert.True(t, run.Reward.Equal(generic.MustParseEther("0.1")))
	require.NotNil(t, run.CompletedAt)
	assert.True(t, run.StartedAt.Equal(ts.clock.Now()), "run stamped with engine time")
	assert.True(t, run.CompletedAt.Equal(ts.clock.Now()))

	rec := ts.do(t, http.MethodGet, "/api/release-runs", "", nil)
	runs := decodeAs[[]ReleaseRunDTO](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, "10", runs[0].Principal)
	assert.NotEmpty(t, runs[0].Error)
}

func TestReleaseScheduler_NonPositiveIntervalUsesDefault(t *testing.T) {
	// GIVEN: An enabled sweeper with a zero interval
	// WHEN: It runs until its context is cancelled
	// THEN: It sweeps once and returns instead of panicking
	ts := setupTestHandler(t, "plain")
	rs := NewReleaseScheduler(ts.h)
	rs.Enabled = true
	rs.CheckInterval = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rs.Run(ctx) }()

	require.Eventually(t, func() bool {
		runs, err := ts.h.Store.GetReleaseRuns(context.Background(), "completed", 0)
		return err == nil && len(runs) == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, ts.clock.Now().Add(time.Hour), rs.GetNextRunTime())
}

func TestReleaseScheduler_DisabledDoesNotStart(t *testing.T) {
	ts := setupTestHandler(t, "plain")
	rs := NewReleaseScheduler(ts.h)

	rs.Start()
	rs.Stop()

	runs, err := ts.h.Store.GetReleaseRuns(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
