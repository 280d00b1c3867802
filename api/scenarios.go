/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that reset the database, restart the engine
	with a preset deployment, and populate schedules, pool deposits, and
	burns that demonstrate specific behavior.

AVAILABLE SCENARIOS:

	linear-vesting:      100 tokens over 4 x Days30, no reward
	reward-fixed:        1% reward with the pool topped up to cover it
	reward-underfunded:  1% reward with an empty pool; the final release fails
	consumption:         Tokens approved to and burned by the consumption ledger

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Restart the engine with the scenario's preset (genesis mints to the deployer)
 3. The deployer funds schedules and the reward pool
 4. With a manual clock, time is moved forward and releases are run

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "reward-fixed"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - presets/presets.go: Deployment definitions
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/vesting-engine/factory"
	"github.com/warp/vesting-engine/generic"
	"github.com/warp/vesting-engine/presets"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "linear-vesting",
		Name:        "Linear Vesting",
		Description: "100 tokens over 4 x Days30, one quarter released per unit",
		Preset:      "plain",
	},
	{
		ID:          "reward-fixed",
		Name:        "Fixed Reward",
		Description: "1% reward on 100 tokens, pool topped up with the 1 token reward",
		Preset:      "reward-fixed",
	},
	{
		ID:          "reward-underfunded",
		Name:        "Underfunded Reward Pool",
		Description: "1% reward with no pool deposit: the last release cannot be paid",
		Preset:      "reward-fixed",
	},
	{
		ID:          "consumption",
		Name:        "Consumption",
		Description: "A holder approves the consumption ledger and burns tokens",
		Preset:      "plain",
	},
}

// Scenario parties.
const (
	scenarioAlice generic.Address = "alice"
	scenarioBob   generic.Address = "bob"
	scenarioCarol generic.Address = "carol"
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          current,
		Name:        current,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

var errUnknownScenario = errors.New("unknown scenario")

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var def *ScenarioDTO
	for i := range scenarios {
		if scenarios[i].ID == id {
			def = &scenarios[i]
		}
	}
	if def == nil {
		return fmt.Errorf("%w: %q", errUnknownScenario, id)
	}

	d, err := h.scenarioDeployment(def.Preset)
	if err != nil {
		return err
	}
	if err := h.reset(ctx, d); err != nil {
		return err
	}
	h.setScenario("")

	switch id {
	case "linear-vesting":
		err = h.loadLinearVestingScenario(ctx)
	case "reward-fixed":
		err = h.loadRewardFixedScenario(ctx)
	case "reward-underfunded":
		err = h.loadRewardUnderfundedScenario(ctx)
	case "consumption":
		err = h.loadConsumptionScenario(ctx)
	}
	if err != nil {
		return err
	}

	h.setScenario(id)
	h.Log.Info("[Scenario] loaded %s (preset %s)", id, def.Preset)
	return nil
}

// scenarioDeployment builds the preset with the running deployment's accounts.
func (h *Handler) scenarioDeployment(preset string) (*factory.Deployment, error) {
	h.mu.RLock()
	cur := h.Deployment
	h.mu.RUnlock()

	accounts := presets.Accounts{}
	if cur != nil {
		accounts.Engine = string(cur.Config.Account)
		accounts.Deployer = string(cur.Config.Deployer)
		accounts.Consumption = string(cur.ConsumptionAccount)
	}
	jsonStr, err := presets.ByName(preset, accounts)
	if err != nil {
		return nil, err
	}
	return factory.NewDeploymentFactory().ParseDeployment(jsonStr)
}

func (h *Handler) scenario() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentScenario
}

func (h *Handler) setScenario(id string) {
	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// vest funds a schedule from the deployer, starting one minute from now.
func (h *Handler) vest(ctx context.Context, beneficiary generic.Address, duration int64, unit generic.DurationUnit, amount generic.Amount) (generic.VestingSchedule, error) {
	eng := h.Engine()
	deployer := h.Deployment.Config.Deployer
	if err := h.Store.Approve(ctx, deployer, eng.Account(), amount); err != nil {
		return generic.VestingSchedule{}, err
	}
	return eng.CreateVestingSchedule(ctx, deployer, beneficiary, eng.Now().Add(time.Minute), duration, unit, amount)
}

// advanceTo moves a manual clock to at. It reports false on the system clock,
// in which case loaders skip their release steps.
func (h *Handler) advanceTo(at time.Time) bool {
	mc, ok := h.Clock.(*generic.ManualClock)
	if !ok {
		return false
	}
	mc.Set(at)
	return true
}

func (h *Handler) loadLinearVestingScenario(ctx context.Context) error {
	s, err := h.vest(ctx, scenarioAlice, 4, generic.Days30, generic.Ether(100))
	if err != nil {
		return err
	}

	// One unit in: 25 tokens released, 75 locked.
	if h.advanceTo(s.Start.Add(generic.DaysDuration(30))) {
		if _, err := h.Engine().Release(ctx, scenarioAlice); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadRewardFixedScenario(ctx context.Context) error {
	eng := h.Engine()
	deployer := h.Deployment.Config.Deployer

	s, err := h.vest(ctx, scenarioBob, 4, generic.Days30, generic.Ether(100))
	if err != nil {
		return err
	}
	if err := h.Store.Approve(ctx, deployer, eng.Account(), generic.Ether(1)); err != nil {
		return err
	}
	if _, err := eng.DepositPermanently(ctx, deployer, generic.Ether(1)); err != nil {
		return err
	}

	// Two releases: 25 + 0.25 after one unit, the rest at the end.
	if h.advanceTo(s.Start.Add(generic.DaysDuration(30))) {
		if _, err := eng.Release(ctx, scenarioBob); err != nil {
			return err
		}
		h.advanceTo(s.Start.Add(generic.DaysDuration(120)))
		if _, err := eng.Release(ctx, scenarioBob); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadRewardUnderfundedScenario(ctx context.Context) error {
	s, err := h.vest(ctx, scenarioBob, 4, generic.Days30, generic.Ether(100))
	if err != nil {
		return err
	}

	// The engine holds exactly the principal, so the full release at the end
	// is short by the 1 token reward and must leave state unchanged.
	if h.advanceTo(s.Start.Add(generic.DaysDuration(120))) {
		_, err := h.Engine().Release(ctx, scenarioBob)
		if !errors.Is(err, generic.ErrInsufficientRewardPool) {
			return fmt.Errorf("expected reward pool shortfall, got %v", err)
		}
	}
	return nil
}

func (h *Handler) loadConsumptionScenario(ctx context.Context) error {
	deployer := h.Deployment.Config.Deployer
	burner := h.ledger()

	if err := h.Store.Transfer(ctx, deployer, scenarioCarol, generic.Ether(50)); err != nil {
		return err
	}
	if err := h.Store.Approve(ctx, scenarioCarol, burner.Account(), generic.Ether(20)); err != nil {
		return err
	}
	if _, err := burner.Burn(ctx, scenarioCarol, generic.Ether(10), "scenario: api credits"); err != nil {
		return err
	}
	_, err := burner.Burn(ctx, scenarioCarol, generic.Ether(5), "scenario: storage")
	return err
}
