/*
Package factory provides JSON to Go deployment conversion.

PURPOSE:
  Converts JSON deployment definitions into a generic.Config plus the genesis
  token allocations. A deployment fixes the reward model, the enabled duration
  units with their rates, the deployer (first operator), and the accounts the
  engine and consumption ledger hold funds in.

JSON SCHEMA:
  {
    "name": "reward-fixed",
    "reward_model": "fixed",
    "engine_account": "vesting",
    "consumption_account": "consumption",
    "deployer": "owner",
    "units": [
      {"unit": "Days30", "rate": "0.01"},
      {"unit": "Days90", "rate": "0.01", "multiplier": "1.0"},
      {"unit": "Days", "seconds": 60}
    ],
    "allocations": [
      {"holder": "owner", "amount": "1000000000"}
    ]
  }

  Rates and multipliers are decimal fractions ("0.01" = 1%). Allocation
  amounts are whole tokens ("100" = 100e18 base units). Omitted seconds use
  the unit's calendar length.

USAGE:
  f := NewDeploymentFactory()
  d, err := f.ParseDeployment(presets.RewardFixedJSON())
  engine, err := generic.NewEngine(ctx, store, tok, d.Config)
  err = d.Genesis(ctx, minter)

SEE ALSO:
  - presets/: Ready-made deployments
  - generic/units.go: Duration unit table
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/warp/vesting-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// DeploymentJSON is the JSON representation of a deployment.
type DeploymentJSON struct {
	Name               string           `json:"name"`
	RewardModel        string           `json:"reward_model"`
	EngineAccount      string           `json:"engine_account"`
	ConsumptionAccount string           `json:"consumption_account,omitempty"`
	Deployer           string           `json:"deployer"`
	Units              []UnitJSON       `json:"units"`
	Allocations        []AllocationJSON `json:"allocations,omitempty"`
}

// UnitJSON represents one row of the duration unit table.
type UnitJSON struct {
	Unit       string `json:"unit"`
	Seconds    int64  `json:"seconds,omitempty"`
	Rate       string `json:"rate,omitempty"`
	Multiplier string `json:"multiplier,omitempty"`
}

// AllocationJSON is a genesis token grant.
type AllocationJSON struct {
	Holder string `json:"holder"`
	Amount string `json:"amount"`
}

// =============================================================================
// DEPLOYMENT
// =============================================================================

// Allocation is a parsed genesis grant.
type Allocation struct {
	Holder generic.Address
	Amount generic.Amount
}

// Deployment is everything needed to start an engine.
type Deployment struct {
	Name               string
	Config             generic.Config
	ConsumptionAccount generic.Address
	Allocations        []Allocation
}

// Genesis mints the allocations. Call it once, on an empty token ledger.
func (d *Deployment) Genesis(ctx context.Context, m generic.Minter) error {
	for _, a := range d.Allocations {
		if err := m.Mint(ctx, a.Holder, a.Amount); err != nil {
			return fmt.Errorf("genesis allocation to %s: %w", a.Holder, err)
		}
	}
	return nil
}

// =============================================================================
// DEPLOYMENT FACTORY
// =============================================================================

// DeploymentFactory converts JSON deployments to Go structs.
type DeploymentFactory struct{}

// NewDeploymentFactory creates a new deployment factory.
func NewDeploymentFactory() *DeploymentFactory {
	return &DeploymentFactory{}
}

// ParseDeployment parses a JSON string into a Deployment.
func (f *DeploymentFactory) ParseDeployment(jsonStr string) (*Deployment, error) {
	var dj DeploymentJSON
	if err := json.Unmarshal([]byte(jsonStr), &dj); err != nil {
		return nil, fmt.Errorf("failed to parse deployment JSON: %w", err)
	}

	return f.FromJSON(dj)
}

// FromJSON converts DeploymentJSON to a Deployment.
func (f *DeploymentFactory) FromJSON(dj DeploymentJSON) (*Deployment, error) {
	model, err := generic.RewardModelByName(dj.RewardModel)
	if err != nil {
		return nil, err
	}
	if dj.EngineAccount == "" {
		return nil, fmt.Errorf("%w: engine_account is required", generic.ErrInvalidAddress)
	}
	if dj.Deployer == "" {
		return nil, fmt.Errorf("%w: deployer is required", generic.ErrInvalidOperator)
	}
	if len(dj.Units) == 0 {
		return nil, fmt.Errorf("%w: deployment enables no units", generic.ErrInvalidDurationUnit)
	}

	d := &Deployment{
		Name: dj.Name,
		Config: generic.Config{
			Account:  generic.Address(dj.EngineAccount),
			Deployer: generic.Address(dj.Deployer),
			Model:    model,
		},
		ConsumptionAccount: generic.Address(dj.ConsumptionAccount),
	}

	seen := make(map[generic.DurationUnit]bool, len(dj.Units))
	for _, uj := range dj.Units {
		row, err := parseUnit(uj)
		if err != nil {
			return nil, err
		}
		if seen[row.Unit] {
			return nil, fmt.Errorf("%w: %s listed twice", generic.ErrInvalidDurationUnit, row.Unit)
		}
		seen[row.Unit] = true
		d.Config.Units = append(d.Config.Units, row)
	}

	// Reject bad rows here rather than at engine start.
	if _, err := generic.NewUnitTable(d.Config.Units); err != nil {
		return nil, err
	}

	for _, aj := range dj.Allocations {
		if aj.Holder == "" {
			return nil, fmt.Errorf("%w: allocation without holder", generic.ErrInvalidAddress)
		}
		amount, err := generic.ParseEther(aj.Amount)
		if err != nil {
			return nil, fmt.Errorf("allocation to %s: %w", aj.Holder, err)
		}
		d.Allocations = append(d.Allocations, Allocation{Holder: generic.Address(aj.Holder), Amount: amount})
	}

	return d, nil
}

// ToJSON converts a Deployment back to DeploymentJSON.
func (f *DeploymentFactory) ToJSON(d *Deployment) DeploymentJSON {
	dj := DeploymentJSON{
		Name:               d.Name,
		EngineAccount:      string(d.Config.Account),
		ConsumptionAccount: string(d.ConsumptionAccount),
		Deployer:           string(d.Config.Deployer),
	}
	if d.Config.Model != nil {
		dj.RewardModel = d.Config.Model.Name()
	}

	for _, row := range d.Config.Units {
		uj := UnitJSON{
			Unit:    row.Unit.String(),
			Seconds: row.SecondsPerUnit,
			Rate:    row.RewardRate.FractionString(),
		}
		if !row.Multiplier.Value.IsZero() {
			uj.Multiplier = row.Multiplier.FractionString()
		}
		dj.Units = append(dj.Units, uj)
	}

	for _, a := range d.Allocations {
		dj.Allocations = append(dj.Allocations, AllocationJSON{Holder: string(a.Holder), Amount: a.Amount.EtherString()})
	}

	return dj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseUnit(uj UnitJSON) (generic.UnitRewards, error) {
	unit, err := generic.ParseDurationUnit(uj.Unit)
	if err != nil {
		return generic.UnitRewards{}, err
	}

	row := generic.UnitRewards{
		Unit:           unit,
		SecondsPerUnit: uj.Seconds,
		RewardRate:     generic.ZeroRate(),
		Multiplier:     generic.One(),
	}
	if row.SecondsPerUnit == 0 {
		row.SecondsPerUnit = unit.DefaultSeconds()
	}
	if uj.Rate != "" {
		if row.RewardRate, err = generic.ParseRate(uj.Rate); err != nil {
			return generic.UnitRewards{}, fmt.Errorf("%s rate: %w", unit, err)
		}
	}
	if uj.Multiplier != "" {
		if row.Multiplier, err = generic.ParseRate(uj.Multiplier); err != nil {
			return generic.UnitRewards{}, fmt.Errorf("%s multiplier: %w", unit, err)
		}
	}
	return row, nil
}
