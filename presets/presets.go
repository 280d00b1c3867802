/*
Package presets provides ready-made vesting deployments.

These functions build JSON deployment definitions for factory.ParseDeployment.
They construct JSON directly so this package never imports factory.

AVAILABLE DEPLOYMENTS:
  PlainJSON:        Release vesting, no reward. Days through Days360.
  RewardFixedJSON:  1% per schedule on Days30 through Days1080.
  RewardTieredJSON: Fixed model, longer units pay more (2.7% to 7.1% APR).
  CompoundingJSON:  Per-unit rate compounded by a multiplier for each extra unit.

USAGE:
  import "github.com/warp/vesting-engine/presets"

  jsonStr, err := presets.ByName("reward-fixed", presets.Accounts{Deployer: "owner"})
  d, err := factory.NewDeploymentFactory().ParseDeployment(jsonStr)
*/
package presets

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Accounts names the parties of a deployment. Empty fields get defaults.
type Accounts struct {
	Engine      string
	Consumption string
	Deployer    string
}

func (a Accounts) withDefaults() Accounts {
	if a.Engine == "" {
		a.Engine = "vesting"
	}
	if a.Consumption == "" {
		a.Consumption = "consumption"
	}
	if a.Deployer == "" {
		a.Deployer = "owner"
	}
	return a
}

func unit(name, rate, multiplier string) map[string]interface{} {
	u := map[string]interface{}{"unit": name}
	if rate != "" {
		u["rate"] = rate
	}
	if multiplier != "" {
		u["multiplier"] = multiplier
	}
	return u
}

func deployment(name, model string, accounts Accounts, units []map[string]interface{}) string {
	accounts = accounts.withDefaults()
	dj := map[string]interface{}{
		"name":                name,
		"reward_model":        model,
		"engine_account":      accounts.Engine,
		"consumption_account": accounts.Consumption,
		"deployer":            accounts.Deployer,
		"units":               units,
		"allocations": []map[string]interface{}{
			{"holder": accounts.Deployer, "amount": "1000000000"},
		},
	}
	b, _ := json.MarshalIndent(dj, "", "  ")
	return string(b)
}

// =============================================================================
// DEPLOYMENTS
// =============================================================================

// PlainJSON returns a release-only deployment. Days is enabled for testing.
func PlainJSON(accounts Accounts) string {
	return deployment("plain", "none", accounts, []map[string]interface{}{
		unit("Days", "", ""),
		unit("Days30", "", ""),
		unit("Days90", "", ""),
		unit("Days180", "", ""),
		unit("Days360", "", ""),
	})
}

// RewardFixedJSON returns a 1% flat reward deployment.
func RewardFixedJSON(accounts Accounts) string {
	return deployment("reward-fixed", "fixed", accounts, []map[string]interface{}{
		unit("Days30", "0.01", ""),
		unit("Days90", "0.01", ""),
		unit("Days180", "0.01", ""),
		unit("Days360", "0.01", ""),
		unit("Days720", "0.01", ""),
		unit("Days1080", "0.01", ""),
	})
}

// RewardTieredJSON returns a fixed-model deployment whose rate grows with
// the unit length.
func RewardTieredJSON(accounts Accounts) string {
	return deployment("reward-tiered", "fixed", accounts, []map[string]interface{}{
		unit("Days30", "0.00225", ""),
		unit("Days90", "0.007875", ""),
		unit("Days180", "0.018", ""),
		unit("Days360", "0.048", ""),
		unit("Days720", "0.114", ""),
		unit("Days1080", "0.213", ""),
	})
}

// CompoundingJSON returns a compounding deployment: a 12 x Days30 schedule
// earns 0.00225 * 1.05^11.
func CompoundingJSON(accounts Accounts) string {
	return deployment("compounding", "compounding", accounts, []map[string]interface{}{
		unit("Days30", "0.00225", "1.05"),
		unit("Days90", "0.007875", "1.1"),
		unit("Days180", "0.018", "1.2"),
		unit("Days360", "0.048", "1.5"),
	})
}

var registry = map[string]func(Accounts) string{
	"plain":         PlainJSON,
	"reward-fixed":  RewardFixedJSON,
	"reward-tiered": RewardTieredJSON,
	"compounding":   CompoundingJSON,
}

// Names lists the available deployments, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ByName returns the named deployment JSON.
func ByName(name string, accounts Accounts) (string, error) {
	build, ok := registry[name]
	if !ok {
		return "", fmt.Errorf("unknown preset %q (available: %v)", name, Names())
	}
	return build(accounts), nil
}
