/*
main.go - Application entry point

PURPOSE:
  Command tree for the vesting engine server.

COMMANDS:
  serve               Start the HTTP API (and the release sweeper if enabled)
  units               Print the deployment's duration unit table
  schedules <address> Print an address's schedules from the database

CONFIGURATION:
  Read by viper from ./config.yaml (or --config), then VESTING_* environment
  variables, then flags. See config.go for keys and defaults.

EXAMPLES:
  # Run with file database and the fixed reward preset
  ./server serve --db=./data/vesting.db --preset=reward-fixed

  # In-memory database with a manual clock for demos
  VESTING_DB=":memory:" VESTING_CLOCK=manual ./server serve

  # Custom deployment
  ./server serve --deployment=./deploy/compounding.json

SEE ALSO:
  - api/server.go: Router configuration
  - factory/deployment.go: Deployment JSON
  - presets/presets.go: Built-in deployments
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	conf := newConfig()

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Token vesting engine with duration-unit rewards",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(conf, configFile, cmd.Flags())
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml)")
	cmd.PersistentFlags().String("db", defaultDBPath, "SQLite database path, \":memory:\" for in-memory")
	cmd.PersistentFlags().String("preset", defaultPreset, "built-in deployment preset")
	cmd.PersistentFlags().String("deployment", "", "deployment JSON file, overrides --preset")
	cmd.PersistentFlags().String("log-level", "info", "log level (error|warn|info|debug|trace)")

	cmd.AddCommand(newServeCommand(conf))
	cmd.AddCommand(newUnitsCommand(conf))
	cmd.AddCommand(newSchedulesCommand(conf))

	return cmd
}
