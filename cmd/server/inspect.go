package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/vesting-engine/api"
	"github.com/warp/vesting-engine/generic"
	"github.com/warp/vesting-engine/store/sqlite"
)

func newUnitsCommand(conf *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "Print the duration unit table",
		Long: `Print the duration unit table in effect: the persisted table when the
database has one, otherwise the deployment's initial table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeFn, err := openHandler(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer closeFn()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "UNIT\tSECONDS\tRATE\tMULTIPLIER\n")
			for _, u := range h.Engine().GetDurationUnitRewards() {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", u.Unit, u.SecondsPerUnit,
					u.RewardRate.FractionString(), u.Multiplier.FractionString())
			}
			return w.Flush()
		},
	}
}

func newSchedulesCommand(conf *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "schedules <address>",
		Short: "Print an address's vesting schedules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, closeFn, err := openHandler(ctx, conf)
			if err != nil {
				return err
			}
			defer closeFn()

			eng := h.Engine()
			beneficiary := generic.Address(args[0])
			schedules, err := eng.GetVestingSchedule(ctx, beneficiary)
			if err != nil {
				return err
			}
			releasable, err := eng.GetReleasableAmount(ctx, beneficiary)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "ID\tSTART\tDURATION\tTOTAL\tRELEASED\tREWARDED\tYIELD\n")
			for _, s := range schedules {
				fmt.Fprintf(w, "%s\t%s\t%d x %s\t%s\t%s\t%s\t%s\n", s.ID, s.Start.Format(time.RFC3339),
					s.Duration, s.Unit, s.AmountTotal.EtherString(), s.Released.EtherString(),
					s.Rewarded.EtherString(), s.YieldRate.FractionString())
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nReleasable now: %s principal + %s reward\n",
				releasable.Principal.EtherString(), releasable.Reward.EtherString())
			return nil
		},
	}
}

// openHandler opens the configured database and engine for a one-shot command.
func openHandler(ctx context.Context, conf *viper.Viper) (*api.Handler, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := sqlite.New(conf.GetString("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	d, err := loadDeployment(conf)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	h, err := api.NewHandler(ctx, store, d, nil, newLogger(conf))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return h, func() { store.Close() }, nil
}
