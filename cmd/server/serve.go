package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/warp/vesting-engine/api"
	"github.com/warp/vesting-engine/store/sqlite"
)

func newServeCommand(conf *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API on the configured port.

On SIGINT/SIGTERM the server stops accepting connections, waits up to 30s
for active requests, stops the release sweeper and closes the database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), conf)
		},
	}

	cmd.Flags().Int("port", 8080, "HTTP server port")
	cmd.Flags().String("clock", "system", "engine clock (system|manual)")
	cmd.Flags().Bool("sweeper", false, "release vested tokens for every beneficiary periodically")
	cmd.Flags().Duration("sweep-interval", time.Hour, "release sweeper interval")

	return cmd
}

func runServe(ctx context.Context, conf *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := newLogger(conf)

	store, err := sqlite.New(conf.GetString("db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	deployment, err := loadDeployment(conf)
	if err != nil {
		return err
	}
	clock, err := newClock(conf)
	if err != nil {
		return err
	}

	handler, err := api.NewHandler(ctx, store, deployment, clock, log)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	log.Info("Deployment %q: model %s, engine account %s", deployment.Name,
		handler.Engine().Model().Name(), handler.Engine().Account())

	interval, err := sweepInterval(conf)
	if err != nil {
		return err
	}
	sweeper := api.NewReleaseScheduler(handler)
	sweeper.Enabled = conf.GetBool("sweeper.enabled")
	sweeper.CheckInterval = interval

	port := conf.GetInt("port")
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      api.NewRouter(handler, conf.GetStringSlice("cors.origins")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	grp, ctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		log.Info("Server starting on http://localhost:%d", port)
		log.Info("API available at http://localhost:%d/api", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	grp.Go(func() error {
		return sweeper.Run(ctx)
	})

	grp.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := grp.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped")
	return nil
}
