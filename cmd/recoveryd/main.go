package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/goRecover/capability"
	"github.com/MrEthical07/goRecover/internal/schedule"
	promexport "github.com/MrEthical07/goRecover/metrics/export/prometheus"
	"github.com/MrEthical07/goRecover/transport/httpapi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "recoveryd",
		Short:         "account signup, email verification and password recovery service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP server and the expiry sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(envFile)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(cmd.Context(), cfg, logger)
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "delete expired verification codes once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(envFile)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			rt, err := buildRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.engine.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired codes\n", n)
			return nil
		},
	}

	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "print a fresh hex-encoded capability key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := capability.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, sweepCmd, keygenCmd)
	return rootCmd
}

func setup(envFile string) (*config, *zap.Logger, error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, nil, err
	}
	devModeNotice(cfg)
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func serve(parent context.Context, cfg *config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	scheduler := schedule.NewCronScheduler(logger)
	if err := scheduler.AddJob(schedule.NewSweepJob(rt.engine, logger), cfg.SweepSchedule); err != nil {
		return fmt.Errorf("SWEEP_SCHEDULE: %w", err)
	}
	if err := scheduler.AddJob(schedule.NewPurgeJob(rt.provider, logger), cfg.SweepSchedule); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	metricsHandler, err := promexport.Handler(rt.engine)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(rt.engine, httpapi.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			TrustProxy:     cfg.TrustProxy,
			Logger:         logger,
			Metrics:        metricsHandler,
			Ready:          rt.ping,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.HTTPAddr), zap.Bool("dev_mode", cfg.DevMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
