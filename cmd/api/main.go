package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"care-call-scheduler/internal/audit"
	"care-call-scheduler/internal/auth"
	"care-call-scheduler/internal/calls"
	"care-call-scheduler/internal/config"
	"care-call-scheduler/pkg/logger"
	"care-call-scheduler/pkg/utils"
)

// app is filled by the root command before any subcommand runs.
type app struct {
	envFile string
	cfg     config.Config
	log     *slog.Logger
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "care-call-scheduler",
		Short:         "Schedules outbound care calls with reminders and retries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "env file to load before reading the environment")

	rootCmd.AddCommand(a.serveCmd())
	rootCmd.AddCommand(a.migrateCmd())
	rootCmd.AddCommand(a.tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func (a *app) load() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	a.cfg = cfg
	a.log = logger.New(cfg.App.Env)
	slog.SetDefault(a.log)
	return nil
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhooks and call scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Root context that cancels on shutdown
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, a.log)
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the scheduled_calls and audit_events tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			db, err := utils.OpenPostgres(ctx, a.cfg.PostgresDSN(), utils.PostgresPoolConfig{})
			if err != nil {
				return fmt.Errorf("postgres init failed: %w", err)
			}
			defer db.Close()

			if err := calls.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate calls: %w", err)
			}
			if _, err := db.ExecContext(ctx, audit.Schema); err != nil {
				return fmt.Errorf("migrate audit: %w", err)
			}
			a.log.Info("migrations applied")
			return nil
		},
	}
}

func (a *app) tokenCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an owner access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := auth.NewManager(a.cfg.Auth)
			if err != nil {
				return fmt.Errorf("auth init failed: %w", err)
			}
			tok, err := m.IssueAccess(time.Now(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
