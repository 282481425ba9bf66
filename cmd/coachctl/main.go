// Package main provides coachctl, the operator CLI for Better Me.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/betterme/internal/app"
	"github.com/ashureev/betterme/internal/config"
	"github.com/ashureev/betterme/internal/store"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "coachctl"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Operator tools for the Better Me backend",
		Long: `coachctl runs maintenance tasks against the same database and
state store the server uses. Configuration comes from the environment
(and .env when present), exactly like the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			level := slog.LevelInfo
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("invalid --log-level %q", logLevel)
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(checkinsCmd(), stateCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

func checkinsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkins",
		Short: "Inactivity check-in emails",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Send one batch of check-in emails",
		Long:  "Emails every user inactive for CHECKIN_AFTER_HOURS and outside EMAIL_COOLDOWN_HOURS. Suitable for an external cron.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCheckins(ctx, cmd.OutOrStdout())
		},
	})
	return cmd
}

func runCheckins(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	res, err := app.NewCheckins(repo, cfg, slog.Default(), nil).RunCheckins(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

func stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect conversation state",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <user_id>",
		Short: "Print a user's migrated conversation state as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showState(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the users with stored conversation state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listStates(cmd.Context(), cmd.OutOrStdout())
		},
	})
	return cmd
}

func listStates(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	states, err := app.OpenStateStore(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer states.Close()

	lister, ok := states.(store.Lister)
	if !ok {
		return fmt.Errorf("state backend %q cannot list users", cfg.State.Backend)
	}
	ids, err := lister.UserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list states: %w", err)
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

func showState(ctx context.Context, userID string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	states, err := app.OpenStateStore(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer states.Close()

	state, err := states.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	state.Migrate(cfg.Coach.HistoryLimit)
	return writeJSON(out, state)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
