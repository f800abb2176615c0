// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/danribes/pfm-solana-rust-sub010/cliparse"
)

var rootCmd = &cobra.Command{
	Use:   "pfm",
	Short: "Community voting API server",
	Long: `pfm serves the community voting API: wallet sign-in, communities,
membership review, voting questions and live ledger events.

Run without a subcommand to start the server. Every command accepts the
same configuration flags (see "pfm serve -h").`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// a missing .env is fine; env and flags still apply
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(args, func(cfg cliparse.Config) error {
			return runServe(cmd.Context(), cfg)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:                "serve [flags]",
	Short:              "Start the HTTP server, event hub and sweeper",
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(args, func(cfg cliparse.Config) error {
			return runServe(cmd.Context(), cfg)
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:                "migrate [flags]",
	Short:              "Create the database schema and exit",
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(args, func(cfg cliparse.Config) error {
			return runMigrate(cmd.Context(), cfg)
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:                "sweep [flags]",
	Short:              "Close expired questions and purge stale sessions once",
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(args, func(cfg cliparse.Config) error {
			return runSweep(cmd.Context(), cfg)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd)
}

// withConfig parses args, installs the logger and runs fn
func withConfig(args []string, fn func(cliparse.Config) error) error {
	cfg, err := cliparse.ParseFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg))
	return fn(cfg)
}

func newLogger(cfg cliparse.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
