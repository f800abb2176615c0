// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danribes/pfm-solana-rust-sub010/cliparse"
)

func testConfig(t *testing.T) cliparse.Config {
	cfg := cliparse.Defaults()
	cfg.DatabaseType = "sqlite"
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "pfm.db")
	cfg.SessionSecret = "test-session-secret"
	return cfg
}

func TestNewLogger(t *testing.T) {
	cfg := cliparse.Defaults()
	cfg.LogLevel = "warn"
	logger := newLogger(cfg)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	cfg.LogLevel = "nonsense"
	assert.True(t, newLogger(cfg).Enabled(context.Background(), slog.LevelInfo))
}

func TestRunMigrateAndSweep(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	require.NoError(t, runMigrate(ctx, cfg))
	_, err := os.Stat(cfg.DatabaseURL)
	require.NoError(t, err)

	// migrating twice is harmless
	require.NoError(t, runMigrate(ctx, cfg))
	require.NoError(t, runSweep(ctx, cfg))
}

func TestWithConfig_Help(t *testing.T) {
	called := false
	err := withConfig([]string{"-h"}, func(cliparse.Config) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, called)
}
