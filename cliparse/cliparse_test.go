package cliparse

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable ParseFlags reads so the host environment can't leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DATABASE_URL", "DATABASE_TYPE", "SESSION_SECRET", "PROGRAM_ID",
		"REDIS_URL", "KAFKA_BROKERS", "KAFKA_TOPIC", "SWEEP_SCHEDULE", "LOG_FORMAT",
		"LOG_LEVEL", "CHALLENGE_LIMIT", "SESSION_TTL", "NONCE_TTL", "PFM_CONFIG",
	} {
		t.Setenv(key, "")
	}
}

func TestParseFlags_EnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("NONCE_TTL", "2m")

	cfg, err := ParseFlags([]string{})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseType, "type should be inferred from the URL")
	assert.Equal(t, "postgres", cfg.DriverName())
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Minute, cfg.NonceTTL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, DefaultProgramID, cfg.ProgramID)
}

func TestParseFlags_CLIOverridesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")

	cfg, err := ParseFlags([]string{"-p", "8080", "-d", "file:test.db", "-session-secret", "s1", "-challenge-limit", "3"})
	require.NoError(t, err)

	// CLI should override env
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, "sqlite", cfg.DriverName())
	assert.Equal(t, 3, cfg.ChallengeLimit)
}

func TestParseFlags_ConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "pfm.yaml")
	err := os.WriteFile(path, []byte(`
port: 4000
database_url: file:from-file.db
session_secret: file-secret
session_ttl: 1h
kafka_brokers: [k1:9092]
log_format: json
`), 0o600)
	require.NoError(t, err)

	t.Setenv("PORT", "5000")

	cfg, err := ParseFlags([]string{"-c", path})
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port, "env should override file")
	assert.Equal(t, "file:from-file.db", cfg.DatabaseURL)
	assert.Equal(t, "file-secret", cfg.SessionSecret)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{"k1:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "missing database url", env: map[string]string{"SESSION_SECRET": "s"}},
		{name: "missing session secret", env: map[string]string{"DATABASE_URL": "file:x.db"}},
		{name: "bad port", env: map[string]string{"PORT": "abc", "DATABASE_URL": "file:x.db", "SESSION_SECRET": "s"}},
		{name: "bad duration", env: map[string]string{"SESSION_TTL": "forever", "DATABASE_URL": "file:x.db", "SESSION_SECRET": "s"}},
		{name: "bad database type", args: []string{"-d", "file:x.db", "-session-secret", "s", "-t", "mysql"}},
		{name: "bad log format", args: []string{"-d", "file:x.db", "-session-secret", "s", "-log-format", "xml"}},
		{name: "missing config file", args: []string{"-c", "/nonexistent/pfm.yaml"}},
		{name: "unknown flag", args: []string{"-nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := ParseFlags(tt.args)
			assert.Error(t, err)
		})
	}
}
