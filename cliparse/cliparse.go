// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultProgramID is the voting program the ledger derives addresses for.
const DefaultProgramID = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkgMQoezjGvEJ"

type Config struct {
	Port          int           `yaml:"port"`
	DatabaseURL   string        `yaml:"database_url"`
	DatabaseType  string        `yaml:"database_type"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	NonceTTL      time.Duration `yaml:"nonce_ttl"`
	ProgramID     string        `yaml:"program_id"`

	// Challenges a single wallet may request per minute
	ChallengeLimit int `yaml:"challenge_limit"`

	RedisURL      string   `yaml:"redis_url"`
	KafkaBrokers  []string `yaml:"kafka_brokers"`
	KafkaTopic    string   `yaml:"kafka_topic"`
	SweepSchedule string   `yaml:"sweep_schedule"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`
}

// Defaults returns the configuration used when nothing else is set
func Defaults() Config {
	return Config{
		Port:           3318,
		SessionTTL:     24 * time.Hour,
		NonceTTL:       5 * time.Minute,
		ProgramID:      DefaultProgramID,
		ChallengeLimit: 5,
		KafkaTopic:     "pfm-ledger-events",
		SweepSchedule:  "@every 30s",
		LogFormat:      "text",
		LogLevel:       "info",
	}
}

// DriverName returns the database/sql driver registered for the configured database type
func (c Config) DriverName() string {
	if c.DatabaseType == "postgres" {
		return "postgres"
	}
	return "sqlite"
}

// ParseFlags builds the configuration. Precedence is flag > env > file > default.
func ParseFlags(args []string) (Config, error) {
	var flags Config
	var configPath, brokers string

	fs := flag.NewFlagSet("pfm", flag.ContinueOnError)

	fs.StringVar(&configPath, "c", "", "YAML config file")

	// Network config (can be CLI args or env)
	fs.IntVar(&flags.Port, "p", 0, "Server port")
	fs.StringVar(&flags.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&flags.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&flags.RedisURL, "redis", "", "Redis URL for the shared cache")
	fs.StringVar(&brokers, "kafka", "", "Comma-separated Kafka brokers")
	fs.StringVar(&flags.KafkaTopic, "kafka-topic", "", "Kafka topic for ledger events")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&flags.SessionSecret, "session-secret", "", "Session token secret (prefer env)")

	fs.DurationVar(&flags.SessionTTL, "session-ttl", 0, "Session lifetime")
	fs.DurationVar(&flags.NonceTTL, "nonce-ttl", 0, "Wallet challenge lifetime")
	fs.StringVar(&flags.ProgramID, "program-id", "", "Program ID used for address derivation")
	fs.IntVar(&flags.ChallengeLimit, "challenge-limit", 0, "Wallet challenges per minute")
	fs.StringVar(&flags.SweepSchedule, "sweep", "", "Cron spec for closing expired questions")
	fs.StringVar(&flags.LogFormat, "log-format", "", "Log format (text or json)")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if brokers != "" {
		flags.KafkaBrokers = splitList(brokers)
	}

	cfg := Defaults()

	if configPath == "" {
		configPath = os.Getenv("PFM_CONFIG")
	}
	if configPath != "" {
		if err := loadFile(configPath, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyFlags(&cfg, flags)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return errors.New("invalid PORT env variable")
		}
		cfg.Port = port
	}
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.DatabaseType, "DATABASE_TYPE")
	setString(&cfg.SessionSecret, "SESSION_SECRET")
	setString(&cfg.ProgramID, "PROGRAM_ID")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setString(&cfg.SweepSchedule, "SWEEP_SCHEDULE")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv("CHALLENGE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("invalid CHALLENGE_LIMIT env variable")
		}
		cfg.ChallengeLimit = n
	}
	if err := setDuration(&cfg.SessionTTL, "SESSION_TTL"); err != nil {
		return err
	}
	return setDuration(&cfg.NonceTTL, "NONCE_TTL")
}

func applyFlags(cfg *Config, flags Config) {
	if flags.Port != 0 {
		cfg.Port = flags.Port
	}
	override(&cfg.DatabaseURL, flags.DatabaseURL)
	override(&cfg.DatabaseType, flags.DatabaseType)
	override(&cfg.SessionSecret, flags.SessionSecret)
	override(&cfg.ProgramID, flags.ProgramID)
	override(&cfg.RedisURL, flags.RedisURL)
	override(&cfg.KafkaTopic, flags.KafkaTopic)
	override(&cfg.SweepSchedule, flags.SweepSchedule)
	override(&cfg.LogFormat, flags.LogFormat)
	override(&cfg.LogLevel, flags.LogLevel)
	if len(flags.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = flags.KafkaBrokers
	}
	if flags.SessionTTL != 0 {
		cfg.SessionTTL = flags.SessionTTL
	}
	if flags.NonceTTL != 0 {
		cfg.NonceTTL = flags.NonceTTL
	}
	if flags.ChallengeLimit != 0 {
		cfg.ChallengeLimit = flags.ChallengeLimit
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if c.DatabaseType == "" {
		if strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://") {
			c.DatabaseType = "postgres"
		} else {
			c.DatabaseType = "sqlite"
		}
	}
	if c.DatabaseType != "sqlite" && c.DatabaseType != "postgres" {
		return fmt.Errorf("unsupported database type %q", c.DatabaseType)
	}

	// Secrets - MUST be provided
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET required")
	}

	if c.SessionTTL <= 0 || c.NonceTTL <= 0 {
		return errors.New("session and nonce TTLs must be positive")
	}
	if c.ChallengeLimit <= 0 {
		return errors.New("challenge limit must be positive")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s env variable: %w", key, err)
	}
	*dst = d
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
