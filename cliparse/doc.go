// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

Values are resolved in this order, highest first:

	CLI flag → environment variable → YAML file (-c / PFM_CONFIG) → Defaults()

# CLI Flags

	-c                YAML config file
	-p                Server port (default 3318)
	-d                Database URL
	-t                Database type (sqlite or postgres, inferred from the URL)
	-session-secret   Secret used to hash session tokens
	-session-ttl      Session lifetime (default 24h)
	-nonce-ttl        Wallet challenge lifetime (default 5m)
	-program-id       Program ID for address derivation
	-challenge-limit  Wallet challenges per minute (default 5)
	-redis            Redis URL (shared cache; memory cache otherwise)
	-kafka            Comma-separated Kafka brokers (event publishing)
	-kafka-topic      Kafka topic (default pfm-ledger-events)
	-sweep            Cron spec for the expired-question sweeper
	-log-format       text or json
	-log-level        debug, info, warn or error

# Environment Variables

	PORT, DATABASE_URL, DATABASE_TYPE, SESSION_SECRET, SESSION_TTL, NONCE_TTL,
	PROGRAM_ID, CHALLENGE_LIMIT, REDIS_URL, KAFKA_BROKERS, KAFKA_TOPIC,
	SWEEP_SCHEDULE, LOG_FORMAT, LOG_LEVEL

# Validation

ParseFlags returns an error if DATABASE_URL or SESSION_SECRET is missing, if
a numeric or duration value does not parse, or if the database type or log
format is unknown.
*/
package cliparse
