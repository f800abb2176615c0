// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Retry controls how Open waits for the database to come up
type Retry struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetry waits up to roughly a minute before giving up
var DefaultRetry = Retry{Attempts: 6, Delay: time.Second, MaxDelay: 16 * time.Second}

// Open connects using the given driver ("postgres" or "sqlite") and pings with retry
func Open(ctx context.Context, driver, url string, retry Retry) (*sql.DB, error) {
	dsn := url
	if driver == "sqlite" {
		dsn = SQLiteDSN(url)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if driver == "sqlite" {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY under load
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(20)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := PingWithRetry(ctx, conn, retry); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// PingWithRetry pings until success, doubling the delay between attempts
func PingWithRetry(ctx context.Context, conn *sql.DB, retry Retry) error {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	delay := retry.Delay

	var err error
	for attempt := 1; attempt <= retry.Attempts; attempt++ {
		if err = conn.PingContext(ctx); err == nil {
			return nil
		}
		if attempt == retry.Attempts {
			break
		}

		slog.Warn("database ping failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if retry.MaxDelay > 0 && delay > retry.MaxDelay {
			delay = retry.MaxDelay
		}
	}
	return fmt.Errorf("database ping failed after %d attempts: %w", retry.Attempts, err)
}

// SQLiteDSN turns a path or file: URL into a DSN with foreign keys and a busy timeout
func SQLiteDSN(url string) string {
	if strings.Contains(url, "_pragma=") {
		return url
	}
	if !strings.HasPrefix(url, "file:") {
		url = "file:" + url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// IsUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY constraint
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
