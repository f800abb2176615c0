// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
// The statements are portable between PostgreSQL and SQLite.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Tables lists every table in dependency order, children last
var Tables = []string{
	"app_user",
	"auth_session",
	"community",
	"member",
	"voting_question",
	"question_option",
	"vote",
	"ledger_event",
}

// Timestamps are unix seconds stored as BIGINT.
var schema = []string{
	// Users (one per wallet)
	`CREATE TABLE IF NOT EXISTS app_user (
    wallet_address TEXT PRIMARY KEY,
    username TEXT NOT NULL,
    email TEXT,
    bio TEXT,
    avatar_url TEXT,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    last_login_at BIGINT
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_app_user_username ON app_user(username)`,

	// Sessions (token stored as HMAC hash)
	`CREATE TABLE IF NOT EXISTS auth_session (
    token_hash TEXT PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    wallet_address TEXT NOT NULL REFERENCES app_user(wallet_address) ON DELETE CASCADE,
    created_at BIGINT NOT NULL,
    expires_at BIGINT NOT NULL,
    revoked_at BIGINT,
    ip_hash TEXT,
    user_agent TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_auth_session_wallet ON auth_session(wallet_address)`,

	// Communities
	`CREATE TABLE IF NOT EXISTS community (
    address TEXT PRIMARY KEY,
    admin TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL,
    member_count BIGINT NOT NULL,
    voting_period BIGINT NOT NULL CHECK (voting_period > 0),
    max_options SMALLINT NOT NULL CHECK (max_options BETWEEN 2 AND 4),
    created_at BIGINT NOT NULL,
    dissolved_at BIGINT
)`,
	`CREATE INDEX IF NOT EXISTS idx_community_admin ON community(admin)`,

	// Members (address is the member PDA)
	`CREATE TABLE IF NOT EXISTS member (
    address TEXT PRIMARY KEY,
    community TEXT NOT NULL REFERENCES community(address) ON DELETE CASCADE,
    wallet TEXT NOT NULL,
    role SMALLINT NOT NULL CHECK (role IN (0, 1)),
    status SMALLINT NOT NULL CHECK (status IN (0, 1, 2, 3)),
    joined_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    UNIQUE (community, wallet)
)`,
	`CREATE INDEX IF NOT EXISTS idx_member_wallet ON member(wallet)`,
	`CREATE INDEX IF NOT EXISTS idx_member_status ON member(community, status)`,

	// Voting questions (address is the question PDA)
	`CREATE TABLE IF NOT EXISTS voting_question (
    address TEXT PRIMARY KEY,
    community TEXT NOT NULL REFERENCES community(address) ON DELETE CASCADE,
    creator TEXT NOT NULL,
    question TEXT NOT NULL,
    deadline BIGINT NOT NULL,
    created_at BIGINT NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    closed_at BIGINT,
    closed_by TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_voting_question_community ON voting_question(community)`,
	`CREATE INDEX IF NOT EXISTS idx_voting_question_deadline ON voting_question(is_active, deadline)`,

	// Options, ordered by index
	`CREATE TABLE IF NOT EXISTS question_option (
    question TEXT NOT NULL REFERENCES voting_question(address) ON DELETE CASCADE,
    idx SMALLINT NOT NULL,
    label TEXT NOT NULL,
    PRIMARY KEY (question, idx)
)`,

	// Votes (address is the vote PDA, one per voter per question)
	`CREATE TABLE IF NOT EXISTS vote (
    address TEXT PRIMARY KEY,
    question TEXT NOT NULL REFERENCES voting_question(address) ON DELETE CASCADE,
    voter TEXT NOT NULL,
    selected_option SMALLINT NOT NULL,
    voted_at BIGINT NOT NULL,
    UNIQUE (question, voter)
)`,
	`CREATE INDEX IF NOT EXISTS idx_vote_question ON vote(question)`,

	// Ledger events (audit log)
	`CREATE TABLE IF NOT EXISTS ledger_event (
    id TEXT PRIMARY KEY,
    seq BIGINT NOT NULL,
    kind TEXT NOT NULL,
    community TEXT,
    question TEXT,
    actor TEXT,
    payload TEXT NOT NULL,
    created_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_event_community ON ledger_event(community, seq)`,
}
