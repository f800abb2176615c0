// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the database and creates the schema.

# Connecting

	conn, err := db.Open(ctx, cfg.DriverName(), cfg.DatabaseURL, db.DefaultRetry)

PostgreSQL uses lib/pq; SQLite uses modernc.org/sqlite with foreign keys on
and a single connection. Open pings with exponential backoff so the server
can start before the database is ready.

# Schema Creation

	if err := db.CreateSchema(ctx, conn); err != nil {
		return err
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
Statements use $n placeholders and run unchanged on both drivers.

# Tables

  - app_user: one profile per wallet
  - auth_session: hashed bearer tokens
  - community: name, admin, config, member count, dissolved_at
  - member: one record per (community, wallet) with role and status
  - voting_question: question text, deadline, active flag
  - question_option: ordered option labels
  - vote: one ballot per (question, voter)
  - ledger_event: append-only event log

# Relationships

	app_user 1──* auth_session
	community 1──* member
	community 1──* voting_question
	voting_question 1──* question_option
	voting_question 1──* vote

All foreign keys use ON DELETE CASCADE.

# Errors

IsUniqueViolation recognizes duplicate-key errors from either driver, which
the ledger maps to AlreadyVoted, AlreadyActive and QuestionExists.
*/
package db
