// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Command pfm runs the community voting API server.

Communities are administered by a wallet. Members apply, the admin reviews
them, and approved members ask questions and vote on them until a deadline.
Every state change is recorded in an append-only ledger and streamed to
subscribers.

# Commands

	pfm [flags]          same as pfm serve
	pfm serve [flags]    HTTP server, event hub and expired-question sweeper
	pfm migrate [flags]  create the schema and exit
	pfm sweep [flags]    run one sweep and exit

# Starting the Server

The server needs a database and a session secret:

	DATABASE_URL=postgres://... SESSION_SECRET=... go run .

Or with flags, using SQLite for local development:

	go run . serve -d pfm.db -session-secret dev-secret

A .env file in the working directory is loaded before flags are parsed.
See package cliparse for every setting.

# Optional Services

  - REDIS_URL: share nonces, cached results and wallet status between replicas
  - KAFKA_BROKERS: publish ledger events to Kafka as well as to websocket streams

# Graceful Shutdown

SIGINT or SIGTERM stops the listener, the event hub and the sweeper, then
waits up to ten seconds for in-flight requests.
*/
package main
