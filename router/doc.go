// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the PFM community voting API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(deps)

Every route is wrapped in request logging and Prometheus instrumentation
labelled with its pattern. Routes marked (session) also pass through
middleware.RequireSession; the wallet login endpoints are rate limited per
client IP.

# Endpoints

Operations:

	GET /health  - Liveness
	GET /metrics - Prometheus scrape
	GET /        - Version banner

Wallet auth:

	POST /api/auth/wallet/nonce           - Issue challenge
	POST /api/auth/wallet/verify          - Check a signed challenge
	POST /api/auth/wallet/connect         - Log in (creates user on first login)
	POST /api/auth/wallet/disconnect      - Log out (session)
	POST /api/auth/wallet/refresh         - Rotate token (session)
	GET  /api/auth/wallet/status/{wallet} - Connection status

Sessions:

	GET    /api/auth/sessions               - Own live sessions (session)
	DELETE /api/auth/sessions/{id}          - End one of them (session)
	POST   /api/auth/sessions/terminate-all - End all but the caller's (session)

Users:

	GET  /api/users/me             - Own profile (session)
	PUT  /api/users/me             - Update profile (session)
	GET  /api/users/me/memberships - Own memberships (session)
	GET  /api/users/{wallet}       - Public profile

Communities:

	POST /api/communities                    - Create (session)
	GET  /api/communities                    - List (?search=&limit=&offset=)
	GET  /api/communities/{address}          - Get
	PUT  /api/communities/{address}/config   - Update config (session)
	POST /api/communities/{address}/dissolve - Dissolve (session)
	GET  /api/communities/{address}/stats    - Analytics
	GET  /api/communities/{address}/events   - Audit log
	GET  /api/communities/{address}/stream   - Websocket event stream

Members:

	POST /api/communities/{address}/join                     - Request to join (session)
	GET  /api/communities/{address}/members                  - List (?status=)
	GET  /api/communities/{address}/members/{wallet}         - Get
	POST /api/communities/{address}/members/{wallet}/approve - Approve or reject (session)
	POST /api/communities/{address}/members/{wallet}/remove  - Remove (session)
	PUT  /api/communities/{address}/members/{wallet}/role    - Change role (session)

Questions:

	POST /api/communities/{address}/questions - Create (session)
	GET  /api/communities/{address}/questions - List (?status=active|closed)
	GET  /api/questions/{address}             - Get
	POST /api/questions/{address}/votes       - Cast vote (session)
	GET  /api/questions/{address}/votes/me    - Own vote (session)
	GET  /api/questions/{address}/results     - Tally
	POST /api/questions/{address}/close       - Close (session)
*/
package router
