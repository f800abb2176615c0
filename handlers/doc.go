// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the PFM community voting API.

# Handler Types

Each handler is a struct holding the services it needs:

  - AuthHandler: Wallet challenge login, bearer sessions and their listing/revocation
  - UserHandler: Profiles and memberships
  - CommunityHandler: Community lifecycle, stats and audit log
  - MemberHandler: Join requests, approval, removal, roles
  - QuestionHandler: Voting questions, votes and results
  - StreamHandler: Websocket feed of a community's ledger events

Handlers are created via constructor functions:

	communityHandler := handlers.NewCommunityHandler(svc, m)

# Wallet Login

	POST /api/auth/wallet/nonce   → Nonce (challenge to sign)
	POST /api/auth/wallet/connect → Connect (returns bearer token)
	POST /api/auth/wallet/refresh → Refresh (rotates the token)

Mutating ledger operations require "Authorization: Bearer <token>"; the
session wallet is the signer of the operation.

# Errors

Ledger rule violations are answered with their code:

	{"error": "Conflict", "message": "Voting deadline has passed", "code": "DeadlinePassed"}

Invalid input maps to 400, authority failures to 403, missing accounts to
404 and state conflicts to 409.

# Caching

Question results are cached for a few seconds and dropped on every vote
and close. Wallet status is cached for five minutes and dropped on
connect, disconnect and profile updates.
*/
package handlers
