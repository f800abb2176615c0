// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

  - NonceRequest, VerifyRequest, ConnectRequest: wallet sign-in
  - UserProfileUpdate: optional username, email, bio, avatar_url
  - CreateCommunityRequest, CommunityConfig: name, description, voting_period, max_options
  - ApproveMemberRequest, ChangeRoleRequest: admin review (approve and role required)
  - CreateQuestionRequest, CastVoteRequest: voting (option required)

# Response Types

  - NonceResponse, VerifyResponse, SessionResponse, WalletStatus
  - ActiveSessionsResponse, ActiveSession, TerminateSessionsResponse: session management
  - ListCommunitiesResponse: page of communities with total
  - QuestionResults, OptionTally: per-option counts, percentages and winners
  - CommunityStats: member and question counts
  - ErrorResponse: error, message, code

# Domain Types

  - User, PublicProfile, Session
  - Community, Member, VotingQuestion, Vote
  - Event: one ledger entry with a JSON payload

# Constants

Member roles:

	RoleMember = 0
	RoleAdmin  = 1

Member status:

	StatusPending  = 0
	StatusApproved = 1
	StatusRejected = 2
	StatusRemoved  = 3

StatusName and ParseStatus convert between the numeric and lowercase forms.
*/
package models
