// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "encoding/json"

// Member roles
const (
	RoleMember uint8 = 0
	RoleAdmin  uint8 = 1
)

// Member status constants
const (
	StatusPending  uint8 = 0
	StatusApproved uint8 = 1
	StatusRejected uint8 = 2
	StatusRemoved  uint8 = 3
)

// Question filters
const (
	QuestionsActive = "active"
	QuestionsClosed = "closed"
)

// StatusName returns the lowercase name of a member status
func StatusName(status uint8) string {
	switch status {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusRemoved:
		return "removed"
	}
	return "unknown"
}

// ParseStatus is the inverse of StatusName
func ParseStatus(name string) (uint8, bool) {
	for _, s := range []uint8{StatusPending, StatusApproved, StatusRejected, StatusRemoved} {
		if StatusName(s) == name {
			return s, true
		}
	}
	return 0, false
}

// Request types

type NonceRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type VerifyRequest struct {
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
	Nonce         string `json:"nonce"`
	Timestamp     int64  `json:"timestamp"`
}

type ConnectRequest struct {
	VerifyRequest
	UserData *UserProfileUpdate `json:"user_data,omitempty"`
}

type UserProfileUpdate struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

type CommunityConfig struct {
	VotingPeriod int64 `json:"voting_period"` // seconds
	MaxOptions   uint8 `json:"max_options"`
}

type CreateCommunityRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Config      CommunityConfig `json:"config"`
}

// Required fields below are pointers so a missing key is not read as zero.

type ApproveMemberRequest struct {
	Approve *bool `json:"approve"`
}

type ChangeRoleRequest struct {
	Role *uint8 `json:"role"`
}

type CreateQuestionRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Deadline int64    `json:"deadline,omitempty"` // unix seconds; 0 uses the community voting period
}

type CastVoteRequest struct {
	Option *uint8 `json:"option"`
}

// Response types

type NonceResponse struct {
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Message   string `json:"message"`
}

type VerifyResponse struct {
	Verified bool `json:"verified"`
}

type SessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	User      User   `json:"user"`
}

type WalletStatus struct {
	Connected   bool   `json:"connected"`
	LastLoginAt *int64 `json:"last_login_at,omitempty"`
	IsActive    bool   `json:"is_active"`
	HasProfile  bool   `json:"has_profile"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ListCommunitiesResponse struct {
	Communities []Community `json:"communities"`
	Total       int         `json:"total"`
	Limit       int         `json:"limit"`
	Offset      int         `json:"offset"`
}

// Domain types

type User struct {
	WalletAddress string  `json:"wallet_address"`
	Username      string  `json:"username"`
	Email         *string `json:"email,omitempty"`
	Bio           *string `json:"bio,omitempty"`
	AvatarURL     *string `json:"avatar_url,omitempty"`
	IsActive      bool    `json:"is_active"`
	CreatedAt     int64   `json:"created_at"`
	UpdatedAt     int64   `json:"updated_at"`
	LastLoginAt   *int64  `json:"last_login_at,omitempty"`
}

// PublicProfile is the part of a user visible to other wallets
type PublicProfile struct {
	WalletAddress string  `json:"wallet_address"`
	Username      string  `json:"username"`
	Bio           *string `json:"bio,omitempty"`
	AvatarURL     *string `json:"avatar_url,omitempty"`
	CreatedAt     int64   `json:"created_at"`
}

type Session struct {
	ID            string `json:"id"`
	WalletAddress string `json:"wallet_address"`
	CreatedAt     int64  `json:"created_at"`
	ExpiresAt     int64  `json:"expires_at"`
}

// ActiveSession is one live login as shown to its owner
type ActiveSession struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
	UserAgent string `json:"user_agent,omitempty"`
	IPHash    string `json:"ip_hash,omitempty"`
	IsCurrent bool   `json:"is_current"`
}

type ActiveSessionsResponse struct {
	Sessions         []ActiveSession `json:"sessions"`
	Total            int             `json:"total"`
	CurrentSessionID string          `json:"current_session_id"`
}

type TerminateSessionsResponse struct {
	TerminatedCount int64 `json:"terminated_count"`
}

type Community struct {
	Address     string          `json:"address"`
	Admin       string          `json:"admin"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	MemberCount int64           `json:"member_count"`
	Config      CommunityConfig `json:"config"`
	CreatedAt   int64           `json:"created_at"`
	DissolvedAt *int64          `json:"dissolved_at,omitempty"`
}

// Dissolved reports whether the community has been dissolved
func (c Community) Dissolved() bool {
	return c.DissolvedAt != nil
}

type Member struct {
	Address   string `json:"address"`
	Community string `json:"community"`
	Wallet    string `json:"wallet"`
	Role      uint8  `json:"role"`
	Status    uint8  `json:"status"`
	JoinedAt  int64  `json:"joined_at"`
	UpdatedAt int64  `json:"updated_at"`
}

type VotingQuestion struct {
	Address   string   `json:"address"`
	Community string   `json:"community"`
	Creator   string   `json:"creator"`
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	Deadline  int64    `json:"deadline"`
	CreatedAt int64    `json:"created_at"`
	IsActive  bool     `json:"is_active"`
	ClosedAt  *int64   `json:"closed_at,omitempty"`
	ClosedBy  *string  `json:"closed_by,omitempty"`
}

type Vote struct {
	Address        string `json:"address"`
	Question       string `json:"question"`
	Voter          string `json:"voter"`
	SelectedOption uint8  `json:"selected_option"`
	VotedAt        int64  `json:"voted_at"`
}

// Result types

type OptionTally struct {
	Index   int     `json:"index"`
	Label   string  `json:"label"`
	Votes   int     `json:"votes"`
	Percent float64 `json:"percent"`
}

type QuestionResults struct {
	Question   string        `json:"question"`
	IsActive   bool          `json:"is_active"`
	Deadline   int64         `json:"deadline"`
	TotalVotes int           `json:"total_votes"`
	Options    []OptionTally `json:"options"`
	Winners    []int         `json:"winners"` // option indexes; several on a tie, empty without votes
}

type CommunityStats struct {
	Community         string         `json:"community"`
	MembersByStatus   map[string]int `json:"members_by_status"`
	ActiveQuestions   int            `json:"active_questions"`
	ClosedQuestions   int            `json:"closed_questions"`
	TotalVotes        int            `json:"total_votes"`
	ParticipationRate float64        `json:"participation_rate"` // approved members' votes / (approved members × questions)
}

type Event struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Community string          `json:"community,omitempty"`
	Question  string          `json:"question,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"created_at"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}
