// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import "github.com/danribes/pfm-solana-rust-sub010/models"

// Event kinds
const (
	EventCommunityCreated       = "CommunityCreated"
	EventMemberJoined           = "MemberJoined"
	EventMemberApproved         = "MemberApproved"
	EventMemberRemoved          = "MemberRemoved"
	EventCommunityDissolved     = "CommunityDissolved"
	EventCommunityConfigUpdated = "CommunityConfigUpdated"
	EventVotingQuestionCreated  = "VotingQuestionCreated"
	EventVoteCast               = "VoteCast"
	EventVotingQuestionClosed   = "VotingQuestionClosed"
	EventMemberRoleChanged      = "MemberRoleChanged"
)

type CommunityCreated struct {
	Community string `json:"community"`
	Admin     string `json:"admin"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
}

type MemberJoined struct {
	Community    string `json:"community"`
	MemberWallet string `json:"member_wallet"`
	Timestamp    int64  `json:"timestamp"`
}

type MemberApproved struct {
	Community    string `json:"community"`
	MemberWallet string `json:"member_wallet"`
	Admin        string `json:"admin"`
	Status       uint8  `json:"status"` // approved or rejected
	Timestamp    int64  `json:"timestamp"`
}

type MemberRemoved struct {
	Community    string `json:"community"`
	MemberWallet string `json:"member_wallet"`
	Admin        string `json:"admin"`
	Timestamp    int64  `json:"timestamp"`
}

type CommunityDissolved struct {
	Community string `json:"community"`
	Admin     string `json:"admin"`
	Timestamp int64  `json:"timestamp"`
}

type CommunityConfigUpdated struct {
	Community string                 `json:"community"`
	Admin     string                 `json:"admin"`
	Config    models.CommunityConfig `json:"config"`
	Timestamp int64                  `json:"timestamp"`
}

type VotingQuestionCreated struct {
	Community string `json:"community"`
	Question  string `json:"question"`
	Creator   string `json:"creator"`
	Deadline  int64  `json:"deadline"`
	Timestamp int64  `json:"timestamp"`
}

type VoteCast struct {
	Question       string `json:"question"`
	Voter          string `json:"voter"`
	SelectedOption uint8  `json:"selected_option"`
	Timestamp      int64  `json:"timestamp"`
}

type VotingQuestionClosed struct {
	Question  string `json:"question"`
	Closer    string `json:"closer"`
	Timestamp int64  `json:"timestamp"`
}

type MemberRoleChanged struct {
	Community    string `json:"community"`
	MemberWallet string `json:"member_wallet"`
	NewRole      uint8  `json:"new_role"`
	ChangedBy    string `json:"changed_by"`
	Timestamp    int64  `json:"timestamp"`
}
