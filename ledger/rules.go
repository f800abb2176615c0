// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"math"
	"strings"

	"github.com/danribes/pfm-solana-rust-sub010/models"
)

const (
	MaxNameLen        = 32
	MaxDescriptionLen = 256
	MaxQuestionLen    = 256
	MinOptions        = 2
	MaxOptions        = 4
	MaxMemberCount    = math.MaxUint32
)

// ValidateCommunity checks the name, description and config of a new community
func ValidateCommunity(name, description string, cfg models.CommunityConfig) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	if len(description) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return ValidateConfig(cfg)
}

// ValidateConfig checks voting rules
func ValidateConfig(cfg models.CommunityConfig) error {
	if cfg.VotingPeriod <= 0 {
		return ErrInvalidVotingPeriod
	}
	if cfg.MaxOptions < MinOptions || cfg.MaxOptions > MaxOptions {
		return ErrInvalidMaxOptions
	}
	return nil
}

// ValidateQuestion checks question text, options and deadline against the community config.
// A zero deadline resolves to now + voting period; the resolved deadline is returned.
func ValidateQuestion(c models.Community, question string, options []string, deadline, now int64) (int64, error) {
	if strings.TrimSpace(question) == "" {
		return 0, ErrQuestionRequired
	}
	if len(question) > MaxQuestionLen {
		return 0, ErrQuestionTooLong
	}

	limit := int(c.Config.MaxOptions)
	if limit > MaxOptions || limit < MinOptions {
		limit = MaxOptions
	}
	if len(options) < MinOptions || len(options) > limit {
		return 0, ErrTooManyOptions
	}
	for _, opt := range options {
		if strings.TrimSpace(opt) == "" {
			return 0, ErrInvalidOption
		}
	}

	if deadline == 0 {
		deadline = now + c.Config.VotingPeriod
	}
	if deadline <= now {
		return 0, ErrInvalidDeadline
	}
	return deadline, nil
}

// CheckJoin decides whether wallet may (re)apply. existing is nil for a first application.
func CheckJoin(c models.Community, existing *models.Member) error {
	if c.Dissolved() {
		return ErrCommunityDissolved
	}
	if existing != nil && (existing.Status == models.StatusPending || existing.Status == models.StatusApproved) {
		return ErrAlreadyActive
	}
	return nil
}

// CheckAdmin ensures caller administers an undissolved community
func CheckAdmin(c models.Community, caller string) error {
	if c.Admin != caller {
		return ErrNotAdmin
	}
	if c.Dissolved() {
		return ErrCommunityDissolved
	}
	return nil
}

// CheckApproval validates an approve/reject decision on m
func CheckApproval(c models.Community, caller string, m models.Member, approve bool) error {
	if err := CheckAdmin(c, caller); err != nil {
		return err
	}
	if m.Status != models.StatusPending {
		return ErrNotPending
	}
	if approve && c.MemberCount >= MaxMemberCount {
		return ErrMemberCountOverflow
	}
	return nil
}

// CheckRemoval validates removing m from the community
func CheckRemoval(c models.Community, caller string, m models.Member) error {
	if err := CheckAdmin(c, caller); err != nil {
		return err
	}
	if m.Status != models.StatusApproved {
		return ErrNotApproved
	}
	if m.Wallet == c.Admin {
		return ErrCannotRemoveAdmin
	}
	return nil
}

// CheckRoleChange validates setting m's role to role
func CheckRoleChange(c models.Community, caller string, m models.Member, role uint8) error {
	if err := CheckAdmin(c, caller); err != nil {
		return err
	}
	if role != models.RoleMember && role != models.RoleAdmin {
		return ErrInvalidRole
	}
	if m.Status != models.StatusApproved {
		return ErrNotApprovedMember
	}
	if m.Role == role {
		return ErrAlreadyRole
	}
	if role == models.RoleMember && m.Wallet == caller {
		return ErrCannotDemoteSelf
	}
	return nil
}

// CheckParticipant ensures m may create questions or vote in c. m is nil when the wallet never joined.
func CheckParticipant(c models.Community, m *models.Member) error {
	if c.Dissolved() {
		return ErrCommunityDissolved
	}
	if m == nil {
		return ErrNotApprovedMember
	}
	if m.Status != models.StatusApproved {
		return ErrMemberInactive
	}
	return nil
}

// CheckVote validates a ballot on q at time now
func CheckVote(q models.VotingQuestion, option uint8, now int64) error {
	if !q.IsActive {
		return ErrNotActive
	}
	if now > q.Deadline {
		return ErrDeadlinePassed
	}
	if int(option) >= len(q.Options) {
		return ErrInvalidOption
	}
	return nil
}

// CheckClose validates closing q at time now. Anyone may close once the deadline passed.
func CheckClose(q models.VotingQuestion, now int64) error {
	if now < q.Deadline {
		return ErrDeadlineNotReached
	}
	if !q.IsActive {
		return ErrNotActive
	}
	return nil
}

// Tally counts votes per option. counts maps option index to votes.
func Tally(q models.VotingQuestion, counts map[int]int) models.QuestionResults {
	res := models.QuestionResults{
		Question: q.Address,
		IsActive: q.IsActive,
		Deadline: q.Deadline,
		Options:  make([]models.OptionTally, len(q.Options)),
		Winners:  []int{},
	}

	for i, label := range q.Options {
		res.Options[i] = models.OptionTally{Index: i, Label: label, Votes: counts[i]}
		res.TotalVotes += counts[i]
	}
	if res.TotalVotes == 0 {
		return res
	}

	best := 0
	for i := range res.Options {
		opt := &res.Options[i]
		opt.Percent = math.Round(float64(opt.Votes)*10000/float64(res.TotalVotes)) / 100
		if opt.Votes > best {
			best = opt.Votes
		}
	}
	for _, opt := range res.Options {
		if opt.Votes == best {
			res.Winners = append(res.Winners, opt.Index)
		}
	}
	return res
}
