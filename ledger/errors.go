// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import "errors"

// Kind classifies a rule violation so callers can map it to a transport status
type Kind int

const (
	KindInvalid Kind = iota + 1
	KindForbidden
	KindNotFound
	KindConflict
)

// Error is a rule violation raised by a ledger operation
type Error struct {
	Code    string
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Code: code, Message: msg, Kind: kind}
}

// AsError unwraps err into a ledger *Error
func AsError(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// Input validation
var (
	ErrNameRequired        = newError(KindInvalid, "NameRequired", "Community name is required")
	ErrNameTooLong         = newError(KindInvalid, "NameTooLong", "Community name is too long")
	ErrDescriptionTooLong  = newError(KindInvalid, "DescriptionTooLong", "Community description is too long")
	ErrInvalidVotingPeriod = newError(KindInvalid, "InvalidVotingPeriod", "Voting period must be positive")
	ErrInvalidMaxOptions   = newError(KindInvalid, "InvalidMaxOptions", "Max options must be between 2 and 4")
	ErrQuestionRequired    = newError(KindInvalid, "QuestionRequired", "Question text is required")
	ErrQuestionTooLong     = newError(KindInvalid, "QuestionTooLong", "Question is too long")
	ErrTooManyOptions      = newError(KindInvalid, "TooManyOptions", "Questions need between 2 and the community's maximum number of options")
	ErrInvalidOption       = newError(KindInvalid, "InvalidOption", "Invalid option selected")
	ErrInvalidDeadline     = newError(KindInvalid, "InvalidDeadline", "Deadline must be in the future")
	ErrInvalidRole         = newError(KindInvalid, "InvalidRole", "Role must be 0 (member) or 1 (admin)")
	ErrInvalidAddress      = newError(KindInvalid, "InvalidAddress", "Invalid account address")
)

// Authority
var (
	ErrNotAdmin          = newError(KindForbidden, "NotAdmin", "Only the community admin can perform this action")
	ErrNotApprovedMember = newError(KindForbidden, "NotApprovedMember", "Only approved members can perform this action")
	ErrMemberInactive    = newError(KindForbidden, "MemberInactive", "Member is removed or rejected; action not allowed")
	ErrCannotDemoteSelf  = newError(KindForbidden, "CannotDemoteSelf", "Cannot demote self without assigning a new admin")
	ErrCannotRemoveAdmin = newError(KindForbidden, "CannotRemoveAdmin", "The community admin cannot be removed")
)

// Missing accounts
var (
	ErrCommunityNotFound = newError(KindNotFound, "CommunityNotFound", "Community not found")
	ErrMemberNotFound    = newError(KindNotFound, "MemberNotFound", "Member not found")
	ErrQuestionNotFound  = newError(KindNotFound, "QuestionNotFound", "Voting question not found")
	ErrVoteNotFound      = newError(KindNotFound, "VoteNotFound", "Vote not found")
)

// State conflicts
var (
	ErrCommunityDissolved  = newError(KindConflict, "CommunityDissolved", "Community is dissolved; action not allowed")
	ErrAlreadyActive       = newError(KindConflict, "AlreadyActive", "Member is already pending or approved")
	ErrNotPending          = newError(KindConflict, "NotPending", "Member is not pending approval")
	ErrNotApproved         = newError(KindConflict, "NotApproved", "Member is not approved")
	ErrAlreadyRole         = newError(KindConflict, "AlreadyRole", "Target is already the desired role")
	ErrNotActive           = newError(KindConflict, "NotActive", "Voting question is not active")
	ErrDeadlinePassed      = newError(KindConflict, "DeadlinePassed", "Voting deadline has passed")
	ErrDeadlineNotReached  = newError(KindConflict, "DeadlineNotReached", "Voting deadline has not passed yet")
	ErrAlreadyVoted        = newError(KindConflict, "AlreadyVoted", "Member has already voted on this question")
	ErrQuestionExists      = newError(KindConflict, "QuestionExists", "A question with this deadline already exists for this creator")
	ErrMemberCountOverflow = newError(KindConflict, "MemberCountOverflow", "Community member count overflow")
)
