// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/danribes/pfm-solana-rust-sub010/auth"
	"github.com/danribes/pfm-solana-rust-sub010/db"
	"github.com/danribes/pfm-solana-rust-sub010/models"
	"github.com/danribes/pfm-solana-rust-sub010/pda"
	"github.com/google/uuid"
)

// Publisher receives events after the transaction that produced them commits
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Service applies the governance rules to the relational store
type Service struct {
	db        *sql.DB
	deriver   *pda.Deriver
	publisher Publisher
	now       func() time.Time
	lastSeq   atomic.Int64
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets where committed events are sent
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func NewService(conn *sql.DB, deriver *pda.Deriver, opts ...Option) *Service {
	s := &Service{db: conn, deriver: deriver, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock in unix seconds
func (s *Service) Now() int64 {
	return s.now().Unix()
}

// recorder collects the events written inside a transaction
type recorder struct {
	tx     *sql.Tx
	now    time.Time
	seq    func() int64
	events []models.Event
}

func (r *recorder) emit(ctx context.Context, kind, community, question, actor string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", kind, err)
	}

	ev := models.Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Community: community,
		Question:  question,
		Actor:     actor,
		Payload:   body,
		CreatedAt: r.now.Unix(),
	}
	seq := r.seq()

	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO ledger_event (id, seq, kind, community, question, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ev.ID, seq, ev.Kind, ev.Community, ev.Question, ev.Actor, string(body), ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("record %s event: %w", kind, err)
	}

	r.events = append(r.events, ev)
	return nil
}

// inTx runs fn in a transaction and publishes its events once committed
func (s *Service) inTx(ctx context.Context, fn func(rec *recorder) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec := &recorder{tx: tx, now: s.now(), seq: s.nextSeq}
	if err := fn(rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.publish(ctx, rec.events)
	return nil
}

// nextSeq orders events even when the clock does not move between them
func (s *Service) nextSeq() int64 {
	for {
		last := s.lastSeq.Load()
		next := s.now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if s.lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}

func (s *Service) publish(ctx context.Context, events []models.Event) {
	if s.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			slog.Warn("failed to publish ledger event", "kind", ev.Kind, "id", ev.ID, "error", err)
		}
	}
}

// CreateCommunity registers a new community administered by admin
func (s *Service) CreateCommunity(ctx context.Context, admin string, req models.CreateCommunityRequest) (models.Community, error) {
	if err := ValidateCommunity(req.Name, req.Description, req.Config); err != nil {
		return models.Community{}, err
	}

	address, err := auth.NewCommunityAddress()
	if err != nil {
		return models.Community{}, fmt.Errorf("generate community address: %w", err)
	}
	memberAddr, err := s.deriver.Member(address, admin)
	if err != nil {
		return models.Community{}, ErrInvalidAddress
	}

	var community models.Community
	err = s.inTx(ctx, func(rec *recorder) error {
		now := rec.now.Unix()
		community = models.Community{
			Address:     address,
			Admin:       admin,
			Name:        req.Name,
			Description: req.Description,
			MemberCount: 1,
			Config:      req.Config,
			CreatedAt:   now,
		}

		_, err := rec.tx.ExecContext(ctx, `
			INSERT INTO community (address, admin, name, description, member_count, voting_period, max_options, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, community.Address, community.Admin, community.Name, community.Description,
			community.MemberCount, community.Config.VotingPeriod, community.Config.MaxOptions, community.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert community: %w", err)
		}

		_, err = rec.tx.ExecContext(ctx, `
			INSERT INTO member (address, community, wallet, role, status, joined_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
		`, memberAddr, address, admin, models.RoleAdmin, models.StatusApproved, now)
		if err != nil {
			return fmt.Errorf("insert admin member: %w", err)
		}

		return rec.emit(ctx, EventCommunityCreated, address, "", admin, CommunityCreated{
			Community: address, Admin: admin, Name: req.Name, Timestamp: now,
		})
	})
	if err != nil {
		return models.Community{}, err
	}

	slog.Info("community created", "community", address, "admin", admin)
	return community, nil
}

// JoinCommunity files a pending application, reopening rejected or removed records
func (s *Service) JoinCommunity(ctx context.Context, communityAddr, wallet string) (models.Member, error) {
	memberAddr, err := s.deriver.Member(communityAddr, wallet)
	if err != nil {
		return models.Member{}, ErrInvalidAddress
	}

	var member models.Member
	err = s.inTx(ctx, func(rec *recorder) error {
		community, err := loadCommunity(ctx, rec.tx, communityAddr)
		if err != nil {
			return err
		}
		existing, err := findMember(ctx, rec.tx, communityAddr, wallet)
		if err != nil {
			return err
		}
		if err := CheckJoin(community, existing); err != nil {
			return err
		}

		now := rec.now.Unix()
		if existing == nil {
			member = models.Member{
				Address:   memberAddr,
				Community: communityAddr,
				Wallet:    wallet,
				Role:      models.RoleMember,
				Status:    models.StatusPending,
				JoinedAt:  now,
				UpdatedAt: now,
			}
			_, err = rec.tx.ExecContext(ctx, `
				INSERT INTO member (address, community, wallet, role, status, joined_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, member.Address, member.Community, member.Wallet, member.Role, member.Status, member.JoinedAt, member.UpdatedAt)
			if db.IsUniqueViolation(err) {
				return ErrAlreadyActive
			}
			if err != nil {
				return fmt.Errorf("insert member: %w", err)
			}
		} else {
			member = *existing
			member.Role = models.RoleMember
			member.Status = models.StatusPending
			member.JoinedAt = now
			member.UpdatedAt = now
			if err := transitionMember(ctx, rec.tx, member, existing.Status, ErrAlreadyActive); err != nil {
				return err
			}
		}

		return rec.emit(ctx, EventMemberJoined, communityAddr, "", wallet, MemberJoined{
			Community: communityAddr, MemberWallet: wallet, Timestamp: now,
		})
	})
	if err != nil {
		return models.Member{}, err
	}
	return member, nil
}

// ApproveMember approves or rejects a pending application
func (s *Service) ApproveMember(ctx context.Context, communityAddr, admin, wallet string, approve bool) (models.Member, error) {
	var member models.Member
	err := s.inTx(ctx, func(rec *recorder) error {
		community, err := loadCommunity(ctx, rec.tx, communityAddr)
		if err != nil {
			return err
		}
		existing, err := loadMember(ctx, rec.tx, communityAddr, wallet)
		if err != nil {
			return err
		}
		if err := CheckApproval(community, admin, existing, approve); err != nil {
			return err
		}

		now := rec.now.Unix()
		member = existing
		member.Status = models.StatusRejected
		if approve {
			member.Status = models.StatusApproved
		}
		member.UpdatedAt = now
		if err := transitionMember(ctx, rec.tx, member, models.StatusPending, ErrNotPending); err != nil {
			return err
		}
		if approve {
			if err := adjustMemberCount(ctx, rec.tx, communityAddr, 1); err != nil {
				return err
			}
		}

		return rec.emit(ctx, EventMemberApproved, communityAddr, "", admin, MemberApproved{
			Community: communityAddr, MemberWallet: wallet, Admin: admin, Status: member.Status, Timestamp: now,
		})
	})
	if err != nil {
		return models.Member{}, err
	}
	return member, nil
}

// RemoveMember marks an approved member as removed
func (s *Service) RemoveMember(ctx context.Context, communityAddr, admin, wallet string) (models.Member, error) {
	var member models.Member
	err := s.inTx(ctx, func(rec *recorder) error {
		community, err := loadCommunity(ctx, rec.tx, communityAddr)
		if err != nil {
			return err
		}
		existing, err := loadMember(ctx, rec.tx, communityAddr, wallet)
		if err != nil {
			return err
		}
		if err := CheckRemoval(community, admin, existing); err != nil {
			return err
		}

		now := rec.now.Unix()
		member = existing
		member.Status = models.StatusRemoved
		member.UpdatedAt = now
		if err := transitionMember(ctx, rec.tx, member, models.StatusApproved, ErrNotApproved); err != nil {
			return err
		}
		if err := adjustMemberCount(ctx, rec.tx, communityAddr, -1); err != nil {
			return err
		}

		return rec.emit(ctx, EventMemberRemoved, communityAddr, "", admin, MemberRemoved{
			Community: communityAddr, MemberWallet: wallet, Admin: admin, Timestamp: now,
		})
	})
	if err != nil {
		return models.Member{}, err
	}
	return member, nil
}

// ChangeMemberRole promotes or demotes a member. Promoting hands over the admin seat.
func (s *Service) ChangeMemberRole(ctx context.Context, communityAddr, admin, wallet string, role uint8) (models.Member, error) {
	var member models.Member
	err := s.inTx(ctx, func(rec *recorder) error {
		community, err := loadCommunity(ctx, rec.tx, communityAddr)
		if err != nil {
			return err
		}
		if err := CheckAdmin(community, admin); err != nil {
			return err
		}
		if role != models.RoleMember && role != models.RoleAdmin {
			return ErrInvalidRole
		}
		existing, err := findMember(ctx, rec.tx, communityAddr, wallet)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrNotApprovedMember
		}
		if err := CheckRoleChange(community, admin, *existing, role); err != nil {
			return err
		}

		now := rec.now.Unix()
		member = *existing
		member.Role = role
		member.UpdatedAt = now
		if _, err := rec.tx.ExecContext(ctx,
			`UPDATE member SET role = $1, updated_at = $2 WHERE address = $3`,
			member.Role, now, member.Address); err != nil {
			return fmt.Errorf("update member role: %w", err)
		}

		if role == models.RoleAdmin {
			res, err := rec.tx.ExecContext(ctx,
				`UPDATE community SET admin = $1 WHERE address = $2 AND admin = $3`,
				wallet, communityAddr, admin)
			if err != nil {
				return fmt.Errorf("transfer admin: %w", err)
			}
			if err := expectRow(res, ErrNotAdmin); err != nil {
				return err
			}
			if _, err := rec.tx.ExecContext(ctx,
				`UPDATE member SET role = $1, updated_at = $2 WHERE community = $3 AND wallet = $4`,
				models.RoleMember, now, communityAddr, admin); err != nil {
				return fmt.Errorf("demote previous admin: %w", err)
			}
			if err := rec.emit(ctx, EventMemberRoleChanged, communityAddr, "", admin, MemberRoleChanged{
				Community: communityAddr, MemberWallet: admin, NewRole: models.RoleMember, ChangedBy: admin, Timestamp: now,
			}); err != nil {
				return err
			}
		}

		return rec.emit(ctx, EventMemberRoleChanged, communityAddr, "", admin, MemberRoleChanged{
			Community: communityAddr, MemberWallet: wallet, NewRole: role, ChangedBy: admin, Timestamp: now,
		})
	})
	if err != nil {
		return models.Member{}, err
	}
	return member, nil
}

// DissolveCommunity freezes the community. It stays readable.
func (s *Service) DissolveCommunity(ctx context.Context, communityAddr, admin string) (models.Community, error) {
	var community models.Community
	err := s.inTx(ctx, func(rec *recorder) error {
		var err error
		community, err = loadCommunity(ctx, rec.tx, communityAddr)
		if err != nil {
			return err
		}
		if err := CheckAdmin(community, admin); err != nil {
			return err
		}

		now := rec.now.Unix()
		res, err := rec.tx.ExecContext(ctx,
			`UPDATE community SET dissolved_at = $1 WHERE address = $2 AND dissolved_at IS NULL`,
			now, communityAddr)
		if err != nil {
			return fmt.Errorf("dissolve community: %w", err)
		}
		if err := expectRow(res, ErrCommunityDissolved); err != nil {
			return err
		}
		community.DissolvedAt = &now

		return rec.emit(ctx, EventCommunityDissolved, communityAddr, "", admin, CommunityDissolved{
			Community: communityAddr, Admin: admin, Timestamp: now,
		})
	})
	if err != nil {
		return models.Community{}, err
	}

	slog.Info("community dissolved", "community", communityAddr, "admin", admin)
	return community, nil
}

// UpdateCommunityConfig replaces the voting rules. Existing questions keep their deadlines.
func (s *Service) UpdateCommunityConfig(ctx context.Context, communityAddr, admin string, cfg models.CommunityConfig) (models.Community, error) {
	var community models.Community
	err := s.inTx(ctx, func(rec *recorder) error {
		var err error
		community, err = loadCommunity(ctx, rec.tx, communityAddr)
		if err != nil {
			return err
		}
		if err := CheckAdmin(community, admin); err != nil {
			return err
		}
		if err := ValidateConfig(cfg); err != nil {
			return err
		}

		if _, err := rec.tx.ExecContext(ctx,
			`UPDATE community SET voting_period = $1, max_options = $2 WHERE address = $3`,
			cfg.VotingPeriod, cfg.MaxOptions, communityAddr); err != nil {
			return fmt.Errorf("update community config: %w", err)
		}
		community.Config = cfg

		return rec.emit(ctx, EventCommunityConfigUpdated, communityAddr, "", admin, CommunityConfigUpdated{
			Community: communityAddr, Admin: admin, Config: cfg, Timestamp: rec.now.Unix(),
		})
	})
	if err != nil {
		return models.Community{}, err
	}
	return community, nil
}

// CreateVotingQuestion opens a question in the community
func (s *Service) CreateVotingQuestion(ctx context.Context, communityAddr, creator string, req models.CreateQuestionRequest) (models.VotingQuestion, error) {
	var question models.VotingQuestion
	err := s.inTx(ctx, func(rec *recorder) error {
		community, err := loadCommunity(ctx, rec.tx, communityAddr)
		if err != nil {
			return err
		}
		member, err := findMember(ctx, rec.tx, communityAddr, creator)
		if err != nil {
			return err
		}
		if err := CheckParticipant(community, member); err != nil {
			return err
		}

		now := rec.now.Unix()
		deadline, err := ValidateQuestion(community, req.Question, req.Options, req.Deadline, now)
		if err != nil {
			return err
		}
		address, err := s.deriver.Question(communityAddr, creator, deadline)
		if err != nil {
			return ErrInvalidAddress
		}

		question = models.VotingQuestion{
			Address:   address,
			Community: communityAddr,
			Creator:   creator,
			Question:  req.Question,
			Options:   append([]string(nil), req.Options...),
			Deadline:  deadline,
			CreatedAt: now,
			IsActive:  true,
		}

		_, err = rec.tx.ExecContext(ctx, `
			INSERT INTO voting_question (address, community, creator, question, deadline, created_at, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, question.Address, question.Community, question.Creator, question.Question,
			question.Deadline, question.CreatedAt, true)
		if db.IsUniqueViolation(err) {
			return ErrQuestionExists
		}
		if err != nil {
			return fmt.Errorf("insert voting question: %w", err)
		}

		for i, label := range question.Options {
			if _, err := rec.tx.ExecContext(ctx,
				`INSERT INTO question_option (question, idx, label) VALUES ($1, $2, $3)`,
				address, i, label); err != nil {
				return fmt.Errorf("insert option %d: %w", i, err)
			}
		}

		return rec.emit(ctx, EventVotingQuestionCreated, communityAddr, address, creator, VotingQuestionCreated{
			Community: communityAddr, Question: address, Creator: creator, Deadline: deadline, Timestamp: now,
		})
	})
	if err != nil {
		return models.VotingQuestion{}, err
	}
	return question, nil
}

// CastVote records one ballot per approved member per question
func (s *Service) CastVote(ctx context.Context, questionAddr, voter string, option uint8) (models.Vote, error) {
	voteAddr, err := s.deriver.Vote(questionAddr, voter)
	if err != nil {
		return models.Vote{}, ErrInvalidAddress
	}

	var vote models.Vote
	err = s.inTx(ctx, func(rec *recorder) error {
		question, err := loadQuestion(ctx, rec.tx, questionAddr)
		if err != nil {
			return err
		}
		community, err := loadCommunity(ctx, rec.tx, question.Community)
		if err != nil {
			return err
		}
		member, err := findMember(ctx, rec.tx, question.Community, voter)
		if err != nil {
			return err
		}
		if err := CheckParticipant(community, member); err != nil {
			return err
		}

		now := rec.now.Unix()
		if err := CheckVote(question, option, now); err != nil {
			return err
		}

		vote = models.Vote{
			Address:        voteAddr,
			Question:       questionAddr,
			Voter:          voter,
			SelectedOption: option,
			VotedAt:        now,
		}
		_, err = rec.tx.ExecContext(ctx, `
			INSERT INTO vote (address, question, voter, selected_option, voted_at)
			VALUES ($1, $2, $3, $4, $5)
		`, vote.Address, vote.Question, vote.Voter, vote.SelectedOption, vote.VotedAt)
		if db.IsUniqueViolation(err) {
			return ErrAlreadyVoted
		}
		if err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}

		return rec.emit(ctx, EventVoteCast, question.Community, questionAddr, voter, VoteCast{
			Question: questionAddr, Voter: voter, SelectedOption: option, Timestamp: now,
		})
	})
	if err != nil {
		return models.Vote{}, err
	}
	return vote, nil
}

// CloseVotingQuestion deactivates a question whose deadline has passed
func (s *Service) CloseVotingQuestion(ctx context.Context, questionAddr, closer string) (models.VotingQuestion, error) {
	var question models.VotingQuestion
	err := s.inTx(ctx, func(rec *recorder) error {
		var err error
		question, err = loadQuestion(ctx, rec.tx, questionAddr)
		if err != nil {
			return err
		}
		now := rec.now.Unix()
		if err := CheckClose(question, now); err != nil {
			return err
		}
		if err := closeQuestion(ctx, rec, question, closer); err != nil {
			return err
		}
		question.IsActive = false
		question.ClosedAt = &now
		question.ClosedBy = &closer
		return nil
	})
	if err != nil {
		return models.VotingQuestion{}, err
	}
	return question, nil
}

// CloseExpired closes every active question whose deadline is behind the clock
func (s *Service) CloseExpired(ctx context.Context, closer string) ([]string, error) {
	var closed []string
	err := s.inTx(ctx, func(rec *recorder) error {
		rows, err := rec.tx.QueryContext(ctx, `
			SELECT address, community FROM voting_question
			WHERE is_active = $1 AND deadline < $2
			ORDER BY deadline
		`, true, rec.now.Unix())
		if err != nil {
			return fmt.Errorf("query expired questions: %w", err)
		}

		var expired []models.VotingQuestion
		for rows.Next() {
			var q models.VotingQuestion
			if err := rows.Scan(&q.Address, &q.Community); err != nil {
				rows.Close()
				return fmt.Errorf("scan expired question: %w", err)
			}
			expired = append(expired, q)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, q := range expired {
			if err := closeQuestion(ctx, rec, q, closer); err != nil {
				if errors.Is(err, ErrNotActive) {
					continue
				}
				return err
			}
			closed = append(closed, q.Address)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

func closeQuestion(ctx context.Context, rec *recorder, q models.VotingQuestion, closer string) error {
	now := rec.now.Unix()
	res, err := rec.tx.ExecContext(ctx, `
		UPDATE voting_question SET is_active = $1, closed_at = $2, closed_by = $3
		WHERE address = $4 AND is_active = $5
	`, false, now, closer, q.Address, true)
	if err != nil {
		return fmt.Errorf("close voting question: %w", err)
	}
	if err := expectRow(res, ErrNotActive); err != nil {
		return err
	}
	return rec.emit(ctx, EventVotingQuestionClosed, q.Community, q.Address, closer, VotingQuestionClosed{
		Question: q.Address, Closer: closer, Timestamp: now,
	})
}

// expectRow maps an update that matched nothing to conflict
func expectRow(res sql.Result, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return conflict
	}
	return nil
}

// transitionMember writes m only if the stored status still equals from
func transitionMember(ctx context.Context, tx *sql.Tx, m models.Member, from uint8, conflict error) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE member SET role = $1, status = $2, joined_at = $3, updated_at = $4
		WHERE address = $5 AND status = $6
	`, m.Role, m.Status, m.JoinedAt, m.UpdatedAt, m.Address, from)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	return expectRow(res, conflict)
}

func adjustMemberCount(ctx context.Context, tx *sql.Tx, community string, delta int64) error {
	var query string
	if delta > 0 {
		query = `UPDATE community SET member_count = member_count + $1 WHERE address = $2 AND member_count < $3`
		res, err := tx.ExecContext(ctx, query, delta, community, int64(MaxMemberCount))
		if err != nil {
			return fmt.Errorf("increment member count: %w", err)
		}
		return expectRow(res, ErrMemberCountOverflow)
	}

	query = `UPDATE community SET member_count = member_count + $1 WHERE address = $2 AND member_count > 0`
	if _, err := tx.ExecContext(ctx, query, delta, community); err != nil {
		return fmt.Errorf("decrement member count: %w", err)
	}
	return nil
}
