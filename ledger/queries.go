// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/danribes/pfm-solana-rust-sub010/models"
)

const communityColumns = `address, admin, name, description, member_count, voting_period, max_options, created_at, dissolved_at`

const memberColumns = `address, community, wallet, role, status, joined_at, updated_at`

const questionColumns = `address, community, creator, question, deadline, created_at, is_active, closed_at, closed_by`

type scanner interface {
	Scan(dest ...any) error
}

func scanCommunity(row scanner) (models.Community, error) {
	var c models.Community
	var dissolved sql.NullInt64
	err := row.Scan(&c.Address, &c.Admin, &c.Name, &c.Description, &c.MemberCount,
		&c.Config.VotingPeriod, &c.Config.MaxOptions, &c.CreatedAt, &dissolved)
	if dissolved.Valid {
		c.DissolvedAt = &dissolved.Int64
	}
	return c, err
}

func scanMember(row scanner) (models.Member, error) {
	var m models.Member
	err := row.Scan(&m.Address, &m.Community, &m.Wallet, &m.Role, &m.Status, &m.JoinedAt, &m.UpdatedAt)
	return m, err
}

func scanQuestion(row scanner) (models.VotingQuestion, error) {
	var q models.VotingQuestion
	var closedAt sql.NullInt64
	var closedBy sql.NullString
	err := row.Scan(&q.Address, &q.Community, &q.Creator, &q.Question, &q.Deadline,
		&q.CreatedAt, &q.IsActive, &closedAt, &closedBy)
	if closedAt.Valid {
		q.ClosedAt = &closedAt.Int64
	}
	if closedBy.Valid {
		q.ClosedBy = &closedBy.String
	}
	return q, err
}

func loadCommunity(ctx context.Context, q querier, address string) (models.Community, error) {
	c, err := scanCommunity(q.QueryRowContext(ctx,
		`SELECT `+communityColumns+` FROM community WHERE address = $1`, address))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Community{}, ErrCommunityNotFound
	}
	if err != nil {
		return models.Community{}, fmt.Errorf("load community: %w", err)
	}
	return c, nil
}

// findMember returns nil when wallet never joined the community
func findMember(ctx context.Context, q querier, community, wallet string) (*models.Member, error) {
	m, err := scanMember(q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM member WHERE community = $1 AND wallet = $2`, community, wallet))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	return &m, nil
}

func loadMember(ctx context.Context, q querier, community, wallet string) (models.Member, error) {
	m, err := findMember(ctx, q, community, wallet)
	if err != nil {
		return models.Member{}, err
	}
	if m == nil {
		return models.Member{}, ErrMemberNotFound
	}
	return *m, nil
}

func loadQuestion(ctx context.Context, q querier, address string) (models.VotingQuestion, error) {
	question, err := scanQuestion(q.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM voting_question WHERE address = $1`, address))
	if errors.Is(err, sql.ErrNoRows) {
		return models.VotingQuestion{}, ErrQuestionNotFound
	}
	if err != nil {
		return models.VotingQuestion{}, fmt.Errorf("load voting question: %w", err)
	}

	question.Options, err = loadOptions(ctx, q, address)
	if err != nil {
		return models.VotingQuestion{}, err
	}
	return question, nil
}

func loadOptions(ctx context.Context, q querier, question string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT label FROM question_option WHERE question = $1 ORDER BY idx`, question)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	defer rows.Close()

	options := []string{}
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		options = append(options, label)
	}
	return options, rows.Err()
}

// GetCommunity returns a community by address
func (s *Service) GetCommunity(ctx context.Context, address string) (models.Community, error) {
	return loadCommunity(ctx, s.db, address)
}

// ListCommunities pages through communities, newest first, optionally filtered by a name substring
func (s *Service) ListCommunities(ctx context.Context, search string, limit, offset int) ([]models.Community, int, error) {
	where := ""
	args := []any{}
	if search = strings.TrimSpace(search); search != "" {
		where = ` WHERE LOWER(name) LIKE $1`
		args = append(args, "%"+strings.ToLower(search)+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM community`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count communities: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM community%s ORDER BY created_at DESC, address LIMIT $%d OFFSET $%d`,
		communityColumns, where, n+1, n+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list communities: %w", err)
	}
	defer rows.Close()

	communities := []models.Community{}
	for rows.Next() {
		c, err := scanCommunity(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan community: %w", err)
		}
		communities = append(communities, c)
	}
	return communities, total, rows.Err()
}

// GetMember returns wallet's membership record in community
func (s *Service) GetMember(ctx context.Context, community, wallet string) (models.Member, error) {
	if _, err := loadCommunity(ctx, s.db, community); err != nil {
		return models.Member{}, err
	}
	return loadMember(ctx, s.db, community, wallet)
}

// ListMembers lists a community's members, optionally only those with the given status
func (s *Service) ListMembers(ctx context.Context, community string, status *uint8) ([]models.Member, error) {
	if _, err := loadCommunity(ctx, s.db, community); err != nil {
		return nil, err
	}

	query := `SELECT ` + memberColumns + ` FROM member WHERE community = $1`
	args := []any{community}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY joined_at, wallet`

	return s.queryMembers(ctx, query, args...)
}

// ListMemberships lists every community record for wallet
func (s *Service) ListMemberships(ctx context.Context, wallet string) ([]models.Member, error) {
	return s.queryMembers(ctx,
		`SELECT `+memberColumns+` FROM member WHERE wallet = $1 ORDER BY joined_at DESC, community`, wallet)
}

func (s *Service) queryMembers(ctx context.Context, query string, args ...any) ([]models.Member, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []models.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetQuestion returns a question with its options
func (s *Service) GetQuestion(ctx context.Context, address string) (models.VotingQuestion, error) {
	return loadQuestion(ctx, s.db, address)
}

// ListQuestions lists a community's questions. filter is "", "active" or "closed".
func (s *Service) ListQuestions(ctx context.Context, community, filter string) ([]models.VotingQuestion, error) {
	if _, err := loadCommunity(ctx, s.db, community); err != nil {
		return nil, err
	}

	query := `SELECT ` + questionColumns + ` FROM voting_question WHERE community = $1`
	args := []any{community}
	switch filter {
	case models.QuestionsActive:
		query += ` AND is_active = $2`
		args = append(args, true)
	case models.QuestionsClosed:
		query += ` AND is_active = $2`
		args = append(args, false)
	}
	query += ` ORDER BY created_at DESC, address`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	questions := []models.VotingQuestion{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// options are loaded after the cursor closes; SQLite runs on one connection
	for i := range questions {
		questions[i].Options, err = loadOptions(ctx, s.db, questions[i].Address)
		if err != nil {
			return nil, err
		}
	}
	return questions, nil
}

// GetVote returns voter's ballot on question
func (s *Service) GetVote(ctx context.Context, question, voter string) (models.Vote, error) {
	var v models.Vote
	err := s.db.QueryRowContext(ctx, `
		SELECT address, question, voter, selected_option, voted_at
		FROM vote WHERE question = $1 AND voter = $2
	`, question, voter).Scan(&v.Address, &v.Question, &v.Voter, &v.SelectedOption, &v.VotedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Vote{}, ErrVoteNotFound
	}
	if err != nil {
		return models.Vote{}, fmt.Errorf("load vote: %w", err)
	}
	return v, nil
}

// Results tallies the votes cast on question
func (s *Service) Results(ctx context.Context, question string) (models.QuestionResults, error) {
	q, err := loadQuestion(ctx, s.db, question)
	if err != nil {
		return models.QuestionResults{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT selected_option, COUNT(*) FROM vote
		WHERE question = $1
		GROUP BY selected_option
	`, question)
	if err != nil {
		return models.QuestionResults{}, fmt.Errorf("tally votes: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var option, n int
		if err := rows.Scan(&option, &n); err != nil {
			return models.QuestionResults{}, fmt.Errorf("scan tally: %w", err)
		}
		counts[option] = n
	}
	if err := rows.Err(); err != nil {
		return models.QuestionResults{}, err
	}

	return Tally(q, counts), nil
}

// Stats summarizes membership and voting activity in a community
func (s *Service) Stats(ctx context.Context, community string) (models.CommunityStats, error) {
	if _, err := loadCommunity(ctx, s.db, community); err != nil {
		return models.CommunityStats{}, err
	}

	stats := models.CommunityStats{
		Community:       community,
		MembersByStatus: map[string]int{},
	}
	for _, st := range []uint8{models.StatusPending, models.StatusApproved, models.StatusRejected, models.StatusRemoved} {
		stats.MembersByStatus[models.StatusName(st)] = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM member WHERE community = $1 GROUP BY status`, community)
	if err != nil {
		return models.CommunityStats{}, fmt.Errorf("count members: %w", err)
	}
	for rows.Next() {
		var status uint8
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return models.CommunityStats{}, fmt.Errorf("scan member count: %w", err)
		}
		stats.MembersByStatus[models.StatusName(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.CommunityStats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN is_active = $2 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_active = $2 THEN 0 ELSE 1 END), 0)
		FROM voting_question WHERE community = $1
	`, community, true).Scan(&stats.ActiveQuestions, &stats.ClosedQuestions)
	if err != nil {
		return models.CommunityStats{}, fmt.Errorf("count questions: %w", err)
	}

	// TotalVotes keeps ballots of members removed since; the rate only
	// counts voters who are still approved, so it never exceeds 1.
	var approvedVotes int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN m.status = $2 THEN 1 ELSE 0 END), 0)
		FROM vote v
		JOIN voting_question q ON q.address = v.question
		LEFT JOIN member m ON m.community = q.community AND m.wallet = v.voter
		WHERE q.community = $1
	`, community, models.StatusApproved).Scan(&stats.TotalVotes, &approvedVotes)
	if err != nil {
		return models.CommunityStats{}, fmt.Errorf("count votes: %w", err)
	}

	approved := stats.MembersByStatus[models.StatusName(models.StatusApproved)]
	questions := stats.ActiveQuestions + stats.ClosedQuestions
	if approved > 0 && questions > 0 {
		stats.ParticipationRate = float64(approvedVotes) / float64(approved*questions)
	}
	return stats, nil
}

// Events returns the newest ledger events for community
func (s *Service) Events(ctx context.Context, community string, limit int) ([]models.Event, error) {
	if _, err := loadCommunity(ctx, s.db, community); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, community, question, actor, payload, created_at
		FROM ledger_event WHERE community = $1
		ORDER BY seq DESC
		LIMIT $2
	`, community, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var ev models.Event
		var comm, question, actor sql.NullString
		var payload string
		if err := rows.Scan(&ev.ID, &ev.Kind, &comm, &question, &actor, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Community, ev.Question, ev.Actor = comm.String, question.String, actor.String
		ev.Payload = []byte(payload)
		events = append(events, ev)
	}
	return events, rows.Err()
}
