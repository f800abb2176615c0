// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danribes/pfm-solana-rust-sub010/auth"
	"github.com/danribes/pfm-solana-rust-sub010/models"
	"github.com/google/uuid"
)

// ErrInvalidSession covers unknown, revoked and expired tokens alike
var ErrInvalidSession = errors.New("invalid or expired session")

// Store persists bearer sessions. Only HMAC hashes of tokens are stored.
type Store struct {
	db     *sql.DB
	secret string
	ttl    time.Duration
	now    func() time.Time
}

func NewStore(conn *sql.DB, secret string, ttl time.Duration) *Store {
	return &Store{db: conn, secret: secret, ttl: ttl, now: time.Now}
}

// Meta describes the client that opened a session
type Meta struct {
	IPHash    string
	UserAgent string
}

// Create issues a new session for wallet and returns the raw token
func (s *Store) Create(ctx context.Context, wallet string, meta Meta) (string, models.Session, error) {
	return s.create(ctx, s.db, wallet, meta)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) create(ctx context.Context, q execer, wallet string, meta Meta) (string, models.Session, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return "", models.Session{}, err
	}

	now := s.now()
	sess := models.Session{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		CreatedAt:     now.Unix(),
		ExpiresAt:     now.Add(s.ttl).Unix(),
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO auth_session (token_hash, id, wallet_address, created_at, expires_at, ip_hash, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, auth.HashToken(token, s.secret), sess.ID, wallet, sess.CreatedAt, sess.ExpiresAt, meta.IPHash, meta.UserAgent)
	if err != nil {
		return "", models.Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return token, sess, nil
}

// Lookup resolves a raw token to its live session
func (s *Store) Lookup(ctx context.Context, token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, ErrInvalidSession
	}

	var sess models.Session
	var revoked sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, wallet_address, created_at, expires_at, revoked_at
		FROM auth_session WHERE token_hash = $1
	`, auth.HashToken(token, s.secret)).Scan(&sess.ID, &sess.WalletAddress, &sess.CreatedAt, &sess.ExpiresAt, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrInvalidSession
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	if revoked.Valid || s.now().Unix() >= sess.ExpiresAt {
		return models.Session{}, ErrInvalidSession
	}
	return sess, nil
}

// Revoke ends the session behind token
func (s *Store) Revoke(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE auth_session SET revoked_at = $1 WHERE token_hash = $2 AND revoked_at IS NULL`,
		s.now().Unix(), auth.HashToken(token, s.secret))
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return expectRow(res)
}

// Rotate revokes token and issues a fresh one for the same wallet
func (s *Store) Rotate(ctx context.Context, token string, meta Meta) (string, models.Session, error) {
	old, err := s.Lookup(ctx, token)
	if err != nil {
		return "", models.Session{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", models.Session{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE auth_session SET revoked_at = $1 WHERE token_hash = $2 AND revoked_at IS NULL`,
		s.now().Unix(), auth.HashToken(token, s.secret))
	if err != nil {
		return "", models.Session{}, fmt.Errorf("failed to revoke session: %w", err)
	}
	if err := expectRow(res); err != nil {
		return "", models.Session{}, err
	}

	fresh, sess, err := s.create(ctx, tx, old.WalletAddress, meta)
	if err != nil {
		return "", models.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return "", models.Session{}, fmt.Errorf("failed to commit: %w", err)
	}
	return fresh, sess, nil
}

// HasActive reports whether wallet holds any live session
func (s *Store) HasActive(ctx context.Context, wallet string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM auth_session
		WHERE wallet_address = $1 AND revoked_at IS NULL AND expires_at > $2
	`, wallet, s.now().Unix()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n > 0, nil
}

// ListActive returns wallet's live sessions, newest first
func (s *Store) ListActive(ctx context.Context, wallet string) ([]models.ActiveSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, expires_at, ip_hash, user_agent FROM auth_session
		WHERE wallet_address = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC, id
	`, wallet, s.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.ActiveSession{}
	for rows.Next() {
		var a models.ActiveSession
		var ipHash, userAgent sql.NullString
		if err := rows.Scan(&a.ID, &a.CreatedAt, &a.ExpiresAt, &ipHash, &userAgent); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		a.IPHash, a.UserAgent = ipHash.String, userAgent.String
		sessions = append(sessions, a)
	}
	return sessions, rows.Err()
}

// RevokeByID ends one of wallet's live sessions. Sessions of other wallets
// are reported as ErrInvalidSession.
func (s *Store) RevokeByID(ctx context.Context, wallet, id string) error {
	now := s.now().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE auth_session SET revoked_at = $1
		WHERE id = $2 AND wallet_address = $3 AND revoked_at IS NULL AND expires_at > $1
	`, now, id, wallet)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return expectRow(res)
}

// RevokeAll ends every live session of wallet except keepID and returns how many
func (s *Store) RevokeAll(ctx context.Context, wallet, keepID string) (int64, error) {
	now := s.now().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE auth_session SET revoked_at = $1
		WHERE wallet_address = $2 AND id <> $3 AND revoked_at IS NULL AND expires_at > $1
	`, now, wallet, keepID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count revoked sessions: %w", err)
	}
	return n, nil
}

// PurgeExpired deletes sessions that expired or were revoked before cutoff
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM auth_session
		WHERE expires_at <= $1 OR (revoked_at IS NOT NULL AND revoked_at <= $1)
	`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged sessions: %w", err)
	}
	return n, nil
}

// expectRow reports ErrInvalidSession when an update matched no live session
func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrInvalidSession
	}
	return nil
}
