// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/danribes/pfm-solana-rust-sub010/auth"
	"github.com/danribes/pfm-solana-rust-sub010/cache"
	"github.com/danribes/pfm-solana-rust-sub010/db"
	"github.com/danribes/pfm-solana-rust-sub010/ledger"
	"github.com/danribes/pfm-solana-rust-sub010/middleware"
	"github.com/danribes/pfm-solana-rust-sub010/models"
)

const userColumns = `wallet_address, username, email, bio, avatar_url, is_active, created_at, updated_at, last_login_at`

const maxBioLen = 500

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)

var (
	errUserNotFound  = errors.New("user not found")
	errUsernameTaken = errors.New("username is already taken")
)

// profileError is a user-facing validation failure
type profileError string

func (e profileError) Error() string { return string(e) }

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanUser(row *sql.Row) (models.User, error) {
	var u models.User
	var email, bio, avatar sql.NullString
	var lastLogin sql.NullInt64
	err := row.Scan(&u.WalletAddress, &u.Username, &email, &bio, &avatar, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if err != nil {
		return models.User{}, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	if bio.Valid {
		u.Bio = &bio.String
	}
	if avatar.Valid {
		u.AvatarURL = &avatar.String
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Int64
	}
	return u, nil
}

func loadUser(ctx context.Context, q queryRower, wallet string) (models.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_user WHERE wallet_address = $1`, wallet))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, errUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

// validateProfile checks the fields present in an update
func validateProfile(p models.UserProfileUpdate) error {
	if p.Username != nil && !usernameRe.MatchString(*p.Username) {
		return profileError("Username must be 3-32 characters of letters, numbers, underscores and hyphens")
	}
	if p.Email != nil && *p.Email != "" && !strings.Contains(*p.Email, "@") {
		return profileError("Invalid email format")
	}
	if p.Bio != nil && len(*p.Bio) > maxBioLen {
		return profileError("Bio must be at most 500 characters")
	}
	return nil
}

// applyProfile copies the present fields onto u. Empty strings clear optional fields.
func applyProfile(u *models.User, p models.UserProfileUpdate) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	u.Email = replaceOptional(u.Email, p.Email)
	u.Bio = replaceOptional(u.Bio, p.Bio)
	u.AvatarURL = replaceOptional(u.AvatarURL, p.AvatarURL)
}

func replaceOptional(cur, next *string) *string {
	if next == nil {
		return cur
	}
	if *next == "" {
		return nil
	}
	v := *next
	return &v
}

func usernameTaken(ctx context.Context, q queryRower, username, wallet string) error {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM app_user WHERE username = $1 AND wallet_address <> $2`,
		username, wallet).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if n > 0 {
		return errUsernameTaken
	}
	return nil
}

// defaultUsername picks a generated name for wallet that nobody holds yet.
// Longer wallet prefixes come first, then a random suffix.
func defaultUsername(ctx context.Context, q queryRower, wallet string) (string, error) {
	for _, n := range []int{8, 16, 27} {
		name := "user_" + wallet[:min(n, len(wallet))]
		err := usernameTaken(ctx, q, name, wallet)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, errUsernameTaken) {
			return "", err
		}
	}
	suffix, err := auth.GenerateID(4)
	if err != nil {
		return "", err
	}
	return "user_" + wallet[:8] + "_" + suffix, nil
}

// connectUser creates the wallet's user on first login, or stamps last_login_at.
// Profile data only seeds a new user.
func connectUser(ctx context.Context, conn *sql.DB, wallet string, data *models.UserProfileUpdate, now int64) (models.User, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	u, err := loadUser(ctx, tx, wallet)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE app_user SET last_login_at = $1, updated_at = $1 WHERE wallet_address = $2`,
			now, wallet); err != nil {
			return models.User{}, fmt.Errorf("failed to update user: %w", err)
		}
		u.LastLoginAt, u.UpdatedAt = &now, now

	case errors.Is(err, errUserNotFound):
		u = models.User{
			WalletAddress: wallet,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
			LastLoginAt:   &now,
		}
		if data != nil {
			if err := validateProfile(*data); err != nil {
				return models.User{}, err
			}
			applyProfile(&u, *data)
		}
		// only a username the client asked for can conflict
		if u.Username != "" {
			if err := usernameTaken(ctx, tx, u.Username, wallet); err != nil {
				return models.User{}, err
			}
		} else if u.Username, err = defaultUsername(ctx, tx, wallet); err != nil {
			return models.User{}, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO app_user (wallet_address, username, email, bio, avatar_url, is_active, created_at, updated_at, last_login_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, u.WalletAddress, u.Username, u.Email, u.Bio, u.AvatarURL, u.IsActive, u.CreatedAt, u.UpdatedAt, now); err != nil {
			if db.IsUniqueViolation(err) {
				return models.User{}, errUsernameTaken
			}
			return models.User{}, fmt.Errorf("failed to create user: %w", err)
		}

	default:
		return models.User{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.User{}, fmt.Errorf("failed to commit: %w", err)
	}
	return u, nil
}

type UserHandler struct {
	db     *sql.DB
	ledger *ledger.Service
	cache  cache.Store
}

func NewUserHandler(conn *sql.DB, svc *ledger.Service, store cache.Store) *UserHandler {
	return &UserHandler{db: conn, ledger: svc, cache: store}
}

// GetMe handles GET /api/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	u, err := loadUser(r.Context(), h.db, middleware.WalletFrom(r.Context()))
	if errors.Is(err, errUserNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		slog.Error("failed to load user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to get user profile")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, u)
}

// UpdateMe handles PUT /api/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	wallet := middleware.WalletFrom(r.Context())

	var req models.UserProfileUpdate
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validateProfile(req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.updateProfile(r.Context(), wallet, req)
	switch {
	case errors.Is(err, errUserNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, errUsernameTaken):
		middleware.ErrorResponse(w, http.StatusConflict, "Username is already taken")
		return
	case err != nil:
		slog.Error("failed to update user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update user profile")
		return
	}

	// has_profile depends on the email
	if err := h.cache.Del(r.Context(), statusKey(wallet)); err != nil {
		slog.Warn("failed to clear wallet status", "wallet", wallet, "error", err)
	}

	slog.Info("profile updated", "wallet", wallet)
	middleware.JSONResponse(w, http.StatusOK, u)
}

func (h *UserHandler) updateProfile(ctx context.Context, wallet string, req models.UserProfileUpdate) (models.User, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	u, err := loadUser(ctx, tx, wallet)
	if err != nil {
		return models.User{}, err
	}
	applyProfile(&u, req)
	if req.Username != nil {
		if err := usernameTaken(ctx, tx, u.Username, wallet); err != nil {
			return models.User{}, err
		}
	}
	u.UpdatedAt = time.Now().Unix()

	_, err = tx.ExecContext(ctx, `
		UPDATE app_user SET username = $1, email = $2, bio = $3, avatar_url = $4, updated_at = $5
		WHERE wallet_address = $6
	`, u.Username, u.Email, u.Bio, u.AvatarURL, u.UpdatedAt, wallet)
	if db.IsUniqueViolation(err) {
		return models.User{}, errUsernameTaken
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to update user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.User{}, fmt.Errorf("failed to commit: %w", err)
	}
	return u, nil
}

// GetMyMemberships handles GET /api/users/me/memberships
func (h *UserHandler) GetMyMemberships(w http.ResponseWriter, r *http.Request) {
	members, err := h.ledger.ListMemberships(r.Context(), middleware.WalletFrom(r.Context()))
	if err != nil {
		slog.Error("failed to list memberships", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to list memberships")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, members)
}

// GetUser handles GET /api/users/{wallet}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathWallet(w, r, "wallet")
	if !ok {
		return
	}

	u, err := loadUser(r.Context(), h.db, wallet)
	if errors.Is(err, errUserNotFound) || (err == nil && !u.IsActive) {
		middleware.ErrorResponse(w, http.StatusNotFound, "User profile is not available")
		return
	}
	if err != nil {
		slog.Error("failed to load user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to get user profile")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.PublicProfile{
		WalletAddress: u.WalletAddress,
		Username:      u.Username,
		Bio:           u.Bio,
		AvatarURL:     u.AvatarURL,
		CreatedAt:     u.CreatedAt,
	})
}
