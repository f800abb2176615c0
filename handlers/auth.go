// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danribes/pfm-solana-rust-sub010/auth"
	"github.com/danribes/pfm-solana-rust-sub010/cache"
	"github.com/danribes/pfm-solana-rust-sub010/cliparse"
	"github.com/danribes/pfm-solana-rust-sub010/metrics"
	"github.com/danribes/pfm-solana-rust-sub010/middleware"
	"github.com/danribes/pfm-solana-rust-sub010/models"
	"github.com/danribes/pfm-solana-rust-sub010/session"
)

// statusTTL is how long a wallet status lookup stays cached
const statusTTL = 5 * time.Minute

func statusKey(wallet string) string {
	return "wallet:" + wallet + ":status"
}

type AuthHandler struct {
	db         *sql.DB
	cfg        cliparse.Config
	sessions   *session.Store
	challenges *session.Challenges
	cache      cache.Store
	metrics    *metrics.Metrics
}

func NewAuthHandler(db *sql.DB, cfg cliparse.Config, sessions *session.Store, challenges *session.Challenges, store cache.Store, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		db:         db,
		cfg:        cfg,
		sessions:   sessions,
		challenges: challenges,
		cache:      store,
		metrics:    m,
	}
}

// writeAuthError maps wallet login failures to HTTP
func writeAuthError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrInvalidWalletAddress):
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid wallet address format")
	case errors.Is(err, session.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		middleware.ErrorResponse(w, http.StatusTooManyRequests, "Too many authentication attempts")
	case errors.Is(err, session.ErrNonceExpired):
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Nonce expired or not found")
	case errors.Is(err, session.ErrNonceMismatch):
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid nonce")
	case errors.Is(err, auth.ErrInvalidSignature):
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid signature")
	default:
		slog.Error(fallback, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, fallback)
	}
}

func (h *AuthHandler) meta(r *http.Request) session.Meta {
	return session.Meta{
		IPHash:    auth.HashIP(middleware.GetClientIP(r), h.cfg.SessionSecret),
		UserAgent: r.UserAgent(),
	}
}

func (h *AuthHandler) clearStatus(r *http.Request, wallet string) {
	if err := h.cache.Del(r.Context(), statusKey(wallet)); err != nil {
		slog.Warn("failed to clear wallet status", "wallet", wallet, "error", err)
	}
}

// Nonce handles POST /api/auth/wallet/nonce
func (h *AuthHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	var req models.NonceRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	resp, err := h.challenges.Issue(r.Context(), req.WalletAddress)
	h.metrics.Auth("nonce", err == nil)
	if err != nil {
		writeAuthError(w, err, "Failed to generate nonce")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// parseVerify decodes a signed challenge and checks that every part is present
func parseVerify(w http.ResponseWriter, req *models.VerifyRequest) bool {
	if err := auth.ValidateWalletAddress(req.WalletAddress); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid wallet address format")
		return false
	}
	if req.Signature == "" || req.Nonce == "" || req.Timestamp == 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "signature, nonce, and timestamp are required")
		return false
	}
	return true
}

// Verify handles POST /api/auth/wallet/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if !parseVerify(w, &req) {
		return
	}

	err := h.challenges.Redeem(r.Context(), req)
	h.metrics.Auth("verify", err == nil)
	if err != nil {
		writeAuthError(w, err, "Failed to verify signature")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.VerifyResponse{Verified: true})
}

// Connect handles POST /api/auth/wallet/connect
func (h *AuthHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req models.ConnectRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if !parseVerify(w, &req.VerifyRequest) {
		return
	}

	if err := h.challenges.Redeem(r.Context(), req.VerifyRequest); err != nil {
		h.metrics.Auth("connect", false)
		writeAuthError(w, err, "Failed to connect wallet")
		return
	}

	wallet := req.WalletAddress
	user, err := connectUser(r.Context(), h.db, wallet, req.UserData, time.Now().Unix())
	var perr profileError
	switch {
	case errors.As(err, &perr):
		middleware.ErrorResponse(w, http.StatusBadRequest, perr.Error())
		return
	case errors.Is(err, errUsernameTaken):
		middleware.ErrorResponse(w, http.StatusConflict, "Username is already taken")
		return
	case err != nil:
		slog.Error("failed to connect user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to connect wallet")
		return
	}
	if !user.IsActive {
		h.metrics.Auth("connect", false)
		middleware.ErrorResponse(w, http.StatusForbidden, "User account is inactive")
		return
	}

	token, sess, err := h.sessions.Create(r.Context(), wallet, h.meta(r))
	if err != nil {
		slog.Error("failed to create session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to connect wallet")
		return
	}
	h.metrics.Auth("connect", true)
	h.clearStatus(r, wallet)

	slog.Info("wallet connected", "wallet", wallet, "session_id", sess.ID)

	middleware.JSONResponse(w, http.StatusOK, models.SessionResponse{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		User:      user,
	})
}

// Disconnect handles POST /api/auth/wallet/disconnect
func (h *AuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	wallet := middleware.WalletFrom(r.Context())

	err := h.sessions.Revoke(r.Context(), middleware.BearerToken(r))
	if err != nil && !errors.Is(err, session.ErrInvalidSession) {
		slog.Error("failed to revoke session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to disconnect wallet")
		return
	}
	h.clearStatus(r, wallet)

	slog.Info("wallet disconnected", "wallet", wallet)
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Wallet disconnected successfully"})
}

// Refresh handles POST /api/auth/wallet/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	wallet := middleware.WalletFrom(r.Context())

	user, err := loadUser(r.Context(), h.db, wallet)
	if errors.Is(err, errUserNotFound) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "User not found")
		return
	}
	if err != nil {
		slog.Error("failed to load user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to refresh token")
		return
	}
	if !user.IsActive {
		middleware.ErrorResponse(w, http.StatusForbidden, "User account is inactive")
		return
	}

	token, sess, err := h.sessions.Rotate(r.Context(), middleware.BearerToken(r), h.meta(r))
	if errors.Is(err, session.ErrInvalidSession) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}
	if err != nil {
		slog.Error("failed to rotate session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to refresh token")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.SessionResponse{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		User:      user,
	})
}

// Status handles GET /api/auth/wallet/status/{wallet}
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathWallet(w, r, "wallet")
	if !ok {
		return
	}

	var status models.WalletStatus
	err := cache.GetJSON(r.Context(), h.cache, statusKey(wallet), &status)
	if err == nil {
		middleware.JSONResponse(w, http.StatusOK, status)
		return
	}
	if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("wallet status cache read failed", "wallet", wallet, "error", err)
	}

	user, err := loadUser(r.Context(), h.db, wallet)
	switch {
	case err == nil:
		status.LastLoginAt = user.LastLoginAt
		status.IsActive = user.IsActive
		status.HasProfile = user.Username != "" && user.Email != nil
	case !errors.Is(err, errUserNotFound):
		slog.Error("failed to load user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to get wallet status")
		return
	}

	status.Connected, err = h.sessions.HasActive(r.Context(), wallet)
	if err != nil {
		slog.Error("failed to check sessions", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to get wallet status")
		return
	}

	if err := cache.SetJSON(r.Context(), h.cache, statusKey(wallet), status, statusTTL); err != nil {
		slog.Warn("wallet status cache write failed", "wallet", wallet, "error", err)
	}

	middleware.JSONResponse(w, http.StatusOK, status)
}
