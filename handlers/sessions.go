// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/danribes/pfm-solana-rust-sub010/middleware"
	"github.com/danribes/pfm-solana-rust-sub010/models"
	"github.com/danribes/pfm-solana-rust-sub010/session"
)

// ListSessions handles GET /api/auth/sessions
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.SessionFrom(r.Context())

	sessions, err := h.sessions.ListActive(r.Context(), current.WalletAddress)
	if err != nil {
		slog.Error("failed to list sessions", "wallet", current.WalletAddress, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to get active sessions")
		return
	}
	for i := range sessions {
		sessions[i].IsCurrent = sessions[i].ID == current.ID
	}

	middleware.JSONResponse(w, http.StatusOK, models.ActiveSessionsResponse{
		Sessions:         sessions,
		Total:            len(sessions),
		CurrentSessionID: current.ID,
	})
}

// RevokeSession handles DELETE /api/auth/sessions/{id}
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.SessionFrom(r.Context())
	id := r.PathValue("id")

	err := h.sessions.RevokeByID(r.Context(), current.WalletAddress, id)
	if errors.Is(err, session.ErrInvalidSession) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		slog.Error("failed to revoke session", "session_id", id, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to terminate session")
		return
	}
	h.clearStatus(r, current.WalletAddress)

	slog.Info("session terminated", "wallet", current.WalletAddress, "session_id", id, "by", current.ID)
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Session terminated successfully"})
}

// RevokeOtherSessions handles POST /api/auth/sessions/terminate-all.
// The calling session stays live.
func (h *AuthHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.SessionFrom(r.Context())

	n, err := h.sessions.RevokeAll(r.Context(), current.WalletAddress, current.ID)
	if err != nil {
		slog.Error("failed to revoke sessions", "wallet", current.WalletAddress, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to terminate sessions")
		return
	}

	slog.Info("other sessions terminated", "wallet", current.WalletAddress, "count", n, "kept", current.ID)
	middleware.JSONResponse(w, http.StatusOK, models.TerminateSessionsResponse{TerminatedCount: n})
}
