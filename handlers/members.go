// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/danribes/pfm-solana-rust-sub010/ledger"
	"github.com/danribes/pfm-solana-rust-sub010/metrics"
	"github.com/danribes/pfm-solana-rust-sub010/middleware"
	"github.com/danribes/pfm-solana-rust-sub010/models"
)

type MemberHandler struct {
	ledger  *ledger.Service
	metrics *metrics.Metrics
}

func NewMemberHandler(svc *ledger.Service, m *metrics.Metrics) *MemberHandler {
	return &MemberHandler{ledger: svc, metrics: m}
}

// Join handles POST /api/communities/{address}/join
func (h *MemberHandler) Join(w http.ResponseWriter, r *http.Request) {
	wallet := middleware.WalletFrom(r.Context())
	m, err := h.ledger.JoinCommunity(r.Context(), r.PathValue("address"), wallet)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to join community")
		return
	}

	slog.Info("join requested", "community", m.Community, "wallet", wallet)
	middleware.JSONResponse(w, http.StatusCreated, m)
}

// ListMembers handles GET /api/communities/{address}/members
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	var status *uint8
	if name := r.URL.Query().Get("status"); name != "" {
		s, ok := models.ParseStatus(name)
		if !ok {
			middleware.ErrorResponse(w, http.StatusBadRequest, "status must be pending, approved, rejected or removed")
			return
		}
		status = &s
	}

	members, err := h.ledger.ListMembers(r.Context(), r.PathValue("address"), status)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to list members")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, members)
}

// GetMember handles GET /api/communities/{address}/members/{wallet}
func (h *MemberHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathWallet(w, r, "wallet")
	if !ok {
		return
	}

	m, err := h.ledger.GetMember(r.Context(), r.PathValue("address"), wallet)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to get member")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, m)
}

// Approve handles POST /api/communities/{address}/members/{wallet}/approve
func (h *MemberHandler) Approve(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathWallet(w, r, "wallet")
	if !ok {
		return
	}

	var req models.ApproveMemberRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Approve == nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "approve is required")
		return
	}

	m, err := h.ledger.ApproveMember(r.Context(), r.PathValue("address"), middleware.WalletFrom(r.Context()), wallet, *req.Approve)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to approve member")
		return
	}

	slog.Info("member reviewed", "community", m.Community, "wallet", wallet, "status", models.StatusName(m.Status))
	middleware.JSONResponse(w, http.StatusOK, m)
}

// Remove handles POST /api/communities/{address}/members/{wallet}/remove
func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathWallet(w, r, "wallet")
	if !ok {
		return
	}

	m, err := h.ledger.RemoveMember(r.Context(), r.PathValue("address"), middleware.WalletFrom(r.Context()), wallet)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to remove member")
		return
	}

	slog.Info("member removed", "community", m.Community, "wallet", wallet)
	middleware.JSONResponse(w, http.StatusOK, m)
}

// ChangeRole handles PUT /api/communities/{address}/members/{wallet}/role
func (h *MemberHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathWallet(w, r, "wallet")
	if !ok {
		return
	}

	var req models.ChangeRoleRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Role == nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "role is required")
		return
	}

	m, err := h.ledger.ChangeMemberRole(r.Context(), r.PathValue("address"), middleware.WalletFrom(r.Context()), wallet, *req.Role)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to change member role")
		return
	}

	slog.Info("member role changed", "community", m.Community, "wallet", wallet, "role", m.Role)
	middleware.JSONResponse(w, http.StatusOK, m)
}
