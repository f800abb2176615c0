// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"math"
	"net/http"

	"github.com/danribes/pfm-solana-rust-sub010/ledger"
	"github.com/danribes/pfm-solana-rust-sub010/metrics"
	"github.com/danribes/pfm-solana-rust-sub010/middleware"
	"github.com/danribes/pfm-solana-rust-sub010/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	defaultEventLimit = 50
	maxEventLimit     = 500
)

type CommunityHandler struct {
	ledger  *ledger.Service
	metrics *metrics.Metrics
}

func NewCommunityHandler(svc *ledger.Service, m *metrics.Metrics) *CommunityHandler {
	return &CommunityHandler{ledger: svc, metrics: m}
}

// CreateCommunity handles POST /api/communities
func (h *CommunityHandler) CreateCommunity(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCommunityRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	c, err := h.ledger.CreateCommunity(r.Context(), middleware.WalletFrom(r.Context()), req)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to create community")
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, c)
}

// ListCommunities handles GET /api/communities
func (h *CommunityHandler) ListCommunities(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if !ok {
		middleware.ErrorResponse(w, http.StatusBadRequest, "limit must be a number")
		return
	}
	offset, ok := queryInt(r, "offset", 0, 0, math.MaxInt32)
	if !ok {
		middleware.ErrorResponse(w, http.StatusBadRequest, "offset must be a number")
		return
	}

	communities, total, err := h.ledger.ListCommunities(r.Context(), r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to list communities")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ListCommunitiesResponse{
		Communities: communities,
		Total:       total,
		Limit:       limit,
		Offset:      offset,
	})
}

// GetCommunity handles GET /api/communities/{address}
func (h *CommunityHandler) GetCommunity(w http.ResponseWriter, r *http.Request) {
	c, err := h.ledger.GetCommunity(r.Context(), r.PathValue("address"))
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to get community")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, c)
}

// UpdateConfig handles PUT /api/communities/{address}/config
func (h *CommunityHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req models.CommunityConfig
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	c, err := h.ledger.UpdateCommunityConfig(r.Context(), r.PathValue("address"), middleware.WalletFrom(r.Context()), req)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to update community config")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, c)
}

// Dissolve handles POST /api/communities/{address}/dissolve
func (h *CommunityHandler) Dissolve(w http.ResponseWriter, r *http.Request) {
	c, err := h.ledger.DissolveCommunity(r.Context(), r.PathValue("address"), middleware.WalletFrom(r.Context()))
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to dissolve community")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, c)
}

// GetStats handles GET /api/communities/{address}/stats
func (h *CommunityHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context(), r.PathValue("address"))
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to get community stats")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, stats)
}

// GetEvents handles GET /api/communities/{address}/events
func (h *CommunityHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultEventLimit, 1, maxEventLimit)
	if !ok {
		middleware.ErrorResponse(w, http.StatusBadRequest, "limit must be a number")
		return
	}

	events, err := h.ledger.Events(r.Context(), r.PathValue("address"), limit)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to list events")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, events)
}
