// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/danribes/pfm-solana-rust-sub010/events"
	"github.com/danribes/pfm-solana-rust-sub010/ledger"
	"github.com/danribes/pfm-solana-rust-sub010/metrics"
)

type StreamHandler struct {
	ledger  *ledger.Service
	hub     *events.Hub
	metrics *metrics.Metrics
}

func NewStreamHandler(svc *ledger.Service, hub *events.Hub, m *metrics.Metrics) *StreamHandler {
	return &StreamHandler{ledger: svc, hub: hub, metrics: m}
}

// Stream handles GET /api/communities/{address}/stream.
// It upgrades to a websocket and pushes the community's ledger events as JSON text frames.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	c, err := h.ledger.GetCommunity(r.Context(), r.PathValue("address"))
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to open event stream")
		return
	}

	// the API already answers any origin (see middleware.CORS)
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		slog.Warn("websocket upgrade failed", "community", c.Address, "error", err)
		return
	}
	defer conn.CloseNow()

	if h.metrics != nil {
		h.metrics.StreamClients.Inc()
		defer h.metrics.StreamClients.Dec()
	}

	slog.Info("stream opened", "community", c.Address)
	if err := h.hub.Stream(r.Context(), conn, c.Address); err != nil {
		slog.Warn("stream ended", "community", c.Address, "error", err)
		return
	}
	slog.Info("stream closed", "community", c.Address)
}
