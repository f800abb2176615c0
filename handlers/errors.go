// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danribes/pfm-solana-rust-sub010/auth"
	"github.com/danribes/pfm-solana-rust-sub010/ledger"
	"github.com/danribes/pfm-solana-rust-sub010/metrics"
	"github.com/danribes/pfm-solana-rust-sub010/middleware"
)

// statusForKind maps a ledger error kind to its HTTP status
func statusForKind(k ledger.Kind) int {
	switch k {
	case ledger.KindInvalid:
		return http.StatusBadRequest
	case ledger.KindForbidden:
		return http.StatusForbidden
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeLedgerError answers with the status and code of a ledger rule violation.
// Anything else is logged and reported as a 500 with fallback as the message.
func writeLedgerError(w http.ResponseWriter, m *metrics.Metrics, err error, fallback string) {
	if le, ok := ledger.AsError(err); ok {
		m.Reject(le.Code)
		middleware.CodedErrorResponse(w, statusForKind(le.Kind), le.Code, le.Message)
		return
	}
	slog.Error(fallback, "error", err)
	middleware.ErrorResponse(w, http.StatusInternalServerError, fallback)
}

// pathWallet reads and validates a wallet address path value
func pathWallet(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	wallet := r.PathValue(name)
	if err := auth.ValidateWalletAddress(wallet); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid wallet address format")
		return "", false
	}
	return wallet, true
}

// queryInt parses an optional integer query parameter clamped to [min, max]
func queryInt(r *http.Request, key string, def, min, max int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n, true
}
