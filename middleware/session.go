// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danribes/pfm-solana-rust-sub010/models"
	"github.com/danribes/pfm-solana-rust-sub010/session"
)

// SessionLookup resolves a bearer token to its session
type SessionLookup interface {
	Lookup(ctx context.Context, token string) (models.Session, error)
}

type contextKey int

const sessionKey contextKey = iota

// BearerToken returns the token from an "Authorization: Bearer" header
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// WithSession stores sess in ctx
func WithSession(ctx context.Context, sess models.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFrom returns the session placed by RequireSession
func SessionFrom(ctx context.Context) (models.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(models.Session)
	return sess, ok
}

// WalletFrom returns the authenticated wallet address, or ""
func WalletFrom(ctx context.Context) string {
	sess, _ := SessionFrom(ctx)
	return sess.WalletAddress
}

// RequireSession rejects requests without a live bearer session
func RequireSession(sessions SessionLookup, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			ErrorResponse(w, http.StatusUnauthorized, "Authorization bearer token required")
			return
		}

		sess, err := sessions.Lookup(r.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrInvalidSession) {
				ErrorResponse(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}
			slog.Error("session lookup failed", "error", err)
			ErrorResponse(w, http.StatusInternalServerError, "Failed to verify session")
			return
		}

		next(w, r.WithContext(WithSession(r.Context(), sess)))
	}
}
