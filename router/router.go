// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danribes/pfm-solana-rust-sub010/cache"
	"github.com/danribes/pfm-solana-rust-sub010/cliparse"
	"github.com/danribes/pfm-solana-rust-sub010/events"
	"github.com/danribes/pfm-solana-rust-sub010/handlers"
	"github.com/danribes/pfm-solana-rust-sub010/ledger"
	"github.com/danribes/pfm-solana-rust-sub010/metrics"
	"github.com/danribes/pfm-solana-rust-sub010/middleware"
	"github.com/danribes/pfm-solana-rust-sub010/session"
)

// Banner is served on GET /
const Banner = "pfm community voting API v1"

// Deps are the services the routes are built from
type Deps struct {
	DB         *sql.DB
	Config     cliparse.Config
	Ledger     *ledger.Service
	Sessions   *session.Store
	Challenges *session.Challenges
	Cache      cache.Store
	Hub        *events.Hub
	Metrics    *metrics.Metrics

	// LoginLimiter throttles the wallet auth endpoints per client IP; nil disables it
	LoginLimiter *middleware.KeyedLimiter
}

func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(d.DB, d.Config, d.Sessions, d.Challenges, d.Cache, d.Metrics)
	userHandler := handlers.NewUserHandler(d.DB, d.Ledger, d.Cache)
	communityHandler := handlers.NewCommunityHandler(d.Ledger, d.Metrics)
	memberHandler := handlers.NewMemberHandler(d.Ledger, d.Metrics)
	questionHandler := handlers.NewQuestionHandler(d.Ledger, d.Cache, d.Metrics)
	streamHandler := handlers.NewStreamHandler(d.Ledger, d.Hub, d.Metrics)

	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, middleware.WithLogging(middleware.WithMetrics(d.Metrics, pattern, h)))
	}
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.RequireSession(d.Sessions, h)
	}
	limited := func(h http.HandlerFunc) http.HandlerFunc {
		if d.LoginLimiter == nil {
			return h
		}
		return middleware.RateLimitByIP(d.LoginLimiter, h)
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	// Wallet authentication
	handle("POST /api/auth/wallet/nonce", limited(authHandler.Nonce))
	handle("POST /api/auth/wallet/verify", limited(authHandler.Verify))
	handle("POST /api/auth/wallet/connect", limited(authHandler.Connect))
	handle("POST /api/auth/wallet/disconnect", authed(authHandler.Disconnect))
	handle("POST /api/auth/wallet/refresh", authed(authHandler.Refresh))
	handle("GET /api/auth/wallet/status/{wallet}", authHandler.Status)

	// Session management
	handle("GET /api/auth/sessions", authed(authHandler.ListSessions))
	handle("DELETE /api/auth/sessions/{id}", authed(authHandler.RevokeSession))
	handle("POST /api/auth/sessions/terminate-all", authed(authHandler.RevokeOtherSessions))

	// Users
	handle("GET /api/users/me", authed(userHandler.GetMe))
	handle("PUT /api/users/me", authed(userHandler.UpdateMe))
	handle("GET /api/users/me/memberships", authed(userHandler.GetMyMemberships))
	handle("GET /api/users/{wallet}", userHandler.GetUser)

	// Communities
	handle("POST /api/communities", authed(communityHandler.CreateCommunity))
	handle("GET /api/communities", communityHandler.ListCommunities)
	handle("GET /api/communities/{address}", communityHandler.GetCommunity)
	handle("PUT /api/communities/{address}/config", authed(communityHandler.UpdateConfig))
	handle("POST /api/communities/{address}/dissolve", authed(communityHandler.Dissolve))
	handle("GET /api/communities/{address}/stats", communityHandler.GetStats)
	handle("GET /api/communities/{address}/events", communityHandler.GetEvents)
	handle("GET /api/communities/{address}/stream", streamHandler.Stream)

	// Members
	handle("POST /api/communities/{address}/join", authed(memberHandler.Join))
	handle("GET /api/communities/{address}/members", memberHandler.ListMembers)
	handle("GET /api/communities/{address}/members/{wallet}", memberHandler.GetMember)
	handle("POST /api/communities/{address}/members/{wallet}/approve", authed(memberHandler.Approve))
	handle("POST /api/communities/{address}/members/{wallet}/remove", authed(memberHandler.Remove))
	handle("PUT /api/communities/{address}/members/{wallet}/role", authed(memberHandler.ChangeRole))

	// Voting questions
	handle("POST /api/communities/{address}/questions", authed(questionHandler.CreateQuestion))
	handle("GET /api/communities/{address}/questions", questionHandler.ListQuestions)
	handle("GET /api/questions/{address}", questionHandler.GetQuestion)
	handle("POST /api/questions/{address}/votes", authed(questionHandler.CastVote))
	handle("GET /api/questions/{address}/votes/me", authed(questionHandler.GetMyVote))
	handle("GET /api/questions/{address}/results", questionHandler.GetResults)
	handle("POST /api/questions/{address}/close", authed(questionHandler.CloseQuestion))

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(Banner))
	})

	return mux
}
