// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging and Metrics

	mux.HandleFunc(pattern, middleware.WithLogging(middleware.WithMetrics(m, pattern, handler)))

WithLogging logs method, path, status and duration_ms. WithMetrics counts
requests by route pattern and status code; a nil *metrics.Metrics disables it.

# Sessions

RequireSession resolves the bearer token and stores the session on the
request context:

	mux.HandleFunc("GET /api/users/me", middleware.RequireSession(sessions, h.GetMe))

	wallet := middleware.WalletFrom(r.Context())

Missing, unknown, expired or revoked tokens get a 401.

# Rate Limiting

KeyedLimiter keeps one token bucket per key. RateLimitByIP answers 429 with
Retry-After once a client IP runs out. Sweep forgets idle keys.

# CORS Middleware

	server := http.Server{
		Handler: middleware.CORS(mux),
	}

Allows methods GET, POST, PUT, DELETE, OPTIONS with headers
Content-Type and Authorization.

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")
	middleware.CodedErrorResponse(w, http.StatusConflict, "AlreadyVoted", "message")

	var req models.CastVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

# Client IP Extraction

	ip := middleware.GetClientIP(r)

Honors X-Forwarded-For and X-Real-IP. Used for rate limiting and the
hashed IP stored with each session.
*/
package middleware
