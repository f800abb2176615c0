// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danribes/pfm-solana-rust-sub010/middleware"
	"github.com/danribes/pfm-solana-rust-sub010/models"
	"github.com/danribes/pfm-solana-rust-sub010/testutil"
)

// asWallet attaches a session for wallet, as RequireSession would
func asWallet(req *http.Request, wallet string) *http.Request {
	return req.WithContext(middleware.WithSession(req.Context(), models.Session{ID: "test", WalletAddress: wallet}))
}

func ptr[T any](v T) *T { return &v }

// call runs h against a request with the given path values
func call(h http.HandlerFunc, req *http.Request, pathValues ...string) *httptest.ResponseRecorder {
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

// newAuthHandler builds an AuthHandler over env without a rate limiter
func newAuthHandler(env *testutil.Env) *AuthHandler {
	return NewAuthHandler(env.DB, env.Config, env.Sessions, env.Challenges, env.Cache, env.Metrics)
}

// login runs the nonce → sign → connect flow and returns the session response
func login(t *testing.T, h *AuthHandler, wallet testutil.Wallet, data *models.UserProfileUpdate) models.SessionResponse {
	t.Helper()

	w := call(h.Nonce, testutil.MakeRequest("POST", "/api/auth/wallet/nonce",
		models.NonceRequest{WalletAddress: wallet.Address}, nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	var ch models.NonceResponse
	testutil.AssertJSON(t, w, &ch)

	req := models.ConnectRequest{VerifyRequest: wallet.SignChallenge(ch), UserData: data}
	w = call(h.Connect, testutil.MakeRequest("POST", "/api/auth/wallet/connect", req, nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	var resp models.SessionResponse
	testutil.AssertJSON(t, w, &resp)
	return resp
}
