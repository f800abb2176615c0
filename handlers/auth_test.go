// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danribes/pfm-solana-rust-sub010/auth"
	"github.com/danribes/pfm-solana-rust-sub010/middleware"
	"github.com/danribes/pfm-solana-rust-sub010/models"
	"github.com/danribes/pfm-solana-rust-sub010/session"
	"github.com/danribes/pfm-solana-rust-sub010/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNonce(t *testing.T) {
	env := testutil.NewEnv(t)
	h := newAuthHandler(env)
	wallet := testutil.NewWallet(t)

	w := call(h.Nonce, testutil.MakeRequest("POST", "/api/auth/wallet/nonce",
		models.NonceRequest{WalletAddress: wallet.Address}, nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp models.NonceResponse
	testutil.AssertJSON(t, w, &resp)
	if len(resp.Nonce) != 64 {
		t.Errorf("Expected 64 hex chars of nonce, got %d", len(resp.Nonce))
	}
	if !strings.Contains(resp.Message, "Nonce: "+resp.Nonce) {
		t.Errorf("Expected message to embed the nonce, got %q", resp.Message)
	}
	if nonce, err := auth.ExtractNonce(resp.Message); err != nil || nonce != resp.Nonce {
		t.Errorf("Expected nonce to be extractable from message, got %q (%v)", nonce, err)
	}
}

func TestNonce_Errors(t *testing.T) {
	env := testutil.NewEnv(t)
	wallet := testutil.NewWallet(t)

	limited := session.NewChallenges(env.Cache, middleware.NewKeyedLimiter(1, time.Minute), time.Minute)
	h := NewAuthHandler(env.DB, env.Config, env.Sessions, limited, env.Cache, env.Metrics)

	w := call(h.Nonce, testutil.MakeRequest("POST", "/api/auth/wallet/nonce",
		models.NonceRequest{WalletAddress: wallet.Address}, nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	testCases := []struct {
		name           string
		body           interface{}
		expectedStatus int
	}{
		{"rate limited", models.NonceRequest{WalletAddress: wallet.Address}, http.StatusTooManyRequests},
		{"invalid wallet", models.NonceRequest{WalletAddress: "not-a-wallet"}, http.StatusBadRequest},
		{"invalid JSON", "{", http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(h.Nonce, testutil.MakeRequest("POST", "/api/auth/wallet/nonce", tc.body, nil))
			testutil.AssertStatus(t, w, tc.expectedStatus)
		})
	}
}

func TestVerify(t *testing.T) {
	env := testutil.NewEnv(t)
	h := newAuthHandler(env)
	wallet := testutil.NewWallet(t)
	other := testutil.NewWallet(t)

	issue := func() models.NonceResponse {
		ch, err := env.Challenges.Issue(context.Background(), wallet.Address)
		if err != nil {
			t.Fatalf("Failed to issue challenge: %v", err)
		}
		return ch
	}

	testCases := []struct {
		name           string
		build          func(ch models.NonceResponse) models.VerifyRequest
		expectedStatus int
	}{
		{"valid signature", wallet.SignChallenge, http.StatusOK},
		{"signed by another wallet", func(ch models.NonceResponse) models.VerifyRequest {
			req := other.SignChallenge(ch)
			req.WalletAddress = wallet.Address
			return req
		}, http.StatusUnauthorized},
		{"stale nonce", func(ch models.NonceResponse) models.VerifyRequest {
			req := wallet.SignChallenge(ch)
			req.Nonce = strings.Repeat("0", 64)
			return req
		}, http.StatusUnauthorized},
		{"missing signature", func(ch models.NonceResponse) models.VerifyRequest {
			req := wallet.SignChallenge(ch)
			req.Signature = ""
			return req
		}, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(h.Verify, testutil.MakeRequest("POST", "/api/auth/wallet/verify", tc.build(issue()), nil))
			testutil.AssertStatus(t, w, tc.expectedStatus)
		})
	}

	// no outstanding challenge at all
	req := wallet.SignChallenge(issue())
	call(h.Verify, testutil.MakeRequest("POST", "/api/auth/wallet/verify", req, nil))
	w := call(h.Verify, testutil.MakeRequest("POST", "/api/auth/wallet/verify", req, nil))
	testutil.AssertStatus(t, w, http.StatusUnauthorized)
}

func TestConnect_CreatesUserAndSession(t *testing.T) {
	env := testutil.NewEnv(t)
	h := newAuthHandler(env)
	wallet := testutil.NewWallet(t)

	email := "alice@example.com"
	resp := login(t, h, wallet, &models.UserProfileUpdate{Email: &email})

	if resp.Token == "" {
		t.Fatal("Expected a session token")
	}
	if resp.User.Username != "user_"+wallet.Address[:8] {
		t.Errorf("Expected default username, got %q", resp.User.Username)
	}
	if resp.User.Email == nil || *resp.User.Email != email {
		t.Errorf("Expected email from user_data, got %v", resp.User.Email)
	}
	if resp.User.LastLoginAt == nil {
		t.Error("Expected last_login_at to be set")
	}

	sess, err := env.Sessions.Lookup(context.Background(), resp.Token)
	if err != nil {
		t.Fatalf("Expected token to resolve: %v", err)
	}
	if sess.WalletAddress != wallet.Address {
		t.Errorf("Expected session for %s, got %s", wallet.Address, sess.WalletAddress)
	}

	// second login keeps the profile and ignores user_data
	other := "other@example.com"
	again := login(t, h, wallet, &models.UserProfileUpdate{Email: &other})
	if again.User.Email == nil || *again.User.Email != email {
		t.Errorf("Expected existing email to be kept, got %v", again.User.Email)
	}
	if again.Token == resp.Token {
		t.Error("Expected a fresh token per login")
	}

	var users int
	env.DB.QueryRow("SELECT COUNT(*) FROM app_user").Scan(&users)
	if users != 1 {
		t.Errorf("Expected 1 user, got %d", users)
	}
}

func TestConnect_Rejections(t *testing.T) {
	env := testutil.NewEnv(t)
	h := newAuthHandler(env)
	wallet := testutil.NewWallet(t)

	// replayed challenge
	ch, _ := env.Challenges.Issue(context.Background(), wallet.Address)
	req := models.ConnectRequest{VerifyRequest: wallet.SignChallenge(ch)}
	w := call(h.Connect, testutil.MakeRequest("POST", "/api/auth/wallet/connect", req, nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	w = call(h.Connect, testutil.MakeRequest("POST", "/api/auth/wallet/connect", req, nil))
	testutil.AssertStatus(t, w, http.StatusUnauthorized)

	// invalid profile data on first login
	fresh := testutil.NewWallet(t)
	bad := "x"
	ch, _ = env.Challenges.Issue(context.Background(), fresh.Address)
	req = models.ConnectRequest{VerifyRequest: fresh.SignChallenge(ch), UserData: &models.UserProfileUpdate{Username: &bad}}
	w = call(h.Connect, testutil.MakeRequest("POST", "/api/auth/wallet/connect", req, nil))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	// inactive account
	if _, err := env.DB.Exec("UPDATE app_user SET is_active = $1 WHERE wallet_address = $2", false, wallet.Address); err != nil {
		t.Fatalf("Failed to deactivate user: %v", err)
	}
	ch, _ = env.Challenges.Issue(context.Background(), wallet.Address)
	req = models.ConnectRequest{VerifyRequest: wallet.SignChallenge(ch)}
	w = call(h.Connect, testutil.MakeRequest("POST", "/api/auth/wallet/connect", req, nil))
	testutil.AssertStatus(t, w, http.StatusForbidden)
}

func TestConnect_DefaultUsernameAlreadyTaken(t *testing.T) {
	env := testutil.NewEnv(t)
	h := newAuthHandler(env)
	users := NewUserHandler(env.DB, env.Ledger, env.Cache)
	victim := testutil.NewWallet(t)
	squatter := testutil.NewWallet(t)
	env.Login(t, squatter)

	squatted := "user_" + victim.Address[:8]
	req := asWallet(testutil.MakeRequest("PUT", "/api/users/me", models.UserProfileUpdate{Username: &squatted}, nil), squatter.Address)
	testutil.AssertStatus(t, call(users.UpdateMe, req), http.StatusOK)

	resp := login(t, h, victim, nil)
	if want := "user_" + victim.Address[:16]; resp.User.Username != want {
		t.Errorf("Expected fallback username %q, got %q", want, resp.User.Username)
	}

	// every prefix taken still leaves a random name
	late := testutil.NewWallet(t)
	for i, n := range []int{8, 16, 27} {
		holder := testutil.NewWallet(t)
		if _, err := env.DB.Exec(`INSERT INTO app_user (wallet_address, username, created_at, updated_at) VALUES ($1, $2, 1, 1)`,
			holder.Address, "user_"+late.Address[:n]); err != nil {
			t.Fatalf("Failed to seed holder %d: %v", i, err)
		}
	}
	resp = login(t, h, late, nil)
	if !strings.HasPrefix(resp.User.Username, "user_"+late.Address[:8]+"_") {
		t.Errorf("Expected random suffix after %s, got %q", late.Address[:8], resp.User.Username)
	}

	// an explicit request for a held name is still a conflict
	asked := testutil.NewWallet(t)
	ch, _ := env.Challenges.Issue(context.Background(), asked.Address)
	connect := models.ConnectRequest{VerifyRequest: asked.SignChallenge(ch), UserData: &models.UserProfileUpdate{Username: &squatted}}
	w := call(h.Connect, testutil.MakeRequest("POST", "/api/auth/wallet/connect", connect, nil))
	testutil.AssertStatus(t, w, http.StatusConflict)
}

func TestDisconnect(t *testing.T) {
	env := testutil.NewEnv(t)
	h := newAuthHandler(env)
	wallet := testutil.NewWallet(t)
	resp := login(t, h, wallet, nil)

	req := asWallet(testutil.MakeRequest("POST", "/api/auth/wallet/disconnect", nil, testutil.BearerHeader(resp.Token)), wallet.Address)
	w := call(h.Disconnect, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	if _, err := env.Sessions.Lookup(context.Background(), resp.Token); err == nil {
		t.Error("Expected the session to be revoked")
	}
}

func TestRefresh(t *testing.T) {
	env := testutil.NewEnv(t)
	h := newAuthHandler(env)
	wallet := testutil.NewWallet(t)
	resp := login(t, h, wallet, nil)

	req := asWallet(testutil.MakeRequest("POST", "/api/auth/wallet/refresh", nil, testutil.BearerHeader(resp.Token)), wallet.Address)
	w := call(h.Refresh, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	var refreshed models.SessionResponse
	testutil.AssertJSON(t, w, &refreshed)
	if refreshed.Token == resp.Token {
		t.Error("Expected a rotated token")
	}
	if _, err := env.Sessions.Lookup(context.Background(), resp.Token); err == nil {
		t.Error("Expected the old token to stop working")
	}

	// inactive users cannot refresh
	env.DB.Exec("UPDATE app_user SET is_active = $1 WHERE wallet_address = $2", false, wallet.Address)
	req = asWallet(testutil.MakeRequest("POST", "/api/auth/wallet/refresh", nil, testutil.BearerHeader(refreshed.Token)), wallet.Address)
	w = call(h.Refresh, req)
	testutil.AssertStatus(t, w, http.StatusForbidden)
}

func TestStatus(t *testing.T) {
	env := testutil.NewEnv(t)
	h := newAuthHandler(env)
	wallet := testutil.NewWallet(t)

	getStatus := func() models.WalletStatus {
		t.Helper()
		w := call(h.Status, testutil.MakeRequest("GET", "/api/auth/wallet/status/"+wallet.Address, nil, nil),
			"wallet", wallet.Address)
		testutil.AssertStatus(t, w, http.StatusOK)
		var status models.WalletStatus
		testutil.AssertJSON(t, w, &status)
		return status
	}

	if s := getStatus(); s.Connected || s.IsActive || s.HasProfile {
		t.Errorf("Expected unknown wallet to be disconnected, got %+v", s)
	}

	// a session opened behind the cache's back is not visible until the entry expires
	env.Login(t, wallet)
	if s := getStatus(); s.Connected {
		t.Error("Expected cached status to be served")
	}

	// connecting through the API drops the cached entry
	email := "bob@example.com"
	resp := login(t, h, wallet, &models.UserProfileUpdate{Email: &email})
	s := getStatus()
	if !s.Connected || !s.IsActive {
		t.Errorf("Expected connected active wallet, got %+v", s)
	}
	if s.HasProfile {
		t.Error("Expected no profile: user_data only seeds new users and this one existed")
	}

	req := asWallet(testutil.MakeRequest("POST", "/api/auth/wallet/disconnect", nil, testutil.BearerHeader(resp.Token)), wallet.Address)
	call(h.Disconnect, req)

	// the session created by env.Login is still live
	if s := getStatus(); !s.Connected {
		t.Error("Expected the remaining session to keep the wallet connected")
	}

	w := call(h.Status, testutil.MakeRequest("GET", "/api/auth/wallet/status/bad", nil, nil), "wallet", "bad")
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestAuthMetrics(t *testing.T) {
	env := testutil.NewEnv(t)
	h := newAuthHandler(env)
	wallet := testutil.NewWallet(t)
	login(t, h, wallet, nil)

	ch, _ := env.Challenges.Issue(context.Background(), wallet.Address)
	req := models.VerifyRequest{WalletAddress: wallet.Address, Nonce: ch.Nonce, Timestamp: ch.Timestamp, Signature: auth.Sign(wallet.Key, "wrong")}
	call(h.Verify, testutil.MakeRequest("POST", "/api/auth/wallet/verify", req, nil))

	testCases := []struct {
		step, outcome string
		want          float64
	}{
		{"nonce", "success", 1},
		{"connect", "success", 1},
		{"verify", "failure", 1},
	}
	for _, tc := range testCases {
		got := promtest.ToFloat64(env.Metrics.AuthAttempts.WithLabelValues(tc.step, tc.outcome))
		if got != tc.want {
			t.Errorf("Expected %v %s/%s attempts, got %v", tc.want, tc.step, tc.outcome, got)
		}
	}
}
