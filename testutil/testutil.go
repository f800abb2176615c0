// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danribes/pfm-solana-rust-sub010/auth"
	"github.com/danribes/pfm-solana-rust-sub010/cache"
	"github.com/danribes/pfm-solana-rust-sub010/cliparse"
	"github.com/danribes/pfm-solana-rust-sub010/db"
	"github.com/danribes/pfm-solana-rust-sub010/events"
	"github.com/danribes/pfm-solana-rust-sub010/ledger"
	"github.com/danribes/pfm-solana-rust-sub010/metrics"
	"github.com/danribes/pfm-solana-rust-sub010/models"
	"github.com/danribes/pfm-solana-rust-sub010/pda"
	"github.com/danribes/pfm-solana-rust-sub010/session"
)

// Epoch is the ledger clock's starting point in test environments
var Epoch = time.Unix(1_700_000_000, 0)

// SetupTestDB creates a fresh SQLite database with the full schema
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "test.db"), db.Retry{Attempts: 1})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(ctx, conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	cfg := cliparse.Defaults()
	cfg.DatabaseURL = "file:test.db"
	cfg.DatabaseType = "sqlite"
	cfg.SessionSecret = "test-session-secret"
	return cfg
}

// Wallet is an ed25519 keypair standing in for a browser wallet
type Wallet struct {
	Address string
	Key     ed25519.PrivateKey
}

// NewWallet generates a random wallet
func NewWallet(t *testing.T) Wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("Failed to generate wallet: %v", err)
	}
	return Wallet{Address: auth.WalletAddress(pub), Key: priv}
}

// SignChallenge answers a nonce challenge the way a wallet client would
func (w Wallet) SignChallenge(ch models.NonceResponse) models.VerifyRequest {
	return models.VerifyRequest{
		WalletAddress: w.Address,
		Signature:     auth.Sign(w.Key, ch.Message),
		Nonce:         ch.Nonce,
		Timestamp:     ch.Timestamp,
	}
}

// Env wires every service against one test database
type Env struct {
	DB         *sql.DB
	Config     cliparse.Config
	Ledger     *ledger.Service
	Sessions   *session.Store
	Challenges *session.Challenges
	Cache      *cache.MemoryStore
	Hub        *events.Hub
	Metrics    *metrics.Metrics

	mu  sync.Mutex
	now time.Time
}

// NewEnv builds an Env whose ledger runs on a controllable clock starting at Epoch.
// The event hub runs until the test ends.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	cfg := GetTestConfig()
	conn := SetupTestDB(t)

	deriver, err := pda.NewDeriver(cfg.ProgramID)
	if err != nil {
		t.Fatalf("Failed to build deriver: %v", err)
	}

	e := &Env{
		DB:      conn,
		Config:  cfg,
		Cache:   cache.NewMemoryStore(),
		Hub:     events.NewHub(),
		Metrics: metrics.New(),
		now:     Epoch,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	e.Ledger = ledger.NewService(conn, deriver,
		ledger.WithClock(e.Now),
		ledger.WithPublisher(events.Fanout{e.Hub, e.Metrics}),
	)
	e.Sessions = session.NewStore(conn, cfg.SessionSecret, cfg.SessionTTL)
	e.Challenges = session.NewChallenges(e.Cache, nil, cfg.NonceTTL)
	return e
}

// Now is the ledger clock
func (e *Env) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Advance moves the ledger clock forward
func (e *Env) Advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// Login creates the wallet's user if needed and returns a bearer token for it
func (e *Env) Login(t *testing.T, w Wallet) string {
	t.Helper()

	now := time.Now().Unix()
	_, err := e.DB.Exec(`
		INSERT INTO app_user (wallet_address, username, is_active, created_at, updated_at, last_login_at)
		VALUES ($1, $2, $3, $4, $4, $4)
		ON CONFLICT (wallet_address) DO NOTHING
	`, w.Address, "user_"+w.Address[:8], true, now)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	token, _, err := e.Sessions.Create(context.Background(), w.Address, session.Meta{})
	if err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}
	return token
}

// CreateCommunity creates a community administered by admin
func (e *Env) CreateCommunity(t *testing.T, admin Wallet, name string) models.Community {
	t.Helper()

	c, err := e.Ledger.CreateCommunity(context.Background(), admin.Address, models.CreateCommunityRequest{
		Name:        name,
		Description: "A test community",
		Config:      models.CommunityConfig{VotingPeriod: 3600, MaxOptions: 4},
	})
	if err != nil {
		t.Fatalf("Failed to create test community: %v", err)
	}
	return c
}

// AddMember joins wallet to the community and has the admin approve it
func (e *Env) AddMember(t *testing.T, c models.Community, w Wallet) {
	t.Helper()
	ctx := context.Background()

	if _, err := e.Ledger.JoinCommunity(ctx, c.Address, w.Address); err != nil {
		t.Fatalf("Failed to join community: %v", err)
	}
	if _, err := e.Ledger.ApproveMember(ctx, c.Address, c.Admin, w.Address, true); err != nil {
		t.Fatalf("Failed to approve member: %v", err)
	}
}

// CreateQuestion asks a question with the given options on the community's default deadline
func (e *Env) CreateQuestion(t *testing.T, c models.Community, creator Wallet, options ...string) models.VotingQuestion {
	t.Helper()

	q, err := e.Ledger.CreateVotingQuestion(context.Background(), c.Address, creator.Address, models.CreateQuestionRequest{
		Question: "Which option?",
		Options:  options,
	})
	if err != nil {
		t.Fatalf("Failed to create test question: %v", err)
	}
	return q
}

// BearerHeader builds the Authorization header for token
func BearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}

// AssertErrorCode checks the machine-readable code of a JSON error response
func AssertErrorCode(t *testing.T, w *httptest.ResponseRecorder, code string) {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if resp.Code != code {
		t.Errorf("Expected error code %q, got %q (%s)", code, resp.Code, resp.Message)
	}
}
