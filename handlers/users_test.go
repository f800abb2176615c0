// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/danribes/pfm-solana-rust-sub010/cache"
	"github.com/danribes/pfm-solana-rust-sub010/models"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/danribes/pfm-solana-rust-sub010/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"
)

func strPtr(s string) *string { return &s }

func TestValidateProfile(t *testing.T) {
	testCases := []struct {
		name    string
		update  models.UserProfileUpdate
		wantErr bool
	}{
		{"empty update", models.UserProfileUpdate{}, false},
		{"valid username", models.UserProfileUpdate{Username: strPtr("alice_01")}, false},
		{"username too short", models.UserProfileUpdate{Username: strPtr("ab")}, true},
		{"username too long", models.UserProfileUpdate{Username: strPtr(strings.Repeat("a", 33))}, true},
		{"username with spaces", models.UserProfileUpdate{Username: strPtr("alice smith")}, true},
		{"valid email", models.UserProfileUpdate{Email: strPtr("a@b.io")}, false},
		{"email without at", models.UserProfileUpdate{Email: strPtr("alice.example.com")}, true},
		{"clearing email", models.UserProfileUpdate{Email: strPtr("")}, false},
		{"bio at limit", models.UserProfileUpdate{Bio: strPtr(strings.Repeat("b", 500))}, false},
		{"bio too long", models.UserProfileUpdate{Bio: strPtr(strings.Repeat("b", 501))}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateProfile(tc.update)
			if (err != nil) != tc.wantErr {
				t.Errorf("validateProfile() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestApplyProfile(t *testing.T) {
	u := models.User{Username: "old", Email: strPtr("old@example.com"), Bio: strPtr("bio")}
	applyProfile(&u, models.UserProfileUpdate{
		Username:  strPtr("new"),
		Email:     strPtr(""),
		AvatarURL: strPtr("https://example.com/a.png"),
	})

	want := models.User{Username: "new", Bio: strPtr("bio"), AvatarURL: strPtr("https://example.com/a.png")}
	if diff := cmp.Diff(want, u); diff != "" {
		t.Errorf("applyProfile mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMe(t *testing.T) {
	env := testutil.NewEnv(t)
	h := NewUserHandler(env.DB, env.Ledger, env.Cache)
	wallet := testutil.NewWallet(t)
	env.Login(t, wallet)

	w := call(h.GetMe, asWallet(testutil.MakeRequest("GET", "/api/users/me", nil, nil), wallet.Address))
	testutil.AssertStatus(t, w, http.StatusOK)

	var u models.User
	testutil.AssertJSON(t, w, &u)
	if u.WalletAddress != wallet.Address {
		t.Errorf("Expected wallet %s, got %s", wallet.Address, u.WalletAddress)
	}

	stranger := testutil.NewWallet(t)
	w = call(h.GetMe, asWallet(testutil.MakeRequest("GET", "/api/users/me", nil, nil), stranger.Address))
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestUpdateMe(t *testing.T) {
	env := testutil.NewEnv(t)
	h := NewUserHandler(env.DB, env.Ledger, env.Cache)
	alice := testutil.NewWallet(t)
	bob := testutil.NewWallet(t)
	env.Login(t, alice)
	env.Login(t, bob)

	taken := "user_" + bob.Address[:8]
	testCases := []struct {
		name           string
		body           models.UserProfileUpdate
		expectedStatus int
	}{
		{"valid update", models.UserProfileUpdate{Username: strPtr("alice"), Email: strPtr("alice@example.com")}, http.StatusOK},
		{"invalid email", models.UserProfileUpdate{Email: strPtr("nope")}, http.StatusBadRequest},
		{"username taken", models.UserProfileUpdate{Username: &taken}, http.StatusConflict},
		{"keep own username", models.UserProfileUpdate{Username: strPtr("alice")}, http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := asWallet(testutil.MakeRequest("PUT", "/api/users/me", tc.body, nil), alice.Address)
			w := call(h.UpdateMe, req)
			testutil.AssertStatus(t, w, tc.expectedStatus)
		})
	}

	var username, email string
	env.DB.QueryRow("SELECT username, email FROM app_user WHERE wallet_address = $1", alice.Address).Scan(&username, &email)
	if username != "alice" || email != "alice@example.com" {
		t.Errorf("Expected stored profile alice/alice@example.com, got %s/%s", username, email)
	}
}

func TestUpdateMe_ClearsWalletStatus(t *testing.T) {
	env := testutil.NewEnv(t)
	h := NewUserHandler(env.DB, env.Ledger, env.Cache)
	wallet := testutil.NewWallet(t)
	env.Login(t, wallet)

	ctx := context.Background()
	if err := cache.SetJSON(ctx, env.Cache, statusKey(wallet.Address), models.WalletStatus{}, statusTTL); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	req := asWallet(testutil.MakeRequest("PUT", "/api/users/me", models.UserProfileUpdate{Email: strPtr("w@example.com")}, nil), wallet.Address)
	testutil.AssertStatus(t, call(h.UpdateMe, req), http.StatusOK)

	if _, err := env.Cache.Get(ctx, statusKey(wallet.Address)); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("Expected cached status to be dropped, got %v", err)
	}
}

func TestGetUser(t *testing.T) {
	env := testutil.NewEnv(t)
	h := NewUserHandler(env.DB, env.Ledger, env.Cache)
	wallet := testutil.NewWallet(t)
	env.Login(t, wallet)
	env.DB.Exec("UPDATE app_user SET email = $1 WHERE wallet_address = $2", "secret@example.com", wallet.Address)

	w := call(h.GetUser, testutil.MakeRequest("GET", "/api/users/"+wallet.Address, nil, nil), "wallet", wallet.Address)
	testutil.AssertStatus(t, w, http.StatusOK)
	if strings.Contains(w.Body.String(), "secret@example.com") {
		t.Error("Expected public profile to hide the email")
	}

	testCases := []struct {
		name           string
		wallet         string
		expectedStatus int
	}{
		{"unknown wallet", testutil.NewWallet(t).Address, http.StatusNotFound},
		{"malformed wallet", "0xabc", http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(h.GetUser, testutil.MakeRequest("GET", "/api/users/"+tc.wallet, nil, nil), "wallet", tc.wallet)
			testutil.AssertStatus(t, w, tc.expectedStatus)
		})
	}

	env.DB.Exec("UPDATE app_user SET is_active = $1 WHERE wallet_address = $2", false, wallet.Address)
	w = call(h.GetUser, testutil.MakeRequest("GET", "/api/users/"+wallet.Address, nil, nil), "wallet", wallet.Address)
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestGetMyMemberships(t *testing.T) {
	env := testutil.NewEnv(t)
	h := NewUserHandler(env.DB, env.Ledger, env.Cache)
	admin := testutil.NewWallet(t)
	member := testutil.NewWallet(t)

	c := env.CreateCommunity(t, admin, "Builders")
	env.AddMember(t, c, member)

	w := call(h.GetMyMemberships, asWallet(testutil.MakeRequest("GET", "/api/users/me/memberships", nil, nil), member.Address))
	testutil.AssertStatus(t, w, http.StatusOK)

	var members []models.Member
	testutil.AssertJSON(t, w, &members)
	if len(members) != 1 || members[0].Community != c.Address || members[0].Status != models.StatusApproved {
		t.Errorf("Expected one approved membership in %s, got %+v", c.Address, members)
	}
}

// A concurrent writer can claim a username between the check and the write.
// The unique index catches it and the caller sees errUsernameTaken.
func TestUsernameRaceMapsToConflict(t *testing.T) {
	const wallet = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	duplicate := &pq.Error{Code: "23505"}

	newMock := func(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
		t.Helper()
		conn, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("Failed to create sqlmock: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn, mock
	}
	userCols := []string{"wallet_address", "username", "email", "bio", "avatar_url", "is_active", "created_at", "updated_at", "last_login_at"}
	free := func() *sqlmock.Rows { return sqlmock.NewRows([]string{"count"}).AddRow(0) }

	t.Run("connect", func(t *testing.T) {
		conn, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM app_user WHERE wallet_address").WillReturnRows(sqlmock.NewRows(userCols))
		mock.ExpectQuery("SELECT COUNT").WillReturnRows(free())
		mock.ExpectExec("INSERT INTO app_user").WillReturnError(duplicate)
		mock.ExpectRollback()

		_, err := connectUser(context.Background(), conn, wallet, &models.UserProfileUpdate{Username: strPtr("alice")}, 1)
		if !errors.Is(err, errUsernameTaken) {
			t.Errorf("Expected errUsernameTaken, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("update", func(t *testing.T) {
		conn, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM app_user WHERE wallet_address").
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(wallet, "old", nil, nil, nil, true, int64(1), int64(1), nil))
		mock.ExpectQuery("SELECT COUNT").WillReturnRows(free())
		mock.ExpectExec("UPDATE app_user").WillReturnError(duplicate)
		mock.ExpectRollback()

		h := &UserHandler{db: conn}
		_, err := h.updateProfile(context.Background(), wallet, models.UserProfileUpdate{Username: strPtr("alice")})
		if !errors.Is(err, errUsernameTaken) {
			t.Errorf("Expected errUsernameTaken, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
}
