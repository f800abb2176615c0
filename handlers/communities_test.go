// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danribes/pfm-solana-rust-sub010/ledger"
	"github.com/danribes/pfm-solana-rust-sub010/models"
	"github.com/danribes/pfm-solana-rust-sub010/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCreateCommunity(t *testing.T) {
	env := testutil.NewEnv(t)
	h := NewCommunityHandler(env.Ledger, env.Metrics)
	admin := testutil.NewWallet(t)

	testCases := []struct {
		name           string
		body           interface{}
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "valid community",
			body: models.CreateCommunityRequest{
				Name: "Solana Builders", Description: "Weekly votes",
				Config: models.CommunityConfig{VotingPeriod: 86400, MaxOptions: 4},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing name",
			body:           models.CreateCommunityRequest{Config: models.CommunityConfig{VotingPeriod: 60, MaxOptions: 2}},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "NameRequired",
		},
		{
			name: "name too long",
			body: models.CreateCommunityRequest{
				Name:   strings.Repeat("n", ledger.MaxNameLen+1),
				Config: models.CommunityConfig{VotingPeriod: 60, MaxOptions: 2},
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "NameTooLong",
		},
		{
			name:           "too many options",
			body:           models.CreateCommunityRequest{Name: "x", Config: models.CommunityConfig{VotingPeriod: 60, MaxOptions: 5}},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "InvalidMaxOptions",
		},
		{
			name:           "invalid JSON",
			body:           "{",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := asWallet(testutil.MakeRequest("POST", "/api/communities", tc.body, nil), admin.Address)
			w := call(h.CreateCommunity, req)
			testutil.AssertStatus(t, w, tc.expectedStatus)
			if tc.expectedCode != "" {
				testutil.AssertErrorCode(t, w, tc.expectedCode)
			}
		})
	}

	communities, _, _ := env.Ledger.ListCommunities(context.Background(), "", 10, 0)
	if len(communities) != 1 {
		t.Fatalf("Expected 1 community, got %d", len(communities))
	}
	c := communities[0]
	if c.Admin != admin.Address || c.MemberCount != 1 {
		t.Errorf("Expected admin %s with 1 member, got %s with %d", admin.Address, c.Admin, c.MemberCount)
	}

	if got := promtest.ToFloat64(env.Metrics.LedgerRejects.WithLabelValues("NameRequired")); got != 1 {
		t.Errorf("Expected 1 NameRequired rejection counted, got %v", got)
	}
}

func TestListCommunities(t *testing.T) {
	env := testutil.NewEnv(t)
	h := NewCommunityHandler(env.Ledger, env.Metrics)
	admin := testutil.NewWallet(t)

	for _, name := range []string{"Alpha DAO", "Beta Guild", "alphabet soup"} {
		env.CreateCommunity(t, admin, name)
		env.Advance(time.Second)
	}

	testCases := []struct {
		name          string
		query         string
		expectedTotal int
		expectedLen   int
	}{
		{"all", "", 3, 3},
		{"search is case insensitive", "?search=ALPHA", 2, 2},
		{"paged", "?limit=1&offset=1", 3, 1},
		{"limit clamped", "?limit=1000", 3, 3},
		{"no match", "?search=gamma", 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(h.ListCommunities, testutil.MakeRequest("GET", "/api/communities"+tc.query, nil, nil))
			testutil.AssertStatus(t, w, http.StatusOK)

			var resp models.ListCommunitiesResponse
			testutil.AssertJSON(t, w, &resp)
			if resp.Total != tc.expectedTotal || len(resp.Communities) != tc.expectedLen {
				t.Errorf("Expected total %d / len %d, got %d / %d", tc.expectedTotal, tc.expectedLen, resp.Total, len(resp.Communities))
			}
		})
	}

	w := call(h.ListCommunities, testutil.MakeRequest("GET", "/api/communities?limit=abc", nil, nil))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestGetCommunity(t *testing.T) {
	env := testutil.NewEnv(t)
	h := NewCommunityHandler(env.Ledger, env.Metrics)
	c := env.CreateCommunity(t, testutil.NewWallet(t), "Readers")

	w := call(h.GetCommunity, testutil.MakeRequest("GET", "/api/communities/"+c.Address, nil, nil), "address", c.Address)
	testutil.AssertStatus(t, w, http.StatusOK)

	var got models.Community
	testutil.AssertJSON(t, w, &got)
	if got.Name != "Readers" {
		t.Errorf("Expected Readers, got %s", got.Name)
	}

	missing := testutil.NewWallet(t).Address
	w = call(h.GetCommunity, testutil.MakeRequest("GET", "/api/communities/"+missing, nil, nil), "address", missing)
	testutil.AssertStatus(t, w, http.StatusNotFound)
	testutil.AssertErrorCode(t, w, "CommunityNotFound")
}

func TestUpdateConfigAndDissolve(t *testing.T) {
	env := testutil.NewEnv(t)
	h := NewCommunityHandler(env.Ledger, env.Metrics)
	admin := testutil.NewWallet(t)
	outsider := testutil.NewWallet(t)
	c := env.CreateCommunity(t, admin, "Council")

	cfg := models.CommunityConfig{VotingPeriod: 120, MaxOptions: 3}

	w := call(h.UpdateConfig, asWallet(testutil.MakeRequest("PUT", "/config", cfg, nil), outsider.Address), "address", c.Address)
	testutil.AssertStatus(t, w, http.StatusForbidden)
	testutil.AssertErrorCode(t, w, "NotAdmin")

	w = call(h.UpdateConfig, asWallet(testutil.MakeRequest("PUT", "/config", cfg, nil), admin.Address), "address", c.Address)
	testutil.AssertStatus(t, w, http.StatusOK)
	var updated models.Community
	testutil.AssertJSON(t, w, &updated)
	if updated.Config != cfg {
		t.Errorf("Expected config %+v, got %+v", cfg, updated.Config)
	}

	w = call(h.Dissolve, asWallet(testutil.MakeRequest("POST", "/dissolve", nil, nil), admin.Address), "address", c.Address)
	testutil.AssertStatus(t, w, http.StatusOK)

	w = call(h.Dissolve, asWallet(testutil.MakeRequest("POST", "/dissolve", nil, nil), admin.Address), "address", c.Address)
	testutil.AssertStatus(t, w, http.StatusConflict)
	testutil.AssertErrorCode(t, w, "CommunityDissolved")

	w = call(h.UpdateConfig, asWallet(testutil.MakeRequest("PUT", "/config", cfg, nil), admin.Address), "address", c.Address)
	testutil.AssertStatus(t, w, http.StatusConflict)
}

func TestStatsAndEvents(t *testing.T) {
	env := testutil.NewEnv(t)
	h := NewCommunityHandler(env.Ledger, env.Metrics)
	admin := testutil.NewWallet(t)
	member := testutil.NewWallet(t)
	c := env.CreateCommunity(t, admin, "Stats")
	env.AddMember(t, c, member)

	w := call(h.GetStats, testutil.MakeRequest("GET", "/stats", nil, nil), "address", c.Address)
	testutil.AssertStatus(t, w, http.StatusOK)
	var stats models.CommunityStats
	testutil.AssertJSON(t, w, &stats)
	if stats.MembersByStatus["approved"] != 2 {
		t.Errorf("Expected 2 approved members, got %v", stats.MembersByStatus)
	}

	w = call(h.GetEvents, testutil.MakeRequest("GET", "/events?limit=2", nil, nil), "address", c.Address)
	testutil.AssertStatus(t, w, http.StatusOK)
	var evs []models.Event
	testutil.AssertJSON(t, w, &evs)
	if len(evs) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(evs))
	}
	if evs[0].Kind != ledger.EventMemberApproved {
		t.Errorf("Expected newest event first, got %s", evs[0].Kind)
	}
}
