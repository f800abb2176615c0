// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danribes/pfm-solana-rust-sub010/cache"
	"github.com/danribes/pfm-solana-rust-sub010/ledger"
	"github.com/danribes/pfm-solana-rust-sub010/metrics"
	"github.com/danribes/pfm-solana-rust-sub010/middleware"
	"github.com/danribes/pfm-solana-rust-sub010/models"
)

// resultsTTL bounds how stale a cached tally can get
const resultsTTL = 10 * time.Second

type QuestionHandler struct {
	ledger  *ledger.Service
	cache   cache.Store
	metrics *metrics.Metrics
}

func NewQuestionHandler(svc *ledger.Service, store cache.Store, m *metrics.Metrics) *QuestionHandler {
	return &QuestionHandler{ledger: svc, cache: store, metrics: m}
}

func (h *QuestionHandler) invalidate(ctx context.Context, question string) {
	if err := h.cache.Del(ctx, cache.ResultsKey(question)); err != nil {
		slog.Warn("failed to clear cached results", "question", question, "error", err)
	}
}

// CreateQuestion handles POST /api/communities/{address}/questions
func (h *QuestionHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQuestionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	creator := middleware.WalletFrom(r.Context())
	q, err := h.ledger.CreateVotingQuestion(r.Context(), r.PathValue("address"), creator, req)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to create question")
		return
	}

	slog.Info("question created", "question", q.Address, "community", q.Community, "deadline", q.Deadline)
	middleware.JSONResponse(w, http.StatusCreated, q)
}

// ListQuestions handles GET /api/communities/{address}/questions
func (h *QuestionHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("status")
	if filter != "" && filter != models.QuestionsActive && filter != models.QuestionsClosed {
		middleware.ErrorResponse(w, http.StatusBadRequest, "status must be active or closed")
		return
	}

	questions, err := h.ledger.ListQuestions(r.Context(), r.PathValue("address"), filter)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to list questions")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, questions)
}

// GetQuestion handles GET /api/questions/{address}
func (h *QuestionHandler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.ledger.GetQuestion(r.Context(), r.PathValue("address"))
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to get question")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, q)
}

// CastVote handles POST /api/questions/{address}/votes
func (h *QuestionHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req models.CastVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Option == nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "option is required")
		return
	}

	question := r.PathValue("address")
	v, err := h.ledger.CastVote(r.Context(), question, middleware.WalletFrom(r.Context()), *req.Option)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to cast vote")
		return
	}
	h.invalidate(r.Context(), question)

	slog.Info("vote cast", "question", question, "vote", v.Address)
	middleware.JSONResponse(w, http.StatusCreated, v)
}

// GetMyVote handles GET /api/questions/{address}/votes/me
func (h *QuestionHandler) GetMyVote(w http.ResponseWriter, r *http.Request) {
	v, err := h.ledger.GetVote(r.Context(), r.PathValue("address"), middleware.WalletFrom(r.Context()))
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to get vote")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, v)
}

// GetResults handles GET /api/questions/{address}/results
func (h *QuestionHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	question := r.PathValue("address")
	key := cache.ResultsKey(question)

	var results models.QuestionResults
	err := cache.GetJSON(r.Context(), h.cache, key, &results)
	if err == nil {
		middleware.JSONResponse(w, http.StatusOK, results)
		return
	}
	if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("results cache read failed", "question", question, "error", err)
	}

	results, err = h.ledger.Results(r.Context(), question)
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to compute results")
		return
	}
	if err := cache.SetJSON(r.Context(), h.cache, key, results, resultsTTL); err != nil {
		slog.Warn("results cache write failed", "question", question, "error", err)
	}

	middleware.JSONResponse(w, http.StatusOK, results)
}

// CloseQuestion handles POST /api/questions/{address}/close
func (h *QuestionHandler) CloseQuestion(w http.ResponseWriter, r *http.Request) {
	question := r.PathValue("address")
	q, err := h.ledger.CloseVotingQuestion(r.Context(), question, middleware.WalletFrom(r.Context()))
	if err != nil {
		writeLedgerError(w, h.metrics, err, "Failed to close question")
		return
	}
	h.invalidate(r.Context(), question)

	slog.Info("question closed", "question", question)
	middleware.JSONResponse(w, http.StatusOK, q)
}
