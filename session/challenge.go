// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danribes/pfm-solana-rust-sub010/auth"
	"github.com/danribes/pfm-solana-rust-sub010/cache"
	"github.com/danribes/pfm-solana-rust-sub010/models"
)

var (
	ErrRateLimited   = errors.New("too many authentication attempts")
	ErrNonceExpired  = errors.New("nonce not found or expired")
	ErrNonceMismatch = errors.New("nonce does not match the issued challenge")
)

// Limiter admits or refuses one event for key
type Limiter interface {
	Allow(key string) bool
}

type challenge struct {
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

// Challenges issues and redeems single-use wallet login nonces
type Challenges struct {
	cache   cache.Store
	limiter Limiter
	ttl     time.Duration
	now     func() time.Time
}

func NewChallenges(store cache.Store, limiter Limiter, ttl time.Duration) *Challenges {
	return &Challenges{cache: store, limiter: limiter, ttl: ttl, now: time.Now}
}

func nonceKey(wallet string) string {
	return "nonce:" + wallet
}

// Issue creates a nonce for wallet, replacing any outstanding one
func (c *Challenges) Issue(ctx context.Context, wallet string) (models.NonceResponse, error) {
	if err := auth.ValidateWalletAddress(wallet); err != nil {
		return models.NonceResponse{}, err
	}
	if c.limiter != nil && !c.limiter.Allow(wallet) {
		return models.NonceResponse{}, ErrRateLimited
	}

	nonce, err := auth.GenerateNonce()
	if err != nil {
		return models.NonceResponse{}, err
	}
	ch := challenge{Nonce: nonce, Timestamp: c.now().UnixMilli()}
	if err := cache.SetJSON(ctx, c.cache, nonceKey(wallet), ch, c.ttl); err != nil {
		return models.NonceResponse{}, fmt.Errorf("failed to store nonce: %w", err)
	}

	return models.NonceResponse{
		Nonce:     ch.Nonce,
		Timestamp: ch.Timestamp,
		Message:   auth.SignMessage(ch.Nonce, ch.Timestamp),
	}, nil
}

// Redeem consumes the wallet's nonce and checks the signature over the challenge.
// The nonce is spent even when verification fails.
func (c *Challenges) Redeem(ctx context.Context, req models.VerifyRequest) error {
	if err := auth.ValidateWalletAddress(req.WalletAddress); err != nil {
		return err
	}

	data, err := c.cache.Take(ctx, nonceKey(req.WalletAddress))
	if errors.Is(err, cache.ErrMiss) {
		return ErrNonceExpired
	}
	if err != nil {
		return fmt.Errorf("failed to load nonce: %w", err)
	}

	var ch challenge
	if err := json.Unmarshal(data, &ch); err != nil {
		return fmt.Errorf("failed to decode nonce: %w", err)
	}
	if req.Nonce != ch.Nonce || req.Timestamp != ch.Timestamp {
		return ErrNonceMismatch
	}

	return auth.VerifySignature(req.WalletAddress, auth.SignMessage(ch.Nonce, ch.Timestamp), req.Signature)
}
