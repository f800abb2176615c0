// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"regexp"

	"github.com/mr-tron/base58"
)

var (
	ErrInvalidWalletAddress = errors.New("invalid wallet address format")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrNonceNotFound        = errors.New("nonce not found in message")
)

var nonceRe = regexp.MustCompile(`Nonce: ([a-fA-F0-9]+)`)

// SignMessage builds the challenge text a wallet signs to prove ownership
func SignMessage(nonce string, timestamp int64) string {
	return fmt.Sprintf("Sign this message to authenticate with the community platform.\n\nNonce: %s\nTimestamp: %d\n\nThis signature will be used to verify your wallet ownership.", nonce, timestamp)
}

// ExtractNonce pulls the nonce back out of a signed challenge
func ExtractNonce(message string) (string, error) {
	m := nonceRe.FindStringSubmatch(message)
	if m == nil {
		return "", ErrNonceNotFound
	}
	return m[1], nil
}

// ValidateWalletAddress checks that s is a base58 ed25519 public key
func ValidateWalletAddress(s string) error {
	if len(s) < 32 || len(s) > 44 {
		return ErrInvalidWalletAddress
	}
	b, err := base58.Decode(s)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return ErrInvalidWalletAddress
	}
	return nil
}

// VerifySignature checks a base58 ed25519 signature of message by wallet
func VerifySignature(wallet, message, signature string) error {
	pub, err := base58.Decode(wallet)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return ErrInvalidWalletAddress
	}
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign signs message with key and returns the base58 signature. Used by clients and tests.
func Sign(key ed25519.PrivateKey, message string) string {
	return base58.Encode(ed25519.Sign(key, []byte(message)))
}

// WalletAddress returns the base58 wallet address for a public key
func WalletAddress(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}
