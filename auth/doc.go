// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides identifiers, session tokens and wallet signature checks.

# Wallet Challenges

A wallet proves ownership by signing a challenge message:

	nonce, _ := auth.GenerateNonce()
	msg := auth.SignMessage(nonce, time.Now().UnixMilli())
	// client signs msg with its ed25519 key, sends base58 signature back
	err := auth.VerifySignature(walletAddress, msg, signature)

Wallet addresses and signatures are base58 encoded, as Solana wallets produce
them. ValidateWalletAddress accepts only strings that decode to a 32-byte key.

# Session Tokens

Session tokens are random 32-byte secrets, URL-safe base64 without padding:

	token, err := auth.GenerateSessionToken()
	stored := auth.HashToken(token, secret)

Only the HMAC-SHA256 of a token is persisted.

# ID Generation

	id, err := auth.GenerateID(16)            // 32 hex characters
	addr, err := auth.NewCommunityAddress()   // random base58 account address

# IP Hashing

	hash := auth.HashIP(ipAddress, salt)

Returns first 8 bytes (16 hex chars) of HMAC-SHA256.
*/
package auth
