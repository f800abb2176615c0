// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package pda

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const (
	// AddressLen is the byte length of every account address
	AddressLen = 32
	// MaxSeeds is the maximum number of seeds (bump excluded)
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed
	MaxSeedLen = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrMaxSeedLength  = errors.New("seed exceeds 32 bytes")
	ErrTooManySeeds   = errors.New("too many seeds")
	ErrOnCurve        = errors.New("derived address lies on the ed25519 curve")
	ErrNoViableBump   = errors.New("unable to find a viable bump seed")
	ErrInvalidAddress = errors.New("invalid address")
)

// Address is a 32-byte account address
type Address [AddressLen]byte

// String returns the base58 form of the address
func (a Address) String() string {
	return base58.Encode(a[:])
}

// ParseAddress decodes a base58 address
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := base58.Decode(s)
	if err != nil || len(b) != AddressLen {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	copy(a[:], b)
	return a, nil
}

// CreateProgramAddress hashes the seeds with the program ID.
// The result must not be a valid curve point, so no private key can sign for it.
func CreateProgramAddress(seeds [][]byte, programID Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, ErrTooManySeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return Address{}, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var addr Address
	copy(addr[:], h.Sum(nil))

	if IsOnCurve(addr[:]) {
		return Address{}, ErrOnCurve
	}
	return addr, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first off-curve address
func FindProgramAddress(seeds [][]byte, programID Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, ErrTooManySeeds
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether b decodes to a point on the ed25519 curve
func IsOnCurve(b []byte) bool {
	if len(b) != AddressLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// MemberSeeds identify a wallet's membership in a community
func MemberSeeds(community, wallet Address) [][]byte {
	return [][]byte{[]byte("member"), community[:], wallet[:]}
}

// QuestionSeeds identify a question by community, creator and deadline
func QuestionSeeds(community, creator Address, deadline int64) [][]byte {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], uint64(deadline))
	return [][]byte{[]byte("question"), community[:], creator[:], le[:]}
}

// VoteSeeds identify a voter's ballot on a question
func VoteSeeds(question, voter Address) [][]byte {
	return [][]byte{[]byte("vote"), question[:], voter[:]}
}

// Deriver binds address derivation to one program ID
type Deriver struct {
	programID Address
}

func NewDeriver(programID string) (*Deriver, error) {
	id, err := ParseAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id: %w", err)
	}
	return &Deriver{programID: id}, nil
}

// ProgramID returns the program the deriver is bound to
func (d *Deriver) ProgramID() Address {
	return d.programID
}

func (d *Deriver) Member(community, wallet string) (string, error) {
	c, w, err := parsePair(community, wallet)
	if err != nil {
		return "", err
	}
	addr, _, err := FindProgramAddress(MemberSeeds(c, w), d.programID)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

func (d *Deriver) Question(community, creator string, deadline int64) (string, error) {
	c, cr, err := parsePair(community, creator)
	if err != nil {
		return "", err
	}
	addr, _, err := FindProgramAddress(QuestionSeeds(c, cr, deadline), d.programID)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

func (d *Deriver) Vote(question, voter string) (string, error) {
	q, v, err := parsePair(question, voter)
	if err != nil {
		return "", err
	}
	addr, _, err := FindProgramAddress(VoteSeeds(q, v), d.programID)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

func parsePair(a, b string) (Address, Address, error) {
	first, err := ParseAddress(a)
	if err != nil {
		return Address{}, Address{}, err
	}
	second, err := ParseAddress(b)
	if err != nil {
		return Address{}, Address{}, err
	}
	return first, second, nil
}
