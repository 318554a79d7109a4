// Copyright 2024 The ore-hq-server Authors
// This file is part of ore-hq-server.
//
// ore-hq-server is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ore-hq-server is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with ore-hq-server. If not, see <http://www.gnu.org/licenses/>.

// Package ore models the on-chain mining program: the proof account, the
// solution format workers search for, and the instructions the pool submits.
package ore

import (
	"encoding/binary"
	"math/bits"

	"golang.org/x/crypto/sha3"
)

const (
	// DigestSize is the byte length of a solution digest.
	DigestSize = 16

	// NonceSize is the byte length of a solution nonce.
	NonceSize = 8
)

// Solution is a candidate answer to the current challenge: the digest a
// worker derived for its nonce. Workers are untrusted, so a solution means
// nothing until IsValid has checked it against the round's challenge.
type Solution struct {
	Digest [DigestSize]byte
	Nonce  [NonceSize]byte
}

// NewSolution constructs a solution from its wire components.
func NewSolution(digest [DigestSize]byte, nonce [NonceSize]byte) Solution {
	return Solution{Digest: digest, Nonce: nonce}
}

// Solve derives the solution for nonce against challenge. This is the same
// derivation workers run in their drill loops; the coordinator uses it for
// validation and tests use it to manufacture solutions.
func Solve(challenge [32]byte, nonce uint64) Solution {
	var s Solution
	binary.LittleEndian.PutUint64(s.Nonce[:], nonce)
	copy(s.Digest[:], digest(challenge, s.Nonce))
	return s
}

// NonceValue returns the nonce as an integer.
func (s Solution) NonceValue() uint64 {
	return binary.LittleEndian.Uint64(s.Nonce[:])
}

// IsValid reports whether the digest really is the digest of (challenge,
// nonce). A solution mined against a stale challenge fails here.
func (s Solution) IsValid(challenge [32]byte) bool {
	d := digest(challenge, s.Nonce)
	for i := range s.Digest {
		if s.Digest[i] != d[i] {
			return false
		}
	}
	return true
}

// Hash returns the final hash the solution's difficulty is measured on.
func (s Solution) Hash() [32]byte {
	return keccak(s.Digest[:], s.Nonce[:])
}

// Difficulty returns the solution's difficulty.
func (s Solution) Difficulty() uint32 {
	h := s.Hash()
	return HashDifficulty(h)
}

// HashDifficulty counts the leading zero bits of h.
func HashDifficulty(h [32]byte) uint32 {
	var n uint32
	for _, b := range h {
		if b != 0 {
			return n + uint32(bits.LeadingZeros8(b))
		}
		n += 8
	}
	return n
}

func digest(challenge [32]byte, nonce [NonceSize]byte) []byte {
	h := keccak(challenge[:], nonce[:])
	return h[:DigestSize]
}

func keccak(parts ...[]byte) (out [32]byte) {
	d := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		d.Write(p)
	}
	d.Sum(out[:0])
	return out
}
