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

package ore

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/rthzxy/ore-hq-server/chain"
)

const (
	// TokenDecimals is the number of decimal places of the reward token.
	TokenDecimals = 11

	// RoundDurationSec is the on-chain minimum between two accepted
	// submissions from the same proof; the round deadline derives from it.
	RoundDurationSec = 60

	// proofDataSize is the serialized size of a proof account, including the
	// 8-byte account discriminator.
	proofDataSize = 8 + 32 + 8 + 32 + 32 + 8 + 8 + 32 + 8 + 8
)

// Proof mirrors the mining program's per-authority proof account. The
// challenge field is what every worker hashes against for one round.
type Proof struct {
	Authority    chain.Pubkey
	Balance      uint64
	Challenge    [32]byte
	LastHash     [32]byte
	LastHashAt   int64
	LastStakeAt  int64
	Miner        chain.Pubkey
	TotalHashes  uint64
	TotalRewards uint64
}

// UnmarshalProof decodes a proof account's data. The layout is fixed-width
// little-endian, led by the 8-byte discriminator.
func UnmarshalProof(data []byte) (*Proof, error) {
	if len(data) != proofDataSize {
		return nil, fmt.Errorf("invalid proof account size %d, want %d", len(data), proofDataSize)
	}
	p := new(Proof)
	off := 8 // skip discriminator
	off += copy(p.Authority[:], data[off:])
	p.Balance = binary.LittleEndian.Uint64(data[off:])
	off += 8
	off += copy(p.Challenge[:], data[off:])
	off += copy(p.LastHash[:], data[off:])
	p.LastHashAt = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	p.LastStakeAt = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	off += copy(p.Miner[:], data[off:])
	p.TotalHashes = binary.LittleEndian.Uint64(data[off:])
	off += 8
	p.TotalRewards = binary.LittleEndian.Uint64(data[off:])
	return p, nil
}

// MarshalProof encodes a proof account. Only tests and tooling need this;
// the coordinator never writes proof accounts.
func MarshalProof(p *Proof) []byte {
	data := make([]byte, proofDataSize)
	off := 8
	off += copy(data[off:], p.Authority[:])
	binary.LittleEndian.PutUint64(data[off:], p.Balance)
	off += 8
	off += copy(data[off:], p.Challenge[:])
	off += copy(data[off:], p.LastHash[:])
	binary.LittleEndian.PutUint64(data[off:], uint64(p.LastHashAt))
	off += 8
	binary.LittleEndian.PutUint64(data[off:], uint64(p.LastStakeAt))
	off += 8
	off += copy(data[off:], p.Miner[:])
	binary.LittleEndian.PutUint64(data[off:], p.TotalHashes)
	off += 8
	binary.LittleEndian.PutUint64(data[off:], p.TotalRewards)
	return data
}

// ProofAddress derives the proof account address owned by authority.
func ProofAddress(authority chain.Pubkey) chain.Pubkey {
	h := sha256.New()
	h.Write([]byte("proof"))
	h.Write(authority[:])
	return chain.BytesToPubkey(h.Sum(nil))
}

// BusAddress derives the address of rate-limit bus id.
func BusAddress(id uint8) chain.Pubkey {
	h := sha256.New()
	h.Write([]byte("bus"))
	h.Write([]byte{id})
	return chain.BytesToPubkey(h.Sum(nil))
}
