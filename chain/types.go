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

// Package chain holds the primitive types shared with the chain node. The
// node itself is an external collaborator reached over JSON-RPC; everything
// here is deliberately opaque plumbing around byte arrays.
package chain

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// PubkeyLength is the byte length of an account address.
	PubkeyLength = 32

	// HashLength is the byte length of a block hash.
	HashLength = 32

	// SignatureLength is the byte length of an ed25519 transaction signature.
	SignatureLength = 64
)

// Pubkey is a 32-byte account address.
type Pubkey [PubkeyLength]byte

// Hash is a 32-byte block hash.
type Hash [HashLength]byte

// Signature is a 64-byte ed25519 signature.
type Signature [SignatureLength]byte

// BytesToPubkey sets b to a pubkey. If b is larger than PubkeyLength, b will
// be cropped from the left.
func BytesToPubkey(b []byte) Pubkey {
	var p Pubkey
	if len(b) > len(p) {
		b = b[len(b)-PubkeyLength:]
	}
	copy(p[PubkeyLength-len(b):], b)
	return p
}

// HexToPubkey sets s, which must be a hex string, to a pubkey. Invalid input
// yields the zero pubkey.
func HexToPubkey(s string) Pubkey {
	b, _ := hexutil.Decode(s)
	return BytesToPubkey(b)
}

func (p Pubkey) Bytes() []byte  { return p[:] }
func (p Pubkey) String() string { return hexutil.Encode(p[:]) }

func (h Hash) Bytes() []byte  { return h[:] }
func (h Hash) String() string { return hexutil.Encode(h[:]) }

func (s Signature) String() string { return hexutil.Encode(s[:]) }

// AccountMeta names an account an instruction touches and how.
type AccountMeta struct {
	Pubkey   Pubkey
	Signer   bool
	Writable bool
}

// Instruction is a single program invocation. The coordinator never inspects
// instruction data; it only ferries the blobs built by the ore package.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Transaction is a signed bundle of instructions with a single fee payer.
type Transaction struct {
	Payer        Pubkey
	Blockhash    Hash
	Instructions []Instruction
	Signature    Signature
}

// NewTransaction assembles an unsigned transaction paid for by payer.
func NewTransaction(payer Pubkey, blockhash Hash, ixs ...Instruction) *Transaction {
	return &Transaction{
		Payer:        payer,
		Blockhash:    blockhash,
		Instructions: ixs,
	}
}

// Message returns the byte serialization covered by the signature: payer,
// blockhash and the instruction list, all little-endian length-prefixed.
func (tx *Transaction) Message() []byte {
	out := make([]byte, 0, 128)
	out = append(out, tx.Payer[:]...)
	out = append(out, tx.Blockhash[:]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(tx.Instructions)))
	for _, ix := range tx.Instructions {
		out = append(out, ix.ProgramID[:]...)
		out = binary.LittleEndian.AppendUint16(out, uint16(len(ix.Accounts)))
		for _, acc := range ix.Accounts {
			out = append(out, acc.Pubkey[:]...)
			var flags byte
			if acc.Signer {
				flags |= 0x01
			}
			if acc.Writable {
				flags |= 0x02
			}
			out = append(out, flags)
		}
		out = binary.LittleEndian.AppendUint32(out, uint32(len(ix.Data)))
		out = append(out, ix.Data...)
	}
	return out
}

// Sign signs the transaction message with the given keypair and stores the
// signature on the transaction.
func (tx *Transaction) Sign(key *Keypair) {
	copy(tx.Signature[:], ed25519.Sign(key.priv, tx.Message()))
}

// Verify reports whether the stored signature matches the message under key.
func (tx *Transaction) Verify(key Pubkey) bool {
	return ed25519.Verify(ed25519.PublicKey(key[:]), tx.Message(), tx.Signature[:])
}

// Serialize returns the wire form submitted to the node: signature followed
// by the signed message.
func (tx *Transaction) Serialize() []byte {
	msg := tx.Message()
	out := make([]byte, 0, SignatureLength+len(msg))
	out = append(out, tx.Signature[:]...)
	return append(out, msg...)
}
