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
	"encoding/binary"

	"github.com/rthzxy/ore-hq-server/chain"
)

// Program addresses. The coordinator treats all instruction data as opaque
// blobs owned by these programs.
var (
	ProgramID              = chain.HexToPubkey("0x6f72650b1e33f2ee4efd0896ec2b0a4b4e55e5cd03d6eb8cf9cf3c5f56f72065")
	NoopProgramID          = chain.HexToPubkey("0x6e6f6f700ac14c5f1c4e2ff1d8c39c2ffebf9c9a4e9028337de9f9f6a8f9b871")
	ComputeBudgetProgramID = chain.HexToPubkey("0x0306466fe5211732ffecadba72c39be7bc8ce5bbc5f7126b2c439b3a40000000")
)

// Mining program instruction tags.
const (
	opRegister = 0x01
	opMine     = 0x02
)

// Compute budget instruction tags.
const (
	opSetComputeUnitLimit = 0x02
	opSetComputeUnitPrice = 0x03
)

// Register builds the instruction opening a proof account for signer.
func Register(signer chain.Pubkey) chain.Instruction {
	return chain.Instruction{
		ProgramID: ProgramID,
		Accounts: []chain.AccountMeta{
			{Pubkey: signer, Signer: true, Writable: true},
			{Pubkey: ProofAddress(signer), Writable: true},
		},
		Data: []byte{opRegister},
	}
}

// Auth builds the no-op authentication instruction carrying the proof
// address, read by off-chain indexers to attribute the mine that follows.
func Auth(signer chain.Pubkey) chain.Instruction {
	proof := ProofAddress(signer)
	return chain.Instruction{
		ProgramID: NoopProgramID,
		Data:      proof.Bytes(),
	}
}

// Mine builds the mine instruction submitting solution on bus.
func Mine(signer chain.Pubkey, solution Solution, bus uint8) chain.Instruction {
	data := make([]byte, 0, 1+DigestSize+NonceSize)
	data = append(data, opMine)
	data = append(data, solution.Digest[:]...)
	data = append(data, solution.Nonce[:]...)
	return chain.Instruction{
		ProgramID: ProgramID,
		Accounts: []chain.AccountMeta{
			{Pubkey: signer, Signer: true},
			{Pubkey: ProofAddress(signer), Writable: true},
			{Pubkey: BusAddress(bus), Writable: true},
		},
		Data: data,
	}
}

// SetComputeUnitLimit builds the compute budget instruction capping the
// transaction's compute units.
func SetComputeUnitLimit(units uint32) chain.Instruction {
	data := make([]byte, 5)
	data[0] = opSetComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:], units)
	return chain.Instruction{ProgramID: ComputeBudgetProgramID, Data: data}
}

// SetComputeUnitPrice builds the compute budget instruction setting the
// priority fee in micro-lamports per compute unit.
func SetComputeUnitPrice(microLamports uint64) chain.Instruction {
	data := make([]byte, 9)
	data[0] = opSetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return chain.Instruction{ProgramID: ComputeBudgetProgramID, Data: data}
}
