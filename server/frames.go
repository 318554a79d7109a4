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

package server

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rthzxy/ore-hq-server/ore"
	"github.com/rthzxy/ore-hq-server/pool"
)

// Coordinator-to-worker frame tags.
const assignTag = 0x00

// Worker-to-coordinator frame tags.
const (
	readyTag    = 0x00
	miningTag   = 0x01
	solutionTag = 0x02
)

// assignmentFrameSize is tag + challenge + cutoff + nonce start + nonce end.
const assignmentFrameSize = 1 + 32 + 8 + 8 + 8

// solutionFrameSize is tag + digest + nonce.
const solutionFrameSize = 1 + ore.DigestSize + ore.NonceSize

var (
	// ErrEmptyFrame is returned for zero-length binary frames.
	ErrEmptyFrame = errors.New("empty frame")

	// ErrShortFrame is returned when a frame's payload is shorter than its
	// tag requires. decodeAssignment also returns it for an assignment frame
	// of any length other than assignmentFrameSize, longer ones included.
	ErrShortFrame = errors.New("short frame")

	// ErrUnknownTag is returned for binary frames with an unrecognized tag.
	ErrUnknownTag = errors.New("unknown frame tag")
)

// pingPayload is the application-level ping body, recognized by workers.
var pingPayload = []byte{1, 2, 3}

// encodeAssignment serializes an assignment into its 57-byte wire frame.
// All fields are little-endian.
func encodeAssignment(a pool.Assignment) []byte {
	frame := make([]byte, assignmentFrameSize)
	frame[0] = assignTag
	copy(frame[1:33], a.Challenge[:])
	binary.LittleEndian.PutUint64(frame[33:41], uint64(a.Cutoff))
	binary.LittleEndian.PutUint64(frame[41:49], a.NonceStart)
	binary.LittleEndian.PutUint64(frame[49:57], a.NonceEnd)
	return frame
}

// decodeAssignment is the inverse of encodeAssignment.
func decodeAssignment(frame []byte) (pool.Assignment, error) {
	if len(frame) != assignmentFrameSize {
		return pool.Assignment{}, fmt.Errorf("%w: assignment frame is %d bytes", ErrShortFrame, len(frame))
	}
	if frame[0] != assignTag {
		return pool.Assignment{}, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, frame[0])
	}
	var a pool.Assignment
	copy(a.Challenge[:], frame[1:33])
	a.Cutoff = int64(binary.LittleEndian.Uint64(frame[33:41]))
	a.NonceStart = binary.LittleEndian.Uint64(frame[41:49])
	a.NonceEnd = binary.LittleEndian.Uint64(frame[49:57])
	return a, nil
}

// decodeWorkerFrame maps a binary worker frame to its bus event.
func decodeWorkerFrame(addr string, data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	switch data[0] {
	case readyTag:
		return pool.ReadyEvent{Addr: addr}, nil

	case miningTag:
		return pool.MiningEvent{Addr: addr}, nil

	case solutionTag:
		if len(data) < solutionFrameSize {
			return nil, fmt.Errorf("%w: solution frame is %d bytes, want %d", ErrShortFrame, len(data), solutionFrameSize)
		}
		var digest [ore.DigestSize]byte
		var nonce [ore.NonceSize]byte
		copy(digest[:], data[1:1+ore.DigestSize])
		copy(nonce[:], data[1+ore.DigestSize:solutionFrameSize])
		return pool.SolutionEvent{Addr: addr, Solution: ore.NewSolution(digest, nonce)}, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, data[0])
	}
}
