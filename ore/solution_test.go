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

import "testing"

// Tests that a solved solution validates against its own challenge and
// nothing else.
func TestSolveValidity(t *testing.T) {
	challenge := [32]byte{1, 2, 3}
	sol := Solve(challenge, 42)

	if sol.NonceValue() != 42 {
		t.Fatalf("nonce mismatch: have %d, want 42", sol.NonceValue())
	}
	if !sol.IsValid(challenge) {
		t.Fatal("solved solution does not validate against its challenge")
	}
	other := [32]byte{9, 9, 9}
	if sol.IsValid(other) {
		t.Fatal("solution validates against a foreign challenge")
	}
	// Tampering with the digest must invalidate it.
	sol.Digest[0] ^= 0xff
	if sol.IsValid(challenge) {
		t.Fatal("tampered digest still validates")
	}
}

func TestHashDifficulty(t *testing.T) {
	tests := []struct {
		hash [32]byte
		want uint32
	}{
		{[32]byte{0x80}, 0},
		{[32]byte{0x40}, 1},
		{[32]byte{0x01}, 7},
		{[32]byte{0x00, 0x80}, 8},
		{[32]byte{0x00, 0x0f}, 12},
		{[32]byte{0x00, 0x00, 0x01}, 23},
		{[32]byte{}, 256},
	}
	for _, tt := range tests {
		if have := HashDifficulty(tt.hash); have != tt.want {
			t.Errorf("difficulty of %x: have %d, want %d", tt.hash[:3], have, tt.want)
		}
	}
}

// Tests that nonce search finds solutions over the floor within a plausible
// range, i.e. that difficulty behaves like leading-zero counting and not
// something degenerate.
func TestSolveDifficultySearch(t *testing.T) {
	challenge := [32]byte{0xaa, 0xbb}
	found := false
	for nonce := uint64(0); nonce < 1_000; nonce++ {
		sol := Solve(challenge, nonce)
		if sol.Difficulty() > 3 {
			if !sol.IsValid(challenge) {
				t.Fatalf("nonce %d: high-difficulty solution does not validate", nonce)
			}
			found = true
			break
		}
	}
	if !found {
		t.Fatal("no solution above difficulty 3 in 1000 nonces")
	}
}

func TestSolutionDifficultyDeterministic(t *testing.T) {
	challenge := [32]byte{7}
	a, b := Solve(challenge, 13), Solve(challenge, 13)
	if a != b {
		t.Fatal("solving the same nonce twice differs")
	}
	if a.Difficulty() != b.Difficulty() {
		t.Fatal("difficulty is not deterministic")
	}
}
