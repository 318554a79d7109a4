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

package pool

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rthzxy/ore-hq-server/chain"
	"github.com/rthzxy/ore-hq-server/ore"
)

// fakeBackend is a scriptable pool.Backend.
type fakeBackend struct {
	mu        sync.Mutex
	cutoff    int64
	loaded    *ore.Proof
	loadErr   error
	blockhash chain.Hash
	hashErr   error
	sendErr   error
	sent      []*chain.Transaction
}

func (b *fakeBackend) LoadProof(context.Context, chain.Pubkey) (*ore.Proof, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	p := *b.loaded
	return &p, nil
}

func (b *fakeBackend) LatestBlockhash(context.Context) (chain.Hash, error) {
	return b.blockhash, b.hashErr
}

func (b *fakeBackend) SendAndConfirm(_ context.Context, tx *chain.Transaction) (chain.Signature, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	if b.sendErr != nil {
		return chain.Signature{}, b.sendErr
	}
	return chain.Signature{1}, nil
}

func (b *fakeBackend) Cutoff(*ore.Proof, int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cutoff
}

func (b *fakeBackend) sendCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

// fakeTransport is an in-memory pool.Transport.
type fakeTransport struct {
	mu       sync.Mutex
	attached map[string]bool
	failing  map[string]bool
	texts    map[string][]string
	assigns  []sentAssignment
}

type sentAssignment struct {
	addr string
	a    Assignment
}

func newFakeTransport(addrs ...string) *fakeTransport {
	tr := &fakeTransport{
		attached: make(map[string]bool),
		failing:  make(map[string]bool),
		texts:    make(map[string][]string),
	}
	for _, addr := range addrs {
		tr.attached[addr] = true
	}
	return tr
}

func (tr *fakeTransport) Has(addr string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.attached[addr]
}

func (tr *fakeTransport) SendText(addr, msg string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !tr.attached[addr] || tr.failing[addr] {
		return errors.New("send failed")
	}
	tr.texts[addr] = append(tr.texts[addr], msg)
	return nil
}

func (tr *fakeTransport) SendAssignment(addr string, a Assignment) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !tr.attached[addr] || tr.failing[addr] {
		return errors.New("send failed")
	}
	tr.assigns = append(tr.assigns, sentAssignment{addr, a})
	return nil
}

func (tr *fakeTransport) textsFor(addr string) []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.texts[addr]...)
}

func (tr *fakeTransport) assignments() []sentAssignment {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]sentAssignment(nil), tr.assigns...)
}

// chain01 is a fixed non-zero blockhash for submit tests.
func chain01() chain.Hash {
	return chain.Hash{0x01}
}

func testWallet(t *testing.T) *chain.Keypair {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 3
	kp, err := chain.NewKeypairFromSeed(seed)
	require.NoError(t, err)
	return kp
}

func testConfig() Config {
	return Config{
		DispatchInterval: 10 * time.Millisecond,
		DispatchBuffer:   5,
		IdlePoll:         time.Millisecond,
		SubmitAttempts:   3,
		SubmitRetryGap:   time.Millisecond,
		BlockhashRetry:   time.Millisecond,
		RefreshInterval:  time.Millisecond,
		RefreshTimeout:   100 * time.Millisecond,
	}
}

func newTestCoordinator(t *testing.T, backend *fakeBackend, tr *fakeTransport, proof ore.Proof) *Coordinator {
	t.Helper()
	return New(testConfig(), testWallet(t), backend, tr, NewBus(), proof)
}

// solveWithDifficulty searches for a nonce whose solution has exactly the
// given difficulty against challenge.
func solveWithDifficulty(t *testing.T, challenge [32]byte, diff uint32) ore.Solution {
	t.Helper()
	for nonce := uint64(0); nonce < 1_000_000; nonce++ {
		sol := ore.Solve(challenge, nonce)
		if sol.Difficulty() == diff {
			return sol
		}
	}
	t.Fatalf("no solution of difficulty %d in 1e6 nonces", diff)
	return ore.Solution{}
}

// solveAbove searches for a nonce whose solution difficulty exceeds min.
func solveAbove(t *testing.T, challenge [32]byte, min uint32) ore.Solution {
	t.Helper()
	for nonce := uint64(0); nonce < 1_000_000; nonce++ {
		sol := ore.Solve(challenge, nonce)
		if sol.Difficulty() > min {
			return sol
		}
	}
	t.Fatalf("no solution above difficulty %d in 1e6 nonces", min)
	return ore.Solution{}
}
