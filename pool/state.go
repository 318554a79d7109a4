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
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/rthzxy/ore-hq-server/ore"
)

// The round state is four cells, each behind its own mutex and exposing only
// the transactions the loops need. Lock order when more than one is taken:
// proof, best, cursor, ready. No I/O happens under more than one of them.

// proofCell owns the current proof. Snapshots are value copies.
type proofCell struct {
	mu    sync.Mutex
	proof ore.Proof
}

func (c *proofCell) Snapshot() ore.Proof {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proof
}

func (c *proofCell) Replace(p ore.Proof) {
	c.mu.Lock()
	c.proof = p
	c.mu.Unlock()
}

// bestShare owns the round's best solution and its difficulty.
type bestShare struct {
	mu       sync.Mutex
	solution *ore.Solution
	diff     uint32
}

// Consider installs sol if its difficulty strictly exceeds the incumbent's
// and reports whether it did. Validity and the difficulty floor are the
// caller's job; only monotonicity is enforced here.
func (b *bestShare) Consider(sol ore.Solution, diff uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if diff <= b.diff {
		return false
	}
	s := sol
	b.solution = &s
	b.diff = diff
	return true
}

// Snapshot returns a copy of the current best, or nil if the round has none.
func (b *bestShare) Snapshot() (*ore.Solution, uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.solution == nil {
		return nil, 0
	}
	s := *b.solution
	return &s, b.diff
}

func (b *bestShare) Reset() {
	b.mu.Lock()
	b.solution = nil
	b.diff = 0
	b.mu.Unlock()
}

// nonceCursor owns the next unassigned nonce. Serializing Alloc under the
// mutex is what keeps dispatched ranges pairwise disjoint.
type nonceCursor struct {
	mu   sync.Mutex
	next uint64
}

// Alloc reserves and returns the half-open range [start, start+chunk).
func (n *nonceCursor) Alloc(chunk uint64) (start, end uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start = n.next
	n.next += chunk
	return start, n.next
}

func (n *nonceCursor) Reset() {
	n.mu.Lock()
	n.next = 0
	n.mu.Unlock()
}

// readySet owns the addresses of workers awaiting an assignment.
type readySet struct {
	mu  sync.Mutex
	set mapset.Set[string]
}

func newReadySet() *readySet {
	return &readySet{set: mapset.NewThreadUnsafeSet[string]()}
}

func (r *readySet) Add(addr string) {
	r.mu.Lock()
	r.set.Add(addr)
	r.mu.Unlock()
}

func (r *readySet) Remove(addr string) {
	r.mu.Lock()
	r.set.Remove(addr)
	r.mu.Unlock()
}

func (r *readySet) Contains(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set.Contains(addr)
}

// Snapshot returns the members in a stable order so dispatch behaves
// deterministically for a given roster.
func (r *readySet) Snapshot() []string {
	r.mu.Lock()
	addrs := r.set.ToSlice()
	r.mu.Unlock()
	sort.Strings(addrs)
	return addrs
}

func (r *readySet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set.Cardinality()
}
