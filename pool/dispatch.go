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
	"time"
)

// dispatchLoop hands nonce ranges to ready workers every DispatchInterval.
func (c *Coordinator) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.DispatchInterval)
	defer ticker.Stop()
	for {
		c.dispatchOnce()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// dispatchOnce runs one dispatch round: snapshot the ready set and the
// proof, decide whether to dispatch, and assign a disjoint nonce range to
// each ready worker.
func (c *Coordinator) dispatchOnce() {
	clients := c.ready.Snapshot()
	if len(clients) == 0 {
		return
	}
	proof := c.proof.Snapshot()

	cutoff := c.backend.Cutoff(&proof, c.cfg.DispatchBuffer)
	if cutoff <= 0 {
		// Past the deadline. With a best solution in hand the submission
		// loop owns the round now; without one, ask workers for whatever
		// they have immediately.
		if sol, _ := c.best.Snapshot(); sol != nil {
			return
		}
		cutoff = 0
	}

	for _, addr := range clients {
		start, end := c.cursor.Alloc(nonceChunk)
		a := Assignment{
			Challenge:  proof.Challenge,
			Cutoff:     cutoff,
			NonceStart: start,
			NonceEnd:   end,
		}
		if err := c.transport.SendAssignment(addr, a); err != nil {
			// Keep the worker in the ready set; its range stays unsearched,
			// which costs nothing but nonce space. Eviction belongs to the
			// ping sweep.
			c.log.Debug("Failed to send assignment", "addr", addr, "err", err)
			continue
		}
		c.ready.Remove(addr)
		c.dispatchMeter.Mark(1)
		c.log.Debug("Dispatched range", "addr", addr, "start", start, "end", end, "cutoff", cutoff)
	}
}
