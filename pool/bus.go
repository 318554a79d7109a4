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
	"github.com/eapache/channels"

	"github.com/rthzxy/ore-hq-server/ore"
)

// ReadyEvent signals that the worker at Addr is idle and wants a nonce range.
type ReadyEvent struct {
	Addr string
}

// MiningEvent signals that the worker at Addr started working its range.
// Informational only.
type MiningEvent struct {
	Addr string
}

// SolutionEvent carries the best solution the worker at Addr has found so
// far. The solution is untrusted until validated against the round challenge.
type SolutionEvent struct {
	Addr     string
	Solution ore.Solution
}

// Bus is the multi-producer single-consumer event queue between the protocol
// handlers and the coordinator. It is unbounded so that a slow consumer can
// never block a receive loop into missing its ping deadline; in practice the
// depth is bounded by the connection count and the transport's receive
// pacing.
//
// TODO(memory pressure): shed MiningEvent entries first if this ever needs a
// cap.
type Bus struct {
	ch *channels.InfiniteChannel
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{ch: channels.NewInfiniteChannel()}
}

// Publish enqueues an event. It never blocks.
func (b *Bus) Publish(ev interface{}) {
	b.ch.In() <- ev
}

// Events returns the consumer end. The channel closes after Close once the
// queue drains.
func (b *Bus) Events() <-chan interface{} {
	return b.ch.Out()
}

// Len returns the queued event count.
func (b *Bus) Len() int {
	return b.ch.Len()
}

// Close stops the bus. Publish must not be called afterwards.
func (b *Bus) Close() {
	b.ch.Close()
}
