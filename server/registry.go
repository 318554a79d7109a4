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
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/gorilla/websocket"

	"github.com/rthzxy/ore-hq-server/pool"
)

// ErrDuplicateConn is returned by Attach when the address already has a live
// sink; the existing one is kept.
var ErrDuplicateConn = errors.New("address already attached")

// ErrNotAttached is returned by sends to an address without a sink.
var ErrNotAttached = errors.New("address not attached")

// sink is the write half of one worker connection. *websocket.Conn satisfies
// it; tests substitute stubs.
type sink interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Registry maps worker addresses to their outbound sinks. All access runs
// under one mutex; every write to a sink happens inside it, which also
// serializes gorilla writes per connection. Sends must stay short: nothing
// beyond the transport write happens under the lock.
type Registry struct {
	mu      sync.Mutex
	sinks   map[string]sink
	onEvict func(addr string)

	log         log.Logger
	workerGauge metrics.Gauge
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sinks:       make(map[string]sink),
		log:         log.New("component", "registry"),
		workerGauge: metrics.NewRegisteredGauge("server/workers", nil),
	}
}

// OnEvict installs the hook run (under the registry lock) whenever a sink is
// removed. The coordinator uses it to drop the address from the ready set,
// keeping the roster coherent.
func (r *Registry) OnEvict(hook func(addr string)) {
	r.mu.Lock()
	r.onEvict = hook
	r.mu.Unlock()
}

// Attach registers the sink for addr. A second attach for the same address
// keeps the existing sink and returns ErrDuplicateConn.
func (r *Registry) Attach(addr string, s sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sinks[addr]; ok {
		r.log.Warn("Address already has an active connection", "addr", addr)
		return ErrDuplicateConn
	}
	r.sinks[addr] = s
	r.workerGauge.Update(int64(len(r.sinks)))
	return nil
}

// Has reports whether addr has a live sink.
func (r *Registry) Has(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sinks[addr]
	return ok
}

// Len returns the number of attached workers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sinks)
}

// Addresses returns the attached addresses in sorted order.
func (r *Registry) Addresses() []string {
	r.mu.Lock()
	addrs := make([]string, 0, len(r.sinks))
	for addr := range r.sinks {
		addrs = append(addrs, addr)
	}
	r.mu.Unlock()
	sort.Strings(addrs)
	return addrs
}

// SendAssignment sends an assignment frame to addr. Best effort: a send
// error leaves the sink attached, since eviction during an in-flight frame
// belongs to the ping sweep alone.
func (r *Registry) SendAssignment(addr string, a pool.Assignment) error {
	return r.send(addr, websocket.BinaryMessage, encodeAssignment(a))
}

// SendText sends a text frame to addr. Best effort, like SendAssignment.
func (r *Registry) SendText(addr, msg string) error {
	return r.send(addr, websocket.TextMessage, []byte(msg))
}

func (r *Registry) send(addr string, messageType int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sinks[addr]
	if !ok {
		return ErrNotAttached
	}
	return s.WriteMessage(messageType, data)
}

// Evict removes addr's sink, closes it and runs the evict hook. Safe to call
// for addresses that are already gone.
func (r *Registry) Evict(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(addr)
}

func (r *Registry) evictLocked(addr string) {
	s, ok := r.sinks[addr]
	if !ok {
		return
	}
	delete(r.sinks, addr)
	s.Close()
	if r.onEvict != nil {
		r.onEvict(addr)
	}
	r.workerGauge.Update(int64(len(r.sinks)))
	r.log.Debug("Worker evicted", "addr", addr)
}

// PingAll sends the application ping to every sink and evicts, within the
// same critical section, every sink whose send failed. After the sweep the
// roster holds exactly the sinks whose last send succeeded.
func (r *Registry) PingAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []string
	for addr, s := range r.sinks {
		if err := s.WriteMessage(websocket.PingMessage, pingPayload); err != nil {
			failed = append(failed, addr)
		}
	}
	for _, addr := range failed {
		r.log.Debug("Ping failed", "addr", addr)
		r.evictLocked(addr)
	}
}
