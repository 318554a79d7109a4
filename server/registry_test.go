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
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rthzxy/ore-hq-server/pool"
)

// stubSink records writes and can be told to fail.
type stubSink struct {
	mu     sync.Mutex
	frames [][]byte
	types  []int
	fail   bool
	closed bool
}

func (s *stubSink) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broken pipe")
	}
	s.types = append(s.types, messageType)
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func (s *stubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestRegistryAttachDuplicate(t *testing.T) {
	r := NewRegistry()
	first, second := new(stubSink), new(stubSink)

	require.NoError(t, r.Attach("a", first))
	require.ErrorIs(t, r.Attach("a", second), ErrDuplicateConn)

	// The original sink keeps receiving.
	require.NoError(t, r.SendText("a", "hi"))
	require.Len(t, first.frames, 1)
	require.Empty(t, second.frames)
}

func TestRegistrySendToMissing(t *testing.T) {
	r := NewRegistry()
	require.ErrorIs(t, r.SendText("ghost", "hi"), ErrNotAttached)
	require.ErrorIs(t, r.SendAssignment("ghost", pool.Assignment{}), ErrNotAttached)
}

// A failed send leaves the sink attached; only the ping sweep evicts.
func TestRegistrySendFailureKeepsSink(t *testing.T) {
	r := NewRegistry()
	s := &stubSink{fail: true}
	require.NoError(t, r.Attach("a", s))

	require.Error(t, r.SendAssignment("a", pool.Assignment{}))
	require.True(t, r.Has("a"))
}

func TestRegistryEvict(t *testing.T) {
	r := NewRegistry()
	var evicted []string
	r.OnEvict(func(addr string) { evicted = append(evicted, addr) })

	s := new(stubSink)
	require.NoError(t, r.Attach("a", s))
	r.Evict("a")

	require.False(t, r.Has("a"))
	require.True(t, s.closed)
	require.Equal(t, []string{"a"}, evicted)

	// Idempotent: evicting again neither panics nor re-fires the hook.
	r.Evict("a")
	require.Equal(t, []string{"a"}, evicted)
}

// After a sweep the roster holds exactly the sinks whose send succeeded, and
// every eviction ran the ready-set hook.
func TestRegistryPingSweep(t *testing.T) {
	r := NewRegistry()
	ready := map[string]bool{"a": true, "b": true, "c": true}
	r.OnEvict(func(addr string) { delete(ready, addr) })

	good, bad, alsoGood := new(stubSink), &stubSink{fail: true}, new(stubSink)
	require.NoError(t, r.Attach("a", good))
	require.NoError(t, r.Attach("b", bad))
	require.NoError(t, r.Attach("c", alsoGood))

	r.PingAll()

	require.Equal(t, []string{"a", "c"}, r.Addresses())
	require.True(t, bad.closed)

	// Roster coherence: the ready set never holds an evicted address.
	for addr := range ready {
		require.True(t, r.Has(addr))
	}

	// The survivors actually got the 3-byte ping payload.
	require.Equal(t, []int{websocket.PingMessage}, good.types)
	require.Equal(t, [][]byte{{1, 2, 3}}, good.frames)
}

// Concurrent attaches, sends and sweeps must leave the roster consistent.
func TestRegistryConcurrency(t *testing.T) {
	r := NewRegistry()
	r.OnEvict(func(string) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := string(rune('a' + i))
			r.Attach(addr, new(stubSink))
			r.SendText(addr, "x")
			r.PingAll()
			if i%2 == 0 {
				r.Evict(addr)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, len(r.Addresses()), r.Len())
}
