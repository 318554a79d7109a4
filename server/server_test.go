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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rthzxy/ore-hq-server/ore"
	"github.com/rthzxy/ore-hq-server/pool"
)

// dialTestServer spins up the websocket endpoint and connects one client.
// The client's control-frame pump runs until the connection dies.
func dialTestServer(t *testing.T) (*Registry, *pool.Bus, *websocket.Conn, <-chan []byte) {
	t.Helper()

	registry := NewRegistry()
	bus := pool.NewBus()
	srv := New(registry, bus)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(bus.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	pings := make(chan []byte, 4)
	conn.SetPingHandler(func(payload string) error {
		select {
		case pings <- []byte(payload):
		default:
		}
		return nil
	})
	// Pump the connection so control frames and server texts are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return registry, bus, conn, pings
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// A fresh connection gets the opening application ping and lands in the
// registry.
func TestServerHandshake(t *testing.T) {
	registry, _, _, pings := dialTestServer(t)

	select {
	case payload := <-pings:
		require.Equal(t, []byte{1, 2, 3}, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no opening ping")
	}
	waitFor(t, "attach", func() bool { return registry.Len() == 1 })
}

// Worker frames surface as bus events tagged with the sender's address, and
// a malformed frame costs nothing but a log line.
func TestServerFrameDispatch(t *testing.T) {
	registry, bus, conn, _ := dialTestServer(t)
	waitFor(t, "attach", func() bool { return registry.Len() == 1 })
	addr := registry.Addresses()[0]

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{readyTag}))
	ev := <-bus.Events()
	require.Equal(t, pool.ReadyEvent{Addr: addr}, ev)

	// Garbage neither produces an event nor kills the connection.
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x7f, 0xff}))

	sol := ore.Solve([32]byte{0xee}, 123)
	frame := append([]byte{solutionTag}, sol.Digest[:]...)
	frame = append(frame, sol.Nonce[:]...)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	ev = <-bus.Events()
	require.Equal(t, pool.SolutionEvent{Addr: addr, Solution: sol}, ev)

	// Text frames are logged and ignored.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{miningTag}))
	ev = <-bus.Events()
	require.Equal(t, pool.MiningEvent{Addr: addr}, ev)
}

// Closing the socket ends the receive loop and evicts the worker.
func TestServerDisconnectEvicts(t *testing.T) {
	registry, _, conn, _ := dialTestServer(t)
	waitFor(t, "attach", func() bool { return registry.Len() == 1 })
	addr := registry.Addresses()[0]

	var evicted []string
	registry.OnEvict(func(a string) { evicted = append(evicted, a) })

	conn.Close()
	waitFor(t, "evict", func() bool { return registry.Len() == 0 })
	require.Equal(t, []string{addr}, evicted)
}
