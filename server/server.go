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

// Package server exposes the worker-facing websocket endpoint: the listener,
// the per-connection receive loops, and the connection registry with its
// liveness sweep.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"

	"github.com/rthzxy/ore-hq-server/pool"
)

// pingInterval is the cadence of the application-level liveness sweep.
const pingInterval = 5 * time.Second

// Server accepts worker websocket connections and feeds their frames into
// the event bus. A worker is identified by its remote socket address for the
// lifetime of the connection.
type Server struct {
	registry *Registry
	bus      *pool.Bus
	log      log.Logger
	upgrader websocket.Upgrader
}

// New creates a server publishing into bus and tracking connections in
// registry.
func New(registry *Registry, bus *pool.Bus) *Server {
	return &Server{
		registry: registry,
		bus:      bus,
		log:      log.New("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Workers are headless processes, not browsers; any origin that
			// completes the upgrade is accepted.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler serving websocket upgrades on GET /.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	return mux
}

// Run serves the listener on addr and runs the ping sweep until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go s.pingLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("Listening for workers", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.PingAll()
		}
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	addr := conn.RemoteAddr().String()
	s.log.Info("Worker connected", "addr", addr)

	// If the opening ping cannot be written there is nothing to be done with
	// this connection.
	if err := conn.WriteMessage(websocket.PingMessage, pingPayload); err != nil {
		s.log.Debug("Could not ping new worker", "addr", addr, "err", err)
		conn.Close()
		return
	}

	// Worker pings are ignored rather than answered: every write to the
	// connection must go through the registry lock, and workers only expect
	// pongs from their own transport layer.
	conn.SetPingHandler(func(string) error { return nil })
	conn.SetPongHandler(func(string) error { return nil })

	if err := s.registry.Attach(addr, conn); err != nil {
		conn.Close()
		return
	}
	go s.readLoop(conn, addr)
}

// readLoop decodes frames from one worker until close or transport error,
// then evicts the worker from the registry (and through the evict hook, the
// ready set).
func (s *Server) readLoop(conn *websocket.Conn, addr string) {
	defer func() {
		s.registry.Evict(addr)
		s.log.Info("Worker disconnected", "addr", addr)
	}()
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Worker read error", "addr", addr, "err", err)
			}
			return
		}
		switch messageType {
		case websocket.TextMessage:
			s.log.Debug("Worker sent text", "addr", addr, "text", string(data))

		case websocket.BinaryMessage:
			ev, err := decodeWorkerFrame(addr, data)
			if err != nil {
				// One bad frame is not a reason to drop the worker.
				s.log.Warn("Invalid worker frame", "addr", addr, "err", err)
				continue
			}
			s.bus.Publish(ev)

		default:
			s.log.Debug("Ignoring frame", "addr", addr, "type", messageType)
		}
	}
}
