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

// Package pool implements the round coordinator: the state machine driving
// the challenge/dispatch/collect/submit/refresh cycle over the connected
// worker fleet.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/rthzxy/ore-hq-server/chain"
	"github.com/rthzxy/ore-hq-server/ore"
)

const (
	// nonceChunk is the size of each dispatched nonce range, sized to the
	// maximum per-worker hashrate over the longest possible round (~60s) so
	// a worker exhausting its range is the boundary case, not the norm.
	nonceChunk = 2_000_000

	// minDifficulty is the strict floor a solution must exceed before it may
	// become the round's best.
	minDifficulty = 3

	// submitBus is the rate-limit bus the mine instruction targets.
	// TODO(bus selection): pick by recent rejection rate instead.
	submitBus = 4

	computeUnitLimit = 480_000
	computeUnitPrice = 100_000

	readyAck = "Client successfully added."
)

// Assignment is the round work unit broadcast to one worker: the challenge,
// the seconds left to mine, and the worker's private nonce range.
type Assignment struct {
	Challenge  [32]byte
	Cutoff     int64
	NonceStart uint64
	NonceEnd   uint64
}

// Backend is the chain surface the coordinator needs. *gateway.Gateway
// implements it.
type Backend interface {
	LoadProof(ctx context.Context, authority chain.Pubkey) (*ore.Proof, error)
	LatestBlockhash(ctx context.Context) (chain.Hash, error)
	SendAndConfirm(ctx context.Context, tx *chain.Transaction) (chain.Signature, error)
	Cutoff(proof *ore.Proof, buffer int64) int64
}

// Transport is the worker-facing surface the coordinator needs.
// *server.Registry implements it. Sends are best-effort; a send error never
// evicts (that is the ping sweep's job, to avoid racing in-flight frames).
type Transport interface {
	Has(addr string) bool
	SendText(addr, msg string) error
	SendAssignment(addr string, a Assignment) error
}

// Config tunes the coordinator's clocks and budgets. Zero values take the
// production defaults; tests shrink the delays.
type Config struct {
	DispatchInterval time.Duration // dispatch loop period
	DispatchBuffer   int64         // seconds shaved off the cutoff handed to workers
	IdlePoll         time.Duration // submission loop poll when past cutoff with no solution
	SubmitAttempts   int           // send-and-confirm budget per round
	SubmitRetryGap   time.Duration // gap between send attempts
	BlockhashRetry   time.Duration // sleep after a failed blockhash fetch
	RefreshInterval  time.Duration // proof re-poll gap after a confirmed submission
	RefreshTimeout   time.Duration // cap on proof re-polling before the round is failed
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DispatchInterval == 0 {
		out.DispatchInterval = 5 * time.Second
	}
	if out.DispatchBuffer == 0 {
		out.DispatchBuffer = 5
	}
	if out.IdlePoll == 0 {
		out.IdlePoll = 500 * time.Millisecond
	}
	if out.SubmitAttempts == 0 {
		out.SubmitAttempts = 3
	}
	if out.SubmitRetryGap == 0 {
		out.SubmitRetryGap = 500 * time.Millisecond
	}
	if out.BlockhashRetry == 0 {
		out.BlockhashRetry = time.Second
	}
	if out.RefreshInterval == 0 {
		out.RefreshInterval = 500 * time.Millisecond
	}
	if out.RefreshTimeout == 0 {
		out.RefreshTimeout = 30 * time.Second
	}
	return out
}

// Coordinator owns the round state and runs the dispatch loop, the
// submission loop and the event consumer.
type Coordinator struct {
	cfg       Config
	wallet    *chain.Keypair
	backend   Backend
	transport Transport
	bus       *Bus
	log       log.Logger

	proof  proofCell
	best   bestShare
	cursor nonceCursor
	ready  *readySet

	dispatchMeter metrics.Meter
	acceptMeter   metrics.Meter
	rejectMeter   metrics.Meter
	submitMeter   metrics.Meter
	failMeter     metrics.Meter
	bestGauge     metrics.Gauge
}

// New creates a coordinator seeded with the boot-time proof.
func New(cfg Config, wallet *chain.Keypair, backend Backend, transport Transport, bus *Bus, proof ore.Proof) *Coordinator {
	c := &Coordinator{
		cfg:       cfg.withDefaults(),
		wallet:    wallet,
		backend:   backend,
		transport: transport,
		bus:       bus,
		log:       log.New("component", "pool"),
		ready:     newReadySet(),

		dispatchMeter: metrics.NewRegisteredMeter("pool/dispatch/ranges", nil),
		acceptMeter:   metrics.NewRegisteredMeter("pool/solutions/accepted", nil),
		rejectMeter:   metrics.NewRegisteredMeter("pool/solutions/rejected", nil),
		submitMeter:   metrics.NewRegisteredMeter("pool/submit/confirmed", nil),
		failMeter:     metrics.NewRegisteredMeter("pool/submit/failed", nil),
		bestGauge:     metrics.NewRegisteredGauge("pool/best/difficulty", nil),
	}
	c.proof.Replace(proof)
	return c
}

// Run starts the loops and blocks until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); c.consumeEvents(ctx) }()
	go func() { defer wg.Done(); c.dispatchLoop(ctx) }()
	go func() { defer wg.Done(); c.submitLoop(ctx) }()
	wg.Wait()
}

// Forget drops addr from the ready set. The registry calls it on eviction so
// the roster and the ready set never disagree.
func (c *Coordinator) Forget(addr string) {
	c.ready.Remove(addr)
}

// consumeEvents is the single consumer of the bus; event application is
// serialized here.
func (c *Coordinator) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.bus.Events():
			if !ok {
				return
			}
			c.applyEvent(ev)
		}
	}
}

func (c *Coordinator) applyEvent(ev interface{}) {
	switch ev := ev.(type) {
	case ReadyEvent:
		if !c.transport.Has(ev.Addr) {
			c.log.Debug("Ready from unattached worker", "addr", ev.Addr)
			return
		}
		c.ready.Add(ev.Addr)
		c.log.Debug("Worker ready", "addr", ev.Addr)
		if err := c.transport.SendText(ev.Addr, readyAck); err != nil {
			c.log.Debug("Failed to ack ready worker", "addr", ev.Addr, "err", err)
		}

	case MiningEvent:
		c.log.Debug("Worker mining", "addr", ev.Addr)

	case SolutionEvent:
		c.applySolution(ev)

	default:
		c.log.Warn("Unknown event on bus", "event", ev)
	}
}

func (c *Coordinator) applySolution(ev SolutionEvent) {
	challenge := c.proof.Snapshot().Challenge
	if !ev.Solution.IsValid(challenge) {
		c.rejectMeter.Mark(1)
		c.log.Warn("Invalid solution", "addr", ev.Addr, "nonce", ev.Solution.NonceValue())
		return
	}
	diff := ev.Solution.Difficulty()
	if diff <= minDifficulty {
		c.rejectMeter.Mark(1)
		c.log.Debug("Solution difficulty too low", "addr", ev.Addr, "difficulty", diff)
		return
	}
	if c.best.Consider(ev.Solution, diff) {
		c.acceptMeter.Mark(1)
		c.bestGauge.Update(int64(diff))
		c.log.Info("New best solution", "addr", ev.Addr, "difficulty", diff, "nonce", ev.Solution.NonceValue())
	} else {
		c.log.Debug("Solution below round best", "addr", ev.Addr, "difficulty", diff)
	}
}

// replaceProofAndReset installs the next round's proof and zeroes the best
// share and nonce cursor in one critical region, so no dispatch can pair the
// new challenge with stale cursor state.
func (c *Coordinator) replaceProofAndReset(p ore.Proof) {
	c.proof.mu.Lock()
	c.best.mu.Lock()
	c.cursor.mu.Lock()
	c.proof.proof = p
	c.best.solution = nil
	c.best.diff = 0
	c.cursor.next = 0
	c.cursor.mu.Unlock()
	c.best.mu.Unlock()
	c.proof.mu.Unlock()
	c.bestGauge.Update(0)
}

// resetRound clears the best share and nonce cursor, keeping the proof. Used
// when the submission budget is exhausted.
func (c *Coordinator) resetRound() {
	c.best.mu.Lock()
	c.cursor.mu.Lock()
	c.best.solution = nil
	c.best.diff = 0
	c.cursor.next = 0
	c.cursor.mu.Unlock()
	c.best.mu.Unlock()
	c.bestGauge.Update(0)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
