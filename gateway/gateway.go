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

// Package gateway is the thin facade between the pool and the chain node:
// proof and balance reads, transaction submission, and the cutoff clock the
// round coordinator runs on.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/rthzxy/ore-hq-server/chain"
	"github.com/rthzxy/ore-hq-server/ore"
)

// ErrNotFound is returned by LoadProof when the authority has no proof
// account yet.
var ErrNotFound = errors.New("proof account not found")

// Gateway wraps a chain client with the pool's access patterns. All errors
// it returns are transient; callers decide on retries.
type Gateway struct {
	client chain.Client
	log    log.Logger

	// now is the unix-seconds clock, replaceable in tests.
	now func() int64
}

// New creates a gateway over client.
func New(client chain.Client) *Gateway {
	return &Gateway{
		client: client,
		log:    log.New("component", "gateway"),
		now:    func() int64 { return time.Now().Unix() },
	}
}

// LoadProof fetches and decodes the proof account of authority.
func (g *Gateway) LoadProof(ctx context.Context, authority chain.Pubkey) (*ore.Proof, error) {
	data, err := g.client.AccountData(ctx, ore.ProofAddress(authority))
	if errors.Is(err, chain.ErrAccountNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load proof: %w", err)
	}
	proof, err := ore.UnmarshalProof(data)
	if err != nil {
		return nil, fmt.Errorf("load proof: %w", err)
	}
	return proof, nil
}

// LoadBalance fetches the lamport balance of key.
func (g *Gateway) LoadBalance(ctx context.Context, key chain.Pubkey) (uint64, error) {
	balance, err := g.client.Balance(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("load balance: %w", err)
	}
	return balance, nil
}

// LatestBlockhash fetches a recent blockhash.
func (g *Gateway) LatestBlockhash(ctx context.Context) (chain.Hash, error) {
	return g.client.LatestBlockhash(ctx)
}

// SendAndConfirm submits tx and waits for confirmation.
func (g *Gateway) SendAndConfirm(ctx context.Context, tx *chain.Transaction) (chain.Signature, error) {
	return g.client.SendAndConfirm(ctx, tx)
}

// Register opens a proof account for the wallet with a single-instruction
// transaction. Boot treats a failure here as fatal.
func (g *Gateway) Register(ctx context.Context, wallet *chain.Keypair) (chain.Signature, error) {
	blockhash, err := g.LatestBlockhash(ctx)
	if err != nil {
		return chain.Signature{}, fmt.Errorf("register: %w", err)
	}
	tx := chain.NewTransaction(wallet.Pubkey(), blockhash, ore.Register(wallet.Pubkey()))
	tx.Sign(wallet)
	sig, err := g.SendAndConfirm(ctx, tx)
	if err != nil {
		return chain.Signature{}, fmt.Errorf("register: %w", err)
	}
	g.log.Info("Registered proof account", "sig", sig)
	return sig, nil
}

// Cutoff returns the seconds remaining until proof's round deadline, less
// buffer. Negative means the deadline has already passed.
func (g *Gateway) Cutoff(proof *ore.Proof, buffer int64) int64 {
	return proof.LastHashAt + ore.RoundDurationSec - buffer - g.now()
}
