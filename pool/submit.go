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
	"math"
	"time"

	"github.com/rthzxy/ore-hq-server/chain"
	"github.com/rthzxy/ore-hq-server/ore"
)

// newMineTx assembles the round's submission transaction: compute budget,
// the auth no-op, then the mine instruction itself.
func newMineTx(signer chain.Pubkey, blockhash chain.Hash, sol ore.Solution) *chain.Transaction {
	return chain.NewTransaction(signer, blockhash,
		ore.SetComputeUnitLimit(computeUnitLimit),
		ore.SetComputeUnitPrice(computeUnitPrice),
		ore.Auth(signer),
		ore.Mine(signer, sol, submitBus),
	)
}

// submitLoop waits out each round's cutoff and then drives the round's
// single submission attempt. It is strictly sequential: the next round
// cannot start until the previous submission confirmed or exhausted its
// retry budget.
func (c *Coordinator) submitLoop(ctx context.Context) {
	for ctx.Err() == nil {
		proof := c.proof.Snapshot()
		if cutoff := c.backend.Cutoff(&proof, 0); cutoff > 0 {
			sleepCtx(ctx, time.Duration(cutoff)*time.Second)
			continue
		}
		sol, diff := c.best.Snapshot()
		if sol == nil {
			// Deadline passed with nothing to submit; wait for workers.
			sleepCtx(ctx, c.cfg.IdlePoll)
			continue
		}
		c.submit(ctx, proof, *sol, diff)
	}
}

// submit drives one submission attempt for the round that produced proof:
// build the transaction, spend the retry budget, and either rotate to the
// refreshed proof or reset the round against the old one.
func (c *Coordinator) submit(ctx context.Context, proof ore.Proof, sol ore.Solution, diff uint32) {
	pub := c.wallet.Pubkey()

	blockhash, err := c.backend.LatestBlockhash(ctx)
	if err != nil {
		c.log.Error("Failed to fetch blockhash, retrying", "err", err)
		sleepCtx(ctx, c.cfg.BlockhashRetry)
		return
	}

	tx := newMineTx(pub, blockhash, sol)
	tx.Sign(c.wallet)

	c.log.Info("Submitting round solution", "difficulty", diff, "nonce", sol.NonceValue())
	for attempt := 1; attempt <= c.cfg.SubmitAttempts; attempt++ {
		c.log.Debug("Sending signed tx", "attempt", attempt)
		sig, err := c.backend.SendAndConfirm(ctx, tx)
		if err == nil {
			c.submitMeter.Mark(1)
			c.log.Info("Submission confirmed", "sig", sig, "attempt", attempt)
			c.finishRound(ctx, proof)
			return
		}
		c.log.Warn("Submission attempt failed", "attempt", attempt, "err", err)
		if attempt == c.cfg.SubmitAttempts {
			break
		}
		if !sleepCtx(ctx, c.cfg.SubmitRetryGap) {
			return
		}
	}

	c.failMeter.Mark(1)
	c.log.Warn("Submission budget exhausted, resetting round", "attempts", c.cfg.SubmitAttempts)
	c.resetRound()
}

// finishRound polls for the refreshed proof after a confirmed submission and
// rotates the round state to it. The poll is capped; a chain that never
// shows the new proof is treated as a failed submission.
func (c *Coordinator) finishRound(ctx context.Context, old ore.Proof) {
	deadline := time.Now().Add(c.cfg.RefreshTimeout)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		loaded, err := c.backend.LoadProof(ctx, c.wallet.Pubkey())
		if err == nil && *loaded != old {
			earned := float64(loaded.Balance-old.Balance) / math.Pow10(ore.TokenDecimals)
			c.log.Info("Round complete",
				"balance", float64(loaded.Balance)/math.Pow10(ore.TokenDecimals),
				"earned", earned)
			c.replaceProofAndReset(*loaded)
			return
		}
		if err != nil {
			c.log.Debug("Proof refresh failed, retrying", "err", err)
		}
		if !sleepCtx(ctx, c.cfg.RefreshInterval) {
			return
		}
	}
	c.log.Warn("Proof did not rotate in time, resetting round", "timeout", c.cfg.RefreshTimeout)
	c.resetRound()
}
