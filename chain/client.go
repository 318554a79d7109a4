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

package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrAccountNotFound is returned by AccountData when the requested account
// does not exist on chain.
var ErrAccountNotFound = errors.New("account not found")

// Client is the coordinator's view of the chain node. All failures are
// transient from the caller's perspective; retry policy belongs to callers.
type Client interface {
	// AccountData fetches the raw data of the account at key, or
	// ErrAccountNotFound if the account does not exist.
	AccountData(ctx context.Context, key Pubkey) ([]byte, error)

	// Balance fetches the lamport balance of the account at key.
	Balance(ctx context.Context, key Pubkey) (uint64, error)

	// LatestBlockhash fetches a recent blockhash usable for signing.
	LatestBlockhash(ctx context.Context) (Hash, error)

	// SendAndConfirm submits a signed transaction and blocks until the node
	// reports it confirmed or rejected.
	SendAndConfirm(ctx context.Context, tx *Transaction) (Signature, error)
}

// rpcClient implements Client over a generic JSON-RPC connection.
type rpcClient struct {
	c *rpc.Client
}

// Dial connects to the chain node at url and returns a Client backed by it.
func Dial(ctx context.Context, url string) (Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial chain node: %w", err)
	}
	return &rpcClient{c: c}, nil
}

func (rc *rpcClient) AccountData(ctx context.Context, key Pubkey) ([]byte, error) {
	var data hexutil.Bytes
	if err := rc.c.CallContext(ctx, &data, "getAccountData", key.String()); err != nil {
		return nil, fmt.Errorf("getAccountData: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrAccountNotFound
	}
	return data, nil
}

func (rc *rpcClient) Balance(ctx context.Context, key Pubkey) (uint64, error) {
	var balance hexutil.Uint64
	if err := rc.c.CallContext(ctx, &balance, "getBalance", key.String()); err != nil {
		return 0, fmt.Errorf("getBalance: %w", err)
	}
	return uint64(balance), nil
}

func (rc *rpcClient) LatestBlockhash(ctx context.Context) (Hash, error) {
	var raw hexutil.Bytes
	if err := rc.c.CallContext(ctx, &raw, "getLatestBlockhash"); err != nil {
		return Hash{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}
	if len(raw) != HashLength {
		return Hash{}, fmt.Errorf("getLatestBlockhash: unexpected hash length %d", len(raw))
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

func (rc *rpcClient) SendAndConfirm(ctx context.Context, tx *Transaction) (Signature, error) {
	var raw hexutil.Bytes
	wire := hexutil.Bytes(tx.Serialize())
	if err := rc.c.CallContext(ctx, &raw, "sendAndConfirmTransaction", wire); err != nil {
		return Signature{}, fmt.Errorf("sendAndConfirmTransaction: %w", err)
	}
	if len(raw) != SignatureLength {
		return Signature{}, fmt.Errorf("sendAndConfirmTransaction: unexpected signature length %d", len(raw))
	}
	var sig Signature
	copy(sig[:], raw)
	return sig, nil
}
