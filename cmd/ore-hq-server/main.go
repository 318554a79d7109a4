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

// ore-hq-server is the coordinator of a distributed proof-of-work mining
// pool: it aggregates hashing throughput from remote workers, assigns each a
// disjoint nonce range against the current challenge, and submits the best
// solution on chain under the pool wallet.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/rthzxy/ore-hq-server/chain"
	"github.com/rthzxy/ore-hq-server/gateway"
	"github.com/rthzxy/ore-hq-server/ore"
	"github.com/rthzxy/ore-hq-server/pool"
	"github.com/rthzxy/ore-hq-server/server"
)

// minBootBalance is the lamport balance below which the pool wallet cannot
// reliably pay submission fees; boot refuses to continue under it.
const minBootBalance = 1_000_000

var (
	walletFlag = &cli.StringFlag{
		Name:    "wallet",
		Usage:   "Path of the pool wallet keypair file",
		EnvVars: []string{"WALLET_PATH"},
	}
	rpcFlag = &cli.StringFlag{
		Name:    "rpc",
		Usage:   "URL of the chain node's JSON-RPC endpoint",
		EnvVars: []string{"RPC_URL"},
	}
	listenFlag = &cli.StringFlag{
		Name:  "ws.addr",
		Usage: "Listening address for worker websocket connections",
		Value: "0.0.0.0:3000",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 4,
	}
	vmoduleFlag = &cli.StringFlag{
		Name:  "vmodule",
		Usage: "Per-module verbosity: comma-separated list of <pattern>=<level>",
	}
	metricsFlag = &cli.BoolFlag{
		Name:  "metrics",
		Usage: "Enable metrics collection and reporting",
	}
)

func main() {
	app := &cli.App{
		Name:   "ore-hq-server",
		Usage:  "mining pool coordinator",
		Flags:  []cli.Flag{walletFlag, rpcFlag, listenFlag, verbosityFlag, vmoduleFlag, metricsFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Fatal:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	setupLogging(c)
	if c.Bool(metricsFlag.Name) {
		metrics.Enabled = true
	}

	walletPath := c.String(walletFlag.Name)
	if walletPath == "" {
		return errors.New("WALLET_PATH must be set")
	}
	rpcURL := c.String(rpcFlag.Name)
	if rpcURL == "" {
		return errors.New("RPC_URL must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wallet, err := chain.LoadKeypair(walletPath)
	if err != nil {
		return fmt.Errorf("failed to load wallet at %s: %w", walletPath, err)
	}
	log.Info("Loaded wallet", "pubkey", wallet.Pubkey())

	log.Info("Establishing rpc connection", "url", rpcURL)
	client, err := chain.Dial(ctx, rpcURL)
	if err != nil {
		return err
	}
	gw := gateway.New(client)

	balance, err := gw.LoadBalance(ctx, wallet.Pubkey())
	if err != nil {
		return fmt.Errorf("failed to load balance: %w", err)
	}
	log.Info("Loaded wallet balance", "lamports", balance)
	if balance < minBootBalance {
		return fmt.Errorf("wallet balance %d below minimum %d lamports", balance, minBootBalance)
	}

	proof, err := bootProof(ctx, gw, wallet)
	if err != nil {
		return err
	}
	log.Info("Loaded proof", "challenge", fmt.Sprintf("%x", proof.Challenge), "balance", proof.Balance)

	// The bus is never closed: receive loops on hijacked websocket
	// connections outlive the listener's shutdown, and a publish after
	// close would panic for no benefit at process exit.
	bus := pool.NewBus()
	registry := server.NewRegistry()
	coord := pool.New(pool.Config{}, wallet, gw, registry, bus, *proof)
	registry.OnEvict(coord.Forget)
	srv := server.New(registry, bus)

	go coord.Run(ctx)
	return srv.Run(ctx, c.String(listenFlag.Name))
}

// bootProof loads the wallet's proof account, registering a fresh one if it
// does not exist yet. Any failure is fatal to boot.
func bootProof(ctx context.Context, gw *gateway.Gateway, wallet *chain.Keypair) (*ore.Proof, error) {
	proof, err := gw.LoadProof(ctx, wallet.Pubkey())
	if err == nil {
		return proof, nil
	}
	if !errors.Is(err, gateway.ErrNotFound) {
		return nil, fmt.Errorf("failed to load proof: %w", err)
	}
	log.Info("No proof account found, creating one")
	if _, err := gw.Register(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to create proof account: %w", err)
	}
	proof, err = gw.LoadProof(ctx, wallet.Pubkey())
	if err != nil {
		return nil, fmt.Errorf("failed to load newly created proof: %w", err)
	}
	return proof, nil
}

func setupLogging(c *cli.Context) {
	usecolor := isatty.IsTerminal(os.Stderr.Fd())
	glogger := log.NewGlogHandler(log.StreamHandler(os.Stderr, log.TerminalFormat(usecolor)))
	glogger.Verbosity(log.Lvl(c.Int(verbosityFlag.Name)))
	if vmodule := c.String(vmoduleFlag.Name); vmodule != "" {
		glogger.Vmodule(vmodule)
	}
	log.Root().SetHandler(glogger)
}
