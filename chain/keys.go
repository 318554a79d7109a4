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
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Keypair is the pool's ed25519 signing identity.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypairFromSeed derives a keypair from a 32-byte seed. Used by tests.
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length %d", len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// LoadKeypair reads a wallet file containing the JSON array of 64 key bytes
// (seed followed by public key) and returns the keypair.
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet file: %w", err)
	}
	// The wallet format is a JSON array of byte values, not a base64 blob,
	// so it cannot decode straight into a []byte.
	var values []int16
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode wallet file: %w", err)
	}
	if len(values) != ed25519.PrivateKeySize {
		return nil, errors.New("wallet file does not contain a 64-byte keypair")
	}
	bytes := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("wallet file byte %d out of range: %d", i, v)
		}
		bytes[i] = byte(v)
	}
	kp := &Keypair{priv: ed25519.PrivateKey(bytes)}
	// The trailing 32 bytes must be the public key of the leading seed,
	// otherwise signatures produced from the file would not verify.
	derived := ed25519.NewKeyFromSeed(bytes[:ed25519.SeedSize])
	if !derived.Public().(ed25519.PublicKey).Equal(kp.priv.Public().(ed25519.PublicKey)) {
		return nil, errors.New("wallet file public key does not match seed")
	}
	return kp, nil
}

// Pubkey returns the public half of the keypair.
func (k *Keypair) Pubkey() Pubkey {
	return BytesToPubkey(k.priv.Public().(ed25519.PublicKey))
}
