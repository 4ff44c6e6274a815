/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/Seednode/clicker/internal/ledger"
	"github.com/mr-tron/base58"
)

// Keyfile is a wallet whose key lives in a file: either a JSON array of the
// 64 private key bytes, as written by solana-keygen and GenerateKeyfile, or
// the base58 form of the seed or private key.
type Keyfile struct {
	path string

	mu sync.Mutex
	keyWallet
}

var _ Wallet = (*Keyfile)(nil)

func NewKeyfile(path string) *Keyfile {
	return &Keyfile{path: path}
}

func (w *Keyfile) Name() string {
	return "keyfile"
}

func (w *Keyfile) ReadyState() ReadyState {
	if w.path == "" {
		return NotDetected
	}

	info, err := os.Stat(w.path)
	if err != nil || !info.Mode().IsRegular() {
		return NotDetected
	}

	return Installed
}

func (w *Keyfile) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if w.ReadyState() != Installed {
		return fmt.Errorf("%w: %s", ErrNotInstalled, w.path)
	}

	key, err := ReadKeyfile(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.key = key
	w.mu.Unlock()

	return nil
}

func (w *Keyfile) Disconnect() error {
	w.mu.Lock()
	w.key = nil
	w.mu.Unlock()

	return nil
}

func (w *Keyfile) Address() ledger.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keyWallet.Address()
}

func (w *Keyfile) Sign(message []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keyWallet.Sign(message)
}

func (w *Keyfile) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keyWallet.Connected()
}

func (w *Keyfile) PublicIdentity() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keyWallet.PublicIdentity()
}

func ReadKeyfile(path string) (*ledger.Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)

	var raw []byte
	if bytes.HasPrefix(data, []byte("[")) {
		var ints []int
		if err := json.Unmarshal(data, &ints); err != nil {
			return nil, fmt.Errorf("parse keyfile %s: %w", path, err)
		}

		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("parse keyfile %s: byte %d out of range", path, i)
			}
			raw[i] = byte(v)
		}
	} else {
		raw, err = base58.Decode(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse keyfile %s: %w", path, err)
		}
	}

	key, err := ledger.KeypairFromSeed(raw)
	if err != nil {
		return nil, fmt.Errorf("parse keyfile %s: %w", path, err)
	}

	return key, nil
}

// GenerateKeyfile writes a new key to path, refusing to overwrite an
// existing file.
func GenerateKeyfile(path string) (*ledger.Keypair, error) {
	key, err := ledger.NewKeypair()
	if err != nil {
		return nil, err
	}

	priv := key.PrivateKey()
	ints := make([]int, len(priv))
	for i, b := range priv {
		ints[i] = int(b)
	}

	data, err := json.Marshal(ints)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return nil, err
	}

	return key, f.Close()
}
