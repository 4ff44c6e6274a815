/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Seednode/clicker/internal/ledger"
	"github.com/allegro/bigcache/v3"
)

// Keyring holds throwaway keys for browser sessions. A key is kept for ttl
// after its last use, so a returning player keeps their identity.
type Keyring struct {
	mu    sync.Mutex
	cache *bigcache.BigCache
}

func NewKeyring(ctx context.Context, ttl time.Duration) (*Keyring, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 1024
	cfg.MaxEntrySize = 64
	cfg.CleanWindow = max(ttl/2, time.Second)
	cfg.Verbose = false

	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Keyring{cache: cache}, nil
}

// Keypair returns the key held for id, generating one on first use.
func (k *Keyring) Keypair(id string) (*ledger.Keypair, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	seed, err := k.cache.Get(id)
	switch {
	case err == nil:
		key, err := ledger.KeypairFromSeed(seed)
		if err != nil {
			return nil, err
		}
		return key, k.cache.Set(id, seed)
	case !errors.Is(err, bigcache.ErrEntryNotFound):
		return nil, err
	}

	key, err := ledger.NewKeypair()
	if err != nil {
		return nil, err
	}

	return key, k.cache.Set(id, key.Seed())
}

// Forget drops the key held for id.
func (k *Keyring) Forget(id string) error {
	err := k.cache.Delete(id)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (k *Keyring) Len() int {
	return k.cache.Len()
}

func (k *Keyring) Close() error {
	return k.cache.Close()
}

// Burner is a wallet whose key is generated by the server for one browser
// session and held in a Keyring.
type Burner struct {
	id   string
	ring *Keyring

	mu sync.Mutex
	keyWallet
}

var _ Wallet = (*Burner)(nil)

func NewBurner(ring *Keyring, sessionID string) *Burner {
	return &Burner{id: sessionID, ring: ring}
}

func (w *Burner) Name() string {
	return "burner"
}

func (w *Burner) ReadyState() ReadyState {
	if w.ring == nil || w.id == "" {
		return NotDetected
	}
	return Installed
}

func (w *Burner) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if w.ReadyState() != Installed {
		return ErrNotInstalled
	}

	key, err := w.ring.Keypair(w.id)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.key = key
	w.mu.Unlock()

	return nil
}

func (w *Burner) Disconnect() error {
	w.mu.Lock()
	w.key = nil
	w.mu.Unlock()

	return nil
}

func (w *Burner) Address() ledger.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keyWallet.Address()
}

func (w *Burner) Sign(message []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keyWallet.Sign(message)
}

func (w *Burner) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keyWallet.Connected()
}

func (w *Burner) PublicIdentity() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keyWallet.PublicIdentity()
}
