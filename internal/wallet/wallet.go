/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package wallet provides the wallets a player can connect with. Every
// wallet exposes the same surface; which ones are offered is decided at
// runtime by asking each whether it is available.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/Seednode/clicker/internal/ledger"
)

var (
	ErrNotConnected = errors.New("wallet not connected")
	ErrNotInstalled = errors.New("wallet not installed")
	ErrUnknown      = errors.New("unknown wallet")
)

type ReadyState int

const (
	NotDetected ReadyState = iota
	Installed
	Loadable
)

func (r ReadyState) String() string {
	switch r {
	case Installed:
		return "installed"
	case Loadable:
		return "loadable"
	default:
		return "not-detected"
	}
}

// Wallet holds a player's key. Address and Sign only work while connected.
type Wallet interface {
	ledger.Signer

	Name() string
	ReadyState() ReadyState
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool

	// PublicIdentity is the connected player's identity, or "".
	PublicIdentity() string
}

// Available filters wallets down to the ones ready to connect.
func Available(wallets []Wallet) []Wallet {
	var out []Wallet
	for _, w := range wallets {
		if w.ReadyState() == Installed {
			out = append(out, w)
		}
	}
	return out
}

// Find returns the named wallet, provided it is installed.
func Find(wallets []Wallet, name string) (Wallet, error) {
	for _, w := range wallets {
		if w.Name() != name {
			continue
		}
		if w.ReadyState() != Installed {
			return nil, fmt.Errorf("%w: %s", ErrNotInstalled, name)
		}
		return w, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
}

// Short abbreviates a connected identity for the wallet menu.
func Short(identity string) string {
	if len(identity) <= 8 {
		return identity
	}

	return identity[:4] + ".." + identity[len(identity)-4:]
}

// keyWallet is the connected-key bookkeeping shared by every provider.
type keyWallet struct {
	key *ledger.Keypair
}

func (w *keyWallet) Address() ledger.Address {
	if w.key == nil {
		return ledger.Address{}
	}
	return w.key.Address()
}

func (w *keyWallet) Sign(message []byte) ([]byte, error) {
	if w.key == nil {
		return nil, ErrNotConnected
	}
	return w.key.Sign(message)
}

func (w *keyWallet) Connected() bool {
	return w.key != nil
}

func (w *keyWallet) PublicIdentity() string {
	if w.key == nil {
		return ""
	}
	return w.key.Address().String()
}
