/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// Address is a 32-byte ed25519 public key. Its text form is base58.
type Address [ed25519.PublicKeySize]byte

func ParseAddress(s string) (Address, error) {
	var a Address

	b, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("invalid address %q: decoded to %d bytes", s, len(b))
	}

	copy(a[:], b)

	return a, nil
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}

// Signer holds a private key able to authorise transactions for Address.
type Signer interface {
	Address() Address
	Sign(message []byte) ([]byte, error)
}

// Keypair is an in-memory ed25519 Signer.
type Keypair struct {
	key ed25519.PrivateKey
}

var _ Signer = (*Keypair)(nil)

func NewKeypair() (*Keypair, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	return &Keypair{key: key}, nil
}

// KeypairFromSeed accepts a 32-byte seed or a 64-byte private key.
func KeypairFromSeed(b []byte) (*Keypair, error) {
	switch len(b) {
	case ed25519.SeedSize:
		return &Keypair{key: ed25519.NewKeyFromSeed(b)}, nil
	case ed25519.PrivateKeySize:
		k := &Keypair{key: ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])}
		if string(k.key) != string(b) {
			return nil, fmt.Errorf("private key does not match its public half")
		}
		return k, nil
	default:
		return nil, fmt.Errorf("invalid key length %d", len(b))
	}
}

func (k *Keypair) Address() Address {
	var a Address
	copy(a[:], k.key.Public().(ed25519.PublicKey))
	return a
}

func (k *Keypair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.key, message), nil
}

func (k *Keypair) Seed() []byte {
	return k.key.Seed()
}

// PrivateKey returns the 64-byte seed-and-public-key form.
func (k *Keypair) PrivateKey() []byte {
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out
}

func verify(signer Address, message, signature []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(signer[:]), message, signature)
}
