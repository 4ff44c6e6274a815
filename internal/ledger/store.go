/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Store persists accounts and the block chain. Commit must apply a block
// and its account writes atomically.
type Store interface {
	Account(ctx context.Context, addr Address) (Account, error)
	Accounts(ctx context.Context, owner Address) ([]Account, error)
	Head(ctx context.Context) (Block, error)
	Block(ctx context.Context, index uint64) (Block, error)
	HasSignature(ctx context.Context, signature string) (bool, error)
	Commit(ctx context.Context, block Block, accounts []Account) error
	Close() error
}

type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[Address]Account
	blocks     []Block
	signatures map[string]uint64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[Address]Account),
		signatures: make(map[string]uint64),
	}
}

func (s *MemoryStore) Account(_ context.Context, addr Address) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[addr]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}

	acct.Data = slices.Clone(acct.Data)

	return acct, nil
}

func (s *MemoryStore) Accounts(_ context.Context, owner Address) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Account
	for _, acct := range s.accounts {
		if acct.Owner == owner {
			acct.Data = slices.Clone(acct.Data)
			out = append(out, acct)
		}
	}

	return out, nil
}

func (s *MemoryStore) Head(_ context.Context) (Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.blocks) == 0 {
		return Block{}, ErrEmptyChain
	}

	return s.blocks[len(s.blocks)-1], nil
}

func (s *MemoryStore) Block(_ context.Context, index uint64) (Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index >= uint64(len(s.blocks)) {
		return Block{}, fmt.Errorf("block %d out of range", index)
	}

	return s.blocks[index], nil
}

func (s *MemoryStore) HasSignature(_ context.Context, signature string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.signatures[signature]

	return ok, nil
}

func (s *MemoryStore) Commit(_ context.Context, block Block, accounts []Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if block.Index != uint64(len(s.blocks)) {
		return fmt.Errorf("%w: expected block %d, got %d", ErrConflict, len(s.blocks), block.Index)
	}

	for _, acct := range accounts {
		acct.Data = slices.Clone(acct.Data)
		s.accounts[acct.Address] = acct
	}
	s.blocks = append(s.blocks, block)
	if block.Signature != "" {
		s.signatures[block.Signature] = block.Index
	}

	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
