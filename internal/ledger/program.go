/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Program executes instructions addressed to its ID against the accounts a
// transaction names.
type Program interface {
	ID() Address

	// Execute returns the instruction name recorded in the block.
	Execute(ix Instruction, accounts *AccountSet) (string, error)
}

// AccountSet stages the account writes of one transaction. Nothing reaches
// the store unless the whole instruction succeeds.
type AccountSet struct {
	ctx     context.Context
	store   Store
	program Address
	metas   map[Address]AccountMeta
	signed  map[Address]bool
	staged  map[Address]Account
	order   []Address
}

func newAccountSet(ctx context.Context, store Store, program Address, tx *Transaction) *AccountSet {
	s := &AccountSet{
		ctx:     ctx,
		store:   store,
		program: program,
		metas:   make(map[Address]AccountMeta, len(tx.Instruction.Accounts)),
		signed:  make(map[Address]bool, len(tx.Signatures)),
		staged:  make(map[Address]Account),
	}

	for _, m := range tx.Instruction.Accounts {
		s.metas[m.Address] = m
	}
	for _, sig := range tx.Signatures {
		s.signed[sig.Signer] = true
	}

	return s
}

// IsSigner reports whether addr is a signer of the transaction.
func (s *AccountSet) IsSigner(addr Address) bool {
	return s.metas[addr].Signer && s.signed[addr]
}

func (s *AccountSet) Get(addr Address) (Account, error) {
	if _, ok := s.metas[addr]; !ok {
		return Account{}, fmt.Errorf("%w: %s not listed by the instruction", ErrInvalidAccount, addr)
	}

	if acct, ok := s.staged[addr]; ok {
		return acct, nil
	}

	return s.store.Account(s.ctx, addr)
}

// Create makes a new account owned by the executing program.
func (s *AccountSet) Create(addr Address, data []byte) error {
	if err := s.writable(addr); err != nil {
		return err
	}

	_, err := s.Get(addr)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrAccountExists, addr)
	case !errors.Is(err, ErrAccountNotFound):
		return err
	}

	s.stage(Account{Address: addr, Owner: s.program, Data: data})

	return nil
}

// Write replaces the data of an existing account owned by the executing
// program.
func (s *AccountSet) Write(addr Address, data []byte) error {
	if err := s.writable(addr); err != nil {
		return err
	}

	acct, err := s.Get(addr)
	if err != nil {
		return err
	}
	if acct.Owner != s.program {
		return fmt.Errorf("%w: %s is owned by %s", ErrInvalidAccount, addr, acct.Owner)
	}

	acct.Data = data
	s.stage(acct)

	return nil
}

func (s *AccountSet) writable(addr Address) error {
	if !s.metas[addr].Writable {
		return fmt.Errorf("%w: %s is not writable", ErrInvalidAccount, addr)
	}
	return nil
}

func (s *AccountSet) stage(acct Account) {
	if _, ok := s.staged[acct.Address]; !ok {
		s.order = append(s.order, acct.Address)
	}
	s.staged[acct.Address] = acct
}

func (s *AccountSet) changed() []Account {
	out := make([]Account, 0, len(s.order))
	for _, addr := range s.order {
		out = append(out, s.staged[addr])
	}
	return out
}
