/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package ledger is the account ledger the clicker game keeps its scores
// on: a client contract for talking to one, and a reference ledger that
// verifies signed transactions, runs programs against accounts and records
// every commit in a hash-chained block.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

const blockTopic = "ledger:block"

// maxCommitAttempts bounds how often a transaction is re-executed after
// another writer to a shared store got its block in first.
const maxCommitAttempts = 5

// Client is what the game needs from a ledger.
type Client interface {
	// ProgramAccounts lists every account owned by program, in no
	// particular order.
	ProgramAccounts(ctx context.Context, program Address) ([]Account, error)

	// SubmitTransaction verifies, executes and commits tx.
	SubmitTransaction(ctx context.Context, tx *Transaction) (*Receipt, error)
}

type Ledger struct {
	mu       sync.Mutex
	store    Store
	programs map[Address]Program
	bus      evbus.Bus
	logger   *zap.Logger
	closed   bool

	subMu   sync.RWMutex
	subs    map[uint64]func(Block)
	nextSub uint64
}

var _ Client = (*Ledger)(nil)

// New opens a ledger over store, writing the genesis block if the store is
// empty.
func New(ctx context.Context, store Store, logger *zap.Logger, programs ...Program) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Ledger{
		store:    store,
		programs: make(map[Address]Program, len(programs)),
		bus:      evbus.New(),
		logger:   logger.Named("ledger"),
		subs:     make(map[uint64]func(Block)),
	}

	if err := l.bus.Subscribe(blockTopic, l.dispatch); err != nil {
		return nil, fmt.Errorf("subscribe to blocks: %w", err)
	}

	for _, p := range programs {
		l.programs[p.ID()] = p
	}

	head, err := store.Head(ctx)
	switch {
	case errors.Is(err, ErrEmptyChain):
		genesis := genesisBlock()
		if err := store.Commit(ctx, genesis, nil); err != nil {
			return nil, fmt.Errorf("write genesis block: %w", err)
		}
		l.logger.Info("created genesis block", zap.String("hash", genesis.Hash))
	case err != nil:
		return nil, fmt.Errorf("read head: %w", err)
	default:
		l.logger.Info("opened ledger", zap.Uint64("head", head.Index), zap.String("hash", head.Hash))
	}

	return l, nil
}

func (l *Ledger) ProgramAccounts(ctx context.Context, program Address) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return l.store.Accounts(ctx, program)
}

func (l *Ledger) Account(ctx context.Context, addr Address) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	return l.store.Account(ctx, addr)
}

func (l *Ledger) Head(ctx context.Context) (Block, error) {
	return l.store.Head(ctx)
}

func (l *Ledger) SubmitTransaction(ctx context.Context, tx *Transaction) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := tx.Verify(); err != nil {
		return nil, err
	}

	program, ok := l.programs[tx.Instruction.Program]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, tx.Instruction.Program)
	}

	var (
		block    Block
		accounts []Account
		err      error
	)
	for attempt := 1; ; attempt++ {
		block, accounts, err = l.commit(ctx, program, tx)
		if !errors.Is(err, ErrConflict) || attempt == maxCommitAttempts {
			break
		}

		l.logger.Debug("commit lost to another writer, retrying",
			zap.String("signature", tx.ID()),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		l.logger.Debug("transaction rejected",
			zap.String("signature", tx.ID()),
			zap.Error(err),
		)

		return nil, err
	}

	l.logger.Debug("transaction committed",
		zap.String("signature", block.Signature),
		zap.String("instruction", block.Instruction),
		zap.Uint64("block", block.Index),
	)

	l.bus.Publish(blockTopic, block)

	return &Receipt{
		Signature: block.Signature,
		Block:     block.Index,
		Accounts:  accounts,
	}, nil
}

func (l *Ledger) commit(ctx context.Context, program Program, tx *Transaction) (Block, []Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Block{}, nil, ErrClosed
	}

	sig := tx.ID()

	seen, err := l.store.HasSignature(ctx, sig)
	if err != nil {
		return Block{}, nil, err
	}
	if seen {
		return Block{}, nil, fmt.Errorf("%w: %s", ErrDuplicateTransaction, sig)
	}

	head, err := l.store.Head(ctx)
	if err != nil {
		return Block{}, nil, err
	}

	set := newAccountSet(ctx, l.store, program.ID(), tx)

	name, err := program.Execute(tx.Instruction, set)
	if err != nil {
		return Block{}, nil, err
	}

	accounts := set.changed()

	block := Block{
		Index:       head.Index + 1,
		Timestamp:   time.Now().UnixMilli(),
		PrevHash:    head.Hash,
		Signature:   sig,
		Program:     program.ID(),
		Instruction: name,
		Accounts:    make([]Address, len(accounts)),
	}
	for i, a := range accounts {
		block.Accounts[i] = a.Address
	}
	block.Hash = block.computeHash()

	if err := l.store.Commit(ctx, block, accounts); err != nil {
		return Block{}, nil, err
	}

	return block, accounts, nil
}

// Subscribe calls fn with every block committed from now on. fn runs on the
// committing goroutine and must not block. The returned func unsubscribes
// exactly this fn, however many other subscribers share its code.
func (l *Ledger) Subscribe(fn func(Block)) func() {
	l.subMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.subMu.Unlock()

	return func() {
		l.subMu.Lock()
		delete(l.subs, id)
		l.subMu.Unlock()
	}
}

func (l *Ledger) dispatch(block Block) {
	l.subMu.RLock()
	fns := make([]func(Block), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.subMu.RUnlock()

	for _, fn := range fns {
		fn(block)
	}
}

// Verify walks the whole chain checking index continuity, hash links and
// block hashes.
func (l *Ledger) Verify(ctx context.Context) error {
	head, err := l.store.Head(ctx)
	if err != nil {
		return err
	}

	prev, err := l.store.Block(ctx, 0)
	if err != nil {
		return err
	}
	if prev.PrevHash != "0" || prev.Hash != prev.computeHash() {
		return fmt.Errorf("invalid genesis block")
	}

	for i := uint64(1); i <= head.Index; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		cur, err := l.store.Block(ctx, i)
		if err != nil {
			return err
		}
		if err := cur.validate(prev); err != nil {
			return fmt.Errorf("block %d invalid: %w", i, err)
		}

		prev = cur
	}

	return nil
}

func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	return l.store.Close()
}
