/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

var (
	badgerAccountPrefix   = []byte("account/")
	badgerBlockPrefix     = []byte("block/")
	badgerSignaturePrefix = []byte("signature/")
	badgerHeadKey         = []byte("head")
)

// BadgerStore keeps the ledger in a badger database on disk.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) a store in dir. An empty dir keeps the
// database in memory.
func OpenBadger(dir string, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{logger.Named("badger").Sugar()}).
		WithValueLogFileSize(64 << 20)

	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

func accountKey(addr Address) []byte {
	return append(append([]byte{}, badgerAccountPrefix...), addr[:]...)
}

func blockKey(index uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, badgerBlockPrefix...), index)
}

func signatureKey(sig string) []byte {
	return append(append([]byte{}, badgerSignaturePrefix...), sig...)
}

func (s *BadgerStore) Account(_ context.Context, addr Address) (Account, error) {
	var acct Account

	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, accountKey(addr), &acct)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}

	return acct, err
}

func (s *BadgerStore) Accounts(ctx context.Context, owner Address) ([]Account, error) {
	var out []Account

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(badgerAccountPrefix); it.ValidForPrefix(badgerAccountPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var acct Account
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &acct)
			})
			if err != nil {
				return err
			}

			if acct.Owner == owner {
				out = append(out, acct)
			}
		}

		return nil
	})

	return out, err
}

func (s *BadgerStore) Head(_ context.Context) (Block, error) {
	var b Block

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerHeadKey)
		if err != nil {
			return err
		}

		idx, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		return getJSON(txn, blockKey(binary.BigEndian.Uint64(idx)), &b)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Block{}, ErrEmptyChain
	}

	return b, err
}

func (s *BadgerStore) Block(_ context.Context, index uint64) (Block, error) {
	var b Block

	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, blockKey(index), &b)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Block{}, fmt.Errorf("block %d out of range", index)
	}

	return b, err
}

func (s *BadgerStore) HasSignature(_ context.Context, signature string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(signatureKey(signature))
		return err
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *BadgerStore) Commit(_ context.Context, block Block, accounts []Account) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerHeadKey)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if block.Index != 0 {
				return fmt.Errorf("%w: expected genesis, got block %d", ErrConflict, block.Index)
			}
		case err != nil:
			return err
		default:
			idx, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if head := binary.BigEndian.Uint64(idx); block.Index != head+1 {
				return fmt.Errorf("%w: expected block %d, got %d", ErrConflict, head+1, block.Index)
			}
		}

		for _, acct := range accounts {
			if err := setJSON(txn, accountKey(acct.Address), acct); err != nil {
				return err
			}
		}

		if err := setJSON(txn, blockKey(block.Index), block); err != nil {
			return err
		}

		if block.Signature != "" {
			if err := txn.Set(signatureKey(block.Signature), binary.BigEndian.AppendUint64(nil, block.Index)); err != nil {
				return err
			}
		}

		return txn.Set(badgerHeadKey, binary.BigEndian.AppendUint64(nil, block.Index))
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}

	return err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}

	return item.Value(func(b []byte) error {
		return json.Unmarshal(b, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return txn.Set(key, b)
}

// badgerLogger routes badger's log lines to zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}
