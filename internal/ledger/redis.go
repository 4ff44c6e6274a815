/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the ledger in redis so several processes can share it.
// Commits are optimistic: a commit whose block no longer extends the
// stored chain fails with ErrConflict.
type RedisStore struct {
	client     *redis.Client
	accounts   string
	blocks     string
	signatures string
}

var _ Store = (*RedisStore)(nil)

// OpenRedis connects to addr. All keys are placed under prefix.
func OpenRedis(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	return newRedisStore(client, prefix), nil
}

func newRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client:     client,
		accounts:   prefix + "accounts",
		blocks:     prefix + "blocks",
		signatures: prefix + "signatures",
	}
}

func (s *RedisStore) Account(ctx context.Context, addr Address) (Account, error) {
	var acct Account

	b, err := s.client.HGet(ctx, s.accounts, addr.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return acct, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if err != nil {
		return acct, err
	}

	return acct, json.Unmarshal(b, &acct)
}

func (s *RedisStore) Accounts(ctx context.Context, owner Address) ([]Account, error) {
	all, err := s.client.HGetAll(ctx, s.accounts).Result()
	if err != nil {
		return nil, err
	}

	var out []Account
	for _, v := range all {
		var acct Account
		if err := json.Unmarshal([]byte(v), &acct); err != nil {
			return nil, err
		}
		if acct.Owner == owner {
			out = append(out, acct)
		}
	}

	return out, nil
}

func (s *RedisStore) Head(ctx context.Context) (Block, error) {
	return s.blockAt(ctx, -1, ErrEmptyChain)
}

func (s *RedisStore) Block(ctx context.Context, index uint64) (Block, error) {
	return s.blockAt(ctx, int64(index), fmt.Errorf("block %d out of range", index))
}

func (s *RedisStore) blockAt(ctx context.Context, index int64, missing error) (Block, error) {
	var b Block

	raw, err := s.client.LIndex(ctx, s.blocks, index).Bytes()
	if errors.Is(err, redis.Nil) {
		return b, missing
	}
	if err != nil {
		return b, err
	}

	return b, json.Unmarshal(raw, &b)
}

func (s *RedisStore) HasSignature(ctx context.Context, signature string) (bool, error) {
	return s.client.HExists(ctx, s.signatures, signature).Result()
}

func (s *RedisStore) Commit(ctx context.Context, block Block, accounts []Account) error {
	rawBlock, err := json.Marshal(block)
	if err != nil {
		return err
	}

	values := make([]any, 0, 2*len(accounts))
	for _, acct := range accounts {
		b, err := json.Marshal(acct)
		if err != nil {
			return err
		}
		values = append(values, acct.Address.String(), b)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, s.blocks).Result()
		if err != nil {
			return err
		}
		if uint64(n) != block.Index {
			return fmt.Errorf("%w: expected block %d, got %d", ErrConflict, n, block.Index)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(values) > 0 {
				pipe.HSet(ctx, s.accounts, values...)
			}
			pipe.RPush(ctx, s.blocks, rawBlock)
			if block.Signature != "" {
				pipe.HSet(ctx, s.signatures, block.Signature, strconv.FormatUint(block.Index, 10))
			}
			return nil
		})

		return err
	}, s.blocks)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}

	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
