/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Seednode/clicker/internal/ledger"
)

const redisPrefix = "clicker:"

// backend is where game accounts are read from and submitted to. local is
// nil when the ledger is served by another instance.
type backend struct {
	client ledger.Client
	local  *ledger.Ledger
}

func openBackend(ctx context.Context, cfg *Config) (*backend, error) {
	if cfg.ledgerURL != "" {
		logf(cfg, "LEDGER: Using remote ledger at %s", cfg.ledgerURL)

		return &backend{client: ledger.NewRemoteClient(cfg.ledgerURL, timeout)}, nil
	}

	var (
		store ledger.Store
		err   error
	)

	switch cfg.store {
	case "badger":
		store, err = ledger.OpenBadger(cfg.dataDir, cfg.log())
	case "redis":
		store, err = ledger.OpenRedis(ctx, cfg.redisAddr, redisPrefix)
	default:
		store = ledger.NewMemoryStore()
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.store, err)
	}

	l, err := ledger.New(ctx, store, cfg.log(), ledger.ClickerProgram{})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logf(cfg, "LEDGER: Opened %s store", cfg.store)

	return &backend{client: l, local: l}, nil
}

// subscribe calls fn after every block this process commits to a local
// ledger.
func (b *backend) subscribe(fn func()) func() {
	if b.local == nil {
		return func() {}
	}

	return b.local.Subscribe(func(ledger.Block) { fn() })
}

// pollInterval is how often sessions refresh on their own. Blocks committed
// by other processes, through a remote ledger or a shared redis store, are
// never published here.
func pollInterval(cfg *Config) time.Duration {
	if cfg.ledgerURL != "" || cfg.store == "redis" {
		return cfg.refreshInterval
	}

	return 0
}

func (b *backend) Close() error {
	if b.local == nil {
		return nil
	}
	return b.local.Close()
}
