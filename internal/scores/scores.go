/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package scores bridges the game and the ledger: it lists every player's
// score, creates a player's game account on first contact and submits
// clicks.
package scores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Seednode/clicker/internal/leaderboard"
	"github.com/Seednode/clicker/internal/ledger"
	"go.uber.org/zap"
)

var (
	// ErrSourceUnavailable means the ledger could not be reached or refused
	// the request. Callers keep whatever they already display.
	ErrSourceUnavailable = errors.New("score source unavailable")

	// ErrRecordNotFound means a click was submitted for a player without a
	// game account.
	ErrRecordNotFound = errors.New("score record not found")
)

// Source is where scores come from.
type Source interface {
	// FetchAllScores returns every player's record in no particular order.
	FetchAllScores(ctx context.Context) ([]leaderboard.ScoreRecord, error)

	// EnsurePlayerRecord returns the signer's record, creating it with zero
	// clicks if it does not exist yet.
	EnsurePlayerRecord(ctx context.Context, signer ledger.Signer) (leaderboard.ScoreRecord, error)

	// IncrementScore submits one click and returns the new total.
	IncrementScore(ctx context.Context, signer ledger.Signer) (uint64, error)
}

// Observer is told about every ledger call a LedgerSource makes.
type Observer interface {
	ObserveFetch(d time.Duration, err error)
	ObserveTransaction(instruction string, err error)
}

// LedgerSource reads and writes clicker game accounts through a ledger
// client.
type LedgerSource struct {
	client   ledger.Client
	logger   *zap.Logger
	observer Observer
}

var _ Source = (*LedgerSource)(nil)

// NewLedgerSource returns a Source backed by client. logger and observer
// may be nil.
func NewLedgerSource(client ledger.Client, logger *zap.Logger, observer Observer) *LedgerSource {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LedgerSource{
		client:   client,
		logger:   logger.Named("scores"),
		observer: observer,
	}
}

func (s *LedgerSource) FetchAllScores(ctx context.Context) ([]leaderboard.ScoreRecord, error) {
	start := time.Now()

	accounts, err := s.client.ProgramAccounts(ctx, ledger.ClickerProgramID)
	if s.observer != nil {
		s.observer.ObserveFetch(time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	records := make([]leaderboard.ScoreRecord, 0, len(accounts))
	for _, acct := range accounts {
		var g ledger.Game
		if err := g.UnmarshalBinary(acct.Data); err != nil {
			s.logger.Warn("skipping unreadable game account",
				zap.Stringer("account", acct.Address),
				zap.Error(err),
			)
			continue
		}

		records = append(records, leaderboard.ScoreRecord{
			PlayerID: g.Player.String(),
			Clicks:   uint64(g.Clicks),
		})
	}

	return records, nil
}

func (s *LedgerSource) EnsurePlayerRecord(ctx context.Context, signer ledger.Signer) (leaderboard.ScoreRecord, error) {
	player := signer.Address().String()

	if rec, ok, err := s.find(ctx, player); err != nil || ok {
		return rec, err
	}

	createErr := s.submit(ctx, signer, "initialize", ledger.InitializeInstruction(signer.Address()))
	if createErr == nil {
		s.logger.Info("created game account", zap.String("player", player))

		return leaderboard.ScoreRecord{PlayerID: player}, nil
	}

	// Another session of the same player may have created the account
	// between our check and our attempt.
	rec, ok, err := s.find(ctx, player)
	if err != nil {
		return rec, err
	}
	if ok {
		return rec, nil
	}

	return leaderboard.ScoreRecord{}, fmt.Errorf("%w: create game account: %w", ErrSourceUnavailable, createErr)
}

func (s *LedgerSource) IncrementScore(ctx context.Context, signer ledger.Signer) (uint64, error) {
	tx := ledger.NewTransaction(ledger.ClickInstruction(signer.Address()))
	if err := tx.Sign(signer); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	receipt, err := s.client.SubmitTransaction(ctx, tx)
	if s.observer != nil {
		s.observer.ObserveTransaction("click", err)
	}

	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return 0, fmt.Errorf("%w: %s", ErrRecordNotFound, signer.Address())
	case err != nil:
		return 0, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	game := ledger.GameAddress(signer.Address())
	for _, acct := range receipt.Accounts {
		if acct.Address != game {
			continue
		}

		var g ledger.Game
		if err := g.UnmarshalBinary(acct.Data); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}

		return uint64(g.Clicks), nil
	}

	return 0, fmt.Errorf("%w: receipt %s does not include the game account", ErrSourceUnavailable, receipt.Signature)
}

func (s *LedgerSource) find(ctx context.Context, player string) (leaderboard.ScoreRecord, bool, error) {
	records, err := s.FetchAllScores(ctx)
	if err != nil {
		return leaderboard.ScoreRecord{}, false, err
	}

	for _, r := range records {
		if r.PlayerID == player {
			return r, true, nil
		}
	}

	return leaderboard.ScoreRecord{}, false, nil
}

func (s *LedgerSource) submit(ctx context.Context, signer ledger.Signer, name string, ix ledger.Instruction) error {
	tx := ledger.NewTransaction(ix)
	if err := tx.Sign(signer); err != nil {
		return err
	}

	_, err := s.client.SubmitTransaction(ctx, tx)
	if s.observer != nil {
		s.observer.ObserveTransaction(name, err)
	}

	return err
}
