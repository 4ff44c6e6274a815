/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"

	"github.com/Seednode/clicker/internal/leaderboard"
	"github.com/Seednode/clicker/internal/scores"
	"github.com/Seednode/clicker/internal/wallet"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// requireLasting refuses to run a one-shot command against an in-memory
// ledger, which would be gone when the command exits.
func requireLasting(cfg *Config) error {
	if cfg.ledgerURL == "" && cfg.store == "memory" {
		return errors.New("--store memory does not outlive this command; use --ledger-url, --store badger or --store redis")
	}

	return nil
}

func newLeaderboardCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the top ten players.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireLasting(cfg); err != nil {
				return err
			}

			b, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			records, err := scores.NewLedgerSource(b.client, cfg.log(), nil).FetchAllScores(cmd.Context())
			if err != nil {
				return err
			}

			entries := rankScores(records, cfg.player)
			if len(entries) == 0 {
				pterm.Info.WithWriter(cmd.ErrOrStderr()).Println("No scores yet.")

				return nil
			}

			return leaderboard.Render(cmd.OutOrStdout(), entries)
		},
	}

	fs := cmd.Flags()

	fs.StringVar(&cfg.player, "player", "", "identity to highlight as \"You\" (env: CLICKER_PLAYER)")

	bindFlags(v, fs)

	return cmd
}

func newClickCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "click",
		Short: "Click with the keyfile wallet.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireLasting(cfg); err != nil {
				return err
			}
			if cfg.walletKeyfile == "" {
				return errors.New("--wallet-keyfile is required")
			}
			if cfg.clickCount < 1 {
				return fmt.Errorf("invalid count (must be at least 1): %d", cfg.clickCount)
			}

			ctx := cmd.Context()

			w := wallet.NewKeyfile(cfg.walletKeyfile)
			if err := w.Connect(ctx); err != nil {
				return err
			}
			defer w.Disconnect()

			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			source := scores.NewLedgerSource(b.client, cfg.log(), nil)

			record, err := source.EnsurePlayerRecord(ctx, w)
			if err != nil {
				return err
			}

			total := record.Clicks
			for i := range cfg.clickCount {
				total, err = source.IncrementScore(ctx, w)
				if err != nil {
					return fmt.Errorf("click %d of %d: %w", i+1, cfg.clickCount, err)
				}
			}

			pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("%s now has %d clicks", wallet.Short(w.PublicIdentity()), total)

			return nil
		},
	}

	fs := cmd.Flags()

	fs.IntVarP(&cfg.clickCount, "count", "n", 1, "number of clicks to submit (env: CLICKER_COUNT)")

	bindFlags(v, fs)

	return cmd
}

func newKeygenCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen [path]",
		Short: "Write a new keyfile wallet.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.walletKeyfile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("a path or --wallet-keyfile is required")
			}

			key, err := wallet.GenerateKeyfile(path)
			if err != nil {
				return err
			}

			pterm.Success.WithWriter(cmd.ErrOrStderr()).Printfln("Wrote %s", path)

			_, err = fmt.Fprintln(cmd.OutOrStdout(), key.Address())

			return err
		},
	}
}
