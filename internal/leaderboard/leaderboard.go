/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package leaderboard turns the last fetched set of player scores and the
// current player's live click count into the ranked list shown to players.
package leaderboard

import (
	"cmp"
	"slices"
)

const (
	// DisplaySize is the number of ranked entries shown.
	DisplaySize = 10

	// IdentityLength is the length of a base58 player identity as rendered
	// by wallets; anything else is not abbreviated.
	IdentityLength = 44

	currentPlayerLabel = "You"
)

// ScoreRecord is one player's persisted click total.
type ScoreRecord struct {
	PlayerID string `json:"player_id"`
	Clicks   uint64 `json:"clicks"`
}

// Entry is a ranked, display-ready row. Entries are derived on every pass
// and never stored.
type Entry struct {
	Rank            int    `json:"rank"`
	PlayerID        string `json:"player_id"`
	Clicks          uint64 `json:"clicks"`
	IsCurrentPlayer bool   `json:"is_current_player"`
}

// Label is what the player column shows for e.
func (e Entry) Label() string {
	if e.IsCurrentPlayer {
		return currentPlayerLabel
	}

	return ShortIdentity(e.PlayerID)
}

// Reconcile merges all with the current player's live click count, then
// ranks and truncates the result to DisplaySize entries.
//
// An empty currentPlayer means no player is connected: all is ranked as is.
// Otherwise the current player's record takes currentClicks, and a player
// missing from all is added once they have clicked at least once.
//
// Ties are ordered by PlayerID, so equal inputs always rank the same way
// regardless of the order the records were fetched in.
func Reconcile(all []ScoreRecord, currentPlayer string, currentClicks uint64) []Entry {
	best := make(map[string]uint64, len(all)+1)
	for _, r := range all {
		if c, ok := best[r.PlayerID]; !ok || r.Clicks > c {
			best[r.PlayerID] = r.Clicks
		}
	}

	if currentPlayer != "" {
		if _, ok := best[currentPlayer]; ok || currentClicks > 0 {
			best[currentPlayer] = currentClicks
		}
	}

	if len(best) == 0 {
		return nil
	}

	merged := make([]ScoreRecord, 0, len(best))
	for id, clicks := range best {
		merged = append(merged, ScoreRecord{PlayerID: id, Clicks: clicks})
	}

	slices.SortFunc(merged, func(a, b ScoreRecord) int {
		if c := cmp.Compare(b.Clicks, a.Clicks); c != 0 {
			return c
		}
		return cmp.Compare(a.PlayerID, b.PlayerID)
	})

	if len(merged) > DisplaySize {
		merged = merged[:DisplaySize]
	}

	entries := make([]Entry, len(merged))
	for i, r := range merged {
		entries[i] = Entry{
			Rank:            i + 1,
			PlayerID:        r.PlayerID,
			Clicks:          r.Clicks,
			IsCurrentPlayer: currentPlayer != "" && r.PlayerID == currentPlayer,
		}
	}

	return entries
}

// ShortIdentity abbreviates a player identity to its first and last four
// characters. Identities of the wrong length yield the empty string.
func ShortIdentity(id string) string {
	if len(id) != IdentityLength {
		return ""
	}

	return id[:4] + ".." + id[len(id)-4:]
}
