/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package scores

import (
	"time"

	"github.com/Seednode/clicker/internal/leaderboard"
)

// ClickState tracks a player's clicks from two sources: the last total the
// ledger confirmed, and the optimistic total shown to the player while
// submissions are in flight.
type ClickState struct {
	Confirmed uint64
	Pending   uint64
	inFlight  int
}

// Seed resets the state to a freshly fetched record.
func (s *ClickState) Seed(clicks uint64) {
	*s = ClickState{Confirmed: clicks, Pending: clicks}
}

// Click records an optimistic click ahead of its submission.
func (s *ClickState) Click() {
	s.Pending++
	s.inFlight++
}

// Confirm records a successful submission that left the ledger at clicks.
func (s *ClickState) Confirm(clicks uint64) {
	s.Confirmed = max(s.Confirmed, clicks)
	s.settle()
	s.Pending = max(s.Pending, s.Confirmed)
}

// Fail rolls back the optimistic click of a failed submission.
func (s *ClickState) Fail() {
	if s.Pending > s.Confirmed {
		s.Pending--
	}
	s.settle()
}

// Observe folds in a total read from a fresh snapshot. With nothing in
// flight the ledger is authoritative.
func (s *ClickState) Observe(clicks uint64) {
	s.Confirmed = max(s.Confirmed, clicks)

	if s.inFlight == 0 {
		s.Pending = s.Confirmed
		return
	}

	s.Pending = max(s.Pending, s.Confirmed)
}

// InFlight is the number of submissions not yet answered.
func (s *ClickState) InFlight() int {
	return s.inFlight
}

// Display is the click count shown to the player.
func (s *ClickState) Display() uint64 {
	return s.Pending
}

func (s *ClickState) settle() {
	if s.inFlight > 0 {
		s.inFlight--
	}
}

// Snapshot is the last successfully fetched list of scores.
type Snapshot struct {
	Records   []leaderboard.ScoreRecord
	FetchedAt time.Time
}

// Valid reports whether any fetch has succeeded yet.
func (s Snapshot) Valid() bool {
	return !s.FetchedAt.IsZero()
}

// Find returns the record for player, if the snapshot has one.
func (s Snapshot) Find(player string) (leaderboard.ScoreRecord, bool) {
	for _, r := range s.Records {
		if r.PlayerID == player {
			return r, true
		}
	}

	return leaderboard.ScoreRecord{}, false
}
