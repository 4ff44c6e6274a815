/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// GameSize is the size of a game account: discriminator, player key and a
// little-endian u32 click count.
const GameSize = 8 + 32 + 4

var (
	// ClickerProgramID is the address of the clicker program.
	ClickerProgramID = Address(sha256.Sum256([]byte("clicker:program")))

	gameDiscriminator       = discriminator("account:Game")
	initializeDiscriminator = discriminator("global:initialize")
	clickDiscriminator      = discriminator("global:click")
)

func discriminator(name string) []byte {
	sum := sha256.Sum256([]byte(name))
	return sum[:8]
}

// Game is the state of one player's game account.
type Game struct {
	Player Address
	Clicks uint32
}

func (g Game) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, GameSize)
	b = append(b, gameDiscriminator...)
	b = append(b, g.Player[:]...)
	b = binary.LittleEndian.AppendUint32(b, g.Clicks)
	return b, nil
}

func (g *Game) UnmarshalBinary(data []byte) error {
	if len(data) != GameSize || !bytes.Equal(data[:8], gameDiscriminator) {
		return fmt.Errorf("%w: not a game account", ErrInvalidAccount)
	}

	copy(g.Player[:], data[8:40])
	g.Clicks = binary.LittleEndian.Uint32(data[40:])

	return nil
}

// GameAddress derives the single game account a player may own.
func GameAddress(player Address) Address {
	h := sha256.New()
	h.Write(ClickerProgramID[:])
	h.Write([]byte("game"))
	h.Write(player[:])

	var a Address
	copy(a[:], h.Sum(nil))

	return a
}

func InitializeInstruction(player Address) Instruction {
	return clickerInstruction(initializeDiscriminator, player)
}

func ClickInstruction(player Address) Instruction {
	return clickerInstruction(clickDiscriminator, player)
}

func clickerInstruction(disc []byte, player Address) Instruction {
	return Instruction{
		Program: ClickerProgramID,
		Accounts: []AccountMeta{
			{Address: GameAddress(player), Writable: true},
			{Address: player, Signer: true, Writable: true},
		},
		Data: bytes.Clone(disc),
	}
}

// ClickerProgram creates game accounts and counts clicks on them.
type ClickerProgram struct{}

var _ Program = ClickerProgram{}

func (ClickerProgram) ID() Address {
	return ClickerProgramID
}

func (ClickerProgram) Execute(ix Instruction, accounts *AccountSet) (string, error) {
	if len(ix.Accounts) != 2 {
		return "", fmt.Errorf("%w: expected game and player accounts", ErrInvalidAccount)
	}

	game, player := ix.Accounts[0].Address, ix.Accounts[1].Address
	if !accounts.IsSigner(player) {
		return "", fmt.Errorf("%w: player %s", ErrMissingSignature, player)
	}

	switch {
	case bytes.Equal(ix.Data, initializeDiscriminator):
		return "initialize", initialize(accounts, game, player)
	case bytes.Equal(ix.Data, clickDiscriminator):
		return "click", click(accounts, game, player)
	default:
		return "", ErrUnknownInstruction
	}
}

func initialize(accounts *AccountSet, game, player Address) error {
	if game != GameAddress(player) {
		return fmt.Errorf("%w: %s is not the game address of %s", ErrInvalidAccount, game, player)
	}

	data, _ := Game{Player: player}.MarshalBinary()

	return accounts.Create(game, data)
}

func click(accounts *AccountSet, game, player Address) error {
	acct, err := accounts.Get(game)
	if err != nil {
		return err
	}
	if acct.Owner != ClickerProgramID {
		return fmt.Errorf("%w: %s is not a game account", ErrInvalidAccount, game)
	}

	var g Game
	if err := g.UnmarshalBinary(acct.Data); err != nil {
		return err
	}
	if g.Player != player {
		return ErrInvalidPlayer
	}
	if g.Clicks == math.MaxUint32 {
		return ErrClickOverflow
	}

	g.Clicks++

	data, _ := g.MarshalBinary()

	return accounts.Write(game, data)
}
