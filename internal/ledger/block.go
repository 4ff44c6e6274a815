/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Block records one committed transaction and links to its predecessor.
type Block struct {
	Index       uint64    `json:"index"`
	Timestamp   int64     `json:"timestamp"`
	PrevHash    string    `json:"prev_hash"`
	Hash        string    `json:"hash"`
	Signature   string    `json:"signature"`
	Program     Address   `json:"program"`
	Instruction string    `json:"instruction"`
	Accounts    []Address `json:"accounts"`
}

func genesisBlock() Block {
	b := Block{
		PrevHash:    "0",
		Instruction: "genesis",
	}
	b.Hash = b.computeHash()
	return b
}

func (b Block) computeHash() string {
	accounts := make([]string, len(b.Accounts))
	for i, a := range b.Accounts {
		accounts[i] = a.String()
	}

	data := fmt.Sprintf("%d|%d|%s|%s|%s|%s|%s",
		b.Index,
		b.Timestamp,
		b.PrevHash,
		b.Signature,
		b.Program,
		b.Instruction,
		strings.Join(accounts, ","),
	)

	sum := sha256.Sum256([]byte(data))

	return hex.EncodeToString(sum[:])
}

func (b Block) validate(prev Block) error {
	if b.Index != prev.Index+1 {
		return fmt.Errorf("invalid index: expected %d, got %d", prev.Index+1, b.Index)
	}
	if b.PrevHash != prev.Hash {
		return fmt.Errorf("invalid prev hash: expected %s, got %s", prev.Hash, b.PrevHash)
	}
	if expected := b.computeHash(); b.Hash != expected {
		return fmt.Errorf("invalid hash: expected %s, got %s", expected, b.Hash)
	}
	return nil
}
