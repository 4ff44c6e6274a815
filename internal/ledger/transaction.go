/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

type Account struct {
	Address Address `json:"address"`
	Owner   Address `json:"owner"`
	Data    []byte  `json:"data"`
}

type AccountMeta struct {
	Address  Address `json:"address"`
	Signer   bool    `json:"signer"`
	Writable bool    `json:"writable"`
}

type Instruction struct {
	Program  Address       `json:"program"`
	Accounts []AccountMeta `json:"accounts"`
	Data     []byte        `json:"data"`
}

type Signature struct {
	Signer    Address `json:"signer"`
	Signature []byte  `json:"signature"`
}

// Transaction carries a single instruction. The nonce makes otherwise
// identical instructions (two clicks) distinct messages.
type Transaction struct {
	Instruction Instruction `json:"instruction"`
	Nonce       string      `json:"nonce"`
	Signatures  []Signature `json:"signatures"`
}

// Receipt describes a committed transaction and the accounts it wrote.
type Receipt struct {
	Signature string    `json:"signature"`
	Block     uint64    `json:"block"`
	Accounts  []Account `json:"accounts"`
}

func NewTransaction(ix Instruction) *Transaction {
	return &Transaction{
		Instruction: ix,
		Nonce:       uuid.NewString(),
	}
}

// Message is the byte string every signer signs.
func (tx *Transaction) Message() ([]byte, error) {
	return json.Marshal(struct {
		Instruction Instruction `json:"instruction"`
		Nonce       string      `json:"nonce"`
	}{tx.Instruction, tx.Nonce})
}

func (tx *Transaction) Sign(signers ...Signer) error {
	msg, err := tx.Message()
	if err != nil {
		return err
	}

	for _, s := range signers {
		sig, err := s.Sign(msg)
		if err != nil {
			return fmt.Errorf("sign as %s: %w", s.Address(), err)
		}

		tx.Signatures = append(tx.Signatures, Signature{Signer: s.Address(), Signature: sig})
	}

	return nil
}

// ID is the base58 form of the first signature, or "" when unsigned.
func (tx *Transaction) ID() string {
	if len(tx.Signatures) == 0 {
		return ""
	}

	return base58.Encode(tx.Signatures[0].Signature)
}

// Verify checks every attached signature and that each account marked as a
// signer has signed.
func (tx *Transaction) Verify() error {
	msg, err := tx.Message()
	if err != nil {
		return err
	}

	signed := make(map[Address]bool, len(tx.Signatures))
	for _, s := range tx.Signatures {
		if !verify(s.Signer, msg, s.Signature) {
			return fmt.Errorf("%w: %s", ErrInvalidSignature, s.Signer)
		}
		signed[s.Signer] = true
	}

	for _, m := range tx.Instruction.Accounts {
		if m.Signer && !signed[m.Address] {
			return fmt.Errorf("%w: %s", ErrMissingSignature, m.Address)
		}
	}

	if len(tx.Signatures) == 0 {
		return ErrMissingSignature
	}

	return nil
}
