/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import (
	"errors"
	"net/http"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountExists        = errors.New("account already exists")
	ErrInvalidAccount       = errors.New("invalid account")
	ErrInvalidPlayer        = errors.New("signer is not the game's player")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrMissingSignature     = errors.New("missing required signature")
	ErrDuplicateTransaction = errors.New("transaction already processed")
	ErrUnknownProgram       = errors.New("unknown program")
	ErrUnknownInstruction   = errors.New("unknown instruction")
	ErrClickOverflow        = errors.New("click count overflow")
	ErrConflict             = errors.New("ledger head moved during commit")
	ErrEmptyChain           = errors.New("ledger has no blocks")
	ErrClosed               = errors.New("ledger closed")
)

type errorCode struct {
	err    error
	code   string
	status int
}

var errorCodes = []errorCode{
	{ErrAccountNotFound, "account_not_found", http.StatusNotFound},
	{ErrAccountExists, "account_exists", http.StatusConflict},
	{ErrInvalidAccount, "invalid_account", http.StatusBadRequest},
	{ErrInvalidPlayer, "invalid_player", http.StatusForbidden},
	{ErrInvalidSignature, "invalid_signature", http.StatusForbidden},
	{ErrMissingSignature, "missing_signature", http.StatusForbidden},
	{ErrDuplicateTransaction, "duplicate_transaction", http.StatusConflict},
	{ErrUnknownProgram, "unknown_program", http.StatusBadRequest},
	{ErrUnknownInstruction, "unknown_instruction", http.StatusBadRequest},
	{ErrClickOverflow, "click_overflow", http.StatusUnprocessableEntity},
	{ErrConflict, "conflict", http.StatusServiceUnavailable},
	{ErrEmptyChain, "empty_chain", http.StatusServiceUnavailable},
	{ErrClosed, "closed", http.StatusServiceUnavailable},
}

const internalCode = "internal"

// ErrorCode names err for the wire, and gives the HTTP status it maps to.
func ErrorCode(err error) (string, int) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}

	return internalCode, http.StatusInternalServerError
}

// RemoteError is an error reported by a ledger over the wire. It matches
// the sentinel error its code names.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Is(target error) bool {
	for _, c := range errorCodes {
		if c.code == e.Code {
			return c.err == target
		}
	}

	return false
}
