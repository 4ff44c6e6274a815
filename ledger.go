/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Seednode/clicker/internal/ledger"
	"github.com/julienschmidt/httprouter"
)

const maxTransactionSize = 64 << 10

func writeJSON(cfg *Config, w http.ResponseWriter, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)

	return w.Write(append(data, '\n'))
}

func serveProgramAccounts(cfg *Config, l *ledger.Ledger, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		program, err := ledger.ParseAddress(p.ByName("program"))
		if err != nil {
			ledger.WriteError(w, errors.Join(ledger.ErrInvalidAccount, err))

			return
		}

		accounts, err := l.ProgramAccounts(r.Context(), program)
		if err != nil {
			ledger.WriteError(w, err)

			return
		}

		written, err := writeJSON(cfg, w, accounts)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "LEDGER: Listed %d accounts (%s) to %s in %s",
			len(accounts),
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveSubmitTransaction(cfg *Config, l *ledger.Ledger, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		var tx ledger.Transaction
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTransactionSize)).Decode(&tx); err != nil {
			ledger.WriteError(w, fmt.Errorf("%w: %w", ledger.ErrInvalidAccount, err))

			return
		}

		receipt, err := l.SubmitTransaction(r.Context(), &tx)
		if err != nil {
			logf(cfg, "LEDGER: Rejected transaction %s from %s: %v", tx.ID(), realIP(r), err)

			ledger.WriteError(w, err)

			return
		}

		_, err = writeJSON(cfg, w, receipt)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "LEDGER: Committed transaction %s in block %d for %s in %s",
			receipt.Signature,
			receipt.Block,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveHead(cfg *Config, l *ledger.Ledger, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		head, err := l.Head(r.Context())
		if err != nil {
			ledger.WriteError(w, err)

			return
		}

		_, err = writeJSON(cfg, w, head)
		if err != nil {
			errs <- err

			return
		}
	}
}

func registerLedger(cfg *Config, l *ledger.Ledger, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/ledger/programs/:program/accounts", serveProgramAccounts(cfg, l, errs))
	mux.POST(cfg.prefix+ledger.TransactionsPath, serveSubmitTransaction(cfg, l, errs))
	mux.GET(cfg.prefix+ledger.HeadPath, serveHead(cfg, l, errs))
}
