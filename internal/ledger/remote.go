/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Paths of the ledger HTTP API, relative to its base URL.
const (
	AccountsPath     = "/ledger/programs/%s/accounts"
	TransactionsPath = "/ledger/transactions"
	HeadPath         = "/ledger/head"
)

// RemoteClient reaches a ledger served by another clicker instance.
type RemoteClient struct {
	base string
	http *http.Client
}

var _ Client = (*RemoteClient)(nil)

func NewRemoteClient(baseURL string, timeout time.Duration) *RemoteClient {
	return &RemoteClient{
		base: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *RemoteClient) ProgramAccounts(ctx context.Context, program Address) ([]Account, error) {
	var out []Account

	err := c.do(ctx, http.MethodGet, fmt.Sprintf(AccountsPath, program), nil, &out)

	return out, err
}

func (c *RemoteClient) SubmitTransaction(ctx context.Context, tx *Transaction) (*Receipt, error) {
	var out Receipt

	if err := c.do(ctx, http.MethodPost, TransactionsPath, tx, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *RemoteClient) Head(ctx context.Context) (Block, error) {
	var out Block

	err := c.do(ctx, http.MethodGet, HeadPath, nil, &out)

	return out, err
}

func (c *RemoteClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		remote := &RemoteError{}
		if err := json.NewDecoder(resp.Body).Decode(remote); err != nil || remote.Message == "" {
			return fmt.Errorf("ledger request %s %s: %s", method, path, resp.Status)
		}
		return remote
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// WriteError writes err as the JSON body the RemoteClient decodes.
func WriteError(w http.ResponseWriter, err error) {
	code, status := ErrorCode(err)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(RemoteError{Code: code, Message: err.Error()})
}
