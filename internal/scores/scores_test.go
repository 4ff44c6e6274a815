package scores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Seednode/clicker/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errUnreachable = errors.New("connection refused")

// flakyClient wraps a ledger and can fail or interfere with calls.
type flakyClient struct {
	ledger.Client

	mu           sync.Mutex
	failFetch    bool
	failSubmit   bool
	beforeSubmit func(tx *ledger.Transaction)
	submits      int
}

func (c *flakyClient) ProgramAccounts(ctx context.Context, program ledger.Address) ([]ledger.Account, error) {
	c.mu.Lock()
	fail := c.failFetch
	c.mu.Unlock()

	if fail {
		return nil, errUnreachable
	}

	return c.Client.ProgramAccounts(ctx, program)
}

func (c *flakyClient) SubmitTransaction(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error) {
	c.mu.Lock()
	c.submits++
	fail, hook := c.failSubmit, c.beforeSubmit
	c.beforeSubmit = nil
	c.mu.Unlock()

	if hook != nil {
		hook(tx)
	}
	if fail {
		return nil, errUnreachable
	}

	return c.Client.SubmitTransaction(ctx, tx)
}

type recordingObserver struct {
	fetches      int
	transactions []string
}

func (o *recordingObserver) ObserveFetch(time.Duration, error) { o.fetches++ }

func (o *recordingObserver) ObserveTransaction(instruction string, _ error) {
	o.transactions = append(o.transactions, instruction)
}

func newTestSource(t *testing.T) (*LedgerSource, *flakyClient, *ledger.Ledger) {
	t.Helper()

	l, err := ledger.New(context.Background(), ledger.NewMemoryStore(), zaptest.NewLogger(t), ledger.ClickerProgram{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	client := &flakyClient{Client: l}

	return NewLedgerSource(client, zaptest.NewLogger(t), nil), client, l
}

func newSigner(t *testing.T) *ledger.Keypair {
	t.Helper()

	k, err := ledger.NewKeypair()
	require.NoError(t, err)

	return k
}

func TestFetchAllScoresEmpty(t *testing.T) {
	src, _, _ := newTestSource(t)

	records, err := src.FetchAllScores(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchAllScoresUnavailable(t *testing.T) {
	src, client, _ := newTestSource(t)
	client.failFetch = true

	records, err := src.FetchAllScores(context.Background())
	assert.Nil(t, records)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, errUnreachable)
}

func TestEnsurePlayerRecordCreatesOnce(t *testing.T) {
	src, client, _ := newTestSource(t)
	ctx := context.Background()
	player := newSigner(t)

	rec, err := src.EnsurePlayerRecord(ctx, player)
	require.NoError(t, err)
	assert.Equal(t, player.Address().String(), rec.PlayerID)
	assert.Zero(t, rec.Clicks)
	assert.Equal(t, 1, client.submits)

	_, err = src.IncrementScore(ctx, player)
	require.NoError(t, err)

	rec, err = src.EnsurePlayerRecord(ctx, player)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Clicks)
	assert.Equal(t, 2, client.submits)

	records, err := src.FetchAllScores(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestEnsurePlayerRecordRechecksAfterFailedCreate(t *testing.T) {
	src, client, l := newTestSource(t)
	ctx := context.Background()
	player := newSigner(t)

	// Another tab creates the account and clicks just before this
	// session's own create attempt lands.
	client.beforeSubmit = func(*ledger.Transaction) {
		for _, ix := range []ledger.Instruction{
			ledger.InitializeInstruction(player.Address()),
			ledger.ClickInstruction(player.Address()),
		} {
			tx := ledger.NewTransaction(ix)
			require.NoError(t, tx.Sign(player))
			_, err := l.SubmitTransaction(ctx, tx)
			require.NoError(t, err)
		}
	}

	rec, err := src.EnsurePlayerRecord(ctx, player)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Clicks)
}

func TestEnsurePlayerRecordCreateFails(t *testing.T) {
	src, client, _ := newTestSource(t)
	client.failSubmit = true

	_, err := src.EnsurePlayerRecord(context.Background(), newSigner(t))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, errUnreachable)
	assert.Equal(t, 1, client.submits)
}

func TestEnsurePlayerRecordFetchFails(t *testing.T) {
	src, client, _ := newTestSource(t)
	client.failFetch = true

	_, err := src.EnsurePlayerRecord(context.Background(), newSigner(t))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Zero(t, client.submits)
}

func TestIncrementScore(t *testing.T) {
	src, _, _ := newTestSource(t)
	ctx := context.Background()
	player := newSigner(t)

	_, err := src.EnsurePlayerRecord(ctx, player)
	require.NoError(t, err)

	for want := uint64(1); want <= 3; want++ {
		got, err := src.IncrementScore(ctx, player)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestIncrementScoreWithoutRecord(t *testing.T) {
	src, _, _ := newTestSource(t)

	_, err := src.IncrementScore(context.Background(), newSigner(t))
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NotErrorIs(t, err, ErrSourceUnavailable)
}

func TestIncrementScoreUnavailableDoesNotRetry(t *testing.T) {
	src, client, _ := newTestSource(t)
	ctx := context.Background()
	player := newSigner(t)

	_, err := src.EnsurePlayerRecord(ctx, player)
	require.NoError(t, err)

	client.failSubmit = true
	client.submits = 0

	_, err = src.IncrementScore(ctx, player)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, 1, client.submits)
}

func TestIncrementScoreVisibleToOtherReaders(t *testing.T) {
	src, _, l := newTestSource(t)
	ctx := context.Background()
	player := newSigner(t)

	_, err := src.EnsurePlayerRecord(ctx, player)
	require.NoError(t, err)
	_, err = src.IncrementScore(ctx, player)
	require.NoError(t, err)

	other := NewLedgerSource(l, nil, nil)
	records, err := other.FetchAllScores(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(1), records[0].Clicks)
}

func TestFetchSkipsUnreadableAccounts(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()

	l, err := ledger.New(ctx, store, zaptest.NewLogger(t), ledger.ClickerProgram{})
	require.NoError(t, err)
	defer l.Close()

	head, err := l.Head(ctx)
	require.NoError(t, err)

	broken := ledger.Block{Index: head.Index + 1, PrevHash: head.Hash}
	require.NoError(t, store.Commit(ctx, broken, []ledger.Account{{
		Address: ledger.GameAddress(newSigner(t).Address()),
		Owner:   ledger.ClickerProgramID,
		Data:    []byte("garbage"),
	}}))

	src := NewLedgerSource(l, zaptest.NewLogger(t), nil)
	_, err = src.EnsurePlayerRecord(ctx, newSigner(t))
	require.NoError(t, err)

	records, err := src.FetchAllScores(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestObserver(t *testing.T) {
	l, err := ledger.New(context.Background(), ledger.NewMemoryStore(), nil, ledger.ClickerProgram{})
	require.NoError(t, err)
	defer l.Close()

	obs := &recordingObserver{}
	src := NewLedgerSource(l, nil, obs)
	player := newSigner(t)

	_, err = src.EnsurePlayerRecord(context.Background(), player)
	require.NoError(t, err)
	_, err = src.IncrementScore(context.Background(), player)
	require.NoError(t, err)

	assert.Equal(t, 1, obs.fetches)
	assert.Equal(t, []string{"initialize", "click"}, obs.transactions)
}
