package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestLedger(t *testing.T, store Store) *Ledger {
	t.Helper()

	if store == nil {
		store = NewMemoryStore()
	}

	l, err := New(context.Background(), store, zaptest.NewLogger(t), ClickerProgram{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = l.Close() })

	return l
}

func newPlayer(t *testing.T) *Keypair {
	t.Helper()

	k, err := NewKeypair()
	require.NoError(t, err)

	return k
}

func submit(t *testing.T, l *Ledger, ix Instruction, signers ...Signer) (*Receipt, error) {
	t.Helper()

	tx := NewTransaction(ix)
	require.NoError(t, tx.Sign(signers...))

	return l.SubmitTransaction(context.Background(), tx)
}

func gameOf(t *testing.T, acct Account) Game {
	t.Helper()

	var g Game
	require.NoError(t, g.UnmarshalBinary(acct.Data))

	return g
}

func TestInitializeCreatesGame(t *testing.T) {
	l := newTestLedger(t, nil)
	player := newPlayer(t)

	receipt, err := submit(t, l, InitializeInstruction(player.Address()), player)
	require.NoError(t, err)

	require.Len(t, receipt.Accounts, 1)
	assert.Equal(t, uint64(1), receipt.Block)
	assert.Equal(t, GameAddress(player.Address()), receipt.Accounts[0].Address)
	assert.Equal(t, ClickerProgramID, receipt.Accounts[0].Owner)
	assert.Equal(t, Game{Player: player.Address(), Clicks: 0}, gameOf(t, receipt.Accounts[0]))

	accounts, err := l.ProgramAccounts(context.Background(), ClickerProgramID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestInitializeTwiceFails(t *testing.T) {
	l := newTestLedger(t, nil)
	player := newPlayer(t)

	_, err := submit(t, l, InitializeInstruction(player.Address()), player)
	require.NoError(t, err)

	_, err = submit(t, l, InitializeInstruction(player.Address()), player)
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestInitializeRejectsForeignGameAddress(t *testing.T) {
	l := newTestLedger(t, nil)
	player, other := newPlayer(t), newPlayer(t)

	ix := InitializeInstruction(player.Address())
	ix.Accounts[0].Address = GameAddress(other.Address())

	_, err := submit(t, l, ix, player)
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestClickIncrements(t *testing.T) {
	l := newTestLedger(t, nil)
	player := newPlayer(t)

	_, err := submit(t, l, InitializeInstruction(player.Address()), player)
	require.NoError(t, err)

	for want := uint32(1); want <= 3; want++ {
		receipt, err := submit(t, l, ClickInstruction(player.Address()), player)
		require.NoError(t, err)
		assert.Equal(t, want, gameOf(t, receipt.Accounts[0]).Clicks)
	}

	acct, err := l.Account(context.Background(), GameAddress(player.Address()))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), gameOf(t, acct).Clicks)
}

func TestClickWithoutGame(t *testing.T) {
	l := newTestLedger(t, nil)
	player := newPlayer(t)

	_, err := submit(t, l, ClickInstruction(player.Address()), player)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestClickByAnotherPlayer(t *testing.T) {
	l := newTestLedger(t, nil)
	player, other := newPlayer(t), newPlayer(t)

	_, err := submit(t, l, InitializeInstruction(player.Address()), player)
	require.NoError(t, err)

	ix := ClickInstruction(other.Address())
	ix.Accounts[0].Address = GameAddress(player.Address())

	_, err = submit(t, l, ix, other)
	assert.ErrorIs(t, err, ErrInvalidPlayer)
}

func TestClickOverflow(t *testing.T) {
	store := NewMemoryStore()
	l := newTestLedger(t, store)
	player := newPlayer(t)

	_, err := submit(t, l, InitializeInstruction(player.Address()), player)
	require.NoError(t, err)

	data, _ := Game{Player: player.Address(), Clicks: 1<<32 - 1}.MarshalBinary()
	store.accounts[GameAddress(player.Address())] = Account{
		Address: GameAddress(player.Address()),
		Owner:   ClickerProgramID,
		Data:    data,
	}

	_, err = submit(t, l, ClickInstruction(player.Address()), player)
	assert.ErrorIs(t, err, ErrClickOverflow)
}

func TestSubmitRequiresSignatures(t *testing.T) {
	l := newTestLedger(t, nil)
	player, other := newPlayer(t), newPlayer(t)

	_, err := submit(t, l, InitializeInstruction(player.Address()))
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = submit(t, l, InitializeInstruction(player.Address()), other)
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestSubmitRejectsTamperedTransaction(t *testing.T) {
	l := newTestLedger(t, nil)
	player := newPlayer(t)

	tx := NewTransaction(InitializeInstruction(player.Address()))
	require.NoError(t, tx.Sign(player))
	tx.Nonce = "changed"

	_, err := l.SubmitTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSubmitRejectsReplay(t *testing.T) {
	l := newTestLedger(t, nil)
	player := newPlayer(t)

	_, err := submit(t, l, InitializeInstruction(player.Address()), player)
	require.NoError(t, err)

	tx := NewTransaction(ClickInstruction(player.Address()))
	require.NoError(t, tx.Sign(player))

	_, err = l.SubmitTransaction(context.Background(), tx)
	require.NoError(t, err)

	_, err = l.SubmitTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestSubmitUnknownProgramAndInstruction(t *testing.T) {
	l := newTestLedger(t, nil)
	player := newPlayer(t)

	ix := InitializeInstruction(player.Address())
	ix.Program = player.Address()
	_, err := submit(t, l, ix, player)
	assert.ErrorIs(t, err, ErrUnknownProgram)

	ix = InitializeInstruction(player.Address())
	ix.Data = []byte("nonsense")
	_, err = submit(t, l, ix, player)
	assert.ErrorIs(t, err, ErrUnknownInstruction)
}

func TestSubmitCancelledContext(t *testing.T) {
	l := newTestLedger(t, nil)
	player := newPlayer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tx := NewTransaction(InitializeInstruction(player.Address()))
	require.NoError(t, tx.Sign(player))

	_, err := l.SubmitTransaction(ctx, tx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFailedInstructionLeavesNoTrace(t *testing.T) {
	l := newTestLedger(t, nil)
	player := newPlayer(t)

	_, err := submit(t, l, ClickInstruction(player.Address()), player)
	require.Error(t, err)

	head, err := l.Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), head.Index)
}

func TestVerifyChain(t *testing.T) {
	store := NewMemoryStore()
	l := newTestLedger(t, store)
	player := newPlayer(t)

	_, err := submit(t, l, InitializeInstruction(player.Address()), player)
	require.NoError(t, err)
	for range 3 {
		_, err := submit(t, l, ClickInstruction(player.Address()), player)
		require.NoError(t, err)
	}

	require.NoError(t, l.Verify(context.Background()))

	store.blocks[2].Instruction = "initialize"
	assert.Error(t, l.Verify(context.Background()))
}

func TestSubscribe(t *testing.T) {
	l := newTestLedger(t, nil)
	player := newPlayer(t)

	var got []Block
	unsubscribe := l.Subscribe(func(b Block) { got = append(got, b) })

	_, err := submit(t, l, InitializeInstruction(player.Address()), player)
	require.NoError(t, err)
	_, err = submit(t, l, ClickInstruction(player.Address()), player)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "initialize", got[0].Instruction)
	assert.Equal(t, "click", got[1].Instruction)
	assert.Equal(t, got[0].Hash, got[1].PrevHash)

	unsubscribe()

	_, err = submit(t, l, ClickInstruction(player.Address()), player)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestUnsubscribeRemovesOnlyItsOwnHandler(t *testing.T) {
	l := newTestLedger(t, nil)
	player := newPlayer(t)

	count := func(n *int) func(Block) {
		return func(Block) { *n++ }
	}

	var first, second int
	_ = l.Subscribe(count(&first))
	unsubscribe := l.Subscribe(count(&second))

	unsubscribe()

	_, err := submit(t, l, InitializeInstruction(player.Address()), player)
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
}

// racingStore lets another writer commit just before each of the first
// races commits, the way a second process sharing the store would.
type racingStore struct {
	Store

	races   int
	commits int
	rival   func()
}

func (s *racingStore) Commit(ctx context.Context, block Block, accounts []Account) error {
	s.commits++
	if s.races > 0 {
		s.races--
		s.rival()
	}

	return s.Store.Commit(ctx, block, accounts)
}

func newRacingLedgers(t *testing.T, races int) (*Ledger, *racingStore) {
	t.Helper()

	shared := NewMemoryStore()
	other := newTestLedger(t, shared)

	store := &racingStore{Store: shared, races: races}
	store.rival = func() {
		rival := newPlayer(t)
		_, err := submit(t, other, InitializeInstruction(rival.Address()), rival)
		require.NoError(t, err)
	}

	return newTestLedger(t, store), store
}

func TestSubmitRetriesAfterConflict(t *testing.T) {
	l, store := newRacingLedgers(t, 2)
	player := newPlayer(t)

	receipt, err := submit(t, l, InitializeInstruction(player.Address()), player)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), receipt.Block)
	assert.Equal(t, 3, store.commits)

	accounts, err := l.ProgramAccounts(context.Background(), ClickerProgramID)
	require.NoError(t, err)
	assert.Len(t, accounts, 3)

	require.NoError(t, l.Verify(context.Background()))
}

func TestSubmitGivesUpAfterRepeatedConflicts(t *testing.T) {
	l, store := newRacingLedgers(t, maxCommitAttempts)
	player := newPlayer(t)

	_, err := submit(t, l, InitializeInstruction(player.Address()), player)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, maxCommitAttempts, store.commits)

	_, err = l.Account(context.Background(), GameAddress(player.Address()))
	assert.ErrorIs(t, err, ErrAccountNotFound)

	require.NoError(t, l.Verify(context.Background()))
}

func TestClosedLedger(t *testing.T) {
	l := newTestLedger(t, nil)
	player := newPlayer(t)

	require.NoError(t, l.Close())

	_, err := submit(t, l, InitializeInstruction(player.Address()), player)
	assert.ErrorIs(t, err, ErrClosed)
}
