package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerd/ledgerd/core/types"
)

func TestAccountLifecycle(t *testing.T) {
	l := New(nil)

	account, err := l.CreateAccount("acc1")
	require.NoError(t, err)
	assert.Equal(t, types.Account{ID: "acc1", Balance: 0}, account)

	_, err = l.CreateAccount("acc1")
	assert.ErrorIs(t, err, types.ErrDuplicateAccount)

	account, err = l.Deposit("acc1", types.MustAmount(100))
	require.NoError(t, err)
	assert.Equal(t, types.Money(100), account.Balance)

	account, err = l.Withdraw("acc1", types.MustAmount(30))
	require.NoError(t, err)
	assert.Equal(t, types.Money(70), account.Balance)

	account, err = l.Balance("acc1")
	require.NoError(t, err)
	assert.Equal(t, types.Money(70), account.Balance)
}

func TestCreateRejectsBadIDs(t *testing.T) {
	l := New(nil)

	_, err := l.CreateAccount("")
	assert.ErrorIs(t, err, types.ErrBadRequest)

	_, err = l.CreateAccount("this-id-is-way-too-long-to-accept")
	assert.ErrorIs(t, err, types.ErrBadRequest)

	assert.Empty(t, l.History(), "rejected creates must not be logged")
}

func TestWithdrawInsufficient(t *testing.T) {
	l := New(nil)
	_, err := l.CreateAccount("acc")
	require.NoError(t, err)
	_, err = l.Deposit("acc", types.MustAmount(10))
	require.NoError(t, err)

	before := len(l.History())
	_, err = l.Withdraw("acc", types.MustAmount(11))
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)
	assert.Len(t, l.History(), before, "rejected withdraw must not be logged")

	account, err := l.Balance("acc")
	require.NoError(t, err)
	assert.Equal(t, types.Money(10), account.Balance)
}

func TestUnknownAccountOperations(t *testing.T) {
	l := New(nil)

	_, err := l.Deposit("ghost", types.MustAmount(1))
	assert.ErrorIs(t, err, types.ErrUnknownAccount)

	_, err = l.Withdraw("ghost", types.MustAmount(1))
	assert.ErrorIs(t, err, types.ErrUnknownAccount)

	_, err = l.Balance("ghost")
	assert.ErrorIs(t, err, types.ErrUnknownAccount)

	_, err = l.AccountOps("ghost")
	assert.ErrorIs(t, err, types.ErrUnknownAccount)
}

func TestMove(t *testing.T) {
	l := New(nil)
	_, err := l.CreateAccount("from")
	require.NoError(t, err)
	_, err = l.CreateAccount("to")
	require.NoError(t, err)
	_, err = l.Deposit("from", types.MustAmount(100))
	require.NoError(t, err)

	from, to, err := l.Move("from", "to", types.MustAmount(60))
	require.NoError(t, err)
	assert.Equal(t, types.Money(40), from.Balance)
	assert.Equal(t, types.Money(60), to.Balance)

	// A transfer is two consecutive log entries: withdraw then deposit.
	history := l.History()
	require.Len(t, history, 5)
	assert.Equal(t, types.Withdraw{ID: "from", Amount: types.MustAmount(60)}, history[3].Op)
	assert.Equal(t, types.Deposit{ID: "to", Amount: types.MustAmount(60)}, history[4].Op)
	assert.Equal(t, 0, history[4].ID.Cmp(history[3].ID.Next()))
}

func TestMoveInsufficientLeavesNothingBehind(t *testing.T) {
	l := New(nil)
	_, err := l.CreateAccount("from")
	require.NoError(t, err)
	_, err = l.CreateAccount("to")
	require.NoError(t, err)
	_, err = l.Deposit("from", types.MustAmount(10))
	require.NoError(t, err)

	before := len(l.History())
	_, _, err = l.Move("from", "to", types.MustAmount(11))
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)

	assert.Len(t, l.History(), before, "failed transfer must not be logged")
	from, _ := l.Balance("from")
	to, _ := l.Balance("to")
	assert.Equal(t, types.Money(10), from.Balance)
	assert.Equal(t, types.Money(0), to.Balance)
}

func TestMoveToUnknownAccount(t *testing.T) {
	l := New(nil)
	_, err := l.CreateAccount("from")
	require.NoError(t, err)
	_, err = l.Deposit("from", types.MustAmount(10))
	require.NoError(t, err)

	before := len(l.History())
	_, _, err = l.Move("from", "ghost", types.MustAmount(5))
	assert.ErrorIs(t, err, types.ErrUnknownAccount)
	assert.Len(t, l.History(), before)

	from, _ := l.Balance("from")
	assert.Equal(t, types.Money(10), from.Balance, "withdraw half of a failed transfer must not apply")
}

func TestMoveToSelfProhibited(t *testing.T) {
	l := New(nil)
	_, err := l.CreateAccount("acc")
	require.NoError(t, err)
	_, err = l.Deposit("acc", types.MustAmount(10))
	require.NoError(t, err)

	_, _, err = l.Move("acc", "acc", types.MustAmount(5))
	assert.ErrorIs(t, err, types.ErrProhibited)

	account, _ := l.Balance("acc")
	assert.Equal(t, types.Money(10), account.Balance)
}

func TestAccountOps(t *testing.T) {
	l := New(nil)
	_, err := l.CreateAccount("a")
	require.NoError(t, err)
	_, err = l.CreateAccount("b")
	require.NoError(t, err)
	_, err = l.Deposit("a", types.MustAmount(10))
	require.NoError(t, err)
	_, _, err = l.Move("a", "b", types.MustAmount(4))
	require.NoError(t, err)

	entries, err := l.AccountOps("a")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, types.Create{ID: "a"}, entries[0].Op)
	assert.Equal(t, types.Deposit{ID: "a", Amount: types.MustAmount(10)}, entries[1].Op)
	assert.Equal(t, types.Withdraw{ID: "a", Amount: types.MustAmount(4)}, entries[2].Op)

	entries, err = l.AccountOps("b")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.Deposit{ID: "b", Amount: types.MustAmount(4)}, entries[1].Op)
}

func TestReplayYieldsEqualLedger(t *testing.T) {
	l := New(nil)
	_, err := l.CreateAccount("a")
	require.NoError(t, err)
	_, err = l.CreateAccount("b")
	require.NoError(t, err)
	_, err = l.Deposit("a", types.MustAmount(100))
	require.NoError(t, err)
	_, _, err = l.Move("a", "b", types.MustAmount(33))
	require.NoError(t, err)
	_, err = l.Withdraw("b", types.MustAmount(3))
	require.NoError(t, err)

	replayed := NewFromHistory(l.History(), nil)

	assert.Equal(t, l.History(), replayed.History())
	for _, id := range []types.AccountID{"a", "b"} {
		want, err := l.Balance(id)
		require.NoError(t, err)
		got, err := replayed.Balance(id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestConcurrentDeposits(t *testing.T) {
	const (
		goroutines = 16
		deposits   = 50
		amount     = 3
	)
	l := New(nil)
	_, err := l.CreateAccount("acc")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < deposits; i++ {
				if _, err := l.Deposit("acc", types.MustAmount(amount)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	account, err := l.Balance("acc")
	require.NoError(t, err)
	assert.Equal(t, types.Money(goroutines*deposits*amount), account.Balance)

	// One create plus every deposit, each with a unique increasing id.
	history := l.History()
	require.Len(t, history, 1+goroutines*deposits)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, -1, history[i-1].ID.Cmp(history[i].ID))
	}
}

func TestConcurrentMovesConserveTotal(t *testing.T) {
	const accounts = 4
	l := New(nil)
	ids := make([]types.AccountID, accounts)
	for i := range ids {
		ids[i] = types.AccountID(fmt.Sprintf("acc%d", i))
		_, err := l.CreateAccount(ids[i])
		require.NoError(t, err)
		_, err = l.Deposit(ids[i], types.MustAmount(1000))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			from := ids[g%accounts]
			to := ids[(g+1)%accounts]
			for i := 0; i < 100; i++ {
				// Insufficient funds is a legal outcome here; only
				// unexpected errors fail the test.
				if _, _, err := l.Move(from, to, types.MustAmount(7)); err != nil {
					if account, berr := l.Balance(from); berr == nil && account.Balance >= 7 {
						continue
					}
				}
			}
		}()
	}
	wg.Wait()

	var total types.Money
	for _, id := range ids {
		account, err := l.Balance(id)
		require.NoError(t, err)
		total += account.Balance
	}
	assert.Equal(t, types.Money(accounts*1000), total, "transfers must conserve the total")
}
