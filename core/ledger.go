// Package core wires the operation log and the balance projection into the
// ledger facade used by sessions. The facade owns the single reader-writer
// lock of the system and guarantees that no state change is observable
// without its log entry already committed.
package core

import (
	"fmt"
	"sync"

	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"

	"github.com/ledgerd/ledgerd/core/oplog"
	"github.com/ledgerd/ledgerd/core/state"
	"github.com/ledgerd/ledgerd/core/types"
)

var (
	commitCounter = metrics.GetOrRegisterCounter("ledger/commits", nil)
	opsCounter    = metrics.GetOrRegisterCounter("ledger/ops", nil)
	rejectCounter = metrics.GetOrRegisterCounter("ledger/rejects", nil)
)

// Ledger is the event-sourced account store. All mutations go through the
// same commit path: validate the batch against the projection, append it to
// the log, then fold it into the projection. Readers take the read lock and
// may run concurrently; writers exclude everything else. The linearization
// point of a write is the release of the write lock.
type Ledger struct {
	mu  sync.RWMutex
	ops *oplog.Log
	db  *state.StateDB
	log *zap.Logger
}

// New returns an empty ledger. A nil logger is replaced with a no-op one.
func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		ops: oplog.New(),
		db:  state.New(),
		log: logger,
	}
}

// NewFromHistory reconstructs a ledger by replaying a captured history in
// order. The log is observed literally: every entry is re-appended, and an
// entry whose projection fails is logged and skipped rather than aborting
// the replay. Replaying the history of a well-formed ledger yields an equal
// ledger.
func NewFromHistory(history []oplog.Entry, logger *zap.Logger) *Ledger {
	l := New(logger)
	for _, entry := range history {
		id := l.ops.Append(entry.Op)
		if _, err := l.db.Apply(entry.Op); err != nil {
			l.log.Warn("skipping history entry with failing projection",
				zap.Stringer("id", id),
				zap.Any("op", entry.Op),
				zap.Error(err))
		}
	}
	return l
}

// CreateAccount registers a new account with a zero balance and returns it.
func (l *Ledger) CreateAccount(id types.AccountID) (types.Account, error) {
	if err := id.Validate(); err != nil {
		return types.Account{}, err
	}
	accounts, err := l.commit(types.Create{ID: id})
	if err != nil {
		return types.Account{}, err
	}
	return accounts[0], nil
}

// Deposit adds amount to the account balance and returns the new state.
func (l *Ledger) Deposit(id types.AccountID, amount types.Amount) (types.Account, error) {
	accounts, err := l.commit(types.Deposit{ID: id, Amount: amount})
	if err != nil {
		return types.Account{}, err
	}
	return accounts[0], nil
}

// Withdraw removes amount from the account balance and returns the new
// state. Withdrawing more than the balance fails without touching the log.
func (l *Ledger) Withdraw(id types.AccountID, amount types.Amount) (types.Account, error) {
	accounts, err := l.commit(types.Withdraw{ID: id, Amount: amount})
	if err != nil {
		return types.Account{}, err
	}
	return accounts[0], nil
}

// Move transfers amount between two distinct accounts. It commits exactly
// two consecutive log entries, withdraw then deposit, or none at all: the
// pair is validated against the hypothetical post-withdraw state before
// anything is appended. The post-transfer states are returned in
// (from, to) order.
func (l *Ledger) Move(from, to types.AccountID, amount types.Amount) (types.Account, types.Account, error) {
	if from == to {
		rejectCounter.Inc(1)
		return types.Account{}, types.Account{}, fmt.Errorf("%w: transfer from %s to itself", types.ErrProhibited, from)
	}
	accounts, err := l.commit(
		types.Withdraw{ID: from, Amount: amount},
		types.Deposit{ID: to, Amount: amount},
	)
	if err != nil {
		return types.Account{}, types.Account{}, err
	}
	return accounts[0], accounts[1], nil
}

// Balance returns the current state of an account.
func (l *Ledger) Balance(id types.AccountID) (types.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.db.Balance(id)
}

// AccountOps returns the committed operations referencing an account, in
// append order.
func (l *Ledger) AccountOps(id types.AccountID) ([]oplog.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ops.AccountOps(id)
}

// History returns the full operation log in OpID order. It observes every
// operation whose write lock was released before this call acquired the
// read lock.
func (l *Ledger) History() []oplog.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ops.History()
}

// commit is the single write path: validate, append, project. The append
// happens strictly before the projection, so an error from ApplyAll after a
// successful validation means the two have diverged; that is a bug in this
// package, not a business outcome, and it aborts the process.
func (l *Ledger) commit(ops ...types.Operation) ([]types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.db.ValidateAll(ops); err != nil {
		rejectCounter.Inc(1)
		return nil, err
	}
	l.ops.AppendBatch(ops)
	accounts, err := l.db.ApplyAll(ops)
	if err != nil {
		panic(fmt.Sprintf("core: projection diverged from validated log batch: %v", err))
	}
	commitCounter.Inc(1)
	opsCounter.Inc(int64(len(ops)))
	return accounts, nil
}
