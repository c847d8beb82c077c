// Package oplog implements the ledger's append-only operation log. Every
// successful state change is recorded here first; the current balances are
// only ever a projection of this log.
package oplog

import (
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/ledgerd/ledgerd/core/types"
)

// Entry is one committed log record: an operation and the id it was
// assigned at append time.
type Entry struct {
	ID types.OpID
	Op types.Operation
}

// Log is the in-memory operation log. The primary index is an ordered map
// keyed by OpID, so full-history iteration follows insertion order and
// point lookups are O(log N). The secondary index lists the OpIDs touching
// each account in append order.
//
// The log never rewrites history: entries are appended and only dropped
// when the whole log is discarded. Log is not safe for concurrent use; the
// ledger facade serializes access.
type Log struct {
	last      types.OpID // most recently assigned id, zero when empty
	byID      *treemap.Map
	byAccount map[types.AccountID][]types.OpID
}

// New returns an empty log.
func New() *Log {
	return &Log{
		byID: treemap.NewWith(func(a, b interface{}) int {
			return a.(types.OpID).Cmp(b.(types.OpID))
		}),
		byAccount: make(map[types.AccountID][]types.OpID),
	}
}

// Append stores a single operation and returns its assigned id. Ids are
// strictly increasing, starting from one.
func (l *Log) Append(op types.Operation) types.OpID {
	next := l.nextAfter(l.last)
	l.byID.Put(next, op)
	account := op.Account()
	l.byAccount[account] = append(l.byAccount[account], next)
	l.last = next
	return next
}

// AppendBatch appends a sequence of operations as one unit and returns
// their ids in order. The batch is all-or-nothing: the only way an append
// can fail is id-space exhaustion, which panics before any entry of the
// batch is stored.
func (l *Log) AppendBatch(ops []types.Operation) []types.OpID {
	// Reserve the whole id range first so a panic cannot leave a partial
	// batch behind.
	ids := make([]types.OpID, len(ops))
	next := l.last
	for i := range ops {
		next = l.nextAfter(next)
		ids[i] = next
	}
	for i, op := range ops {
		l.byID.Put(ids[i], op)
		account := op.Account()
		l.byAccount[account] = append(l.byAccount[account], ids[i])
	}
	if len(ops) > 0 {
		l.last = next
	}
	return ids
}

// AccountOps returns the entries referencing the given account, in append
// order. The account index lookup is O(1); collecting k entries costs
// O(k log N) through the primary index.
func (l *Log) AccountOps(id types.AccountID) ([]Entry, error) {
	ids, ok := l.byAccount[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownAccount, id)
	}
	entries := make([]Entry, 0, len(ids))
	for _, opID := range ids {
		op, found := l.byID.Get(opID)
		if !found {
			panic(fmt.Sprintf("oplog: account index references missing op id %s", opID))
		}
		entries = append(entries, Entry{ID: opID, Op: op.(types.Operation)})
	}
	return entries, nil
}

// History returns every entry of the log in OpID (= insertion) order.
func (l *Log) History() []Entry {
	entries := make([]Entry, 0, l.byID.Size())
	it := l.byID.Iterator()
	for it.Next() {
		entries = append(entries, Entry{ID: it.Key().(types.OpID), Op: it.Value().(types.Operation)})
	}
	return entries
}

// Len returns the number of committed entries.
func (l *Log) Len() int {
	return l.byID.Size()
}

func (l *Log) nextAfter(id types.OpID) types.OpID {
	if id.IsZero() {
		return types.FirstOpID()
	}
	return id.Next()
}
