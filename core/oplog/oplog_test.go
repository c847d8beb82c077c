package oplog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerd/ledgerd/core/types"
)

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	l := New()
	var prev types.OpID
	for i := 0; i < 100; i++ {
		id := l.Append(types.Deposit{ID: "acc", Amount: types.MustAmount(1)})
		require.False(t, id.IsZero())
		if i > 0 {
			assert.Equal(t, -1, prev.Cmp(id), "ids must be strictly increasing")
		}
		prev = id
	}
	assert.Equal(t, 100, l.Len())
}

func TestFirstIDIsOne(t *testing.T) {
	l := New()
	id := l.Append(types.Create{ID: "acc"})
	assert.Equal(t, 0, id.Cmp(types.FirstOpID()))
}

func TestHistoryFollowsInsertionOrder(t *testing.T) {
	l := New()
	ops := []types.Operation{
		types.Create{ID: "a"},
		types.Create{ID: "b"},
		types.Deposit{ID: "a", Amount: types.MustAmount(5)},
		types.Withdraw{ID: "a", Amount: types.MustAmount(2)},
		types.Deposit{ID: "b", Amount: types.MustAmount(9)},
	}
	var ids []types.OpID
	for _, op := range ops {
		ids = append(ids, l.Append(op))
	}

	history := l.History()
	require.Len(t, history, len(ops))
	for i, entry := range history {
		assert.Equal(t, 0, entry.ID.Cmp(ids[i]))
		assert.Equal(t, ops[i], entry.Op)
	}
}

func TestAccountOps(t *testing.T) {
	l := New()
	l.Append(types.Create{ID: "a"})
	l.Append(types.Create{ID: "b"})
	l.Append(types.Deposit{ID: "a", Amount: types.MustAmount(5)})
	l.Append(types.Deposit{ID: "b", Amount: types.MustAmount(7)})
	l.Append(types.Withdraw{ID: "a", Amount: types.MustAmount(3)})

	entries, err := l.AccountOps("a")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, types.Create{ID: "a"}, entries[0].Op)
	assert.Equal(t, types.Deposit{ID: "a", Amount: types.MustAmount(5)}, entries[1].Op)
	assert.Equal(t, types.Withdraw{ID: "a", Amount: types.MustAmount(3)}, entries[2].Op)

	_, err = l.AccountOps("missing")
	assert.ErrorIs(t, err, types.ErrUnknownAccount)
}

func TestAppendBatchIsConsecutive(t *testing.T) {
	l := New()
	l.Append(types.Create{ID: "a"})
	l.Append(types.Create{ID: "b"})

	ids := l.AppendBatch([]types.Operation{
		types.Withdraw{ID: "a", Amount: types.MustAmount(4)},
		types.Deposit{ID: "b", Amount: types.MustAmount(4)},
	})
	require.Len(t, ids, 2)
	assert.Equal(t, 0, ids[1].Cmp(ids[0].Next()), "batch ids must be consecutive")

	// The next single append continues right after the batch.
	next := l.Append(types.Deposit{ID: "a", Amount: types.MustAmount(1)})
	assert.Equal(t, 0, next.Cmp(ids[1].Next()))
}

func TestAppendBatchEmpty(t *testing.T) {
	l := New()
	ids := l.AppendBatch(nil)
	assert.Empty(t, ids)
	assert.Equal(t, 0, l.Len())
}
