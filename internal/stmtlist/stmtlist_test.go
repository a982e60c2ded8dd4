package stmtlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndGet(t *testing.T) {
	l := NewList()
	idx := l.Append(Record{Subject: 1, Predicate: 2, Object: 3, AddedAt: 1, Tag: TxCommitted})
	rec := l.Get(idx)
	assert.Equal(t, Index(0), idx) // first append into a fresh list
	assert.EqualValues(t, 1, rec.Subject)
}

func TestVisible_BeforeAdded(t *testing.T) {
	r := Record{AddedAt: 5, Tag: TxCommitted}
	assert.False(t, r.Visible(4))
	assert.True(t, r.Visible(5))
}

func TestVisible_AfterRemoved(t *testing.T) {
	r := Record{AddedAt: 1, RemovedAt: 5, Tag: TxCommitted}
	assert.True(t, r.Visible(4))
	assert.False(t, r.Visible(5))
}

func TestVisible_PendingNotVisible(t *testing.T) {
	r := Record{AddedAt: 1, Tag: TxPendingAdd}
	assert.False(t, r.Visible(1))
}

func TestMarkRemoved_Idempotent(t *testing.T) {
	l := NewList()
	idx := l.Append(Record{AddedAt: 1, Tag: TxCommitted})
	l.MarkRemoved(idx, 5)
	l.MarkRemoved(idx, 9) // second mark is a no-op
	rec := l.Get(idx)
	assert.EqualValues(t, 5, rec.RemovedAt)
}

func TestIterateAt_SkipsInvisible(t *testing.T) {
	l := NewList()
	l.Append(Record{AddedAt: 1, RemovedAt: 3, Tag: TxCommitted})
	l.Append(Record{AddedAt: 1, Tag: TxCommitted})

	var seen int
	l.IterateAt(3, func(_ Index, r *Record) bool {
		seen++
		return true
	})
	assert.Equal(t, 1, seen)
}

func TestCompact_ReclaimsOnlyBelowFloor(t *testing.T) {
	l := NewList()
	l.Append(Record{AddedAt: 1, RemovedAt: 2, Tag: TxCommitted})
	l.Append(Record{AddedAt: 1, Tag: TxCommitted})

	reclaimed := l.Compact(1) // floor below the removed record's RemovedAt=2: nothing reclaimed yet
	assert.Equal(t, 0, reclaimed)
	require.Equal(t, 2, l.Len())

	reclaimed = l.Compact(2)
	assert.Equal(t, 1, reclaimed)
	assert.Equal(t, 1, l.Len())
}
