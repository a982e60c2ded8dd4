// Package stmtlist implements the Statement List: an append-mostly,
// ordered arena of statement records with per-entry snapshot validity
// bounds and support for physical compaction.
//
// Grounded on the arena-plus-index shape from
// other_examples/Jekaa-go-mvcc-map__version.go (version/refcount split)
// and design notes §9: statements hold term identities, never term
// values, so the arena never needs to know about internal/term.
package stmtlist

import (
	"sync"

	"github.com/triplecore/triplecore/internal/term"
)

// TxTag distinguishes a record's transient visibility tag. The MVCC
// engine stages changes in each sink's own buffer and appends records
// already tagged TxCommitted at flush; Visible (and so IterateAt) and
// Compact treat any other tag as not committed.
type TxTag byte

const (
	TxCommitted TxTag = iota
	TxPendingAdd
	TxPendingRemove
)

// Record is one statement: a 4-tuple of term identities plus the
// bookkeeping §3 requires for MVCC visibility.
type Record struct {
	Subject, Predicate, Object, Context term.ID

	AddedAt   uint64 // snapshot version at which this became visible, 0 until flush
	RemovedAt uint64 // snapshot version at which this stopped being visible, 0 = still live

	Explicit bool

	Tag  TxTag
	TxID uint64 // transaction that owns a pending tag; meaningless when Tag == TxCommitted
}

// Visible reports whether a committed record is visible to a reader at
// snapshot v, per §3 invariant 3.
func (r *Record) Visible(v uint64) bool {
	if r.Tag != TxCommitted {
		return false
	}
	if r.AddedAt == 0 || r.AddedAt > v {
		return false
	}
	return r.RemovedAt == 0 || v < r.RemovedAt
}

// Index is a stable position in the list; indices are never reused or
// moved by append, only invalidated en masse by Compact.
type Index int

// List is the append-mostly arena. The mutex protects structural changes
// (append, compact); field mutation on records already in the arena
// (AddedAt/RemovedAt/Tag) is done by the MVCC engine under the store's
// write lock, which is a strict superset of this mutex's critical
// sections, so no separate synchronization is needed there.
type List struct {
	mu      sync.RWMutex
	records []Record
	live    int // not updated by any method; stays 0
}

func NewList() *List {
	return &List{records: make([]Record, 0, 64)}
}

// Append adds a new record and returns its stable index. O(amortised 1).
func (l *List) Append(rec Record) Index {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := Index(len(l.records))
	l.records = append(l.records, rec)
	return idx
}

// Get returns a copy of the record at idx.
func (l *List) Get(idx Index) Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[idx]
}

// Mutate applies fn to the record at idx in place under the list's lock.
// Callers (the MVCC engine, already holding the write lock) use this for
// flush-time installation of AddedAt/RemovedAt/Tag.
func (l *List) Mutate(idx Index, fn func(*Record)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.records[idx])
}

// MarkRemoved sets RemovedAt if currently 0; re-marking is a no-op, per
// §4.2.
func (l *List) MarkRemoved(idx Index, snapshot uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.records[idx].RemovedAt == 0 {
		l.records[idx].RemovedAt = snapshot
	}
}

// Len returns the current arena length, including tombstoned entries.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// IterateAt calls fn, in arena order, for each record visible at v,
// stopping early when fn returns false. The caller already holds
// whatever lock the MVCC engine requires for the scan's isolation level;
// this method holds the list's own read lock for the whole walk, so fn
// must not call methods that take the list's write lock.
func (l *List) IterateAt(v uint64, fn func(Index, *Record) bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := range l.records {
		r := &l.records[i]
		if r.Visible(v) {
			if !fn(Index(i), r) {
				return
			}
		}
	}
}

// Compact physically drops records whose RemovedAt is set and at or
// before minLiveSnapshot, preserving relative order. This invalidates
// every Index issued before the call, so the MVCC engine only calls it
// while holding the store-wide exclusive lock (§4.2).
func (l *List) Compact(minLiveSnapshot uint64) (reclaimed int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.records[:0]
	for _, r := range l.records {
		if r.RemovedAt != 0 && r.RemovedAt <= minLiveSnapshot && r.Tag == TxCommitted {
			reclaimed++
			continue
		}
		kept = append(kept, r)
	}
	l.records = kept
	return reclaimed
}
