// Package stmtindex implements the Statement Index: per-term inverted
// lists by role (subject/predicate/object/context) plus a hash index on
// (s,p,o,c,explicit) used by the MVCC engine to detect duplicate adds
// and locate the current live record for removal.
//
// Grounded on the teacher's pkg/store/query.go index-selection idiom
// (choose the smallest bound list as the scan driver) generalised from
// trigo's 11 disk-resident permutation tables down to 4 in-memory
// per-role lists, and on internal/encoding/encoder.go's xxh3-based
// content addressing, applied here to the (s,p,o,c,explicit) dedup key
// instead of to term bytes.
package stmtindex

import (
	"encoding/binary"
	"sync"

	"github.com/triplecore/triplecore/internal/stmtlist"
	"github.com/triplecore/triplecore/internal/term"
	"github.com/zeebo/xxh3"
)

// Role identifies which position of a statement an inverted list covers.
type Role int

const (
	RoleSubject Role = iota
	RolePredicate
	RoleObject
	RoleContext
	roleCount
)

// invList is one term's inverted list for one role: append-only in
// commit order per §3 invariant 5. Entries are never reordered, only
// rebuilt wholesale after a Statement List compaction.
type invList struct {
	mu      sync.RWMutex
	indices []stmtlist.Index
}

func (l *invList) append(idx stmtlist.Index) {
	l.mu.Lock()
	l.indices = append(l.indices, idx)
	l.mu.Unlock()
}

func (l *invList) snapshot() []stmtlist.Index {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]stmtlist.Index, len(l.indices))
	copy(out, l.indices)
	return out
}

func (l *invList) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.indices)
}

type dedupKey [33]byte // 4 * 8-byte term IDs + 1 explicit byte

func makeDedupKey(s, p, o, c term.ID, explicit bool) dedupKey {
	var k dedupKey
	binary.BigEndian.PutUint64(k[0:8], uint64(s))
	binary.BigEndian.PutUint64(k[8:16], uint64(p))
	binary.BigEndian.PutUint64(k[16:24], uint64(o))
	binary.BigEndian.PutUint64(k[24:32], uint64(c))
	if explicit {
		k[32] = 1
	}
	return k
}

// hashBucket computes the xxh3 128-bit hash of a dedup key, mirroring
// the teacher's Hash128 content-addressing of term bytes.
func hashBucket(k dedupKey) xxh3.Uint128 {
	return xxh3.Hash128(k[:])
}

// Index is the dual inverted-list / hash-index structure for one
// partition (explicit or inferred).
type Index struct {
	store *term.Store

	global *invList // driver for fully unconstrained scans

	// hash index: dedup key hash -> arena indices of every record linked
	// under that hash. A given (s,p,o,c,explicit) key has at most one
	// live entry at a time (§3 invariant 1), but a bucket also keeps the
	// key's removed records until the next Rebuild and may hold records
	// of distinct keys whose hashes collide, which is why FindLive
	// re-checks equality and RemovedAt against the list record.
	hashMu sync.RWMutex
	hash   map[xxh3.Uint128][]stmtlist.Index
}

func New(store *term.Store) *Index {
	return &Index{
		store:  store,
		global: &invList{},
		hash:   make(map[xxh3.Uint128][]stmtlist.Index),
	}
}

// listFor returns the per-role inverted list for a term, double-checked
// lazily initializing the record's role slot on first use (§9, §4.1).
func (ix *Index) listFor(id term.ID, role Role) *invList {
	rec, ok := ix.store.Record(id)
	if !ok {
		return nil
	}
	lists, mu := rec.Lists()

	if v := lists[role]; v != nil {
		return v.(*invList)
	}
	mu.Lock()
	defer mu.Unlock()
	if v := lists[role]; v != nil {
		return v.(*invList)
	}
	l := &invList{}
	lists[role] = l
	return l
}

// Link attaches a newly flushed record to its role's inverted lists and
// records it in the hash index. Called by the MVCC engine under the
// store's write lock, at flush time only (§4.6).
func (ix *Index) Link(idx stmtlist.Index, rec *stmtlist.Record) {
	ix.global.append(idx)
	if rec.Subject != 0 {
		if l := ix.listFor(rec.Subject, RoleSubject); l != nil {
			l.append(idx)
		}
	}
	if rec.Predicate != 0 {
		if l := ix.listFor(rec.Predicate, RolePredicate); l != nil {
			l.append(idx)
		}
	}
	if rec.Object != 0 {
		if l := ix.listFor(rec.Object, RoleObject); l != nil {
			l.append(idx)
		}
	}
	if l := ix.listFor(rec.Context, RoleContext); l != nil {
		l.append(idx)
	}

	key := makeDedupKey(rec.Subject, rec.Predicate, rec.Object, rec.Context, rec.Explicit)
	bucket := hashBucket(key)
	ix.hashMu.Lock()
	ix.hash[bucket] = append(ix.hash[bucket], idx)
	ix.hashMu.Unlock()
}

// FindLive looks up the hash index for a live (uncompacted) statement
// matching (s,p,o,c,explicit). list is the arena needed to disambiguate
// hash collisions and to skip entries another commit has already
// removed.
func (ix *Index) FindLive(list *stmtlist.List, s, p, o, c term.ID, explicit bool) (stmtlist.Index, bool) {
	key := makeDedupKey(s, p, o, c, explicit)
	bucket := hashBucket(key)

	ix.hashMu.RLock()
	candidates := append([]stmtlist.Index(nil), ix.hash[bucket]...)
	ix.hashMu.RUnlock()

	for _, idx := range candidates {
		rec := list.Get(idx)
		if rec.Subject == s && rec.Predicate == p && rec.Object == o && rec.Context == c &&
			rec.Explicit == explicit && rec.RemovedAt == 0 {
			return idx, true
		}
	}
	return 0, false
}

// Pattern constrains zero or more of the four roles to a specific term
// identity. A zero ID means "unconstrained" for that role, except
// Context, where term.ID(0) legitimately means "default graph" — scans
// that want to leave context unconstrained instead set CtxAny.
type Pattern struct {
	Subject, Predicate, Object term.ID
	Context                    term.ID
	CtxAny                     bool
}

// Scan returns, in arena order, the indices of candidate statements
// matching the pattern's bound positions. The caller still applies the
// snapshot visibility filter and the equality checks on every bound
// position — Scan only narrows using whichever inverted list is
// shortest, per §4.3's "choose the smallest of the constrained lists as
// the driver". The default graph (Context 0) has no inverted list of its
// own, so a default-graph constraint never drives the scan: the other
// bound positions, or the global list, supply the candidates.
func (ix *Index) Scan(p Pattern) []stmtlist.Index {
	type candidate struct {
		role Role
		id   term.ID
	}
	var bound []candidate
	if p.Subject != 0 {
		bound = append(bound, candidate{RoleSubject, p.Subject})
	}
	if p.Predicate != 0 {
		bound = append(bound, candidate{RolePredicate, p.Predicate})
	}
	if p.Object != 0 {
		bound = append(bound, candidate{RoleObject, p.Object})
	}
	if !p.CtxAny && p.Context != 0 {
		bound = append(bound, candidate{RoleContext, p.Context})
	}

	if len(bound) == 0 {
		return ix.global.snapshot()
	}

	best := -1
	bestLen := -1
	lists := make([]*invList, len(bound))
	for i, c := range bound {
		l := ix.listFor(c.id, c.role)
		lists[i] = l
		n := 0
		if l != nil {
			n = l.len()
		}
		if bestLen == -1 || n < bestLen {
			bestLen = n
			best = i
		}
	}

	if lists[best] == nil {
		return nil
	}
	return lists[best].snapshot()
}

// Rebuild discards all lists and the hash index and re-derives them from
// scratch by replaying every record currently in list. Called after a
// Statement List compaction, whose re-indexing invalidates every index
// value the Statement Index was holding (§4.2).
func (ix *Index) Rebuild(list *stmtlist.List) {
	ix.global = &invList{}
	ix.hashMu.Lock()
	ix.hash = make(map[xxh3.Uint128][]stmtlist.Index)
	ix.hashMu.Unlock()

	// Per-role lists live on term.Record, not on Index, so clearing them
	// means dropping every record's cached slot before relinking.
	n := list.Len()
	for i := 0; i < n; i++ {
		idx := stmtlist.Index(i)
		rec := list.Get(idx)
		ix.clearRoleSlots(rec)
	}
	for i := 0; i < n; i++ {
		idx := stmtlist.Index(i)
		rec := list.Get(idx)
		ix.Link(idx, &rec)
	}
}

func (ix *Index) clearRoleSlots(rec stmtlist.Record) {
	for _, id := range [4]term.ID{rec.Subject, rec.Predicate, rec.Object, rec.Context} {
		if id == 0 {
			continue
		}
		if r, ok := ix.store.Record(id); ok {
			lists, mu := r.Lists()
			mu.Lock()
			for i := range lists {
				lists[i] = nil
			}
			mu.Unlock()
		}
	}
}
