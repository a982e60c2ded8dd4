package store

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/triplecore/triplecore/internal/lockmgr"
	"github.com/triplecore/triplecore/internal/stmtindex"
	"github.com/triplecore/triplecore/internal/stmtlist"
	"github.com/triplecore/triplecore/internal/term"
	"github.com/triplecore/triplecore/pkg/rdf"
)

// Quad is a fully resolved statement returned from a scan: term values
// rather than identities, for the caller's convenience.
type Quad struct {
	Subject, Predicate, Object rdf.Term
	Context                    rdf.Term // nil means the default graph
	Explicit                   bool
}

// Pattern constrains zero or more positions of a scan to a specific
// term; a nil field leaves that position unbound. CtxAny, when true,
// leaves context unbound too (the zero value of Context otherwise means
// "bound to the default graph").
type Pattern struct {
	Subject, Predicate, Object rdf.Term
	Context                    rdf.Term
	CtxAny                     bool
}

// Dataset is a read-only view, pinned at a snapshot for every isolation
// level except NONE and READ_COMMITTED, per §4.6.
type Dataset struct {
	source  *Source
	level   IsolationLevel
	version uint64
	pinned  bool
	closed  atomic.Bool
}

// ErrAfterEnd is returned by any Dataset method called after Close, per
// §5 "closure... sets subsequent reads to return AfterEnd".
var ErrAfterEnd = fmt.Errorf("store: dataset closed")

func (d *Dataset) currentVersion() uint64 {
	if d.pinned {
		return d.version
	}
	return d.source.store.clock.Current()
}

// resolvePattern translates a term-valued Pattern to a stmtindex.Pattern
// of identities. possible is false when a bound position names a term
// never interned by this store: no statement could possibly match, so
// callers short-circuit to an empty result rather than treating the
// missing term as "unbound". Shared by Dataset.Scan/Cursor and Sink's
// deprecate-by-pattern staging, since both need the same translation.
func (p *Source) resolvePattern(pat Pattern) (out stmtindex.Pattern, possible bool, err error) {
	possible = true
	resolve := func(t rdf.Term) term.ID {
		if t == nil {
			return 0
		}
		id, ok := p.store.terms.Lookup(t)
		if !ok {
			possible = false
			return 0
		}
		return id
	}
	out.Subject = resolve(pat.Subject)
	out.Predicate = resolve(pat.Predicate)
	out.Object = resolve(pat.Object)
	out.CtxAny = pat.CtxAny
	if !pat.CtxAny {
		out.Context = resolve(pat.Context)
	}
	return out, possible, nil
}

// Scan eagerly returns every statement matching pattern visible at the
// dataset's snapshot.
func (d *Dataset) Scan(pattern Pattern) ([]Quad, error) {
	if d.closed.Load() {
		return nil, ErrAfterEnd
	}
	pat, possible, err := d.source.resolvePattern(pattern)
	if err != nil {
		return nil, err
	}
	if !possible {
		return nil, nil
	}

	v := d.currentVersion()
	candidates := d.source.index.Scan(pat)

	var out []Quad
	for _, idx := range candidates {
		rec := d.source.list.Get(idx)
		if !rec.Visible(v) {
			continue
		}
		if !matches(pat, rec) {
			continue
		}
		q, err := d.resolveQuad(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func matches(pat stmtindex.Pattern, rec stmtlist.Record) bool {
	if pat.Subject != 0 && rec.Subject != pat.Subject {
		return false
	}
	if pat.Predicate != 0 && rec.Predicate != pat.Predicate {
		return false
	}
	if pat.Object != 0 && rec.Object != pat.Object {
		return false
	}
	if !pat.CtxAny && rec.Context != pat.Context {
		return false
	}
	return true
}

func (d *Dataset) resolveQuad(rec stmtlist.Record) (Quad, error) {
	return quadFromRecord(d.source.store, rec)
}

// quadFromRecord resolves a statement record's term identities back to
// values. Shared by Dataset's committed-snapshot scans and Sink's own
// writer-monotonicity reads, since both ultimately hand the caller a Quad.
func quadFromRecord(store *Store, rec stmtlist.Record) (Quad, error) {
	s, _ := store.terms.Resolve(rec.Subject)
	p, _ := store.terms.Resolve(rec.Predicate)
	o, _ := store.terms.Resolve(rec.Object)
	var c rdf.Term
	if rec.Context != 0 {
		c, _ = store.terms.Resolve(rec.Context)
	}
	return Quad{Subject: s, Predicate: p, Object: o, Context: c, Explicit: rec.Explicit}, nil
}

// Cursor is a lazy scan that holds a read lock until it is drained or
// closed, per design notes §9 "a cursor struct holding both iterator
// state and a scoped lock guard". Close is safe to call in either case.
type Cursor struct {
	dataset    *Dataset
	guard      *lockmgr.Cursor
	candidates []stmtlist.Index
	pos        int
	version    uint64
	pattern    stmtindex.Pattern
	closed     atomic.Bool
}

// Cursor opens a lazy, lock-held scan. The returned cursor must be
// closed to release its read lock and cursor-queue slot (§5, §8
// scenario 6).
func (d *Dataset) Cursor(ctx context.Context, pattern Pattern) (*Cursor, error) {
	if d.closed.Load() {
		return nil, ErrAfterEnd
	}
	pat, possible, err := d.source.resolvePattern(pattern)
	if err != nil {
		return nil, err
	}
	guard, err := d.source.store.locks.AcquireCursor(ctx)
	if err != nil {
		return nil, newErr("cursor", Interrupted, err)
	}
	cur := &Cursor{
		dataset: d,
		guard:   guard,
		version: d.currentVersion(),
		pattern: pat,
	}
	if possible {
		cur.candidates = d.source.index.Scan(pat)
	}
	return cur, nil
}

// Next advances the cursor and returns the next matching quad, or
// ok=false once exhausted; exhaustion releases the read lock and
// cursor-queue slot.
func (c *Cursor) Next() (Quad, bool, error) {
	if c.closed.Load() {
		return Quad{}, false, ErrAfterEnd
	}
	for c.pos < len(c.candidates) {
		idx := c.candidates[c.pos]
		c.pos++
		rec := c.dataset.source.list.Get(idx)
		if !rec.Visible(c.version) || !matches(c.pattern, rec) {
			continue
		}
		q, err := c.dataset.resolveQuad(rec)
		return q, true, err
	}
	c.guard.Close()
	return Quad{}, false, nil
}

// Close releases the cursor's read lock and queue slot. Idempotent.
func (c *Cursor) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.guard.Close()
	}
}

// Close releases the dataset's pinned snapshot, if any.
func (d *Dataset) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if d.pinned {
		d.source.store.clock.EndRead(d.version)
	}
	return nil
}
