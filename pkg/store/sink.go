package store

import (
	"context"
	"fmt"

	"github.com/triplecore/triplecore/internal/events"
	"github.com/triplecore/triplecore/internal/lockmgr"
	"github.com/triplecore/triplecore/internal/stmtindex"
	"github.com/triplecore/triplecore/internal/stmtlist"
	"github.com/triplecore/triplecore/internal/term"
	"github.com/triplecore/triplecore/pkg/rdf"
)

type sinkState int

const (
	sinkOpen sinkState = iota
	sinkStaged
	sinkPrepared
	sinkFlushed
	sinkClosed
)

type pendingKind int

const (
	pendingAdd pendingKind = iota
	pendingRemove
	pendingDeprecatePattern
	pendingClear
)

type pendingOp struct {
	kind    pendingKind
	s, p, o term.ID
	c       term.ID
	pattern stmtindex.Pattern // for pendingDeprecatePattern
	ctxs    []term.ID         // for pendingClear; empty means every context
}

// resolvedAdd is a pending add that survived duplicate collapsing,
// computed at Prepare and installed at Flush.
type resolvedAdd struct {
	s, p, o, c term.ID
}

// Sink is a single-threaded write handle implementing the
// open → staged → prepared → flushed → closed lifecycle of §4.6.
type Sink struct {
	source   *Source
	level    IsolationLevel
	state    sinkState
	snapshot uint64 // the version this sink began at

	pending []pendingOp

	resolvedAdds    []resolvedAdd
	resolvedRemoves []stmtlist.Index // arena indices reserved for removal at flush

	writeGuard *lockmgr.WriteGuard // held across prepare..close only under SERIALIZABLE
}

func (s *Sink) ensureState(allowed ...sinkState) error {
	for _, a := range allowed {
		if s.state == a {
			return nil
		}
	}
	return newErr("sink", InvalidState, fmt.Errorf("operation invalid in state %d", s.state))
}

func (s *Sink) internTerm(t rdf.Term) (term.ID, error) {
	if t == nil {
		return 0, nil
	}
	switch v := t.(type) {
	case rdf.IRI:
		return s.source.store.terms.InternIRI(v.Namespace, v.Local)
	case rdf.BlankNode:
		return s.source.store.terms.InternBlank(v.ID)
	case rdf.Literal:
		return s.source.store.terms.InternLiteral(v)
	default:
		return 0, newErr("sink", InvalidTerm, fmt.Errorf("unknown term type %T", t))
	}
}

func (s *Sink) lookupTerm(t rdf.Term) (term.ID, bool) {
	if t == nil {
		return 0, true
	}
	return s.source.store.terms.Lookup(t)
}

// Add stages an addition of (subject, predicate, object, context). The
// record's explicit flag is not a parameter: it always follows the kind
// of the partition this sink was opened on.
func (s *Sink) Add(subject, predicate, object, context rdf.Term) error {
	if err := s.ensureState(sinkOpen, sinkStaged); err != nil {
		return err
	}
	sid, err := s.internTerm(subject)
	if err != nil {
		return err
	}
	pid, err := s.internTerm(predicate)
	if err != nil {
		return err
	}
	oid, err := s.internTerm(object)
	if err != nil {
		return err
	}
	cid, err := s.internTerm(context)
	if err != nil {
		return err
	}
	if sid == 0 || pid == 0 || oid == 0 {
		return newErr("sink.add", InvalidTerm, fmt.Errorf("subject, predicate, and object must be non-empty"))
	}
	s.pending = append(s.pending, pendingOp{kind: pendingAdd, s: sid, p: pid, o: oid, c: cid})
	s.state = sinkStaged
	return nil
}

// Remove stages a removal of the exact (subject, predicate, object,
// context) quad, a no-op at flush if no such live statement exists.
func (s *Sink) Remove(subject, predicate, object, context rdf.Term) error {
	if err := s.ensureState(sinkOpen, sinkStaged); err != nil {
		return err
	}
	sid, ok := s.lookupTerm(subject)
	if !ok {
		return nil // never-interned term: nothing could match, stage nothing
	}
	pid, ok := s.lookupTerm(predicate)
	if !ok {
		return nil
	}
	oid, ok := s.lookupTerm(object)
	if !ok {
		return nil
	}
	cid, ok := s.lookupTerm(context)
	if !ok {
		return nil
	}
	s.pending = append(s.pending, pendingOp{kind: pendingRemove, s: sid, p: pid, o: oid, c: cid})
	s.state = sinkStaged
	return nil
}

// DeprecateByPattern stages removal of every live statement matching
// pattern; unbound positions are resolved at Prepare against the
// snapshot the sink began at.
func (s *Sink) DeprecateByPattern(pattern Pattern) error {
	if err := s.ensureState(sinkOpen, sinkStaged); err != nil {
		return err
	}
	pat, possible, err := s.source.resolvePattern(pattern)
	if err != nil {
		return err
	}
	if !possible {
		return nil
	}
	s.pending = append(s.pending, pendingOp{kind: pendingDeprecatePattern, pattern: pat})
	s.state = sinkStaged
	return nil
}

// Clear stages removal of every live statement in the given contexts,
// or in every context if none are given.
func (s *Sink) Clear(contexts ...rdf.Term) error {
	if err := s.ensureState(sinkOpen, sinkStaged); err != nil {
		return err
	}
	var ids []term.ID
	for _, c := range contexts {
		id, ok := s.lookupTerm(c)
		if !ok {
			continue // never-interned context has nothing to clear
		}
		ids = append(ids, id)
	}
	s.pending = append(s.pending, pendingOp{kind: pendingClear, ctxs: ids})
	s.state = sinkStaged
	return nil
}

// Prepare validates the sink against current store state per §4.6:
// duplicate adds collapse to no-ops, pending removes are resolved to
// the live record they'll retire, and under SERIALIZABLE a write-write
// conflict against any commit after the sink's snapshot fails with
// ConcurrentModification.
func (s *Sink) Prepare() error {
	if err := s.ensureState(sinkOpen, sinkStaged); err != nil {
		return err
	}

	if s.level == Serializable {
		s.writeGuard = s.source.store.locks.AcquireWrite()
	}

	netAction := s.netActions()
	seenKeys := make(map[[4]term.ID]bool)
	removeSet := make(map[stmtlist.Index]bool)

	for _, op := range s.pending {
		switch op.kind {
		case pendingAdd, pendingRemove:
			key := [4]term.ID{op.s, op.p, op.o, op.c}
			if seenKeys[key] {
				continue // this key's net action was already resolved
			}
			seenKeys[key] = true

			idx, live := s.source.index.FindLive(s.source.list, op.s, op.p, op.o, op.c, s.isExplicit())
			switch netAction[key] {
			case pendingAdd:
				if live {
					rec := s.source.list.Get(idx)
					if s.level == Serializable && rec.AddedAt > s.snapshot {
						s.abortPrepare()
						s.source.store.metrics.conflictsTotal.Inc()
						return newErr("sink.prepare", ConcurrentModification,
							fmt.Errorf("statement already added by a transaction committed after this sink's snapshot"))
					}
					continue // already live: duplicate collapses to no-op (§3 invariant 1, §8 idempotence)
				}
				s.resolvedAdds = append(s.resolvedAdds, resolvedAdd{s: op.s, p: op.p, o: op.o, c: op.c})

			case pendingRemove:
				if !live {
					continue // nothing live to remove: net no-op, e.g. add-then-remove of a new statement
				}
				removeSet[idx] = true
			}

		case pendingDeprecatePattern:
			s.resolvePatternRemoval(op.pattern, removeSet)

		case pendingClear:
			s.resolveClearRemoval(op.ctxs, removeSet)
		}
	}

	if s.level == Serializable {
		for idx := range removeSet {
			rec := s.source.list.Get(idx)
			if rec.RemovedAt != 0 && rec.RemovedAt > s.snapshot {
				s.abortPrepare()
				s.source.store.metrics.conflictsTotal.Inc()
				return newErr("sink.prepare", ConcurrentModification,
					fmt.Errorf("statement already removed by a transaction committed after this sink's snapshot"))
			}
		}
	}

	for idx := range removeSet {
		s.resolvedRemoves = append(s.resolvedRemoves, idx)
	}

	s.state = sinkPrepared
	return nil
}

// netActions resolves the sink's own staged buffer before consulting
// committed state at all: a later exact add/remove on the same
// (s,p,o,c) key overrides an earlier one from this same sink, so
// add-then-remove of a key nets to "remove" and remove-then-add nets
// to "add" rather than each op being resolved independently against
// FindLive (which only ever reflects committed/flushed records, and so
// cannot see this sink's own not-yet-flushed intentions).
func (s *Sink) netActions() map[[4]term.ID]pendingKind {
	netAction := make(map[[4]term.ID]pendingKind)
	for _, op := range s.pending {
		if op.kind == pendingAdd || op.kind == pendingRemove {
			netAction[[4]term.ID{op.s, op.p, op.o, op.c}] = op.kind
		}
	}
	return netAction
}

// Read returns every statement matching pattern visible to this sink:
// the committed snapshot it began at, overlaid with this sink's own
// staged adds and removes. This is the writer-monotonicity guarantee
// of §5 — a writer's own uncommitted changes are visible to its own
// subsequent reads on the same sink — and is scoped to this sink only;
// another connection's uncommitted writes, or even this store's
// commits made after the sink's snapshot, never appear here.
func (s *Sink) Read(pattern Pattern) ([]Quad, error) {
	if err := s.ensureState(sinkOpen, sinkStaged); err != nil {
		return nil, err
	}
	pat, possible, err := s.source.resolvePattern(pattern)
	if err != nil {
		return nil, err
	}

	removeSet := make(map[stmtlist.Index]bool)
	for _, op := range s.pending {
		switch op.kind {
		case pendingDeprecatePattern:
			s.resolvePatternRemoval(op.pattern, removeSet)
		case pendingClear:
			s.resolveClearRemoval(op.ctxs, removeSet)
		}
	}

	var synthesized []resolvedAdd
	for key, action := range s.netActions() {
		idx, live := s.source.index.FindLive(s.source.list, key[0], key[1], key[2], key[3], s.isExplicit())
		switch action {
		case pendingAdd:
			if !live {
				synthesized = append(synthesized, resolvedAdd{s: key[0], p: key[1], o: key[2], c: key[3]})
			}
		case pendingRemove:
			if live {
				removeSet[idx] = true
			}
		}
	}

	var out []Quad
	if possible {
		for _, idx := range s.source.index.Scan(pat) {
			if removeSet[idx] {
				continue
			}
			rec := s.source.list.Get(idx)
			if !rec.Visible(s.snapshot) || !matches(pat, rec) {
				continue
			}
			q, err := quadFromRecord(s.source.store, rec)
			if err != nil {
				return nil, err
			}
			out = append(out, q)
		}
	}

	for _, add := range synthesized {
		if pat.Subject != 0 && add.s != pat.Subject {
			continue
		}
		if pat.Predicate != 0 && add.p != pat.Predicate {
			continue
		}
		if pat.Object != 0 && add.o != pat.Object {
			continue
		}
		if !pat.CtxAny && add.c != pat.Context {
			continue
		}
		q, err := quadFromRecord(s.source.store, stmtlist.Record{
			Subject: add.s, Predicate: add.p, Object: add.o, Context: add.c, Explicit: s.isExplicit(),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}

	return out, nil
}

func (s *Sink) abortPrepare() {
	if s.writeGuard != nil {
		s.writeGuard.Close()
		s.writeGuard = nil
	}
}

func (s *Sink) isExplicit() bool { return s.source.kind == PartitionExplicit }

func (s *Sink) resolvePatternRemoval(pat stmtindex.Pattern, removeSet map[stmtlist.Index]bool) {
	for _, idx := range s.source.index.Scan(pat) {
		rec := s.source.list.Get(idx)
		if !rec.Visible(s.snapshot) {
			continue
		}
		if !matches(pat, rec) {
			continue
		}
		removeSet[idx] = true
	}
}

func (s *Sink) resolveClearRemoval(ctxs []term.ID, removeSet map[stmtlist.Index]bool) {
	if len(ctxs) == 0 {
		s.source.list.IterateAt(s.snapshot, func(idx stmtlist.Index, _ *stmtlist.Record) bool {
			removeSet[idx] = true
			return true
		})
		return
	}
	for _, cid := range ctxs {
		s.resolvePatternRemoval(stmtindex.Pattern{Context: cid}, removeSet)
	}
}

// Flush atomically installs every resolved change: advances the
// snapshot clock, sets added_at/removed_at, links new records into the
// inverted lists, and updates the hash index, per §4.6.
func (s *Sink) Flush() error {
	if err := s.ensureState(sinkPrepared); err != nil {
		return err
	}

	install := func() error {
		v := s.source.store.clock.Advance()

		for _, idx := range s.resolvedRemoves {
			s.source.list.MarkRemoved(idx, v)
		}
		for _, add := range s.resolvedAdds {
			rec := stmtlist.Record{
				Subject: add.s, Predicate: add.p, Object: add.o, Context: add.c,
				Explicit: s.isExplicit(), AddedAt: v, Tag: stmtlist.TxCommitted,
			}
			idx := s.source.list.Append(rec)
			installed := s.source.list.Get(idx)
			s.source.index.Link(idx, &installed)
		}

		if len(s.resolvedAdds) > 0 || len(s.resolvedRemoves) > 0 {
			s.source.store.metrics.commitsTotal.Inc()
			if s.source.store.persistEngine != nil {
				s.source.store.persistEngine.MarkDirty()
				if err := s.source.store.persistEngine.ScheduleSync(); err != nil {
					s.source.store.metrics.syncFailuresTotal.Inc()
				} else {
					s.source.store.metrics.syncsTotal.Inc()
				}
			}
			s.source.store.emitter.Notify(context.Background(), events.Changed{
				Partition:     string(s.source.kind),
				Added:         len(s.resolvedAdds),
				Removed:       len(s.resolvedRemoves),
				CommitVersion: v,
			})
		}
		return nil
	}

	var err error
	if s.writeGuard != nil {
		err = install()
	} else {
		err = s.source.store.locks.WriteLocked(install)
	}
	if err != nil {
		return err
	}

	s.state = sinkFlushed
	return nil
}

// Close releases the sink's pinned snapshot and write lock, if held. If
// called before Flush, the staged buffer is discarded (rollback).
func (s *Sink) Close() error {
	if s.state == sinkClosed {
		return nil
	}
	s.source.store.clock.EndRead(s.snapshot)
	if s.writeGuard != nil {
		s.writeGuard.Close()
		s.writeGuard = nil
	}
	if s.state != sinkFlushed {
		s.source.store.metrics.rollbacksTotal.Inc()
	}
	s.state = sinkClosed
	return nil
}
