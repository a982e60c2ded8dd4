package store

import (
	"github.com/triplecore/triplecore/internal/persist"
	"github.com/triplecore/triplecore/internal/stmtlist"
	"github.com/triplecore/triplecore/internal/term"
	"github.com/triplecore/triplecore/pkg/rdf"
)

// storeSnapshot adapts a Store's term arena and both partitions' live
// statements to persist.Snapshot, for a full dump at the latest
// committed version. Namespace ids are assigned here, first-seen order,
// since the term store itself only interns namespace strings and never
// numbers them.
type storeSnapshot struct {
	s *Store
	v uint64
}

func (sn *storeSnapshot) WalkTerms(fn func(persist.Record) error) error {
	nsIDs := make(map[string]uint64)
	nextNSID := uint64(1)

	nsIDFor := func(ns string) (uint64, bool) {
		if ns == "" {
			return 0, false
		}
		if id, ok := nsIDs[ns]; ok {
			return id, true
		}
		id := nextNSID
		nextNSID++
		nsIDs[ns] = id
		return id, true
	}

	for _, rec := range sn.s.terms.All() {
		switch t := rec.Term.(type) {
		case rdf.IRI:
			if id, ok := nsIDFor(t.Namespace); ok {
				if err := fn(persist.Record{Tag: persist.TagNamespace, ID: id, Namespace: t.Namespace}); err != nil {
					return err
				}
				if err := fn(persist.Record{Tag: persist.TagURI, ID: uint64(rec.ID), NSID: id, Local: t.Local}); err != nil {
					return err
				}
			} else {
				if err := fn(persist.Record{Tag: persist.TagURI, ID: uint64(rec.ID), NSID: 0, Local: t.Local}); err != nil {
					return err
				}
			}
		case rdf.BlankNode:
			if err := fn(persist.Record{Tag: persist.TagBNode, ID: uint64(rec.ID), Label: t.ID}); err != nil {
				return err
			}
		case rdf.Literal:
			datatypeID, hasDatatype := sn.datatypeID(t)
			if err := fn(persist.Record{
				Tag: persist.TagLiteral, ID: uint64(rec.ID),
				Lexical: t.Lexical, Language: t.Language,
				DatatypeID: datatypeID, HasDatatype: hasDatatype,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (sn *storeSnapshot) datatypeID(lit rdf.Literal) (uint64, bool) {
	if lit.Datatype.Full() == "" {
		return 0, false
	}
	id, ok := sn.s.terms.Lookup(lit.Datatype)
	if !ok {
		return 0, false
	}
	return uint64(id), true
}

func (sn *storeSnapshot) WalkStatements(fn func(persist.Record) error) error {
	walk := func(list *stmtlist.List, explicit bool) error {
		var walkErr error
		list.IterateAt(sn.v, func(_ stmtlist.Index, r *stmtlist.Record) bool {
			walkErr = fn(persist.Record{
				Tag: persist.TagStatement,
				Subject: uint64(r.Subject), Predicate: uint64(r.Predicate),
				Object: uint64(r.Object), Context: uint64(r.Context),
				Explicit: explicit,
			})
			return walkErr == nil
		})
		return walkErr
	}
	if err := walk(sn.s.explicit.list, true); err != nil {
		return err
	}
	return walk(sn.s.inferred.list, false)
}

// replayState accumulates the file-ID -> store-ID remapping needed
// because a fresh store reassigns term identities on intern rather than
// trusting ids recorded in a previous process's file (§9's "identities
// are stable for the store's lifetime", not across reloads).
type replayState struct {
	s      *Store
	nsByID map[uint64]string
	idMap  map[uint64]term.ID
}

func newReplayState(s *Store) *replayState {
	return &replayState{s: s, nsByID: make(map[uint64]string), idMap: make(map[uint64]term.ID)}
}

func (rs *replayState) apply(rec persist.Record) error {
	switch rec.Tag {
	case persist.TagNamespace:
		rs.nsByID[rec.ID] = rec.Namespace
		return nil

	case persist.TagURI:
		ns := rs.nsByID[rec.NSID]
		id, err := rs.s.terms.InternIRI(ns, rec.Local)
		if err != nil {
			return err
		}
		rs.idMap[rec.ID] = id
		return nil

	case persist.TagBNode:
		id, err := rs.s.terms.InternBlank(rec.Label)
		if err != nil {
			return err
		}
		rs.idMap[rec.ID] = id
		return nil

	case persist.TagLiteral:
		lit := rdf.Literal{Lexical: rec.Lexical, Language: rec.Language}
		if rec.HasDatatype {
			if dtID, ok := rs.idMap[rec.DatatypeID]; ok {
				if t, ok := rs.s.terms.Resolve(dtID); ok {
					if iri, ok := t.(rdf.IRI); ok {
						lit.Datatype = iri
					}
				}
			}
		}
		id, err := rs.s.terms.InternLiteral(lit)
		if err != nil {
			return err
		}
		rs.idMap[rec.ID] = id
		return nil

	case persist.TagStatement:
		part := rs.s.inferred
		if rec.Explicit {
			part = rs.s.explicit
		}
		list := stmtlist.Record{
			Subject:   rs.idMap[rec.Subject],
			Predicate: rs.idMap[rec.Predicate],
			Object:    rs.idMap[rec.Object],
			Context:   rs.idMap[rec.Context],
			Explicit:  rec.Explicit,
			AddedAt:   1,
			Tag:       stmtlist.TxCommitted,
		}
		idx := part.list.Append(list)
		rec := part.list.Get(idx)
		part.index.Link(idx, &rec)
		return nil

	default:
		return nil
	}
}
