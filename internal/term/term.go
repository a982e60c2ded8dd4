// Package term implements the Term Store: it deduplicates and
// canonicalises IRIs, blank nodes, and literals, and assigns each
// equivalence class a stable identity for the lifetime of the store.
//
// Grounded on the teacher's pkg/rdf/term.go variant shape and
// internal/encoding/encoder.go's content-hashing approach to
// canonicalisation, generalised here to an in-memory arena with
// structural namespace sharing instead of a disk-backed hash lookup.
package term

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/triplecore/triplecore/pkg/rdf"
)

// ID is a term's stable identity within a store. Zero is reserved and
// never assigned to a real term; it is used by callers to mean "no
// context" (the default graph) or "absent".
type ID uint64

// ErrInvalidTerm is returned when a term's shape violates §4.1's rules:
// a literal with both a non-default language and a non-langString
// datatype, or an empty IRI.
var ErrInvalidTerm = errors.New("invalid term")

// Record is the canonical, store-owned representation of an interned
// term plus bookkeeping used by the Statement Index to lazily attach
// per-role inverted lists (§4.1 "back-pointers are populated lazily").
type Record struct {
	ID   ID
	Term rdf.Term

	mu    sync.Mutex
	lists [4]any // one slot per statement role, populated lazily by stmtindex
}

// Lists returns the record's lazily-initialized role slots and the mutex
// guarding their first-time creation. stmtindex double-checks under this
// lock before allocating a new per-role list (§9 "double-checked lazy
// initialisation").
func (r *Record) Lists() (*[4]any, *sync.Mutex) {
	return &r.lists, &r.mu
}

type literalKey struct {
	lexical  string
	language string
	datatype string
}

type iriKey struct {
	namespace string
	local     string
}

// Store interns terms into a single dictionary shared by both the
// explicit and inferred partitions (§9 "cross-partition references
// share the same term arena"). All mutating methods must be called with
// the caller holding the enclosing store's write lock; Lookup may be
// called under a read lock.
type Store struct {
	mu sync.RWMutex // protects the maps below only; callers still serialise writers via the store-wide lock manager

	byIRI     map[iriKey]*Record
	byBlank   map[string]*Record
	byLiteral map[literalKey]*Record
	namespace map[string]string // interned namespace strings, structurally shared

	records  []*Record // index 0 unused; ID i lives at records[i]
	blankSeq uint64
}

func NewStore() *Store {
	return &Store{
		byIRI:     make(map[iriKey]*Record),
		byBlank:   make(map[string]*Record),
		byLiteral: make(map[literalKey]*Record),
		namespace: make(map[string]string),
		records:   make([]*Record, 1),
	}
}

// internNamespace returns the single shared string instance for ns,
// so that every IRI record in the same namespace points at one backing
// string (§4.1 "namespaces are themselves interned").
func (s *Store) internNamespace(ns string) string {
	if shared, ok := s.namespace[ns]; ok {
		return shared
	}
	s.namespace[ns] = ns
	return ns
}

func (s *Store) allocate(t rdf.Term) *Record {
	id := ID(len(s.records))
	rec := &Record{ID: id, Term: t}
	s.records = append(s.records, rec)
	return rec
}

// InternIRI returns the identity of the canonical IRI term, creating one
// if absent. Equality is decided by the full (namespace+local) string,
// matching rdf.IRI.Equals, so two different splits of the same IRI
// resolve to the same record: the dictionary key re-splits the full
// string at its last '#' or '/', and the record keeps the split of the
// first caller.
func (s *Store) InternIRI(namespace, local string) (ID, error) {
	if namespace == "" && local == "" {
		return 0, fmt.Errorf("%w: empty IRI", ErrInvalidTerm)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	canon := rdf.NewIRIString(namespace + local)
	key := iriKey{namespace: canon.Namespace, local: canon.Local}
	if rec, ok := s.byIRI[key]; ok {
		return rec.ID, nil
	}

	sharedNS := s.internNamespace(namespace)
	rec := s.allocate(rdf.NewIRI(sharedNS, local))
	s.byIRI[key] = rec
	return rec.ID, nil
}

// InternBlank interns a blank node by its externally supplied label.
func (s *Store) InternBlank(id string) (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.internBlankLocked(id), nil
}

func (s *Store) internBlankLocked(id string) ID {
	if rec, ok := s.byBlank[id]; ok {
		return rec.ID
	}
	rec := s.allocate(rdf.NewBlankNode(id))
	s.byBlank[id] = rec
	return rec.ID
}

// NewBlankLabel generates a fresh, collision-free blank node label and
// interns it. Labels combine a per-store monotonic counter with a uuid
// suffix so labels remain unique even across store restarts that don't
// persist blankSeq.
func (s *Store) NewBlankLabel() (ID, string) {
	s.mu.Lock()
	s.blankSeq++
	label := fmt.Sprintf("b%d-%s", s.blankSeq, uuid.New().String())
	id := s.internBlankLocked(label)
	s.mu.Unlock()
	return id, label
}

// InternLiteral canonicalises by (lexical, language lowercased,
// datatype). language and datatype are mutually exclusive except for
// rdf:langString, which pairs with language.
func (s *Store) InternLiteral(lit rdf.Literal) (ID, error) {
	if !lit.Valid() {
		return 0, fmt.Errorf("%w: literal has both a language tag and a non-langString datatype", ErrInvalidTerm)
	}
	lit.Language = strings.ToLower(lit.Language)

	key := literalKey{lexical: lit.Lexical, language: lit.Language, datatype: lit.Datatype.Full()}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byLiteral[key]; ok {
		return rec.ID, nil
	}

	canon := lit
	if lit.Datatype.Full() != "" {
		canon.Datatype = rdf.NewIRI(s.internNamespace(lit.Datatype.Namespace), lit.Datatype.Local)
	}
	rec := s.allocate(canon)
	s.byLiteral[key] = rec
	return rec.ID, nil
}

// Lookup performs a non-creating lookup of an already-specced term.
func (s *Store) Lookup(t rdf.Term) (ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch v := t.(type) {
	case rdf.IRI:
		if rec, ok := s.byIRI[iriKey{namespace: v.Namespace, local: v.Local}]; ok {
			return rec.ID, true
		}
		// The caller's IRI may not be split the same way we stored it;
		// fall back to a full-string scan only when the fast path misses.
		full := v.Full()
		for k, rec := range s.byIRI {
			if k.namespace+k.local == full {
				return rec.ID, true
			}
		}
	case rdf.BlankNode:
		if rec, ok := s.byBlank[v.ID]; ok {
			return rec.ID, true
		}
	case rdf.Literal:
		if rec, ok := s.byLiteral[literalKey{lexical: v.Lexical, language: v.Language, datatype: v.Datatype.Full()}]; ok {
			return rec.ID, true
		}
	}
	return 0, false
}

// Resolve returns the term value for an identity. ok is false for ID 0
// (no term) or an identity never issued by this store.
func (s *Store) Resolve(id ID) (rdf.Term, bool) {
	if id == 0 {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= len(s.records) || s.records[id] == nil {
		return nil, false
	}
	return s.records[id].Term, true
}

// Record returns the store-owned record for an identity, used by
// stmtindex to reach the record's lazily-initialized per-role lists.
func (s *Store) Record(id ID) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == 0 || int(id) >= len(s.records) || s.records[id] == nil {
		return nil, false
	}
	return s.records[id], true
}

// Len returns the number of distinct terms interned so far.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records) - 1
}

// All returns every interned record in identity order, for the
// persistence engine's full-dump walk. The returned slice is a
// snapshot; records allocated afterwards are not included.
func (s *Store) All() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records)-1)
	for i := 1; i < len(s.records); i++ {
		if s.records[i] != nil {
			out = append(out, s.records[i])
		}
	}
	return out
}
