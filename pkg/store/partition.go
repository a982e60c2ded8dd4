package store

import (
	"fmt"

	"github.com/triplecore/triplecore/internal/stmtindex"
	"github.com/triplecore/triplecore/internal/stmtlist"
)

// PartitionKind distinguishes the explicit (user-asserted) and inferred
// partitions, which share one term arena but keep distinct statement
// arenas, per §9.
type PartitionKind string

const (
	PartitionExplicit PartitionKind = "explicit"
	PartitionInferred PartitionKind = "inferred"
)

// Source is a handle for one partition, from which datasets and sinks
// are obtained at a chosen isolation level, per §4.6.
type Source struct {
	kind  PartitionKind
	store *Store
	list  *stmtlist.List
	index *stmtindex.Index
}

func newSource(kind PartitionKind, store *Store) *Source {
	return &Source{
		kind:  kind,
		store: store,
		list:  stmtlist.NewList(),
		index: stmtindex.New(store.terms),
	}
}

func (p *Source) Kind() PartitionKind { return p.kind }

// Dataset opens a read-only view pinned at a snapshot appropriate for
// level, per §4.6. NONE and READ_COMMITTED do not pin a fixed version;
// every other level pins the clock's current version for the dataset's
// lifetime.
func (p *Source) Dataset(level IsolationLevel) (*Dataset, error) {
	if !p.store.cfg.supports(level) {
		return nil, newErr("dataset", InvalidState, fmt.Errorf("isolation level %s not supported by this store", level))
	}
	if !p.store.initialized {
		return nil, newErr("dataset", NotInitialised, nil)
	}

	d := &Dataset{source: p, level: level}
	if level == NONE || level == ReadCommitted {
		d.pinned = false
		return d, nil
	}
	d.version = p.store.clock.BeginRead()
	d.pinned = true
	return d, nil
}

// Sink opens a write handle at level, per §4.6. Sinks are single
// transaction-scoped and single-threaded.
func (p *Source) Sink(level IsolationLevel) (*Sink, error) {
	if !p.store.cfg.supports(level) {
		return nil, newErr("sink", InvalidState, fmt.Errorf("isolation level %s not supported by this store", level))
	}
	if !p.store.initialized {
		return nil, newErr("sink", NotInitialised, nil)
	}

	return &Sink{
		source:   p,
		level:    level,
		state:    sinkOpen,
		snapshot: p.store.clock.BeginRead(),
	}, nil
}
