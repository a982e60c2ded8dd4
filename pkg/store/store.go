// Package store implements the MVCC Engine: the public surface over the
// term dictionary, statement index, snapshot clock, lock manager, and
// persistence engine. A Store exposes one Source per partition
// (explicit and inferred), each handing out Datasets for reads and
// Sinks for writes at a chosen isolation level.
//
// Grounded on the teacher's pkg/store package boundary (storage.go's
// Storage/Transaction split generalised here to Source/Dataset/Sink)
// and the two-phase New/Open idiom from
// other_examples/aalhour-rockyardkv__snapshot.go's engine setup.
package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/triplecore/triplecore/internal/clock"
	"github.com/triplecore/triplecore/internal/events"
	"github.com/triplecore/triplecore/internal/lockmgr"
	"github.com/triplecore/triplecore/internal/persist"
	"github.com/triplecore/triplecore/internal/stmtlist"
	"github.com/triplecore/triplecore/internal/term"
)

// Store is the root handle: one term arena, one snapshot clock, one
// lock manager, and two partitions sharing all three.
type Store struct {
	cfg Config

	terms *term.Store
	clock *clock.Clock
	locks *lockmgr.Manager

	explicit *Source
	inferred *Source

	persistEngine  *persist.Engine
	releaseDirLock func() error

	emitter *events.Emitter
	metrics *storeMetrics

	mu          sync.Mutex
	initialized bool
}

// New validates cfg and allocates the store's in-memory structures. The
// store is not yet usable for reads or writes until Open succeeds.
func New(cfg Config, observers ...events.Observer) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:     cfg,
		terms:   term.NewStore(),
		clock:   clock.New(),
		locks:   lockmgr.New(cfg.CursorCapacity),
		emitter: events.NewEmitter(observers...),
	}
	s.explicit = newSource(PartitionExplicit, s)
	s.inferred = newSource(PartitionInferred, s)

	label := cfg.DataDir
	if label == "" {
		label = "memory"
	}
	s.metrics = newStoreMetrics(label, func() float64 { return float64(s.clock.LiveCount()) })

	return s, nil
}

// Open performs recovery (if persist is configured) and makes the store
// ready for reads and writes. Calling Open twice fails with
// AlreadyInitialised; calling Explicit, Inferred, or Close before Open
// succeeds fails with NotInitialised.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return newErr("open", AlreadyInitialised, nil)
	}

	if s.cfg.Persist {
		if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
			return newErr("open", PersistenceIO, err)
		}
		release, err := s.locks.LockDirectory(s.cfg.DataDir)
		if err != nil {
			if _, ok := err.(*lockmgr.LockHeldError); ok {
				return newErr("open", LockFailed, err)
			}
			return newErr("open", PersistenceIO, err)
		}
		s.releaseDirLock = release

		s.persistEngine = persist.NewEngine(s.cfg.DataDir, s.cfg.SyncDelayMs, func() persist.Snapshot {
			return &storeSnapshot{s: s, v: s.clock.Current()}
		})

		replay := newReplayState(s)
		if err := s.persistEngine.Open(replay.apply); err != nil {
			_ = release()
			return newErr("open", PersistenceIO, err)
		}
	}

	s.clock.Advance() // establishes version 1 as the floor added_at invariant (§3 invariant 2) requires

	s.initialized = true
	return nil
}

func (s *Store) requireInitialized(op string) error {
	if !s.initialized {
		return newErr(op, NotInitialised, nil)
	}
	return nil
}

// Explicit returns the handle for the explicit (user-asserted) partition.
func (s *Store) Explicit() (*Source, error) {
	if err := s.requireInitialized("explicit"); err != nil {
		return nil, err
	}
	return s.explicit, nil
}

// Inferred returns the handle for the inferred partition.
func (s *Store) Inferred() (*Source, error) {
	if err := s.requireInitialized("inferred"); err != nil {
		return nil, err
	}
	return s.inferred, nil
}

// Stats is a point-in-time summary of the store, grounded on the
// teacher's TripleStore.Count() but widened to the MVCC engine's own
// bookkeeping (current snapshot, live-reader count).
type Stats struct {
	ExplicitLive   int
	InferredLive   int
	CurrentVersion uint64
	LiveSnapshots  int
	TermCount      int
}

// Stats reports a point-in-time snapshot of store-wide counters.
func (s *Store) Stats() (Stats, error) {
	if err := s.requireInitialized("stats"); err != nil {
		return Stats{}, err
	}
	v := s.clock.Current()
	countLive := func(src *Source) int {
		n := 0
		src.list.IterateAt(v, func(stmtlist.Index, *stmtlist.Record) bool { n++; return true })
		return n
	}
	return Stats{
		ExplicitLive:   countLive(s.explicit),
		InferredLive:   countLive(s.inferred),
		CurrentVersion: v,
		LiveSnapshots:  s.clock.LiveCount(),
		TermCount:      s.terms.Len(),
	}, nil
}

// Compact reclaims statement records invisible to every live reader
// across both partitions, and rebuilds each partition's statement
// index afterwards since compaction invalidates arena indices (§4.2).
func (s *Store) Compact() error {
	if err := s.requireInitialized("compact"); err != nil {
		return err
	}
	return s.locks.WriteLocked(func() error {
		floor := s.clock.MinLive()
		for _, src := range []*Source{s.explicit, s.inferred} {
			reclaimed := src.list.Compact(floor)
			if reclaimed > 0 {
				src.index.Rebuild(src.list)
				s.metrics.compactionReclaimed.Add(reclaimed)
			}
		}
		s.metrics.compactionRuns.Inc()
		return nil
	})
}

// Close flushes any owed persistence sync, releases the directory lock,
// and marks the store uninitialized.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return newErr("close", NotInitialised, nil)
	}

	var firstErr error
	if s.persistEngine != nil {
		if err := s.persistEngine.Close(); err != nil {
			firstErr = fmt.Errorf("persistence close: %w", err)
		}
	}
	if s.releaseDirLock != nil {
		if err := s.releaseDirLock(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("release directory lock: %w", err)
		}
	}

	s.initialized = false
	if firstErr != nil {
		return newErr("close", PersistenceIO, firstErr)
	}
	return nil
}
