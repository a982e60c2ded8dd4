package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triplecore/triplecore/pkg/rdf"
)

func openMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, s.Open())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func alice() rdf.IRI  { return rdf.NewIRI("https://example.org/", "alice") }
func bob() rdf.IRI    { return rdf.NewIRI("https://example.org/", "bob") }
func knows() rdf.IRI  { return rdf.NewIRI("https://example.org/", "knows") }
func name() rdf.IRI   { return rdf.NewIRI("https://example.org/", "name") }

func addAliceKnowsBob(t *testing.T, src *Source) {
	t.Helper()
	sink, err := src.Sink(Serializable)
	require.NoError(t, err)
	require.NoError(t, sink.Add(alice(), knows(), bob(), nil))
	require.NoError(t, sink.Prepare())
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())
}

func TestInsertAndQuery(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)

	addAliceKnowsBob(t, explicit)

	ds, err := explicit.Dataset(SnapshotRead)
	require.NoError(t, err)
	defer ds.Close()

	results, err := ds.Scan(Pattern{Subject: alice(), CtxAny: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, bob(), results[0].Object)
	assert.True(t, results[0].Explicit)
}

func TestSnapshotIsolation_ReaderDoesNotSeeLaterRemoval(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)
	addAliceKnowsBob(t, explicit)

	reader, err := explicit.Dataset(SnapshotRead)
	require.NoError(t, err)
	defer reader.Close()

	sink, err := explicit.Sink(Serializable)
	require.NoError(t, err)
	require.NoError(t, sink.Remove(alice(), knows(), bob(), nil))
	require.NoError(t, sink.Prepare())
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())

	results, err := reader.Scan(Pattern{Subject: alice(), CtxAny: true})
	require.NoError(t, err)
	assert.Len(t, results, 1, "a reader pinned before the removal should still see the statement")

	fresh, err := explicit.Dataset(SnapshotRead)
	require.NoError(t, err)
	defer fresh.Close()
	results, err = fresh.Scan(Pattern{Subject: alice(), CtxAny: true})
	require.NoError(t, err)
	assert.Len(t, results, 0, "a new snapshot taken after the removal should not see the statement")
}

func TestSerializable_ConcurrentModificationOnAdd(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)

	sinkA, err := explicit.Sink(Serializable)
	require.NoError(t, err)
	require.NoError(t, sinkA.Add(alice(), knows(), bob(), nil))

	sinkB, err := explicit.Sink(Serializable)
	require.NoError(t, err)
	require.NoError(t, sinkB.Add(alice(), knows(), bob(), nil))

	require.NoError(t, sinkA.Prepare())
	require.NoError(t, sinkA.Flush())
	require.NoError(t, sinkA.Close())

	err = sinkB.Prepare()
	assert.True(t, IsKind(err, ConcurrentModification), "expected ConcurrentModification, got %v", err)
	require.NoError(t, sinkB.Close())
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Persist: true, DataDir: filepath.Join(dir, "data"), SyncDelayMs: 0}

	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Open())

	explicit, err := s.Explicit()
	require.NoError(t, err)
	addAliceKnowsBob(t, explicit)

	sink, err := explicit.Sink(Serializable)
	require.NoError(t, err)
	require.NoError(t, sink.Add(alice(), name(), rdf.NewLiteral("Alice"), nil))
	require.NoError(t, sink.Prepare())
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())

	require.NoError(t, s.Close())

	s2, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s2.Open())
	defer s2.Close()

	explicit2, err := s2.Explicit()
	require.NoError(t, err)
	ds, err := explicit2.Dataset(SnapshotRead)
	require.NoError(t, err)
	defer ds.Close()

	results, err := ds.Scan(Pattern{Subject: alice(), CtxAny: true})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestCursor_CloseBeforeExhaustionReleasesLock(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)
	addAliceKnowsBob(t, explicit)

	ds, err := explicit.Dataset(SnapshotRead)
	require.NoError(t, err)
	defer ds.Close()

	cur, err := ds.Cursor(context.Background(), Pattern{CtxAny: true})
	require.NoError(t, err)
	cur.Close()
	cur.Close() // idempotent

	sink, err := explicit.Sink(NONE)
	require.NoError(t, err)
	require.NoError(t, sink.Add(bob(), knows(), alice(), nil))
	require.NoError(t, sink.Prepare())
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())
}

func TestCompact_ReclaimsDeadRecordsBelowMinLive(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)
	addAliceKnowsBob(t, explicit)

	sink, err := explicit.Sink(Serializable)
	require.NoError(t, err)
	require.NoError(t, sink.Remove(alice(), knows(), bob(), nil))
	require.NoError(t, sink.Prepare())
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())

	require.NoError(t, s.Compact())

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ExplicitLive)
}

func TestConn_ImplicitAutoCommitReadOutsideTransaction(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)
	addAliceKnowsBob(t, explicit)

	conn, err := NewConn(s, explicit, SnapshotRead)
	require.NoError(t, err)
	defer conn.Close()

	results, err := conn.Read(Pattern{Subject: alice(), CtxAny: true})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestConn_ReadInsideTransactionSeesOwnPendingAdd(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)

	conn, err := NewConn(s, explicit, Serializable)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Begin(Serializable))
	require.NoError(t, conn.Add(alice(), knows(), bob(), nil))

	results, err := conn.Read(Pattern{Subject: alice(), CtxAny: true})
	require.NoError(t, err)
	require.Len(t, results, 1, "a writer's own uncommitted add must be visible to its own subsequent reads")
	assert.Equal(t, bob(), results[0].Object)

	require.NoError(t, conn.Rollback())

	results, err = conn.Read(Pattern{Subject: alice(), CtxAny: true})
	require.NoError(t, err)
	assert.Len(t, results, 0, "a rolled-back add must never have become visible to other readers")
}

func TestConn_ReadInsideTransactionHidesOwnPendingRemove(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)
	addAliceKnowsBob(t, explicit)

	conn, err := NewConn(s, explicit, Serializable)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Begin(Serializable))
	require.NoError(t, conn.Remove(alice(), knows(), bob(), nil))

	results, err := conn.Read(Pattern{Subject: alice(), CtxAny: true})
	require.NoError(t, err)
	assert.Len(t, results, 0, "a writer's own uncommitted remove must hide the statement from its own reads")

	require.NoError(t, conn.Rollback())
}

func TestConn_ReadInsideTransactionDoesNotSeeOtherConnectionsPendingWrites(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)

	writer, err := NewConn(s, explicit, Serializable)
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.Begin(Serializable))
	require.NoError(t, writer.Add(alice(), knows(), bob(), nil))

	reader, err := NewConn(s, explicit, Serializable)
	require.NoError(t, err)
	defer reader.Close()
	require.NoError(t, reader.Begin(Serializable))

	results, err := reader.Read(Pattern{Subject: alice(), CtxAny: true})
	require.NoError(t, err)
	assert.Len(t, results, 0, "one connection's uncommitted writes must not leak into another connection's reads")

	require.NoError(t, reader.Rollback())
	require.NoError(t, writer.Rollback())
}

func TestSink_AddThenRemoveInSameTransactionCollapsesToNoOp(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)

	sink, err := explicit.Sink(Serializable)
	require.NoError(t, err)
	require.NoError(t, sink.Add(alice(), knows(), bob(), nil))
	require.NoError(t, sink.Remove(alice(), knows(), bob(), nil))
	require.NoError(t, sink.Prepare())
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())

	ds, err := explicit.Dataset(SnapshotRead)
	require.NoError(t, err)
	defer ds.Close()
	results, err := ds.Scan(Pattern{Subject: alice(), CtxAny: true})
	require.NoError(t, err)
	assert.Len(t, results, 0, "add immediately undone by remove in the same sink must never become live")
}

func TestSink_RemoveThenAddOfExistingStatementLeavesItLive(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)
	addAliceKnowsBob(t, explicit)

	sink, err := explicit.Sink(Serializable)
	require.NoError(t, err)
	require.NoError(t, sink.Remove(alice(), knows(), bob(), nil))
	require.NoError(t, sink.Add(alice(), knows(), bob(), nil))
	require.NoError(t, sink.Prepare())
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())

	ds, err := explicit.Dataset(SnapshotRead)
	require.NoError(t, err)
	defer ds.Close()
	results, err := ds.Scan(Pattern{Subject: alice(), CtxAny: true})
	require.NoError(t, err)
	assert.Len(t, results, 1, "a pre-existing statement removed then re-added in the same sink must remain live")
}

func TestConn_FullCommitLifecycle(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)

	conn, err := NewConn(s, explicit, Serializable)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Begin(Serializable))
	require.NoError(t, conn.Add(alice(), knows(), bob(), nil))
	require.NoError(t, conn.Prepare(context.Background()))
	require.NoError(t, conn.Commit())

	results, err := conn.Read(Pattern{Subject: alice(), CtxAny: true})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestScan_UninternedTermIsPossibleFalseReturnsEmpty(t *testing.T) {
	s := openMemoryStore(t)
	explicit, err := s.Explicit()
	require.NoError(t, err)
	addAliceKnowsBob(t, explicit)

	ds, err := explicit.Dataset(SnapshotRead)
	require.NoError(t, err)
	defer ds.Close()

	ghost := rdf.NewIRI("https://example.org/", "ghost")
	results, err := ds.Scan(Pattern{Subject: ghost, CtxAny: true})
	require.NoError(t, err)
	assert.Len(t, results, 0)
}

func TestConfig_RejectsBothRemoteAndLocalContext(t *testing.T) {
	_, err := New(Config{RemoteContext: "r", LocalContext: "l"})
	assert.True(t, IsKind(err, InvalidConfig))
}

func TestConfig_RejectsPersistWithoutDataDir(t *testing.T) {
	_, err := New(Config{Persist: true})
	assert.True(t, IsKind(err, InvalidConfig))
}

func TestOpen_SecondOpenFailsAlreadyInitialised(t *testing.T) {
	s := openMemoryStore(t)
	err := s.Open()
	assert.True(t, IsKind(err, AlreadyInitialised))
}

func TestDataset_UnsupportedIsolationLevelRejected(t *testing.T) {
	s, err := New(Config{SupportedIsolationLevels: []IsolationLevel{NONE}})
	require.NoError(t, err)
	require.NoError(t, s.Open())
	defer s.Close()

	explicit, err := s.Explicit()
	require.NoError(t, err)
	_, err = explicit.Dataset(Serializable)
	assert.True(t, IsKind(err, InvalidState))
}
