package stmtindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triplecore/triplecore/internal/stmtlist"
	"github.com/triplecore/triplecore/internal/term"
)

func setup(t *testing.T) (*term.Store, *stmtlist.List, *Index, term.ID, term.ID, term.ID) {
	t.Helper()
	ts := term.NewStore()
	s, err := ts.InternIRI("https://example.org/", "alice")
	require.NoError(t, err)
	p, err := ts.InternIRI("https://example.org/", "knows")
	require.NoError(t, err)
	o, err := ts.InternIRI("https://example.org/", "bob")
	require.NoError(t, err)
	return ts, stmtlist.NewList(), New(ts), s, p, o
}

func TestLinkAndFindLive(t *testing.T) {
	_, list, ix, s, p, o := setup(t)
	idx := list.Append(stmtlist.Record{Subject: s, Predicate: p, Object: o, AddedAt: 1, Explicit: true, Tag: stmtlist.TxCommitted})
	rec := list.Get(idx)
	ix.Link(idx, &rec)

	found, ok := ix.FindLive(list, s, p, o, 0, true)
	require.True(t, ok)
	assert.Equal(t, idx, found)

	_, ok = ix.FindLive(list, s, p, o, 0, false) // different explicit flag: distinct key
	assert.False(t, ok)
}

func TestScan_UnconstrainedReturnsGlobal(t *testing.T) {
	_, list, ix, s, p, o := setup(t)
	idx := list.Append(stmtlist.Record{Subject: s, Predicate: p, Object: o, AddedAt: 1, Tag: stmtlist.TxCommitted})
	rec := list.Get(idx)
	ix.Link(idx, &rec)

	results := ix.Scan(Pattern{CtxAny: true})
	assert.Contains(t, results, idx)
}

func TestScan_BoundSubjectNarrows(t *testing.T) {
	ts, list, ix, s, p, o := setup(t)
	other, _ := ts.InternIRI("https://example.org/", "carol")

	idx1 := list.Append(stmtlist.Record{Subject: s, Predicate: p, Object: o, AddedAt: 1, Tag: stmtlist.TxCommitted})
	rec1 := list.Get(idx1)
	ix.Link(idx1, &rec1)

	idx2 := list.Append(stmtlist.Record{Subject: other, Predicate: p, Object: o, AddedAt: 1, Tag: stmtlist.TxCommitted})
	rec2 := list.Get(idx2)
	ix.Link(idx2, &rec2)

	results := ix.Scan(Pattern{Subject: s, CtxAny: true})
	assert.Equal(t, []stmtlist.Index{idx1}, results)
}

func TestRebuild_RestoresScans(t *testing.T) {
	_, list, ix, s, p, o := setup(t)
	idx := list.Append(stmtlist.Record{Subject: s, Predicate: p, Object: o, AddedAt: 1, Tag: stmtlist.TxCommitted})
	rec := list.Get(idx)
	ix.Link(idx, &rec)

	ix.Rebuild(list)

	results := ix.Scan(Pattern{Subject: s, CtxAny: true})
	assert.Contains(t, results, idx)
}
