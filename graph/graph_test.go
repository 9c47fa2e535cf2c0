package graph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/op"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T) (*Graph, *op.Ledger) {
	t.Helper()
	g, err := Init("company", "employee", NewMemoryMembership())
	require.NoError(t, err)
	require.NoError(t, g.SetHead("alice", core.RootVersion))

	ledger := op.New("company", "employee", "alice", core.RootVersion)
	require.NoError(t, ledger.Seed(nil))
	return g, ledger
}

func commit(t *testing.T, g *Graph, ledger *op.Ledger, stage func(l *op.Ledger)) Version {
	t.Helper()
	stage(ledger)
	ledger.Resolve()
	v, err := g.AddVersion(ledger, CommitInfo{Message: "m", Author: ledger.User, Timestamp: time.Now()})
	require.NoError(t, err)
	return v
}

func TestInit(t *testing.T) {
	g, _ := newTestGraph(t)

	root, ok := g.Version(core.RootVersion)
	require.True(t, ok)
	assert.Equal(t, int64(0), root.RowCount)
	assert.Nil(t, root.Parent)
	assert.Equal(t, core.RootVersion, g.Latest())

	rids, err := g.Switch(core.RootVersion)
	require.NoError(t, err)
	assert.Empty(t, rids)
}

func TestAddVersionScenario(t *testing.T) {
	g, ledger := newTestGraph(t)

	v1 := commit(t, g, ledger, func(l *op.Ledger) {
		l.StageInsert(core.RowRange{Start: 1, Count: 3})
	})
	assert.Equal(t, core.VersionID(1), v1.ID)
	assert.Equal(t, int64(3), v1.RowCount)
	assert.Equal(t, int64(0), v1.Overlap)

	v2 := commit(t, g, ledger, func(l *op.Ledger) {
		l.StageInsert(core.RowRange{Start: 4, Count: 3})
	})
	assert.Equal(t, int64(6), v2.RowCount)
	assert.Equal(t, int64(3), v2.Overlap)

	v3 := commit(t, g, ledger, func(l *op.Ledger) {
		l.StageDelete([]core.RowID{1, 2, 3})
	})
	assert.Equal(t, int64(3), v3.RowCount)
	assert.Equal(t, int64(3), v3.Overlap)

	rids, err := g.Switch(1)
	require.NoError(t, err)
	assert.Equal(t, []core.RowID{1, 2, 3}, rids)

	rids, err = g.Switch(2)
	require.NoError(t, err)
	assert.Equal(t, []core.RowID{1, 2, 3, 4, 5, 6}, rids)

	rids, err = g.Switch(3)
	require.NoError(t, err)
	assert.Equal(t, []core.RowID{4, 5, 6}, rids)

	assert.Equal(t, core.VersionID(3), ledger.Head)
	assert.Equal(t, core.VersionID(3), g.Head("alice"))
}

func TestMembershipRecurrence(t *testing.T) {
	g, ledger := newTestGraph(t)

	steps := []func(l *op.Ledger){
		func(l *op.Ledger) { l.StageInsert(core.RowRange{Start: 1, Count: 5}) },
		func(l *op.Ledger) {
			l.StageDelete([]core.RowID{2, 4})
			l.StageInsert(core.RowRange{Start: 6, Count: 2})
		},
		func(l *op.Ledger) {
			l.StageDelete([]core.RowID{1})
			l.StageInsert(core.RowRange{Start: 8, Count: 1})
			require.NoError(t, l.StageUpdate([][]core.RowID{{1}}, core.RowRange{Start: 8, Count: 1}))
		},
	}

	for _, step := range steps {
		oldHead := g.Head("alice")
		step(ledger)
		added, removed := ledger.Resolve()
		v, err := g.AddVersion(ledger, CommitInfo{Timestamp: time.Now()})
		require.NoError(t, err)

		assert.Greater(t, v.ID, oldHead)
		path, err := g.Path(oldHead, v.ID)
		require.NoError(t, err)
		assert.Equal(t, []core.VersionID{oldHead, v.ID}, path)

		parent, err := g.Members(oldHead)
		require.NoError(t, err)
		parent.AndNot(Bitmap(removed))
		parent.Or(Bitmap(added))

		got, err := g.Members(v.ID)
		require.NoError(t, err)
		assert.True(t, parent.Equals(got))
		assert.Equal(t, int64(got.GetCardinality()), v.RowCount)
	}
}

func TestSwitchUnknownVersion(t *testing.T) {
	g, _ := newTestGraph(t)
	_, err := g.Switch(42)
	assert.True(t, core.ErrVersionNotFound.Is(err))
	assert.True(t, core.ErrVersionNotFound.Is(g.SetHead("alice", 42)))
}

func TestAddVersionRejectsStaleLedger(t *testing.T) {
	g, ledger := newTestGraph(t)
	commit(t, g, ledger, func(l *op.Ledger) { l.StageInsert(core.RowRange{Start: 1, Count: 1}) })

	stale := op.New("company", "employee", "alice", core.RootVersion)
	stale.StageInsert(core.RowRange{Start: 2, Count: 1})
	stale.Resolve()
	_, err := g.AddVersion(stale, CommitInfo{})
	assert.True(t, core.ErrInvariant.Is(err))
}

// branches builds 0 - 1 - 2 - 3 and 1 - 4, then merges 3 into 5 (child of 4).
func branches(t *testing.T) *Graph {
	g, ledger := newTestGraph(t)
	commit(t, g, ledger, func(l *op.Ledger) { l.StageInsert(core.RowRange{Start: 1, Count: 3}) })
	commit(t, g, ledger, func(l *op.Ledger) { l.StageDelete([]core.RowID{1}) })
	commit(t, g, ledger, func(l *op.Ledger) { l.StageInsert(core.RowRange{Start: 4, Count: 1}) })

	require.NoError(t, g.SetHead("alice", 1))
	branch := op.New("company", "employee", "alice", 1)
	commit(t, g, branch, func(l *op.Ledger) { l.StageDelete([]core.RowID{2}) })
	commit(t, g, branch, func(l *op.Ledger) { l.StageInsert(core.RowRange{Start: 5, Count: 1}) })
	require.NoError(t, g.MergeEdge(3, 5, 1, []core.RowID{5}, []core.RowID{1}, map[core.RowID]core.RowID{1: 5}))
	return g
}

func TestLowestCommonAncestor(t *testing.T) {
	g := branches(t)

	tests := []struct {
		a, b     core.VersionID
		expected core.VersionID
	}{
		{3, 4, 1},
		{4, 3, 1},
		{2, 3, 2},
		{3, 3, 3},
		{0, 5, 0},
		{5, 3, 3},
		{5, 2, 2},
	}
	for _, tt := range tests {
		lca, err := g.LowestCommonAncestor(tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, lca, "lca(%d, %d)", tt.a, tt.b)
	}

	_, err := g.LowestCommonAncestor(1, 99)
	assert.True(t, core.ErrVersionNotFound.Is(err))
}

func TestPath(t *testing.T) {
	g := branches(t)

	path, err := g.Path(1, 5)
	require.NoError(t, err)
	assert.Equal(t, []core.VersionID{1, 4, 5}, path)

	path, err = g.Path(0, 3)
	require.NoError(t, err)
	assert.Equal(t, []core.VersionID{0, 1, 2, 3}, path)

	path, err = g.Path(3, 5)
	require.NoError(t, err)
	assert.Equal(t, []core.VersionID{3, 5}, path)

	edge, ok := g.Step(3, 5)
	require.True(t, ok)
	assert.True(t, edge.Merge)
	assert.Equal(t, []core.Run{{Start: 5, Length: 1}}, edge.Added)
	assert.Equal(t, map[core.RowID]core.RowID{1: 5}, edge.Mapping)

	edge, ok = g.Step(4, 5)
	require.True(t, ok)
	assert.False(t, edge.Merge)

	_, err = g.Path(4, 3)
	assert.True(t, core.ErrInvariant.Is(err))

	assert.True(t, g.IsAncestor(2, 5))
	assert.False(t, g.IsAncestor(4, 3))
}

func TestGraphJSON(t *testing.T) {
	g := branches(t)
	require.NoError(t, g.SetHead("bob", 2))
	g.ReserveRows(7, 0)

	data, err := json.Marshal(g)
	require.NoError(t, err)

	decoded, err := Decode(data, g.members)
	require.NoError(t, err)
	want, got := g.Versions(), decoded.Versions()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
		want[i].Timestamp, got[i].Timestamp = time.Time{}, time.Time{}
		assert.Equal(t, want[i], got[i])
	}
	assert.Equal(t, g.Edges(), decoded.Edges())
	assert.Equal(t, core.VersionID(5), decoded.Latest())
	assert.Equal(t, core.VersionID(2), decoded.Head("bob"))
	assert.Equal(t, []string{"alice", "bob"}, decoded.Users())
	assert.Equal(t, core.VersionID(5), decoded.Head("carol"))
	assert.Equal(t, core.RowID(7), decoded.MaxRowID())

	_, err = Decode([]byte(`{"nodes":[]}`), g.members)
	assert.True(t, core.ErrInvariant.Is(err))
}

func TestReserveRows(t *testing.T) {
	g, _ := newTestGraph(t)

	assert.Equal(t, core.RowRange{Start: 1, Count: 2}, g.ReserveRows(2, 0))
	assert.Equal(t, core.RowRange{Start: 3, Count: 1}, g.ReserveRows(1, 1))
	assert.Equal(t, core.RowRange{Start: 11, Count: 2}, g.ReserveRows(2, 10))
	assert.Equal(t, core.RowID(12), g.MaxRowID())

	empty := g.ReserveRows(0, 0)
	assert.Equal(t, uint64(0), empty.Count)
	assert.Equal(t, core.RowID(12), g.MaxRowID())
}
