package db

import (
	"testing"
	"time"

	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/merge"
	"github.com/nickyhof/orpheusplus/ps"
	"github.com/nickyhof/orpheusplus/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var employeeColumns = []core.Column{
	{Name: "employee_id", Type: core.IntType},
	{Name: "name", Type: core.StringType},
	{Name: "age", Type: core.IntType},
}

var (
	ann   = []string{"1", "ann", "30"}
	bob   = []string{"2", "bob", "25"}
	cat   = []string{"3", "cat", "35"}
	dan   = []string{"4", "dan", "41"}
	eve   = []string{"5", "eve", "29"}
	frank = []string{"6", "frank", "52"}
)

type testEnv struct {
	store       *store.Engine
	persistence *ps.Persistence
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	engine, err := store.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	persistence, err := ps.NewMemoryPersistence()
	require.NoError(t, err)
	return testEnv{store: engine, persistence: persistence}
}

func (env testEnv) engine(user string) *Engine {
	return NewEngine(env.persistence, env.store, core.Identity{Name: user, Email: user + "@example.com"}, "company")
}

func initEmployee(t *testing.T, engine *Engine) *Table {
	t.Helper()
	table, err := engine.Init("employee", employeeColumns)
	require.NoError(t, err)
	return table
}

func rowsOf(t *testing.T, table *Table) [][]string {
	t.Helper()
	rows, err := table.Rows("")
	require.NoError(t, err)
	return FormatRows(rows.Data)
}

func commitRows(t *testing.T, table *Table, message string, rows ...[]string) core.VersionID {
	t.Helper()
	_, err := table.Insert(rows)
	require.NoError(t, err)
	v, err := table.Commit(message, time.Time{})
	require.NoError(t, err)
	return v
}

func TestCommitAndCheckout(t *testing.T) {
	env := newTestEnv(t)
	table := initEmployee(t, env.engine("alice"))
	assert.Equal(t, core.RootVersion, table.Head())

	rids, err := table.Insert([][]string{ann, bob, cat})
	require.NoError(t, err)
	assert.Equal(t, core.RowRange{Start: 1, Count: 3}, rids)
	v1, err := table.Commit("first three", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, core.VersionID(1), v1)

	v2 := commitRows(t, table, "three more", dan, eve, frank)
	assert.Equal(t, core.VersionID(2), v2)

	n, err := table.Delete([][]string{ann, bob, cat})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	v3, err := table.Commit("drop the first three", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, core.VersionID(3), v3)
	assert.Equal(t, [][]string{dan, eve, frank}, rowsOf(t, table))

	for version, count := range map[core.VersionID]int64{1: 3, 2: 6, 3: 3} {
		v, ok := table.Graph().Version(version)
		require.True(t, ok)
		assert.Equal(t, count, v.RowCount, "version %d", version)
	}

	require.NoError(t, table.Checkout(1))
	assert.Equal(t, core.VersionID(1), table.Head())
	assert.Equal(t, [][]string{ann, bob, cat}, rowsOf(t, table))

	require.NoError(t, table.Checkout(2))
	assert.Equal(t, [][]string{ann, bob, cat, dan, eve, frank}, rowsOf(t, table))

	require.NoError(t, table.Checkout(core.RootVersion))
	assert.Empty(t, rowsOf(t, table))

	err = table.Checkout(99)
	assert.True(t, core.ErrVersionNotFound.Is(err))
}

func TestCommitWithoutChanges(t *testing.T) {
	env := newTestEnv(t)
	table := initEmployee(t, env.engine("alice"))

	_, err := table.Commit("nothing", time.Time{})
	assert.True(t, IsNoChanges(err))

	commitRows(t, table, "one", ann)
	_, err = table.Insert([][]string{bob})
	require.NoError(t, err)
	_, err = table.Delete([][]string{bob})
	require.NoError(t, err)

	_, err = table.Commit("insert then delete", time.Time{})
	assert.True(t, IsNoChanges(err))
	assert.Equal(t, core.VersionID(1), table.Head())
	assert.Empty(t, table.ledger.Staged)

	reopened, err := LoadTable(env.store, env.persistence, table.identity, "company", "employee")
	require.NoError(t, err)
	assert.Empty(t, reopened.ledger.Staged)
}

func TestCheckoutWithStagedChanges(t *testing.T) {
	env := newTestEnv(t)
	table := initEmployee(t, env.engine("alice"))
	commitRows(t, table, "first", ann, bob)

	_, err := table.Insert([][]string{cat})
	require.NoError(t, err)
	added, _ := table.Staged()
	assert.Equal(t, []core.RowID{3}, added)

	err = table.Checkout(core.RootVersion)
	assert.True(t, core.ErrUncommittedChanges.Is(err))

	require.NoError(t, table.Checkout(1))
	added, removed := table.Staged()
	assert.Empty(t, added)
	assert.Empty(t, removed)
	assert.Equal(t, [][]string{ann, bob}, rowsOf(t, table))

	reopened, err := LoadTable(env.store, env.persistence, table.identity, "company", "employee")
	require.NoError(t, err)
	added, _ = reopened.Staged()
	assert.Empty(t, added)
}

func TestUpdate(t *testing.T) {
	env := newTestEnv(t)
	table := initEmployee(t, env.engine("alice"))
	commitRows(t, table, "first", ann, bob, cat)

	n, err := table.Update([][]string{bob}, [][]string{{"2", "bob", "26"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	added, removed := table.Staged()
	assert.Equal(t, []core.RowID{4}, added)
	assert.Equal(t, []core.RowID{2}, removed)
	assert.Equal(t, [][]string{ann, cat, {"2", "bob", "26"}}, rowsOf(t, table))

	_, err = table.Update([][]string{{"9", "nobody", "1"}}, [][]string{ann})
	assert.Error(t, err)

	_, err = table.Update([][]string{ann}, nil)
	assert.Error(t, err)

	v, err := table.Commit("birthday", time.Time{})
	require.NoError(t, err)
	version, _ := table.Graph().Version(v)
	assert.Equal(t, int64(3), version.RowCount)
	assert.Equal(t, int64(2), version.Overlap)
}

func TestNewUserStartsAtLatestVersion(t *testing.T) {
	env := newTestEnv(t)
	alice := initEmployee(t, env.engine("alice"))
	commitRows(t, alice, "first", ann, bob)
	commitRows(t, alice, "second", cat)

	bobTable, err := env.engine("bob").Table("employee")
	require.NoError(t, err)
	assert.Equal(t, core.VersionID(2), bobTable.Head())
	assert.Equal(t, [][]string{ann, bob, cat}, rowsOf(t, bobTable))

	rids, err := bobTable.Insert([][]string{dan})
	require.NoError(t, err)
	assert.Equal(t, core.RowID(4), rids.Start)

	rids, err = alice.Insert([][]string{eve})
	require.NoError(t, err)
	assert.Equal(t, core.RowID(5), rids.Start)
}

func TestDeletedRowIDIsNotReused(t *testing.T) {
	env := newTestEnv(t)
	alice := initEmployee(t, env.engine("alice"))
	commitRows(t, alice, "first", ann)

	bobTable, err := env.engine("bob").Table("employee")
	require.NoError(t, err)

	rids, err := alice.Insert([][]string{bob})
	require.NoError(t, err)
	assert.Equal(t, core.RowID(2), rids.Start)
	_, err = alice.Delete([][]string{bob})
	require.NoError(t, err)

	reopened, err := LoadTable(env.store, env.persistence, alice.identity, "company", "employee")
	require.NoError(t, err)
	assert.Equal(t, core.RowID(2), reopened.Graph().MaxRowID())

	rids, err = alice.Insert([][]string{cat})
	require.NoError(t, err)
	assert.Equal(t, core.RowID(3), rids.Start)
	v2, err := alice.Commit("cat joins", time.Time{})
	require.NoError(t, err)

	rids, err = bobTable.Insert([][]string{dan})
	require.NoError(t, err)
	assert.Equal(t, core.RowID(4), rids.Start)
	v3, err := bobTable.Commit("dan joins", time.Time{})
	require.NoError(t, err)

	result, err := alice.Merge(v3, nil)
	require.NoError(t, err)
	require.Nil(t, result.Report)
	assert.ElementsMatch(t, [][]string{ann, cat, dan}, rowsOf(t, alice))

	members, err := alice.Graph().Members(v2)
	require.NoError(t, err)
	assert.True(t, members.Contains(3))
}

func TestMergeAfterMergedUpdate(t *testing.T) {
	env := newTestEnv(t)
	alice := initEmployee(t, env.engine("alice"))
	commitRows(t, alice, "first", ann, bob)

	bobTable, err := env.engine("bob").Table("employee")
	require.NoError(t, err)
	carolTable, err := env.engine("carol").Table("employee")
	require.NoError(t, err)

	older := []string{"1", "ann", "31"}
	oldest := []string{"1", "ann", "32"}

	_, err = bobTable.Update([][]string{ann}, [][]string{older})
	require.NoError(t, err)
	v2, err := bobTable.Commit("ann ages", time.Time{})
	require.NoError(t, err)

	result, err := alice.Merge(v2, nil)
	require.NoError(t, err)
	require.Nil(t, result.Report)
	assert.ElementsMatch(t, [][]string{bob, older}, rowsOf(t, alice))

	_, err = carolTable.Update([][]string{ann}, [][]string{oldest})
	require.NoError(t, err)
	v4, err := carolTable.Commit("ann ages twice", time.Time{})
	require.NoError(t, err)

	result, err = alice.Merge(v4, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Report)
	require.Len(t, result.Report.Conflicts, 1)
	conflict := result.Report.Conflicts[0]
	assert.Equal(t, core.RowID(1), conflict.RowID)
	assert.Equal(t, older, FormatRows([][]any{conflict.HeadRow})[0])
	assert.Equal(t, oldest, FormatRows([][]any{conflict.OtherRow})[0])

	result, err = alice.Merge(v4, merge.Resolution{1: merge.Other})
	require.NoError(t, err)
	require.Nil(t, result.Report)
	assert.Equal(t, 2, result.Rows)
	assert.ElementsMatch(t, [][]string{bob, oldest}, rowsOf(t, alice))
}

// conflictingBranches builds version 2 by bob updating bob's age and
// version 3 by alice deleting bob, both children of version 1.
func conflictingBranches(t *testing.T) (*Table, *Table) {
	t.Helper()
	env := newTestEnv(t)
	alice := initEmployee(t, env.engine("alice"))
	commitRows(t, alice, "first", ann, bob, cat)

	bobTable, err := env.engine("bob").Table("employee")
	require.NoError(t, err)
	_, err = bobTable.Update([][]string{bob}, [][]string{{"2", "bob", "26"}})
	require.NoError(t, err)
	v2, err := bobTable.Commit("bob ages", time.Time{})
	require.NoError(t, err)
	require.Equal(t, core.VersionID(2), v2)

	_, err = alice.Delete([][]string{bob})
	require.NoError(t, err)
	v3, err := alice.Commit("bob leaves", time.Time{})
	require.NoError(t, err)
	require.Equal(t, core.VersionID(3), v3)
	return alice, bobTable
}

func TestMergeReportsConflicts(t *testing.T) {
	alice, _ := conflictingBranches(t)

	result, err := alice.Merge(2, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Report)
	assert.Equal(t, core.VersionID(1), result.Base)
	require.Len(t, result.Report.Conflicts, 1)

	conflict := result.Report.Conflicts[0]
	assert.Equal(t, core.RowID(2), conflict.RowID)
	assert.Nil(t, conflict.HeadRow)
	assert.Equal(t, []string{"2", "bob", "26"}, FormatRows([][]any{conflict.OtherRow})[0])
	assert.Equal(t, merge.Head, conflict.Keep)

	assert.Equal(t, core.VersionID(3), alice.Head())
	assert.Equal(t, [][]string{ann, cat}, rowsOf(t, alice))
	assert.Equal(t, core.VersionID(3), alice.Graph().Latest())
}

func TestMergeWithResolution(t *testing.T) {
	tests := []struct {
		name     string
		keep     merge.Side
		expected [][]string
	}{
		{"keep head", merge.Head, [][]string{ann, cat}},
		{"keep other", merge.Other, [][]string{ann, cat, {"2", "bob", "26"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alice, _ := conflictingBranches(t)

			result, err := alice.Merge(2, merge.Resolution{2: tt.keep})
			require.NoError(t, err)
			assert.Nil(t, result.Report)
			assert.Equal(t, core.VersionID(4), result.Version)
			assert.Equal(t, core.VersionID(4), alice.Head())
			assert.Equal(t, tt.expected, rowsOf(t, alice))

			members, err := alice.Graph().Members(4)
			require.NoError(t, err)
			assert.Equal(t, uint64(len(tt.expected)), members.GetCardinality())

			again, err := alice.Merge(2, nil)
			require.NoError(t, err)
			assert.True(t, again.NoOp)
			assert.Equal(t, core.VersionID(4), again.Version)
		})
	}
}

func TestMergeRequiresCleanWorkspace(t *testing.T) {
	alice, _ := conflictingBranches(t)
	_, err := alice.Insert([][]string{dan})
	require.NoError(t, err)

	_, err = alice.Merge(2, nil)
	assert.True(t, core.ErrUncommittedChanges.Is(err))
}

func TestMergeWithoutConflicts(t *testing.T) {
	env := newTestEnv(t)
	alice := initEmployee(t, env.engine("alice"))
	commitRows(t, alice, "first", ann)

	bobTable, err := env.engine("bob").Table("employee")
	require.NoError(t, err)
	commitRows(t, bobTable, "bob hires", bob)
	commitRows(t, alice, "alice hires", cat)

	result, err := alice.Merge(2, nil)
	require.NoError(t, err)
	assert.Equal(t, core.VersionID(4), result.Version)
	assert.Equal(t, 3, result.Rows)
	assert.ElementsMatch(t, [][]string{ann, bob, cat}, rowsOf(t, alice))
}

func TestDiff(t *testing.T) {
	env := newTestEnv(t)
	table := initEmployee(t, env.engine("alice"))
	commitRows(t, table, "first", ann, bob)
	_, err := table.Delete([][]string{ann})
	require.NoError(t, err)
	commitRows(t, table, "second", cat)

	diff, err := table.Diff(1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"employee_id", "name", "age"}, diff.Columns)
	assert.Equal(t, [][]string{ann}, FormatRows(diff.OnlyInFrom))
	assert.Equal(t, [][]string{cat}, FormatRows(diff.OnlyInTo))

	_, err = table.Diff(1, 7)
	assert.Error(t, err)
}

func TestLog(t *testing.T) {
	env := newTestEnv(t)
	table := initEmployee(t, env.engine("alice"))

	entries, err := table.Log()
	require.NoError(t, err)
	assert.Empty(t, entries)

	first := time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)
	_, err = table.Insert([][]string{ann})
	require.NoError(t, err)
	_, err = table.Commit("first", first)
	require.NoError(t, err)
	commitRows(t, table, "second", bob)

	entries, err = table.Log()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, core.VersionID(2), entries[0].Version)
	assert.Equal(t, "second", entries[0].Message)
	assert.Equal(t, core.VersionID(1), entries[1].Version)
	assert.Equal(t, "alice <alice@example.com>", entries[1].Author)
	assert.True(t, first.Equal(entries[1].Date))
}

func TestDumpAndRemove(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine("alice")
	table := initEmployee(t, engine)
	commitRows(t, table, "first", ann, bob)

	require.NoError(t, table.Dump("employee_copy"))
	n, err := env.store.Count("employee_copy")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = env.engine("bob").Table("employee")
	require.NoError(t, err)

	require.NoError(t, engine.Remove("employee", true))
	for _, physical := range []string{
		core.HistoryTable("employee"),
		core.MembershipTable("employee"),
		core.HeadTable("employee", "alice"),
		core.HeadTable("employee", "bob"),
	} {
		exists, err := env.store.TableExists(physical)
		require.NoError(t, err)
		assert.False(t, exists, physical)
	}
	n, err = env.store.Count("employee")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = engine.Table("employee")
	assert.True(t, core.ErrTableNotFound.Is(err))
}

func TestInitTwice(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine("alice")
	initEmployee(t, engine)

	_, err := engine.Init("employee", employeeColumns)
	assert.True(t, core.ErrTableExists.Is(err))
}
