package store

import (
	"testing"

	"github.com/nickyhof/orpheusplus/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var employee = core.Table{
	Database: "company",
	Name:     "employee",
	Columns: []core.Column{
		{Name: "employee_id", Type: core.IntType},
		{Name: "name", Type: core.StringType},
	},
}

var columns = []string{core.RowIDColumn, "employee_id", "name"}

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func createWithRows(t *testing.T, engine *Engine, physical string, mode RowIDMode, rows ...[]any) {
	t.Helper()
	require.NoError(t, engine.CreateTable(physical, employee, mode))
	require.NoError(t, engine.InsertRows(physical, columns, rows))
}

func TestParseDialect(t *testing.T) {
	for driver, expected := range map[string]Dialect{"": DuckDB, "duckdb": DuckDB, "MySQL": MySQL} {
		dialect, err := ParseDialect(driver)
		require.NoError(t, err)
		assert.Equal(t, expected, dialect)
	}
	_, err := ParseDialect("sqlite")
	assert.Error(t, err)
}

func TestQuote(t *testing.T) {
	duck := &Engine{dialect: DuckDB}
	assert.Equal(t, `"employee"`, duck.Quote("employee"))
	assert.Equal(t, `"company"."employee"`, duck.Quote("company.employee"))
	assert.Equal(t, `"we""ird"`, duck.Quote(`we"ird`))

	my := &Engine{dialect: MySQL}
	assert.Equal(t, "`employee`", my.Quote("employee"))
	assert.Equal(t, "DATETIME", my.columnType(core.TimestampType))
	assert.Equal(t, "VARCHAR(255)", my.columnType(core.StringType))
	assert.Equal(t, "VARCHAR", duck.columnType(core.StringType))
}

func TestCreateAndDropTable(t *testing.T) {
	engine := openTestEngine(t)

	require.NoError(t, engine.CreateTable("employee_orpheusplus", employee, KeyedRowID))
	exists, err := engine.TableExists("employee_orpheusplus")
	require.NoError(t, err)
	assert.True(t, exists)

	err = engine.CreateTable("employee_orpheusplus", employee, KeyedRowID)
	assert.True(t, core.ErrTableExists.Is(err))

	require.NoError(t, engine.RenameTable("employee_orpheusplus", "renamed"))
	tables, err := engine.Tables()
	require.NoError(t, err)
	assert.Contains(t, tables, "renamed")

	require.NoError(t, engine.DropTable("renamed"))
	require.NoError(t, engine.DropTable("renamed"))
	exists, err = engine.TableExists("renamed")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = engine.Count("renamed")
	assert.True(t, core.ErrTableNotFound.Is(err))
}

func TestRows(t *testing.T) {
	engine := openTestEngine(t)
	createWithRows(t, engine, "history", KeyedRowID,
		[]any{int64(1), int64(10), "ann"},
		[]any{int64(2), int64(20), "bob"},
		[]any{int64(3), int64(30), "cat"},
	)
	require.NoError(t, engine.CreateTable("head", employee, WithRowID))

	require.NoError(t, engine.CopyRows("history", "head", []core.RowID{1, 3}))
	require.NoError(t, engine.CopyRows("history", "head", []core.RowID{1, 3}))
	n, err := engine.Count("head")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := engine.SelectRows("head", "")
	require.NoError(t, err)
	assert.Equal(t, columns, rows.Columns)
	assert.Equal(t, [][]any{{int64(1), int64(10), "ann"}, {int64(3), int64(30), "cat"}}, rows.Data)

	rids, err := engine.RowIDs("history", `"name" <> 'bob'`)
	require.NoError(t, err)
	assert.Equal(t, []core.RowID{1, 3}, rids)

	fetched, err := engine.FetchRows("history", []core.RowID{2, 3, 9})
	require.NoError(t, err)
	assert.Equal(t, map[core.RowID][]any{2: {int64(20), "bob"}, 3: {int64(30), "cat"}}, fetched)

	require.NoError(t, engine.DeleteRows("head", []core.RowID{1}))
	rids, err = engine.RowIDs("head", "")
	require.NoError(t, err)
	assert.Equal(t, []core.RowID{3}, rids)

	highest, err := engine.MaxRowID("history", "head", "missing")
	require.NoError(t, err)
	assert.Equal(t, core.RowID(3), highest)

	require.NoError(t, engine.CreateTable("plain", employee, NoRowID))
	require.NoError(t, engine.CopyTable("history", "plain", employee.ColumnNames(), false))
	result, err := engine.Query(`SELECT "name" FROM "plain" ORDER BY "employee_id"`)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"ann"}, {"bob"}, {"cat"}}, result.Data)
}

func TestInsertRowsInBatches(t *testing.T) {
	engine := openTestEngine(t)
	require.NoError(t, engine.CreateTable("head", employee, WithRowID))

	rows := make([][]any, batchSize*2+7)
	rids := make([]core.RowID, len(rows))
	for i := range rows {
		rows[i] = []any{int64(i + 1), int64(i), "x"}
		rids[i] = core.RowID(i + 1)
	}
	require.NoError(t, engine.InsertRows("head", columns, rows))
	n, err := engine.Count("head")
	require.NoError(t, err)
	assert.Equal(t, int64(len(rows)), n)

	require.NoError(t, engine.DeleteRows("head", rids[:batchSize+1]))
	n, err = engine.Count("head")
	require.NoError(t, err)
	assert.Equal(t, int64(batchSize+6), n)

	err = engine.InsertRows("head", columns, [][]any{{int64(1)}})
	assert.Error(t, err)
}

func TestTxRollsBack(t *testing.T) {
	engine := openTestEngine(t)
	require.NoError(t, engine.CreateTable("head", employee, WithRowID))

	err := engine.Tx(func(tx *Engine) error {
		if err := tx.InsertRows("head", columns, [][]any{{int64(1), int64(1), "ann"}}); err != nil {
			return err
		}
		return tx.DeleteRows("missing", []core.RowID{1})
	})
	assert.True(t, core.ErrTableNotFound.Is(err))

	n, err := engine.Count("head")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMembershipAndReplaceWithVersion(t *testing.T) {
	engine := openTestEngine(t)
	createWithRows(t, engine, core.HistoryTable("employee"), KeyedRowID,
		[]any{int64(1), int64(10), "ann"},
		[]any{int64(2), int64(20), "bob"},
		[]any{int64(3), int64(30), "cat"},
	)
	require.NoError(t, engine.CreateMembership(core.MembershipTable("employee")))
	head := core.HeadTable("employee", "alice")
	createWithRows(t, engine, head, WithRowID, []any{int64(7), int64(70), "zed"})

	members := engine.Membership("employee")
	bm, err := members.Members(1)
	require.NoError(t, err)
	assert.True(t, bm.IsEmpty())

	bm.AddMany([]uint64{1, 3})
	require.NoError(t, members.Append(1, bm))
	bm.Add(2)
	require.NoError(t, members.Append(2, bm))

	got, err := members.Members(1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, got.ToArray())

	require.NoError(t, engine.ReplaceWithVersion(head, "employee", 2))
	rids, err := engine.RowIDs(head, "")
	require.NoError(t, err)
	assert.Equal(t, []core.RowID{1, 2, 3}, rids)

	require.NoError(t, engine.ReplaceWithVersion(head, "employee", 1))
	rids, err = engine.RowIDs(head, "")
	require.NoError(t, err)
	assert.Equal(t, []core.RowID{1, 3}, rids)

	require.NoError(t, members.Drop())
	exists, err := engine.TableExists(core.MembershipTable("employee"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRowIDOf(t *testing.T) {
	for _, v := range []any{int64(4), int32(4), uint64(4), "4"} {
		rid, err := RowIDOf(v)
		require.NoError(t, err)
		assert.Equal(t, core.RowID(4), rid)
	}
	_, err := RowIDOf(4.5)
	assert.Error(t, err)
	_, err = RowIDOf("x")
	assert.Error(t, err)
}
