package db

import (
	"bytes"
	"testing"

	"github.com/nickyhof/orpheusplus/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, engine *Engine, query string) Result {
	t.Helper()
	result, err := engine.Execute(query)
	require.NoError(t, err, query)
	return result
}

func setupTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine := newTestEnv(t).engine("alice")
	initEmployee(t, engine)
	return engine
}

func TestExecuteVersionedStatements(t *testing.T) {
	engine := setupTestEngine(t)

	result := execute(t, engine, "INSERT INTO VTABLE employee VALUES (1, 'ann', 30), (2, 'bob', 25)")
	assert.Equal(t, 2, result.(CommitResult).RecordsWritten)

	result = execute(t, engine, "COMMIT VTABLE employee 'first hires'")
	cr := result.(CommitResult)
	assert.Equal(t, "committed", cr.Action)
	assert.Equal(t, core.VersionID(1), cr.Version)

	result = execute(t, engine, "UPDATE VTABLE employee SET age = 26 WHERE name = 'bob'")
	assert.Equal(t, 1, result.(CommitResult).RecordsWritten)

	result = execute(t, engine, "DELETE FROM VTABLE employee WHERE employee_id = 1")
	assert.Equal(t, 1, result.(CommitResult).RecordsDeleted)

	qr := execute(t, engine, "SELECT * FROM VTABLE employee").(QueryResult)
	assert.Equal(t, []string{"employee_id", "name", "age"}, qr.Columns)
	assert.Equal(t, [][]string{{"2", "bob", "26"}}, qr.Data)

	execute(t, engine, "COMMIT VTABLE employee")

	qr = execute(t, engine, "SELECT * FROM VTABLE employee OF VERSION 1 ORDER BY employee_id").(QueryResult)
	assert.Equal(t, [][]string{ann, bob}, qr.Data)
	assert.Equal(t, 2, qr.RecordsRead)

	qr = execute(t, engine, "SELECT name FROM VTABLE employee OF VERSION 2 WHERE age > 20").(QueryResult)
	assert.Equal(t, [][]string{{"bob"}}, qr.Data)
}

func TestExecuteInsertWithColumns(t *testing.T) {
	engine := setupTestEngine(t)

	execute(t, engine, "INSERT INTO VTABLE employee (name, age, employee_id) VALUES ('cat', 35, 3)")
	qr := execute(t, engine, "SELECT * FROM VTABLE employee").(QueryResult)
	assert.Equal(t, [][]string{cat}, qr.Data)

	_, err := engine.Execute("INSERT INTO VTABLE employee (name) VALUES ('cat')")
	assert.Error(t, err)
}

func TestExecuteNullValues(t *testing.T) {
	engine := setupTestEngine(t)

	execute(t, engine, "INSERT INTO VTABLE employee VALUES (3, NULL, NULL), (4, 'dan', 41)")
	result := execute(t, engine, "UPDATE VTABLE employee SET age = NULL WHERE employee_id = 4")
	assert.Equal(t, 1, result.(CommitResult).RecordsWritten)

	qr := execute(t, engine, "SELECT * FROM VTABLE employee ORDER BY employee_id").(QueryResult)
	assert.Equal(t, [][]string{{"3", "", ""}, {"4", "dan", ""}}, qr.Data)

	qr = execute(t, engine, "SELECT employee_id FROM VTABLE employee WHERE name IS NULL").(QueryResult)
	assert.Equal(t, [][]string{{"3"}}, qr.Data)
}

func TestExecuteCommands(t *testing.T) {
	engine := setupTestEngine(t)
	execute(t, engine, "INSERT INTO VTABLE employee VALUES (1, 'ann', 30), (2, 'bob', 25)")
	execute(t, engine, "COMMIT VTABLE employee 'first'")
	execute(t, engine, "DELETE FROM VTABLE employee WHERE employee_id = 2")
	execute(t, engine, "INSERT INTO VTABLE employee VALUES (3, 'cat', 35)")
	execute(t, engine, "COMMIT VTABLE employee 'second'")

	qr := execute(t, engine, "LOG VTABLE employee").(QueryResult)
	assert.Equal(t, []string{"version", "author", "date", "message"}, qr.Columns)
	require.Len(t, qr.Data, 2)
	assert.Equal(t, "2", qr.Data[0][0])
	assert.Equal(t, "second", qr.Data[0][3])

	qr = execute(t, engine, "DIFF VTABLE employee OF VERSION 1, 2").(QueryResult)
	assert.Equal(t, [][]string{
		{"-1", "2", "bob", "25"},
		{"+2", "3", "cat", "35"},
	}, qr.Data)

	cr := execute(t, engine, "CHECKOUT VTABLE employee OF VERSION 1").(CommitResult)
	assert.Equal(t, core.VersionID(1), cr.Version)
	qr = execute(t, engine, "SELECT * FROM VTABLE employee").(QueryResult)
	assert.Equal(t, [][]string{ann, bob}, qr.Data)

	cr = execute(t, engine, "MERGE VTABLE employee OF VERSION 2").(CommitResult)
	assert.Equal(t, "merged", cr.Action)
	assert.Equal(t, core.VersionID(3), cr.Version)
	qr = execute(t, engine, "SELECT * FROM VTABLE employee").(QueryResult)
	assert.Equal(t, [][]string{ann, cat}, qr.Data)

	cr = execute(t, engine, "MERGE VTABLE employee OF VERSION 1").(CommitResult)
	assert.Equal(t, "already merged", cr.Action)

	_, err := engine.Execute("COMMIT VTABLE employee")
	assert.True(t, IsNoChanges(err))

	_, err = engine.Execute("CHECKOUT VTABLE missing OF VERSION 1")
	assert.True(t, core.ErrTableNotFound.Is(err))
}

func TestExecuteMergeConflict(t *testing.T) {
	env := newTestEnv(t)
	alice := env.engine("alice")
	initEmployee(t, alice)
	execute(t, alice, "INSERT INTO VTABLE employee VALUES (1, 'ann', 30), (2, 'bob', 25)")
	execute(t, alice, "COMMIT VTABLE employee")

	bobEngine := env.engine("bob")
	execute(t, bobEngine, "UPDATE VTABLE employee SET age = 26 WHERE employee_id = 2")
	execute(t, bobEngine, "COMMIT VTABLE employee 'bob ages'")

	execute(t, alice, "DELETE FROM VTABLE employee WHERE employee_id = 2")
	execute(t, alice, "COMMIT VTABLE employee 'bob leaves'")

	qr := execute(t, alice, "MERGE VTABLE employee OF VERSION 2").(QueryResult)
	assert.Equal(t, []string{"rid", "keep", "side", "employee_id", "name", "age"}, qr.Columns)
	assert.Equal(t, [][]string{
		{"2", "head", "head", "(deleted)", "(deleted)", "(deleted)"},
		{"2", "head", "other", "2", "bob", "26"},
	}, qr.Data)
	assert.Equal(t, 1, qr.RecordsRead)
}

func TestExecutePlainStatements(t *testing.T) {
	engine := setupTestEngine(t)

	execute(t, engine, "CREATE TABLE plain (a INTEGER)")
	cr := execute(t, engine, "INSERT INTO plain VALUES (1), (2)").(CommitResult)
	assert.Equal(t, int64(2), cr.RowsAffected)

	qr := execute(t, engine, "SELECT a FROM plain ORDER BY a").(QueryResult)
	assert.Equal(t, [][]string{{"1"}, {"2"}}, qr.Data)

	_, err := engine.Execute("SELECT * FROM missing")
	assert.True(t, core.ErrStorage.Is(err))
}

func TestExecuteSyntaxErrors(t *testing.T) {
	engine := setupTestEngine(t)

	for _, query := range []string{
		"SELECT * FROM VTABLE",
		"CHECKOUT VTABLE employee",
		"INSERT INTO VTABLE employee OF VERSION 1 VALUES (1, 'a', 2)",
	} {
		_, err := engine.Execute(query)
		assert.True(t, core.ErrDialectSyntax.Is(err), query)
	}
}

func TestTables(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine("alice")

	names, err := engine.Tables()
	require.NoError(t, err)
	assert.Empty(t, names)

	initEmployee(t, engine)
	_, err = engine.Init("department", []core.Column{{Name: "name", Type: core.StringType}})
	require.NoError(t, err)
	_, err = engine.InitGroup("hr", []string{"employee", "department"})
	require.NoError(t, err)

	names, err = engine.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"department", "employee"}, names)
}

func TestResultDisplay(t *testing.T) {
	var buf bytes.Buffer
	QueryResult{
		Columns:     []string{"name", "age"},
		Data:        [][]string{{"ann", "30"}, {"zoë", "4"}},
		RecordsRead: 2,
	}.Display(&buf)
	assert.Equal(t, ""+
		"+------+-----+\n"+
		"| name | age |\n"+
		"+------+-----+\n"+
		"| ann  | 30  |\n"+
		"| zoë  | 4   |\n"+
		"+------+-----+\n"+
		"2 rows (<1ms)\n", buf.String())

	buf.Reset()
	CommitResult{Table: "employee", Action: "committed", Version: 3, RecordsWritten: 1200, ExecutionTimeSec: 1.5}.Display(&buf)
	assert.Equal(t, "1,200 record(s) written, employee committed at version 3 (1.5s)\n", buf.String())

	buf.Reset()
	CommitResult{}.Display(&buf)
	assert.Equal(t, "OK (<1ms)\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		secs     float64
		expected string
	}{
		{0.0001, "<1ms"},
		{0.25, "250ms"},
		{2.5, "2.5s"},
		{42, "42s"},
		{120, "2m"},
		{125, "2m5s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatDuration(tt.secs))
	}
}

func TestExecuteSelectOpensWorkspace(t *testing.T) {
	env := newTestEnv(t)
	alice := env.engine("alice")
	initEmployee(t, alice)
	execute(t, alice, "INSERT INTO VTABLE employee VALUES (1, 'ann', 30)")
	execute(t, alice, "COMMIT VTABLE employee")

	bob := env.engine("bob")
	qr := execute(t, bob, "SELECT name FROM VTABLE employee").(QueryResult)
	assert.Equal(t, [][]string{{"ann"}}, qr.Data)

	_, err := bob.Execute("SELECT * FROM VTABLE missing")
	assert.True(t, core.ErrTableNotFound.Is(err))
}
