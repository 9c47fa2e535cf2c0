package db

import (
	"testing"

	"github.com/nickyhof/orpheusplus/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGroup(t *testing.T) (*Engine, *Table, *Table) {
	t.Helper()
	engine := newTestEnv(t).engine("alice")
	employee := initEmployee(t, engine)
	department, err := engine.Init("department", []core.Column{{Name: "name", Type: core.StringType}})
	require.NoError(t, err)

	group, err := engine.InitGroup("hr", []string{"employee", "department", "employee"})
	require.NoError(t, err)
	assert.Equal(t, []string{"employee", "department"}, group.Tables)
	return engine, employee, department
}

func TestGroupCommitAndCheckout(t *testing.T) {
	engine, employee, department := setupGroup(t)

	_, err := employee.Insert([][]string{ann, bob})
	require.NoError(t, err)
	_, err = department.Insert([][]string{{"sales"}})
	require.NoError(t, err)
	group, changed, err := engine.GroupCommit("hr", "first")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, group.HeadOf("alice"))

	_, err = employee.Insert([][]string{cat})
	require.NoError(t, err)
	group, changed, err = engine.GroupCommit("hr", "second")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, group.Count)

	v2, ok := group.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, map[string]core.VersionID{"employee": 2, "department": 1}, v2.Tables)
	assert.Equal(t, "second", v2.Message)

	_, changed, err = engine.GroupCommit("hr", "nothing")
	require.NoError(t, err)
	assert.False(t, changed)

	group, err = engine.GroupCheckout("hr", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, group.HeadOf("alice"))
	assert.Equal(t, core.VersionID(1), employee.Head())
	assert.Equal(t, [][]string{ann, bob}, rowsOf(t, employee))

	_, err = engine.GroupCheckout("hr", 0)
	require.NoError(t, err)
	assert.Empty(t, rowsOf(t, employee))
	assert.Empty(t, rowsOf(t, department))

	_, err = engine.GroupCheckout("hr", 5)
	assert.True(t, core.ErrVersionNotFound.Is(err))

	loaded, err := engine.LoadGroup("hr")
	require.NoError(t, err)
	assert.Equal(t, "hr", loaded.Name)
	assert.Equal(t, 0, loaded.HeadOf("alice"))
	assert.Len(t, loaded.Versions, 2)
}

func TestGroupHeadsArePerUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.engine("alice")
	employee := initEmployee(t, alice)
	_, err := alice.InitGroup("hr", []string{"employee"})
	require.NoError(t, err)

	commitRows(t, employee, "first", ann)
	_, err = employee.Insert([][]string{bob})
	require.NoError(t, err)
	_, _, err = alice.GroupCommit("hr", "second")
	require.NoError(t, err)

	bob := env.engine("bob")
	group, err := bob.LoadGroup("hr")
	require.NoError(t, err)
	assert.Equal(t, 1, group.Count)
	assert.Equal(t, 1, group.HeadOf("bob"))

	_, err = alice.GroupCheckout("hr", 0)
	require.NoError(t, err)

	group, err = bob.LoadGroup("hr")
	require.NoError(t, err)
	assert.Equal(t, 0, group.HeadOf("alice"))
	assert.Equal(t, 1, group.HeadOf("bob"))

	group, err = bob.GroupCheckout("hr", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, group.HeadOf("bob"))
	assert.Equal(t, 0, group.HeadOf("alice"))
}

func TestGroupErrors(t *testing.T) {
	engine, _, _ := setupGroup(t)

	_, err := engine.InitGroup("hr", []string{"employee"})
	assert.True(t, core.ErrGroupExists.Is(err))

	_, err = engine.InitGroup("empty", nil)
	assert.Error(t, err)

	_, err = engine.InitGroup("broken", []string{"missing"})
	assert.True(t, core.ErrTableNotFound.Is(err))

	require.NoError(t, engine.DropGroup("hr"))
	_, err = engine.LoadGroup("hr")
	assert.True(t, core.ErrGroupNotFound.Is(err))
	assert.True(t, core.ErrGroupNotFound.Is(engine.DropGroup("hr")))
}
