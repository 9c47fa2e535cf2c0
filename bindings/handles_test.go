package main

import (
	"encoding/json"
	"testing"

	"github.com/nickyhof/orpheusplus/config"
	"github.com/nickyhof/orpheusplus/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, data []byte, result any) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(data, &resp))
	if result != nil && resp.Success {
		require.NoError(t, json.Unmarshal(resp.Result, result))
	}
	return resp
}

func TestHandleLifecycle(t *testing.T) {
	cfg := config.Default()
	cfg.User = "python"
	handle, err := open(cfg)
	require.NoError(t, err)

	h, ok := lookup(handle)
	require.True(t, ok)
	_, err = h.engine.Init("items", []core.Column{{Name: "id", Type: core.IntType}, {Name: "value", Type: core.TextType}})
	require.NoError(t, err)

	var cr CommitResponse
	resp := decode(t, execute(handle, "INSERT INTO VTABLE items VALUES (1, 'one')"), &cr)
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "commit", resp.Type)
	assert.Equal(t, 1, cr.RecordsWritten)

	decode(t, execute(handle, "COMMIT VTABLE items 'first'"), &cr)
	assert.Equal(t, "committed", cr.Action)
	assert.Equal(t, int64(1), cr.Version)

	var qr QueryResponse
	resp = decode(t, execute(handle, "SELECT * FROM VTABLE items OF VERSION 1"), &qr)
	assert.Equal(t, "query", resp.Type)
	assert.Equal(t, [][]string{{"1", "one"}}, qr.Data)

	resp = decode(t, execute(handle, "CHECKOUT VTABLE items"), nil)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)

	closeHandle(handle)
	resp = decode(t, execute(handle, "SELECT 1"), nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "invalid handle", resp.Error)
}
