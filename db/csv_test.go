package db

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/merge"
	"github.com/nickyhof/orpheusplus/op"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func swapFiles(t *testing.T, files map[string]string) map[string]*bytes.Buffer {
	t.Helper()
	written := make(map[string]*bytes.Buffer)
	origOpen, origCreate := osOpen, osCreate
	osOpen = func(path string) (io.ReadCloser, error) {
		content, ok := files[path]
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		return io.NopCloser(strings.NewReader(content)), nil
	}
	osCreate = func(path string) (io.WriteCloser, error) {
		written[path] = &bytes.Buffer{}
		return nopWriteCloser{written[path]}, nil
	}
	t.Cleanup(func() { osOpen, osCreate = origOpen, origCreate })
	return written
}

func TestReadSchema(t *testing.T) {
	swapFiles(t, map[string]string{
		"schema.csv": "employee_id,int\nname,varchar(20)\n age, int\n",
	})

	schema, err := ReadSchema("file://schema.csv", nil, "company", "employee")
	require.NoError(t, err)
	assert.Equal(t, employeeColumns, schema.Columns)
	assert.Equal(t, "employee", schema.Name)

	_, err = ReadSchema("missing.csv", nil, "company", "employee")
	assert.Error(t, err)
}

func TestReadData(t *testing.T) {
	schema := core.Table{Name: "employee", Columns: employeeColumns}
	swapFiles(t, map[string]string{
		"plain.csv":  "1,ann,30\n2,bob,25\n",
		"header.csv": "age,employee_id,name\n30,1,ann\n",
		"short.csv":  "1,ann\n",
	})

	rows, err := ReadData("plain.csv", nil, schema)
	require.NoError(t, err)
	assert.Equal(t, [][]string{ann, bob}, rows)

	rows, err = ReadData("header.csv", nil, schema)
	require.NoError(t, err)
	assert.Equal(t, [][]string{ann}, rows)

	_, err = ReadData("short.csv", nil, schema)
	assert.Error(t, err)
}

func TestReportRoundTrip(t *testing.T) {
	schema := core.Table{Name: "employee", Columns: employeeColumns}
	report := &merge.Report{Conflicts: []merge.Conflict{
		{RowID: 2, Head: op.Deleted(testTime), OtherRow: []any{int64(2), "bob", int64(26)}, Keep: merge.Head},
		{RowID: 5, HeadRow: []any{int64(5), "eve", int64(30)}, OtherRow: []any{int64(5), "eve", int64(31)}, Keep: merge.Other},
	}}

	records := ReportRecords(report, schema)
	assert.Equal(t, []string{"rid", "keep", "side", "employee_id", "name", "age"}, records[0])
	assert.Len(t, records, 5)

	written := swapFiles(t, nil)
	require.NoError(t, WriteCSV("conflicts.csv", nil, records))
	assert.Contains(t, written["conflicts.csv"].String(), "2,head,other,2,bob,26\n")

	records[1][1], records[2][1] = "other", "other"
	resolution, err := ParseResolution(records)
	require.NoError(t, err)
	assert.Equal(t, merge.Resolution{2: merge.Other, 5: merge.Other}, resolution)
}

func TestParseResolution(t *testing.T) {
	resolution, err := ParseResolution([][]string{{"RID", "Keep"}, {"3", "head"}, {" 4", "other"}})
	require.NoError(t, err)
	assert.Equal(t, merge.Resolution{3: merge.Head, 4: merge.Other}, resolution)

	for _, records := range [][][]string{
		{{"rid"}, {"3"}},
		{{"rid", "keep"}, {"x", "head"}},
		{{"rid", "keep"}, {"3", "mine"}},
		{{"rid", "keep"}, {"3"}},
	} {
		_, err := ParseResolution(records)
		assert.Error(t, err, records)
	}

	resolution, err = ParseResolution(nil)
	require.NoError(t, err)
	assert.Empty(t, resolution)
}

func TestLocate(t *testing.T) {
	tests := []struct {
		path   string
		where  location
		target string
	}{
		{"data.csv", localFile, "data.csv"},
		{"file:///tmp/data.csv", localFile, "/tmp/data.csv"},
		{"https://example.com/data.csv", httpFile, "https://example.com/data.csv"},
		{"S3://bucket/key.csv", s3Object, "bucket/key.csv"},
	}
	for _, tt := range tests {
		where, target := locate(tt.path)
		assert.Equal(t, tt.where, where, tt.path)
		assert.Equal(t, tt.target, target, tt.path)
	}

	_, _, err := splitObject("bucket")
	assert.Error(t, err)
	bucket, key, err := splitObject("bucket/dir/key.csv")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "dir/key.csv", key)

	_, err = openRemoteWriter("http://example.com/out.csv", nil)
	assert.Error(t, err)
}

func TestReadScript(t *testing.T) {
	swapFiles(t, map[string]string{
		"query.sql": "-- employees over 30\nSELECT * FROM VTABLE employee\n  -- of the head\nWHERE age > 30;\n",
	})

	script, err := ReadScript("query.sql", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM VTABLE employee\nWHERE age > 30;\n", script)
}
