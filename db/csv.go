package db

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/merge"
)

// ReadCSV reads every record of a CSV file at a local path, file://,
// http(s):// or s3:// URL.
func ReadCSV(path string, cfg *S3Config) ([][]string, error) {
	r, err := openRemoteReader(path, cfg)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return parseCSV(r)
}

func parseCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return records, nil
}

// ReadScript reads a statement file from the same locations as ReadCSV.
// Lines starting with -- are dropped.
func ReadScript(path string, cfg *S3Config) (string, error) {
	r, err := openRemoteReader(path, cfg)
	if err != nil {
		return "", err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	lines := strings.Split(string(data), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}

// WriteCSV writes records to a local path or s3:// URL.
func WriteCSV(path string, cfg *S3Config, records [][]string) error {
	w, err := openRemoteWriter(path, cfg)
	if err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(records); err != nil {
		w.Close()
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return w.Close()
}

// ReadSchema reads a schema file of name,type records.
func ReadSchema(path string, cfg *S3Config, database, table string) (core.Table, error) {
	records, err := ReadCSV(path, cfg)
	if err != nil {
		return core.Table{}, err
	}
	return core.ParseSchema(database, table, records)
}

// ReadData reads rows for schema. A first record naming every column is
// taken as a header and the rows are reordered to match the schema.
func ReadData(path string, cfg *S3Config, schema core.Table) ([][]string, error) {
	records, err := ReadCSV(path, cfg)
	if err != nil {
		return nil, err
	}
	return schemaRows(records, schema)
}

func schemaRows(records [][]string, schema core.Table) ([][]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if _, err := schema.MatchColumnOrder(records[0]); err == nil {
		return schema.Reorder(records[0], records[1:])
	}
	for i, record := range records {
		if len(record) != len(schema.Columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i+1, len(record), len(schema.Columns))
		}
	}
	return records, nil
}

// ReportRecords lays out a merge report as CSV records: a header, then
// one record per side of each conflict. The keep column can be edited and
// read back with ParseResolution.
func ReportRecords(report *merge.Report, schema core.Table) [][]string {
	header := append([]string{"rid", "keep", "side"}, schema.ColumnNames()...)
	records := [][]string{header}
	for _, c := range report.Conflicts {
		rid := strconv.FormatUint(uint64(c.RowID), 10)
		records = append(records,
			append([]string{rid, string(c.Keep), string(merge.Head)}, conflictRow(c.HeadRow, len(schema.Columns))...),
			append([]string{rid, string(c.Keep), string(merge.Other)}, conflictRow(c.OtherRow, len(schema.Columns))...),
		)
	}
	return records
}

// ParseResolution reads the rid and keep columns of report records. When
// a rid appears more than once its last keep wins.
func ParseResolution(records [][]string) (merge.Resolution, error) {
	if len(records) == 0 {
		return merge.Resolution{}, nil
	}
	ridCol, keepCol := -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "rid":
			ridCol = i
		case "keep":
			keepCol = i
		}
	}
	if ridCol < 0 || keepCol < 0 {
		return nil, fmt.Errorf("resolution file needs rid and keep columns")
	}

	resolution := make(merge.Resolution, len(records)-1)
	for i, record := range records[1:] {
		if len(record) <= max(ridCol, keepCol) {
			return nil, fmt.Errorf("resolution line %d is too short", i+2)
		}
		rid, err := strconv.ParseUint(strings.TrimSpace(record[ridCol]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("resolution line %d: invalid rid %q", i+2, record[ridCol])
		}
		side, err := merge.ParseSide(record[keepCol])
		if err != nil {
			return nil, fmt.Errorf("resolution line %d: %w", i+2, err)
		}
		resolution[core.RowID(rid)] = side
	}
	return resolution, nil
}

// ReadResolution reads a resolution file written from a merge report.
func ReadResolution(path string, cfg *S3Config) (merge.Resolution, error) {
	records, err := ReadCSV(path, cfg)
	if err != nil {
		return nil, err
	}
	return ParseResolution(records)
}
