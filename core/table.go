package core

import (
	"fmt"
	"strconv"
	"strings"
)

type ColumnType int

// NullValue stands for SQL NULL in a row of text values. Coerce turns it
// into nil for every column type.
const NullValue = "\x00"

const (
	StringType ColumnType = iota
	IntType
	FloatType
	BoolType
	TextType
	DateType
	TimestampType
)

func (t ColumnType) String() string {
	switch t {
	case IntType:
		return "int"
	case FloatType:
		return "float"
	case BoolType:
		return "bool"
	case TextType:
		return "text"
	case DateType:
		return "date"
	case TimestampType:
		return "timestamp"
	default:
		return "string"
	}
}

// ParseColumnType maps a SQL type name, with or without a length such as
// varchar(20), to a ColumnType.
func ParseColumnType(name string) (ColumnType, error) {
	base := strings.ToLower(strings.TrimSpace(name))
	if idx := strings.IndexByte(base, '('); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}

	switch base {
	case "int", "integer", "bigint", "smallint", "tinyint", "mediumint":
		return IntType, nil
	case "float", "double", "real", "decimal", "numeric":
		return FloatType, nil
	case "bool", "boolean":
		return BoolType, nil
	case "text", "longtext", "mediumtext":
		return TextType, nil
	case "date":
		return DateType, nil
	case "timestamp", "datetime":
		return TimestampType, nil
	case "string", "varchar", "char":
		return StringType, nil
	}
	return StringType, fmt.Errorf("unsupported column type %q", name)
}

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Table is the user visible schema of a versioned table. The synthetic rid
// column is not part of it.
type Table struct {
	Database string   `json:"database"`
	Name     string   `json:"name"`
	Columns  []Column `json:"columns"`
}

func (table Table) ColumnNames() []string {
	names := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		names[i] = col.Name
	}
	return names
}

// ColumnIndex returns the position of a column, compared case-insensitively.
func (table Table) ColumnIndex(name string) int {
	for i, col := range table.Columns {
		if strings.EqualFold(col.Name, name) {
			return i
		}
	}
	return -1
}

// MatchColumnOrder maps each schema column to its position in header.
// Header names are compared case-insensitively and must cover the schema
// exactly.
func (table Table) MatchColumnOrder(header []string) ([]int, error) {
	if len(header) != len(table.Columns) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(table.Columns), len(header))
	}

	order := make([]int, len(table.Columns))
	for i, col := range table.Columns {
		order[i] = -1
		for j, name := range header {
			if strings.EqualFold(strings.TrimSpace(name), col.Name) {
				order[i] = j
				break
			}
		}
		if order[i] < 0 {
			return nil, fmt.Errorf("column %s missing from header", col.Name)
		}
	}
	return order, nil
}

// Reorder rearranges rows laid out as header into schema order.
func (table Table) Reorder(header []string, rows [][]string) ([][]string, error) {
	order, err := table.MatchColumnOrder(header)
	if err != nil {
		return nil, err
	}

	out := make([][]string, len(rows))
	for i, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i+1, len(row), len(header))
		}
		reordered := make([]string, len(order))
		for j, idx := range order {
			reordered[j] = row[idx]
		}
		out[i] = reordered
	}
	return out, nil
}

// Coerce converts a row of text values in schema order into typed values
// suitable for statement parameters. Empty values of non-string columns
// and NullValue become NULL.
func (table Table) Coerce(row []string) ([]any, error) {
	if len(row) != len(table.Columns) {
		return nil, fmt.Errorf("expected %d values, got %d", len(table.Columns), len(row))
	}

	values := make([]any, len(row))
	for i, raw := range row {
		col := table.Columns[i]
		if raw == NullValue {
			values[i] = nil
			continue
		}
		text := strings.TrimSpace(raw)
		if text == "" && col.Type != StringType && col.Type != TextType {
			values[i] = nil
			continue
		}

		switch col.Type {
		case IntType:
			v, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: invalid int %q", col.Name, raw)
			}
			values[i] = v
		case FloatType:
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: invalid float %q", col.Name, raw)
			}
			values[i] = v
		case BoolType:
			v, err := strconv.ParseBool(text)
			if err != nil {
				return nil, fmt.Errorf("column %s: invalid bool %q", col.Name, raw)
			}
			values[i] = v
		default:
			values[i] = raw
		}
	}
	return values, nil
}

// ParseSchema builds a Table from (name, type) pairs such as the rows of a
// schema CSV file.
func ParseSchema(database, name string, pairs [][]string) (Table, error) {
	table := Table{Database: database, Name: name}
	for i, pair := range pairs {
		if len(pair) < 2 {
			return Table{}, fmt.Errorf("schema line %d: expected name,type", i+1)
		}
		colName := strings.TrimSpace(pair[0])
		if strings.EqualFold(colName, RowIDColumn) {
			return Table{}, fmt.Errorf("schema line %d: column name %s is reserved", i+1, RowIDColumn)
		}
		colType, err := ParseColumnType(pair[1])
		if err != nil {
			return Table{}, fmt.Errorf("schema line %d: %w", i+1, err)
		}
		table.Columns = append(table.Columns, Column{Name: colName, Type: colType})
	}
	if len(table.Columns) == 0 {
		return Table{}, fmt.Errorf("schema has no columns")
	}
	return table, nil
}
