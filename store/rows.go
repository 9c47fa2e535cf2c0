package store

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/nickyhof/orpheusplus/core"
)

// Rows is a result set with values normalized to Go scalars.
type Rows struct {
	Columns []string
	Data    [][]any
}

// InsertRows writes rows into physical. Each row starts with its rid when
// columns does.
func (e *Engine) InsertRows(physical string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = e.Quote(col)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", e.Quote(physical), strings.Join(quoted, ", "))

	return e.Tx(func(tx *Engine) error {
		for start := 0; start < len(rows); start += batchSize {
			end := min(start+batchSize, len(rows))
			tuples := make([]string, 0, end-start)
			args := make([]any, 0, (end-start)*len(columns))
			for _, row := range rows[start:end] {
				if len(row) != len(columns) {
					return fmt.Errorf("row has %d values for %d columns", len(row), len(columns))
				}
				tuples = append(tuples, tuple)
				args = append(args, row...)
			}
			if _, err := tx.q.Exec(prefix+strings.Join(tuples, ", "), args...); err != nil {
				return classify(err, physical)
			}
		}
		return nil
	})
}

// DeleteRows removes rids from physical.
func (e *Engine) DeleteRows(physical string, rids []core.RowID) error {
	return e.Tx(func(tx *Engine) error {
		return tx.inBatches(rids, func(batch []core.RowID) error {
			query, args, err := sqlx.In(fmt.Sprintf("DELETE FROM %s WHERE %s IN (?)", e.Quote(physical), e.Quote(core.RowIDColumn)), int64s(batch))
			if err != nil {
				return err
			}
			if _, err := tx.q.Exec(tx.rebind(query), args...); err != nil {
				return classify(err, physical)
			}
			return nil
		})
	})
}

// CopyRows copies rids from one table into another with the same layout,
// skipping rids the target already holds.
func (e *Engine) CopyRows(from, to string, rids []core.RowID) error {
	rid := e.Quote(core.RowIDColumn)
	return e.Tx(func(tx *Engine) error {
		return tx.inBatches(rids, func(batch []core.RowID) error {
			query, args, err := sqlx.In(fmt.Sprintf(
				"INSERT INTO %s SELECT * FROM %s WHERE %s IN (?) AND %s NOT IN (SELECT %s FROM %s)",
				e.Quote(to), e.Quote(from), rid, rid, rid, e.Quote(to)), int64s(batch))
			if err != nil {
				return err
			}
			if _, err := tx.q.Exec(tx.rebind(query), args...); err != nil {
				return classify(err, to)
			}
			return nil
		})
	})
}

// ReplaceWithVersion makes physical hold exactly the rows of version, read
// from the history and membership tables of name.
func (e *Engine) ReplaceWithVersion(physical, name string, version core.VersionID) error {
	rid := e.Quote(core.RowIDColumn)
	return e.Tx(func(tx *Engine) error {
		if _, err := tx.q.Exec("DELETE FROM " + e.Quote(physical)); err != nil {
			return classify(err, physical)
		}
		query := fmt.Sprintf("INSERT INTO %s SELECT * FROM %s WHERE %s IN (SELECT %s FROM %s WHERE %s = ?)",
			e.Quote(physical), e.Quote(core.HistoryTable(name)), rid, rid,
			e.Quote(core.MembershipTable(name)), e.Quote("version"))
		if _, err := tx.q.Exec(query, int64(version)); err != nil {
			return classify(err, physical)
		}
		return nil
	})
}

// CopyTable fills to with every row of from, dropping the rid column when
// to has none.
func (e *Engine) CopyTable(from, to string, columns []string, withRowID bool) error {
	selected := make([]string, 0, len(columns)+1)
	if withRowID {
		selected = append(selected, e.Quote(core.RowIDColumn))
	}
	for _, col := range columns {
		selected = append(selected, e.Quote(col))
	}
	query := fmt.Sprintf("INSERT INTO %s SELECT %s FROM %s", e.Quote(to), strings.Join(selected, ", "), e.Quote(from))
	if _, err := e.q.Exec(query); err != nil {
		return classify(err, to)
	}
	return nil
}

// SelectRows returns the rows of physical matching where, ordered by rid.
// An empty where selects every row.
func (e *Engine) SelectRows(physical, where string) (Rows, error) {
	query := "SELECT * FROM " + e.Quote(physical)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY " + e.Quote(core.RowIDColumn)
	rows, err := e.Query(query)
	if err != nil {
		return Rows{}, classify(err, physical)
	}
	return rows, nil
}

// FetchRows returns the rows of physical with the given rids, keyed by rid
// and without the rid value.
func (e *Engine) FetchRows(physical string, rids []core.RowID) (map[core.RowID][]any, error) {
	out := make(map[core.RowID][]any, len(rids))
	err := e.inBatches(rids, func(batch []core.RowID) error {
		query, args, err := sqlx.In(fmt.Sprintf("SELECT * FROM %s WHERE %s IN (?)", e.Quote(physical), e.Quote(core.RowIDColumn)), int64s(batch))
		if err != nil {
			return err
		}
		rows, err := e.Query(e.rebind(query), args...)
		if err != nil {
			return classify(err, physical)
		}
		for _, row := range rows.Data {
			rid, err := RowIDOf(row[0])
			if err != nil {
				return err
			}
			out[rid] = row[1:]
		}
		return nil
	})
	return out, err
}

// MaxRowID returns the largest rid stored in any of the tables, or 0.
// Missing tables are skipped.
func (e *Engine) MaxRowID(tables ...string) (core.RowID, error) {
	var highest core.RowID
	for _, physical := range tables {
		exists, err := e.TableExists(physical)
		if err != nil {
			return 0, err
		}
		if !exists {
			continue
		}
		var n int64
		query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", e.Quote(core.RowIDColumn), e.Quote(physical))
		if err := sqlx.Get(e.q, &n, query); err != nil {
			return 0, classify(err, physical)
		}
		if core.RowID(n) > highest {
			highest = core.RowID(n)
		}
	}
	return highest, nil
}

// Count returns the number of rows in physical.
func (e *Engine) Count(physical string) (int64, error) {
	var n int64
	if err := sqlx.Get(e.q, &n, "SELECT COUNT(*) FROM "+e.Quote(physical)); err != nil {
		return 0, classify(err, physical)
	}
	return n, nil
}

// RowIDs returns the rids of physical matching where, in ascending order.
func (e *Engine) RowIDs(physical, where string) ([]core.RowID, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", e.Quote(core.RowIDColumn), e.Quote(physical))
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY " + e.Quote(core.RowIDColumn)

	var ids []int64
	if err := sqlx.Select(e.q, &ids, query); err != nil {
		return nil, classify(err, physical)
	}
	rids := make([]core.RowID, len(ids))
	for i, id := range ids {
		rids[i] = core.RowID(id)
	}
	return rids, nil
}

// Query runs a statement that returns rows.
func (e *Engine) Query(query string, args ...any) (Rows, error) {
	rows, err := e.q.Queryx(query, args...)
	if err != nil {
		return Rows{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Rows{}, err
	}
	result := Rows{Columns: columns}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return Rows{}, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Data = append(result.Data, values)
	}
	return result, rows.Err()
}

// Exec runs a statement and returns the number of rows it affected.
func (e *Engine) Exec(query string, args ...any) (int64, error) {
	res, err := e.q.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (e *Engine) rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(e.dialect.String()), query)
}

func (e *Engine) inBatches(rids []core.RowID, fn func(batch []core.RowID) error) error {
	for start := 0; start < len(rids); start += batchSize {
		if err := fn(rids[start:min(start+batchSize, len(rids))]); err != nil {
			return err
		}
	}
	return nil
}

func int64s(rids []core.RowID) []int64 {
	out := make([]int64, len(rids))
	for i, rid := range rids {
		out[i] = int64(rid)
	}
	return out
}

// RowIDOf converts a scanned rid value.
func RowIDOf(v any) (core.RowID, error) {
	switch n := v.(type) {
	case int64:
		return core.RowID(n), nil
	case int32:
		return core.RowID(n), nil
	case uint64:
		return core.RowID(n), nil
	case string:
		var id uint64
		if _, err := fmt.Sscan(n, &id); err != nil {
			return 0, fmt.Errorf("invalid rid %q", n)
		}
		return core.RowID(id), nil
	}
	return 0, fmt.Errorf("invalid rid %v of type %T", v, v)
}
