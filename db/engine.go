package db

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/merge"
	"github.com/nickyhof/orpheusplus/ps"
	"github.com/nickyhof/orpheusplus/sql"
	"github.com/nickyhof/orpheusplus/store"
	log "github.com/sirupsen/logrus"
)

// Engine runs statements of the versioned dialect for one identity. The
// identity's name is the workspace user.
type Engine struct {
	*ps.Persistence
	Store    *store.Engine
	Identity core.Identity
	Database string

	mu     sync.Mutex
	tables map[string]*Table
}

func NewEngine(persistence *ps.Persistence, engine *store.Engine, identity core.Identity, database string) *Engine {
	return &Engine{
		Persistence: persistence,
		Store:       engine,
		Identity:    identity,
		Database:    database,
		tables:      make(map[string]*Table),
	}
}

// Init puts a new table under version control.
func (engine *Engine) Init(name string, columns []core.Column) (*Table, error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	schema := core.Table{Database: engine.Database, Name: name, Columns: columns}
	table, err := InitTable(engine.Store, engine.Persistence, engine.Identity, schema)
	if err != nil {
		return nil, err
	}
	engine.tables[name] = table
	return table, nil
}

// Table returns the loaded handle of a versioned table.
func (engine *Engine) Table(name string) (*Table, error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if table, ok := engine.tables[name]; ok {
		return table, nil
	}
	table, err := LoadTable(engine.Store, engine.Persistence, engine.Identity, engine.Database, name)
	if err != nil {
		return nil, err
	}
	engine.tables[name] = table
	return table, nil
}

// Remove takes a table out of version control.
func (engine *Engine) Remove(name string, keepCurrent bool) error {
	table, err := engine.Table(name)
	if err != nil {
		return err
	}
	if err := table.Remove(keepCurrent); err != nil {
		return err
	}

	engine.mu.Lock()
	delete(engine.tables, name)
	engine.mu.Unlock()
	return nil
}

// Tables lists the versioned tables of the database.
func (engine *Engine) Tables() ([]string, error) {
	entries, err := engine.List(engine.Database)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir && engine.Exists(ps.SchemaPath(engine.Database, entry.Name)) {
			names = append(names, entry.Name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Execute runs one statement. VTABLE queries are rewritten against the
// physical tables, mutations of versioned tables go through the table
// handle, and anything else is passed to the storage engine unchanged.
func (engine *Engine) Execute(query string) (Result, error) {
	start := time.Now()

	if cmd, ok, err := sql.ParseCommand(query); ok {
		if err != nil {
			return nil, err
		}
		result, err := engine.executeCommand(cmd, start)
		observe(string(cmd.Type), start)
		return result, err
	}

	translation, err := sql.Translate(query, engine.Identity.Name)
	if err != nil {
		return nil, err
	}
	defer observe(string(translation.Operation), start)

	if translation.Intent != nil {
		return engine.executeIntent(*translation.Intent, start)
	}
	if translation.Operation == sql.SelectOperation {
		for _, name := range translation.Workspaces {
			if _, err := engine.Table(name); err != nil {
				return nil, err
			}
		}
		return engine.executeQuery(translation.Query, start)
	}

	affected, err := engine.Store.Exec(translation.Query)
	if err != nil {
		return nil, core.ErrStorage.Wrap(err, "statement")
	}
	return CommitResult{RowsAffected: affected, ExecutionTimeSec: time.Since(start).Seconds()}, nil
}

func observe(operation string, start time.Time) {
	statementDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (engine *Engine) executeQuery(query string, start time.Time) (QueryResult, error) {
	rows, err := engine.Store.Query(query)
	if err != nil {
		return QueryResult{}, core.ErrStorage.Wrap(err, "query")
	}
	columns, data := sql.StripRowID(rows.Columns, rows.Data)
	return QueryResult{
		Columns:          columns,
		Data:             FormatRows(data),
		RecordsRead:      len(data),
		ExecutionTimeSec: time.Since(start).Seconds(),
	}, nil
}

func (engine *Engine) executeIntent(intent sql.Intent, start time.Time) (CommitResult, error) {
	table, err := engine.Table(intent.Table)
	if err != nil {
		return CommitResult{}, err
	}
	n, err := table.Apply(intent)
	if err != nil {
		return CommitResult{}, err
	}

	result := CommitResult{Table: table.Name(), Version: table.Head(), ExecutionTimeSec: time.Since(start).Seconds()}
	switch intent.Operation {
	case sql.InsertOperation:
		result.RecordsWritten = n
	case sql.DeleteOperation:
		result.RecordsDeleted = n
	case sql.UpdateOperation:
		result.RecordsWritten, result.RecordsDeleted = n, n
	}
	log.WithFields(log.Fields{"table": intent.Table, "user": engine.Identity.Name, "operation": intent.Operation, "rows": n}).Debug("applied intent")
	return result, nil
}

func (engine *Engine) executeCommand(cmd sql.Command, start time.Time) (Result, error) {
	table, err := engine.Table(cmd.Table)
	if err != nil {
		return nil, err
	}
	done := func(action string) CommitResult {
		return CommitResult{Table: table.Name(), Action: action, Version: table.Head(), ExecutionTimeSec: time.Since(start).Seconds()}
	}

	switch cmd.Type {
	case sql.CommitCommand:
		if _, err := table.Commit(cmd.Message, time.Time{}); err != nil {
			return nil, err
		}
		return done("committed"), nil

	case sql.CheckoutCommand:
		if err := table.Checkout(cmd.Version); err != nil {
			return nil, err
		}
		return done("checked out"), nil

	case sql.MergeCommand:
		merged, err := table.Merge(cmd.Version, nil)
		if err != nil {
			return nil, err
		}
		if merged.Report != nil {
			return ConflictResult(table, merged.Report, start), nil
		}
		if merged.NoOp {
			return done("already merged"), nil
		}
		return done("merged"), nil

	case sql.LogCommand:
		entries, err := table.Log()
		if err != nil {
			return nil, err
		}
		result := QueryResult{Columns: []string{"version", "author", "date", "message"}}
		for _, entry := range entries {
			result.Data = append(result.Data, []string{
				strconv.FormatInt(int64(entry.Version), 10), entry.Author, entry.Date.Format(logDateFormat), entry.Message,
			})
		}
		result.RecordsRead = len(result.Data)
		result.ExecutionTimeSec = time.Since(start).Seconds()
		return result, nil

	case sql.DiffCommand:
		diff, err := table.Diff(cmd.Version, cmd.Compared)
		if err != nil {
			return nil, err
		}
		return DiffResult(diff, start), nil
	}
	return nil, fmt.Errorf("unsupported command %s", cmd.Type)
}

// ConflictResult lists the conflicts of a merge report with both sides'
// replacement rows.
func ConflictResult(table *Table, report *merge.Report, start time.Time) QueryResult {
	records := ReportRecords(report, table.Schema)
	return QueryResult{
		Columns:          records[0],
		Data:             records[1:],
		RecordsRead:      len(report.Conflicts),
		ExecutionTimeSec: time.Since(start).Seconds(),
	}
}

func conflictRow(row []any, width int) []string {
	out := make([]string, width)
	if row == nil {
		for i := range out {
			out[i] = "(deleted)"
		}
		return out
	}
	for i, v := range row {
		if i < width {
			out[i] = FormatValue(v)
		}
	}
	return out
}

// DiffResult lists the rows of a diff, marked by the version holding them.
func DiffResult(diff Diff, start time.Time) QueryResult {
	result := QueryResult{Columns: append([]string{"version"}, diff.Columns...)}
	for _, row := range FormatRows(diff.OnlyInFrom) {
		result.Data = append(result.Data, append([]string{"-" + strconv.FormatInt(int64(diff.From), 10)}, row...))
	}
	for _, row := range FormatRows(diff.OnlyInTo) {
		result.Data = append(result.Data, append([]string{"+" + strconv.FormatInt(int64(diff.To), 10)}, row...))
	}
	result.RecordsRead = len(result.Data)
	result.ExecutionTimeSec = time.Since(start).Seconds()
	return result
}

// IsNoChanges reports whether err means there was nothing to commit.
func IsNoChanges(err error) bool {
	for err != nil {
		if core.ErrNoChanges.Is(err) {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
