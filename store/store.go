package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/nickyhof/orpheusplus/core"
	log "github.com/sirupsen/logrus"
)

type Dialect int

const (
	DuckDB Dialect = iota
	MySQL
)

func (d Dialect) String() string {
	if d == MySQL {
		return "mysql"
	}
	return "duckdb"
}

// ParseDialect accepts a database/sql driver name.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "duckdb", "":
		return DuckDB, nil
	case "mysql":
		return MySQL, nil
	}
	return DuckDB, fmt.Errorf("unsupported driver %q", driver)
}

// batchSize bounds the rows written by one statement.
const batchSize = 500

func init() {
	sqlx.BindDriver("duckdb", sqlx.QUESTION)
}

// Engine runs statements against the physical tables. Methods run on the
// pool, or inside a transaction when the engine came from Tx.
type Engine struct {
	db      *sqlx.DB
	q       sqlx.Ext
	inTx    bool
	dialect Dialect
}

// Open connects to driver at dsn. An empty duckdb dsn is an in-memory
// database.
func Open(driver, dsn string) (*Engine, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(dialect.String(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect, err)
	}
	log.WithFields(log.Fields{"driver": dialect}).Debug("connected to storage engine")
	return New(db, dialect), nil
}

func New(db *sqlx.DB, dialect Dialect) *Engine {
	return &Engine{db: db, q: db, dialect: dialect}
}

func (e *Engine) Dialect() Dialect {
	return e.dialect
}

func (e *Engine) DB() *sqlx.DB {
	return e.db
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// Tx runs fn on an engine bound to one transaction, committing when fn
// succeeds. Nested calls join the outer transaction.
func (e *Engine) Tx(fn func(tx *Engine) error) (err error) {
	if e.inTx {
		return fn(e)
	}

	tx, err := e.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cerr)
		}
	}()

	return fn(&Engine{db: e.db, q: tx, inTx: true, dialect: e.dialect})
}

// Quote quotes an identifier for the dialect. Qualified names are quoted
// part by part.
func (e *Engine) Quote(name string) string {
	quote := `"`
	if e.dialect == MySQL {
		quote = "`"
	}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = quote + strings.ReplaceAll(part, quote, quote+quote) + quote
	}
	return strings.Join(parts, ".")
}

// columnType returns the physical type of a column.
func (e *Engine) columnType(t core.ColumnType) string {
	switch t {
	case core.IntType:
		return "BIGINT"
	case core.FloatType:
		return "DOUBLE"
	case core.BoolType:
		return "BOOLEAN"
	case core.TextType:
		return "TEXT"
	case core.DateType:
		return "DATE"
	case core.TimestampType:
		if e.dialect == MySQL {
			return "DATETIME"
		}
		return "TIMESTAMP"
	default:
		if e.dialect == MySQL {
			return "VARCHAR(255)"
		}
		return "VARCHAR"
	}
}

// RowIDMode selects how a created table carries the rid column.
type RowIDMode int

const (
	NoRowID RowIDMode = iota
	// WithRowID adds a leading rid column. Working copies use it: they
	// delete and re-insert the same rids within one transaction.
	WithRowID
	// KeyedRowID adds a leading rid primary key. History tables never
	// delete rows.
	KeyedRowID
)

// CreateTable creates physical with the columns of table.
func (e *Engine) CreateTable(physical string, table core.Table, mode RowIDMode) error {
	var defs []string
	switch mode {
	case WithRowID:
		defs = append(defs, e.Quote(core.RowIDColumn)+" BIGINT NOT NULL")
	case KeyedRowID:
		defs = append(defs, e.Quote(core.RowIDColumn)+" BIGINT NOT NULL PRIMARY KEY")
	}
	for _, col := range table.Columns {
		defs = append(defs, e.Quote(col.Name)+" "+e.columnType(col.Type))
	}

	query := fmt.Sprintf("CREATE TABLE %s (%s)", e.Quote(physical), strings.Join(defs, ", "))
	if _, err := e.q.Exec(query); err != nil {
		return classify(err, physical)
	}
	return nil
}

// CreateMembership creates the version to rid index of a table.
func (e *Engine) CreateMembership(physical string) error {
	query := fmt.Sprintf("CREATE TABLE %s (%s BIGINT NOT NULL, %s BIGINT NOT NULL, PRIMARY KEY (%s, %s))",
		e.Quote(physical), e.Quote("version"), e.Quote(core.RowIDColumn), e.Quote("version"), e.Quote(core.RowIDColumn))
	if _, err := e.q.Exec(query); err != nil {
		return classify(err, physical)
	}
	return nil
}

// DropTable removes physical if it exists.
func (e *Engine) DropTable(physical string) error {
	if _, err := e.q.Exec("DROP TABLE IF EXISTS " + e.Quote(physical)); err != nil {
		return classify(err, physical)
	}
	return nil
}

// RenameTable renames physical to name.
func (e *Engine) RenameTable(physical, name string) error {
	var query string
	if e.dialect == MySQL {
		query = fmt.Sprintf("RENAME TABLE %s TO %s", e.Quote(physical), e.Quote(name))
	} else {
		query = fmt.Sprintf("ALTER TABLE %s RENAME TO %s", e.Quote(physical), e.Quote(name))
	}
	if _, err := e.q.Exec(query); err != nil {
		return classify(err, physical)
	}
	return nil
}

// TableExists reports whether physical exists in the current schema.
func (e *Engine) TableExists(physical string) (bool, error) {
	query := "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?"
	if e.dialect == MySQL {
		query += " AND table_schema = DATABASE()"
	}
	var n int
	if err := sqlx.Get(e.q, &n, query, physical); err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", physical, err)
	}
	return n > 0, nil
}

// Tables lists the tables of the current schema.
func (e *Engine) Tables() ([]string, error) {
	query := "SELECT table_name FROM information_schema.tables"
	if e.dialect == MySQL {
		query += " WHERE table_schema = DATABASE()"
	}
	query += " ORDER BY table_name"

	var names []string
	if err := sqlx.Select(e.q, &names, query); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return names, nil
}

// classify maps driver errors for missing or duplicate tables onto error
// kinds.
func classify(err error, table string) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1146, 1051:
			return core.ErrTableNotFound.New(table)
		case 1050:
			return core.ErrTableExists.New(table)
		}
		return core.ErrStorage.Wrap(err, table)
	}

	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) && duckErr.Type == duckdb.ErrorTypeCatalog {
		switch {
		case strings.Contains(duckErr.Msg, "does not exist"):
			return core.ErrTableNotFound.New(table)
		case strings.Contains(duckErr.Msg, "already exists"):
			return core.ErrTableExists.New(table)
		}
	}
	return core.ErrStorage.Wrap(err, table)
}
