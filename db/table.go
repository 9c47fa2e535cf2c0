package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/graph"
	"github.com/nickyhof/orpheusplus/merge"
	"github.com/nickyhof/orpheusplus/op"
	"github.com/nickyhof/orpheusplus/ps"
	"github.com/nickyhof/orpheusplus/sql"
	"github.com/nickyhof/orpheusplus/store"
	log "github.com/sirupsen/logrus"
)

// Table is one user's handle on a versioned table. It owns the user's
// ledger and the table's version graph, and writes both back to the
// metadata repository before every mutating call returns.
type Table struct {
	Schema core.Table
	User   string

	identity    core.Identity
	persistence *ps.Persistence
	engine      *store.Engine
	ledgers     *op.Store
	graph       *graph.Graph
	ledger      *op.Ledger
	now         func() time.Time
}

// MergeResult is the outcome of Table.Merge. Report is set when the merge
// stopped on conflicts.
type MergeResult struct {
	Version core.VersionID
	Base    core.VersionID
	NoOp    bool
	Report  *merge.Report
	Rows    int
}

// Diff lists the rows only one of two versions holds.
type Diff struct {
	From, To   core.VersionID
	Columns    []string
	OnlyInFrom [][]any
	OnlyInTo   [][]any
}

// tableLocks serializes the handles of one table within the process. Each
// locked call reloads the graph, which other handles may have advanced.
var tableLocks sync.Map

func lockTable(database, name string) func() {
	mu, _ := tableLocks.LoadOrStore(ps.TableDir(database, name), &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

// lock takes the table lock and refreshes the graph.
func (t *Table) lock() (func(), error) {
	unlock := lockTable(t.Schema.Database, t.Schema.Name)
	g, err := graph.Load(t.persistence, t.Schema.Database, t.Schema.Name, t.engine.Membership(t.Schema.Name))
	if err != nil {
		unlock()
		return nil, err
	}
	t.graph = g
	return unlock, nil
}

// InitTable puts a new table under version control for identity's
// workspace. The table starts at the empty root version.
func InitTable(engine *store.Engine, persistence *ps.Persistence, identity core.Identity, schema core.Table) (*Table, error) {
	defer lockTable(schema.Database, schema.Name)()
	if persistence.Exists(ps.SchemaPath(schema.Database, schema.Name)) {
		return nil, core.ErrTableExists.New(schema.Name)
	}

	history := core.HistoryTable(schema.Name)
	if err := engine.CreateTable(history, schema, store.KeyedRowID); err != nil {
		return nil, err
	}
	if err := engine.CreateMembership(core.MembershipTable(schema.Name)); err != nil {
		engine.DropTable(history)
		return nil, err
	}

	g, err := graph.Init(schema.Database, schema.Name, engine.Membership(schema.Name))
	if err != nil {
		return nil, err
	}

	t := newTable(engine, persistence, identity, schema, g)
	if err := t.engine.CreateTable(t.head(), schema, store.WithRowID); err != nil {
		return nil, err
	}
	if err := g.SetHead(t.User, core.RootVersion); err != nil {
		return nil, err
	}
	if t.ledger, err = t.ledgers.Open(schema.Database, schema.Name, t.User, core.RootVersion); err != nil {
		return nil, err
	}

	schemaData, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	err = t.flush(fmt.Sprintf("Initialize table %s", schema.Name), core.RootVersion, func(txn *ps.TransactionBuilder) error {
		return txn.AddWrite(ps.SchemaPath(schema.Database, schema.Name), schemaData)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"table": schema.Name, "user": t.User}).Info("initialized versioned table")
	return t, nil
}

// LoadTable opens a versioned table for identity's workspace. A user seen
// for the first time gets a working copy of the latest version.
func LoadTable(engine *store.Engine, persistence *ps.Persistence, identity core.Identity, database, name string) (*Table, error) {
	defer lockTable(database, name)()
	data, err := persistence.Read(ps.SchemaPath(database, name))
	if errors.Is(err, ps.ErrNotFound) {
		return nil, core.ErrTableNotFound.New(name)
	}
	if err != nil {
		return nil, err
	}
	var schema core.Table
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema of %s: %w", name, err)
	}

	g, err := graph.Load(persistence, database, name, engine.Membership(name))
	if err != nil {
		return nil, err
	}

	t := newTable(engine, persistence, identity, schema, g)
	known := g.HasUser(t.User)
	head := g.Head(t.User)

	exists, err := engine.TableExists(t.head())
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := engine.CreateTable(t.head(), schema, store.WithRowID); err != nil {
			return nil, err
		}
		if err := engine.ReplaceWithVersion(t.head(), name, head); err != nil {
			return nil, err
		}
	}

	if t.ledger, err = t.ledgers.Open(database, name, t.User, head); err != nil {
		return nil, err
	}
	if !known {
		if err := g.SetHead(t.User, head); err != nil {
			return nil, err
		}
		if err := t.flush(fmt.Sprintf("Open workspace of %s on %s", t.User, name), head, nil); err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"table": name, "user": t.User, "version": head}).Info("created workspace")
	}
	return t, nil
}

func newTable(engine *store.Engine, persistence *ps.Persistence, identity core.Identity, schema core.Table, g *graph.Graph) *Table {
	return &Table{
		Schema:      schema,
		User:        identity.Name,
		identity:    identity,
		persistence: persistence,
		engine:      engine,
		ledgers:     op.NewStore(persistence, identity),
		graph:       g,
		now:         time.Now,
	}
}

func (t *Table) Name() string {
	return t.Schema.Name
}

// Head returns the version the workspace is based on.
func (t *Table) Head() core.VersionID {
	return t.ledger.Head
}

func (t *Table) Graph() *graph.Graph {
	return t.graph
}

func (t *Table) head() string {
	return core.HeadTable(t.Schema.Name, t.User)
}

func (t *Table) history() string {
	return core.HistoryTable(t.Schema.Name)
}

func (t *Table) fields() log.Fields {
	return log.Fields{"table": t.Schema.Name, "user": t.User, "head": t.ledger.Head}
}

// Staged returns the net rows the staged operations add and remove.
func (t *Table) Staged() (added, removed []core.RowID) {
	return t.ledger.DryResolve()
}

// Insert adds rows, given as text in schema order, to the workspace.
func (t *Table) Insert(rows [][]string) (core.RowRange, error) {
	unlock, err := t.lock()
	if err != nil {
		return core.RowRange{}, err
	}
	defer unlock()
	return t.insert(rows)
}

func (t *Table) insert(rows [][]string) (core.RowRange, error) {
	values, err := t.coerce(rows)
	if err != nil {
		return core.RowRange{}, err
	}
	rids, err := t.insertValues(values)
	if err != nil {
		return core.RowRange{}, err
	}
	t.ledger.StageInsert(rids)
	return rids, t.save()
}

// Delete removes every workspace row equal to one of rows and returns how
// many were removed.
func (t *Table) Delete(rows [][]string) (int, error) {
	unlock, err := t.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	groups, err := t.match(rows)
	if err != nil {
		return 0, err
	}
	var rids []core.RowID
	for _, group := range groups {
		rids = append(rids, group...)
	}
	if len(rids) == 0 {
		return 0, nil
	}
	if err := t.deleteRowIDs(rids); err != nil {
		return 0, err
	}
	return len(rids), t.save()
}

// Update replaces the rows equal to old[i] with updated[i]. Every old row must
// match at least one workspace row.
func (t *Table) Update(old, updated [][]string) (int, error) {
	if len(old) != len(updated) {
		return 0, fmt.Errorf("update has %d old rows and %d new rows", len(old), len(updated))
	}
	if len(old) == 0 {
		return 0, nil
	}
	unlock, err := t.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	groups, err := t.match(old)
	if err != nil {
		return 0, err
	}
	for i, group := range groups {
		if len(group) == 0 {
			return 0, fmt.Errorf("old row %d matches no row of %s", i+1, t.Schema.Name)
		}
	}
	values, err := t.coerce(updated)
	if err != nil {
		return 0, err
	}
	if err := t.replace(groups, values); err != nil {
		return 0, err
	}
	return len(old), t.save()
}

// Apply executes a mutation produced by the dialect translator and returns
// the number of rows it touched.
func (t *Table) Apply(intent sql.Intent) (int, error) {
	unlock, err := t.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	switch intent.Operation {
	case sql.InsertOperation:
		rows := intent.Data
		if len(intent.Columns) > 0 {
			if rows, err = t.Schema.Reorder(intent.Columns, rows); err != nil {
				return 0, err
			}
		}
		rids, err := t.insert(rows)
		return int(rids.Count), err

	case sql.DeleteOperation:
		rids, err := t.engine.RowIDs(t.head(), intent.Where)
		if err != nil {
			return 0, err
		}
		if len(rids) == 0 {
			return 0, nil
		}
		if err := t.deleteRowIDs(rids); err != nil {
			return 0, err
		}
		return len(rids), t.save()

	case sql.UpdateOperation:
		return t.applyUpdate(intent)
	}
	return 0, fmt.Errorf("unsupported intent %s", intent.Operation)
}

func (t *Table) applyUpdate(intent sql.Intent) (int, error) {
	type assignment struct {
		index int
		value any
	}
	assignments := make([]assignment, len(intent.Set))
	for i, set := range intent.Set {
		idx := t.Schema.ColumnIndex(set.Column)
		if idx < 0 {
			return 0, fmt.Errorf("column %s does not exist in %s", set.Column, t.Schema.Name)
		}
		single := core.Table{Columns: []core.Column{t.Schema.Columns[idx]}}
		coerced, err := single.Coerce([]string{set.Value})
		if err != nil {
			return 0, err
		}
		assignments[i] = assignment{index: idx, value: coerced[0]}
	}

	rows, err := t.engine.SelectRows(t.head(), intent.Where)
	if err != nil {
		return 0, err
	}
	if len(rows.Data) == 0 {
		return 0, nil
	}

	groups := make([][]core.RowID, len(rows.Data))
	values := make([][]any, len(rows.Data))
	for i, row := range rows.Data {
		rid, err := store.RowIDOf(row[0])
		if err != nil {
			return 0, err
		}
		groups[i] = []core.RowID{rid}
		values[i] = slices.Clone(row[1:])
		for _, a := range assignments {
			values[i][a.index] = a.value
		}
	}
	if err := t.replace(groups, values); err != nil {
		return 0, err
	}
	return len(rows.Data), t.save()
}

// replace deletes every group and inserts values[i] as the replacement of
// groups[i].
func (t *Table) replace(groups [][]core.RowID, values [][]any) error {
	var flat []core.RowID
	for _, group := range groups {
		flat = append(flat, group...)
	}
	if err := t.deleteRowIDs(flat); err != nil {
		return err
	}
	rids, err := t.insertValues(values)
	if err != nil {
		return err
	}
	t.ledger.StageInsert(rids)
	return t.ledger.StageUpdate(groups, rids)
}

func (t *Table) deleteRowIDs(rids []core.RowID) error {
	if err := t.engine.DeleteRows(t.head(), rids); err != nil {
		return err
	}
	t.ledger.StageDelete(rids)
	return nil
}

// insertValues writes rows under freshly allocated rids. The graph's
// high-water mark and the rows stored in the history and in every
// workspace bound the allocation, so a rid is never handed out twice.
func (t *Table) insertValues(values [][]any) (core.RowRange, error) {
	if len(values) == 0 {
		return core.RowRange{}, nil
	}
	tables := []string{t.history(), t.head()}
	for _, user := range t.graph.Users() {
		tables = append(tables, core.HeadTable(t.Schema.Name, user))
	}
	highest, err := t.engine.MaxRowID(tables...)
	if err != nil {
		return core.RowRange{}, err
	}

	rids := t.graph.ReserveRows(uint64(len(values)), highest)
	rows := make([][]any, len(values))
	for i, row := range values {
		rows[i] = append([]any{int64(rids.Start) + int64(i)}, row...)
	}
	columns := append([]string{core.RowIDColumn}, t.Schema.ColumnNames()...)
	if err := t.engine.InsertRows(t.head(), columns, rows); err != nil {
		return core.RowRange{}, err
	}
	return rids, nil
}

func (t *Table) coerce(rows [][]string) ([][]any, error) {
	values := make([][]any, len(rows))
	for i, row := range rows {
		coerced, err := t.Schema.Coerce(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		values[i] = coerced
	}
	return values, nil
}

// match returns, for each row, the rids of the workspace rows equal to
// it. A rid is attributed to the first row it matches only.
func (t *Table) match(rows [][]string) ([][]core.RowID, error) {
	wanted, err := t.coerce(rows)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(wanted))
	for i, row := range wanted {
		key := rowKey(row)
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}

	current, err := t.engine.SelectRows(t.head(), "")
	if err != nil {
		return nil, err
	}
	groups := make([][]core.RowID, len(rows))
	for _, row := range current.Data {
		i, ok := index[rowKey(row[1:])]
		if !ok {
			continue
		}
		rid, err := store.RowIDOf(row[0])
		if err != nil {
			return nil, err
		}
		groups[i] = append(groups[i], rid)
	}
	return groups, nil
}

// Commit records the staged changes as a new child of the head.
func (t *Table) Commit(message string, ts time.Time) (core.VersionID, error) {
	if ts.IsZero() {
		ts = t.now()
	}
	unlock, err := t.lock()
	if err != nil {
		return t.ledger.Head, err
	}
	defer unlock()

	if len(t.ledger.Staged) > 0 && t.ledger.IsEmpty() {
		if err := t.save(); err != nil {
			return t.ledger.Head, err
		}
	}
	if len(t.ledger.Staged) == 0 {
		return t.ledger.Head, core.ErrNoChanges.New(t.ledger.Head)
	}

	previous := t.ledger.Head
	added, _ := t.ledger.Resolve()
	if err := t.engine.CopyRows(t.head(), t.history(), added); err != nil {
		return previous, t.rollback(err)
	}
	version, err := t.graph.AddVersion(t.ledger, graph.CommitInfo{Message: message, Author: t.identity.String(), Timestamp: ts})
	if err != nil {
		return previous, t.rollback(err)
	}

	entry := LogEntry{Version: version.ID, Author: t.identity.String(), Date: ts, Message: message}
	err = t.flush(fmt.Sprintf("Commit version %d of %s", version.ID, t.Schema.Name), previous, func(txn *ps.TransactionBuilder) error {
		return stageLog(txn, t.persistence, t.Schema.Database, t.Schema.Name, entry)
	})
	if err != nil {
		return previous, t.rollback(err)
	}

	commitsTotal.WithLabelValues(t.Schema.Name).Inc()
	stagedRows.WithLabelValues(t.Schema.Name, t.User).Set(0)
	log.WithFields(t.fields()).WithFields(log.Fields{"version": version.ID, "rows": version.RowCount}).Info("committed version")
	return version.ID, nil
}

// Checkout replaces the workspace with the rows of version. Checking out
// the head discards the staged changes; any other version requires that
// there are none.
func (t *Table) Checkout(version core.VersionID) error {
	unlock, err := t.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := t.graph.Version(version); !ok {
		return core.ErrVersionNotFound.New(version)
	}

	previous := t.ledger
	if version == previous.Head {
		previous.Discard()
	} else if !previous.IsEmpty() {
		return core.ErrUncommittedChanges.New(t.Schema.Name)
	}

	next := previous
	if version != previous.Head {
		if next, err = t.ledgers.Open(t.Schema.Database, t.Schema.Name, t.User, version); err != nil {
			return err
		}
	}
	if err := t.engine.ReplaceWithVersion(t.head(), t.Schema.Name, version); err != nil {
		return err
	}
	if err := t.graph.SetHead(t.User, version); err != nil {
		return err
	}
	t.ledger = next

	err = t.flush(fmt.Sprintf("Checkout version %d of %s", version, t.Schema.Name), version, func(txn *ps.TransactionBuilder) error {
		if next == previous {
			return nil
		}
		return t.ledgers.Stage(txn, previous, previous.Head)
	})
	if err != nil {
		if restoreErr := t.engine.ReplaceWithVersion(t.head(), t.Schema.Name, previous.Head); restoreErr != nil {
			err = errors.Join(err, restoreErr)
		}
		return t.rollback(err)
	}

	checkoutsTotal.WithLabelValues(t.Schema.Name).Inc()
	stagedRows.WithLabelValues(t.Schema.Name, t.User).Set(0)
	log.WithFields(t.fields()).Info("checked out version")
	return nil
}

// Merge merges other into the head. Without a resolution, conflicts stop
// the merge and come back as a report; nothing changes. With one, every
// conflict it does not name keeps the report's recommendation.
func (t *Table) Merge(other core.VersionID, resolution merge.Resolution) (MergeResult, error) {
	unlock, err := t.lock()
	if err != nil {
		return MergeResult{}, err
	}
	defer unlock()

	engine := merge.NewEngine(t.graph, t.ledgers, historyRows{engine: t.engine, table: t.history()})
	previous := t.ledger.Head

	plan, err := engine.Plan(t.ledger, other, resolution)
	if err != nil {
		return MergeResult{}, err
	}
	if plan.Report != nil {
		conflictsTotal.WithLabelValues(t.Schema.Name).Add(float64(len(plan.Report.Conflicts)))
		mergesTotal.WithLabelValues(t.Schema.Name, "conflict").Inc()
		log.WithFields(t.fields()).WithFields(log.Fields{"other": other, "conflicts": len(plan.Report.Conflicts)}).Info("merge stopped on conflicts")
		return MergeResult{Version: previous, Base: plan.Base, Report: plan.Report}, nil
	}
	if plan.NoOp {
		mergesTotal.WithLabelValues(t.Schema.Name, "noop").Inc()
		return MergeResult{Version: previous, NoOp: true}, nil
	}

	ts := t.now()
	message := fmt.Sprintf("Merge version %d into %d", other, previous)
	outcome, err := engine.Apply(t.ledger, plan, graph.CommitInfo{Message: message, Author: t.identity.String(), Timestamp: ts})
	if err != nil {
		return MergeResult{}, t.rollback(err)
	}

	err = t.engine.Tx(func(tx *store.Engine) error {
		if err := tx.DeleteRows(t.head(), outcome.RemovedFromHead); err != nil {
			return err
		}
		return tx.CopyRows(t.history(), t.head(), outcome.AddedToHead)
	})
	if err != nil {
		return MergeResult{}, t.rollback(err)
	}

	entry := LogEntry{Version: outcome.Version, Author: t.identity.String(), Date: ts, Message: message}
	err = t.flush(fmt.Sprintf("Merge version %d of %s", outcome.Version, t.Schema.Name), previous, func(txn *ps.TransactionBuilder) error {
		return stageLog(txn, t.persistence, t.Schema.Database, t.Schema.Name, entry)
	})
	if err != nil {
		return MergeResult{}, t.rollback(err)
	}

	mergesTotal.WithLabelValues(t.Schema.Name, "merged").Inc()
	return MergeResult{Version: outcome.Version, Base: outcome.Base, Rows: len(outcome.Merged)}, nil
}

// Diff compares two versions row by row.
func (t *Table) Diff(from, to core.VersionID) (Diff, error) {
	unlock, err := t.lock()
	if err != nil {
		return Diff{}, err
	}
	defer unlock()

	a, err := t.graph.Members(from)
	if err != nil {
		return Diff{}, err
	}
	b, err := t.graph.Members(to)
	if err != nil {
		return Diff{}, err
	}

	diff := Diff{From: from, To: to, Columns: t.Schema.ColumnNames()}
	if diff.OnlyInFrom, err = t.historyRows(roaring64.AndNot(a, b)); err != nil {
		return Diff{}, err
	}
	if diff.OnlyInTo, err = t.historyRows(roaring64.AndNot(b, a)); err != nil {
		return Diff{}, err
	}
	return diff, nil
}

func (t *Table) historyRows(set *roaring64.Bitmap) ([][]any, error) {
	rids := graph.IDs(set)
	fetched, err := t.engine.FetchRows(t.history(), rids)
	if err != nil {
		return nil, err
	}
	rows := make([][]any, 0, len(rids))
	for _, rid := range rids {
		if row, ok := fetched[rid]; ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Rows returns the workspace rows matching where, without rids.
func (t *Table) Rows(where string) (store.Rows, error) {
	rows, err := t.engine.SelectRows(t.head(), where)
	if err != nil {
		return store.Rows{}, err
	}
	rows.Columns, rows.Data = sql.StripRowID(rows.Columns, rows.Data)
	return rows, nil
}

// Dump copies the workspace into a new plain table.
func (t *Table) Dump(name string) error {
	if err := t.engine.CreateTable(name, t.Schema, store.NoRowID); err != nil {
		return err
	}
	if err := t.engine.CopyTable(t.head(), name, t.Schema.ColumnNames(), false); err != nil {
		t.engine.DropTable(name)
		return err
	}
	log.WithFields(t.fields()).WithField("target", name).Info("dumped workspace")
	return nil
}

// Log returns the table's commits, newest first.
func (t *Table) Log() ([]LogEntry, error) {
	return readLog(t.persistence, t.Schema.Database, t.Schema.Name)
}

// Remove takes the table out of version control, dropping its history
// and every workspace. With keepCurrent the workspace survives as a plain
// table under the versioned table's name.
func (t *Table) Remove(keepCurrent bool) error {
	unlock, err := t.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if keepCurrent {
		if err := t.Dump(t.Schema.Name); err != nil {
			return err
		}
	}

	users := append(t.graph.Users(), t.User)
	for _, user := range users {
		if err := t.engine.DropTable(core.HeadTable(t.Schema.Name, user)); err != nil {
			return err
		}
	}
	if err := t.graph.Drop(); err != nil {
		return err
	}
	if err := t.engine.DropTable(t.history()); err != nil {
		return err
	}

	if _, err := t.persistence.Delete([]string{ps.TableDir(t.Schema.Database, t.Schema.Name)}, t.identity, fmt.Sprintf("Remove table %s", t.Schema.Name)); err != nil {
		return err
	}
	for _, user := range users {
		stagedRows.DeleteLabelValues(t.Schema.Name, user)
	}
	log.WithFields(t.fields()).WithField("keep", keepCurrent).Info("removed versioned table")
	return nil
}

// save writes the ledger and the graph's rid mark in their own metadata
// commit.
func (t *Table) save() error {
	added, removed := t.ledger.DryResolve()
	stagedRows.WithLabelValues(t.Schema.Name, t.User).Set(float64(len(added) + len(removed)))
	return t.flush(fmt.Sprintf("Stage changes of %s on %s", t.User, t.Schema.Name), t.ledger.Head, nil)
}

// flush writes the graph and the ledger, plus whatever extra stages, in
// one metadata commit. previous is the head the ledger was stored under.
func (t *Table) flush(message string, previous core.VersionID, extra func(txn *ps.TransactionBuilder) error) error {
	txn, err := t.persistence.BeginTransaction()
	if err != nil {
		return err
	}
	if err := t.graph.Stage(txn); err != nil {
		txn.Rollback()
		return err
	}
	if err := t.ledgers.Stage(txn, t.ledger, previous); err != nil {
		txn.Rollback()
		return err
	}
	if extra != nil {
		if err := extra(txn); err != nil {
			txn.Rollback()
			return err
		}
	}
	_, err = txn.Commit(t.identity, message)
	return err
}

// rollback restores the graph and the ledger from the metadata repository
// after a failed mutation and returns err.
func (t *Table) rollback(err error) error {
	log.WithFields(t.fields()).WithError(err).Warn("reverting table state")

	g, loadErr := graph.Load(t.persistence, t.Schema.Database, t.Schema.Name, t.engine.Membership(t.Schema.Name))
	if loadErr != nil {
		return errors.Join(err, loadErr)
	}
	ledger, loadErr := t.ledgers.Open(t.Schema.Database, t.Schema.Name, t.User, g.Head(t.User))
	if loadErr != nil {
		return errors.Join(err, loadErr)
	}
	t.graph, t.ledger = g, ledger
	return err
}

// historyRows serves merge reports from the history table.
type historyRows struct {
	engine *store.Engine
	table  string
}

func (h historyRows) FetchRows(rids []core.RowID) (map[core.RowID][]any, error) {
	return h.engine.FetchRows(h.table, rids)
}
