package op

import (
	"fmt"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/nickyhof/orpheusplus/core"
)

// Ledger is the staged-change log of one workspace.
type Ledger struct {
	Database string
	Table    string
	User     string
	Head     core.VersionID

	// Staged holds operations not yet resolved, oldest first.
	Staged []Operation

	// History holds every resolved operation and commit marker, oldest
	// first. It always starts with the marker of a version.
	History []Operation

	added   []core.RowID
	removed []core.RowID

	now func() time.Time
}

// New returns an empty ledger whose history starts at head.
func New(database, table, user string, head core.VersionID) *Ledger {
	return &Ledger{
		Database: database,
		Table:    table,
		User:     user,
		Head:     head,
		now:      time.Now,
	}
}

// Seed replaces the history with a lineage that ends with the marker of the
// ledger's head.
func (l *Ledger) Seed(lineage []Operation) error {
	if len(lineage) == 0 {
		l.History = []Operation{Commit{Version: l.Head, Timestamp: l.now()}}
		return nil
	}
	last, ok := lineage[len(lineage)-1].(Commit)
	if !ok || last.Version != l.Head {
		return core.ErrInvariant.New(fmt.Sprintf("lineage of %s does not end at version %d", l.Table, l.Head))
	}
	l.History = slices.Clone(lineage)
	return nil
}

func (l *Ledger) StageInsert(rows core.RowRange) {
	if rows.Count == 0 {
		return
	}
	l.Staged = append(l.Staged, Insert{Start: rows.Start, Count: rows.Count, Timestamp: l.now()})
}

// StageDelete stages one Delete per run of rids.
func (l *Ledger) StageDelete(rids []core.RowID) {
	ts := l.now()
	for _, run := range core.Compress(rids) {
		l.Staged = append(l.Staged, Delete{Start: run.Start, Count: run.Length, Timestamp: ts})
	}
}

// StageUpdate folds the deletes and the insert staged just before it into a
// single Update. deleted[i] holds the rids replaced by inserted.Start+i.
func (l *Ledger) StageUpdate(deleted [][]core.RowID, inserted core.RowRange) error {
	if uint64(len(deleted)) != inserted.Count || inserted.Count == 0 {
		return core.ErrInvalidSequence.New(fmt.Sprintf("%d deleted group(s) for %d inserted row(s)", len(deleted), inserted.Count))
	}

	var flat []core.RowID
	for _, group := range deleted {
		flat = append(flat, group...)
	}
	runs := core.Compress(flat)
	if len(runs) == 0 {
		return core.ErrInvalidSequence.New("update without deleted rows")
	}

	n := len(l.Staged)
	if n < len(runs)+1 {
		return core.ErrInvalidSequence.New("update must follow a delete and an insert")
	}

	insert, ok := l.Staged[n-1].(Insert)
	if !ok || insert.Rows() != inserted {
		return core.ErrInvalidSequence.New("update must directly follow the insert of its new rows")
	}

	tail := l.Staged[n-1-len(runs) : n-1]
	deletes := make([]Delete, len(tail))
	for i, o := range tail {
		d, ok := o.(Delete)
		if !ok || d.Run() != runs[i] {
			return core.ErrInvalidSequence.New("update must follow the delete of its old rows")
		}
		deletes[i] = d
	}

	mapping := make(map[core.RowID]core.RowID, len(flat))
	for i, group := range deleted {
		for _, rid := range group {
			mapping[rid] = inserted.Start + core.RowID(i)
		}
	}

	l.Staged = append(l.Staged[:n-1-len(runs)], Update{
		Deletes:   deletes,
		Insert:    insert,
		Mapping:   mapping,
		Timestamp: l.now(),
	})
	return nil
}

// Resolve replays the staged operations and returns the net added and
// removed rids. The staged operations move into History.
func (l *Ledger) Resolve() (added, removed []core.RowID) {
	added, removed = resolve(l.Staged)
	l.History = append(l.History, l.Staged...)
	l.Staged = nil
	l.added, l.removed = added, removed
	return added, removed
}

// DryResolve computes what Resolve would return without touching the queue.
func (l *Ledger) DryResolve() (added, removed []core.RowID) {
	return resolve(l.Staged)
}

// IsEmpty reports whether the staged operations cancel out. An empty queue
// is drained.
func (l *Ledger) IsEmpty() bool {
	added, removed := l.DryResolve()
	if len(added) > 0 || len(removed) > 0 {
		return false
	}
	l.Staged = nil
	return true
}

// Discard drops the staged operations without recording them.
func (l *Ledger) Discard() {
	l.Staged = nil
}

// Added returns the rids added by the last Resolve.
func (l *Ledger) Added() []core.RowID {
	return l.added
}

// Removed returns the rids removed by the last Resolve.
func (l *Ledger) Removed() []core.RowID {
	return l.removed
}

// Commit closes the resolved operations with a marker for child and moves
// the ledger onto it.
func (l *Ledger) Commit(child core.VersionID, message string, ts time.Time) {
	l.added, l.removed = nil, nil
	l.History = append(l.History, Commit{Version: child, Message: message, Timestamp: ts})
	l.Head = child
}

// ChangesSince returns the operations after the marker of ancestor, up to
// and including the next marker.
func (l *Ledger) ChangesSince(ancestor core.VersionID) ([]Operation, error) {
	return changesSince(l.History, ancestor)
}

func changesSince(history []Operation, ancestor core.VersionID) ([]Operation, error) {
	start := markerIndex(history, ancestor)
	if start < 0 {
		return nil, core.ErrVersionNotFound.New(ancestor)
	}

	var ops []Operation
	for _, o := range history[start+1:] {
		ops = append(ops, o)
		if _, ok := o.(Commit); ok {
			break
		}
	}
	return ops, nil
}

// Lineage returns the history up to and including the marker of version.
func (l *Ledger) Lineage(version core.VersionID) ([]Operation, bool) {
	idx := markerIndex(l.History, version)
	if idx < 0 {
		return nil, false
	}
	return slices.Clone(l.History[:idx+1]), true
}

// Contains reports whether version was committed in this ledger's lineage.
func (l *Ledger) Contains(version core.VersionID) bool {
	return markerIndex(l.History, version) >= 0
}

func markerIndex(history []Operation, version core.VersionID) int {
	for i, o := range history {
		if c, ok := o.(Commit); ok && c.Version == version {
			return i
		}
	}
	return -1
}

func resolve(staged []Operation) (added, removed []core.RowID) {
	adds := make(map[core.RowID]int)
	removes := make(map[core.RowID]int)

	for _, o := range staged {
		switch o := o.(type) {
		case Insert:
			for _, rid := range o.Rows().IDs() {
				adds[rid]++
			}
		case Delete:
			for _, rid := range core.Decompress([]core.Run{o.Run()}) {
				removes[rid]++
			}
		case Update:
			for _, d := range o.Deletes {
				for _, rid := range core.Decompress([]core.Run{d.Run()}) {
					removes[rid]++
				}
			}
			for _, rid := range o.Insert.Rows().IDs() {
				adds[rid]++
			}
		case Commit:
		}
	}

	addSet := mapset.NewThreadUnsafeSet[core.RowID]()
	removeSet := mapset.NewThreadUnsafeSet[core.RowID]()
	for rid, n := range adds {
		if n > removes[rid] {
			addSet.Add(rid)
		}
	}
	for rid, n := range removes {
		if n > adds[rid] {
			removeSet.Add(rid)
		}
	}
	return sortedIDs(addSet), sortedIDs(removeSet)
}

func sortedIDs(set mapset.Set[core.RowID]) []core.RowID {
	ids := set.ToSlice()
	slices.Sort(ids)
	return ids
}
