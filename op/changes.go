package op

import (
	"fmt"
	"time"

	"github.com/nickyhof/orpheusplus/core"
)

// Change is the state a row ended in on one branch. A nil Replacement
// means the row was deleted.
type Change struct {
	Replacement *core.RowID
	Timestamp   time.Time
}

func Deleted(ts time.Time) Change {
	return Change{Timestamp: ts}
}

func Replaced(rid core.RowID, ts time.Time) Change {
	return Change{Replacement: &rid, Timestamp: ts}
}

// IsDelete reports whether the row was removed without replacement.
func (c Change) IsDelete() bool {
	return c.Replacement == nil
}

// Same reports whether two changes end in the same state.
func (c Change) Same(other Change) bool {
	if c.Replacement == nil || other.Replacement == nil {
		return c.Replacement == nil && other.Replacement == nil
	}
	return *c.Replacement == *other.Replacement
}

func (c Change) String() string {
	if c.Replacement == nil {
		return "deleted"
	}
	return fmt.Sprintf("replaced by %d", *c.Replacement)
}

// ChangeMap holds the final state of every row a sequence of operations
// touched. Inserts of new rows are not changes to existing rows and do not
// appear.
type ChangeMap map[core.RowID]Change

// ConflictPair holds the terminal state of a row on each branch.
type ConflictPair struct {
	A Change
	B Change
}

type Conflicts map[core.RowID]ConflictPair

// BuildChangeMap collapses ops into the last change of every row. A rid
// inserted after its change was recorded is live again, so the change is
// dropped.
func BuildChangeMap(ops []Operation) ChangeMap {
	changes := make(ChangeMap)
	for _, o := range ops {
		switch o := o.(type) {
		case Insert:
			for _, rid := range o.Rows().IDs() {
				delete(changes, rid)
			}
		case Delete:
			for _, rid := range core.Decompress([]core.Run{o.Run()}) {
				changes[rid] = Deleted(o.Timestamp)
			}
		case Update:
			for _, d := range o.Deletes {
				for _, rid := range core.Decompress([]core.Run{d.Run()}) {
					if replacement, ok := o.Mapping[rid]; ok {
						changes[rid] = Replaced(replacement, o.Timestamp)
					} else {
						changes[rid] = Deleted(o.Timestamp)
					}
				}
			}
			for _, rid := range o.Insert.Rows().IDs() {
				delete(changes, rid)
			}
		case Commit:
		}
	}
	return changes
}

// ResolveTransitive follows replacement chains to their last link, so a
// row replaced by a row that was later deleted reads as deleted. The
// timestamp of the last link is kept. A chain that revisits a row is an
// invariant violation.
func ResolveTransitive(changes ChangeMap) (ChangeMap, error) {
	resolved := make(ChangeMap, len(changes))
	for rid, change := range changes {
		terminal := change
		seen := map[core.RowID]bool{rid: true}
		for terminal.Replacement != nil {
			next, ok := changes[*terminal.Replacement]
			if !ok {
				break
			}
			if seen[*terminal.Replacement] {
				return nil, core.ErrInvariant.New(fmt.Sprintf("replacement chain of row %d does not terminate", rid))
			}
			seen[*terminal.Replacement] = true
			terminal = next
		}
		resolved[rid] = terminal
	}
	return resolved, nil
}

// FindConflicts reports the rows changed on both branches whose terminal
// states differ.
func FindConflicts(a, b ChangeMap) Conflicts {
	conflicts := make(Conflicts)
	for rid, changeA := range a {
		changeB, ok := b[rid]
		if !ok || changeA.Same(changeB) {
			continue
		}
		conflicts[rid] = ConflictPair{A: changeA, B: changeB}
	}
	return conflicts
}
