package merge

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/google/uuid"
	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/graph"
	"github.com/nickyhof/orpheusplus/op"
	log "github.com/sirupsen/logrus"
)

// Side names a branch of a merge.
type Side string

const (
	Head  Side = "head"
	Other Side = "other"
)

// ParseSide accepts the names written in conflict reports.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Head, Other:
		return Side(s), nil
	}
	return "", fmt.Errorf("unknown merge side %q", s)
}

// Resolution picks the branch whose terminal state is kept for each
// conflicting row.
type Resolution map[core.RowID]Side

// Conflict is a row both branches changed into different terminal states.
// Rows are nil when that branch deleted the row.
type Conflict struct {
	RowID    core.RowID
	Head     op.Change
	Other    op.Change
	HeadRow  []any
	OtherRow []any
	Keep     Side
}

// Report is returned instead of a new version when conflicts need a
// resolution.
type Report struct {
	ID        string
	Base      core.VersionID
	Head      core.VersionID
	Other     core.VersionID
	Conflicts []Conflict
}

// Defaults returns the recommended resolution of the report.
func (r *Report) Defaults() Resolution {
	res := make(Resolution, len(r.Conflicts))
	for _, c := range r.Conflicts {
		res[c.RowID] = c.Keep
	}
	return res
}

// Outcome describes a merge. Report is set when the merge stopped on
// conflicts; otherwise Version is the new version, or the head itself when
// other was already merged.
type Outcome struct {
	Report  *Report
	Version core.VersionID
	NoOp    bool
	Base    core.VersionID
	Other   core.VersionID

	Merged []core.RowID

	// AddedToHead and RemovedFromHead turn the head's rows into Merged.
	AddedToHead     []core.RowID
	RemovedFromHead []core.RowID

	// AddedToOther and RemovedFromOther turn other's rows into Merged.
	AddedToOther     []core.RowID
	RemovedFromOther []core.RowID

	// HeadMapping and OtherMapping send a removed row to the added row
	// that replaces it on that side.
	HeadMapping  map[core.RowID]core.RowID
	OtherMapping map[core.RowID]core.RowID
}

// Segments returns the operations recorded for the parent edge between two
// versions. op.Store satisfies it.
type Segments interface {
	Segment(database, table string, parent, child core.VersionID) ([]op.Operation, error)
}

// Rows fetches stored row values by rid.
type Rows interface {
	FetchRows(rids []core.RowID) (map[core.RowID][]any, error)
}

// Engine merges versions of one table.
type Engine struct {
	Graph    *graph.Graph
	Segments Segments
	Rows     Rows
}

func NewEngine(g *graph.Graph, segments Segments, rows Rows) *Engine {
	return &Engine{Graph: g, Segments: segments, Rows: rows}
}

// Merge merges other into the ledger's head. Without a resolution, a merge
// with conflicts returns a report and changes nothing. With one, every
// conflict not named in it keeps its recommended side.
func (e *Engine) Merge(ledger *op.Ledger, other core.VersionID, resolution Resolution, info graph.CommitInfo) (Outcome, error) {
	plan, err := e.Plan(ledger, other, resolution)
	if err != nil || plan.Report != nil || plan.NoOp {
		return plan, err
	}
	return e.Apply(ledger, plan, info)
}

// Plan computes a merge without changing the graph or the ledger.
func (e *Engine) Plan(ledger *op.Ledger, other core.VersionID, resolution Resolution) (Outcome, error) {
	if !clean(ledger) {
		return Outcome{}, core.ErrUncommittedChanges.New(ledger.Table)
	}
	head := ledger.Head
	if _, ok := e.Graph.Version(other); !ok {
		return Outcome{}, core.ErrVersionNotFound.New(other)
	}

	if e.Graph.IsAncestor(other, head) {
		log.WithFields(log.Fields{"table": ledger.Table, "head": head, "other": other}).Debug("merge target already merged")
		return Outcome{Version: head, NoOp: true, Other: other}, nil
	}

	base, err := e.Graph.LowestCommonAncestor(head, other)
	if err != nil {
		return Outcome{}, err
	}

	headChanges, err := e.changes(ledger.Database, ledger.Table, base, head)
	if err != nil {
		return Outcome{}, err
	}
	otherChanges, err := e.changes(ledger.Database, ledger.Table, base, other)
	if err != nil {
		return Outcome{}, err
	}

	conflicts := op.FindConflicts(headChanges, otherChanges)
	if len(conflicts) > 0 && resolution == nil {
		report, err := e.report(base, head, other, conflicts)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Report: report, Base: base, Other: other}, nil
	}

	headMembers, err := e.Graph.Members(head)
	if err != nil {
		return Outcome{}, err
	}
	otherMembers, err := e.Graph.Members(other)
	if err != nil {
		return Outcome{}, err
	}

	// headTerminal holds the state each head row ends in when the merge
	// removes it, otherTerminal the same for rows of other.
	headTerminal := maps.Clone(otherChanges)
	otherTerminal := maps.Clone(headChanges)

	merged := roaring64.Or(headMembers, otherMembers)
	for rid := range headChanges {
		merged.Remove(uint64(rid))
	}
	for rid := range otherChanges {
		merged.Remove(uint64(rid))
	}
	for rid, pair := range conflicts {
		keep, ok := resolution[rid]
		if !ok {
			keep = recommend(pair)
		}
		kept, dropped := pair.A, pair.B
		if keep == Other {
			kept, dropped = pair.B, pair.A
		}
		if dropped.Replacement != nil {
			merged.Remove(uint64(*dropped.Replacement))
			if keep == Other {
				headTerminal[*dropped.Replacement] = kept
			} else {
				otherTerminal[*dropped.Replacement] = kept
			}
		}
		if kept.Replacement != nil {
			merged.Add(uint64(*kept.Replacement))
		}
	}

	addedToHead := roaring64.AndNot(merged, headMembers)
	removedFromHead := graph.IDs(roaring64.AndNot(headMembers, merged))
	addedToOther := roaring64.AndNot(merged, otherMembers)
	removedFromOther := graph.IDs(roaring64.AndNot(otherMembers, merged))

	return Outcome{
		Version:          head,
		Base:             base,
		Other:            other,
		Merged:           graph.IDs(merged),
		AddedToHead:      graph.IDs(addedToHead),
		RemovedFromHead:  removedFromHead,
		AddedToOther:     graph.IDs(addedToOther),
		RemovedFromOther: removedFromOther,
		HeadMapping:      replacements(removedFromHead, headTerminal, addedToHead),
		OtherMapping:     replacements(removedFromOther, otherTerminal, addedToOther),
	}, nil
}

// clean reports whether the ledger's staged operations cancel out,
// without draining them.
func clean(ledger *op.Ledger) bool {
	added, removed := ledger.DryResolve()
	return len(added) == 0 && len(removed) == 0
}

// replacements maps each removed row whose terminal state is a
// replacement the merge adds to that replacement.
func replacements(removed []core.RowID, terminal op.ChangeMap, added *roaring64.Bitmap) map[core.RowID]core.RowID {
	mapping := make(map[core.RowID]core.RowID)
	for _, rid := range removed {
		c, ok := terminal[rid]
		if ok && c.Replacement != nil && added.Contains(uint64(*c.Replacement)) {
			mapping[rid] = *c.Replacement
		}
	}
	return mapping
}

// stageChanges stages the rows that turn one side into the merged set.
// Rows replaced by a row the merge adds are staged as updates, so later
// merges read them as replacements rather than deletes.
func stageChanges(ledger *op.Ledger, removed, added []core.RowID, mapping map[core.RowID]core.RowID) error {
	groups := make(map[core.RowID][]core.RowID)
	var deleted []core.RowID
	for _, rid := range removed {
		if replacement, ok := mapping[rid]; ok {
			groups[replacement] = append(groups[replacement], rid)
		} else {
			deleted = append(deleted, rid)
		}
	}

	for _, replacement := range slices.Sorted(maps.Keys(groups)) {
		rows := core.RowRange{Start: replacement, Count: 1}
		ledger.StageDelete(groups[replacement])
		ledger.StageInsert(rows)
		if err := ledger.StageUpdate([][]core.RowID{groups[replacement]}, rows); err != nil {
			return err
		}
	}
	ledger.StageDelete(deleted)

	var inserted []core.RowID
	for _, rid := range added {
		if _, ok := groups[rid]; !ok {
			inserted = append(inserted, rid)
		}
	}
	for _, run := range core.Compress(inserted) {
		ledger.StageInsert(core.RowRange{Start: run.Start, Count: run.Length})
	}
	return nil
}

// Apply commits a plan as a child of the head with a merge edge from
// other, and moves the ledger onto it.
func (e *Engine) Apply(ledger *op.Ledger, plan Outcome, info graph.CommitInfo) (Outcome, error) {
	if plan.Report != nil || plan.NoOp {
		return plan, core.ErrInvariant.New("merge plan is not applicable")
	}
	if plan.Version != ledger.Head {
		return plan, core.ErrInvariant.New(fmt.Sprintf("merge planned on version %d but head is %d", plan.Version, ledger.Head))
	}

	if !clean(ledger) {
		return plan, core.ErrUncommittedChanges.New(ledger.Table)
	}
	ledger.Discard()
	if err := stageChanges(ledger, plan.RemovedFromHead, plan.AddedToHead, plan.HeadMapping); err != nil {
		return plan, err
	}
	ledger.Resolve()

	version, err := e.Graph.AddVersion(ledger, info)
	if err != nil {
		return plan, err
	}

	overlap := int64(len(plan.Merged) - len(plan.AddedToOther))
	if err := e.Graph.MergeEdge(plan.Other, version.ID, overlap, plan.AddedToOther, plan.RemovedFromOther, plan.OtherMapping); err != nil {
		return plan, err
	}

	log.WithFields(log.Fields{
		"table":   ledger.Table,
		"version": version.ID,
		"base":    plan.Base,
		"rows":    len(plan.Merged),
	}).Info("merged versions")

	plan.Version = version.ID
	return plan, nil
}

// recommend picks the branch whose last change is newer. Equal times keep
// the head.
func recommend(pair op.ConflictPair) Side {
	if pair.B.Timestamp.After(pair.A.Timestamp) {
		return Other
	}
	return Head
}

func (e *Engine) report(base, head, other core.VersionID, conflicts op.Conflicts) (*Report, error) {
	report := &Report{
		ID:    uuid.NewString(),
		Base:  base,
		Head:  head,
		Other: other,
	}

	var fetch []core.RowID
	for rid, pair := range conflicts {
		for _, c := range []op.Change{pair.A, pair.B} {
			if c.Replacement != nil {
				fetch = append(fetch, *c.Replacement)
			}
		}
		report.Conflicts = append(report.Conflicts, Conflict{
			RowID: rid,
			Head:  pair.A,
			Other: pair.B,
			Keep:  recommend(pair),
		})
	}
	slices.SortFunc(report.Conflicts, func(a, b Conflict) int {
		switch {
		case a.RowID < b.RowID:
			return -1
		case a.RowID > b.RowID:
			return 1
		}
		return 0
	})

	if e.Rows != nil && len(fetch) > 0 {
		rows, err := e.Rows.FetchRows(fetch)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch conflicting rows: %w", err)
		}
		for i := range report.Conflicts {
			c := &report.Conflicts[i]
			if c.Head.Replacement != nil {
				c.HeadRow = rows[*c.Head.Replacement]
			}
			if c.Other.Replacement != nil {
				c.OtherRow = rows[*c.Other.Replacement]
			}
		}
	}
	return report, nil
}

// changes collapses every operation between base and target into the
// terminal state of each changed row.
func (e *Engine) changes(database, table string, base, target core.VersionID) (op.ChangeMap, error) {
	path, err := e.Graph.Path(base, target)
	if err != nil {
		return nil, err
	}

	var ops []op.Operation
	for i := 1; i < len(path); i++ {
		from, to := path[i-1], path[i]
		edge, ok := e.Graph.Step(from, to)
		if !ok {
			return nil, core.ErrInvariant.New(fmt.Sprintf("no edge from version %d to %d", from, to))
		}
		if edge.Merge {
			ops = append(ops, edgeOperations(edge, e.timestamp(to))...)
			continue
		}
		segment, err := e.Segments.Segment(database, table, from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to read history of version %d: %w", to, err)
		}
		ops = append(ops, segment...)
	}
	return op.ResolveTransitive(op.BuildChangeMap(ops))
}

func (e *Engine) timestamp(version core.VersionID) time.Time {
	v, _ := e.Graph.Version(version)
	return v.Timestamp
}

// edgeOperations replays the change set recorded on a merge edge. Removed
// rows with a recorded replacement come back as one update.
func edgeOperations(edge graph.Edge, ts time.Time) []op.Operation {
	var ops []op.Operation
	deletes := make([]op.Delete, 0, len(edge.Removed))
	for _, run := range edge.Removed {
		deletes = append(deletes, op.Delete{Start: run.Start, Count: run.Length, Timestamp: ts})
	}
	if len(edge.Mapping) > 0 {
		ops = append(ops, op.Update{Deletes: deletes, Mapping: edge.Mapping, Timestamp: ts})
	} else {
		for _, d := range deletes {
			ops = append(ops, d)
		}
	}
	for _, run := range edge.Added {
		ops = append(ops, op.Insert{Start: run.Start, Count: run.Length, Timestamp: ts})
	}
	return ops
}
