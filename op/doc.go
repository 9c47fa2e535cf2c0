// Package op implements the operation ledger: the staged changes of one
// workspace and the history of every operation it has committed.
//
// A workspace is identified by (database, table, user) and sits on a head
// version. Inserts, deletes and updates are staged as row id operations:
//
//	ledger := op.New("company", "employee", "alice", 0)
//	ledger.StageInsert(core.RowRange{Start: 1, Count: 3})
//	ledger.StageDelete([]core.RowID{2})
//	added, removed := ledger.Resolve() // [1 3], []
//
// Resolve moves the staged operations into History; Commit closes the
// batch with a marker naming the new version:
//
//	ledger.Commit(1, "initial load", time.Now())
//
// The merge engine walks History between markers with ChangesSince and
// folds the result with BuildChangeMap, ResolveTransitive and FindConflicts.
//
// # Architecture
//
//	Dialect translator (sql/)
//	     ↓
//	Table facade (db/)
//	     ↓
//	Ledger (op/)  Version graph (graph/)  Merge (merge/)
//	     ↓
//	Metadata repository (ps/)
package op
