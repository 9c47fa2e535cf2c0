// Package db runs the versioned SQL dialect against a storage engine.
//
// A Table is the handle of one versioned table for one user. It owns the
// user's working copy, the operation ledger of uncommitted changes and the
// version graph, and implements commit, checkout, merge and diff on top of
// the store and ps packages.
//
// The Engine executes statements for an identity:
//
//	engine := db.NewEngine(persistence, storage, identity, "main")
//	if _, err := engine.Init("employee", columns); err != nil {
//	    return err
//	}
//	result, err := engine.Execute("INSERT INTO VTABLE employee VALUES (1, 'ann', 30)")
//	result, err = engine.Execute("COMMIT VTABLE employee 'first hire'")
//	result, err = engine.Execute("SELECT * FROM VTABLE employee OF VERSION 1")
//	result.Display(os.Stdout)
//
// # Results
//
//   - QueryResult is returned by SELECT, LOG, DIFF and a conflicting MERGE
//   - CommitResult is returned by mutations and the other commands
//
// # Groups
//
// A Group commits and checks out several tables together and keeps its own
// version numbers, each mapping to one version per member table.
package db
