// Package orpheusplus puts relational tables under version control.
//
// Every committed version of a table is recorded as a set of row ids.
// Rows live once in a history table, a membership table maps versions to
// the rows they hold, and each user edits a private workspace table.
// Changes are staged in an operation ledger and committed as a new node of
// the table's version graph. Versions can be checked out, diffed and
// merged; merges report conflicting rows and take a resolution.
//
// # Quick Start
//
// Open an in-memory instance:
//
//	engine, _ := store.Open("duckdb", "")
//	persistence, _ := ps.NewMemoryPersistence()
//	instance := orpheusplus.Open(persistence, engine, "company")
//	e := instance.Engine(core.Identity{Name: "alice", Email: "alice@example.com"})
//
//	e.Init("employee", []core.Column{{Name: "id", Type: core.IntType}, {Name: "name", Type: core.TextType}})
//	e.Execute("INSERT INTO VTABLE employee VALUES (1, 'Ann')")
//	e.Execute("COMMIT VTABLE employee 'first'")
//
//	result, _ := e.Execute("SELECT * FROM VTABLE employee OF VERSION 1")
//	result.Display(os.Stdout)
//
// # Dialect
//
// Statements may name a versioned table with VTABLE:
//   - SELECT ... FROM VTABLE t reads the caller's workspace
//   - SELECT ... FROM VTABLE t OF VERSION n reads a committed version
//   - INSERT, UPDATE and DELETE on VTABLE t stage changes in the ledger
//   - COMMIT, CHECKOUT, MERGE, DIFF and LOG act on the version graph
//
// Statements without VTABLE run on the physical engine unchanged.
package orpheusplus
