// Package sql translates the versioned SQL dialect into plain SQL.
//
// The dialect adds one table reference form to ordinary SQL:
//
//	VTABLE name                   the caller's working copy of name
//	VTABLE name OF VERSION n      the rows of committed version n
//
// # Queries
//
// SELECT statements are rewritten into a query against the physical
// tables and can be run as is:
//
//	tr, err := sql.Translate("SELECT * FROM VTABLE employee OF VERSION 2 WHERE age > 30", "alice")
//	// tr.Query:
//	// SELECT * FROM employee_orpheusplus WHERE rid IN
//	//   (SELECT rid FROM employee_orpheusplus_version WHERE version = 2) AND age > 30
//
// # Mutations
//
// INSERT, DELETE and UPDATE on a VTABLE produce an Intent instead of SQL,
// which the table executes so that row ids and the staged-change ledger
// stay consistent:
//
//	tr, err := sql.Translate("UPDATE VTABLE employee SET age = 31 WHERE name = 'bob'", "alice")
//	// tr.Intent: {Table: employee, Operation: update, Set: [{age 31}], Where: "name = 'bob'"}
//
// Statements without VTABLE pass through unchanged. Dialect violations
// return core.ErrDialectSyntax.
package sql
