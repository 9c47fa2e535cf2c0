// Package core provides the types shared by every orpheusplus package.
//
// Row identifiers (RowID) are allocated once per logical row and never
// reused; versions (VersionID) count up from the empty root version 0.
//
// # Row sets
//
// Sets of row ids travel between components as ordered runs:
//
//	runs := core.Compress([]core.RowID{7, 1, 2, 3, 9})
//	// [{1 3} {7 1} {9 1}]
//	rids := core.Decompress(runs)
//	// [1 2 3 7 9]
//
// # Physical tables
//
// A versioned table "t" owned by user "alice" lives in three physical
// tables:
//
//	t_orpheusplus              every row ever committed, keyed by rid
//	t_orpheusplus_head_alice   alice's working copy
//	t_orpheusplus_version      (version, rid) membership index
//
// # Table Definition
//
//	table := core.Table{
//	    Database: "company",
//	    Name:     "employee",
//	    Columns: []core.Column{
//	        {Name: "employee_id", Type: core.IntType},
//	        {Name: "age", Type: core.IntType},
//	        {Name: "salary", Type: core.IntType},
//	    },
//	}
package core
