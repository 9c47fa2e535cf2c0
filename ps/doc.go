// Package ps is the metadata repository of orpheusplus.
//
// Version graphs, workspace ledgers, schemas, commit logs and groups are
// stored as files in a Git repository managed with go-git. Every write is
// a Git commit built directly from blobs and trees, so a set of files
// written together becomes visible atomically.
//
// # Memory Persistence
//
// For testing or ephemeral use:
//
//	persistence, err := ps.NewMemoryPersistence()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Persistence
//
//	persistence, err := ps.NewFilePersistence("/var/lib/orpheusplus", nil)
//
// # Atomic writes
//
// Several files are written in one commit with a TransactionBuilder:
//
//	txn, _ := persistence.BeginTransaction()
//	txn.AddWrite(ps.GraphPath("company", "employee"), graphJSON)
//	txn.AddDelete(ps.LedgerPath("company", "employee", "alice", 1))
//	txn.AddWrite(ps.LedgerPath("company", "employee", "alice", 2), ledgerJSON)
//	result, _ := txn.Commit(identity, "commit employee version 2")
//
// # Layout
//
//	<db>/<table>/schema.json
//	<db>/<table>/graph.json
//	<db>/<table>/log
//	<db>/<table>/ledger/<user>/<head>.json
//	<db>/groups/<group>.json
package ps
