package ps

import (
	"fmt"

	"github.com/nickyhof/orpheusplus/core"
)

type OperationType int

const (
	WriteOp OperationType = iota
	DeleteOp
)

// Operation is a single file change in a transaction.
type Operation struct {
	Type OperationType
	Path string
	Data []byte
}

// TransactionBuilder batches file changes into a single commit.
type TransactionBuilder struct {
	persistence *Persistence
	operations  []Operation
	started     bool
}

func (p *Persistence) BeginTransaction() (*TransactionBuilder, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}

	return &TransactionBuilder{
		persistence: p,
		started:     true,
	}, nil
}

func (tb *TransactionBuilder) AddWrite(filePath string, data []byte) error {
	if !tb.started {
		return fmt.Errorf("transaction not started")
	}
	tb.operations = append(tb.operations, Operation{Type: WriteOp, Path: filePath, Data: data})
	return nil
}

// AddDelete removes a file, or a directory with everything below it.
func (tb *TransactionBuilder) AddDelete(filePath string) error {
	if !tb.started {
		return fmt.Errorf("transaction not started")
	}
	tb.operations = append(tb.operations, Operation{Type: DeleteOp, Path: filePath})
	return nil
}

// Commit applies all batched operations in a single git commit. Later
// operations on the same path win.
func (tb *TransactionBuilder) Commit(identity core.Identity, message string) (Transaction, error) {
	if !tb.started {
		return Transaction{}, fmt.Errorf("transaction not started")
	}
	if len(tb.operations) == 0 {
		return Transaction{}, fmt.Errorf("no operations to commit")
	}

	changes := make([]TreeChange, 0, len(tb.operations))
	for _, op := range tb.operations {
		switch op.Type {
		case WriteOp:
			blobHash, err := tb.persistence.createBlob(op.Data)
			if err != nil {
				return Transaction{}, fmt.Errorf("failed to create blob for %s: %w", op.Path, err)
			}
			changes = append(changes, TreeChange{Path: op.Path, BlobHash: blobHash})
		case DeleteOp:
			changes = append(changes, TreeChange{Path: op.Path, IsDelete: true})
		}
	}

	if message == "" {
		message = fmt.Sprintf("Batch transaction: %d operation(s)", len(tb.operations))
	}
	txn, err := tb.persistence.commitChanges(changes, identity, message)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to commit: %w", err)
	}

	tb.started = false
	tb.operations = nil
	return txn, nil
}

// Rollback discards all batched operations without committing
func (tb *TransactionBuilder) Rollback() {
	tb.started = false
	tb.operations = nil
}

func (tb *TransactionBuilder) OperationCount() int {
	return len(tb.operations)
}
