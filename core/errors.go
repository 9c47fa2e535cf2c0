package core

import (
	errors "gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrDialectSyntax is returned for malformed VTABLE statements.
	ErrDialectSyntax = errors.NewKind("syntax error: %s")

	ErrVersionNotFound = errors.NewKind("version %d not found")

	// ErrUncommittedChanges is returned when checkout or merge is attempted
	// with staged operations in the workspace.
	ErrUncommittedChanges = errors.NewKind("table %s has uncommitted changes")

	ErrInvalidSequence = errors.NewKind("invalid operation sequence: %s")

	ErrNoChanges = errors.NewKind("no revision to version %d")

	ErrTableNotFound = errors.NewKind("table %s does not exist")
	ErrTableExists   = errors.NewKind("table %s already exists")

	// ErrStorage wraps any other failure of the physical engine. The
	// argument names the offending object.
	ErrStorage = errors.NewKind("storage error on %s")

	ErrGroupNotFound = errors.NewKind("group %s does not exist")
	ErrGroupExists   = errors.NewKind("group %s already exists")

	// ErrInvariant marks internal state that should be impossible, such as a
	// replacement chain that never terminates.
	ErrInvariant = errors.NewKind("invariant violated: %s")
)
