package op

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/ps"
)

// Store persists ledgers in the metadata repository, one file per
// (database, table, user, head).
type Store struct {
	Persistence *ps.Persistence
	Identity    core.Identity
}

func NewStore(persistence *ps.Persistence, identity core.Identity) *Store {
	return &Store{Persistence: persistence, Identity: identity}
}

// Load reads the ledger of user at head. The boolean is false when no
// record exists.
func (s *Store) Load(database, table, user string, head core.VersionID) (*Ledger, bool, error) {
	data, err := s.Persistence.Read(ps.LedgerPath(database, table, user, head))
	if errors.Is(err, ps.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal ledger %s/%s/%s@%d: %w", database, table, user, head, err)
	}
	return &ledger, true, nil
}

// Open loads the ledger of user at head, creating one whose history is the
// lineage of head when none exists yet. A created ledger is not saved.
func (s *Store) Open(database, table, user string, head core.VersionID) (*Ledger, error) {
	ledger, ok, err := s.Load(database, table, user, head)
	if err != nil || ok {
		return ledger, err
	}

	ledger = New(database, table, user, head)
	lineage, err := s.Lineage(database, table, head)
	if err != nil {
		return nil, err
	}
	if err := ledger.Seed(lineage); err != nil {
		return nil, err
	}
	return ledger, nil
}

// Stage adds the ledger to txn. When the head moved away from previous the
// old record is removed in the same commit.
func (s *Store) Stage(txn *ps.TransactionBuilder, ledger *Ledger, previous core.VersionID) error {
	data, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if previous != ledger.Head {
		if err := txn.AddDelete(ps.LedgerPath(ledger.Database, ledger.Table, ledger.User, previous)); err != nil {
			return err
		}
	}
	return txn.AddWrite(ps.LedgerPath(ledger.Database, ledger.Table, ledger.User, ledger.Head), data)
}

// All loads every ledger recorded for a table.
func (s *Store) All(database, table string) ([]*Ledger, error) {
	users, err := s.Persistence.List(ps.LedgerDir(database, table))
	if err != nil {
		return nil, err
	}

	var ledgers []*Ledger
	for _, user := range users {
		if !user.IsDir {
			continue
		}
		files, err := s.Persistence.List(ps.LedgerDir(database, table) + "/" + user.Name)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			head, err := strconv.ParseInt(strings.TrimSuffix(file.Name, ".json"), 10, 64)
			if err != nil {
				continue
			}
			ledger, ok, err := s.Load(database, table, user.Name, core.VersionID(head))
			if err != nil {
				return nil, err
			}
			if ok {
				ledgers = append(ledgers, ledger)
			}
		}
	}
	return ledgers, nil
}

// Lineage returns the history that ends with the marker of version, taken
// from any workspace that committed it. The root version has an empty
// lineage.
func (s *Store) Lineage(database, table string, version core.VersionID) ([]Operation, error) {
	ledgers, err := s.All(database, table)
	if err != nil {
		return nil, err
	}
	for _, ledger := range ledgers {
		if lineage, ok := ledger.Lineage(version); ok {
			return lineage, nil
		}
	}
	if version == core.RootVersion {
		return nil, nil
	}
	return nil, core.ErrVersionNotFound.New(version)
}

// Segment returns the operations that turned parent into child, without
// the closing marker.
func (s *Store) Segment(database, table string, parent, child core.VersionID) ([]Operation, error) {
	ledgers, err := s.All(database, table)
	if err != nil {
		return nil, err
	}
	for _, ledger := range ledgers {
		if !ledger.Contains(child) || !ledger.Contains(parent) {
			continue
		}
		ops, err := ledger.ChangesSince(parent)
		if err != nil {
			return nil, err
		}
		if n := len(ops); n > 0 {
			if marker, ok := ops[n-1].(Commit); ok && marker.Version == child {
				return ops[:n-1], nil
			}
		}
	}
	return nil, core.ErrVersionNotFound.New(child)
}

// Drop removes every ledger of a table within txn.
func (s *Store) Drop(txn *ps.TransactionBuilder, database, table string) error {
	return txn.AddDelete(ps.LedgerDir(database, table))
}
