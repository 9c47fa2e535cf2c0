package op

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nickyhof/orpheusplus/core"
)

// Operation is a staged change or a history marker. The concrete types are
// Insert, Delete, Update and Commit.
type Operation interface {
	When() time.Time
	isOperation()
}

// Insert stages a block of freshly allocated rows.
type Insert struct {
	Start     core.RowID
	Count     uint64
	Timestamp time.Time
}

// Delete stages the removal of one run of rows.
type Delete struct {
	Start     core.RowID
	Count     uint64
	Timestamp time.Time
}

// Update couples deletes with the insert that replaced them. Mapping sends
// every deleted rid to its replacement.
type Update struct {
	Deletes   []Delete
	Insert    Insert
	Mapping   map[core.RowID]core.RowID
	Timestamp time.Time
}

// Commit marks the end of the operations that produced Version.
type Commit struct {
	Version   core.VersionID
	Message   string
	Timestamp time.Time
}

func (o Insert) When() time.Time { return o.Timestamp }
func (o Delete) When() time.Time { return o.Timestamp }
func (o Update) When() time.Time { return o.Timestamp }
func (o Commit) When() time.Time { return o.Timestamp }

func (Insert) isOperation() {}
func (Delete) isOperation() {}
func (Update) isOperation() {}
func (Commit) isOperation() {}

func (o Insert) Rows() core.RowRange {
	return core.RowRange{Start: o.Start, Count: o.Count}
}

func (o Delete) Run() core.Run {
	return core.Run{Start: o.Start, Length: o.Count}
}

func (o Insert) String() string {
	return fmt.Sprintf("insert %s", o.Rows())
}

func (o Delete) String() string {
	return fmt.Sprintf("delete %s", core.RowRange{Start: o.Start, Count: o.Count})
}

func (o Update) String() string {
	return fmt.Sprintf("update %d row(s) -> %s", len(o.Mapping), o.Insert.Rows())
}

func (o Commit) String() string {
	return fmt.Sprintf("commit %d", o.Version)
}

const (
	kindInsert = "insert"
	kindDelete = "delete"
	kindUpdate = "update"
	kindCommit = "commit"
)

// entry is the persisted form of an Operation.
type entry struct {
	Kind      string                    `json:"kind"`
	Start     core.RowID                `json:"start,omitempty"`
	Count     uint64                    `json:"count,omitempty"`
	Deletes   []core.Run                `json:"deletes,omitempty"`
	Mapping   map[core.RowID]core.RowID `json:"mapping,omitempty"`
	Version   core.VersionID            `json:"version,omitempty"`
	Message   string                    `json:"message,omitempty"`
	Timestamp time.Time                 `json:"ts"`
}

func toEntry(o Operation) entry {
	switch o := o.(type) {
	case Insert:
		return entry{Kind: kindInsert, Start: o.Start, Count: o.Count, Timestamp: o.Timestamp}
	case Delete:
		return entry{Kind: kindDelete, Start: o.Start, Count: o.Count, Timestamp: o.Timestamp}
	case Update:
		runs := make([]core.Run, len(o.Deletes))
		for i, d := range o.Deletes {
			runs[i] = d.Run()
		}
		return entry{
			Kind:      kindUpdate,
			Start:     o.Insert.Start,
			Count:     o.Insert.Count,
			Deletes:   runs,
			Mapping:   o.Mapping,
			Timestamp: o.Timestamp,
		}
	case Commit:
		return entry{Kind: kindCommit, Version: o.Version, Message: o.Message, Timestamp: o.Timestamp}
	}
	panic(fmt.Sprintf("unknown operation %T", o))
}

func fromEntry(e entry) (Operation, error) {
	switch e.Kind {
	case kindInsert:
		return Insert{Start: e.Start, Count: e.Count, Timestamp: e.Timestamp}, nil
	case kindDelete:
		return Delete{Start: e.Start, Count: e.Count, Timestamp: e.Timestamp}, nil
	case kindUpdate:
		deletes := make([]Delete, len(e.Deletes))
		for i, run := range e.Deletes {
			deletes[i] = Delete{Start: run.Start, Count: run.Length, Timestamp: e.Timestamp}
		}
		return Update{
			Deletes:   deletes,
			Insert:    Insert{Start: e.Start, Count: e.Count, Timestamp: e.Timestamp},
			Mapping:   e.Mapping,
			Timestamp: e.Timestamp,
		}, nil
	case kindCommit:
		return Commit{Version: e.Version, Message: e.Message, Timestamp: e.Timestamp}, nil
	}
	return nil, fmt.Errorf("unknown operation kind %q", e.Kind)
}

func encodeOperations(ops []Operation) []entry {
	entries := make([]entry, len(ops))
	for i, o := range ops {
		entries[i] = toEntry(o)
	}
	return entries
}

func decodeOperations(entries []entry) ([]Operation, error) {
	ops := make([]Operation, 0, len(entries))
	for _, e := range entries {
		o, err := fromEntry(e)
		if err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}
	return ops, nil
}

type ledgerRecord struct {
	Database string         `json:"database"`
	Table    string         `json:"table"`
	User     string         `json:"user"`
	Head     core.VersionID `json:"head"`
	Staged   []entry        `json:"staged"`
	History  []entry        `json:"history"`
}

// MarshalJSON encodes the ledger with its operations tagged by kind.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerRecord{
		Database: l.Database,
		Table:    l.Table,
		User:     l.User,
		Head:     l.Head,
		Staged:   encodeOperations(l.Staged),
		History:  encodeOperations(l.History),
	})
}

func (l *Ledger) UnmarshalJSON(data []byte) error {
	var record ledgerRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return err
	}
	staged, err := decodeOperations(record.Staged)
	if err != nil {
		return err
	}
	history, err := decodeOperations(record.History)
	if err != nil {
		return err
	}

	*l = *New(record.Database, record.Table, record.User, record.Head)
	l.Staged = staged
	l.History = history
	return nil
}
