package core

import "fmt"

// RowID identifies a logical row for the whole life of a table.
type RowID uint64

// VersionID identifies a committed version. Version 0 is the empty root.
type VersionID int64

const RootVersion VersionID = 0

// RowRange is a block of freshly allocated, consecutive row ids.
type RowRange struct {
	Start RowID  `json:"start"`
	Count uint64 `json:"count"`
}

// IDs expands the range.
func (r RowRange) IDs() []RowID {
	ids := make([]RowID, 0, r.Count)
	for i := uint64(0); i < r.Count; i++ {
		ids = append(ids, r.Start+RowID(i))
	}
	return ids
}

// End returns the first id after the range.
func (r RowRange) End() RowID {
	return r.Start + RowID(r.Count)
}

func (r RowRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End())
}
