package core

import (
	"slices"
)

// Run is a contiguous block of row ids.
type Run struct {
	Start  RowID  `json:"start"`
	Length uint64 `json:"length"`
}

// Compress sorts rids and merges consecutive ids into runs. Duplicates are
// dropped.
func Compress(rids []RowID) []Run {
	if len(rids) == 0 {
		return nil
	}

	sorted := slices.Clone(rids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	runs := []Run{{Start: sorted[0], Length: 1}}
	for _, rid := range sorted[1:] {
		last := &runs[len(runs)-1]
		if rid == last.Start+RowID(last.Length) {
			last.Length++
			continue
		}
		runs = append(runs, Run{Start: rid, Length: 1})
	}
	return runs
}

// Decompress expands runs back into a sorted, duplicate free slice.
func Decompress(runs []Run) []RowID {
	var total uint64
	for _, run := range runs {
		total += run.Length
	}

	rids := make([]RowID, 0, total)
	for _, run := range runs {
		for i := uint64(0); i < run.Length; i++ {
			rids = append(rids, run.Start+RowID(i))
		}
	}
	slices.Sort(rids)
	return slices.Compact(rids)
}
