package core

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompress(t *testing.T) {
	tests := []struct {
		name     string
		rids     []RowID
		expected []Run
	}{
		{"empty", nil, nil},
		{"single", []RowID{4}, []Run{{Start: 4, Length: 1}}},
		{"contiguous", []RowID{1, 2, 3}, []Run{{Start: 1, Length: 3}}},
		{"unordered", []RowID{9, 1, 3, 2, 7}, []Run{{Start: 1, Length: 3}, {Start: 7, Length: 1}, {Start: 9, Length: 1}}},
		{"duplicates", []RowID{5, 5, 6, 6}, []Run{{Start: 5, Length: 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Compress(tt.rids))
		})
	}
}

func TestCompressDoesNotMutateInput(t *testing.T) {
	rids := []RowID{3, 1, 2}
	Compress(rids)
	assert.Equal(t, []RowID{3, 1, 2}, rids)
}

func TestDecompressRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		set := make(map[RowID]struct{})
		var rids []RowID
		for j := 0; j < r.Intn(50); j++ {
			rid := RowID(r.Intn(100))
			rids = append(rids, rid)
			set[rid] = struct{}{}
		}

		out := Decompress(Compress(rids))
		require.Len(t, out, len(set))
		for _, rid := range out {
			assert.Contains(t, set, rid)
		}
	}
}

func TestRowRange(t *testing.T) {
	r := RowRange{Start: 10, Count: 3}
	assert.Equal(t, []RowID{10, 11, 12}, r.IDs())
	assert.Equal(t, RowID(13), r.End())
	assert.Equal(t, "[10, 13)", r.String())
}

func BenchmarkCompress(b *testing.B) {
	rids := make([]RowID, 0, 10000)
	for i := 0; i < 10000; i++ {
		if i%7 != 0 {
			rids = append(rids, RowID(i))
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Compress(rids)
	}
}
