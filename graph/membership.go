package graph

import (
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/nickyhof/orpheusplus/core"
)

// Membership stores the rows of every version. Append must be idempotent
// for a version that is not yet referenced by a saved graph: writing the
// same version twice leaves exactly the second set.
type Membership interface {
	Members(version core.VersionID) (*roaring64.Bitmap, error)
	Append(version core.VersionID, rids *roaring64.Bitmap) error
	Drop() error
}

// Bitmap builds a bitmap from rids.
func Bitmap(rids []core.RowID) *roaring64.Bitmap {
	bm := roaring64.New()
	for _, rid := range rids {
		bm.Add(uint64(rid))
	}
	return bm
}

// IDs lists the rows of bm in ascending order.
func IDs(bm *roaring64.Bitmap) []core.RowID {
	values := bm.ToArray()
	ids := make([]core.RowID, len(values))
	for i, v := range values {
		ids[i] = core.RowID(v)
	}
	return ids
}

// MemoryMembership keeps memberships in process. Used by tests and by
// tools that replay a graph without a physical engine.
type MemoryMembership struct {
	mu   sync.Mutex
	sets map[core.VersionID]*roaring64.Bitmap
}

func NewMemoryMembership() *MemoryMembership {
	return &MemoryMembership{sets: make(map[core.VersionID]*roaring64.Bitmap)}
}

func (m *MemoryMembership) Members(version core.VersionID) (*roaring64.Bitmap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[version]
	if !ok {
		return roaring64.New(), nil
	}
	return set.Clone(), nil
}

func (m *MemoryMembership) Append(version core.VersionID, rids *roaring64.Bitmap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[version] = rids.Clone()
	return nil
}

func (m *MemoryMembership) Drop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets = make(map[core.VersionID]*roaring64.Bitmap)
	return nil
}
