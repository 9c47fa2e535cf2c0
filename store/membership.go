package store

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/jmoiron/sqlx"
	"github.com/nickyhof/orpheusplus/core"
)

// Membership is the version to rid index of one table, kept in its
// membership table.
type Membership struct {
	engine   *Engine
	physical string
}

// Membership returns the index of the versioned table name.
func (e *Engine) Membership(name string) *Membership {
	return &Membership{engine: e, physical: core.MembershipTable(name)}
}

func (m *Membership) Members(version core.VersionID) (*roaring64.Bitmap, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		m.engine.Quote(core.RowIDColumn), m.engine.Quote(m.physical), m.engine.Quote("version"))

	var ids []int64
	if err := sqlx.Select(m.engine.q, &ids, query, int64(version)); err != nil {
		return nil, classify(err, m.physical)
	}
	bm := roaring64.New()
	for _, id := range ids {
		bm.Add(uint64(id))
	}
	return bm, nil
}

// Append replaces the rows recorded for version with rids.
func (m *Membership) Append(version core.VersionID, rids *roaring64.Bitmap) error {
	e := m.engine
	return e.Tx(func(tx *Engine) error {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", e.Quote(m.physical), e.Quote("version"))
		if _, err := tx.q.Exec(query, int64(version)); err != nil {
			return classify(err, m.physical)
		}

		rows := make([][]any, 0, rids.GetCardinality())
		it := rids.Iterator()
		for it.HasNext() {
			rows = append(rows, []any{int64(version), int64(it.Next())})
		}
		return tx.InsertRows(m.physical, []string{"version", core.RowIDColumn}, rows)
	})
}

// Drop removes the membership table.
func (m *Membership) Drop() error {
	return m.engine.DropTable(m.physical)
}
