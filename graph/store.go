package graph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/ps"
)

type graphRecord struct {
	Database string                    `json:"database"`
	Table    string                    `json:"table"`
	Count    core.VersionID            `json:"version_count"`
	MaxRowID core.RowID                `json:"max_row_id,omitempty"`
	Heads    map[string]core.VersionID `json:"heads"`
	Nodes    []Version                 `json:"nodes"`
	Edges    []Edge                    `json:"edges"`
}

// MarshalJSON writes the graph as explicit node and edge lists.
func (g *Graph) MarshalJSON() ([]byte, error) {
	nodes := g.Versions()
	g.mu.Lock()
	record := graphRecord{
		Database: g.Database,
		Table:    g.Table,
		Count:    g.count,
		MaxRowID: g.maxRowID,
		Heads:    g.heads,
		Nodes:    nodes,
		Edges:    g.edges,
	}
	data, err := json.Marshal(record)
	g.mu.Unlock()
	return data, err
}

// Decode rebuilds a graph from its JSON form.
func Decode(data []byte, members Membership) (*Graph, error) {
	var record graphRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal version graph: %w", err)
	}

	g := &Graph{
		Database: record.Database,
		Table:    record.Table,
		count:    record.Count,
		maxRowID: record.MaxRowID,
		versions: make(map[core.VersionID]*Version, len(record.Nodes)),
		edges:    record.Edges,
		heads:    record.Heads,
		members:  members,
	}
	if g.heads == nil {
		g.heads = make(map[string]core.VersionID)
	}
	for i := range record.Nodes {
		node := record.Nodes[i]
		g.versions[node.ID] = &node
	}
	if _, ok := g.versions[core.RootVersion]; !ok {
		return nil, core.ErrInvariant.New(fmt.Sprintf("version graph of %s has no root", record.Table))
	}
	return g, nil
}

// Load reads the graph of a table. A missing graph means the table is not
// versioned.
func Load(persistence *ps.Persistence, database, table string, members Membership) (*Graph, error) {
	data, err := persistence.Read(ps.GraphPath(database, table))
	if errors.Is(err, ps.ErrNotFound) {
		return nil, core.ErrTableNotFound.New(table)
	}
	if err != nil {
		return nil, err
	}
	return Decode(data, members)
}

// Stage adds the graph to txn.
func (g *Graph) Stage(txn *ps.TransactionBuilder) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal version graph: %w", err)
	}
	return txn.AddWrite(ps.GraphPath(g.Database, g.Table), data)
}
