package graph

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/op"
)

// Version is a node of the graph. Versions never change once created.
type Version struct {
	ID        core.VersionID  `json:"id"`
	Parent    *core.VersionID `json:"parent,omitempty"`
	RowCount  int64           `json:"row_count"`
	Overlap   int64           `json:"overlap"`
	Message   string          `json:"message,omitempty"`
	Author    string          `json:"author,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Edge links a version to a child. Merge edges record that To also
// incorporates From, with the rows To adds and removes relative to From.
// Mapping sends a removed row to the added row that replaced it.
type Edge struct {
	From    core.VersionID            `json:"from"`
	To      core.VersionID            `json:"to"`
	Overlap int64                     `json:"overlap"`
	Merge   bool                      `json:"merge,omitempty"`
	Added   []core.Run                `json:"added,omitempty"`
	Removed []core.Run                `json:"removed,omitempty"`
	Mapping map[core.RowID]core.RowID `json:"mapping,omitempty"`
}

// CommitInfo describes the version a commit creates.
type CommitInfo struct {
	Message   string
	Author    string
	Timestamp time.Time
}

// Graph is the commit DAG of one table.
type Graph struct {
	Database string
	Table    string

	mu       sync.Mutex
	count    core.VersionID
	maxRowID core.RowID
	versions map[core.VersionID]*Version
	edges    []Edge
	heads    map[string]core.VersionID
	members  Membership
}

// Init creates the graph of a new table holding only the empty root.
func Init(database, table string, members Membership) (*Graph, error) {
	g := &Graph{
		Database: database,
		Table:    table,
		versions: map[core.VersionID]*Version{
			core.RootVersion: {ID: core.RootVersion, Message: "init", Timestamp: time.Now()},
		},
		heads:   make(map[string]core.VersionID),
		members: members,
	}
	if err := members.Append(core.RootVersion, roaring64.New()); err != nil {
		return nil, err
	}
	return g, nil
}

// Head returns the version user has materialized. Unknown users start at
// the latest version.
func (g *Graph) Head(user string) core.VersionID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if head, ok := g.heads[user]; ok {
		return head
	}
	return g.count
}

// HasUser reports whether user has a workspace on this table.
func (g *Graph) HasUser(user string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.heads[user]
	return ok
}

// Users returns the users with a workspace, sorted.
func (g *Graph) Users() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	users := make([]string, 0, len(g.heads))
	for user := range g.heads {
		users = append(users, user)
	}
	slices.Sort(users)
	return users
}

// SetHead moves user's head to an existing version.
func (g *Graph) SetHead(user string, version core.VersionID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.versions[version]; !ok {
		return core.ErrVersionNotFound.New(version)
	}
	g.heads[user] = version
	return nil
}

// RemoveUser forgets user's workspace.
func (g *Graph) RemoveUser(user string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.heads, user)
}

// Latest returns the id of the newest version.
func (g *Graph) Latest() core.VersionID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}

func (g *Graph) Version(id core.VersionID) (Version, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.versions[id]
	if !ok {
		return Version{}, false
	}
	return *v, true
}

// Versions returns all versions ordered by id.
func (g *Graph) Versions() []Version {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Version, 0, len(g.versions))
	for _, v := range g.versions {
		out = append(out, *v)
	}
	slices.SortFunc(out, func(a, b Version) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.edges)
}

// AddVersion creates a child of the ledger's head from the sets of its last
// Resolve, records its membership, advances the head and commits the
// ledger onto the new version.
func (g *Graph) AddVersion(ledger *op.Ledger, info CommitInfo) (Version, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	parentID := ledger.Head
	if head, ok := g.heads[ledger.User]; ok && head != parentID {
		return Version{}, core.ErrInvariant.New(fmt.Sprintf("ledger of %s is at %d but head is %d", ledger.User, parentID, head))
	}
	parent, ok := g.versions[parentID]
	if !ok {
		return Version{}, core.ErrVersionNotFound.New(parentID)
	}

	added, removed := ledger.Added(), ledger.Removed()
	members, err := g.members.Members(parentID)
	if err != nil {
		return Version{}, err
	}
	members.AndNot(Bitmap(removed))
	members.Or(Bitmap(added))

	child := g.count + 1
	if err := g.members.Append(child, members); err != nil {
		return Version{}, err
	}

	version := &Version{
		ID:        child,
		Parent:    &parentID,
		RowCount:  parent.RowCount + int64(len(added)) - int64(len(removed)),
		Overlap:   parent.RowCount - int64(len(removed)),
		Message:   info.Message,
		Author:    info.Author,
		Timestamp: info.Timestamp,
	}
	g.versions[child] = version
	g.edges = append(g.edges, Edge{From: parentID, To: child, Overlap: version.Overlap})
	g.count = child
	g.heads[ledger.User] = child

	ledger.Commit(child, info.Message, info.Timestamp)
	return *version, nil
}

// MergeEdge records that to also incorporates from. The parent of to is
// unchanged.
func (g *Graph) MergeEdge(from, to core.VersionID, overlap int64, added, removed []core.RowID, mapping map[core.RowID]core.RowID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.versions[from]; !ok {
		return core.ErrVersionNotFound.New(from)
	}
	if _, ok := g.versions[to]; !ok {
		return core.ErrVersionNotFound.New(to)
	}
	g.edges = append(g.edges, Edge{
		From:    from,
		To:      to,
		Overlap: overlap,
		Merge:   true,
		Added:   core.Compress(added),
		Removed: core.Compress(removed),
		Mapping: mapping,
	})
	return nil
}

// ReserveRows allocates count rids above every rid the table has handed
// out and above floor. The mark only grows, so a rid deleted before it was
// committed is never allocated again.
func (g *Graph) ReserveRows(count uint64, floor core.RowID) core.RowRange {
	g.mu.Lock()
	defer g.mu.Unlock()
	start := max(g.maxRowID, floor) + 1
	if count > 0 {
		g.maxRowID = start + core.RowID(count) - 1
	}
	return core.RowRange{Start: start, Count: count}
}

// MaxRowID returns the highest rid reserved so far.
func (g *Graph) MaxRowID() core.RowID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxRowID
}

// Members returns the membership of version as a bitmap the caller owns.
func (g *Graph) Members(version core.VersionID) (*roaring64.Bitmap, error) {
	g.mu.Lock()
	_, ok := g.versions[version]
	g.mu.Unlock()
	if !ok {
		return nil, core.ErrVersionNotFound.New(version)
	}
	return g.members.Members(version)
}

// Switch returns the rows of target.
func (g *Graph) Switch(target core.VersionID) ([]core.RowID, error) {
	members, err := g.Members(target)
	if err != nil {
		return nil, err
	}
	return IDs(members), nil
}

// Drop removes the membership of every version.
func (g *Graph) Drop() error {
	return g.members.Drop()
}
