package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/ps"
	log "github.com/sirupsen/logrus"
)

// Group is a named set of versioned tables with its own version counter.
// Commits and checkouts fan out to every member; a failure part way leaves
// the members already processed changed. Heads records the group version
// each user last committed or checked out.
type Group struct {
	Name     string         `json:"-"`
	Tables   []string       `json:"tables"`
	Versions []GroupVersion `json:"versions"`
	Count    int            `json:"count"`
	Heads    map[string]int `json:"heads"`
}

// GroupVersion records the member versions of one group commit.
type GroupVersion struct {
	Version int                       `json:"version"`
	Tables  map[string]core.VersionID `json:"tables"`
	Author  string                    `json:"author"`
	Date    time.Time                 `json:"date"`
	Message string                    `json:"message"`
}

// HeadOf returns the group version user is on. A user who never committed
// or checked out the group is on the latest version.
func (group *Group) HeadOf(user string) int {
	if head, ok := group.Heads[user]; ok {
		return head
	}
	return group.Count
}

// Lookup returns the group version with the given number.
func (group *Group) Lookup(version int) (GroupVersion, bool) {
	for _, v := range group.Versions {
		if v.Version == version {
			return v, true
		}
	}
	return GroupVersion{}, false
}

// InitGroup creates a group over existing versioned tables.
func (engine *Engine) InitGroup(name string, tables []string) (*Group, error) {
	if engine.Exists(ps.GroupPath(engine.Database, name)) {
		return nil, core.ErrGroupExists.New(name)
	}

	members := mapset.NewThreadUnsafeSet[string]()
	group := &Group{Name: name, Tables: []string{}, Versions: []GroupVersion{}, Heads: map[string]int{}}
	for _, table := range tables {
		if !members.Add(table) {
			continue
		}
		if _, err := engine.Table(table); err != nil {
			return nil, err
		}
		group.Tables = append(group.Tables, table)
	}
	if len(group.Tables) == 0 {
		return nil, fmt.Errorf("group %s has no tables", name)
	}

	if err := engine.saveGroup(group, fmt.Sprintf("Create group %s", name)); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"group": name, "tables": strings.Join(group.Tables, ",")}).Info("created group")
	return group, nil
}

// LoadGroup reads a group definition.
func (engine *Engine) LoadGroup(name string) (*Group, error) {
	data, err := engine.Read(ps.GroupPath(engine.Database, name))
	if errors.Is(err, ps.ErrNotFound) {
		return nil, core.ErrGroupNotFound.New(name)
	}
	if err != nil {
		return nil, err
	}
	group := &Group{}
	if err := json.Unmarshal(data, group); err != nil {
		return nil, fmt.Errorf("failed to unmarshal group %s: %w", name, err)
	}
	group.Name = name
	if group.Heads == nil {
		group.Heads = make(map[string]int)
	}
	return group, nil
}

// GroupCommit commits every member table. A new group version is created
// when at least one member produced a new version.
func (engine *Engine) GroupCommit(name, message string) (*Group, bool, error) {
	group, err := engine.LoadGroup(name)
	if err != nil {
		return nil, false, err
	}

	now := time.Now()
	version := GroupVersion{
		Tables:  make(map[string]core.VersionID, len(group.Tables)),
		Author:  engine.Identity.String(),
		Date:    now,
		Message: message,
	}
	changed := false
	for _, name := range group.Tables {
		table, err := engine.Table(name)
		if err != nil {
			return nil, false, err
		}
		head, err := table.Commit(fmt.Sprintf("group %s: %s", group.Name, message), now)
		switch {
		case err == nil:
			changed = true
		case IsNoChanges(err):
		default:
			return nil, false, fmt.Errorf("failed to commit %s: %w", name, err)
		}
		version.Tables[name] = head
	}
	if !changed {
		return group, false, nil
	}

	group.Count++
	group.Heads[engine.Identity.Name] = group.Count
	version.Version = group.Count
	group.Versions = append(group.Versions, version)
	if err := engine.saveGroup(group, fmt.Sprintf("Commit group %s version %d", group.Name, group.Count)); err != nil {
		return nil, false, err
	}
	log.WithFields(log.Fields{"group": group.Name, "version": group.Count}).Info("committed group")
	return group, true, nil
}

// GroupCheckout checks out the member versions recorded by a group
// version. Version 0 checks out every member's root.
func (engine *Engine) GroupCheckout(name string, version int) (*Group, error) {
	group, err := engine.LoadGroup(name)
	if err != nil {
		return nil, err
	}

	var target GroupVersion
	if version != 0 {
		var ok bool
		if target, ok = group.Lookup(version); !ok {
			return nil, core.ErrVersionNotFound.New(version)
		}
	}
	for _, name := range group.Tables {
		table, err := engine.Table(name)
		if err != nil {
			return nil, err
		}
		if err := table.Checkout(target.Tables[name]); err != nil {
			return nil, fmt.Errorf("failed to check out %s: %w", name, err)
		}
	}

	group.Heads[engine.Identity.Name] = version
	if err := engine.saveGroup(group, fmt.Sprintf("Checkout group %s version %d", group.Name, version)); err != nil {
		return nil, err
	}
	return group, nil
}

// DropGroup deletes a group definition. Member tables are untouched.
func (engine *Engine) DropGroup(name string) error {
	if !engine.Exists(ps.GroupPath(engine.Database, name)) {
		return core.ErrGroupNotFound.New(name)
	}
	_, err := engine.Delete([]string{ps.GroupPath(engine.Database, name)}, engine.Identity, fmt.Sprintf("Remove group %s", name))
	return err
}

func (engine *Engine) saveGroup(group *Group, message string) error {
	data, err := json.Marshal(group)
	if err != nil {
		return fmt.Errorf("failed to marshal group %s: %w", group.Name, err)
	}
	_, err = engine.Write(ps.GroupPath(engine.Database, group.Name), data, engine.Identity, message)
	return err
}
