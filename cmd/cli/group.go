package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nickyhof/orpheusplus/db"
	"gopkg.in/alecthomas/kingpin.v2"
)

func groupInitCommand(group *kingpin.CmdClause) (*kingpin.CmdClause, handler) {
	cmd := group.Command("init", "Create a group over versioned tables.")
	name := cmd.Flag("name", "Group name.").Short('n').Required().String()
	tables := cmd.Flag("table", "Member table; repeat for each member.").Short('t').Required().Strings()

	return cmd, func(s *session) error {
		engine, err := s.open()
		if err != nil {
			return err
		}
		g, err := engine.InitGroup(*name, *tables)
		if err != nil {
			return err
		}
		s.success("Created group %s of %s", g.Name, strings.Join(g.Tables, ", "))
		return nil
	}
}

func groupCommitCommand(group *kingpin.CmdClause) (*kingpin.CmdClause, handler) {
	cmd := group.Command("commit", "Commit every member table.")
	name := cmd.Flag("name", "Group name.").Short('n').Required().String()
	message := cmd.Flag("message", "Commit message.").Short('m').Required().String()

	return cmd, func(s *session) error {
		engine, err := s.open()
		if err != nil {
			return err
		}
		g, changed, err := engine.GroupCommit(*name, *message)
		if err != nil {
			return err
		}
		if !changed {
			noticeColor.Fprintf(s.out, "Nothing to commit in group %s\n", *name)
			return nil
		}
		s.success("Committed group %s version %d", *name, g.Count)
		return nil
	}
}

func groupCheckoutCommand(group *kingpin.CmdClause) (*kingpin.CmdClause, handler) {
	cmd := group.Command("checkout", "Check out the member versions of a group version.")
	name := cmd.Flag("name", "Group name.").Short('n').Required().String()
	v := cmd.Flag("version", "Group version; 0 checks out every root.").Short('v').Required().Int()

	return cmd, func(s *session) error {
		engine, err := s.open()
		if err != nil {
			return err
		}
		if _, err := engine.GroupCheckout(*name, *v); err != nil {
			return err
		}
		s.success("Checked out group %s version %d", *name, *v)
		return nil
	}
}

func groupLogCommand(group *kingpin.CmdClause) (*kingpin.CmdClause, handler) {
	cmd := group.Command("log", "Show the versions of a group, newest first.")
	name := cmd.Flag("name", "Group name.").Short('n').Required().String()

	return cmd, func(s *session) error {
		engine, err := s.open()
		if err != nil {
			return err
		}
		g, err := engine.LoadGroup(*name)
		if err != nil {
			return err
		}
		result := db.QueryResult{Columns: []string{"version", "author", "date", "message", "tables"}}
		for _, v := range slices.Backward(g.Versions) {
			result.Data = append(result.Data, []string{
				fmt.Sprint(v.Version), v.Author, v.Date.Format(time.DateTime), v.Message, memberVersions(g.Tables, v),
			})
		}
		result.RecordsRead = len(result.Data)
		result.Display(s.out)
		return nil
	}
}

func groupDropCommand(group *kingpin.CmdClause) (*kingpin.CmdClause, handler) {
	cmd := group.Command("drop", "Delete a group. Member tables are untouched.")
	name := cmd.Flag("name", "Group name.").Short('n').Required().String()

	return cmd, func(s *session) error {
		engine, err := s.open()
		if err != nil {
			return err
		}
		if err := engine.DropGroup(*name); err != nil {
			return err
		}
		s.success("Dropped group %s", *name)
		return nil
	}
}

// memberVersions renders the member versions as table@version.
func memberVersions(tables []string, v db.GroupVersion) string {
	parts := make([]string, len(tables))
	for i, table := range tables {
		parts[i] = fmt.Sprintf("%s@%d", table, v.Tables[table])
	}
	return strings.Join(parts, " ")
}
