package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nickyhof/orpheusplus/config"
	"github.com/nickyhof/orpheusplus/db"
	"github.com/nickyhof/orpheusplus/merge"
	"github.com/nickyhof/orpheusplus/ps"
	"gopkg.in/alecthomas/kingpin.v2"
)

func configCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("config", "Write the connection settings to the config file.")
	driver := cmd.Flag("driver", "Storage engine driver (duckdb or mysql).").String()
	dsn := cmd.Flag("dsn", "Data source name passed to the driver unchanged.").String()
	host := cmd.Flag("host", "MySQL host.").String()
	port := cmd.Flag("port", "MySQL port.").Int()
	database := cmd.Flag("database", "Database holding the versioned tables.").String()
	user := cmd.Flag("user", "User name; selects the workspace.").Short('u').String()
	passwd := cmd.Flag("passwd", "MySQL password.").Short('p').String()
	email := cmd.Flag("email", "Email recorded with commits.").String()
	rootDir := cmd.Flag("root-dir", "Directory of the metadata repository.").String()
	gitURL := cmd.Flag("git-url", "Clone the metadata repository from this URL.").String()
	logLevel := cmd.Flag("log-level", "Log level.").String()

	return cmd, func(s *session) error {
		cfg, err := config.LoadOrDefault(s.configPath)
		if err != nil {
			return err
		}
		set := func(target *string, value string) {
			if value != "" {
				*target = value
			}
		}
		set(&cfg.Driver, *driver)
		set(&cfg.DataSource, *dsn)
		set(&cfg.Host, *host)
		set(&cfg.Database, *database)
		set(&cfg.User, *user)
		set(&cfg.Passwd, *passwd)
		set(&cfg.Email, *email)
		set(&cfg.RootDir, *rootDir)
		set(&cfg.GitURL, *gitURL)
		set(&cfg.LogLevel, *logLevel)
		if *port != 0 {
			cfg.Port = *port
		}

		if err := config.Save(s.configPath, cfg); err != nil {
			return err
		}
		s.success("Saved config to %s", s.configPath)
		return nil
	}
}

func initCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("init", "Put a new table under version control.")
	name := cmd.Flag("name", "Table name.").Short('n').Required().String()
	schemaPath := cmd.Flag("schema", "CSV file of name,type records.").Short('s').Required().String()
	dataPath := cmd.Flag("data", "CSV file of initial rows, committed as version 1.").Short('d').String()

	return cmd, func(s *session) error {
		engine, err := s.open()
		if err != nil {
			return err
		}
		schema, err := db.ReadSchema(*schemaPath, s.s3(), engine.Database, *name)
		if err != nil {
			return err
		}
		var rows [][]string
		if *dataPath != "" {
			if rows, err = db.ReadData(*dataPath, s.s3(), schema); err != nil {
				return err
			}
		}

		table, err := engine.Init(*name, schema.Columns)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			s.success("Initialized %s", *name)
			return nil
		}
		if _, err := table.Insert(rows); err != nil {
			return err
		}
		v, err := table.Commit(fmt.Sprintf("Initialize %s", *name), time.Time{})
		if err != nil {
			return err
		}
		s.success("Initialized %s with %s row(s) at version %d", *name, humanize.Comma(int64(len(rows))), v)
		return nil
	}
}

func lsCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("ls", "List the versioned tables.")

	return cmd, func(s *session) error {
		engine, err := s.open()
		if err != nil {
			return err
		}
		names, err := engine.Tables()
		if err != nil {
			return err
		}
		result := db.QueryResult{Columns: []string{"table", "head", "versions"}}
		for _, name := range names {
			table, err := engine.Table(name)
			if err != nil {
				return err
			}
			result.Data = append(result.Data, []string{
				name, fmt.Sprint(table.Head()), fmt.Sprint(len(table.Graph().Versions())),
			})
		}
		result.RecordsRead = len(result.Data)
		result.Display(s.out)
		return nil
	}
}

func insertCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("insert", "Stage rows for insertion.")
	name := cmd.Flag("name", "Table name.").Short('n').Required().String()
	dataPath := cmd.Flag("data", "CSV file of rows.").Short('d').Required().String()

	return cmd, func(s *session) error {
		table, rows, err := s.tableRows(*name, *dataPath)
		if err != nil {
			return err
		}
		inserted, err := table.Insert(rows)
		if err != nil {
			return err
		}
		s.success("Staged %s row(s) for insertion into %s", humanize.Comma(int64(inserted.Count)), *name)
		return nil
	}
}

func deleteCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("delete", "Stage the deletion of matching rows.")
	name := cmd.Flag("name", "Table name.").Short('n').Required().String()
	dataPath := cmd.Flag("data", "CSV file of rows to delete.").Short('d').Required().String()

	return cmd, func(s *session) error {
		table, rows, err := s.tableRows(*name, *dataPath)
		if err != nil {
			return err
		}
		n, err := table.Delete(rows)
		if err != nil {
			return err
		}
		s.success("Staged %s row(s) for deletion from %s", humanize.Comma(int64(n)), *name)
		return nil
	}
}

func updateCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("update", "Stage the replacement of rows.")
	name := cmd.Flag("name", "Table name.").Short('n').Required().String()
	oldPath := cmd.Flag("old", "CSV file of the rows to replace.").Short('o').Required().String()
	dataPath := cmd.Flag("data", "CSV file of the replacement rows, in the same order.").Short('d').Required().String()

	return cmd, func(s *session) error {
		table, updated, err := s.tableRows(*name, *dataPath)
		if err != nil {
			return err
		}
		old, err := db.ReadData(*oldPath, s.s3(), table.Schema)
		if err != nil {
			return err
		}
		n, err := table.Update(old, updated)
		if err != nil {
			return err
		}
		s.success("Staged %s row(s) for update in %s", humanize.Comma(int64(n)), *name)
		return nil
	}
}

func commitCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("commit", "Commit the staged changes as a new version.")
	name := cmd.Flag("name", "Table name.").Short('n').Required().String()
	message := cmd.Flag("message", "Commit message.").Short('m').Required().String()

	return cmd, func(s *session) error {
		table, err := s.table(*name)
		if err != nil {
			return err
		}
		v, err := table.Commit(*message, time.Time{})
		if err != nil {
			return err
		}
		s.success("Committed %s version %d", *name, v)
		return nil
	}
}

func checkoutCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("checkout", "Replace the workspace with a committed version.")
	name := cmd.Flag("name", "Table name.").Short('n').Required().String()
	v := cmd.Flag("version", "Version to check out.").Short('v').Required().Int64()

	return cmd, func(s *session) error {
		table, err := s.table(*name)
		if err != nil {
			return err
		}
		if err := table.Checkout(version(*v)); err != nil {
			return err
		}
		s.success("Checked out %s version %d", *name, *v)
		return nil
	}
}

func mergeCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("merge", "Merge a version into the head.")
	name := cmd.Flag("name", "Table name.").Short('n').Required().String()
	v := cmd.Flag("version", "Version to merge.").Short('v').Required().Int64()
	resolutionPath := cmd.Flag("resolution", "Conflict report with the keep column filled in.").Short('r').String()
	reportPath := cmd.Flag("output", "Write the conflict report to this CSV file.").Short('o').String()

	return cmd, func(s *session) error {
		table, err := s.table(*name)
		if err != nil {
			return err
		}
		var resolution merge.Resolution
		if *resolutionPath != "" {
			if resolution, err = db.ReadResolution(*resolutionPath, s.s3()); err != nil {
				return err
			}
		}

		result, err := table.Merge(version(*v), resolution)
		if err != nil {
			return err
		}
		switch {
		case result.Report != nil:
			n := len(result.Report.Conflicts)
			if *reportPath != "" {
				if err := db.WriteCSV(*reportPath, s.s3(), db.ReportRecords(result.Report, table.Schema)); err != nil {
					return err
				}
				noticeColor.Fprintf(s.out, "Wrote %d conflict(s) to %s\n", n, *reportPath)
			} else {
				db.ConflictResult(table, result.Report, time.Now()).Display(s.out)
			}
			return fmt.Errorf("merge stopped on %d conflict(s); fill in the keep column and rerun with -r", n)
		case result.NoOp:
			s.success("Version %d is already merged into %s", *v, *name)
		default:
			s.success("Merged version %d into %s as version %d (base %d)", *v, *name, result.Version, result.Base)
		}
		return nil
	}
}

func diffCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("diff", "Show the rows only one of two versions holds.")
	name := cmd.Flag("name", "Table name.").Short('n').Required().String()
	a := cmd.Flag("from", "First version.").Short('a').Required().Int64()
	b := cmd.Flag("to", "Second version.").Short('b').Required().Int64()

	return cmd, func(s *session) error {
		table, err := s.table(*name)
		if err != nil {
			return err
		}
		diff, err := table.Diff(version(*a), version(*b))
		if err != nil {
			return err
		}
		db.DiffResult(diff, time.Now()).Display(s.out)
		return nil
	}
}

func dumpCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("dump", "Copy the workspace into a plain table.")
	name := cmd.Flag("name", "Table name.").Short('n').Required().String()
	output := cmd.Flag("output", "Name of the new table.").Short('o').Required().String()

	return cmd, func(s *session) error {
		table, err := s.table(*name)
		if err != nil {
			return err
		}
		if err := table.Dump(*output); err != nil {
			return err
		}
		s.success("Dumped %s into %s", *name, *output)
		return nil
	}
}

func logCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("log", "Show the commits of a table, newest first.")
	name := cmd.Flag("name", "Table name.").Short('n').Required().String()

	return cmd, func(s *session) error {
		table, err := s.table(*name)
		if err != nil {
			return err
		}
		entries, err := table.Log()
		if err != nil {
			return err
		}
		for _, entry := range entries {
			promptColor.Fprintf(s.out, "commit %d\n", entry.Version)
			fmt.Fprintf(s.out, "Author: %s\nDate: %s (%s)\nMessage: %s\n\n",
				entry.Author, entry.Date.Format(time.DateTime), humanize.Time(entry.Date), entry.Message)
		}
		return nil
	}
}

func historyCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("history", "Show the commits of the metadata repository, newest first.")
	limit := cmd.Flag("limit", "Number of commits to show; 0 shows all.").Short('l').Default("20").Int()
	since := cmd.Flag("since", "Only show commits at or after this duration ago (e.g. 24h).").Duration()

	return cmd, func(s *session) error {
		engine, err := s.open()
		if err != nil {
			return err
		}
		var transactions []ps.Transaction
		if *since > 0 {
			transactions, err = engine.TransactionsSince(time.Now().Add(-*since))
		} else {
			transactions, err = engine.History(*limit)
		}
		if err != nil {
			return err
		}
		for _, txn := range transactions {
			promptColor.Fprintf(s.out, "%s", txn.Id[:min(len(txn.Id), 10)])
			fmt.Fprintf(s.out, " %s %s %s\n", humanize.Time(txn.When), txn.Author, strings.TrimSpace(txn.Message))
		}
		return nil
	}
}

func runCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("run", "Run the statements of a file.")
	input := cmd.Flag("input", "File of statements separated by semicolons.").Short('i').Required().String()
	output := cmd.Flag("output", "Write the rows of the last query to this CSV file.").Short('o').String()

	return cmd, func(s *session) error {
		if _, err := s.open(); err != nil {
			return err
		}
		script, err := db.ReadScript(*input, s.s3())
		if err != nil {
			return err
		}
		last, err := s.runScript(script, *output == "")
		if err != nil {
			return err
		}
		if *output == "" {
			return nil
		}
		if last == nil {
			return fmt.Errorf("%s has no query to write", *input)
		}
		records := append([][]string{last.Columns}, last.Data...)
		if err := db.WriteCSV(*output, s.s3(), records); err != nil {
			return err
		}
		s.success("Wrote %s row(s) to %s", humanize.Comma(int64(len(last.Data))), *output)
		return nil
	}
}

func dropCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("drop", "Take a table out of version control.")
	name := cmd.Flag("name", "Table name.").Short('n').Required().String()
	keep := cmd.Flag("keep", "Keep the workspace as a plain table with the same name.").Bool()

	return cmd, func(s *session) error {
		engine, err := s.open()
		if err != nil {
			return err
		}
		if err := engine.Remove(*name, *keep); err != nil {
			return err
		}
		s.success("Dropped %s", *name)
		return nil
	}
}

func (s *session) tableRows(name, path string) (*db.Table, [][]string, error) {
	table, err := s.table(name)
	if err != nil {
		return nil, nil, err
	}
	rows, err := db.ReadData(path, s.s3(), table.Schema)
	if err != nil {
		return nil, nil, err
	}
	return table, rows, nil
}
