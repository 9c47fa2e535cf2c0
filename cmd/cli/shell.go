package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nickyhof/orpheusplus/db"
	"github.com/nickyhof/orpheusplus/sql"
	"gopkg.in/alecthomas/kingpin.v2"
)

const historyLimit = 1000

// Shell holds the state of an interactive session.
type Shell struct {
	session     *session
	engine      *db.Engine
	history     []string
	historyFile string
	done        bool
}

func shellCommand(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	cmd := app.Command("shell", "Start an interactive session.")

	return cmd, func(s *session) error {
		engine, err := s.open()
		if err != nil {
			return err
		}
		shell := &Shell{session: s, engine: engine, historyFile: historyPath()}
		shell.loadHistory()
		defer shell.saveHistory()

		printBanner(s.out)
		shell.run(s.in)
		return nil
	}
}

func printBanner(w io.Writer) {
	fmt.Fprintln(w)
	promptColor.Fprintf(w, "orpheusplus %s\n", Version)
	fmt.Fprintln(w, "Type .help for commands, .quit to exit")
	fmt.Fprintln(w)
}

func (shell *Shell) run(in io.Reader) {
	out := shell.session.out
	reader := bufio.NewReader(in)
	var buffer strings.Builder

	for !shell.done {
		fmt.Fprint(out, shell.prompt(buffer.Len() > 0))

		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			fmt.Fprintln(out)
			successColor.Fprintln(out, "Goodbye!")
			return
		}
		input = strings.TrimRight(input, "\r\n")
		if strings.TrimSpace(input) == "" {
			continue
		}

		if buffer.Len() == 0 && strings.HasPrefix(strings.TrimSpace(input), ".") {
			shell.handleCommand(input)
			continue
		}

		// Statements run once terminated by a semicolon.
		buffer.WriteString(input)
		trimmed := strings.TrimSpace(buffer.String())
		if !strings.HasSuffix(trimmed, ";") {
			buffer.WriteString("\n")
			continue
		}
		buffer.Reset()

		statement := strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
		if statement == "" {
			continue
		}
		shell.addToHistory(statement + ";")

		result, err := shell.engine.Execute(statement)
		if err != nil {
			printError(out, err)
			continue
		}
		result.Display(out)
	}
}

func (shell *Shell) prompt(continued bool) string {
	if continued {
		return promptColor.Sprint("   ...> ")
	}
	return promptColor.Sprintf("orpheusplus(%s)> ", shell.engine.Identity.Name)
}

func (shell *Shell) handleCommand(input string) {
	out := shell.session.out
	parts := strings.Fields(strings.TrimSpace(input))

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit", ".q":
		successColor.Fprintln(out, "Goodbye!")
		shell.done = true

	case ".help", ".h", ".?":
		shell.printHelp()

	case ".tables", ".ls":
		names, err := shell.engine.Tables()
		if err != nil {
			printError(out, err)
			return
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}

	case ".log":
		if len(parts) < 2 {
			errorColor.Fprintln(out, "✗ Usage: .log <table>")
			return
		}
		shell.execute(fmt.Sprintf("LOG VTABLE %s", parts[1]))

	case ".import":
		if len(parts) < 2 {
			errorColor.Fprintln(out, "✗ Usage: .import <file.sql>")
			return
		}
		script, err := db.ReadScript(parts[1], shell.session.s3())
		if err != nil {
			printError(out, err)
			return
		}
		if _, err := shell.session.runScript(script, false); err != nil {
			printError(out, err)
		}

	case ".history":
		shell.printHistory()

	case ".clear", ".cls":
		fmt.Fprint(out, "\033[H\033[2J")

	case ".version":
		fmt.Fprintf(out, "orpheusplus version %s\n", Version)

	default:
		errorColor.Fprintf(out, "✗ Unknown command: %s (type .help for commands)\n", parts[0])
	}
}

func (shell *Shell) execute(statement string) {
	result, err := shell.engine.Execute(statement)
	if err != nil {
		printError(shell.session.out, err)
		return
	}
	result.Display(shell.session.out)
}

func (shell *Shell) printHelp() {
	out := shell.session.out
	fmt.Fprintln(out)
	promptColor.Fprintln(out, "Special Commands:")
	fmt.Fprintln(out, "  .help, .h        Show this help message")
	fmt.Fprintln(out, "  .quit, .exit     Exit the shell")
	fmt.Fprintln(out, "  .tables          List the versioned tables")
	fmt.Fprintln(out, "  .log <table>     Show the commits of a table")
	fmt.Fprintln(out, "  .import <file>   Run the statements of a file")
	fmt.Fprintln(out, "  .history         Show command history")
	fmt.Fprintln(out, "  .clear           Clear the screen")
	fmt.Fprintln(out, "  .version         Show version info")
	fmt.Fprintln(out)
	promptColor.Fprintln(out, "Versioned Statements:")
	fmt.Fprintln(out, "  SELECT ... FROM VTABLE <t> [OF VERSION <n>] [WHERE ...];")
	fmt.Fprintln(out, "  INSERT INTO VTABLE <t> [(<cols>)] VALUES (<vals>), ...;")
	fmt.Fprintln(out, "  UPDATE VTABLE <t> SET <col>=<val> [WHERE ...];")
	fmt.Fprintln(out, "  DELETE FROM VTABLE <t> [WHERE ...];")
	fmt.Fprintln(out, "  COMMIT VTABLE <t> ['message'];")
	fmt.Fprintln(out, "  CHECKOUT VTABLE <t> OF VERSION <n>;")
	fmt.Fprintln(out, "  MERGE VTABLE <t> OF VERSION <n>;")
	fmt.Fprintln(out, "  DIFF VTABLE <t> OF VERSION <a>, <b>;")
	fmt.Fprintln(out, "  LOG VTABLE <t>;")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Any other statement runs on the storage engine unchanged.")
	fmt.Fprintln(out)
}

func (shell *Shell) addToHistory(cmd string) {
	if len(shell.history) > 0 && shell.history[len(shell.history)-1] == cmd {
		return
	}
	shell.history = append(shell.history, cmd)
	if len(shell.history) > historyLimit {
		shell.history = shell.history[len(shell.history)-historyLimit:]
	}
}

func (shell *Shell) printHistory() {
	out := shell.session.out
	if len(shell.history) == 0 {
		fmt.Fprintln(out, "No command history")
		return
	}
	start := max(0, len(shell.history)-20)
	for i := start; i < len(shell.history); i++ {
		fmt.Fprintf(out, "  %3d  %s\n", i+1, shell.history[i])
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".orpheusplus_history")
}

func (shell *Shell) loadHistory() {
	if shell.historyFile == "" {
		return
	}
	file, err := os.Open(shell.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		shell.history = append(shell.history, scanner.Text())
	}
}

func (shell *Shell) saveHistory() {
	if shell.historyFile == "" {
		return
	}
	file, err := os.Create(shell.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	start := max(0, len(shell.history)-historyLimit)
	for _, line := range shell.history[start:] {
		_, _ = file.WriteString(line + "\n")
	}
}

// runScript executes each statement of script, printing a one-line
// summary per statement. With display set, query rows are printed too.
// It returns the result of the last query.
func (s *session) runScript(script string, display bool) (*db.QueryResult, error) {
	var (
		last             *db.QueryResult
		succeeded, failed int
	)
	for i, stmt := range sql.Split(script) {
		result, err := s.engine.Execute(stmt)
		if err != nil {
			errorColor.Fprintf(s.out, "[%d] ✗ %s\n", i+1, truncate(stmt, 50))
			fmt.Fprintf(s.out, "      Error: %v\n", err)
			failed++
			continue
		}
		succeeded++

		switch r := result.(type) {
		case db.QueryResult:
			last = &r
			successColor.Fprintf(s.out, "[%d] ✓ %s (%s rows)\n", i+1, truncate(stmt, 50), humanize.Comma(int64(r.RecordsRead)))
			if display {
				r.Display(s.out)
			}
		case db.CommitResult:
			var details []string
			if r.RecordsWritten > 0 {
				details = append(details, fmt.Sprintf("%d written", r.RecordsWritten))
			}
			if r.RecordsDeleted > 0 {
				details = append(details, fmt.Sprintf("%d deleted", r.RecordsDeleted))
			}
			if r.Action != "" {
				details = append(details, fmt.Sprintf("%s at version %d", r.Action, r.Version))
			}
			detail := ""
			if len(details) > 0 {
				detail = " (" + strings.Join(details, ", ") + ")"
			}
			successColor.Fprintf(s.out, "[%d] ✓ %s%s\n", i+1, truncate(stmt, 50), detail)
		}
	}

	fmt.Fprintf(s.out, "\n%d succeeded, %d failed\n", succeeded, failed)
	if failed > 0 {
		return last, fmt.Errorf("%d of %d statement(s) failed", failed, succeeded+failed)
	}
	return last, nil
}

// truncate shortens a string to max length with ellipsis
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
