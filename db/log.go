package db

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/ps"
)

const logDateFormat = "2006-01-02 15:04:05"

// LogEntry is one commit of a table's log.
type LogEntry struct {
	Version core.VersionID
	Author  string
	Date    time.Time
	Message string
}

func (entry LogEntry) String() string {
	return fmt.Sprintf("commit %d\nAuthor: %s\nDate: %s\nMessage: %s\n\n",
		entry.Version, entry.Author, entry.Date.Format(logDateFormat), entry.Message)
}

// readLog returns the entries of a commit log, newest first.
func readLog(persistence *ps.Persistence, database, table string) ([]LogEntry, error) {
	data, err := persistence.Read(ps.LogPath(database, table))
	if errors.Is(err, ps.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseLog(string(data))
}

func parseLog(text string) ([]LogEntry, error) {
	var (
		entries []LogEntry
		current *LogEntry
	)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "commit "):
			v, err := strconv.ParseInt(strings.TrimPrefix(line, "commit "), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid log line %q", line)
			}
			entries = append(entries, LogEntry{Version: core.VersionID(v)})
			current = &entries[len(entries)-1]
		case current == nil || line == "":
		case strings.HasPrefix(line, "Author: "):
			current.Author = strings.TrimPrefix(line, "Author: ")
		case strings.HasPrefix(line, "Date: "):
			date, err := time.ParseInLocation(logDateFormat, strings.TrimPrefix(line, "Date: "), time.Local)
			if err != nil {
				return nil, fmt.Errorf("invalid log date %q", line)
			}
			current.Date = date
		case strings.HasPrefix(line, "Message: "):
			current.Message = strings.TrimPrefix(line, "Message: ")
		default:
			current.Message += "\n" + line
		}
	}
	return entries, scanner.Err()
}

// stageLog prepends entry to the table's log within txn.
func stageLog(txn *ps.TransactionBuilder, persistence *ps.Persistence, database, table string, entry LogEntry) error {
	previous, err := persistence.Read(ps.LogPath(database, table))
	if err != nil && !errors.Is(err, ps.ErrNotFound) {
		return err
	}
	return txn.AddWrite(ps.LogPath(database, table), append([]byte(entry.String()), previous...))
}
