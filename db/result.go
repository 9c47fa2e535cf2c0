package db

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nickyhof/orpheusplus/core"
)

type ResultType int

const (
	QueryResultType ResultType = iota
	CommitResultType
)

type Result interface {
	Type() ResultType
	Display(w io.Writer)
}

// QueryResult holds rows read by a statement.
type QueryResult struct {
	Columns          []string
	Data             [][]string
	RecordsRead      int
	ExecutionTimeSec float64
}

// CommitResult describes a statement that changed a workspace or the
// version graph. Version is the head after the statement.
type CommitResult struct {
	Table            string
	Action           string
	Version          core.VersionID
	RecordsWritten   int
	RecordsDeleted   int
	RowsAffected     int64
	ExecutionTimeSec float64
}

func (result QueryResult) Type() ResultType {
	return QueryResultType
}

func (result CommitResult) Type() ResultType {
	return CommitResultType
}

// formatDuration formats a duration in human-readable form
func formatDuration(secs float64) string {
	switch {
	case secs < 0.001:
		return "<1ms"
	case secs < 1:
		return fmt.Sprintf("%dms", int(secs*1000))
	case secs < 10:
		return fmt.Sprintf("%.1fs", secs)
	case secs < 60:
		return fmt.Sprintf("%ds", int(secs))
	}
	mins := int(secs / 60)
	if rest := int(secs) % 60; rest != 0 {
		return fmt.Sprintf("%dm%ds", mins, rest)
	}
	return fmt.Sprintf("%dm", mins)
}

func (result QueryResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result CommitResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result QueryResult) Display(w io.Writer) {
	if len(result.Data) > 0 {
		table := NewTextTable(w)
		table.Header(result.Columns)
		table.Bulk(result.Data)
		table.Render()
	}
	fmt.Fprintf(w, "%s rows (%s)\n", humanize.Comma(int64(result.RecordsRead)), result.ExecutionTime())
}

func (result CommitResult) Display(w io.Writer) {
	var parts []string
	if result.RecordsWritten > 0 {
		parts = append(parts, fmt.Sprintf("%s record(s) written", humanize.Comma(int64(result.RecordsWritten))))
	}
	if result.RecordsDeleted > 0 {
		parts = append(parts, fmt.Sprintf("%s record(s) deleted", humanize.Comma(int64(result.RecordsDeleted))))
	}
	if result.RowsAffected > 0 {
		parts = append(parts, fmt.Sprintf("%s row(s) affected", humanize.Comma(result.RowsAffected)))
	}
	if result.Action != "" {
		parts = append(parts, fmt.Sprintf("%s %s at version %d", result.Table, result.Action, result.Version))
	}

	if len(parts) == 0 {
		fmt.Fprintf(w, "OK (%s)\n", result.ExecutionTime())
		return
	}
	fmt.Fprintf(w, "%s (%s)\n", strings.Join(parts, ", "), result.ExecutionTime())
}
