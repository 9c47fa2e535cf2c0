package sql

import (
	"strconv"
	"strings"

	"github.com/nickyhof/orpheusplus/core"
)

type CommandType string

const (
	CommitCommand   CommandType = "commit"
	CheckoutCommand CommandType = "checkout"
	MergeCommand    CommandType = "merge"
	LogCommand      CommandType = "log"
	DiffCommand     CommandType = "diff"
)

// Command is a version control statement:
//
//	COMMIT VTABLE name ['message']
//	CHECKOUT VTABLE name OF VERSION n
//	MERGE VTABLE name OF VERSION n
//	LOG VTABLE name
//	DIFF VTABLE name OF VERSION a, b
type Command struct {
	Type     CommandType
	Table    string
	Message  string
	Version  core.VersionID
	Compared core.VersionID
}

// ParseCommand parses query when it starts with a command word. The
// boolean is false for any other statement.
func ParseCommand(query string) (Command, bool, error) {
	query = trimStatement(query)
	tokens := tokenize(query)

	first := tokens[0]
	if first.Type != Identifier {
		return Command{}, false, nil
	}
	var cmd Command
	switch CommandType(strings.ToLower(first.Value)) {
	case CommitCommand:
		cmd.Type = CommitCommand
	case CheckoutCommand:
		cmd.Type = CheckoutCommand
	case MergeCommand:
		cmd.Type = MergeCommand
	case LogCommand:
		cmd.Type = LogCommand
	case DiffCommand:
		cmd.Type = DiffCommand
	default:
		return Command{}, false, nil
	}

	p := &parser{query: query, tokens: tokens}
	p.next()
	if err := p.expect(VTable, "%s requires VTABLE", first.Value); err != nil {
		return Command{}, true, err
	}
	name := p.next()
	if name.Type != Identifier {
		return Command{}, true, syntaxError("expected a table name, found %q", name.Value)
	}
	cmd.Table = name.Value

	var err error
	switch cmd.Type {
	case CommitCommand:
		if p.peek().Type == String {
			cmd.Message = p.next().Value
		}
	case CheckoutCommand, MergeCommand:
		cmd.Version, err = p.version()
	case DiffCommand:
		if cmd.Version, err = p.version(); err == nil {
			if err = p.expect(Comma, "DIFF requires two versions"); err == nil {
				cmd.Compared, err = p.number()
			}
		}
	}
	if err != nil {
		return Command{}, true, err
	}
	if tok := p.peek(); tok.Type != EOF {
		return Command{}, true, syntaxError("unexpected %q after %s", tok.Value, first.Value)
	}
	return cmd, true, nil
}

// version reads OF VERSION n.
func (p *parser) version() (core.VersionID, error) {
	if err := p.expect(Of, "expected OF VERSION"); err != nil {
		return 0, err
	}
	if err := p.expect(Version, "expected VERSION after OF"); err != nil {
		return 0, err
	}
	return p.number()
}

func (p *parser) number() (core.VersionID, error) {
	tok := p.next()
	if tok.Type != Int {
		return 0, syntaxError("expected a version number, found %q", tok.Value)
	}
	v, err := strconv.ParseInt(tok.Value, 10, 64)
	if err != nil {
		return 0, syntaxError("invalid version %q", tok.Value)
	}
	return core.VersionID(v), nil
}
