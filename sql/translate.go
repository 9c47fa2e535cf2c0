package sql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nickyhof/orpheusplus/core"
)

type Operation string

const (
	SelectOperation Operation = "select"
	InsertOperation Operation = "insert"
	DeleteOperation Operation = "delete"
	UpdateOperation Operation = "update"
	OtherOperation  Operation = "other"
)

// SetClause is one assignment of an UPDATE.
type SetClause struct {
	Column string
	Value  string
}

// Intent is a mutation of a versioned table, executed by the table itself
// so rid bookkeeping stays consistent. Where holds the condition without
// the WHERE keyword, or "" for every row.
type Intent struct {
	Table     string
	Operation Operation
	Columns   []string
	Data      [][]string
	Set       []SetClause
	Where     string
}

// Translation is the result of Translate: a query to run as is, or an
// intent for mutations of versioned tables.
type Translation struct {
	Operation Operation
	Query     string
	Intent    *Intent
	// Workspaces names the versioned tables a query reads from the
	// user's workspace.
	Workspaces []string
}

type edit struct {
	start, end int
	text       string
}

// Translate rewrites one statement of the versioned dialect for user.
// Statements that do not mention VTABLE are returned unchanged.
func Translate(query, user string) (Translation, error) {
	query = trimStatement(query)
	tokens := tokenize(query)

	if tok, ok := findUnknown(tokens); ok {
		return Translation{}, syntaxError("unexpected %q at offset %d", tok.Value, tok.Pos)
	}

	operation := operationOf(tokens)
	if !slices.ContainsFunc(tokens, func(t Token) bool { return t.Type == VTable }) {
		return Translation{Operation: operation, Query: query}, nil
	}

	switch operation {
	case SelectOperation:
		rewritten, workspaces, err := translateSelect(query, tokens, user)
		if err != nil {
			return Translation{}, err
		}
		return Translation{Operation: operation, Query: rewritten, Workspaces: workspaces}, nil
	case InsertOperation, DeleteOperation, UpdateOperation:
		intent, err := translateMutation(query, tokens, operation)
		if err != nil {
			return Translation{}, err
		}
		return Translation{Operation: operation, Intent: intent}, nil
	}
	return Translation{}, syntaxError("VTABLE is only supported in SELECT, INSERT, DELETE and UPDATE")
}

// Split cuts a script into statements at semicolons outside quotes.
// Empty statements are dropped.
func Split(script string) []string {
	var statements []string
	start := 0
	for _, tok := range tokenize(script) {
		if tok.Type != Semicolon && tok.Type != EOF {
			continue
		}
		if statement := strings.TrimSpace(script[start:tok.Pos]); statement != "" {
			statements = append(statements, statement)
		}
		start = tok.End
	}
	return statements
}

// StripRowID removes the leading rid column that every physical table
// carries, along with its value in each row.
func StripRowID(columns []string, rows [][]any) ([]string, [][]any) {
	if len(columns) == 0 || !strings.EqualFold(columns[0], core.RowIDColumn) {
		return columns, rows
	}
	stripped := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) > 0 {
			stripped[i] = row[1:]
		}
	}
	return columns[1:], stripped
}

func syntaxError(format string, args ...any) error {
	return core.ErrDialectSyntax.New(fmt.Sprintf(format, args...))
}

func trimStatement(query string) string {
	query = strings.TrimSpace(query)
	for strings.HasSuffix(query, ";") {
		query = strings.TrimSpace(strings.TrimSuffix(query, ";"))
	}
	return query
}

func findUnknown(tokens []Token) (Token, bool) {
	for _, tok := range tokens {
		if tok.Type == Unknown {
			return tok, true
		}
	}
	return Token{}, false
}

func operationOf(tokens []Token) Operation {
	switch tokens[0].Type {
	case Select:
		return SelectOperation
	case Insert:
		return InsertOperation
	case Delete:
		return DeleteOperation
	case Update:
		return UpdateOperation
	}
	return OtherOperation
}

// vtableRef is a VTABLE reference at tokens[at].
type vtableRef struct {
	at        int
	name      Token
	versioned bool
	version   Token
	last      int // index of the last token of the reference
}

// tokenAt returns tokens[i], or the final EOF past the end.
func tokenAt(tokens []Token, i int) Token {
	if i >= len(tokens) {
		return tokens[len(tokens)-1]
	}
	return tokens[i]
}

// parseRef reads VTABLE name [OF VERSION int] at tokens[at].
func parseRef(tokens []Token, at int) (vtableRef, error) {
	ref := vtableRef{at: at, last: at + 1}
	name := tokenAt(tokens, at+1)
	if name.Type != Identifier {
		return ref, syntaxError("VTABLE must be followed by a table name")
	}
	ref.name = name

	if tokenAt(tokens, at+2).Type != Of {
		if tokenAt(tokens, at+2).Type == Version {
			return ref, syntaxError("VERSION must follow VTABLE %s OF", name.Value)
		}
		return ref, nil
	}
	if tokenAt(tokens, at+3).Type != Version {
		return ref, syntaxError("OF must be followed by VERSION")
	}
	if tokenAt(tokens, at+4).Type != Int {
		return ref, syntaxError("VERSION must be followed by an integer")
	}
	ref.versioned = true
	ref.version = tokens[at+4]
	ref.last = at + 4
	return ref, nil
}

// checkVersionPlacement rejects VERSION or OF keywords outside a
// reference.
func checkVersionPlacement(tokens []Token, refs []vtableRef) error {
	owned := make(map[int]bool)
	for _, ref := range refs {
		for i := ref.at; i <= ref.last; i++ {
			owned[i] = true
		}
	}
	for i, tok := range tokens {
		if (tok.Type == Version || tok.Type == Of) && !owned[i] {
			return syntaxError("%s may only follow VTABLE name OF", strings.ToUpper(tok.Value))
		}
	}
	return nil
}

func collectRefs(tokens []Token) ([]vtableRef, error) {
	var refs []vtableRef
	for i, tok := range tokens {
		if tok.Type != VTable {
			continue
		}
		ref, err := parseRef(tokens, i)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, checkVersionPlacement(tokens, refs)
}

func translateSelect(query string, tokens []Token, user string) (string, []string, error) {
	refs, err := collectRefs(tokens)
	if err != nil {
		return "", nil, err
	}

	var (
		edits      []edit
		workspaces []string
	)
	for _, ref := range refs {
		if !ref.versioned {
			if !slices.Contains(workspaces, ref.name.Value) {
				workspaces = append(workspaces, ref.name.Value)
			}
			edits = append(edits, edit{
				start: tokens[ref.at].Pos,
				end:   ref.name.End,
				text:  core.HeadTable(ref.name.Value, user),
			})
			continue
		}
		rewritten, err := rewriteVersioned(tokens, ref)
		if err != nil {
			return "", nil, err
		}
		edits = append(edits, rewritten...)
	}
	return splice(query, edits), workspaces, nil
}

// membershipFilter selects the history rows of one version.
func membershipFilter(name, version string) string {
	return fmt.Sprintf("rid IN (SELECT rid FROM %s WHERE version = %s)", core.MembershipTable(name), version)
}

// rewriteVersioned turns a versioned reference into a filter on the history
// table. When the reference is the whole FROM clause the filter joins the
// statement's WHERE; elsewhere it becomes a derived table.
func rewriteVersioned(tokens []Token, ref vtableRef) ([]edit, error) {
	filter := membershipFilter(ref.name.Value, ref.version.Value)
	next := tokens[ref.last+1]
	start := tokens[ref.at].Pos

	if ref.at > 0 && tokens[ref.at-1].Type == From && endsClause(next) {
		text := core.HistoryTable(ref.name.Value) + " WHERE " + filter
		if next.Type != Where {
			return []edit{{start: start, end: ref.version.End, text: text}}, nil
		}

		end, hasOr := conditionEnd(tokens, ref.last+2)
		if end == ref.last+2 {
			return nil, syntaxError("WHERE requires a condition")
		}
		if !hasOr {
			return []edit{{start: start, end: next.End, text: text + " AND"}}, nil
		}
		closing := tokens[end-1].End
		return []edit{
			{start: start, end: tokens[ref.last+2].Pos, text: text + " AND ("},
			{start: closing, end: closing, text: ")"},
		}, nil
	}

	derived := fmt.Sprintf("(SELECT * FROM %s WHERE %s)", core.HistoryTable(ref.name.Value), filter)
	if next.Type != As && next.Type != Identifier {
		derived += " AS " + alias(ref.name.Value)
	}
	return []edit{{start: start, end: ref.version.End, text: derived}}, nil
}

// endsClause reports whether tok can follow the only table of a FROM.
func endsClause(tok Token) bool {
	switch tok.Type {
	case Where, Group, Order, Having, Limit, Union, ParenClose, EOF:
		return true
	}
	return false
}

// conditionEnd returns the index just past the condition starting at from,
// and whether it has an OR outside parentheses.
func conditionEnd(tokens []Token, from int) (int, bool) {
	depth := 0
	hasOr := false
	for i := from; i < len(tokens); i++ {
		switch tokens[i].Type {
		case ParenOpen:
			depth++
		case ParenClose:
			if depth == 0 {
				return i, hasOr
			}
			depth--
		case Or:
			if depth == 0 {
				hasOr = true
			}
		case Group, Order, Having, Limit, Union, EOF:
			if depth == 0 {
				return i, hasOr
			}
		}
	}
	return len(tokens) - 1, hasOr
}

func alias(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// splice applies non-overlapping edits to query.
func splice(query string, edits []edit) string {
	slices.SortStableFunc(edits, func(a, b edit) int { return a.start - b.start })
	var b strings.Builder
	last := 0
	for _, e := range edits {
		b.WriteString(query[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(query[last:])
	return b.String()
}

// parser walks the tokens of a mutation.
type parser struct {
	query  string
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != EOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(t TokenType) bool {
	if p.peek().Type == t {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(t TokenType, format string, args ...any) error {
	if !p.accept(t) {
		return syntaxError(format, args...)
	}
	return nil
}

// rest returns the source text from the current token to the end.
func (p *parser) rest() string {
	return strings.TrimSpace(p.query[p.peek().Pos:])
}

func translateMutation(query string, tokens []Token, operation Operation) (*Intent, error) {
	refs, err := collectRefs(tokens)
	if err != nil {
		return nil, err
	}
	if len(refs) != 1 {
		return nil, syntaxError("%s must reference exactly one VTABLE, found %d", strings.ToUpper(string(operation)), len(refs))
	}
	if refs[0].versioned {
		return nil, syntaxError("VERSION is only allowed in SELECT")
	}

	p := &parser{query: query, tokens: tokens}
	p.next()
	switch operation {
	case InsertOperation:
		return p.insert()
	case DeleteOperation:
		return p.delete()
	default:
		return p.update()
	}
}

// table reads VTABLE name and rejects a second table after it.
func (p *parser) table() (string, error) {
	if err := p.expect(VTable, "expected VTABLE, found %s", p.peek().Value); err != nil {
		return "", err
	}
	name := p.next().Value
	if p.peek().Type == Comma {
		return "", syntaxError("only one table may be modified per statement")
	}
	return name, nil
}

func (p *parser) insert() (*Intent, error) {
	if err := p.expect(Into, "INSERT requires INTO"); err != nil {
		return nil, err
	}
	name, err := p.table()
	if err != nil {
		return nil, err
	}
	intent := &Intent{Table: name, Operation: InsertOperation}

	if p.accept(ParenOpen) {
		for {
			tok := p.next()
			if tok.Type != Identifier {
				return nil, syntaxError("expected column name, found %q", tok.Value)
			}
			intent.Columns = append(intent.Columns, tok.Value)
			if p.accept(ParenClose) {
				break
			}
			if err := p.expect(Comma, "expected , or ) in column list"); err != nil {
				return nil, err
			}
		}
	}

	if err := p.expect(Values, "INSERT requires VALUES"); err != nil {
		return nil, err
	}
	for {
		row, err := p.tuple()
		if err != nil {
			return nil, err
		}
		if len(intent.Columns) > 0 && len(row) != len(intent.Columns) {
			return nil, syntaxError("row has %d values for %d columns", len(row), len(intent.Columns))
		}
		if len(intent.Data) > 0 && len(row) != len(intent.Data[0]) {
			return nil, syntaxError("rows have different numbers of values")
		}
		intent.Data = append(intent.Data, row)
		if !p.accept(Comma) {
			break
		}
	}
	if tok := p.peek(); tok.Type != EOF {
		return nil, syntaxError("unexpected %q after VALUES", tok.Value)
	}
	return intent, nil
}

func (p *parser) tuple() ([]string, error) {
	if err := p.expect(ParenOpen, "expected ( before values"); err != nil {
		return nil, err
	}
	var row []string
	for {
		value, err := p.literal()
		if err != nil {
			return nil, err
		}
		row = append(row, value)
		if p.accept(ParenClose) {
			return row, nil
		}
		if err := p.expect(Comma, "expected , or ) in values"); err != nil {
			return nil, err
		}
	}
}

// literal reads a string, a signed number, NULL or a bare word such as
// TRUE. NULL comes back as core.NullValue.
func (p *parser) literal() (string, error) {
	tok := p.next()
	switch tok.Type {
	case String, Int, Float, Identifier:
		return tok.Value, nil
	case Minus:
		number := p.next()
		if number.Type != Int && number.Type != Float {
			return "", syntaxError("expected number after -")
		}
		return "-" + number.Value, nil
	case Null:
		return core.NullValue, nil
	}
	return "", syntaxError("expected a value, found %q", tok.Value)
}

func (p *parser) delete() (*Intent, error) {
	if err := p.expect(From, "DELETE requires FROM"); err != nil {
		return nil, err
	}
	name, err := p.table()
	if err != nil {
		return nil, err
	}
	where, err := p.where()
	if err != nil {
		return nil, err
	}
	return &Intent{Table: name, Operation: DeleteOperation, Where: where}, nil
}

func (p *parser) update() (*Intent, error) {
	name, err := p.table()
	if err != nil {
		return nil, err
	}
	if err := p.expect(Set, "UPDATE requires SET"); err != nil {
		return nil, err
	}

	intent := &Intent{Table: name, Operation: UpdateOperation}
	for {
		column := p.next()
		if column.Type != Identifier {
			return nil, syntaxError("expected column name in SET, found %q", column.Value)
		}
		if err := p.expect(Equals, "expected = after %s", column.Value); err != nil {
			return nil, err
		}
		value, err := p.literal()
		if err != nil {
			return nil, err
		}
		intent.Set = append(intent.Set, SetClause{Column: column.Value, Value: value})
		if !p.accept(Comma) {
			break
		}
	}

	intent.Where, err = p.where()
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// where reads an optional trailing WHERE and returns its condition.
func (p *parser) where() (string, error) {
	switch p.peek().Type {
	case EOF:
		return "", nil
	case Where:
		p.next()
		condition := p.rest()
		if condition == "" {
			return "", syntaxError("WHERE requires a condition")
		}
		return condition, nil
	}
	return "", syntaxError("unexpected %q", p.peek().Value)
}
