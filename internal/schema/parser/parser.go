// Package parser builds the untyped statement tree for ERD DSL documents.
package parser

import (
	"fmt"
	"strings"

	"github.com/electwix/erd-catalyst/internal/plugin"
	"github.com/electwix/erd-catalyst/internal/schema/ast"
	"github.com/electwix/erd-catalyst/internal/schema/tokenizer"
)

// Error reports a structurally invalid statement.
type Error struct {
	Path     string
	Line     int
	Column   int
	Expected string
	Found    string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path != "" {
		return fmt.Sprintf("%s:%d:%d: expected %s, found %s", e.Path, e.Line, e.Column, e.Expected, e.Found)
	}
	return fmt.Sprintf("%d:%d: expected %s, found %s", e.Line, e.Column, e.Expected, e.Found)
}

// Errors collects every parse error of one document.
type Errors []*Error

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, err := range e {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "\n")
}

// Unwrap exposes the individual errors to errors.As.
func (e Errors) Unwrap() []error {
	out := make([]error, len(e))
	for i, err := range e {
		out[i] = err
	}
	return out
}

// Option configures a parse.
type Option func(*Parser)

// WithPlugins makes the registry's keywords valid top-level statements.
func WithPlugins(reg *plugin.Registry) Option {
	return func(p *Parser) {
		p.plugins = reg
	}
}

// Parser consumes tokenizer output and produces an ast.File.
type Parser struct {
	path    string
	src     string
	tokens  []tokenizer.Token
	pos     int
	limit   int
	plugins *plugin.Registry

	file       *ast.File
	errs       Errors
	recovering bool
}

// Parse constructs the statement tree from tokens. src must be the text the
// tokens were scanned from; opaque bodies are sliced from it verbatim.
// Statements that fail to parse are skipped and reported in the returned
// error, which is an Errors value when non-nil.
func Parse(path string, src []byte, tokens []tokenizer.Token, opts ...Option) (*ast.File, error) {
	p := &Parser{
		path:   path,
		src:    string(src),
		tokens: tokens,
		file:   &ast.File{Path: path},
	}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.tokens) == 0 || p.tokens[len(p.tokens)-1].Kind != tokenizer.KindEOF {
		// Guarantee an EOF token to simplify parsing loops.
		p.tokens = append(p.tokens, tokenizer.Token{Kind: tokenizer.KindEOF, File: path, Offset: len(src), End: len(src)})
	}
	p.limit = len(p.tokens) - 1
	p.parse()
	if len(p.errs) == 0 {
		return p.file, nil
	}
	return p.file, p.errs
}

func (p *Parser) parse() {
	for p.tokens[p.pos].Kind != tokenizer.KindEOF {
		start := p.pos
		end := p.statementEnd(start)
		p.limit = end

		tok := p.current()
		var stmt ast.Statement
		ok := true
		switch {
		case tok.Kind == tokenizer.KindEntity:
			stmt = p.parseEntity()
		case tok.Is("ENUM"):
			stmt, ok = p.parseEnum()
		case tok.Is("INDEX"):
			stmt, ok = p.parseIndex()
		case tok.Is("MATERIALIZED"):
			stmt, ok = p.parseView()
		case tok.Is("TRIGGER"):
			stmt, ok = p.parseTrigger()
		case tok.Is("EXTENSION"):
			stmt, ok = p.parseExtension()
		case p.isPluginKeyword(tok):
			stmt, ok = p.parseBlock()
		default:
			if !p.recovering {
				p.fail(tok, "entity or top-level statement")
			}
			ok = false
		}
		if ok && stmt != nil {
			p.file.Statements = append(p.file.Statements, stmt)
		}
		p.recovering = !ok
		p.pos = end
		p.limit = len(p.tokens) - 1
	}
}

// statementEnd returns the index of the first token after start that opens a
// new statement: the first token of a line that sits at column 1 or is an
// entity marker. Indented keywords continue the statement, so entities
// named Index or Trigger can type fields.
func (p *Parser) statementEnd(start int) int {
	for i := start + 1; i < len(p.tokens); i++ {
		tok := p.tokens[i]
		if tok.Kind == tokenizer.KindEOF {
			return i
		}
		if !p.firstOnLine(i) || tok.IsSymbol("}") || tok.IsSymbol(")") {
			continue
		}
		if tok.Column == 1 || tok.Kind == tokenizer.KindEntity {
			return i
		}
	}
	return len(p.tokens) - 1
}

// lineEnd returns the index of the first token after start on a later line.
func (p *Parser) lineEnd(start int) int {
	last := p.endLine(p.tokens[start])
	for i := start + 1; i < p.limit; i++ {
		if p.tokens[i].Line > last {
			return i
		}
		last = max(last, p.endLine(p.tokens[i]))
	}
	return p.limit
}

func (p *Parser) firstOnLine(i int) bool {
	if i == 0 {
		return true
	}
	return p.tokens[i].Line > p.endLine(p.tokens[i-1])
}

// endLine is the line a token finishes on; expression bodies may span lines.
func (p *Parser) endLine(tok tokenizer.Token) int {
	if tok.End <= tok.Offset || tok.End > len(p.src) {
		return tok.Line
	}
	return tok.Line + strings.Count(p.src[tok.Offset:tok.End], "\n")
}

func (p *Parser) isPluginKeyword(tok tokenizer.Token) bool {
	if tok.Kind != tokenizer.KindIdentifier || tok.Column != 1 {
		return false
	}
	_, ok := p.plugins.Lookup(tok.Text)
	return ok
}

func (p *Parser) parseEntity() *ast.Entity {
	head := p.advance()
	ent := &ast.Entity{
		Name:     head.Text,
		NameSpan: tokenizer.NewSpan(head),
		Span:     tokenizer.NewSpan(head),
	}
	if !p.atLineStart() && !p.atLimit() {
		p.fail(p.current(), "end of line after entity name")
		p.pos = p.lineEnd(p.pos)
	}
	stmtLimit := p.limit
	for p.pos < stmtLimit {
		lineEnd := p.lineEnd(p.pos)
		p.limit = lineEnd
		p.parseEntityLine(ent)
		if p.pos > 0 {
			ent.Span = ent.Span.Extend(p.previous())
		}
		p.pos = lineEnd
		p.limit = stmtLimit
	}
	return ent
}

func (p *Parser) atLineStart() bool {
	return p.pos < len(p.tokens) && p.firstOnLine(p.pos)
}

func (p *Parser) parseEntityLine(ent *ast.Entity) {
	tok := p.current()
	switch {
	case tok.Kind == tokenizer.KindKeyword && p.fieldFollows():
		if field, ok := p.parseField(); ok {
			ent.Fields = append(ent.Fields, field)
		}
	case tok.Is("PK") || tok.Is("UNIQUE"):
		if key, ok := p.parseKeyLine(); ok {
			ent.Keys = append(ent.Keys, key)
		}
	case tok.Is("CHECK"):
		p.advance()
		expr := p.current()
		if expr.Kind != tokenizer.KindExpr {
			p.fail(expr, "parenthesized CHECK expression")
			return
		}
		p.advance()
		if p.expectLineEnd() {
			ent.Keys = append(ent.Keys, &ast.KeyLine{Kind: ast.KeyCheck, Check: expr.Text, Span: tokenizer.SpanBetween(tok, expr)})
		}
	case tok.Is("PARTITION"), tok.Is("TTL"), tok.Is("FTS"), tok.Is("RLS"),
		tok.Is("POLICY"), tok.Is("AUDITABLE"), tok.Is("SOFT_DELETE"):
		if dir, ok := p.parseDirective(); ok {
			ent.Directives = append(ent.Directives, dir)
		}
	case tok.Is("HAS"), tok.Kind == tokenizer.KindIdentifier, tok.Kind == tokenizer.KindKeyword:
		if field, ok := p.parseField(); ok {
			ent.Fields = append(ent.Fields, field)
		}
	default:
		p.fail(tok, "field line or entity constraint")
	}
}

// fieldFollows reports whether the current token is a type name: the next
// token, after an optional argument list, is a sigil field.
func (p *Parser) fieldFollows() bool {
	i := 1
	if p.peek(i).IsSymbol("(") {
		depth := 0
		for ; ; i++ {
			tok := p.peek(i)
			if tok.Kind == tokenizer.KindEOF {
				return false
			}
			if tok.IsSymbol("(") {
				depth++
			} else if tok.IsSymbol(")") {
				depth--
				if depth == 0 {
					break
				}
			}
		}
		i++
	}
	return p.peek(i).Kind == tokenizer.KindField
}

func (p *Parser) parseField() (*ast.Field, bool) {
	start := p.current()
	field := &ast.Field{}
	if p.matchKeyword("HAS") {
		p.advance()
		field.Has = true
	}

	typeTok := p.current()
	if typeTok.Kind != tokenizer.KindIdentifier && (typeTok.Kind != tokenizer.KindKeyword || typeTok.Is("HAS")) {
		p.fail(typeTok, "type name")
		return nil, false
	}
	p.advance()
	field.Type = ast.TypeRef{Name: p.raw(typeTok), Span: tokenizer.NewSpan(typeTok)}
	if p.matchSymbol("(") {
		args, last, ok := p.parseLiteralList()
		if !ok {
			return nil, false
		}
		field.Type.Args = args
		field.Type.Span = tokenizer.SpanBetween(typeTok, last)
	}

	nameTok := p.current()
	switch {
	case nameTok.Kind == tokenizer.KindField:
		p.advance()
	case nameTok.IsSymbol("$") || nameTok.IsSymbol("@") || nameTok.IsSymbol("%"):
		found := p.current()
		p.advance()
		p.failWith(found, ".identifier after sigil "+found.Text, p.describe(p.current()))
		return nil, false
	default:
		p.fail(nameTok, "sigil field ($.name, @.name or %.name)")
		return nil, false
	}
	field.Name = nameTok.Text
	field.Sigil = nameTok.Sigil
	field.Span = tokenizer.SpanBetween(start, nameTok)

	for !p.atLimit() {
		c, ok := p.parseConstraint()
		if !ok {
			return field, true
		}
		field.Constraints = append(field.Constraints, c)
		field.Span = field.Span.Extend(p.previous())
	}
	return field, true
}

func (p *Parser) parseConstraint() (ast.Constraint, bool) {
	tok := p.current()
	switch {
	case tok.Is("PK"):
		p.advance()
		return ast.Constraint{Kind: ast.ConstraintPrimaryKey, Span: tokenizer.NewSpan(tok)}, true
	case tok.Is("UNIQUE"):
		p.advance()
		return ast.Constraint{Kind: ast.ConstraintUnique, Span: tokenizer.NewSpan(tok)}, true
	case tok.Is("NOT"):
		p.advance()
		if !p.matchKeyword("NULL") {
			p.fail(p.current(), "NULL after NOT")
			return ast.Constraint{}, false
		}
		end := p.advance()
		return ast.Constraint{Kind: ast.ConstraintNotNull, Span: tokenizer.SpanBetween(tok, end)}, true
	case tok.Is("DEFAULT"):
		p.advance()
		lit, ok := p.parseLiteral()
		if !ok {
			return ast.Constraint{}, false
		}
		return ast.Constraint{Kind: ast.ConstraintDefault, Default: &lit, Span: tokenizer.SpanBetween(tok, p.previous())}, true
	case tok.Is("FK"):
		p.advance()
		c := ast.Constraint{Kind: ast.ConstraintForeignKey, Span: tokenizer.NewSpan(tok)}
		if p.matchSymbol("(") {
			p.advance()
			target := p.current()
			if target.Kind != tokenizer.KindIdentifier && target.Kind != tokenizer.KindKeyword {
				p.fail(target, "target entity name")
				return ast.Constraint{}, false
			}
			p.advance()
			if !p.expectSymbol(")") {
				return ast.Constraint{}, false
			}
			c.Target = p.raw(target)
			c.Span = tokenizer.SpanBetween(tok, p.previous())
		}
		return c, true
	case tok.Is("CHECK"):
		p.advance()
		expr := p.current()
		if expr.Kind != tokenizer.KindExpr {
			p.fail(expr, "parenthesized CHECK expression")
			return ast.Constraint{}, false
		}
		p.advance()
		return ast.Constraint{Kind: ast.ConstraintCheck, Check: expr.Text, Span: tokenizer.SpanBetween(tok, expr)}, true
	case tok.Is("NULL"):
		p.fail(tok, "NOT before NULL")
		return ast.Constraint{}, false
	default:
		p.fail(tok, "constraint (PK, UNIQUE, NOT NULL, DEFAULT, FK or CHECK)")
		return ast.Constraint{}, false
	}
}

func (p *Parser) parseLiteral() (ast.Literal, bool) {
	tok := p.current()
	switch {
	case tok.Kind == tokenizer.KindNumber:
		p.advance()
		return ast.Literal{Kind: ast.LiteralNumber, Text: tok.Text, Span: tokenizer.NewSpan(tok)}, true
	case tok.IsSymbol("-") && p.peek(1).Kind == tokenizer.KindNumber:
		p.advance()
		num := p.advance()
		return ast.Literal{Kind: ast.LiteralNumber, Text: "-" + num.Text, Span: tokenizer.SpanBetween(tok, num)}, true
	case tok.Kind == tokenizer.KindString:
		p.advance()
		return ast.Literal{Kind: ast.LiteralString, Text: tok.Text, Span: tokenizer.NewSpan(tok)}, true
	case tok.Kind == tokenizer.KindList:
		p.advance()
		return ast.Literal{Kind: ast.LiteralList, Text: tok.Text, Span: tokenizer.NewSpan(tok)}, true
	case tok.Is("NULL"):
		p.advance()
		return ast.Literal{Kind: ast.LiteralNull, Text: "NULL", Span: tokenizer.NewSpan(tok)}, true
	case tok.Kind == tokenizer.KindIdentifier:
		p.advance()
		if !p.matchSymbol("(") {
			return ast.Literal{Kind: ast.LiteralIdent, Text: tok.Text, Span: tokenizer.NewSpan(tok)}, true
		}
		end, ok := p.skipBalancedParentheses()
		if !ok {
			return ast.Literal{}, false
		}
		return ast.Literal{Kind: ast.LiteralCall, Text: p.src[tok.Offset:end.End], Span: tokenizer.SpanBetween(tok, end)}, true
	default:
		p.fail(tok, "literal")
		return ast.Literal{}, false
	}
}

// parseLiteralList parses "(lit, lit, ...)" and returns the closing token.
func (p *Parser) parseLiteralList() ([]ast.Literal, tokenizer.Token, bool) {
	p.advance() // '('
	var out []ast.Literal
	for {
		if p.matchSymbol(")") && len(out) == 0 {
			return out, p.advance(), true
		}
		lit, ok := p.parseLiteral()
		if !ok {
			return nil, tokenizer.Token{}, false
		}
		out = append(out, lit)
		switch {
		case p.matchSymbol(","):
			p.advance()
		case p.matchSymbol(")"):
			return out, p.advance(), true
		default:
			p.fail(p.current(), `"," or ")" in type arguments`)
			return nil, tokenizer.Token{}, false
		}
	}
}

// parseNameList parses "(a, b, ...)". An empty list is allowed here and
// rejected by the validator.
func (p *Parser) parseNameList(what string) ([]string, bool) {
	if !p.expectSymbol("(") {
		return nil, false
	}
	var names []string
	if p.matchSymbol(")") {
		p.advance()
		return names, true
	}
	for {
		tok := p.current()
		if tok.Kind != tokenizer.KindIdentifier && tok.Kind != tokenizer.KindKeyword {
			p.fail(tok, what)
			return nil, false
		}
		p.advance()
		names = append(names, p.raw(tok))
		switch {
		case p.matchSymbol(","):
			p.advance()
		case p.matchSymbol(")"):
			p.advance()
			return names, true
		default:
			p.fail(p.current(), `"," or ")" closing the `+what+" list")
			return nil, false
		}
	}
}

func (p *Parser) parseKeyLine() (*ast.KeyLine, bool) {
	tok := p.advance()
	kind := ast.KeyPrimary
	if tok.Text == "UNIQUE" {
		kind = ast.KeyUnique
	}
	if !p.matchSymbol("(") {
		p.fail(p.current(), fmt.Sprintf("%q after %s on an entity line", "(", tok.Text))
		return nil, false
	}
	cols, ok := p.parseNameList("field name")
	if !ok || !p.expectLineEnd() {
		return nil, false
	}
	return &ast.KeyLine{Kind: kind, Columns: cols, Span: tokenizer.SpanBetween(tok, p.previous())}, true
}

func (p *Parser) parseDirective() (*ast.Directive, bool) {
	tok := p.advance()
	dir := &ast.Directive{}
	switch tok.Text {
	case "PARTITION":
		dir.Kind = ast.DirectivePartition
		if !p.expectWord("BY") {
			return nil, false
		}
		strategy := p.current()
		if strategy.Kind != tokenizer.KindIdentifier {
			p.fail(strategy, "partition strategy (RANGE, LIST or HASH)")
			return nil, false
		}
		p.advance()
		dir.Method = strings.ToUpper(strategy.Text)
		cols, ok := p.parseNameList("partition column")
		if !ok {
			return nil, false
		}
		dir.Columns = cols
	case "TTL":
		dir.Kind = ast.DirectiveTTL
		if !p.expectSymbol("(") {
			return nil, false
		}
		col := p.current()
		if col.Kind != tokenizer.KindIdentifier && col.Kind != tokenizer.KindKeyword {
			p.fail(col, "TTL column")
			return nil, false
		}
		p.advance()
		dir.Columns = []string{p.raw(col)}
		if !p.expectSymbol(",") {
			return nil, false
		}
		interval, ok := p.parseLiteral()
		if !ok || !p.expectSymbol(")") {
			return nil, false
		}
		dir.Interval = &interval
	case "FTS":
		dir.Kind = ast.DirectiveFTS
		cols, ok := p.parseNameList("search column")
		if !ok {
			return nil, false
		}
		dir.Columns = cols
		dir.Method = "GIN"
		if p.matchWord("USING") {
			p.advance()
			method := p.current()
			if method.Kind != tokenizer.KindIdentifier {
				p.fail(method, "index method after USING")
				return nil, false
			}
			p.advance()
			dir.Method = strings.ToUpper(method.Text)
		}
	case "RLS":
		dir.Kind = ast.DirectiveRLS
		dir.Method = "ENABLE"
		if !p.atLimit() {
			mode := p.current()
			upper := strings.ToUpper(mode.Text)
			if mode.Kind != tokenizer.KindIdentifier || (upper != "ENABLE" && upper != "DISABLE" && upper != "FORCE") {
				p.fail(mode, "ENABLE, DISABLE or FORCE after RLS")
				return nil, false
			}
			p.advance()
			dir.Method = upper
		}
	case "POLICY":
		dir.Kind = ast.DirectivePolicy
		if !p.parsePolicy(dir) {
			return nil, false
		}
	case "AUDITABLE":
		dir.Kind = ast.DirectiveAuditable
	case "SOFT_DELETE":
		dir.Kind = ast.DirectiveSoftDelete
		cols, ok := p.parseNameList("soft delete field")
		if !ok {
			return nil, false
		}
		if len(cols) != 1 {
			p.failWith(p.previous(), "exactly one SOFT_DELETE field", fmt.Sprintf("%d fields", len(cols)))
			return nil, false
		}
		dir.Columns = cols
	}
	if !p.expectLineEnd() {
		return nil, false
	}
	dir.Span = tokenizer.SpanBetween(tok, p.previous())
	return dir, true
}

func (p *Parser) parsePolicy(dir *ast.Directive) bool {
	name := p.current()
	if name.Kind != tokenizer.KindIdentifier {
		p.fail(name, "policy name")
		return false
	}
	p.advance()
	dir.Name = name.Text
	for !p.atLimit() {
		switch {
		case p.matchWord("FOR"):
			p.advance()
			cmd := p.current()
			if cmd.Kind != tokenizer.KindIdentifier {
				p.fail(cmd, "policy command after FOR")
				return false
			}
			p.advance()
			dir.Command = strings.ToUpper(cmd.Text)
		case p.matchWord("TO"):
			p.advance()
			role := p.current()
			if role.Kind != tokenizer.KindIdentifier {
				p.fail(role, "role after TO")
				return false
			}
			p.advance()
			dir.Role = role.Text
		case p.matchWord("USING"):
			p.advance()
			expr := p.current()
			if expr.Kind != tokenizer.KindExpr {
				p.fail(expr, "parenthesized USING expression")
				return false
			}
			p.advance()
			dir.Using = expr.Text
		case p.matchWord("WITH"):
			p.advance()
			if !p.matchKeyword("CHECK") {
				p.fail(p.current(), "CHECK after WITH")
				return false
			}
			p.advance()
			expr := p.current()
			if expr.Kind != tokenizer.KindExpr {
				p.fail(expr, "parenthesized WITH CHECK expression")
				return false
			}
			p.advance()
			dir.WithCheck = expr.Text
		default:
			p.fail(p.current(), "FOR, TO, USING or WITH CHECK")
			return false
		}
	}
	return true
}

func (p *Parser) parseEnum() (*ast.Enum, bool) {
	head := p.advance()
	name := p.current()
	if name.Kind != tokenizer.KindIdentifier {
		p.fail(name, "enum name")
		return nil, false
	}
	p.advance()
	enum := &ast.Enum{Name: name.Text}

	switch tok := p.current(); {
	case tok.Kind == tokenizer.KindList:
		p.advance()
		for _, label := range splitListItems(tok.Text) {
			enum.Variants = append(enum.Variants, ast.EnumVariant{Name: label, Span: tokenizer.NewSpan(tok)})
		}
	case tok.IsSymbol("{"):
		p.advance()
		for !p.matchSymbol("}") {
			label := p.current()
			switch label.Kind {
			case tokenizer.KindIdentifier, tokenizer.KindKeyword:
				enum.Variants = append(enum.Variants, ast.EnumVariant{Name: p.raw(label), Span: tokenizer.NewSpan(label)})
			case tokenizer.KindString:
				enum.Variants = append(enum.Variants, ast.EnumVariant{Name: tokenizer.Unquote(label.Text), Span: tokenizer.NewSpan(label)})
			default:
				p.fail(label, `enum label or "}"`)
				return nil, false
			}
			p.advance()
			if p.matchSymbol(",") {
				p.advance()
			} else if !p.matchSymbol("}") {
				p.fail(p.current(), `"," or "}"`)
				return nil, false
			}
		}
		p.advance()
	default:
		p.fail(tok, `"{" or "[" opening the enum labels`)
		return nil, false
	}
	if !p.expectStatementEnd() {
		return nil, false
	}
	enum.Span = tokenizer.SpanBetween(head, p.previous())
	return enum, true
}

func (p *Parser) parseIndex() (*ast.Index, bool) {
	head := p.advance()
	idx := &ast.Index{}
	if p.matchKeyword("UNIQUE") {
		p.advance()
		idx.Unique = true
	}
	name := p.current()
	if name.Kind != tokenizer.KindIdentifier {
		p.fail(name, "index name")
		return nil, false
	}
	p.advance()
	idx.Name = name.Text
	if !p.expectWord("ON") {
		return nil, false
	}
	table := p.current()
	if table.Kind != tokenizer.KindIdentifier && table.Kind != tokenizer.KindKeyword {
		p.fail(table, "entity name after ON")
		return nil, false
	}
	p.advance()
	idx.Table = p.raw(table)
	cols, ok := p.parseNameList("index column")
	if !ok {
		return nil, false
	}
	idx.Columns = cols
	idx.Tail = p.verbatim(p.pos, p.limit)
	p.pos = p.limit
	idx.Span = tokenizer.SpanBetween(head, p.previous())
	return idx, true
}

func (p *Parser) parseView() (*ast.View, bool) {
	head := p.advance()
	if !p.matchKeyword("VIEW") {
		p.fail(p.current(), "VIEW after MATERIALIZED")
		return nil, false
	}
	p.advance()
	name := p.current()
	if name.Kind != tokenizer.KindIdentifier {
		p.fail(name, "view name")
		return nil, false
	}
	p.advance()
	if !p.expectWord("AS") {
		return nil, false
	}
	if p.atLimit() {
		p.fail(p.current(), "view body after AS")
		return nil, false
	}
	body := p.verbatim(p.pos, p.limit)
	p.pos = p.limit
	return &ast.View{Name: name.Text, Body: body, Span: tokenizer.SpanBetween(head, p.previous())}, true
}

func (p *Parser) parseTrigger() (*ast.Trigger, bool) {
	head := p.advance()
	name := p.current()
	if name.Kind != tokenizer.KindIdentifier {
		p.fail(name, "trigger name")
		return nil, false
	}
	p.advance()
	exec := -1
	for i := p.pos; i+1 < p.limit; i++ {
		if p.tokens[i].Is("EXECUTE") && p.tokens[i+1].Is("PROCEDURE") {
			exec = i
			break
		}
	}
	if exec < 0 {
		p.pos = p.limit
		p.failWith(p.current(), "EXECUTE PROCEDURE", "end of statement")
		return nil, false
	}
	if exec == p.pos {
		p.fail(p.current(), "trigger timing before EXECUTE PROCEDURE")
		p.pos = p.limit
		return nil, false
	}
	if exec+2 >= p.limit {
		p.pos = p.limit
		p.fail(p.current(), "procedure call after EXECUTE PROCEDURE")
		return nil, false
	}
	trig := &ast.Trigger{
		Name:      name.Text,
		Timing:    p.verbatim(p.pos, exec),
		Procedure: p.verbatim(exec+2, p.limit),
	}
	p.pos = p.limit
	trig.Span = tokenizer.SpanBetween(head, p.previous())
	return trig, true
}

func (p *Parser) parseExtension() (*ast.Extension, bool) {
	head := p.advance()
	if p.atLimit() {
		p.fail(p.current(), "extension name")
		return nil, false
	}
	name := p.verbatim(p.pos, p.limit)
	if tok := p.current(); tok.Kind == tokenizer.KindString && p.pos+1 == p.limit {
		name = tokenizer.Unquote(tok.Text)
	}
	if strings.ContainsAny(name, " \t\n") {
		p.fail(p.current(), "a single extension name")
		return nil, false
	}
	p.pos = p.limit
	return &ast.Extension{Name: name, Span: tokenizer.SpanBetween(head, p.previous())}, true
}

func (p *Parser) parseBlock() (*ast.Block, bool) {
	head := p.advance()
	keyword := strings.ToUpper(head.Text)
	handler, _ := p.plugins.Lookup(keyword)
	body := p.verbatim(p.pos, p.limit)
	p.pos = p.limit
	span := tokenizer.SpanBetween(head, p.previous())

	node, err := handler.Parse(plugin.Block{Keyword: keyword, Body: body, Span: span})
	if err != nil {
		p.failWith(head, "valid "+keyword+" block", err.Error())
		return nil, false
	}
	return &ast.Block{Keyword: keyword, Body: body, Node: node, Span: span}, true
}

// skipBalancedParentheses consumes a "(...)" run of tokens and returns the
// closing parenthesis.
func (p *Parser) skipBalancedParentheses() (tokenizer.Token, bool) {
	depth := 0
	for !p.atLimit() {
		tok := p.advance()
		switch {
		case tok.IsSymbol("("):
			depth++
		case tok.IsSymbol(")"):
			depth--
			if depth == 0 {
				return tok, true
			}
		}
	}
	p.fail(p.current(), `")"`)
	return tokenizer.Token{}, false
}

// splitListItems splits a bracketed list literal into unquoted items.
func splitListItems(raw string) []string {
	inner := strings.TrimSpace(raw)
	inner = strings.TrimPrefix(inner, "[")
	inner = strings.TrimSuffix(inner, "]")
	var (
		items []string
		buf   strings.Builder
		quote byte
		depth int
	)
	flush := func() {
		item := strings.TrimSpace(buf.String())
		if item != "" {
			items = append(items, tokenizer.Unquote(item))
		}
		buf.Reset()
	}
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == ',' && depth == 0:
			flush()
			continue
		}
		buf.WriteByte(c)
	}
	flush()
	return items
}

// verbatim returns the source text covering tokens [from, to).
func (p *Parser) verbatim(from, to int) string {
	if from >= to {
		return ""
	}
	return strings.TrimSpace(p.src[p.tokens[from].Offset:p.tokens[to-1].End])
}

// raw returns the token as written; keywords are otherwise upper-cased.
func (p *Parser) raw(tok tokenizer.Token) string {
	if tok.Kind == tokenizer.KindKeyword && tok.End > tok.Offset && tok.End <= len(p.src) {
		return p.src[tok.Offset:tok.End]
	}
	return tok.Text
}

func (p *Parser) fail(tok tokenizer.Token, expected string) {
	p.failWith(tok, expected, p.describe(tok))
}

func (p *Parser) failWith(tok tokenizer.Token, expected, found string) {
	err := &Error{
		Path:     tok.File,
		Line:     tok.Line,
		Column:   tok.Column,
		Expected: expected,
		Found:    found,
	}
	if err.Path == "" {
		err.Path = p.path
	}
	if err.Line == 0 {
		err.Line = 1
	}
	if err.Column == 0 {
		err.Column = 1
	}
	p.errs = append(p.errs, err)
}

func (p *Parser) describe(tok tokenizer.Token) string {
	if tok.Kind == tokenizer.KindEOF && p.limit < len(p.tokens)-1 {
		return "end of line"
	}
	return tok.Describe()
}

func (p *Parser) expectLineEnd() bool {
	if p.atLimit() {
		return true
	}
	p.fail(p.current(), "end of line")
	return false
}

func (p *Parser) expectStatementEnd() bool {
	if p.atLimit() {
		return true
	}
	p.fail(p.current(), "end of statement")
	return false
}

func (p *Parser) matchKeyword(text string) bool {
	return p.current().Is(text)
}

// matchWord matches a contextual word that is lexed as an identifier.
func (p *Parser) matchWord(word string) bool {
	tok := p.current()
	return tok.Kind == tokenizer.KindIdentifier && strings.EqualFold(tok.Text, word)
}

func (p *Parser) expectWord(word string) bool {
	if !p.matchWord(word) {
		p.fail(p.current(), word)
		return false
	}
	p.advance()
	return true
}

func (p *Parser) matchSymbol(text string) bool {
	return p.current().IsSymbol(text)
}

func (p *Parser) expectSymbol(text string) bool {
	if !p.matchSymbol(text) {
		p.fail(p.current(), fmt.Sprintf("%q", text))
		return false
	}
	p.advance()
	return true
}

func (p *Parser) atLimit() bool {
	return p.pos >= p.limit
}

func (p *Parser) previous() tokenizer.Token {
	if p.pos == 0 {
		return tokenizer.Token{}
	}
	return p.tokens[p.pos-1]
}

// current returns the token at the cursor, or a synthetic EOF positioned at
// the boundary when the cursor has reached the current line or statement limit.
func (p *Parser) current() tokenizer.Token {
	if p.pos >= p.limit {
		boundary := p.tokens[min(p.limit, len(p.tokens)-1)]
		if p.pos > 0 {
			prev := p.tokens[p.pos-1]
			return tokenizer.Token{Kind: tokenizer.KindEOF, File: prev.File, Line: prev.Line, Column: prev.Column + (prev.End - prev.Offset), Offset: prev.End, End: prev.End}
		}
		return tokenizer.Token{Kind: tokenizer.KindEOF, File: p.path, Line: boundary.Line, Column: boundary.Column, Offset: boundary.Offset, End: boundary.Offset}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peek(n int) tokenizer.Token {
	if p.pos+n >= p.limit {
		return tokenizer.Token{Kind: tokenizer.KindEOF, File: p.path}
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) advance() tokenizer.Token {
	tok := p.current()
	if p.pos < p.limit {
		p.pos++
	}
	return tok
}
