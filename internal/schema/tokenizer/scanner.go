// Package tokenizer scans ERD DSL source into line-aware tokens.
package tokenizer

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

const eofRune = -1

// Scan tokenizes the provided source and returns the token stream.
// Lexing errors do not stop the scan: the offending line is skipped, the
// error is recorded, and the returned error lists every problem found.
func Scan(path string, src []byte) ([]Token, error) {
	if !utf8.Valid(src) {
		return nil, Errors{{Path: path, Line: 1, Column: 1, Message: "input is not valid UTF-8"}}
	}
	s := newScanner(path, src)
	tokens := make([]Token, 0, len(src)/4+1)
	for {
		tok := s.next()
		tokens = append(tokens, tok)
		if tok.Kind == KindEOF {
			break
		}
	}
	return tokens, s.errs.Err()
}

// ScanSeq returns an iterator over tokens in the source.
// Each range over the sequence starts again from the beginning of src.
// Lexing errors are skipped silently; use Scan to collect them.
//
// Example:
//
//	for tok := range tokenizer.ScanSeq(path, src) {
//	    if tok.Kind == tokenizer.KindEOF {
//	        break
//	    }
//	    process(tok)
//	}
func ScanSeq(path string, src []byte) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		if !utf8.Valid(src) {
			return
		}
		s := newScanner(path, src)
		for {
			tok := s.next()
			if !yield(tok) || tok.Kind == KindEOF {
				return
			}
		}
	}
}

type scanner struct {
	path   string
	src    string
	index  int
	line   int
	column int
	prev   Token
	errs   Errors
}

func newScanner(path string, src []byte) *scanner {
	return &scanner{
		path:   path,
		src:    string(src),
		line:   1,
		column: 1,
	}
}

func (s *scanner) next() Token {
	for {
		r := s.peek()
		switch {
		case r == eofRune:
			return s.emit(KindEOF, "", s.index, s.line, s.column)
		case unicode.IsSpace(r):
			s.advance()
		case r == '#', r == ';' && s.peekAt(1) == ';':
			s.skipLine()
		case r == ':' && isIdentifierStart(s.peekAt(1)):
			return s.consumeEntity()
		case isSigil(r) && s.peekAt(1) == '.' && isIdentifierStart(s.peekAt(2)):
			return s.consumeField()
		case r == '\'' || r == '"':
			if tok, ok := s.consumeString(); ok {
				return tok
			}
		case r == '[':
			if tok, ok := s.consumeList(); ok {
				return tok
			}
		case r == '(' && s.expectsExpr():
			if tok, ok := s.consumeExpr(); ok {
				return tok
			}
		case isIdentifierStart(r):
			return s.consumeIdentifier()
		case isDigit(r):
			return s.consumeNumber()
		default:
			start, line, col := s.index, s.line, s.column
			s.advance()
			return s.emit(KindSymbol, string(r), start, line, col)
		}
	}
}

func (s *scanner) emit(kind Kind, text string, start, line, col int) Token {
	tok := Token{
		Kind:   kind,
		Text:   text,
		File:   s.path,
		Line:   line,
		Column: col,
		Offset: start,
		End:    s.index,
	}
	s.prev = tok
	return tok
}

func (s *scanner) errorf(line, col int, format string, args ...any) {
	s.errs = append(s.errs, &Error{
		Path:    s.path,
		Line:    line,
		Column:  col,
		Message: fmt.Sprintf(format, args...),
	})
}

func (s *scanner) peek() rune {
	return s.peekAt(0)
}

func (s *scanner) peekAt(n int) rune {
	pos := s.index
	for i := 0; ; i++ {
		if pos >= len(s.src) {
			return eofRune
		}
		r, size := utf8.DecodeRuneInString(s.src[pos:])
		if i == n {
			return r
		}
		pos += size
	}
}

func (s *scanner) advance() {
	if s.index >= len(s.src) {
		return
	}
	r, size := utf8.DecodeRuneInString(s.src[s.index:])
	s.index += size
	if r == '\n' {
		s.line++
		s.column = 1
		return
	}
	s.column++
}

// skipLine moves to the end of the current line, leaving the newline in place.
func (s *scanner) skipLine() {
	for {
		r := s.peek()
		if r == eofRune || r == '\n' {
			return
		}
		s.advance()
	}
}

// expectsExpr reports whether a "(" opens an opaque expression body.
func (s *scanner) expectsExpr() bool {
	switch s.prev.Kind {
	case KindKeyword:
		return s.prev.Text == "CHECK"
	case KindIdentifier:
		return strings.EqualFold(s.prev.Text, "USING")
	default:
		return false
	}
}

func (s *scanner) readIdentifier() string {
	start := s.index
	for {
		r := s.peek()
		switch {
		case isIdentifierPart(r):
			s.advance()
		case (r == '/' || r == '.') && isIdentifierStart(s.peekAt(1)):
			s.advance()
		default:
			return s.src[start:s.index]
		}
	}
}

func (s *scanner) consumeEntity() Token {
	start, line, col := s.index, s.line, s.column
	s.advance() // ':'
	name := s.readIdentifier()
	return s.emit(KindEntity, name, start, line, col)
}

func (s *scanner) consumeField() Token {
	start, line, col := s.index, s.line, s.column
	sigil := Sigil(s.src[s.index])
	s.advance() // sigil
	s.advance() // '.'
	name := s.readIdentifier()
	tok := s.emit(KindField, name, start, line, col)
	tok.Sigil = sigil
	s.prev = tok
	return tok
}

func (s *scanner) consumeIdentifier() Token {
	start, line, col := s.index, s.line, s.column
	text := s.readIdentifier()
	if IsKeyword(text) {
		return s.emit(KindKeyword, strings.ToUpper(text), start, line, col)
	}
	return s.emit(KindIdentifier, text, start, line, col)
}

func (s *scanner) consumeNumber() Token {
	start, line, col := s.index, s.line, s.column
	for isDigit(s.peek()) {
		s.advance()
	}
	if s.peek() == '.' && isDigit(s.peekAt(1)) {
		s.advance()
		for isDigit(s.peek()) {
			s.advance()
		}
	}
	return s.emit(KindNumber, s.src[start:s.index], start, line, col)
}

// skipQuoted consumes a quoted run on the current line. It reports false,
// without consuming the newline, when the closing quote is missing.
func (s *scanner) skipQuoted() bool {
	quote := s.peek()
	s.advance()
	for {
		r := s.peek()
		switch r {
		case eofRune, '\n':
			return false
		case quote:
			s.advance()
			if s.peek() != quote {
				return true
			}
			s.advance()
		default:
			s.advance()
		}
	}
}

func (s *scanner) consumeString() (Token, bool) {
	start, line, col := s.index, s.line, s.column
	if !s.skipQuoted() {
		s.errorf(line, col, "unterminated string literal")
		s.skipLine()
		return Token{}, false
	}
	return s.emit(KindString, s.src[start:s.index], start, line, col), true
}

func (s *scanner) consumeList() (Token, bool) {
	start, line, col := s.index, s.line, s.column
	depth := 0
	for {
		r := s.peek()
		switch r {
		case eofRune, '\n':
			s.errorf(line, col, "unterminated list literal")
			s.skipLine()
			return Token{}, false
		case '\'', '"':
			if !s.skipQuoted() {
				s.errorf(line, col, "unterminated string literal in list")
				s.skipLine()
				return Token{}, false
			}
			continue
		case '[':
			depth++
		case ']':
			depth--
		}
		s.advance()
		if depth == 0 {
			return s.emit(KindList, s.src[start:s.index], start, line, col), true
		}
	}
}

// consumeExpr reads a balanced parenthesis body. Bodies may span lines;
// strings inside them may not.
func (s *scanner) consumeExpr() (Token, bool) {
	start, line, col := s.index, s.line, s.column
	var stack []rune
	for {
		r := s.peek()
		switch r {
		case eofRune:
			s.errorf(line, col, "unbalanced parenthesis: expression is never closed")
			return Token{}, false
		case '\'', '"':
			strLine, strCol := s.line, s.column
			if !s.skipQuoted() {
				s.errorf(strLine, strCol, "unterminated string literal in expression")
				s.skipLine()
				return Token{}, false
			}
			continue
		case '(', '[':
			stack = append(stack, r)
		case ')', ']':
			open := '('
			if r == ']' {
				open = '['
			}
			if len(stack) == 0 || stack[len(stack)-1] != open {
				s.errorf(s.line, s.column, "unbalanced bracket: unexpected %q", r)
				s.skipLine()
				return Token{}, false
			}
			stack = stack[:len(stack)-1]
		}
		s.advance()
		if len(stack) == 0 {
			raw := s.src[start:s.index]
			inner := strings.TrimSpace(raw[1 : len(raw)-1])
			return s.emit(KindExpr, inner, start, line, col), true
		}
	}
}

func isSigil(r rune) bool {
	return r == '$' || r == '@' || r == '%'
}

func isIdentifierStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentifierPart(r rune) bool {
	return isIdentifierStart(r) || unicode.IsDigit(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
