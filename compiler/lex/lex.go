package lex

import (
	"context"
	"fmt"

	"tlog.app/go/tlog"
)

type (
	Kind int

	// Token is one lexical element of a source file.
	// Line and Col are 1-based and point at the first byte of the token.
	Token struct {
		Kind Kind
		Text string
		Line int
		Col  int
	}

	Lexer struct {
		src []byte

		pos  int
		line int
		col  int
	}

	// Error is an unrecognized byte in the source.
	Error struct {
		Byte byte
		Line int
		Col  int
	}
)

const (
	EOF Kind = iota
	Number
	Ident
	Keyword
	Op
	LParen
	RParen
	LBrace
	RBrace
	Semi
	Comma
)

var kindNames = []string{"EOF", "Number", "Ident", "Keyword", "Op", "LParen", "RParen", "LBrace", "RBrace", "Semi", "Comma"}

func New(src []byte) *Lexer {
	return &Lexer{
		src:  src,
		line: 1,
		col:  1,
	}
}

// Tokenize scans the whole source into a token stream.
// The stream always ends with an EOF token.
func (l *Lexer) Tokenize(ctx context.Context) (tokens []Token, err error) {
	tr := tlog.SpanFromContext(ctx)

	for {
		tk, err := l.next()
		if err != nil {
			return nil, err
		}

		tr.V("token").Printw("token", "kind", tk.Kind, "text", tk.Text, "line", tk.Line, "col", tk.Col)

		tokens = append(tokens, tk)

		if tk.Kind == EOF {
			break
		}
	}

	return tokens, nil
}

func (l *Lexer) next() (Token, error) {
	l.skipSpaces()

	line, col := l.line, l.col

	if l.pos == len(l.src) {
		return Token{Kind: EOF, Line: line, Col: col}, nil
	}

	c := l.src[l.pos]

	switch {
	case c >= '0' && c <= '9':
		st := l.pos
		for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9' || l.src[l.pos] == '.') {
			l.advance()
		}

		return Token{Kind: Number, Text: string(l.src[st:l.pos]), Line: line, Col: col}, nil
	case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
		st := l.pos
		for l.pos < len(l.src) && isIdent(l.src[l.pos]) {
			l.advance()
		}

		text := string(l.src[st:l.pos])

		return Token{Kind: identKind(text), Text: text, Line: line, Col: col}, nil
	}

	switch c {
	case '=':
		// == folds into one token, a lone = stays assignment
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.advance()
			l.advance()

			return Token{Kind: Op, Text: "==", Line: line, Col: col}, nil
		}

		l.advance()

		return Token{Kind: Op, Text: "=", Line: line, Col: col}, nil
	case '+', '-', '*', '/', '<', '>':
		l.advance()

		return Token{Kind: Op, Text: string(c), Line: line, Col: col}, nil
	case '(':
		l.advance()
		return Token{Kind: LParen, Text: "(", Line: line, Col: col}, nil
	case ')':
		l.advance()
		return Token{Kind: RParen, Text: ")", Line: line, Col: col}, nil
	case '{':
		l.advance()
		return Token{Kind: LBrace, Text: "{", Line: line, Col: col}, nil
	case '}':
		l.advance()
		return Token{Kind: RBrace, Text: "}", Line: line, Col: col}, nil
	case ';':
		l.advance()
		return Token{Kind: Semi, Text: ";", Line: line, Col: col}, nil
	case ',':
		l.advance()
		return Token{Kind: Comma, Text: ",", Line: line, Col: col}, nil
	}

	return Token{}, Error{Byte: c, Line: line, Col: col}
}

func (l *Lexer) skipSpaces() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\r', '\n':
			l.advance()
			continue
		}

		break
	}
}

func (l *Lexer) advance() {
	if l.src[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}

	l.pos++
}

func identKind(text string) Kind {
	switch text {
	case "def", "return", "if", "else", "while":
		return Keyword
	}

	return Ident
}

func isIdent(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

func (e Error) Error() string {
	return fmt.Sprintf("unexpected character %q at line %d, column %d", e.Byte, e.Line, e.Col)
}
