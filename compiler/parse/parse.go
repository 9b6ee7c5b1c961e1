package parse

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/fray-lang/fray/compiler/ast"
	"github.com/fray-lang/fray/compiler/lex"
)

type (
	// Parser consumes a token stream produced by lex and
	// builds the ordered sequence of top-level nodes.
	Parser struct {
		tokens []lex.Token
		pos    int
	}

	UnexpectedError struct {
		Got  lex.Token
		Want []string
	}
)

// New wraps a token stream. The stream must end with an EOF token.
func New(tokens []lex.Token) *Parser {
	return &Parser{tokens: tokens}
}

func (p *Parser) Parse(ctx context.Context) (nodes []ast.Node, err error) {
	tr := tlog.SpanFromContext(ctx)

	for p.tok().Kind != lex.EOF {
		var n ast.Node

		if p.tok().Kind == lex.Keyword && p.tok().Text == "def" {
			n, err = p.funcDef(ctx)
		} else {
			n, err = p.statement(ctx)
		}
		if err != nil {
			return nil, err
		}

		tr.V("node").Printw("top-level node", "typ", tlog.NextAsType, n)

		nodes = append(nodes, n)
	}

	return nodes, nil
}

func (p *Parser) funcDef(ctx context.Context) (ast.Node, error) {
	p.next(ctx) // def

	name, err := p.eat(ctx, lex.Ident)
	if err != nil {
		return nil, errors.Wrap(err, "function name")
	}

	_, err = p.eat(ctx, lex.LParen)
	if err != nil {
		return nil, err
	}

	var params []string

	for p.tok().Kind == lex.Ident {
		params = append(params, p.next(ctx).Text)

		if p.tok().Kind == lex.Comma {
			p.next(ctx)
		}
	}

	_, err = p.eat(ctx, lex.RParen)
	if err != nil {
		return nil, err
	}

	body, err := p.block(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "def %v", name.Text)
	}

	return ast.FuncDef{Name: name.Text, Params: params, Body: body}, nil
}

// block parses { statement* }.
func (p *Parser) block(ctx context.Context) (stmts []ast.Node, err error) {
	_, err = p.eat(ctx, lex.LBrace)
	if err != nil {
		return nil, err
	}

	for p.tok().Kind != lex.RBrace {
		if p.tok().Kind == lex.EOF {
			return nil, NewUnexpected(p.tok(), lex.RBrace.String())
		}

		st, err := p.statement(ctx)
		if err != nil {
			return nil, err
		}

		stmts = append(stmts, st)
	}

	p.next(ctx) // }

	return stmts, nil
}

func (p *Parser) statement(ctx context.Context) (ast.Node, error) {
	tk := p.tok()

	if tk.Kind == lex.Keyword {
		switch tk.Text {
		case "return":
			return p.returnStmt(ctx)
		case "if":
			return p.ifStmt(ctx)
		case "while":
			return p.whileStmt(ctx)
		default:
			return nil, NewUnexpected(tk, "return", "if", "while")
		}
	}

	// an identifier immediately followed by a lone = is an assignment;
	// == is a single token, so it never takes this path
	if tk.Kind == lex.Ident && p.peek().Kind == lex.Op && p.peek().Text == "=" {
		return p.assignment(ctx)
	}

	expr, err := p.expr(ctx)
	if err != nil {
		return nil, err
	}

	_, err = p.eat(ctx, lex.Semi)
	if err != nil {
		return nil, err
	}

	return expr, nil
}

func (p *Parser) returnStmt(ctx context.Context) (ast.Node, error) {
	p.next(ctx) // return

	v, err := p.expr(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "return value")
	}

	_, err = p.eat(ctx, lex.Semi)
	if err != nil {
		return nil, err
	}

	return ast.Return{Value: v}, nil
}

func (p *Parser) ifStmt(ctx context.Context) (ast.Node, error) {
	p.next(ctx) // if

	cond, err := p.parenExpr(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "if condition")
	}

	then, err := p.block(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "then")
	}

	var els []ast.Node

	if p.tok().Kind == lex.Keyword && p.tok().Text == "else" {
		p.next(ctx)

		els, err = p.block(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "else")
		}

		if els == nil {
			els = []ast.Node{}
		}
	}

	return ast.If{Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) whileStmt(ctx context.Context) (ast.Node, error) {
	p.next(ctx) // while

	cond, err := p.parenExpr(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "while condition")
	}

	body, err := p.block(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "while body")
	}

	return ast.While{Cond: cond, Body: body}, nil
}

func (p *Parser) assignment(ctx context.Context) (ast.Node, error) {
	name := p.next(ctx)
	p.next(ctx) // =

	v, err := p.expr(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "assign %v", name.Text)
	}

	_, err = p.eat(ctx, lex.Semi)
	if err != nil {
		return nil, err
	}

	return ast.Assign{Name: name.Text, Value: v}, nil
}

func (p *Parser) parenExpr(ctx context.Context) (ast.Node, error) {
	_, err := p.eat(ctx, lex.LParen)
	if err != nil {
		return nil, err
	}

	e, err := p.expr(ctx)
	if err != nil {
		return nil, err
	}

	_, err = p.eat(ctx, lex.RParen)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// expr parses the additive/comparison tier.
// Comparisons sit on the same tier as + and -, left associative.
func (p *Parser) expr(ctx context.Context) (ast.Node, error) {
	n, err := p.term(ctx)
	if err != nil {
		return nil, err
	}

	for p.tok().Kind == lex.Op && isAddOrCmp(p.tok().Text) {
		op := p.next(ctx).Text

		r, err := p.term(ctx)
		if err != nil {
			return nil, err
		}

		n = ast.BinaryOp{Op: op, Left: n, Right: r}
	}

	return n, nil
}

func isAddOrCmp(op string) bool {
	switch op {
	case "+", "-", "<", ">", "==":
		return true
	}

	return false
}

func (p *Parser) term(ctx context.Context) (ast.Node, error) {
	n, err := p.factor(ctx)
	if err != nil {
		return nil, err
	}

	for p.tok().Kind == lex.Op && (p.tok().Text == "*" || p.tok().Text == "/") {
		op := p.next(ctx).Text

		r, err := p.factor(ctx)
		if err != nil {
			return nil, err
		}

		n = ast.BinaryOp{Op: op, Left: n, Right: r}
	}

	return n, nil
}

func (p *Parser) factor(ctx context.Context) (ast.Node, error) {
	tk := p.tok()

	switch tk.Kind {
	case lex.Number:
		p.next(ctx)

		v, err := strconv.ParseFloat(tk.Text, 64)
		if err != nil {
			return nil, errors.Wrap(err, "number at line %d, column %d", tk.Line, tk.Col)
		}

		return ast.Number{Value: v}, nil
	case lex.Ident:
		p.next(ctx)

		if p.tok().Kind != lex.LParen {
			return ast.Variable{Name: tk.Text}, nil
		}

		p.next(ctx) // (

		var args []ast.Node

		if p.tok().Kind != lex.RParen {
			for {
				a, err := p.expr(ctx)
				if err != nil {
					return nil, errors.Wrap(err, "arg %d of %v", len(args), tk.Text)
				}

				args = append(args, a)

				if p.tok().Kind != lex.Comma {
					break
				}

				p.next(ctx)
			}
		}

		_, err := p.eat(ctx, lex.RParen)
		if err != nil {
			return nil, err
		}

		return ast.Call{Name: tk.Text, Args: args}, nil
	case lex.LParen:
		return p.parenExpr(ctx)
	default:
		return nil, NewUnexpected(tk, lex.Number.String(), lex.Ident.String(), lex.LParen.String())
	}
}

func (p *Parser) tok() lex.Token {
	return p.tokens[p.pos]
}

// peek looks one token past the current one.
// The trailing EOF token makes this safe whenever tok is not EOF.
func (p *Parser) peek() lex.Token {
	if p.pos+1 >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}

	return p.tokens[p.pos+1]
}

func (p *Parser) next(ctx context.Context) lex.Token {
	tk := p.tokens[p.pos]

	if p.pos+1 < len(p.tokens) {
		p.pos++
	}

	if tr := tlog.SpanFromContext(ctx); tr.If("next_token") {
		tr.Printw("next token", "kind", tk.Kind, "text", tk.Text, "line", tk.Line, "col", tk.Col, "from", loc.Callers(1, 3))
	}

	return tk
}

func (p *Parser) eat(ctx context.Context, kind lex.Kind) (lex.Token, error) {
	if p.tok().Kind != kind {
		return lex.Token{}, NewUnexpected(p.tok(), kind.String())
	}

	return p.next(ctx), nil
}

func NewUnexpected(got lex.Token, want ...string) error {
	return UnexpectedError{
		Got:  got,
		Want: want,
	}
}

func (e UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected %v %q at line %d, column %d, want %v",
		e.Got.Kind, e.Got.Text, e.Got.Line, e.Got.Col, strings.Join(e.Want, ", "))
}
