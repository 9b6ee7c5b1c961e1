package compiler

import (
	"context"
	"os"

	"github.com/llir/llvm/ir"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/fray-lang/fray/compiler/ast"
	"github.com/fray-lang/fray/compiler/back"
	"github.com/fray-lang/fray/compiler/gen"
	"github.com/fray-lang/fray/compiler/lex"
	"github.com/fray-lang/fray/compiler/parse"
)

func RunFile(ctx context.Context, name string) (float64, error) {
	m, err := CompileFile(ctx, name)
	if err != nil {
		return 0, err
	}

	return back.Run(ctx, m)
}

func Run(ctx context.Context, name string, text []byte) (float64, error) {
	m, err := Compile(ctx, name, text)
	if err != nil {
		return 0, err
	}

	return back.Run(ctx, m)
}

func CompileFile(ctx context.Context, name string) (*ir.Module, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Compile(ctx, name, text)
}

// Compile takes source text through lex, parse and gen,
// producing the IR module the backend runs.
func Compile(ctx context.Context, name string, text []byte) (*ir.Module, error) {
	nodes, err := Parse(ctx, name, text)
	if err != nil {
		return nil, err
	}

	m, err := gen.New().Generate(ctx, nodes)
	if err != nil {
		return nil, errors.Wrap(err, "generate")
	}

	return m, nil
}

func Parse(ctx context.Context, name string, text []byte) ([]ast.Node, error) {
	tokens, err := lex.New(text).Tokenize(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "lex")
	}

	tlog.SpanFromContext(ctx).Printw("lexed", "tokens", len(tokens), "name", name)

	nodes, err := parse.New(tokens).Parse(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	return nodes, nil
}
