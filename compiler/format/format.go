package format

import (
	"context"
	"fmt"
	"strconv"

	"tlog.app/go/errors"

	"github.com/fray-lang/fray/compiler/ast"
)

// operator tiers, mirroring the parser: * and / bind tighter than
// the additive/comparison tier
func prec(op string) int {
	switch op {
	case "*", "/":
		return 2
	}

	return 1
}

// Format renders parsed nodes back into canonical source,
// appending to b the way the encoders in this repo do.
func Format(ctx context.Context, b []byte, nodes []ast.Node) (_ []byte, err error) {
	for i, n := range nodes {
		if _, ok := n.(ast.FuncDef); ok && i != 0 {
			b = append(b, '\n')
		}

		b, err = formatStmt(ctx, b, n, 0)
		if err != nil {
			return nil, err
		}
	}

	return b, nil
}

func formatStmt(ctx context.Context, b []byte, n ast.Node, d int) (_ []byte, err error) {
	switch n := n.(type) {
	case ast.FuncDef:
		b = indent(b, d)
		b = append(b, "def "...)
		b = append(b, n.Name...)
		b = append(b, '(')

		for i, p := range n.Params {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = append(b, p...)
		}

		b = append(b, ") {\n"...)

		b, err = formatBody(ctx, b, n.Body, d+1)
		if err != nil {
			return nil, errors.Wrap(err, "def %v", n.Name)
		}

		b = indent(b, d)
		b = append(b, "}\n"...)

		return b, nil
	case ast.Return:
		b = indent(b, d)
		b = append(b, "return "...)

		b, err = formatExpr(b, n.Value, 0)
		if err != nil {
			return nil, err
		}

		return append(b, ";\n"...), nil
	case ast.Assign:
		b = indent(b, d)
		b = append(b, n.Name...)
		b = append(b, " = "...)

		b, err = formatExpr(b, n.Value, 0)
		if err != nil {
			return nil, err
		}

		return append(b, ";\n"...), nil
	case ast.If:
		b = indent(b, d)
		b = append(b, "if ("...)

		b, err = formatExpr(b, n.Cond, 0)
		if err != nil {
			return nil, err
		}

		b = append(b, ") {\n"...)

		b, err = formatBody(ctx, b, n.Then, d+1)
		if err != nil {
			return nil, err
		}

		b = indent(b, d)
		b = append(b, '}')

		if n.Else != nil {
			b = append(b, " else {\n"...)

			b, err = formatBody(ctx, b, n.Else, d+1)
			if err != nil {
				return nil, err
			}

			b = indent(b, d)
			b = append(b, '}')
		}

		return append(b, '\n'), nil
	case ast.While:
		b = indent(b, d)
		b = append(b, "while ("...)

		b, err = formatExpr(b, n.Cond, 0)
		if err != nil {
			return nil, err
		}

		b = append(b, ") {\n"...)

		b, err = formatBody(ctx, b, n.Body, d+1)
		if err != nil {
			return nil, err
		}

		b = indent(b, d)

		return append(b, "}\n"...), nil
	default:
		b = indent(b, d)

		b, err = formatExpr(b, n, 0)
		if err != nil {
			return nil, err
		}

		return append(b, ";\n"...), nil
	}
}

func formatBody(ctx context.Context, b []byte, stmts []ast.Node, d int) (_ []byte, err error) {
	for _, st := range stmts {
		b, err = formatStmt(ctx, b, st, d)
		if err != nil {
			return nil, err
		}
	}

	return b, nil
}

// formatExpr renders an expression, parenthesizing children that bind
// looser than their surroundings. outer is the precedence of the
// enclosing operator, 0 at statement level.
func formatExpr(b []byte, n ast.Node, outer int) (_ []byte, err error) {
	switch n := n.(type) {
	case ast.Number:
		return strconv.AppendFloat(b, n.Value, 'g', -1, 64), nil
	case ast.Variable:
		return append(b, n.Name...), nil
	case ast.Call:
		b = append(b, n.Name...)
		b = append(b, '(')

		for i, a := range n.Args {
			if i != 0 {
				b = append(b, ", "...)
			}

			b, err = formatExpr(b, a, 0)
			if err != nil {
				return nil, err
			}
		}

		return append(b, ')'), nil
	case ast.Assign:
		// assignment in expression position keeps its parens
		b = append(b, '(')
		b = append(b, n.Name...)
		b = append(b, " = "...)

		b, err = formatExpr(b, n.Value, 0)
		if err != nil {
			return nil, err
		}

		return append(b, ')'), nil
	case ast.BinaryOp:
		p := prec(n.Op)

		if p < outer {
			b = append(b, '(')
		}

		b, err = formatExpr(b, n.Left, p)
		if err != nil {
			return nil, err
		}

		b = fmt.Appendf(b, " %s ", n.Op)

		// the parser is left associative, the right child
		// reassociates unless it binds tighter
		b, err = formatExpr(b, n.Right, p+1)
		if err != nil {
			return nil, err
		}

		if p < outer {
			b = append(b, ')')
		}

		return b, nil
	default:
		return nil, errors.New("unsupported node: %T", n)
	}
}

func indent(b []byte, d int) []byte {
	for i := 0; i < d; i++ {
		b = append(b, '\t')
	}

	return b
}
