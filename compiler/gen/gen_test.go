package gen

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/stretchr/testify/require"

	"github.com/fray-lang/fray/compiler/lex"
	"github.com/fray-lang/fray/compiler/parse"
)

func compile(t *testing.T, src string) (*ir.Module, error) {
	t.Helper()

	ctx := context.Background()

	tokens, err := lex.New([]byte(src)).Tokenize(ctx)
	require.NoError(t, err)

	nodes, err := parse.New(tokens).Parse(ctx)
	require.NoError(t, err)

	return New().Generate(ctx, nodes)
}

func mustCompile(t *testing.T, src string) *ir.Module {
	t.Helper()

	m, err := compile(t, src)
	require.NoError(t, err)

	return m
}

func mainFunc(t *testing.T, m *ir.Module) *ir.Func {
	t.Helper()

	for _, f := range m.Funcs {
		if f.Name() == "main" {
			return f
		}
	}

	t.Fatal("no main in module")

	return nil
}

func TestStraightLine(t *testing.T) {
	m := mustCompile(t, `def main() { return 1 + 2 * 3; }`)

	f := mainFunc(t, m)
	require.Len(t, f.Blocks, 1)

	_, ok := f.Blocks[0].Term.(*ir.TermRet)
	require.True(t, ok)

	t.Logf("module:\n%s", m)
}

func TestIfShape(t *testing.T) {
	m := mustCompile(t, `def main() { x = 1; if (x) { 2; } else { 3; } return 0; }`)

	f := mainFunc(t, m)

	// entry, then, else, merge
	require.Len(t, f.Blocks, 4)

	entry, then, els, merge := f.Blocks[0], f.Blocks[1], f.Blocks[2], f.Blocks[3]

	cbr, ok := entry.Term.(*ir.TermCondBr)
	require.True(t, ok)
	require.Same(t, then, cbr.TargetTrue)
	require.Same(t, els, cbr.TargetFalse)

	for _, b := range []*ir.Block{then, els} {
		br, ok := b.Term.(*ir.TermBr)
		require.True(t, ok, "arm %v terminator %T", b.Name(), b.Term)
		require.Same(t, merge, br.Target)
	}

	// both arms produced a value, so the merge starts with a phi
	require.NotEmpty(t, merge.Insts)
	phi, ok := merge.Insts[0].(*ir.InstPhi)
	require.True(t, ok)
	require.Len(t, phi.Incs, 2)
}

func TestIfNoPhiWhenArmReturns(t *testing.T) {
	m := mustCompile(t, `def main() { x = 1; if (x) { return 1; } else { 2; } return 0; }`)

	f := mainFunc(t, m)
	require.Len(t, f.Blocks, 4)

	then, merge := f.Blocks[1], f.Blocks[3]

	// early return must not receive a fallthrough branch
	_, ok := then.Term.(*ir.TermRet)
	require.True(t, ok)

	for _, inst := range merge.Insts {
		_, ok := inst.(*ir.InstPhi)
		require.False(t, ok, "merge should carry no phi")
	}
}

func TestIfNoPhiWhenArmValueless(t *testing.T) {
	// while has no value, so the construct has none either
	m := mustCompile(t, `def main() { x = 1; if (x) { while (0) { 1; } } else { 2; } return 0; }`)

	f := mainFunc(t, m)

	var phis int

	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if _, ok := inst.(*ir.InstPhi); ok {
				phis++
			}
		}
	}

	require.Equal(t, 0, phis)
}

func TestBothArmsReturn(t *testing.T) {
	// merge is unreachable but must still be terminated
	m := mustCompile(t, `def main() { x = 5; if (x > 3) { return 1; } else { return 0; } }`)

	f := mainFunc(t, m)

	for _, b := range f.Blocks {
		require.NotNil(t, b.Term, "block %v unterminated", b.Name())
	}
}

func TestWhileShape(t *testing.T) {
	m := mustCompile(t, `def main() { i = 0; while (i < 5) { i = i + 1; } return i; }`)

	f := mainFunc(t, m)

	// entry, cond, body, end
	require.Len(t, f.Blocks, 4)

	entry, cond, body, end := f.Blocks[0], f.Blocks[1], f.Blocks[2], f.Blocks[3]

	br, ok := entry.Term.(*ir.TermBr)
	require.True(t, ok)
	require.Same(t, cond, br.Target)

	cbr, ok := cond.Term.(*ir.TermCondBr)
	require.True(t, ok)
	require.Same(t, body, cbr.TargetTrue)
	require.Same(t, end, cbr.TargetFalse)

	back, ok := body.Term.(*ir.TermBr)
	require.True(t, ok)
	require.Same(t, cond, back.Target)
}

func TestSlotsStayInEntry(t *testing.T) {
	m := mustCompile(t, `def main() { i = 0; while (i < 3) { j = i; i = i + 1; } return i; }`)

	f := mainFunc(t, m)

	var inEntry, elsewhere int

	for bi, b := range f.Blocks {
		for _, inst := range b.Insts {
			if _, ok := inst.(*ir.InstAlloca); ok {
				if bi == 0 {
					inEntry++
				} else {
					elsewhere++
				}
			}
		}
	}

	// i and j, both hoisted to entry even though j is assigned in the loop
	require.Equal(t, 2, inEntry)
	require.Equal(t, 0, elsewhere)
}

func TestParamsStoredToSlots(t *testing.T) {
	m := mustCompile(t, `def add(a, b) { return a + b; } def main() { return add(2, 3); }`)

	var add *ir.Func

	for _, f := range m.Funcs {
		if f.Name() == "add" {
			add = f
		}
	}

	require.NotNil(t, add)
	require.Len(t, add.Params, 2)

	var stores int

	for _, inst := range add.Blocks[0].Insts {
		if _, ok := inst.(*ir.InstStore); ok {
			stores++
		}
	}

	require.Equal(t, 2, stores)
}

func TestImplicitReturn(t *testing.T) {
	m := mustCompile(t, `def f() { 1; } def main() { 2; }`)

	for _, f := range m.Funcs {
		last := f.Blocks[len(f.Blocks)-1]

		ret, ok := last.Term.(*ir.TermRet)
		require.True(t, ok, "func %v", f.Name())
		require.NotNil(t, ret.X)
	}
}

func TestIdempotence(t *testing.T) {
	src := `
def fib(n) { if (n < 2) { return n; } else { return fib(n - 1) + fib(n - 2); } }
def main() { i = 0; while (i < 3) { i = i + 1; } return fib(i); }
`

	a := mustCompile(t, src)
	b := mustCompile(t, src)

	require.Equal(t, shape(a), shape(b))
}

// shape flattens a module to the structure idempotence promises:
// function names, block counts, instruction counts, terminator kinds.
func shape(m *ir.Module) []string {
	var s []string

	for _, f := range m.Funcs {
		s = append(s, fmt.Sprintf("func %v/%d blocks %d", f.Name(), len(f.Params), len(f.Blocks)))

		for _, b := range f.Blocks {
			s = append(s, fmt.Sprintf("  block %d insts, term %T", len(b.Insts), b.Term))
		}
	}

	return s
}

func TestRecursiveCall(t *testing.T) {
	_, err := compile(t, `def f(n) { return f(n); } def main() { return 0; }`)
	require.NoError(t, err)
}

func TestUnknownVariable(t *testing.T) {
	_, err := compile(t, `def main() { return y; }`)
	require.Error(t, err)

	var e UnknownVariableError
	require.True(t, errors.As(err, &e))
	require.Equal(t, "y", e.Name)
}

func TestUnknownFunction(t *testing.T) {
	_, err := compile(t, `def main() { return g(); }`)
	require.Error(t, err)

	var e UnknownFunctionError
	require.True(t, errors.As(err, &e))
	require.Equal(t, "g", e.Name)
}

func TestForwardCallFails(t *testing.T) {
	// functions register in lowering order, a use before the
	// definition is lowered does not resolve
	_, err := compile(t, `def main() { return g(); } def g() { return 1; }`)
	require.Error(t, err)

	var e UnknownFunctionError
	require.True(t, errors.As(err, &e))
}

func TestVariablesDoNotCrossFunctions(t *testing.T) {
	_, err := compile(t, `def f() { x = 1; return x; } def main() { return x; }`)
	require.Error(t, err)

	var e UnknownVariableError
	require.True(t, errors.As(err, &e))
	require.Equal(t, "x", e.Name)
}

func TestDuplicateParam(t *testing.T) {
	_, err := compile(t, `def f(a, a) { return a; } def main() { return 0; }`)
	require.ErrorContains(t, err, "duplicate parameter")
}

func TestRedefinition(t *testing.T) {
	_, err := compile(t, `def f() { return 1; } def f() { return 2; } def main() { return 0; }`)
	require.ErrorContains(t, err, "redefinition")
}

func TestTopLevelStatement(t *testing.T) {
	_, err := compile(t, `x = 1;`)
	require.ErrorContains(t, err, "top-level statement")
}
