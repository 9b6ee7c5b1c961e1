package gen

import (
	"context"
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/fray-lang/fray/compiler/ast"
)

type (
	// Generator lowers a parsed program into an LLVM IR module.
	// One Generator builds one module; it is not safe for concurrent use
	// and is discarded after Generate returns.
	Generator struct {
		mod   *ir.Module
		funcs map[string]*ir.Func

		cur   *funContext
		saved []*funContext

		label int
	}

	// funContext is the transient per-function compilation state:
	// the function under construction, its entry block (storage slots
	// land there no matter where emission currently is), the insertion
	// block and the variable-to-slot map. Contexts stack up when a
	// function definition is lowered while another is in flight.
	funContext struct {
		fn    *ir.Func
		entry *ir.Block
		block *ir.Block
		vars  map[string]*ir.InstAlloca
	}

	UnknownVariableError struct {
		Name string
	}

	UnknownFunctionError struct {
		Name string
	}
)

func New() *Generator {
	return &Generator{
		mod:   ir.NewModule(),
		funcs: make(map[string]*ir.Func),
	}
}

// Generate lowers the top-level node sequence and returns the finished module.
// Top level admits function definitions only; the language gives a bare
// top-level statement no block to run in.
func (g *Generator) Generate(ctx context.Context, nodes []ast.Node) (_ *ir.Module, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "gen: module", "nodes", len(nodes))
	defer tr.Finish("err", &err)

	for _, n := range nodes {
		fd, ok := n.(ast.FuncDef)
		if !ok {
			return nil, errors.New("top-level statement outside function definition (%T)", n)
		}

		err = g.lowerFunc(ctx, fd)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", fd.Name)
		}
	}

	if f, ok := g.funcs["main"]; ok {
		if last := f.Blocks[len(f.Blocks)-1]; last.Term == nil {
			last.NewRet(constant.NewFloat(types.Double, 0))
		}
	}

	return g.mod, nil
}

func (g *Generator) lowerFunc(ctx context.Context, fd ast.FuncDef) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "gen: func", "name", fd.Name, "params", len(fd.Params))
	defer tr.Finish("err", &err)

	if _, ok := g.funcs[fd.Name]; ok {
		return errors.New("redefinition of function")
	}

	params := make([]*ir.Param, len(fd.Params))
	seen := make(map[string]struct{}, len(fd.Params))

	for i, name := range fd.Params {
		if _, ok := seen[name]; ok {
			return errors.New("duplicate parameter: %v", name)
		}

		seen[name] = struct{}{}
		params[i] = ir.NewParam(name, types.Double)
	}

	fn := g.mod.NewFunc(fd.Name, types.Double, params...)

	// registered before the body is lowered, so the body can call the
	// function itself and mutually recursive definitions resolve
	g.funcs[fd.Name] = fn

	g.push(fn)
	defer g.pop()

	entry := fn.NewBlock("entry")
	g.cur.entry = entry
	g.cur.block = entry

	// parameters arrive as values; a store into a slot makes them
	// mutable like any other local
	for i, p := range fn.Params {
		slot := g.newSlot(fd.Params[i])
		entry.NewStore(p, slot)
	}

	for _, n := range fd.Body {
		_, err = g.lowerStmt(ctx, n)
		if err != nil {
			return err
		}
	}

	if last := fn.Blocks[len(fn.Blocks)-1]; last.Term == nil {
		last.NewRet(constant.NewFloat(types.Double, 0))
	}

	return nil
}

// lowerStmt lowers one statement and reports the value it produced,
// nil for constructs that have none (return, while, valueless if).
func (g *Generator) lowerStmt(ctx context.Context, n ast.Node) (value.Value, error) {
	switch n := n.(type) {
	case ast.Return:
		v, err := g.lowerExpr(ctx, n.Value)
		if err != nil {
			return nil, errors.Wrap(err, "return")
		}

		// statements after a return are dead code, never overwrite
		// the terminator already in place
		if g.cur.block.Term == nil {
			g.cur.block.NewRet(v)
		}

		return nil, nil
	case ast.If:
		return g.lowerIf(ctx, n)
	case ast.While:
		return nil, g.lowerWhile(ctx, n)
	case ast.FuncDef:
		return nil, g.lowerFunc(ctx, n)
	default:
		return g.lowerExpr(ctx, n)
	}
}

func (g *Generator) lowerExpr(ctx context.Context, n ast.Node) (value.Value, error) {
	switch n := n.(type) {
	case ast.Number:
		return constant.NewFloat(types.Double, n.Value), nil
	case ast.Variable:
		slot, ok := g.cur.vars[n.Name]
		if !ok {
			return nil, UnknownVariableError{Name: n.Name}
		}

		return g.cur.block.NewLoad(types.Double, slot), nil
	case ast.Assign:
		slot, ok := g.cur.vars[n.Name]
		if !ok {
			slot = g.newSlot(n.Name)
		}

		v, err := g.lowerExpr(ctx, n.Value)
		if err != nil {
			return nil, errors.Wrap(err, "assign %v", n.Name)
		}

		g.cur.block.NewStore(v, slot)

		// assignment is an expression, its value is the stored value
		return v, nil
	case ast.BinaryOp:
		l, err := g.lowerExpr(ctx, n.Left)
		if err != nil {
			return nil, errors.Wrap(err, "left of %v", n.Op)
		}

		r, err := g.lowerExpr(ctx, n.Right)
		if err != nil {
			return nil, errors.Wrap(err, "right of %v", n.Op)
		}

		b := g.cur.block

		switch n.Op {
		case "+":
			return b.NewFAdd(l, r), nil
		case "-":
			return b.NewFSub(l, r), nil
		case "*":
			return b.NewFMul(l, r), nil
		case "/":
			return b.NewFDiv(l, r), nil
		case "<":
			return g.cmp(enum.FPredOLT, l, r), nil
		case ">":
			return g.cmp(enum.FPredOGT, l, r), nil
		case "==":
			return g.cmp(enum.FPredOEQ, l, r), nil
		default:
			return nil, errors.New("invalid binary operator: %q", n.Op)
		}
	case ast.Call:
		callee, ok := g.funcs[n.Name]
		if !ok {
			return nil, UnknownFunctionError{Name: n.Name}
		}

		args := make([]value.Value, len(n.Args))

		for i, a := range n.Args {
			v, err := g.lowerExpr(ctx, a)
			if err != nil {
				return nil, errors.Wrap(err, "arg %d of %v", i, n.Name)
			}

			args[i] = v
		}

		// arity is validated by the backend, not here
		return g.cur.block.NewCall(callee, args...), nil
	default:
		return nil, errors.New("not an expression: %T", n)
	}
}

// lowerIf threads control flow through three fresh blocks and merges
// the arm values with a phi when, and only when, both arms fell
// through to the merge with a value.
func (g *Generator) lowerIf(ctx context.Context, n ast.If) (value.Value, error) {
	cond, err := g.lowerExpr(ctx, n.Cond)
	if err != nil {
		return nil, errors.Wrap(err, "cond")
	}

	truth := g.cur.block.NewFCmp(enum.FPredONE, cond, constant.NewFloat(types.Double, 0))

	fn := g.cur.fn
	then := fn.NewBlock(g.newLabel("then"))
	els := fn.NewBlock(g.newLabel("else"))
	merge := fn.NewBlock(g.newLabel("merge"))

	if g.cur.block.Term == nil {
		g.cur.block.NewCondBr(truth, then, els)
	}

	thenVal, thenOut, err := g.lowerArm(ctx, then, merge, n.Then)
	if err != nil {
		return nil, errors.Wrap(err, "then")
	}

	elseVal, elseOut, err := g.lowerArm(ctx, els, merge, n.Else)
	if err != nil {
		return nil, errors.Wrap(err, "else")
	}

	g.cur.block = merge

	if thenVal != nil && elseVal != nil && thenOut != nil && elseOut != nil {
		return merge.NewPhi(ir.NewIncoming(thenVal, thenOut), ir.NewIncoming(elseVal, elseOut)), nil
	}

	return nil, nil
}

// lowerArm lowers one if arm starting at block b. It returns the value of the
// arm's last statement and the block the fallthrough branch was emitted from,
// nil when the arm terminated early and never reached the merge.
func (g *Generator) lowerArm(ctx context.Context, b, merge *ir.Block, stmts []ast.Node) (last value.Value, out *ir.Block, err error) {
	g.cur.block = b

	for _, st := range stmts {
		last, err = g.lowerStmt(ctx, st)
		if err != nil {
			return nil, nil, err
		}
	}

	out = g.cur.block

	if out.Term != nil {
		// already terminated by a nested construct, no fallthrough
		return last, nil, nil
	}

	out.NewBr(merge)

	return last, out, nil
}

func (g *Generator) lowerWhile(ctx context.Context, n ast.While) error {
	fn := g.cur.fn
	cond := fn.NewBlock(g.newLabel("while.cond"))
	body := fn.NewBlock(g.newLabel("while.body"))
	end := fn.NewBlock(g.newLabel("while.end"))

	// explicit branch so the loop works mid-function
	if g.cur.block.Term == nil {
		g.cur.block.NewBr(cond)
	}

	g.cur.block = cond

	v, err := g.lowerExpr(ctx, n.Cond)
	if err != nil {
		return errors.Wrap(err, "cond")
	}

	truth := g.cur.block.NewFCmp(enum.FPredONE, v, constant.NewFloat(types.Double, 0))
	g.cur.block.NewCondBr(truth, body, end)

	g.cur.block = body

	for _, st := range n.Body {
		_, err = g.lowerStmt(ctx, st)
		if err != nil {
			return errors.Wrap(err, "body")
		}
	}

	if g.cur.block.Term == nil {
		g.cur.block.NewBr(cond)
	}

	g.cur.block = end

	return nil
}

// newSlot allocates a storage slot in the entry block and binds it.
// Placing every alloca at function entry keeps repeated lowering inside
// loops and branches from growing the stack.
func (g *Generator) newSlot(name string) *ir.InstAlloca {
	slot := ir.NewAlloca(types.Double)
	slot.SetName(name + ".addr")

	g.cur.entry.Insts = append(g.cur.entry.Insts, slot)
	g.cur.vars[name] = slot

	return slot
}

func (g *Generator) cmp(pred enum.FPred, l, r value.Value) value.Value {
	b := g.cur.block
	c := b.NewFCmp(pred, l, r)

	// comparisons flow back into arithmetic as 0.0/1.0
	return b.NewUIToFP(c, types.Double)
}

func (g *Generator) push(fn *ir.Func) {
	g.saved = append(g.saved, g.cur)
	g.cur = &funContext{
		fn:   fn,
		vars: make(map[string]*ir.InstAlloca),
	}
}

func (g *Generator) pop() {
	g.cur = g.saved[len(g.saved)-1]
	g.saved = g.saved[:len(g.saved)-1]
}

func (g *Generator) newLabel(base string) string {
	g.label++

	return fmt.Sprintf("%s.%d", base, g.label)
}

func (e UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable: %v", e.Name)
}

func (e UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function: %v", e.Name)
}
