package back

import (
	"context"
	"math"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/value"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// maxCallDepth bounds recursion before the evaluator gives up.
const maxCallDepth = 4096

type (
	// frame is one function activation: SSA registers plus the
	// storage-slot cells backing mutable variables.
	frame struct {
		regs  map[value.Value]float64
		slots map[*ir.InstAlloca]float64
	}
)

// Run verifies the module, resolves main and invokes it with no arguments.
func Run(ctx context.Context, m *ir.Module) (_ float64, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: run module", "funcs", len(m.Funcs))
	defer tr.Finish("err", &err)

	err = Verify(ctx, m)
	if err != nil {
		return 0, errors.Wrap(err, "verify")
	}

	f := findFunc(m, "main")
	if f == nil {
		return 0, errors.New("main is not defined")
	}

	if len(f.Params) != 0 {
		return 0, errors.New("main takes no arguments, defined with %d", len(f.Params))
	}

	r, err := call(ctx, f, nil, 0)
	if err != nil {
		return 0, errors.Wrap(err, "execute main")
	}

	return r, nil
}

// Verify checks the structural invariants the evaluator relies on:
// every block terminated, branch targets and phi predecessors inside the
// owning function, call arity matching the callee.
func Verify(ctx context.Context, m *ir.Module) error {
	for _, f := range m.Funcs {
		err := verifyFunc(f)
		if err != nil {
			return errors.Wrap(err, "func %v", f.Name())
		}
	}

	return nil
}

func verifyFunc(f *ir.Func) error {
	if len(f.Blocks) == 0 {
		return errors.New("no body")
	}

	in := make(map[*ir.Block]struct{}, len(f.Blocks))

	for _, b := range f.Blocks {
		in[b] = struct{}{}
	}

	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			switch inst := inst.(type) {
			case *ir.InstCall:
				callee, ok := inst.Callee.(*ir.Func)
				if !ok {
					return errors.New("block %v: indirect call", b.Name())
				}

				if len(inst.Args) != len(callee.Params) {
					return errors.New("call to %v: want %d args, got %d", callee.Name(), len(callee.Params), len(inst.Args))
				}
			case *ir.InstPhi:
				for _, inc := range inst.Incs {
					pred, ok := inc.Pred.(*ir.Block)
					if !ok {
						return errors.New("block %v: phi from non-block %T", b.Name(), inc.Pred)
					}

					if _, ok := in[pred]; !ok {
						return errors.New("block %v: phi from foreign block %v", b.Name(), pred.Name())
					}
				}
			}
		}

		switch t := b.Term.(type) {
		case nil:
			return errors.New("block %v: missing terminator", b.Name())
		case *ir.TermRet:
			if t.X == nil {
				return errors.New("block %v: return without value", b.Name())
			}
		case *ir.TermBr:
			err := checkTarget(in, t.Target)
			if err != nil {
				return errors.Wrap(err, "block %v", b.Name())
			}
		case *ir.TermCondBr:
			err := checkTarget(in, t.TargetTrue)
			if err == nil {
				err = checkTarget(in, t.TargetFalse)
			}
			if err != nil {
				return errors.Wrap(err, "block %v", b.Name())
			}
		default:
			return errors.New("block %v: unsupported terminator %T", b.Name(), t)
		}
	}

	return nil
}

func checkTarget(in map[*ir.Block]struct{}, target value.Value) error {
	b, ok := target.(*ir.Block)
	if !ok {
		return errors.New("branch to non-block %T", target)
	}

	if _, ok := in[b]; !ok {
		return errors.New("branch to foreign block %v", b.Name())
	}

	return nil
}

func call(ctx context.Context, f *ir.Func, args []float64, depth int) (float64, error) {
	if depth > maxCallDepth {
		return 0, errors.New("call depth exceeded (%d)", maxCallDepth)
	}

	fr := &frame{
		regs:  make(map[value.Value]float64),
		slots: make(map[*ir.InstAlloca]float64),
	}

	for i, p := range f.Params {
		fr.regs[p] = args[i]
	}

	var prev *ir.Block
	b := f.Blocks[0]

	for {
		err := fr.phis(b, prev)
		if err != nil {
			return 0, errors.Wrap(err, "block %v", b.Name())
		}

		for _, inst := range b.Insts {
			if _, ok := inst.(*ir.InstPhi); ok {
				continue
			}

			err = fr.exec(ctx, inst, depth)
			if err != nil {
				return 0, errors.Wrap(err, "block %v", b.Name())
			}
		}

		switch t := b.Term.(type) {
		case *ir.TermRet:
			return fr.eval(t.X)
		case *ir.TermBr:
			prev, b = b, t.Target.(*ir.Block)
		case *ir.TermCondBr:
			c, err := fr.eval(t.Cond)
			if err != nil {
				return 0, errors.Wrap(err, "block %v: cond", b.Name())
			}

			prev = b

			if c != 0 {
				b = t.TargetTrue.(*ir.Block)
			} else {
				b = t.TargetFalse.(*ir.Block)
			}
		default:
			return 0, errors.New("block %v: unsupported terminator %T", b.Name(), t)
		}
	}
}

// phis commits all phi nodes of b at once, reading incoming values
// against the state the predecessor left behind.
func (fr *frame) phis(b, prev *ir.Block) error {
	var nodes []*ir.InstPhi

	for _, inst := range b.Insts {
		if p, ok := inst.(*ir.InstPhi); ok {
			nodes = append(nodes, p)
		}
	}

	if len(nodes) == 0 {
		return nil
	}

	if prev == nil {
		return errors.New("phi in entry block")
	}

	vals := make([]float64, len(nodes))

	for i, p := range nodes {
		found := false

		for _, inc := range p.Incs {
			if inc.Pred != value.Value(prev) {
				continue
			}

			v, err := fr.eval(inc.X)
			if err != nil {
				return errors.Wrap(err, "phi")
			}

			vals[i] = v
			found = true

			break
		}

		if !found {
			return errors.New("phi has no incoming for block %v", prev.Name())
		}
	}

	for i, p := range nodes {
		fr.regs[p] = vals[i]
	}

	return nil
}

func (fr *frame) exec(ctx context.Context, inst ir.Instruction, depth int) error {
	switch inst := inst.(type) {
	case *ir.InstAlloca:
		fr.slots[inst] = 0
	case *ir.InstStore:
		slot, ok := inst.Dst.(*ir.InstAlloca)
		if !ok {
			return errors.New("store to non-slot %T", inst.Dst)
		}

		v, err := fr.eval(inst.Src)
		if err != nil {
			return errors.Wrap(err, "store")
		}

		fr.slots[slot] = v
	case *ir.InstLoad:
		slot, ok := inst.Src.(*ir.InstAlloca)
		if !ok {
			return errors.New("load from non-slot %T", inst.Src)
		}

		v, ok := fr.slots[slot]
		if !ok {
			return errors.New("load from unallocated slot %v", slot.Name())
		}

		fr.regs[inst] = v
	case *ir.InstFAdd:
		return fr.binop(inst, inst.X, inst.Y, func(l, r float64) float64 { return l + r })
	case *ir.InstFSub:
		return fr.binop(inst, inst.X, inst.Y, func(l, r float64) float64 { return l - r })
	case *ir.InstFMul:
		return fr.binop(inst, inst.X, inst.Y, func(l, r float64) float64 { return l * r })
	case *ir.InstFDiv:
		return fr.binop(inst, inst.X, inst.Y, func(l, r float64) float64 { return l / r })
	case *ir.InstFCmp:
		l, err := fr.eval(inst.X)
		if err != nil {
			return errors.Wrap(err, "fcmp")
		}

		r, err := fr.eval(inst.Y)
		if err != nil {
			return errors.Wrap(err, "fcmp")
		}

		var res bool

		switch inst.Pred {
		case enum.FPredOLT:
			res = l < r
		case enum.FPredOGT:
			res = l > r
		case enum.FPredOEQ:
			res = l == r
		case enum.FPredONE:
			res = !math.IsNaN(l) && !math.IsNaN(r) && l != r
		default:
			return errors.New("unsupported fcmp predicate: %v", inst.Pred)
		}

		fr.regs[inst] = b2f(res)
	case *ir.InstUIToFP:
		v, err := fr.eval(inst.From)
		if err != nil {
			return errors.Wrap(err, "uitofp")
		}

		fr.regs[inst] = v
	case *ir.InstCall:
		callee := inst.Callee.(*ir.Func)

		args := make([]float64, len(inst.Args))

		for i, a := range inst.Args {
			v, err := fr.eval(a)
			if err != nil {
				return errors.Wrap(err, "arg %d", i)
			}

			args[i] = v
		}

		r, err := call(ctx, callee, args, depth+1)
		if err != nil {
			return errors.Wrap(err, "call %v", callee.Name())
		}

		fr.regs[inst] = r
	default:
		return errors.New("unsupported instruction: %T", inst)
	}

	return nil
}

func (fr *frame) binop(inst value.Value, x, y value.Value, op func(l, r float64) float64) error {
	l, err := fr.eval(x)
	if err != nil {
		return err
	}

	r, err := fr.eval(y)
	if err != nil {
		return err
	}

	fr.regs[inst] = op(l, r)

	return nil
}

func (fr *frame) eval(v value.Value) (float64, error) {
	if c, ok := v.(*constant.Float); ok {
		f, _ := c.X.Float64()
		return f, nil
	}

	f, ok := fr.regs[v]
	if !ok {
		return 0, errors.New("use of undefined value (%T)", v)
	}

	return f, nil
}

func findFunc(m *ir.Module, name string) *ir.Func {
	for _, f := range m.Funcs {
		if f.Name() == name {
			return f
		}
	}

	return nil
}

func b2f(b bool) float64 {
	if b {
		return 1
	}

	return 0
}
