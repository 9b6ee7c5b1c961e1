package back

import (
	"context"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/stretchr/testify/require"
)

func d(v float64) *constant.Float {
	return constant.NewFloat(types.Double, v)
}

func TestSmoke(t *testing.T) {
	m := ir.NewModule()

	f := m.NewFunc("main", types.Double)
	entry := f.NewBlock("entry")
	entry.NewRet(d(42))

	ctx := context.Background()

	r, err := Run(ctx, m)
	if err != nil {
		t.Errorf("run module: %v", err)
	}

	if r != 42 {
		t.Errorf("result: %v, wanted 42", r)
	}

	t.Logf("module:\n%s", m)
}

func TestArithmetic(t *testing.T) {
	m := ir.NewModule()

	f := m.NewFunc("main", types.Double)
	entry := f.NewBlock("entry")
	mul := entry.NewFMul(d(2), d(3))
	add := entry.NewFAdd(d(1), mul)
	entry.NewRet(add)

	r, err := Run(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, 7.0, r)
}

func TestSlotsAndBranches(t *testing.T) {
	// x = 5; if x > 3 { 1 } else { 0 } via explicit blocks and a phi
	m := ir.NewModule()

	f := m.NewFunc("main", types.Double)
	entry := f.NewBlock("entry")
	then := f.NewBlock("then")
	els := f.NewBlock("else")
	merge := f.NewBlock("merge")

	x := entry.NewAlloca(types.Double)
	entry.NewStore(d(5), x)
	v := entry.NewLoad(types.Double, x)
	cmp := entry.NewFCmp(enum.FPredOGT, v, d(3))
	entry.NewCondBr(cmp, then, els)

	then.NewBr(merge)
	els.NewBr(merge)

	phi := merge.NewPhi(ir.NewIncoming(d(1), then), ir.NewIncoming(d(0), els))
	merge.NewRet(phi)

	r, err := Run(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, 1.0, r)
}

func TestCall(t *testing.T) {
	m := ir.NewModule()

	a := ir.NewParam("a", types.Double)
	b := ir.NewParam("b", types.Double)
	add := m.NewFunc("add", types.Double, a, b)
	entry := add.NewBlock("entry")
	entry.NewRet(entry.NewFAdd(a, b))

	f := m.NewFunc("main", types.Double)
	fe := f.NewBlock("entry")
	fe.NewRet(fe.NewCall(add, d(2), d(3)))

	r, err := Run(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, 5.0, r)
}

func TestComparisonConvert(t *testing.T) {
	m := ir.NewModule()

	f := m.NewFunc("main", types.Double)
	entry := f.NewBlock("entry")
	cmp := entry.NewFCmp(enum.FPredOLT, d(1), d(2))
	entry.NewRet(entry.NewUIToFP(cmp, types.Double))

	r, err := Run(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, 1.0, r)
}

func TestMissingMain(t *testing.T) {
	m := ir.NewModule()

	f := m.NewFunc("helper", types.Double)
	f.NewBlock("entry").NewRet(d(0))

	_, err := Run(context.Background(), m)
	require.ErrorContains(t, err, "main is not defined")
}

func TestMainTakesNoArguments(t *testing.T) {
	m := ir.NewModule()

	f := m.NewFunc("main", types.Double, ir.NewParam("x", types.Double))
	f.NewBlock("entry").NewRet(d(0))

	_, err := Run(context.Background(), m)
	require.ErrorContains(t, err, "no arguments")
}

func TestVerifyMissingTerminator(t *testing.T) {
	m := ir.NewModule()

	f := m.NewFunc("main", types.Double)
	f.NewBlock("entry")

	err := Verify(context.Background(), m)
	require.ErrorContains(t, err, "missing terminator")
}

func TestVerifyArity(t *testing.T) {
	m := ir.NewModule()

	one := m.NewFunc("one", types.Double, ir.NewParam("a", types.Double))
	oe := one.NewBlock("entry")
	oe.NewRet(d(1))

	f := m.NewFunc("main", types.Double)
	fe := f.NewBlock("entry")
	fe.NewRet(fe.NewCall(one)) // no args for a unary callee

	err := Verify(context.Background(), m)
	require.ErrorContains(t, err, "want 1 args, got 0")
}

func TestVerifyForeignBranch(t *testing.T) {
	m := ir.NewModule()

	other := m.NewFunc("other", types.Double)
	ob := other.NewBlock("entry")
	ob.NewRet(d(0))

	f := m.NewFunc("main", types.Double)
	fe := f.NewBlock("entry")
	fe.NewBr(ob)

	err := Verify(context.Background(), m)
	require.ErrorContains(t, err, "foreign block")
}

func TestInfiniteRecursionCapped(t *testing.T) {
	m := ir.NewModule()

	f := m.NewFunc("main", types.Double)
	entry := f.NewBlock("entry")
	entry.NewRet(entry.NewCall(f))

	_, err := Run(context.Background(), m)
	require.ErrorContains(t, err, "call depth exceeded")
}
