package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

func countKind(blocks []*ir.BasicBlock, k ir.Kind) int {
	n := 0
	for _, b := range blocks {
		for _, o := range b.Ops {
			if o.Kind == k {
				n++
			}
		}
	}
	return n
}

func verifyFlattened(t *testing.T, fn *ir.Function) {
	t.Helper()
	mod := ir.NewModule("test")
	mod.AddFunction(fn)
	errs := ir.Verify(mod, true)
	assert.Empty(t, errs)
}

// buildIfElse constructs:
//
//	if (c) { return 1 } else { return 2 }
func buildIfElse() *ir.Function {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)

	cond := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	ifOp := bld.Create(ir.KIf, ir.Unit, []*ir.Op{cond}, nil)

	thenR := bld.CreateRegion(ifOp)
	thenBlk := ir.NewBlock("then")
	thenR.Append(thenBlk)
	s1 := bld.EnterScope()
	bld.SetInsertionPoint(thenBlk)
	one := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	bld.Create(ir.KReturn, ir.Unit, []*ir.Op{one}, nil)
	s1.Exit()

	elseR := bld.CreateRegion(ifOp)
	elseBlk := ir.NewBlock("else")
	elseR.Append(elseBlk)
	s2 := bld.EnterScope()
	bld.SetInsertionPoint(elseBlk)
	two := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(2)})
	bld.Create(ir.KReturn, ir.Unit, []*ir.Op{two}, nil)
	s2.Exit()

	return fn
}

func TestFlattenCFGBothArmsReturnNoJoinBlock(t *testing.T) {
	fn := buildIfElse()
	flattenCFG(fn)

	for _, b := range fn.Region.Blocks {
		require.NotNil(t, b.Terminator(), "block %s has no terminator", b.Label)
	}
	assert.Equal(t, 2, countKind(fn.Region.Blocks, ir.KRet))
	assert.Equal(t, 1, countKind(fn.Region.Blocks, ir.KBranch))
	assert.Equal(t, 0, countKind(fn.Region.Blocks, ir.KIf))
	verifyFlattened(t, fn)
}

// buildWhileWithBreakAndContinue constructs:
//
//	i = 0
//	while (load(i) < 10) {
//	  if (load(i) == 5) { break }
//	  if (load(i) == 1) { continue }
//	  store(i, load(i)+1)
//	}
//	return 0
func buildWhileWithBreakAndContinue() *ir.Function {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)

	ivSlot := bld.Create(ir.KAlloca, ir.I32, nil, []ir.Attr{ir.SizeAttr(4), ir.NameAttr("i")})
	zero := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{ivSlot, zero}, nil)

	whileOp := bld.Create(ir.KWhile, ir.Unit, nil, nil)
	condR := bld.CreateRegion(whileOp)
	condBlk := ir.NewBlock("cond")
	condR.Append(condBlk)
	s1 := bld.EnterScope()
	bld.SetInsertionPoint(condBlk)
	iv := bld.Create(ir.KLoad, ir.I32, []*ir.Op{ivSlot}, nil)
	bound := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(10)})
	bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv, bound}, []ir.Attr{ir.NameAttr("lt")})
	s1.Exit()

	bodyR := bld.CreateRegion(whileOp)
	bodyBlk := ir.NewBlock("body")
	bodyR.Append(bodyBlk)
	s2 := bld.EnterScope()
	bld.SetInsertionPoint(bodyBlk)

	iv2 := bld.Create(ir.KLoad, ir.I32, []*ir.Op{ivSlot}, nil)
	five := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(5)})
	eqFive := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv2, five}, []ir.Attr{ir.NameAttr("eq")})
	breakIf := bld.Create(ir.KIf, ir.Unit, []*ir.Op{eqFive}, nil)
	breakR := bld.CreateRegion(breakIf)
	breakBlk := ir.NewBlock("break.then")
	breakR.Append(breakBlk)
	sb := bld.EnterScope()
	bld.SetInsertionPoint(breakBlk)
	bld.Create(ir.KBreak, ir.Unit, nil, nil)
	sb.Exit()

	iv3 := bld.Create(ir.KLoad, ir.I32, []*ir.Op{ivSlot}, nil)
	oneC := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	eqOne := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv3, oneC}, []ir.Attr{ir.NameAttr("eq")})
	contIf := bld.Create(ir.KIf, ir.Unit, []*ir.Op{eqOne}, nil)
	contR := bld.CreateRegion(contIf)
	contBlk := ir.NewBlock("continue.then")
	contR.Append(contBlk)
	sc := bld.EnterScope()
	bld.SetInsertionPoint(contBlk)
	bld.Create(ir.KContinue, ir.Unit, nil, nil)
	sc.Exit()

	iv4 := bld.Create(ir.KLoad, ir.I32, []*ir.Op{ivSlot}, nil)
	stepC := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	inc := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv4, stepC}, []ir.Attr{ir.NameAttr("add")})
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{ivSlot, inc}, nil)
	s2.Exit()

	retC := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KReturn, ir.Unit, []*ir.Op{retC}, nil)

	return fn
}

func TestFlattenCFGWhileWithBreakAndContinue(t *testing.T) {
	fn := buildWhileWithBreakAndContinue()
	flattenCFG(fn)

	for _, b := range fn.Region.Blocks {
		require.NotNil(t, b.Terminator(), "block %s has no terminator", b.Label)
	}
	assert.Equal(t, 0, countKind(fn.Region.Blocks, ir.KWhile))
	assert.Equal(t, 0, countKind(fn.Region.Blocks, ir.KIf))
	assert.Equal(t, 0, countKind(fn.Region.Blocks, ir.KBreak))
	assert.Equal(t, 0, countKind(fn.Region.Blocks, ir.KContinue))
	assert.GreaterOrEqual(t, countKind(fn.Region.Blocks, ir.KGoto), 2)
	verifyFlattened(t, fn)
}

// buildForLoop constructs: for iv = 0 to 10 step 1 { <nothing> }; return 0
func buildForLoop() *ir.Function {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)

	ivSlot := bld.Create(ir.KAlloca, ir.I32, nil, []ir.Attr{ir.SizeAttr(4), ir.NameAttr("i")})
	start := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	stop := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(10)})
	step := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	forOp := bld.Create(ir.KFor, ir.Unit, []*ir.Op{start, stop, step, ivSlot}, nil)
	bodyR := bld.CreateRegion(forOp)
	bodyR.Append(ir.NewBlock("body"))

	retC := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KReturn, ir.Unit, []*ir.Op{retC}, nil)

	return fn
}

func TestFlattenCFGForLoop(t *testing.T) {
	fn := buildForLoop()
	flattenCFG(fn)

	for _, b := range fn.Region.Blocks {
		require.NotNil(t, b.Terminator(), "block %s has no terminator", b.Label)
	}
	assert.Equal(t, 0, countKind(fn.Region.Blocks, ir.KFor))
	assert.Equal(t, 1, countKind(fn.Region.Blocks, ir.KRet))
	verifyFlattened(t, fn)
}
