package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

// buildFactorial constructs:
//
//	func factorial(n) {
//	  if (n <= 1) { return 1 } else { return n * factorial(n - 1) }
//	}
//
// directly at the ir level, matching the shape Lower would produce.
func buildFactorial() *ir.Function {
	fn := ir.NewFunction("factorial", []ir.Type{ir.I32}, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)

	nSlot := bld.Create(ir.KAlloca, ir.I32, nil, []ir.Attr{ir.SizeAttr(4), ir.NameAttr("n")})
	nLoad := bld.Create(ir.KLoad, ir.I32, []*ir.Op{nSlot}, nil)
	one := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	cond := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{nLoad, one}, []ir.Attr{ir.NameAttr("le")})

	ifOp := bld.Create(ir.KIf, ir.Unit, []*ir.Op{cond}, nil)

	thenRegion := bld.CreateRegion(ifOp)
	thenBlk := ir.NewBlock("then")
	thenRegion.Append(thenBlk)
	scope := bld.EnterScope()
	bld.SetInsertionPoint(thenBlk)
	baseConst := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	bld.Create(ir.KReturn, ir.Unit, []*ir.Op{baseConst}, nil)
	scope.Exit()

	elseRegion := bld.CreateRegion(ifOp)
	elseBlk := ir.NewBlock("else")
	elseRegion.Append(elseBlk)
	scope2 := bld.EnterScope()
	bld.SetInsertionPoint(elseBlk)
	nLoad2 := bld.Create(ir.KLoad, ir.I32, []*ir.Op{nSlot}, nil)
	nMinus1 := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{nLoad2, one}, []ir.Attr{ir.NameAttr("sub")})
	call := bld.Create(ir.KCall, ir.I32, []*ir.Op{nMinus1}, []ir.Attr{ir.NameAttr("factorial")})
	nLoad3 := bld.Create(ir.KLoad, ir.I32, []*ir.Op{nSlot}, nil)
	mulRes := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{call, nLoad3}, []ir.Attr{ir.NameAttr("mul")})
	bld.Create(ir.KReturn, ir.Unit, []*ir.Op{mulRes}, nil)
	scope2.Exit()

	return fn
}

func TestTCORewritesAccumulatorRecursion(t *testing.T) {
	fn := buildFactorial()
	applyTCO(fn)

	entry := fn.EntryBlock()
	require.NotEmpty(t, entry.Ops)

	var whileOps, callOps, retOps int
	for _, o := range entry.Ops {
		switch o.Kind {
		case ir.KWhile:
			whileOps++
			require.Len(t, o.Regions, 2)
			assert.NotEmpty(t, o.Regions[0].Blocks[0].Ops)
			assert.NotEmpty(t, o.Regions[1].Blocks[0].Ops)
		case ir.KCall:
			callOps++
		case ir.KReturn:
			retOps++
		}
	}
	assert.Equal(t, 1, whileOps, "recursion should become a single while loop")
	assert.Equal(t, 0, callOps, "the self-recursive call should be gone")
	assert.Equal(t, 1, retOps, "exactly one return should remain, after the loop")
	assert.Equal(t, ir.KReturn, entry.Ops[len(entry.Ops)-1].Kind)

	mod := ir.NewModule("test")
	mod.AddFunction(fn)
	errs := ir.Verify(mod, false)
	assert.Empty(t, errs)
}

func TestTCOLeavesPlainRecursionAlone(t *testing.T) {
	fn := ir.NewFunction("weird", []ir.Type{ir.I32}, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	c := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KReturn, ir.Unit, []*ir.Op{c}, nil)

	applyTCO(fn)
	assert.Len(t, entry.Ops, 2, "a body with no guarding If should be left untouched")
}
