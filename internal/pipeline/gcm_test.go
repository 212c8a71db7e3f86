package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

// buildLoopWithInvariant constructs an already-flat CFG:
//
//	entry: a,b = getarg, getarg; goto cond
//	cond:  branch (always taken placeholder), body, exit
//	body:  inv = a+b (only use is the store below); store(slot, inv); goto cond
//	exit:  ret
func buildLoopWithInvariant(t *testing.T) (*ir.Function, *ir.BasicBlock, *ir.BasicBlock, *ir.Op) {
	t.Helper()
	fn := ir.NewFunction("f", []ir.Type{ir.I32, ir.I32}, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	cond := ir.NewBlock("cond")
	fn.Region.Append(cond)
	body := ir.NewBlock("body")
	fn.Region.Append(body)
	exit := ir.NewBlock("exit")
	fn.Region.Append(exit)

	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	a := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg")})
	b := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg")})
	slot := bld.Create(ir.KAlloca, ir.I32, nil, []ir.Attr{ir.SizeAttr(4), ir.NameAttr("s")})
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(cond)})
	entry.AddSucc(cond)

	bld.SetInsertionPoint(cond)
	c := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	bld.Create(ir.KBranch, ir.Unit, []*ir.Op{c}, []ir.Attr{ir.TargetAttr(body), ir.ElseAttr(exit)})
	cond.AddSucc(body)
	cond.AddSucc(exit)

	bld.SetInsertionPoint(body)
	inv := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{a, b}, []ir.Attr{ir.NameAttr("add")})
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{slot, inv}, nil)
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(cond)})
	body.AddSucc(cond)

	bld.SetInsertionPoint(exit)
	bld.Create(ir.KRet, ir.Unit, nil, nil)

	return fn, cond, body, inv
}

func TestGCMHoistsLoopInvariantOutOfLoop(t *testing.T) {
	fn, _, body, inv := buildLoopWithInvariant(t)
	gcm(fn)

	assert.Equal(t, fn.EntryBlock(), inv.Block, "invariant add must move to entry, the only block on its early-late path outside the loop")
	found := false
	for _, o := range body.Ops {
		if o == inv {
			found = true
		}
	}
	assert.False(t, found, "invariant add must no longer live in the loop body")
}

func TestGCMPreservesOperandBeforeUseOrdering(t *testing.T) {
	fn := ir.NewFunction("f", []ir.Type{ir.I32}, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)

	a := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg")})
	one := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	inner := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{a, one}, []ir.Attr{ir.NameAttr("add")})
	two := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(2)})
	outer := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{inner, two}, []ir.Attr{ir.NameAttr("mul")})
	bld.Create(ir.KRet, ir.Unit, []*ir.Op{outer}, nil)

	gcm(fn)

	innerIdx, outerIdx := -1, -1
	for i, o := range entry.Ops {
		if o == inner {
			innerIdx = i
		}
		if o == outer {
			outerIdx = i
		}
	}
	require.GreaterOrEqual(t, innerIdx, 0)
	require.GreaterOrEqual(t, outerIdx, 0)
	assert.Less(t, innerIdx, outerIdx, "inner must still precede outer after scheduling")
}
