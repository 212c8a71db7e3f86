package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

// buildHandWrittenCountedLoop constructs:
//
//	i = 0
//	while (i < 10) { ...; i = i + 1 }
//	return 0
func buildHandWrittenCountedLoop() (*ir.Function, *ir.Op) {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)

	ivSlot := bld.Create(ir.KAlloca, ir.I32, nil, []ir.Attr{ir.SizeAttr(4), ir.NameAttr("i")})
	startC := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{ivSlot, startC}, nil)

	whileOp := bld.Create(ir.KWhile, ir.Unit, nil, nil)
	condRegion := bld.CreateRegion(whileOp)
	condBlk := ir.NewBlock("cond")
	condRegion.Append(condBlk)
	s1 := bld.EnterScope()
	bld.SetInsertionPoint(condBlk)
	ivLoad := bld.Create(ir.KLoad, ir.I32, []*ir.Op{ivSlot}, nil)
	boundC := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(10)})
	bld.Create(ir.KBinOp, ir.I32, []*ir.Op{ivLoad, boundC}, []ir.Attr{ir.NameAttr("lt")})
	s1.Exit()

	bodyRegion := bld.CreateRegion(whileOp)
	bodyBlk := ir.NewBlock("body")
	bodyRegion.Append(bodyBlk)
	s2 := bld.EnterScope()
	bld.SetInsertionPoint(bodyBlk)
	bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(99)}) // placeholder body work
	ivLoad2 := bld.Create(ir.KLoad, ir.I32, []*ir.Op{ivSlot}, nil)
	stepC := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	incAdd := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{ivLoad2, stepC}, []ir.Attr{ir.NameAttr("add")})
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{ivSlot, incAdd}, nil)
	s2.Exit()

	retC := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KReturn, ir.Unit, []*ir.Op{retC}, nil)

	return fn, ivSlot
}

func TestRaiseToForRewritesHandWrittenCounter(t *testing.T) {
	fn, ivSlot := buildHandWrittenCountedLoop()
	raiseToFor(fn)

	entry := fn.EntryBlock()
	var forOps, whileOps int
	var forOp *ir.Op
	for _, o := range entry.Ops {
		switch o.Kind {
		case ir.KFor:
			forOps++
			forOp = o
		case ir.KWhile:
			whileOps++
		}
	}
	assert.Equal(t, 1, forOps)
	assert.Equal(t, 0, whileOps)
	require.NotNil(t, forOp)
	require.Len(t, forOp.Operands, 4)
	assert.Equal(t, ivSlot, forOp.Operands[3])
	require.Len(t, forOp.Regions, 1)
	body := forOp.Regions[0].Blocks[0]
	for _, o := range body.Ops {
		assert.NotEqual(t, ir.KStore, o.Kind, "the explicit increment store must not survive into the for's body")
	}

	mod := ir.NewModule("test")
	mod.AddFunction(fn)
	errs := ir.Verify(mod, false)
	assert.Empty(t, errs)
}

func TestRaiseToForLeavesUnboundedWhileAlone(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)

	flagSlot := bld.Create(ir.KAlloca, ir.I32, nil, []ir.Attr{ir.SizeAttr(4), ir.NameAttr("done")})
	zero := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{flagSlot, zero}, nil)

	whileOp := bld.Create(ir.KWhile, ir.Unit, nil, nil)
	condRegion := bld.CreateRegion(whileOp)
	condBlk := ir.NewBlock("cond")
	condRegion.Append(condBlk)
	s1 := bld.EnterScope()
	bld.SetInsertionPoint(condBlk)
	bld.Create(ir.KLoad, ir.I32, []*ir.Op{flagSlot}, nil)
	s1.Exit()
	bodyRegion := bld.CreateRegion(whileOp)
	bodyRegion.Append(ir.NewBlock("body"))

	raiseToFor(fn)

	var sawWhile bool
	for _, o := range entry.Ops {
		if o.Kind == ir.KWhile {
			sawWhile = true
		}
	}
	assert.True(t, sawWhile, "a while with no iv-increment-vs-bound shape must be left alone")
}
