package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

// buildCountedLoop builds the canonical top-tested counted loop:
//
//	entry: bound = getarg; zero = 0; goto cond
//	cond:  iv = phi [entry: zero, body: ivNext]; c = lt(iv, bound);
//	       branch c, body, exit
//	body:  ivNext = iv + 1; goto cond
//	exit:  ret iv
func buildCountedLoop(t *testing.T) (fn *ir.Function, entry, cond, body, exit *ir.BasicBlock, iv *ir.Op) {
	t.Helper()
	fn = ir.NewFunction("f", []ir.Type{ir.I32}, ir.I32)
	entry = ir.NewBlock("entry")
	fn.Region.Append(entry)
	cond = ir.NewBlock("cond")
	fn.Region.Append(cond)
	body = ir.NewBlock("body")
	fn.Region.Append(body)
	exit = ir.NewBlock("exit")
	fn.Region.Append(exit)

	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	bound := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg")})
	zero := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(cond)})
	entry.AddSucc(cond)

	bld.SetInsertionPoint(cond)
	iv = bld.Create(ir.KPhi, ir.I32, []*ir.Op{zero, nil}, []ir.Attr{ir.FromAttr(entry), ir.FromAttr(body)})
	c := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv, bound}, []ir.Attr{ir.NameAttr("lt")})
	bld.Create(ir.KBranch, ir.Unit, []*ir.Op{c}, []ir.Attr{ir.TargetAttr(body), ir.ElseAttr(exit)})
	cond.AddSucc(body)
	cond.AddSucc(exit)

	bld.SetInsertionPoint(body)
	one := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	ivNext := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv, one}, []ir.Attr{ir.NameAttr("add")})
	iv.ReplaceOperand(1, ivNext)
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(cond)})
	body.AddSucc(cond)

	bld.SetInsertionPoint(exit)
	bld.Create(ir.KRet, ir.Unit, []*ir.Op{iv}, nil)

	return fn, entry, cond, body, exit, iv
}

func TestLoopRotateMovesConditionToLatchAndAddsExitPhi(t *testing.T) {
	fn, entry, cond, body, exit, iv := buildCountedLoop(t)

	loopRotate(fn)

	condTerm := cond.Terminator()
	require.NotNil(t, condTerm)
	assert.Equal(t, ir.KGoto, condTerm.Kind, "header must become an unconditional fall-through into the body")

	entryTerm := entry.Terminator()
	require.NotNil(t, entryTerm)
	assert.Equal(t, ir.KBranch, entryTerm.Kind, "preheader must gain the zero-trip branch")

	bodyTerm := body.Terminator()
	require.NotNil(t, bodyTerm)
	assert.Equal(t, ir.KBranch, bodyTerm.Kind, "latch must gain the continuation branch")

	require.Len(t, exit.Ops, 2, "exit should now hold a merge phi plus the original ret")
	assert.Equal(t, ir.KPhi, exit.Ops[0].Kind)
	assert.Equal(t, ir.KRet, exit.Ops[1].Kind)
	assert.Equal(t, exit.Ops[0], exit.Ops[1].Operands[0], "ret must read the new merge phi, not the header phi directly")
	assert.NotEqual(t, iv, exit.Ops[1].Operands[0])
}

func TestLoopRotateSkipsMultiplePredecessorLoops(t *testing.T) {
	fn, _, cond, _, _, _ := buildCountedLoop(t)

	// Give cond a third predecessor beyond its one external entry and its
	// one latch — LoopRotate requires exactly two and must bail here.
	extra := ir.NewBlock("extra")
	fn.Region.Append(extra)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(extra)
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(cond)})
	extra.AddSucc(cond)

	condTermBefore := cond.Terminator()
	loopRotate(fn)
	assert.Equal(t, condTermBefore, cond.Terminator(), "loop with more than two header predecessors must be left unrotated")
}
