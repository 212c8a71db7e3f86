package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

// buildDeadCountingLoop builds `for(i=0;i<10;i++) { t = i+1; } return 0;`
// where t is computed but never stored or returned — a pure loop with no
// observable effect, in the pre-rotation counted-loop shape.
func buildDeadCountingLoop(t *testing.T) (fn *ir.Function, entry, cond, body, exit *ir.BasicBlock) {
	t.Helper()
	fn = ir.NewFunction("f", nil, ir.I32)
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
	zero := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	ten := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(10)})
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(cond)})
	entry.AddSucc(cond)

	bld.SetInsertionPoint(cond)
	iv := bld.Create(ir.KPhi, ir.I32, []*ir.Op{zero, nil}, []ir.Attr{ir.FromAttr(entry), ir.FromAttr(body)})
	c := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv, ten}, []ir.Attr{ir.NameAttr("lt")})
	bld.Create(ir.KBranch, ir.Unit, []*ir.Op{c}, []ir.Attr{ir.TargetAttr(body), ir.ElseAttr(exit)})
	cond.AddSucc(body)
	cond.AddSucc(exit)

	bld.SetInsertionPoint(body)
	one := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv, one}, []ir.Attr{ir.NameAttr("add")}) // dead: result unused
	ivNext := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv, one}, []ir.Attr{ir.NameAttr("add")})
	iv.ReplaceOperand(1, ivNext)
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(cond)})
	body.AddSucc(cond)

	bld.SetInsertionPoint(exit)
	retZero := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KRet, ir.Unit, []*ir.Op{retZero}, nil)

	return fn, entry, cond, body, exit
}

func TestLoopDCERemovesPureLoopWithNoEscapingValue(t *testing.T) {
	fn, entry, _, _, exit := buildDeadCountingLoop(t)

	fn.ComputeDominance()
	loopRotate(fn)
	loopDCE(fn)

	assert.Equal(t, []*ir.BasicBlock{exit}, entry.Succs, "the dead loop's header/body/latch must be bypassed entirely")

	found := map[*ir.BasicBlock]bool{}
	for _, b := range fn.Region.Blocks {
		found[b] = true
	}
	assert.True(t, found[entry])
	assert.True(t, found[exit])
	assert.Len(t, fn.Region.Blocks, 2, "only entry and exit should remain once the loop is deleted")
}

// buildSideEffectLoop builds a loop that stores through a pointer each
// iteration, which LoopDCE must leave untouched even though the stored
// value never escapes the function.
func buildSideEffectLoop(t *testing.T) (fn *ir.Function, entry, cond, body, exit *ir.BasicBlock) {
	t.Helper()
	fn = ir.NewFunction("f", []ir.Type{ir.I64}, ir.I32)
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
	ptr := bld.Create(ir.KCall, ir.I64, nil, []ir.Attr{ir.NameAttr("getarg0")})
	zero := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	ten := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(10)})
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(cond)})
	entry.AddSucc(cond)

	bld.SetInsertionPoint(cond)
	iv := bld.Create(ir.KPhi, ir.I32, []*ir.Op{zero, nil}, []ir.Attr{ir.FromAttr(entry), ir.FromAttr(body)})
	c := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv, ten}, []ir.Attr{ir.NameAttr("lt")})
	bld.Create(ir.KBranch, ir.Unit, []*ir.Op{c}, []ir.Attr{ir.TargetAttr(body), ir.ElseAttr(exit)})
	cond.AddSucc(body)
	cond.AddSucc(exit)

	bld.SetInsertionPoint(body)
	addr := bld.Create(ir.KGetElement, ir.I64, []*ir.Op{ptr, iv}, nil)
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{addr, iv}, nil)
	one := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	ivNext := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv, one}, []ir.Attr{ir.NameAttr("add")})
	iv.ReplaceOperand(1, ivNext)
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(cond)})
	body.AddSucc(cond)

	bld.SetInsertionPoint(exit)
	retZero := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KRet, ir.Unit, []*ir.Op{retZero}, nil)

	return fn, entry, cond, body, exit
}

func TestLoopDCELeavesLoopWithStoreAlone(t *testing.T) {
	fn, entry, _, body, _ := buildSideEffectLoop(t)

	fn.ComputeDominance()
	loopRotate(fn)
	loopDCE(fn)

	require.NotEqual(t, 0, len(body.Ops), "a loop touching memory must survive LoopDCE")
	assert.NotContains(t, entry.Succs, entry, "sanity: entry is not its own successor")
	hasStore := false
	for _, o := range body.Ops {
		if o.Kind == ir.KStore {
			hasStore = true
		}
	}
	assert.True(t, hasStore, "the store-bearing loop body must still be present after LoopDCE")
}
