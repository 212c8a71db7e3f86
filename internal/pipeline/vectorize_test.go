package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

// buildMemsetLoop builds `for (i=0;i<n;i++) arr[i] = 0;` in the
// pre-rotation counted-loop shape, with arr and n standing in for
// function parameters the way the rest of this package's loop tests do
// (an opaque KCall, since these hand-built ASTs never run a real
// argument-passing convention).
func buildMemsetLoop(t *testing.T) (fn *ir.Function, entry, cond, body, exit *ir.BasicBlock, iv *ir.Op) {
	t.Helper()
	fn = ir.NewFunction("memset", []ir.Type{ir.I64, ir.I32}, ir.Unit)
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
	arr := bld.Create(ir.KCall, ir.I64, nil, []ir.Attr{ir.NameAttr("getarg0")})
	n := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg1")})
	zero := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	zeroVal := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(cond)})
	entry.AddSucc(cond)

	bld.SetInsertionPoint(cond)
	iv = bld.Create(ir.KPhi, ir.I32, []*ir.Op{zero, nil}, []ir.Attr{ir.FromAttr(entry), ir.FromAttr(body)})
	c := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv, n}, []ir.Attr{ir.NameAttr("lt")})
	bld.Create(ir.KBranch, ir.Unit, []*ir.Op{c}, []ir.Attr{ir.TargetAttr(body), ir.ElseAttr(exit)})
	cond.AddSucc(body)
	cond.AddSucc(exit)

	bld.SetInsertionPoint(body)
	addr := bld.Create(ir.KGetElement, ir.I64, []*ir.Op{arr, iv}, nil)
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{addr, zeroVal}, nil)
	one := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	ivNext := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{iv, one}, []ir.Attr{ir.NameAttr("add")})
	iv.ReplaceOperand(1, ivNext)
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(cond)})
	body.AddSucc(cond)

	bld.SetInsertionPoint(exit)
	bld.Create(ir.KRet, ir.Unit, nil, nil)

	return fn, entry, cond, body, exit, iv
}

func TestVectorizeWidensMemsetLoopAndBuildsEpilogue(t *testing.T) {
	fn, _, cond, body, exit, iv := buildMemsetLoop(t)

	fn.ComputeDominance()
	loopRotate(fn)
	vectorize(fn)

	stores := 0
	var incOp *ir.Op
	for _, o := range body.Ops {
		if o.Kind == ir.KStore {
			stores++
		}
		if o.Kind == ir.KBinOp {
			if name, ok := o.Attr(ir.AttrNameAttr); ok && name.Str() == "add" {
				for _, operand := range o.Operands {
					if operand == iv {
						incOp = o
					}
				}
			}
		}
	}
	assert.Equal(t, 4, stores, "the main loop must store four elements per iteration")
	require.NotNil(t, incOp, "induction increment must still be an add over iv")
	stepConst := incOp.Operands[1]
	if stepConst == iv {
		stepConst = incOp.Operands[0]
	}
	v, ok := stepConst.Attr(ir.AttrInt)
	require.True(t, ok)
	assert.Equal(t, int64(4), v.Int(), "the induction variable must now step by the vector width")

	require.Len(t, exit.Ops, 1, "the original exit must be untouched by the epilogue splice")
	assert.Equal(t, ir.KRet, exit.Ops[0].Kind)

	foundEpi := false
	for _, b := range fn.Region.Blocks {
		if b.Label == cond.Label+".epi" {
			foundEpi = true
		}
	}
	assert.True(t, foundEpi, "a scalar epilogue header block must be spliced in")
}
