package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

func TestGVNDedupesIdenticalBinOp(t *testing.T) {
	fn := ir.NewFunction("f", []ir.Type{ir.I32, ir.I32}, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)

	a := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg")})
	b := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg")})
	add1 := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{a, b}, []ir.Attr{ir.NameAttr("add")})
	add2 := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{a, b}, []ir.Attr{ir.NameAttr("add")})
	bld.Create(ir.KRet, ir.Unit, []*ir.Op{add1, add2}, nil)

	gvn(fn)

	ret := entry.Ops[len(entry.Ops)-1]
	assert.Equal(t, ret.Operands[0], ret.Operands[1], "both operands must resolve to the same representative add")
}

func TestGVNCanonicalizesCommutativeOperandOrder(t *testing.T) {
	fn := ir.NewFunction("f", []ir.Type{ir.I32, ir.I32}, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)

	a := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg")})
	b := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg")})
	add1 := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{a, b}, []ir.Attr{ir.NameAttr("add")})
	add2 := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{b, a}, []ir.Attr{ir.NameAttr("add")})
	bld.Create(ir.KRet, ir.Unit, []*ir.Op{add1, add2}, nil)

	gvn(fn)

	ret := entry.Ops[len(entry.Ops)-1]
	assert.Equal(t, ret.Operands[0], ret.Operands[1], "a+b and b+a must be numbered congruent")
}

func TestGVNStoreBreaksNumberingScope(t *testing.T) {
	fn := ir.NewFunction("f", []ir.Type{ir.I32, ir.I32}, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)

	a := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg")})
	b := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg")})
	slot := bld.Create(ir.KAlloca, ir.I32, nil, []ir.Attr{ir.SizeAttr(4), ir.NameAttr("x")})
	add1 := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{a, b}, []ir.Attr{ir.NameAttr("add")})
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{slot, add1}, nil)
	add2 := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{a, b}, []ir.Attr{ir.NameAttr("add")})
	bld.Create(ir.KRet, ir.Unit, []*ir.Op{add1, add2}, nil)

	gvn(fn)

	ret := entry.Ops[len(entry.Ops)-1]
	assert.NotEqual(t, ret.Operands[0], ret.Operands[1], "a store must invalidate prior congruences")
}

// buildRedundantPhiDiamond constructs a diamond where both arms feed the
// exact same Op into the join's phi.
func buildRedundantPhiDiamond() (*ir.Function, *ir.Op, *ir.Op) {
	fn := ir.NewFunction("f", []ir.Type{ir.I32}, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	thenB := ir.NewBlock("then")
	fn.Region.Append(thenB)
	elseB := ir.NewBlock("else")
	fn.Region.Append(elseB)
	join := ir.NewBlock("join")
	fn.Region.Append(join)

	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	shared := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg")})
	cond := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	bld.Create(ir.KBranch, ir.Unit, []*ir.Op{cond}, []ir.Attr{ir.TargetAttr(thenB), ir.ElseAttr(elseB)})
	entry.AddSucc(thenB)
	entry.AddSucc(elseB)

	bld.SetInsertionPoint(thenB)
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(join)})
	thenB.AddSucc(join)

	bld.SetInsertionPoint(elseB)
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(join)})
	elseB.AddSucc(join)

	bld.SetInsertionPoint(join)
	phi := bld.Create(ir.KPhi, ir.I32, []*ir.Op{shared, shared}, []ir.Attr{ir.FromAttr(thenB), ir.FromAttr(elseB)})
	bld.Create(ir.KRet, ir.Unit, []*ir.Op{phi}, nil)

	return fn, shared, phi
}

func TestGVNDiscardsPhiWithAllOperandsCongruent(t *testing.T) {
	fn, shared, phi := buildRedundantPhiDiamond()
	gvn(fn)

	var join *ir.BasicBlock
	for _, b := range fn.Region.Blocks {
		if b.Label == "join" {
			join = b
		}
	}
	require.NotNil(t, join)
	for _, o := range join.Ops {
		assert.NotEqual(t, phi, o, "the redundant phi must be erased")
	}
	ret := join.Ops[len(join.Ops)-1]
	require.Equal(t, ir.KRet, ret.Kind)
	assert.Equal(t, shared, ret.Operands[0])
}
