package rv64

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

func TestLowerMaterializesIntArgIntoA0(t *testing.T) {
	fn := ir.NewFunction("f", []ir.Type{ir.I32}, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	placeholder := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KRet, ir.Unit, []*ir.Op{placeholder}, nil)

	Lower(fn)

	found := false
	for _, o := range entry.Ops {
		if o.Kind == ir.RGetArg {
			r, ok := o.Attr(ir.AttrReg)
			require.True(t, ok)
			assert.Equal(t, "a0", r.Str())
			found = true
		}
	}
	assert.True(t, found)
}

func TestLowerBranchUsesCompareAndBranchDirectly(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	left := ir.NewBlock("left")
	right := ir.NewBlock("right")
	fn.Region.Append(entry)
	fn.Region.Append(left)
	fn.Region.Append(right)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	a := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	b := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(2)})
	cond := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{a, b}, []ir.Attr{ir.NameAttr("lt")})
	bld.Create(ir.KBranch, ir.Unit, []*ir.Op{cond}, []ir.Attr{ir.TargetAttr(left), ir.ElseAttr(right)})
	entry.AddSucc(left)
	entry.AddSucc(right)

	Lower(fn)

	term := entry.Ops[len(entry.Ops)-1]
	assert.Equal(t, ir.RBlt, term.Kind, "an lt condition feeding a branch lowers directly to blt")
}

func TestStrengthReduceDivBySevenAvoidsDiv(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	x := bld.Create(ir.RLi, ir.I32, nil, []ir.Attr{ir.IntAttr(100)})
	seven := bld.Create(ir.RLi, ir.I32, nil, []ir.Attr{ir.IntAttr(7)})
	div := bld.Create(ir.RDiv, ir.I32, []*ir.Op{x, seven}, nil)
	bld.Create(ir.RRet, ir.Unit, []*ir.Op{div}, nil)

	StrengthReduce(fn)

	for _, o := range entry.Ops {
		assert.NotEqual(t, ir.RDiv, o.Kind)
	}
}

func TestInstCombineFoldsAddiIntoLoad(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	base := bld.Create(ir.RLi, ir.I64, nil, []ir.Attr{ir.IntAttr(0)})
	addr := bld.Create(ir.RAddi, ir.I64, []*ir.Op{base}, []ir.Attr{ir.StackOffsetAttr(16)})
	load := bld.Create(ir.RLw, ir.I32, []*ir.Op{addr}, nil)
	bld.Create(ir.RRet, ir.Unit, []*ir.Op{load}, nil)

	InstCombine(fn)

	var kinds []ir.Kind
	for _, o := range entry.Ops {
		kinds = append(kinds, o.Kind)
	}
	assert.NotContains(t, kinds, ir.RAddi)
	for _, o := range entry.Ops {
		if o.Kind == ir.RLw {
			off, ok := o.Attr(ir.AttrStackOffset)
			require.True(t, ok)
			assert.Equal(t, int64(16), off.Int())
		}
	}
}

func TestLateLegalizeSplitsOversizedOffset(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	addr := bld.Create(ir.RAddi, ir.I64, nil, []ir.Attr{ir.StackOffsetAttr(5000)})
	bld.Create(ir.RRet, ir.Unit, []*ir.Op{addr}, nil)

	LateLegalize(fn)

	var kinds []ir.Kind
	for _, o := range entry.Ops {
		kinds = append(kinds, o.Kind)
	}
	assert.Contains(t, kinds, ir.RLi)
	for _, o := range entry.Ops {
		if o.Kind == ir.RAddi {
			off, _ := o.Attr(ir.AttrStackOffset)
			assert.Equal(t, int64(0), off.Int())
		}
	}
}
