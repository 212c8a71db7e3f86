package arm64

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

func TestMagicSigned32MatchesKnownDivideBySeven(t *testing.T) {
	magic, shift := magicSigned32(7)
	assert.Equal(t, int32(-1840700269), magic, "magic multiplier for division by 7")
	assert.Equal(t, 2, shift)
}

func TestLowerMaterializesIntArgIntoFirstRegister(t *testing.T) {
	fn := ir.NewFunction("f", []ir.Type{ir.I32}, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	// Mem2Reg's synthetic zero placeholder for the one promoted parameter.
	placeholder := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	ret := bld.Create(ir.KRet, ir.Unit, []*ir.Op{placeholder}, nil)
	_ = ret

	Lower(fn)

	found := false
	for _, o := range entry.Ops {
		if o.Kind == ir.AGetArg {
			r, ok := o.Attr(ir.AttrReg)
			require.True(t, ok)
			assert.Equal(t, "x0", r.Str())
			found = true
		}
	}
	assert.True(t, found, "Lower must materialize the sole int parameter into x0")
}

func TestStrengthReduceRewritesConstDivBySevenWithoutSdiv(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	x := bld.Create(ir.AMovz, ir.I32, nil, []ir.Attr{ir.IntAttr(100)})
	seven := bld.Create(ir.AMovz, ir.I32, nil, []ir.Attr{ir.IntAttr(7)})
	div := bld.Create(ir.ASdiv, ir.I32, []*ir.Op{x, seven}, nil)
	bld.Create(ir.ARet, ir.Unit, []*ir.Op{div}, nil)

	StrengthReduce(fn)

	for _, o := range entry.Ops {
		assert.NotEqual(t, ir.ASdiv, o.Kind, "constant division by 7 must not lower to a hardware sdiv")
	}
	var kinds []ir.Kind
	for _, o := range entry.Ops {
		kinds = append(kinds, o.Kind)
	}
	assert.Contains(t, kinds, ir.ASmulh)
	assert.Contains(t, kinds, ir.AAsr)
	assert.Contains(t, kinds, ir.AAddWL)
}

func TestStrengthReduceRewritesMulByPowerOfTwoToShift(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	x := bld.Create(ir.AMovz, ir.I32, nil, []ir.Attr{ir.IntAttr(3)})
	eight := bld.Create(ir.AMovz, ir.I32, nil, []ir.Attr{ir.IntAttr(8)})
	mul := bld.Create(ir.AMul, ir.I32, []*ir.Op{x, eight}, nil)
	bld.Create(ir.ARet, ir.Unit, []*ir.Op{mul}, nil)

	StrengthReduce(fn)

	found := false
	for _, o := range entry.Ops {
		if o.Kind == ir.ALsl {
			n, _ := o.Attr(ir.AttrInt)
			assert.Equal(t, int64(3), n.Int())
			found = true
		}
	}
	assert.True(t, found, "multiply by 8 must become a shift by 3")
}

func TestInstCombineFusesAddShiftIntoAddWL(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	x := bld.Create(ir.AMovz, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	y := bld.Create(ir.AMovz, ir.I32, nil, []ir.Attr{ir.IntAttr(2)})
	shifted := bld.Create(ir.ALsl, ir.I32, []*ir.Op{y}, []ir.Attr{ir.IntAttr(2)})
	add := bld.Create(ir.AAdd, ir.I32, []*ir.Op{x, shifted}, nil)
	bld.Create(ir.ARet, ir.Unit, []*ir.Op{add}, nil)

	InstCombine(fn)

	var kinds []ir.Kind
	for _, o := range entry.Ops {
		kinds = append(kinds, o.Kind)
	}
	assert.Contains(t, kinds, ir.AAddWL)
	assert.NotContains(t, kinds, ir.AAdd)
	assert.NotContains(t, kinds, ir.ALsl)
}

func TestInstCombineFusesMulAddIntoMadd(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	a := bld.Create(ir.AMovz, ir.I32, nil, []ir.Attr{ir.IntAttr(2)})
	bb := bld.Create(ir.AMovz, ir.I32, nil, []ir.Attr{ir.IntAttr(3)})
	c := bld.Create(ir.AMovz, ir.I32, nil, []ir.Attr{ir.IntAttr(4)})
	mul := bld.Create(ir.AMul, ir.I32, []*ir.Op{a, bb}, nil)
	add := bld.Create(ir.AAdd, ir.I32, []*ir.Op{mul, c}, nil)
	bld.Create(ir.ARet, ir.Unit, []*ir.Op{add}, nil)

	InstCombine(fn)

	var kinds []ir.Kind
	for _, o := range entry.Ops {
		kinds = append(kinds, o.Kind)
	}
	assert.Contains(t, kinds, ir.AMadd)
	assert.NotContains(t, kinds, ir.AMul)
}

func TestDCERemovesDeadOpButKeepsStore(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.Unit)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	dead := bld.Create(ir.AMovz, ir.I32, nil, []ir.Attr{ir.IntAttr(9)})
	_ = dead
	addr := bld.Create(ir.AAddImm, ir.I64, nil, []ir.Attr{ir.StackOffsetAttr(0)})
	val := bld.Create(ir.AMovz, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	bld.Create(ir.AStr, ir.Unit, []*ir.Op{val, addr}, nil)
	bld.Create(ir.ARet, ir.Unit, nil, nil)

	DCE(fn)

	var kinds []ir.Kind
	for _, o := range entry.Ops {
		kinds = append(kinds, o.Kind)
		assert.NotSame(t, dead, o, "the unused movz must be removed")
	}
	assert.Contains(t, kinds, ir.AStr, "a store is never dead-code eliminated")
	assert.Contains(t, kinds, ir.ARet)
}

func TestLateLegalizeSplitsWideConstantIntoMovzMovk(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	wide := bld.Create(ir.AMovz, ir.I32, nil, []ir.Attr{ir.IntAttr(0x12345678)})
	bld.Create(ir.ARet, ir.Unit, []*ir.Op{wide}, nil)

	LateLegalize(fn)

	var kinds []ir.Kind
	for _, o := range entry.Ops {
		kinds = append(kinds, o.Kind)
	}
	assert.Contains(t, kinds, ir.AMovz)
	assert.Contains(t, kinds, ir.AMovk)
}
