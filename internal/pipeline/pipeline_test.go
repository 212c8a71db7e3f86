package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

func TestNewRejectsUnknownPassName(t *testing.T) {
	_, err := New(Config{Order: []string{"NoSuchPass"}})
	assert.Error(t, err)
}

func TestRunAppliesEnabledPassesAndVerifies(t *testing.T) {
	cfg := Config{Order: []string{"EarlyConstFold", "DCE"}}
	p, err := New(cfg)
	require.NoError(t, err)
	require.Len(t, p.passes, 2)

	fn := ir.NewFunction("f", nil, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	c1 := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(2)})
	c2 := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(3)})
	add := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{c1, c2}, []ir.Attr{ir.NameAttr("add")})
	bld.Create(ir.KReturn, ir.Unit, []*ir.Op{add}, nil)

	mod := ir.NewModule("test")
	mod.AddFunction(fn)

	var traced []string
	cfg.Trace = func(name, dump string) { traced = append(traced, name) }
	p.Config = cfg

	p.Run(mod)

	require.Len(t, entry.Ops, 2, "constant folding then DCE should leave only the folded constant and its return")
	ret := entry.Ops[len(entry.Ops)-1]
	assert.Equal(t, ir.KReturn, ret.Kind)
	assert.Equal(t, ir.KConst, ret.Operands[0].Kind)
	assert.Equal(t, []string{"EarlyConstFold", "DCE"}, traced)
}

func TestDisabledSkipsPass(t *testing.T) {
	p, err := New(Config{Order: []string{"EarlyConstFold", "DCE"}, Disabled: []string{"DCE"}})
	require.NoError(t, err)
	assert.Len(t, p.passes, 1)
	assert.Equal(t, "EarlyConstFold", p.passes[0].Name)
}

// every name in DefaultOrder must resolve against allPasses(); this
// catches a pass file existing without a matching allPasses() entry.
func TestDefaultConfigResolvesEveryDefaultOrderPass(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)
	require.Len(t, p.passes, len(DefaultOrder))
	for i, name := range DefaultOrder {
		assert.Equal(t, name, p.passes[i].Name)
	}
}

func TestDefaultConfigRunsEndToEndOnSquare(t *testing.T) {
	fn := ir.NewFunction("square", []ir.Type{ir.I32}, ir.I32)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	argSlot := bld.Create(ir.KAlloca, ir.I32, nil, []ir.Attr{ir.NameAttr("x")})
	arg := bld.Create(ir.KCall, ir.I32, nil, []ir.Attr{ir.NameAttr("getarg0")})
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{argSlot, arg}, nil)
	x := bld.Create(ir.KLoad, ir.I32, []*ir.Op{argSlot}, nil)
	sq := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{x, x}, []ir.Attr{ir.NameAttr("mul")})
	bld.Create(ir.KReturn, ir.Unit, []*ir.Op{sq}, nil)

	mod := ir.NewModule("test")
	mod.AddFunction(fn)

	p, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NotPanics(t, func() { p.Run(mod) })

	assert.Empty(t, ir.Verify(mod, true))
}
