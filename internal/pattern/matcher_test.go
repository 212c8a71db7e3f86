package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

func binBuild(bld *ir.Builder, head string, operands []*ir.Op) *ir.Op {
	switch head {
	case "add", "sub", "mul":
		return bld.Create(ir.KBinOp, ir.I32, operands, []ir.Attr{ir.NameAttr(head)})
	}
	return nil
}

func newFn() (*ir.Function, *ir.BasicBlock, *ir.Builder) {
	fn := ir.NewFunction("f", nil, ir.I32)
	b := ir.NewBlock("entry")
	fn.Region.Append(b)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(b)
	return fn, b, bld
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule(`(change (add 'a 'b) (!+ 'a 'b))`)
	require.NoError(t, err)
	assert.Equal(t, "add", r.Match.List.Head)
	assert.Equal(t, "+", r.Rewrite.List.Head)
	assert.Equal(t, "!", r.Rewrite.List.Sigil)
}

func TestConstantFoldAdd(t *testing.T) {
	fn, b, bld := newFn()
	c1 := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(2)})
	c2 := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(3)})
	add := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{c1, c2}, []ir.Attr{ir.NameAttr("add")})
	bld.Create(ir.KRet, ir.Unit, []*ir.Op{add}, nil)

	m := NewMatcher(nil, binBuild)
	require.NoError(t, m.AddRule(`(change (add 'a 'b) (!+ 'a 'b))`))
	n := m.RunToFixedPoint(fn)
	assert.Equal(t, 1, n)

	ret := b.Ops[len(b.Ops)-1]
	folded := ret.Operands[0]
	assert.Equal(t, ir.KConst, folded.Kind)
	v, ok := folded.Attr(ir.AttrInt)
	require.True(t, ok)
	assert.EqualValues(t, 5, v.Int())
}

func TestIdenticalNamesMustMatchSameOp(t *testing.T) {
	_, _, bld := newFn()
	c1 := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	c2 := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(2)})
	sub := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{c1, c2}, []ir.Attr{ir.NameAttr("sub")})

	// `(sub x x)` should only match when both operands are the same Op.
	node, err := ParseNode(`(sub x x)`)
	require.NoError(t, err)
	m := NewMatcher(nil, binBuild)
	env := NewEnv()
	assert.False(t, m.Match(node, sub, env))

	same := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{c1, c1}, []ir.Attr{ir.NameAttr("sub")})
	env2 := NewEnv()
	assert.True(t, m.Match(node, same, env2))
}

func TestOnlyIfGuard(t *testing.T) {
	_, _, bld := newFn()
	c7 := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(7)})
	c2 := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(2)})
	mul := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{c7, c2}, []ir.Attr{ir.NameAttr("mul")})

	node, err := ParseNode(`(mul 'a 'b (!gt 'a 'b))`)
	require.NoError(t, err)
	m := NewMatcher(nil, binBuild)
	env := NewEnv()
	assert.True(t, m.Match(node, mul, env))

	failNode, err := ParseNode(`(mul 'a 'b (!lt 'a 'b))`)
	require.NoError(t, err)
	env2 := NewEnv()
	assert.False(t, m.Match(failNode, mul, env2))
}
