package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDiamond builds:
//
//	entry -> left, right
//	left -> join
//	right -> join
//	join (phi) -> ret
func buildDiamond(t *testing.T) (*Function, *Op) {
	fn := NewFunction("diamond", []Type{I32}, I32)
	entry := NewBlock("entry")
	left := NewBlock("left")
	right := NewBlock("right")
	join := NewBlock("join")
	fn.Region.Append(entry)
	fn.Region.Append(left)
	fn.Region.Append(right)
	fn.Region.Append(join)

	bld := NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	arg := bld.Create(AGetArg, I32, nil, []Attr{IntAttr(0)})
	cond := bld.Create(KBinOp, I32, []*Op{arg, arg}, []Attr{NameAttr("eq")})
	bld.Create(KBranch, Unit, []*Op{cond}, []Attr{TargetAttr(left), ElseAttr(right)})
	entry.AddSucc(left)
	entry.AddSucc(right)

	bld.SetInsertionPoint(left)
	one := bld.Create(KConst, I32, nil, []Attr{IntAttr(1)})
	bld.Create(KGoto, Unit, nil, []Attr{TargetAttr(join)})
	left.AddSucc(join)

	bld.SetInsertionPoint(right)
	two := bld.Create(KConst, I32, nil, []Attr{IntAttr(2)})
	bld.Create(KGoto, Unit, nil, []Attr{TargetAttr(join)})
	right.AddSucc(join)

	bld.SetInsertionPoint(join)
	phi := bld.Create(KPhi, I32, []*Op{one, two}, []Attr{FromAttr(left), FromAttr(right)})
	bld.Create(KRet, Unit, []*Op{phi}, nil)

	return fn, phi
}

func TestBuilderInsertionAndUseDef(t *testing.T) {
	fn, phi := buildDiamond(t)
	require.NotNil(t, phi)

	join := fn.Blocks()[3]
	assert.Equal(t, 2, len(join.Ops))

	one := phi.Operands[0]
	assert.Contains(t, one.Uses(), phi)
}

func TestReplaceAllUsesWith(t *testing.T) {
	fn := NewFunction("f", nil, I32)
	b := NewBlock("entry")
	fn.Region.Append(b)
	bld := NewBuilder(fn)
	bld.SetInsertionPoint(b)

	c1 := bld.Create(KConst, I32, nil, []Attr{IntAttr(1)})
	c2 := bld.Create(KConst, I32, nil, []Attr{IntAttr(2)})
	add := bld.Create(KBinOp, I32, []*Op{c1, c2}, []Attr{NameAttr("add")})
	bld.Create(KRet, Unit, []*Op{add}, nil)

	replacement := bld.Create(KConst, I32, nil, []Attr{IntAttr(3)})
	add.ReplaceAllUsesWith(replacement)
	assert.Empty(t, add.Uses())
	ret := b.Ops[len(b.Ops)-2] // replacement was created after the ret
	assert.Equal(t, replacement, ret.Operands[0])
}

func TestEraseRequiresNoUses(t *testing.T) {
	fn := NewFunction("f", nil, I32)
	b := NewBlock("entry")
	fn.Region.Append(b)
	bld := NewBuilder(fn)
	bld.SetInsertionPoint(b)
	c1 := bld.Create(KConst, I32, nil, []Attr{IntAttr(1)})
	bld.Create(KRet, Unit, []*Op{c1}, nil)

	assert.Panics(t, func() { Erase(c1) })

	ret := b.Ops[len(b.Ops)-1]
	Erase(ret)
	assert.Empty(t, c1.Uses())
	Erase(c1)
	assert.Empty(t, b.Ops)
}

func TestBuilderReplace(t *testing.T) {
	fn := NewFunction("f", nil, I32)
	b := NewBlock("entry")
	fn.Region.Append(b)
	bld := NewBuilder(fn)
	bld.SetInsertionPoint(b)
	c1 := bld.Create(KConst, I32, nil, []Attr{IntAttr(1)})
	c2 := bld.Create(KConst, I32, nil, []Attr{IntAttr(2)})
	add := bld.Create(KBinOp, I32, []*Op{c1, c2}, []Attr{NameAttr("add")})
	bld.Create(KRet, Unit, []*Op{add}, nil)

	folded := bld.Replace(add, KConst, I32, nil, []Attr{IntAttr(3)})
	ret := b.Ops[len(b.Ops)-1]
	assert.Equal(t, folded, ret.Operands[0])
	assert.NotContains(t, b.Ops, add)
}
