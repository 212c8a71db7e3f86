package arm64

import "sysyc/internal/ir"

// LateLegalize is the final legality pass: AArch64 encodes only
// a 16-bit immediate per MOVZ/MOVK/MOVN, so any wider constant that
// survived StrengthReduce/InstCombine unfolded must be split into a
// MOVZ+MOVK (or MOVN-based) sequence before Dump.
func LateLegalize(f *ir.Function) {
	for _, b := range f.Blocks() {
		for _, o := range append([]*ir.Op(nil), b.Ops...) {
			if o.Kind == ir.AMovz {
				legalizeMovz(f, o)
			}
		}
	}
}

const wordMask = 0xffff

func legalizeMovz(f *ir.Function, o *ir.Op) {
	v, ok := o.Attr(ir.AttrInt)
	if !ok {
		return
	}
	n := v.Int()
	if n&^wordMask == 0 {
		return // fits in one 16-bit immediate as-is
	}
	// Prefer MOVN (movz of the bitwise complement) when it halves the
	// number of required 16-bit chunks, matching what a real assembler's
	// legalizer picks for small negative constants.
	if ^n&^wordMask == 0 {
		for i, a := range o.Attrs {
			if a.Kind() == ir.AttrInt {
				o.Attrs[i] = ir.IntAttr(^n)
			}
		}
		o.Kind = ir.AMovn
		return
	}

	// Snapshot o's current consumers before chaining MOVK ops onto it: the
	// chain itself will use o as an operand, and that internal use must
	// not be redirected by the rewrite below.
	externalUses := append([]*ir.Op(nil), o.Uses()...)

	bld := ir.NewBuilder(f)
	// The MOVK chain reads o, so it goes right after o.
	for i, x := range o.Block.Ops {
		if x == o {
			if i+1 < len(o.Block.Ops) {
				bld.SetInsertionPointBefore(o.Block.Ops[i+1])
			} else {
				bld.SetInsertionPoint(o.Block)
			}
			break
		}
	}
	low := n & wordMask
	for i, a := range o.Attrs {
		if a.Kind() == ir.AttrInt {
			o.Attrs[i] = ir.IntAttr(low)
		}
	}

	rest := n >> 16
	shift := int64(16)
	cur := o
	for rest != 0 {
		chunk := rest & wordMask
		if chunk != 0 {
			movk := bld.Create(ir.AMovk, o.ResultTy, []*ir.Op{cur}, []ir.Attr{ir.IntAttr(chunk), ir.StepAttr([]int64{shift})})
			cur = movk
		}
		rest >>= 16
		shift += 16
	}
	if cur == o {
		return
	}
	for _, user := range externalUses {
		for i, operand := range user.Operands {
			if operand == o {
				user.ReplaceOperand(i, cur)
			}
		}
	}
}
