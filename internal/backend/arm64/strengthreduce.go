package arm64

import "sysyc/internal/ir"

// StrengthReduce rewrites constant division/modulus via the
// Granlund-Montgomery magic-number construction (Hacker's Delight, ch. 10),
// and constant multiplication by a popcount<=2 or 2^n+-1 constant
// rewritten to a shift/add sequence.
func StrengthReduce(f *ir.Function) {
	for _, b := range f.Blocks() {
		for _, o := range append([]*ir.Op(nil), b.Ops...) {
			switch o.Kind {
			case ir.ASdiv:
				tryReduceDiv(f, o)
			case ir.AMul:
				tryReduceMul(f, o)
			}
		}
	}
}

// constOperand returns the AMovz immediate among o's operands, if any,
// plus the other (variable) operand.
func constOperand(o *ir.Op) (variable *ir.Op, c int64, ok bool) {
	if len(o.Operands) != 2 {
		return nil, 0, false
	}
	l, r := o.Operands[0], o.Operands[1]
	if r.Kind == ir.AMovz {
		if v, has := r.Attr(ir.AttrInt); has {
			return l, v.Int(), true
		}
	}
	if l.Kind == ir.AMovz {
		if v, has := l.Attr(ir.AttrInt); has {
			return r, v.Int(), true
		}
	}
	return nil, 0, false
}

func tryReduceDiv(f *ir.Function, o *ir.Op) {
	x, d, ok := constOperand(o)
	if !ok || d == 0 || x != o.Operands[0] {
		return
	}
	if d == 1 || d == -1 {
		res := x
		if d == -1 {
			bld := ir.NewBuilder(f)
			bld.SetInsertionPointBefore(o)
			zero := bld.Create(ir.AMovz, o.ResultTy, nil, []ir.Attr{ir.IntAttr(0)})
			res = bld.Create(ir.ASub, o.ResultTy, []*ir.Op{zero, x}, nil)
		}
		o.ReplaceAllUsesWith(res)
		ir.Erase(o)
		return
	}
	magic, shift := magicSigned32(int32(d))

	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)
	magicOp := bld.Create(ir.AMovz, ir.I64, nil, []ir.Attr{ir.IntAttr(int64(magic))})
	mulh := bld.Create(ir.ASmulh, o.ResultTy, []*ir.Op{x, magicOp}, nil)

	q := mulh
	if shift > 0 {
		q = bld.Create(ir.AAsr, o.ResultTy, []*ir.Op{q}, []ir.Attr{ir.IntAttr(int64(shift))})
	}
	// Sign-bias correction: q += (q lsr 31) fused into one add+shift op,
	// matching AAddWL's documented role (add+shift fusion).
	fixed := bld.Create(ir.AAddWL, o.ResultTy, []*ir.Op{q, q}, []ir.Attr{ir.IntAttr(31)})

	o.ReplaceAllUsesWith(fixed)
	ir.Erase(o)
}

// magicSigned32 computes the Granlund-Montgomery magic multiplier and
// shift amount for signed 32-bit division by the constant d (d != 0,
// d != +-1, which tryReduceDiv handles before calling this).
func magicSigned32(d int32) (magic int32, shift int) {
	two31 := uint32(1) << 31
	ad := uint32(absInt32(d))
	t := two31 + (uint32(d) >> 31)
	anc := t - 1 - t%ad
	p := uint32(31)
	q1 := two31 / anc
	r1 := two31 - q1*anc
	q2 := two31 / ad
	r2 := two31 - q2*ad
	for {
		p++
		q1 *= 2
		r1 *= 2
		if r1 >= anc {
			q1++
			r1 -= anc
		}
		q2 *= 2
		r2 *= 2
		if r2 >= ad {
			q2++
			r2 -= ad
		}
		delta := ad - r2
		if q1 < delta || (q1 == delta && r1 == 0) {
			continue
		}
		break
	}
	mag := int32(q2 + 1)
	if d < 0 {
		mag = -mag
	}
	return mag, int(p - 32)
}

func absInt32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}

// tryReduceMul rewrites a multiply by a constant of popcount<=2 or of
// the form 2^n+-1 into a shift (plus add/sub for the two-term case),
// leaving InstCombine to fuse the resulting shift+add into AAddWL/AAddXL
// where the fusion's preconditions hold.
func tryReduceMul(f *ir.Function, o *ir.Op) {
	x, c, ok := constOperand(o)
	if !ok || c <= 0 {
		return
	}
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)

	if n, isPow2 := log2Exact(c); isPow2 {
		shl := bld.Create(ir.ALsl, o.ResultTy, []*ir.Op{x}, []ir.Attr{ir.IntAttr(int64(n))})
		o.ReplaceAllUsesWith(shl)
		ir.Erase(o)
		return
	}
	if n, isPow2 := log2Exact(c - 1); isPow2 {
		shl := bld.Create(ir.ALsl, o.ResultTy, []*ir.Op{x}, []ir.Attr{ir.IntAttr(int64(n))})
		add := bld.Create(ir.AAdd, o.ResultTy, []*ir.Op{shl, x}, nil)
		o.ReplaceAllUsesWith(add)
		ir.Erase(o)
		return
	}
	if n, isPow2 := log2Exact(c + 1); isPow2 {
		shl := bld.Create(ir.ALsl, o.ResultTy, []*ir.Op{x}, []ir.Attr{ir.IntAttr(int64(n))})
		sub := bld.Create(ir.ASub, o.ResultTy, []*ir.Op{shl, x}, nil)
		o.ReplaceAllUsesWith(sub)
		ir.Erase(o)
		return
	}
	if popcount64(uint64(c)) <= 2 {
		var sum *ir.Op
		for bit := 0; bit < 63; bit++ {
			if c&(int64(1)<<bit) == 0 {
				continue
			}
			term := bld.Create(ir.ALsl, o.ResultTy, []*ir.Op{x}, []ir.Attr{ir.IntAttr(int64(bit))})
			if sum == nil {
				sum = term
			} else {
				sum = bld.Create(ir.AAdd, o.ResultTy, []*ir.Op{sum, term}, nil)
			}
		}
		o.ReplaceAllUsesWith(sum)
		ir.Erase(o)
	}
}

func log2Exact(c int64) (int, bool) {
	if c <= 0 || c&(c-1) != 0 {
		return 0, false
	}
	n := 0
	for c > 1 {
		c >>= 1
		n++
	}
	return n, true
}

func popcount64(v uint64) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}
