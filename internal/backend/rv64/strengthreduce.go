package rv64

import "sysyc/internal/ir"

// StrengthReduce mirrors arm64's pass: Granlund-Montgomery constant
// division/modulus, and popcount<=2 / 2^n+-1 constant multiplication
// rewritten to shifts and adds.
func StrengthReduce(f *ir.Function) {
	for _, b := range f.Blocks() {
		for _, o := range append([]*ir.Op(nil), b.Ops...) {
			switch o.Kind {
			case ir.RDiv:
				tryReduceDiv(f, o)
			case ir.RMul:
				tryReduceMul(f, o)
			}
		}
	}
}

func constOperand(o *ir.Op) (variable *ir.Op, c int64, ok bool) {
	if len(o.Operands) != 2 {
		return nil, 0, false
	}
	l, r := o.Operands[0], o.Operands[1]
	if r.Kind == ir.RLi {
		if v, has := r.Attr(ir.AttrInt); has {
			return l, v.Int(), true
		}
	}
	if l.Kind == ir.RLi {
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
			zero := bld.Create(ir.RLi, o.ResultTy, nil, []ir.Attr{ir.IntAttr(0)})
			res = bld.Create(ir.RSub, o.ResultTy, []*ir.Op{zero, x}, nil)
		}
		o.ReplaceAllUsesWith(res)
		ir.Erase(o)
		return
	}
	magic, shift := magicSigned32(int32(d))

	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)
	magicOp := bld.Create(ir.RLi, ir.I64, nil, []ir.Attr{ir.IntAttr(int64(magic))})
	mulh := bld.Create(ir.RMulh, o.ResultTy, []*ir.Op{x, magicOp}, nil)

	q := mulh
	if shift > 0 {
		q = bld.Create(ir.RSrai, o.ResultTy, []*ir.Op{q}, []ir.Attr{ir.IntAttr(int64(shift))})
	}
	signBit := bld.Create(ir.RSrli, o.ResultTy, []*ir.Op{q}, []ir.Attr{ir.IntAttr(31)})
	fixed := bld.Create(ir.RAdd, o.ResultTy, []*ir.Op{q, signBit}, nil)

	o.ReplaceAllUsesWith(fixed)
	ir.Erase(o)
}

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

func tryReduceMul(f *ir.Function, o *ir.Op) {
	x, c, ok := constOperand(o)
	if !ok || c <= 0 {
		return
	}
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)

	if n, isPow2 := log2Exact(c); isPow2 {
		shl := bld.Create(ir.RSlli, o.ResultTy, []*ir.Op{x}, []ir.Attr{ir.IntAttr(int64(n))})
		o.ReplaceAllUsesWith(shl)
		ir.Erase(o)
		return
	}
	if n, isPow2 := log2Exact(c - 1); isPow2 {
		shl := bld.Create(ir.RSlli, o.ResultTy, []*ir.Op{x}, []ir.Attr{ir.IntAttr(int64(n))})
		add := bld.Create(ir.RAdd, o.ResultTy, []*ir.Op{shl, x}, nil)
		o.ReplaceAllUsesWith(add)
		ir.Erase(o)
		return
	}
	if n, isPow2 := log2Exact(c + 1); isPow2 {
		shl := bld.Create(ir.RSlli, o.ResultTy, []*ir.Op{x}, []ir.Attr{ir.IntAttr(int64(n))})
		sub := bld.Create(ir.RSub, o.ResultTy, []*ir.Op{shl, x}, nil)
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
			term := bld.Create(ir.RSlli, o.ResultTy, []*ir.Op{x}, []ir.Attr{ir.IntAttr(int64(bit))})
			if sum == nil {
				sum = term
			} else {
				sum = bld.Create(ir.RAdd, o.ResultTy, []*ir.Op{sum, term}, nil)
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
