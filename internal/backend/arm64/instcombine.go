package arm64

import "sysyc/internal/ir"

// InstCombine applies a fixed set of target rewrite rules, run to a fixed
// point: add+shift fusion into AAddWL/AAddXL, cbnz(cset)->bcond fusion,
// and mul+add fusion into AMadd. Constant offsets are not folded into
// loads or stores.
func InstCombine(f *ir.Function) {
	for {
		changed := false
		for _, b := range f.Blocks() {
			for _, o := range append([]*ir.Op(nil), b.Ops...) {
				if combineOne(f, o) {
					changed = true
				}
			}
		}
		if !changed {
			return
		}
	}
}

func combineOne(f *ir.Function, o *ir.Op) bool {
	switch o.Kind {
	case ir.AAdd:
		return fuseAddShift(f, o) || fuseMulAdd(f, o)
	case ir.ACbnz:
		return fuseCbzCset(f, o)
	}
	return false
}

// fuseAddShift rewrites add(x, lsl(y, n)) into a single AAddWL/AAddXL, the
// op that carries a fused shifted-register add.
func fuseAddShift(f *ir.Function, o *ir.Op) bool {
	if len(o.Operands) != 2 {
		return false
	}
	x, y := o.Operands[0], o.Operands[1]
	shift := y
	other := x
	if shift.Kind != ir.ALsl {
		shift, other = x, y
		if shift.Kind != ir.ALsl {
			return false
		}
	}
	if shift.HasUses() && len(shift.Uses()) != 1 {
		return false // shift feeds something else; fusing would duplicate work
	}
	n, ok := shift.Attr(ir.AttrInt)
	if !ok {
		return false
	}
	kind := ir.AAddWL
	if o.ResultTy.Size() == 8 {
		kind = ir.AAddXL
	}
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)
	fused := bld.Create(kind, o.ResultTy, []*ir.Op{other, shift.Operands[0]}, []ir.Attr{ir.IntAttr(n.Int())})
	o.ReplaceAllUsesWith(fused)
	ir.Erase(o)
	if !shift.HasUses() {
		ir.Erase(shift)
	}
	return true
}

// fuseMulAdd rewrites add(mul(a,b), c) into AMadd.
func fuseMulAdd(f *ir.Function, o *ir.Op) bool {
	if len(o.Operands) != 2 {
		return false
	}
	x, y := o.Operands[0], o.Operands[1]
	mul, acc := x, y
	if mul.Kind != ir.AMul {
		mul, acc = y, x
		if mul.Kind != ir.AMul {
			return false
		}
	}
	if len(mul.Uses()) != 1 {
		return false
	}
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)
	madd := bld.Create(ir.AMadd, o.ResultTy, []*ir.Op{mul.Operands[0], mul.Operands[1], acc}, nil)
	o.ReplaceAllUsesWith(madd)
	ir.Erase(o)
	ir.Erase(mul)
	return true
}

// fuseCbzCset rewrites cbnz(cset(cc)) into a direct conditional branch,
// ABCond on the same condition cc (cbnz of cset(cc) is taken exactly
// when cc holds).
func fuseCbzCset(f *ir.Function, o *ir.Op) bool {
	if len(o.Operands) != 1 {
		return false
	}
	cset := o.Operands[0]
	if cset.Kind != ir.ACset || len(cset.Uses()) != 1 {
		return false
	}
	cc, ok := cset.Attr(ir.AttrNameAttr)
	if !ok {
		return false
	}
	target, hasT := o.Attr(ir.AttrTarget)
	els, hasE := o.Attr(ir.AttrElse)
	if !hasT || !hasE {
		return false
	}
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)
	bcond := bld.Create(ir.ABCond, ir.Unit, nil, []ir.Attr{
		ir.NameAttr(cc.Str()), ir.TargetAttr(target.Block()), ir.ElseAttr(els.Block()),
	})
	o.ReplaceAllUsesWith(bcond)
	ir.Erase(o)
	ir.Erase(cset)
	return true
}
