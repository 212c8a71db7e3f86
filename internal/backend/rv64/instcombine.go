package rv64

import "sysyc/internal/ir"

// InstCombine applies RV64's rewrite rules, run to a fixed
// point: folding an RAddi base+immediate computation directly into the
// load/store that consumes it, the RISC-V base+offset addressing mode
// already provides for free.
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
	case ir.RLw, ir.RLd:
		return foldAddiIntoLoad(f, o)
	case ir.RSw, ir.RSd:
		return foldAddiIntoStore(f, o)
	}
	return false
}

func foldAddiIntoLoad(f *ir.Function, o *ir.Op) bool {
	if len(o.Operands) != 1 {
		return false
	}
	base := o.Operands[0]
	if base.Kind != ir.RAddi || len(base.Uses()) != 1 {
		return false
	}
	off, ok := base.Attr(ir.AttrStackOffset)
	if !ok || len(base.Operands) != 1 {
		return false
	}
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)
	folded := bld.Create(o.Kind, o.ResultTy, []*ir.Op{base.Operands[0]}, []ir.Attr{ir.StackOffsetAttr(off.Int())})
	o.ReplaceAllUsesWith(folded)
	ir.Erase(o)
	ir.Erase(base)
	return true
}

func foldAddiIntoStore(f *ir.Function, o *ir.Op) bool {
	if len(o.Operands) != 2 {
		return false
	}
	val, base := o.Operands[0], o.Operands[1]
	if base.Kind != ir.RAddi || len(base.Uses()) != 1 {
		return false
	}
	off, ok := base.Attr(ir.AttrStackOffset)
	if !ok || len(base.Operands) != 1 {
		return false
	}
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)
	folded := bld.Create(o.Kind, ir.Unit, []*ir.Op{val, base.Operands[0]}, []ir.Attr{ir.StackOffsetAttr(off.Int())})
	ir.Erase(o)
	ir.Erase(base)
	_ = folded
	return true
}
