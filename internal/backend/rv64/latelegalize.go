package rv64

import "sysyc/internal/ir"

// imm12Min/imm12Max bound RV64's 12-bit signed immediate, the encoding
// every addi/load/store offset must fit after this pass.
const imm12Min, imm12Max = -2048, 2047

// LateLegalize is the final legality pass for RV64: any
// addi/load/store whose stack offset overflows the 12-bit signed
// immediate is split into an explicit li+add materializing the offset
// into a register, with the memory op's own immediate reset to 0.
func LateLegalize(f *ir.Function) {
	for _, b := range f.Blocks() {
		for _, o := range append([]*ir.Op(nil), b.Ops...) {
			legalizeOffset(f, o)
		}
	}
}

func legalizeOffset(f *ir.Function, o *ir.Op) {
	off, ok := o.Attr(ir.AttrStackOffset)
	if !ok {
		return
	}
	n := off.Int()
	if n >= imm12Min && n <= imm12Max {
		return
	}
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)
	lit := bld.Create(ir.RLi, ir.I64, nil, []ir.Attr{ir.IntAttr(n)})
	var base *ir.Op
	if len(o.Operands) > 0 && o.Kind != ir.RSw && o.Kind != ir.RSd {
		base = o.Operands[0]
	} else if len(o.Operands) > 1 {
		base = o.Operands[1]
	}
	var full *ir.Op
	if base != nil {
		full = bld.Create(ir.RAdd, ir.I64, []*ir.Op{base, lit}, nil)
	} else {
		full = lit
	}
	newAttrs := make([]ir.Attr, len(o.Attrs))
	for i, attr := range o.Attrs {
		if attr.Kind() == ir.AttrStackOffset {
			newAttrs[i] = ir.StackOffsetAttr(0)
		} else {
			newAttrs[i] = attr.Clone()
		}
	}
	var operands []*ir.Op
	switch {
	case o.Kind == ir.RSw || o.Kind == ir.RSd:
		operands = []*ir.Op{o.Operands[0], full}
	default:
		operands = []*ir.Op{full}
	}
	replaced := bld.Create(o.Kind, o.ResultTy, operands, newAttrs)
	o.ReplaceAllUsesWith(replaced)
	ir.Erase(o)
}
