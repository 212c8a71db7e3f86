package regalloc

import "sysyc/internal/ir"

// MaterializeSpills implements step 10 of the allocator: for every op the colorer
// could not fit in a register, insert the memory traffic that its slot
// assignment implies. A spilled def gets a store immediately after it
// (skipped when the op is rematerializable — there is never a reason to
// round-trip a cheap constant through memory). Every use of a spilled
// value is rewritten to read from a freshly inserted load (or, for a
// rematerializable def, a freshly inserted clone of the defining op)
// pinned to the class's first dedicated spill register, immediately
// before the using op, so the spilled value never needs to occupy a
// real allocated register at all.
func MaterializeSpills(f *ir.Function, cfg Config, spilled map[*ir.Op]int64) {
	if len(spilled) == 0 {
		return
	}
	for _, b := range f.Blocks() {
		for _, o := range append([]*ir.Op(nil), b.Ops...) {
			if off, ok := spilled[o]; ok && !isRemat(cfg, o) {
				class := cfg.ClassOf(o)
				reg := cfg.SpillGPR[0]
				if class == FP {
					reg = cfg.SpillFP[0]
				}
				// o itself has no allocated register (it was spilled, not
				// colored): it computes directly into the class's first
				// dedicated spill register, which the immediately
				// following store then drains to memory.
				o.Attrs = append(o.Attrs, ir.RegAttr(reg))
				bld := ir.NewBuilder(f)
				setInsertionPointAfter(bld, o)
				cfg.MakeSpillStore(bld, class, off, reg, o)
			}
		}
	}

	for _, b := range f.Blocks() {
		for _, o := range append([]*ir.Op(nil), b.Ops...) {
			if o.Kind == ir.KPhi {
				continue // phi operands are resolved by DestructPhis, not here
			}
			for i, v := range o.Operands {
				if v == nil {
					continue
				}
				off, ok := spilled[v]
				if !ok {
					continue
				}
				class := cfg.ClassOf(v)
				reg := cfg.SpillGPR[0]
				if class == FP {
					reg = cfg.SpillFP[0]
				}
				bld := ir.NewBuilder(f)
				bld.SetInsertionPointBefore(o)
				var repl *ir.Op
				if isRemat(cfg, v) {
					repl = ir.Copy(f, v)
					repl.Attrs = append(repl.Attrs, ir.RegAttr(reg))
					ir.InsertBefore(o, repl)
				} else {
					repl = cfg.MakeSpillLoad(bld, class, reg, off, v)
				}
				o.ReplaceOperand(i, repl)
			}
		}
	}
}

func isRemat(cfg Config, o *ir.Op) bool {
	return cfg.Rematerializable != nil && cfg.Rematerializable(o)
}

// setInsertionPointAfter positions bld just after o, the Builder cursor
// API only exposing "before a mark" and "end of block" primitives.
func setInsertionPointAfter(bld *ir.Builder, o *ir.Op) {
	b := o.Block
	for i, x := range b.Ops {
		if x != o {
			continue
		}
		if i+1 < len(b.Ops) {
			bld.SetInsertionPointBefore(b.Ops[i+1])
		} else {
			bld.SetInsertionPoint(b)
		}
		return
	}
	bld.SetInsertionPoint(b)
}
