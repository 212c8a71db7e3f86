package pipeline

import "sysyc/internal/ir"

// pureKinds never have an externally-visible side effect; an Op of one of
// these kinds with no uses can always be erased.
var pureKinds = map[ir.Kind]bool{
	ir.KConst: true, ir.KBinOp: true, ir.KUnOp: true, ir.KCast: true,
	ir.KLoad: true, ir.KAddr: true, ir.KGetElement: true, ir.KAlloca: true,
	ir.KPhi: true,
}

// deadRemovable reports whether o may be erased given it currently has no
// uses: always true for pureKinds, true for a KCall only when the callee
// was marked pure (call-graph purity feeds EarlyInline and DCE alike).
func deadRemovable(o *ir.Op) bool {
	if pureKinds[o.Kind] {
		return true
	}
	if o.Kind == ir.KCall {
		_, pure := o.Attr(ir.AttrPure)
		return pure
	}
	return false
}

// runDCE removes every transitively-dead Op in f: repeatedly scanning
// blocks in reverse so an Op that only fed another dead Op also becomes
// eligible in the same pass.
func runDCE(f *ir.Function) {
	changed := true
	for changed {
		changed = false
		for _, b := range f.Blocks() {
			for i := len(b.Ops) - 1; i >= 0; i-- {
				o := b.Ops[i]
				if o.HasUses() || !deadRemovable(o) {
					continue
				}
				ir.Erase(o)
				changed = true
			}
		}
	}
}

// DCEPass is the final mid-level cleanup pass: dead code elimination over the
// flattened (or still-structured) CFG.
func DCEPass() Pass {
	return PerFunction("DCE", runDCE)
}
