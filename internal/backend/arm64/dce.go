package arm64

import "sysyc/internal/ir"

// sideEffecting reports ops DCE must never remove even with zero uses:
// terminators, calls, stores, and the clobber/sync primitives.
func sideEffecting(o *ir.Op) bool {
	if o.Kind.IsTerminator() {
		return true
	}
	switch o.Kind {
	case ir.ABl, ir.AStr, ir.AStrSp, ir.AWriteReg, ir.AClone, ir.AJoin, ir.AWake, ir.APlaceholder:
		return true
	}
	return false
}

// DCE repeatedly removes results-producing ops
// with no remaining uses until a fixed point, never touching an op
// sideEffecting flags.
func DCE(f *ir.Function) {
	for {
		changed := false
		for _, b := range f.Blocks() {
			for _, o := range append([]*ir.Op(nil), b.Ops...) {
				if !o.HasResult || sideEffecting(o) || o.HasUses() {
					continue
				}
				ir.Erase(o)
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}
