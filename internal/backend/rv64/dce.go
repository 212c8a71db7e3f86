package rv64

import "sysyc/internal/ir"

func sideEffecting(o *ir.Op) bool {
	if o.Kind.IsTerminator() {
		return true
	}
	switch o.Kind {
	case ir.RJal, ir.RJalr, ir.RSw, ir.RSd, ir.RWriteReg, ir.RClone, ir.RJoin, ir.RWake, ir.RPlaceholder:
		return true
	}
	return false
}

// DCE repeatedly removes results-producing ops with no remaining uses,
// mirroring arm64.DCE.
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
