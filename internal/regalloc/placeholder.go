package regalloc

import "sysyc/internal/ir"

// InsertClobberPlaceholders implements step 1 of the allocator: before every
// clobbering op (a call, or a thread clone/join), insert one pre-colored,
// zero-operand placeholder per caller-saved register. A placeholder has
// no operands and no uses of its own; its only job is to exist, alive for
// exactly the clobbering op's instant, so BuildInterference's sweep adds
// an edge from it to every value simultaneously live — which is exactly
// every value that must not be assigned a caller-saved register across
// the call. Placeholders are removed once coloring has used them.
func InsertClobberPlaceholders(f *ir.Function, cfg Config) []*ir.Op {
	var placeholders []*ir.Op
	for _, b := range f.Blocks() {
		ops := append([]*ir.Op(nil), b.Ops...)
		for _, o := range ops {
			if !cfg.IsClobber(o) {
				continue
			}
			bld := ir.NewBuilder(f)
			bld.SetInsertionPointBefore(o)
			for _, reg := range cfg.CallerSaved {
				ph := cfg.MakePlaceholder(bld, GPR, reg)
				placeholders = append(placeholders, ph)
			}
		}
	}
	return placeholders
}

// RemovePlaceholders detaches every placeholder previously inserted by
// InsertClobberPlaceholders; safe once interference edges have already
// been captured and coloring is complete.
func RemovePlaceholders(placeholders []*ir.Op) {
	for _, ph := range placeholders {
		if ph.Block != nil {
			ir.Erase(ph)
		}
	}
}
