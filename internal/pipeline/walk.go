package pipeline

import "sysyc/internal/ir"

// walkAllBlocks visits every block reachable from f's top-level region,
// including blocks owned by sub-regions of structured ops (KIf/KWhile/
// KFor) — unlike Function.Blocks(), which returns only the top region.
func walkAllBlocks(f *ir.Function, visit func(*ir.BasicBlock)) {
	for _, b := range f.Blocks() {
		walkBlock(b, visit)
	}
}

func walkBlock(b *ir.BasicBlock, visit func(*ir.BasicBlock)) {
	visit(b)
	for _, o := range b.Ops {
		for _, r := range o.Regions {
			for _, sub := range r.Blocks {
				walkBlock(sub, visit)
			}
		}
	}
}
