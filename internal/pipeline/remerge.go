package pipeline

import "sysyc/internal/ir"

// RemergePass is a trivial collapser that drops a
// structured If whose every sub-region block is empty — the residue left
// behind once TidyMemory/DCE have emptied both arms of a branch that no
// longer does anything observable.
func RemergePass() Pass {
	return PerFunction("Remerge", remergeTrivial)
}

func remergeTrivial(f *ir.Function) {
	walkAllBlocks(f, func(b *ir.BasicBlock) {
		for i := 0; i < len(b.Ops); i++ {
			o := b.Ops[i]
			if o.Kind != ir.KIf || !allRegionsEmpty(o) {
				continue
			}
			spliceInPlace(b, i, o, nil)
			i--
		}
	})
}

func allRegionsEmpty(o *ir.Op) bool {
	for _, r := range o.Regions {
		for _, blk := range r.Blocks {
			if len(blk.Ops) != 0 {
				return false
			}
		}
	}
	return true
}
