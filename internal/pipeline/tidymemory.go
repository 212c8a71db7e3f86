package pipeline

import "sysyc/internal/ir"

// TidyMemoryPass forwards stored scalar
// values to later loads of the same alloca within a single basic block,
// and drops a store that is immediately superseded by another store to
// the same slot with no intervening load. This is the memory-SSA
// precursor Mem2Reg later generalizes across block boundaries via
// dominance frontiers; staying block-local here keeps it trivially safe
// to run ahead of FlattenCFG, before dominance is even computed.
func TidyMemoryPass() Pass {
	return PerFunction("TidyMemory", tidyMemory)
}

func tidyMemory(f *ir.Function) {
	walkAllBlocks(f, tidyMemoryBlock)
}

func tidyMemoryBlock(b *ir.BasicBlock) {
	lastVal := map[*ir.Op]*ir.Op{}
	lastStore := map[*ir.Op]*ir.Op{}
	clearAll := func() {
		lastVal = map[*ir.Op]*ir.Op{}
		lastStore = map[*ir.Op]*ir.Op{}
	}
	for _, o := range append([]*ir.Op(nil), b.Ops...) {
		if o.Block == nil {
			continue
		}
		switch {
		case o.Kind == ir.KLoad && len(o.Operands) == 1:
			addr := o.Operands[0]
			if addr.Kind != ir.KAlloca {
				continue
			}
			if val, ok := lastVal[addr]; ok {
				o.ReplaceAllUsesWith(val)
				if !o.HasUses() {
					ir.Erase(o)
				}
			}
		case o.Kind == ir.KStore && len(o.Operands) == 2:
			addr, val := o.Operands[0], o.Operands[1]
			if addr.Kind != ir.KAlloca {
				clearAll()
				continue
			}
			if prev, ok := lastStore[addr]; ok && prev.Block != nil {
				ir.Erase(prev)
			}
			lastVal[addr] = val
			lastStore[addr] = o
		case o.Kind == ir.KCall || len(o.Regions) > 0:
			clearAll()
		}
	}
}
