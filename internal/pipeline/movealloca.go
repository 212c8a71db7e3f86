package pipeline

import "sysyc/internal/ir"

// MoveAllocaPass hoists every AllocaOp into
// the function's entry block, in first-encountered order, ahead of
// whatever else is already there.
func MoveAllocaPass() Pass {
	return PerFunction("MoveAlloca", moveAllocas)
}

func moveAllocas(f *ir.Function) {
	entry := f.EntryBlock()
	if entry == nil {
		return
	}
	var hoisted []*ir.Op
	walkAllBlocks(f, func(b *ir.BasicBlock) {
		if b == entry {
			return
		}
		kept := b.Ops[:0]
		for _, o := range b.Ops {
			if o.Kind == ir.KAlloca {
				o.Block = entry
				hoisted = append(hoisted, o)
			} else {
				kept = append(kept, o)
			}
		}
		b.Ops = kept
	})

	var already, rest []*ir.Op
	for _, o := range entry.Ops {
		if o.Kind == ir.KAlloca {
			already = append(already, o)
		} else {
			rest = append(rest, o)
		}
	}
	entry.Ops = append(append(already, hoisted...), rest...)
}
