package arm64

import "sysyc/internal/ir"

// Peephole runs after register
// allocation: self-move elimination, useless-jump removal and
// trivial-block forwarding. It does not split critical edges or rewrite
// a branch whose two targets are the same block.
func Peephole(f *ir.Function) {
	removeSelfMoves(f)
	removeUselessJumps(f)
	forwardTrivialBlocks(f)
}

func regOf(o *ir.Op) (string, bool) {
	if r, ok := o.Attr(ir.AttrReg); ok {
		return r.Str(), true
	}
	return "", false
}

// removeSelfMoves drops an AMovRR/AFmov whose destination register equals
// its source (DestructPhis and MaterializeSpills both emit moves that can
// turn out to be no-ops once colors are fixed).
func removeSelfMoves(f *ir.Function) {
	for _, b := range f.Blocks() {
		for _, o := range append([]*ir.Op(nil), b.Ops...) {
			if o.Kind != ir.AMovRR && o.Kind != ir.AFmov {
				continue
			}
			dst, ok1 := regOf(o)
			name, ok2 := o.Attr(ir.AttrNameAttr)
			if !ok1 || !ok2 || name.Str() != dst {
				continue
			}
			if !o.HasUses() {
				ir.Erase(o)
			}
		}
	}
}

// removeUselessJumps drops an AB whose target is the immediately
// following block in layout order.
func removeUselessJumps(f *ir.Function) {
	blocks := f.Blocks()
	for i, b := range blocks {
		term := b.Terminator()
		if term == nil || term.Kind != ir.AB || i+1 >= len(blocks) {
			continue
		}
		target, ok := term.Attr(ir.AttrTarget)
		if !ok || target.Block() != blocks[i+1] {
			continue
		}
		ir.Erase(term)
	}
}

// forwardTrivialBlocks retargets a branch whose destination is an empty
// block containing only an unconditional jump, directly to that block's
// own target, skipping the hop.
func forwardTrivialBlocks(f *ir.Function) {
	trivialTarget := map[*ir.BasicBlock]*ir.BasicBlock{}
	for _, b := range f.Blocks() {
		if len(b.Ops) != 1 {
			continue
		}
		if b.Ops[0].Kind != ir.AB {
			continue
		}
		if t, ok := b.Ops[0].Attr(ir.AttrTarget); ok {
			trivialTarget[b] = t.Block()
		}
	}
	if len(trivialTarget) == 0 {
		return
	}
	for _, b := range f.Blocks() {
		term := b.Terminator()
		if term == nil {
			continue
		}
		retargetAttr(term, ir.AttrTarget, trivialTarget)
		retargetAttr(term, ir.AttrElse, trivialTarget)
	}
}

func retargetAttr(term *ir.Op, kind ir.AttrKind, trivial map[*ir.BasicBlock]*ir.BasicBlock) {
	a, ok := term.Attr(kind)
	if !ok {
		return
	}
	dst := a.Block()
	for {
		next, isTrivial := trivial[dst]
		if !isTrivial || next == dst {
			break
		}
		dst = next
	}
	if dst == a.Block() {
		return
	}
	for i, attr := range term.Attrs {
		if attr.Kind() == kind {
			if kind == ir.AttrTarget {
				term.Attrs[i] = ir.TargetAttr(dst)
			} else {
				term.Attrs[i] = ir.ElseAttr(dst)
			}
		}
	}
}
