package rv64

import "sysyc/internal/ir"

// Peephole does self-move
// elimination and useless-jump removal, mirroring arm64.Peephole.
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

func removeSelfMoves(f *ir.Function) {
	for _, b := range f.Blocks() {
		for _, o := range append([]*ir.Op(nil), b.Ops...) {
			if o.Kind != ir.RMv2 {
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

func removeUselessJumps(f *ir.Function) {
	blocks := f.Blocks()
	for i, b := range blocks {
		term := b.Terminator()
		if term == nil || term.Kind != ir.RJ || i+1 >= len(blocks) {
			continue
		}
		target, ok := term.Attr(ir.AttrTarget)
		if !ok || target.Block() != blocks[i+1] {
			continue
		}
		ir.Erase(term)
	}
}

func forwardTrivialBlocks(f *ir.Function) {
	trivialTarget := map[*ir.BasicBlock]*ir.BasicBlock{}
	for _, b := range f.Blocks() {
		if len(b.Ops) != 1 {
			continue
		}
		if b.Ops[0].Kind != ir.RJ {
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
