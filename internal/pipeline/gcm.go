package pipeline

import "sysyc/internal/ir"

// GCMPass (Click 1995) early-schedules every pure,
// floating op as high as its operands allow, late-schedules it as low as
// its uses allow (phis counting as used on their incoming edge, not in
// their own block), then picks the block on the early-late dominator-tree
// path with the lowest loop nesting depth, preferring the latest such
// block when depths tie. Net effect: loop-invariant pure computations
// drift out of loops, and everything else stays as close to its uses as
// GVN/RegularFold already put it.
func GCMPass() Pass {
	return PerFunction("GCM", gcm)
}

// isFloating reports whether o has no fixed scheduling point of its own —
// pure value-producing ops with no side effect and no control dependence.
// KLoad/KStore/KCall/KAlloca stay pinned (memory ordering, side effects);
// KPhi stays pinned (its position IS its scheduling point, by definition,
// at the top of its block); terminators are never floating.
func isFloating(o *ir.Op) bool {
	switch o.Kind {
	case ir.KConst, ir.KBinOp, ir.KUnOp, ir.KCast, ir.KGetElement, ir.KAddr:
		return true
	default:
		return false
	}
}

func gcm(f *ir.Function) {
	entry := f.EntryBlock()
	if entry == nil {
		return
	}
	f.ComputeDominance()
	f.ComputeLoopNest()

	depth := map[*ir.BasicBlock]int{}
	assignDomDepth(entry, 0, depth)

	floatingSet := map[*ir.Op]bool{}
	for _, b := range f.Blocks() {
		kept := make([]*ir.Op, 0, len(b.Ops))
		for _, o := range b.Ops {
			if isFloating(o) && o.HasUses() {
				floatingSet[o] = true
				continue
			}
			kept = append(kept, o)
		}
		b.Ops = kept
	}
	if len(floatingSet) == 0 {
		return
	}

	g := &gcmState{depth: depth, floating: floatingSet, early: map[*ir.Op]*ir.BasicBlock{}, late: map[*ir.Op]*ir.BasicBlock{}}
	for o := range floatingSet {
		g.scheduleLate(o)
	}

	placed := map[*ir.Op]bool{}
	for o := range floatingSet {
		g.place(o, placed)
	}
}

// assignDomDepth fills depth with each block's distance from the root of
// the dominator tree, needed to compute the lowest-common-ancestor of two
// blocks in O(depth) time.
func assignDomDepth(b *ir.BasicBlock, d int, depth map[*ir.BasicBlock]int) {
	depth[b] = d
	for _, c := range b.DomChildren {
		assignDomDepth(c, d+1, depth)
	}
}

type gcmState struct {
	depth    map[*ir.BasicBlock]int
	floating map[*ir.Op]bool
	early    map[*ir.Op]*ir.BasicBlock
	late     map[*ir.Op]*ir.BasicBlock
}

func (g *gcmState) domLCA(a, b *ir.BasicBlock) *ir.BasicBlock {
	for g.depth[a] > g.depth[b] {
		a = a.IDom
	}
	for g.depth[b] > g.depth[a] {
		b = b.IDom
	}
	for a != b {
		a = a.IDom
		b = b.IDom
	}
	return a
}

// scheduleEarly places o in the shallowest-in-the-dominator-tree block
// still dominated by every one of its operands — as early as its inputs
// allow. Memoized; operands that are themselves floating recurse.
func (g *gcmState) scheduleEarly(o *ir.Op) *ir.BasicBlock {
	if !g.floating[o] {
		return o.Block
	}
	if b, ok := g.early[o]; ok {
		return b
	}
	// Start at the dominator-tree root and sink only as far as the
	// deepest operand's block requires.
	best := o.Func().EntryBlock()
	for _, v := range o.Operands {
		if v == nil {
			continue
		}
		b := g.scheduleEarly(v)
		if g.depth[b] > g.depth[best] {
			best = b
		}
	}
	g.early[o] = best
	return best
}

// scheduleLate places o at the lowest-common-ancestor of every block that
// uses it (a phi use counts at the predecessor block for its incoming
// edge, not the phi's own block), then walks up toward scheduleEarly(o)
// picking the shallowest loop nesting depth on that path, preferring the
// position closest to the uses when depths tie.
func (g *gcmState) scheduleLate(o *ir.Op) *ir.BasicBlock {
	if !g.floating[o] {
		return o.Block
	}
	if b, ok := g.late[o]; ok {
		return b
	}
	// Placeholder prevents infinite recursion if this is ever reached
	// twice for the same op before being finalized (it shouldn't be,
	// since floating ops form a DAG, but guards against surprises).
	g.late[o] = o.Block

	var lca *ir.BasicBlock
	for _, u := range o.Uses() {
		var ub *ir.BasicBlock
		if u.Kind == ir.KPhi {
			for i, v := range u.Operands {
				if v == o {
					froms := u.Froms()
					if i < len(froms) {
						ub = froms[i]
					}
					break
				}
			}
		} else if g.floating[u] {
			ub = g.scheduleLate(u)
		} else {
			ub = u.Block
		}
		if ub == nil {
			continue
		}
		if lca == nil {
			lca = ub
		} else {
			lca = g.domLCA(lca, ub)
		}
	}
	if lca == nil {
		lca = g.scheduleEarly(o)
	}

	early := g.scheduleEarly(o)
	best := lca
	for cur := lca; cur != nil; cur = cur.IDom {
		if cur.LoopDepth < best.LoopDepth {
			best = cur
		}
		if cur == early {
			break
		}
	}
	g.late[o] = best
	return best
}

// place inserts o into the block scheduleLate chose, after any of its
// operands that ended up in the same block and before any of its uses
// that already live there (phi uses are exempt: the value they read
// doesn't need to precede the phi physically, only to dominate the edge,
// which scheduleLate already guaranteed).
func (g *gcmState) place(o *ir.Op, placed map[*ir.Op]bool) {
	if placed[o] {
		return
	}
	for _, v := range o.Operands {
		if v != nil && g.floating[v] {
			g.place(v, placed)
		}
	}

	target := g.late[o]
	insertIdx := blockInsertLimit(target)
	lowIdx := 0
	for _, v := range o.Operands {
		if v != nil && v.Block == target {
			if idx := indexOfInBlock(target, v); idx >= 0 && idx+1 > lowIdx {
				lowIdx = idx + 1
			}
		}
	}
	for _, u := range o.Uses() {
		if u.Kind == ir.KPhi {
			continue
		}
		if u.Block == target {
			if idx := indexOfInBlock(target, u); idx >= 0 && idx < insertIdx {
				insertIdx = idx
			}
		}
	}
	if lowIdx > insertIdx {
		insertIdx = lowIdx
	}

	tail := append([]*ir.Op(nil), target.Ops[insertIdx:]...)
	target.Ops = append(target.Ops[:insertIdx], o)
	target.Ops = append(target.Ops, tail...)
	o.Block = target
	placed[o] = true
}

func blockInsertLimit(b *ir.BasicBlock) int {
	if t := b.Terminator(); t != nil {
		for i, o := range b.Ops {
			if o == t {
				return i
			}
		}
	}
	return len(b.Ops)
}

func indexOfInBlock(b *ir.BasicBlock, o *ir.Op) int {
	for i, x := range b.Ops {
		if x == o {
			return i
		}
	}
	return -1
}

