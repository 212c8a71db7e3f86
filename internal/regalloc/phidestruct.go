package regalloc

import "sysyc/internal/ir"

// DestructPhis implements step 9 of the allocator: for every header block with one
// or more phis, resolve each predecessor edge's bundle of phi operands
// into a parallel register-to-register move, splitting the edge first
// when the predecessor has more than one successor (a critical edge,
// since inserting the moves unconditionally in a multi-successor
// predecessor would run them on paths that don't lead to this header).
// Cycles in the move graph (two phis whose colors swap around the loop
// back-edge, say) are broken with the dialect's second dedicated spill
// register, exactly the "one temporary register" step 9 calls for.
//
// Each destructed phi is not erased outright — other ops still hold
// pointer-identity operand references to it — but is reduced to a
// zero-operand node pinned to its assigned register, so any remaining
// use still resolves via MustAttr(AttrReg)/spill-slot lookup the same
// way a live value would.
func DestructPhis(f *ir.Function, cfg Config, colored map[*ir.Op]string, spilled map[*ir.Op]int64) {
	for _, header := range append([]*ir.BasicBlock(nil), f.Blocks()...) {
		phis := collectPhis(header)
		if len(phis) == 0 {
			continue
		}
		for _, p := range append([]*ir.BasicBlock(nil), header.Preds...) {
			edgeBlock := p
			if len(successorsOf(p)) > 1 {
				edgeBlock = splitCriticalEdge(f, p, header)
			}
			emitParallelMoves(f, cfg, edgeBlock, header, phis, colored, spilled)
		}
		for _, phi := range phis {
			reduceToPinnedPlaceholder(phi, cfg, colored)
		}
	}
}

func collectPhis(b *ir.BasicBlock) []*ir.Op {
	var phis []*ir.Op
	for _, o := range b.Ops {
		if o.Kind != ir.KPhi {
			break
		}
		phis = append(phis, o)
	}
	return phis
}

func successorsOf(b *ir.BasicBlock) []*ir.BasicBlock { return b.Succs }

// splitCriticalEdge inserts a fresh block on the p->header edge,
// retargets p's terminator and header's phi From-attrs to it, and
// returns it as the place to emit this edge's parallel moves.
func splitCriticalEdge(f *ir.Function, p, header *ir.BasicBlock) *ir.BasicBlock {
	edge := ir.NewBlock(p.Label + ".to." + header.Label)
	f.Region.Append(edge)

	retargetTerminator(p.Terminator(), header, edge)
	p.RemoveSucc(header)
	p.AddSucc(edge)
	edge.AddSucc(header)

	for _, phi := range collectPhis(header) {
		retargetFrom(phi, p, edge)
	}

	bld := ir.NewBuilder(f)
	bld.SetInsertionPoint(edge)
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(header)})
	return edge
}

func retargetTerminator(term *ir.Op, from, to *ir.BasicBlock) {
	next := make([]ir.Attr, len(term.Attrs))
	for i, a := range term.Attrs {
		if (a.Kind() == ir.AttrTarget || a.Kind() == ir.AttrElse) && a.Block() == from {
			wasElse := a.Kind() == ir.AttrElse
			a.Release()
			if wasElse {
				next[i] = ir.ElseAttr(to)
			} else {
				next[i] = ir.TargetAttr(to)
			}
			continue
		}
		next[i] = a
	}
	term.Attrs = next
}

func retargetFrom(phi *ir.Op, from, to *ir.BasicBlock) {
	next := make([]ir.Attr, len(phi.Attrs))
	for i, a := range phi.Attrs {
		if a.Kind() == ir.AttrFrom && a.Block() == from {
			a.Release()
			next[i] = ir.FromAttr(to)
			continue
		}
		next[i] = a
	}
	phi.Attrs = next
}

// move is one leg of a parallel register copy: reg dst <- reg src.
type move struct{ dst, src string }

func emitParallelMoves(f *ir.Function, cfg Config, edge, header *ir.BasicBlock, phis []*ir.Op, colored map[*ir.Op]string, spilled map[*ir.Op]int64) {
	var gprMoves, fpMoves []move
	froms := make(map[*ir.Op][]*ir.BasicBlock, len(phis))
	for _, phi := range phis {
		froms[phi] = phi.Froms()
	}
	for _, phi := range phis {
		idx := indexOfFrom(froms[phi], edge, header)
		if idx < 0 {
			continue
		}
		src := phi.Operands[idx]
		dstReg, ok := colored[phi]
		if !ok {
			continue // spilled destination: handled by spill materialization instead
		}
		srcReg, ok := colored[src]
		if !ok {
			continue
		}
		if srcReg == dstReg {
			continue
		}
		m := move{dstReg, srcReg}
		if cfg.ClassOf(phi) == FP {
			fpMoves = append(fpMoves, m)
		} else {
			gprMoves = append(gprMoves, m)
		}
	}

	bld := ir.NewBuilder(f)
	term := edge.Terminator()
	if term != nil {
		bld.SetInsertionPointBefore(term)
	} else {
		bld.SetInsertionPoint(edge)
	}
	for _, m := range sequentialize(gprMoves, cfg.SpillGPR[1]) {
		cfg.MakeMove(bld, GPR, m.dst, m.src)
	}
	for _, m := range sequentialize(fpMoves, cfg.SpillFP[1]) {
		cfg.MakeMove(bld, FP, m.dst, m.src)
	}
}

// indexOfFrom returns the operand index of header's phi whose incoming
// edge is edge, accounting for edge possibly being a freshly-split block
// that stands in for the original predecessor (header itself is unused
// beyond documenting intent).
func indexOfFrom(froms []*ir.BasicBlock, edge, header *ir.BasicBlock) int {
	for i, b := range froms {
		if b == edge {
			return i
		}
	}
	return -1
}

// sequentialize turns a parallel register-to-register copy (every dst
// written simultaneously from every src's old value) into a sequence of
// ordinary moves, using temp to break any cycles. Standard out-of-SSA
// move-scheduling: repeatedly emit, in input order, any move whose
// destination is no longer read by another yet-unwritten move, then
// unwind remaining cycles through temp.
func sequentialize(moves []move, temp string) []move {
	if len(moves) == 0 {
		return nil
	}
	srcOf := map[string]string{}
	for _, m := range moves {
		srcOf[m.dst] = m.src
	}
	pending := map[string]bool{}
	for dst := range srcOf {
		pending[dst] = true
	}
	readByPending := func(r string) bool {
		for d := range pending {
			if d != r && srcOf[d] == r {
				return true
			}
		}
		return false
	}

	var result []move
	progress := true
	for progress {
		progress = false
		for _, m := range moves {
			dst := m.dst
			if !pending[dst] {
				continue
			}
			src := srcOf[dst]
			if src == dst {
				delete(pending, dst)
				progress = true
				continue
			}
			if !readByPending(dst) {
				result = append(result, move{dst, src})
				delete(pending, dst)
				progress = true
			}
		}
	}

	for len(pending) > 0 {
		var start string
		for _, m := range moves {
			if pending[m.dst] {
				start = m.dst
				break
			}
		}
		result = append(result, move{temp, start})
		cur := start
		for {
			src := srcOf[cur]
			delete(pending, cur)
			if src == start {
				result = append(result, move{cur, temp})
				break
			}
			result = append(result, move{cur, src})
			cur = src
		}
	}
	return result
}

func reduceToPinnedPlaceholder(phi *ir.Op, cfg Config, colored map[*ir.Op]string) {
	reg, ok := colored[phi]
	if !ok {
		return
	}
	for i := range phi.Operands {
		phi.ReplaceOperand(i, nil)
	}
	phi.Operands = nil
	phi.Attrs = append(phi.Attrs, ir.RegAttr(reg))
}
