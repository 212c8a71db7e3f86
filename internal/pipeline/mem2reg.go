package pipeline

import "sysyc/internal/ir"

// Mem2RegPass promotes scalar allocas whose
// address never escapes into SSA values. This is the textbook Cytron et
// al. construction, built directly on ComputeDominance's IDom/DomFrontier
// output: KPhi is inserted at the iterated dominance frontier of each
// alloca's store sites, then a dominator-tree walk renames every load to
// the value live at that point and deletes the alloca/loads/stores
// entirely.
//
// Runs right after FlattenCFG: every alloca already lives in the entry
// block (MoveAlloca's doing) and every block already ends in a real
// terminator, so Preds/Succs are the exact edges phi operands need to be
// indexed against.
//
// Simplification (recorded in DESIGN.md): phis are inserted at the full
// iterated dominance frontier with no liveness pruning, so an alloca
// dead on some path can still get a phi nobody reads — harmless (it has
// no uses, and a later DCE pass removes it) but not minimal-SSA. Arrays
// (an alloca with a DimsAttr) and any alloca whose address is taken for
// something other than a direct load/store are left as memory; only a
// KAlloca used exclusively as the address operand of KLoad/KStore is
// promoted.
func Mem2RegPass() Pass {
	return PerFunction("Mem2Reg", mem2reg)
}

func isPromotable(a *ir.Op) bool {
	if _, hasDims := a.Attr(ir.AttrDims); hasDims {
		return false
	}
	for _, u := range a.Uses() {
		switch u.Kind {
		case ir.KLoad:
			if len(u.Operands) != 1 || u.Operands[0] != a {
				return false
			}
		case ir.KStore:
			if len(u.Operands) != 2 || u.Operands[0] != a {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func mem2reg(f *ir.Function) {
	entry := f.EntryBlock()
	if entry == nil {
		return
	}

	var allocas []*ir.Op
	for _, o := range entry.Ops {
		if o.Kind == ir.KAlloca && isPromotable(o) {
			allocas = append(allocas, o)
		}
	}
	if len(allocas) == 0 {
		return
	}

	f.ComputeDominance()

	bld := ir.NewBuilder(f)
	undef := map[*ir.Op]*ir.Op{}
	first := entry.Ops[0]
	for _, a := range allocas {
		bld.SetInsertionPointBefore(first)
		var attr ir.Attr
		if a.ResultTy.IsFloat() {
			attr = ir.FloatAttr(0)
		} else {
			attr = ir.IntAttr(0)
		}
		undef[a] = bld.Create(ir.KConst, a.ResultTy, nil, []ir.Attr{attr})
	}

	phiOwner := map[*ir.Op]*ir.Op{}
	blockPhis := map[*ir.BasicBlock]map[*ir.Op]*ir.Op{}
	for _, a := range allocas {
		defBlocks := map[*ir.BasicBlock]bool{}
		for _, u := range a.Uses() {
			if u.Kind == ir.KStore {
				defBlocks[u.Block] = true
			}
		}
		for b := range iteratedDominanceFrontier(defBlocks) {
			if len(b.Preds) == 0 || len(b.Ops) == 0 {
				continue
			}
			operands := make([]*ir.Op, len(b.Preds))
			attrs := make([]ir.Attr, len(b.Preds))
			for i, p := range b.Preds {
				attrs[i] = ir.FromAttr(p)
			}
			bld.SetInsertionPointBefore(b.Ops[0])
			phi := bld.Create(ir.KPhi, a.ResultTy, operands, attrs)
			phiOwner[phi] = a
			if blockPhis[b] == nil {
				blockPhis[b] = map[*ir.Op]*ir.Op{}
			}
			blockPhis[b][a] = phi
		}
	}

	r := &renamer{
		f:         f,
		promoted:  map[*ir.Op]bool{},
		phiOwner:  phiOwner,
		blockPhis: blockPhis,
		stacks:    map[*ir.Op][]*ir.Op{},
	}
	for _, a := range allocas {
		r.promoted[a] = true
		r.stacks[a] = []*ir.Op{undef[a]}
	}
	r.walk(entry)

	for _, a := range allocas {
		if a.Block != nil {
			ir.Erase(a)
		}
	}
}

// iteratedDominanceFrontier computes DF+(defBlocks): the fixed point of
// repeatedly unioning in each block's own dominance frontier.
func iteratedDominanceFrontier(defBlocks map[*ir.BasicBlock]bool) map[*ir.BasicBlock]bool {
	out := map[*ir.BasicBlock]bool{}
	worklist := make([]*ir.BasicBlock, 0, len(defBlocks))
	for b := range defBlocks {
		worklist = append(worklist, b)
	}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for df := range b.DomFrontier {
			if !out[df] {
				out[df] = true
				worklist = append(worklist, df)
			}
		}
	}
	return out
}

type renamer struct {
	f         *ir.Function
	promoted  map[*ir.Op]bool
	phiOwner  map[*ir.Op]*ir.Op
	blockPhis map[*ir.BasicBlock]map[*ir.Op]*ir.Op
	stacks    map[*ir.Op][]*ir.Op
}

func (r *renamer) top(a *ir.Op) *ir.Op {
	s := r.stacks[a]
	return s[len(s)-1]
}

func (r *renamer) push(a, v *ir.Op) {
	r.stacks[a] = append(r.stacks[a], v)
}

func (r *renamer) pop(a *ir.Op) {
	s := r.stacks[a]
	r.stacks[a] = s[:len(s)-1]
}

// walk renames b's own ops, fills in its successors' phi operands for the
// edge from b, then recurses over b's dominator-tree children — the
// standard Cytron et al. SSA-construction walk.
func (r *renamer) walk(b *ir.BasicBlock) {
	var pushed []*ir.Op
	kept := make([]*ir.Op, 0, len(b.Ops))
	for _, o := range b.Ops {
		if a, ok := r.phiOwner[o]; ok {
			r.push(a, o)
			pushed = append(pushed, a)
			kept = append(kept, o)
			continue
		}
		if o.Kind == ir.KLoad && len(o.Operands) == 1 && r.promoted[o.Operands[0]] {
			o.ReplaceAllUsesWith(r.top(o.Operands[0]))
			o.Block = nil
			ir.Erase(o)
			continue
		}
		if o.Kind == ir.KStore && len(o.Operands) == 2 && r.promoted[o.Operands[0]] {
			a := o.Operands[0]
			v := o.Operands[1]
			o.Block = nil
			ir.Erase(o)
			r.push(a, v)
			pushed = append(pushed, a)
			continue
		}
		kept = append(kept, o)
	}
	b.Ops = kept

	for _, s := range b.Succs {
		phis := r.blockPhis[s]
		if len(phis) == 0 {
			continue
		}
		idx := -1
		for i, p := range s.Preds {
			if p == b {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		for a, phi := range phis {
			phi.ReplaceOperand(idx, r.top(a))
		}
	}

	for _, c := range b.DomChildren {
		r.walk(c)
	}

	for _, a := range pushed {
		r.pop(a)
	}
}
