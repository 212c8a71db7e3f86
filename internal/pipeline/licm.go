package pipeline

import "sysyc/internal/ir"

// LICMPass, for every natural loop, marks each op
// variant or invariant by fixed point over operand variance and memory
// interference, then hoists every invariant op to the loop's preheader (a
// new or reused block dominating the header on every non-back-edge
// path). Smallest (innermost) loops are hoisted first, so a value that
// becomes invariant to an outer loop only once its own inner loop's
// invariants have already left it is still caught.
func LICMPass() Pass {
	return PerFunction("LICM", licm)
}

func licm(f *ir.Function) {
	f.ComputeDominance()
	loops := f.Loops()
	for i := range loops {
		for j := i + 1; j < len(loops); j++ {
			if len(loops[j].Body) < len(loops[i].Body) {
				loops[i], loops[j] = loops[j], loops[i]
			}
		}
	}
	for i := range loops {
		hoistLoop(f, &loops[i])
	}
}

// hoistLoop computes the invariant set for one loop and moves every
// invariant op into its preheader, in original relative order so
// operand-before-use ordering among the hoisted ops is preserved.
func hoistLoop(f *ir.Function, l *ir.Loop) {
	stores := loopStores(l.Body)
	unknownStore := false
	for _, s := range stores {
		if resolveBases(s.Operands[0], map[*ir.Op]bool{}) == nil {
			unknownStore = true
			break
		}
	}

	invariant := map[*ir.Op]bool{}
	changed := true
	for changed {
		changed = false
		for b := range l.Body {
			for _, o := range b.Ops {
				if invariant[o] || !hoistable(o) {
					continue
				}
				if o.Kind == ir.KLoad && loadInterferes(o, stores, unknownStore) {
					continue
				}
				if allOperandsInvariant(o, l.Body, invariant) {
					invariant[o] = true
					changed = true
				}
			}
		}
	}
	if len(invariant) == 0 {
		return
	}

	preheader := getOrCreatePreheader(f, l)
	insertAt := blockInsertLimit(preheader)
	for b := range l.Body {
		kept := make([]*ir.Op, 0, len(b.Ops))
		for _, o := range b.Ops {
			if !invariant[o] {
				kept = append(kept, o)
				continue
			}
			tail := append([]*ir.Op(nil), preheader.Ops[insertAt:]...)
			preheader.Ops = append(preheader.Ops[:insertAt], o)
			preheader.Ops = append(preheader.Ops, tail...)
			o.Block = preheader
			insertAt++
		}
		b.Ops = kept
	}
}

// hoistable reports whether o is a candidate for LICM at all: pure
// value-producing ops, plus loads (which additionally need the
// memory-interference check in loadInterferes). KAlloca/KCall/KStore and
// anything with regions or side effects never moves.
func hoistable(o *ir.Op) bool {
	if !o.HasUses() {
		return false
	}
	switch o.Kind {
	case ir.KConst, ir.KBinOp, ir.KUnOp, ir.KCast, ir.KGetElement, ir.KAddr, ir.KLoad:
		return true
	default:
		return false
	}
}

func allOperandsInvariant(o *ir.Op, body map[*ir.BasicBlock]bool, invariant map[*ir.Op]bool) bool {
	for _, v := range o.Operands {
		if v == nil {
			continue
		}
		if body[v.Block] && !invariant[v] {
			return false
		}
	}
	return true
}

func loopStores(body map[*ir.BasicBlock]bool) []*ir.Op {
	var out []*ir.Op
	for b := range body {
		for _, o := range b.Ops {
			if o.Kind == ir.KStore && len(o.Operands) == 2 {
				out = append(out, o)
			}
		}
	}
	return out
}

// loadInterferes reports whether any store within the loop may alias
// load's address, conservatively: an unresolved base on either side (the
// load's own address, or any in-loop store) means "maybe".
func loadInterferes(load *ir.Op, stores []*ir.Op, unknownStore bool) bool {
	if unknownStore {
		return true
	}
	loadBases := resolveBases(load.Operands[0], map[*ir.Op]bool{})
	if loadBases == nil {
		return true
	}
	for _, s := range stores {
		storeBases := resolveBases(s.Operands[0], map[*ir.Op]bool{})
		for b := range storeBases {
			if loadBases[b] {
				return true
			}
		}
	}
	return false
}

// resolveBases traces an address back to the set of KAlloca/KAddr ops it
// could ultimately originate from, following KGetElement's base operand
// and unioning a KPhi's incoming values conservatively. Returns nil
// (meaning "unknown, assume anything") if the trace hits anything else —
// a function argument, a loaded pointer, a call result.
func resolveBases(addr *ir.Op, seen map[*ir.Op]bool) map[*ir.Op]bool {
	if addr == nil || seen[addr] {
		return map[*ir.Op]bool{}
	}
	seen[addr] = true
	switch addr.Kind {
	case ir.KAlloca, ir.KAddr:
		return map[*ir.Op]bool{addr: true}
	case ir.KGetElement:
		if len(addr.Operands) == 0 {
			return nil
		}
		return resolveBases(addr.Operands[0], seen)
	case ir.KPhi:
		out := map[*ir.Op]bool{}
		for _, v := range addr.Operands {
			sub := resolveBases(v, seen)
			if sub == nil {
				return nil
			}
			for b := range sub {
				out[b] = true
			}
		}
		return out
	default:
		return nil
	}
}

// getOrCreatePreheader returns a block dominating l.Header on every edge
// that isn't the loop's own back edge(s), creating one if no predecessor
// outside the loop already serves that role on its own (a single
// outside predecessor whose only successor is the header needs no new
// block at all).
func getOrCreatePreheader(f *ir.Function, l *ir.Loop) *ir.BasicBlock {
	var outside []*ir.BasicBlock
	for _, p := range l.Header.Preds {
		if !l.Body[p] {
			outside = append(outside, p)
		}
	}
	if len(outside) == 1 && len(outside[0].Succs) == 1 {
		return outside[0]
	}

	preheader := ir.NewBlock(l.Header.Label + ".preheader")
	f.Region.Append(preheader)
	bld := ir.NewBuilder(f)
	bld.SetInsertionPoint(preheader)
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(l.Header)})

	for _, p := range outside {
		retarget(p.Terminator(), l.Header, preheader)
		p.RemoveSucc(l.Header)
		p.AddSucc(preheader)
		retargetPhiFrom(l.Header, p, preheader)
	}
	preheader.AddSucc(l.Header)
	return preheader
}

// retargetPhiFrom rewrites every AttrFrom(from) on header's phis to
// AttrFrom(to), used when a predecessor edge is redirected through a
// newly inserted block.
func retargetPhiFrom(header *ir.BasicBlock, from, to *ir.BasicBlock) {
	for _, o := range header.Ops {
		if o.Kind != ir.KPhi {
			continue
		}
		next := make([]ir.Attr, len(o.Attrs))
		for i, a := range o.Attrs {
			if a.Kind() == ir.AttrFrom && a.Block() == from {
				a.Release()
				next[i] = ir.FromAttr(to)
				continue
			}
			next[i] = a
		}
		o.Attrs = next
	}
}
