package pipeline

import "sysyc/internal/ir"

// LoopDCEPass deletes a rotated loop
// whose body never touches memory or calls a function, and whose header
// phis carry no value past the loop (no exit phi reads one of them), does
// nothing observable — it can only spin or, for a provably-finite trip
// count, terminate — so the whole loop is deleted outright rather than
// iterated. This runs after Vectorize (which needs the real loop present
// to widen) and before the final DCE sweep, matching DefaultOrder.
//
// Simplification (recorded in DESIGN.md): unlike ConstLoopUnroll this
// pass does not attempt to prove the loop terminates — it only fires
// when no result of running the loop is observable from outside it, so
// deleting a non-terminating pure loop is still behavior-preserving for
// every program whose defined behavior doesn't depend on it looping
// forever (the same assumption RegularFold's unreachable-code folding
// already relies on). A loop that calls a function or touches memory is
// left alone even if its result is otherwise unused — DCE's ordinary
// dead-store/dead-call elimination, not this pass, is responsible for
// that.
func LoopDCEPass() Pass {
	return PerFunction("LoopDCE", loopDCE)
}

func loopDCE(f *ir.Function) {
	f.ComputeDominance()
	changed := true
	for changed {
		changed = false
		for _, l := range f.Loops() {
			if tryLoopDCE(f, &l) {
				changed = true
				break
			}
		}
	}
}

func tryLoopDCE(f *ir.Function, l *ir.Loop) bool {
	preheader, _, exit, ok := rotatedLoopEdges(l)
	if !ok {
		return false
	}
	h := l.Header
	phis := headerPhis(h)
	phiSet := map[*ir.Op]bool{}
	for _, p := range phis {
		phiSet[p] = true
	}

	for b := range l.Body {
		term := b.Terminator()
		for _, o := range b.Ops {
			if o == term {
				continue
			}
			if !pureGivenPhis(o, phiSet) {
				return false
			}
		}
	}

	if loopValueEscapes(l, exit) {
		return false
	}

	ir.Erase(preheader.Terminator())
	bld := ir.NewBuilder(f)
	bld.SetInsertionPoint(preheader)
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(exit)})
	preheader.RemoveSucc(h)

	removeLoopBlocks(f, l)
	return true
}

// loopValueEscapes reports whether any op inside the loop has a use
// outside it (an exit phi reading a header phi, or any in-loop op's
// result read from exit or beyond).
func loopValueEscapes(l *ir.Loop, exit *ir.BasicBlock) bool {
	for b := range l.Body {
		for _, o := range b.Ops {
			for _, use := range o.Uses() {
				if use.Block == nil || l.Body[use.Block] {
					continue
				}
				return true
			}
		}
	}
	for _, o := range exit.Ops {
		if o.Kind != ir.KPhi {
			continue
		}
		for _, from := range o.Froms() {
			if l.Body[from] {
				return true
			}
		}
	}
	return false
}
