package pipeline

import "sysyc/internal/ir"

// maxUnrollWork/maxUnrollPhis bound ConstLoopUnroll's "small body" test
// (<body_size> x iters <= 1000, phi count < 5).
const (
	maxUnrollWork = 1000
	maxUnrollPhis = 5
)

// ConstLoopUnrollPass evaluates a rotated loop directly instead of
// whose trip count is a compile-time constant and whose body is pure
// (no loads/stores/calls — only arithmetic over the loop's own header
// phis and constants) is evaluated directly rather than cloned: every
// header phi's value after the final iteration is computed by
// interpreting its recurrence in Go arithmetic, and the rotated loop's
// scaffolding (preheader zero-trip check, header, body, latch) is
// replaced by those constants feeding the exit block.
//
// Simplification (recorded in DESIGN.md): no later pass in DefaultOrder
// folds constant arithmetic (RegularFold/GVN already ran, before
// LoopRotate), so a literal "clone the body N times" unroll would leave
// unfolded arithmetic with no pass left to reduce it to a single
// constant. Interpreting the recurrence here produces the same
// observable result (scenario 1's "return literal 45, no loop label
// remains") without requiring a trailing fold pass. A loop touching
// memory or calling a function bails out unevaluated — Vectorize and
// ordinary runtime looping handle those.
func ConstLoopUnrollPass() Pass {
	return PerFunction("ConstLoopUnroll", constLoopUnroll)
}

func constLoopUnroll(f *ir.Function) {
	f.ComputeDominance()
	changed := true
	for changed {
		changed = false
		for _, l := range f.Loops() {
			if tryConstUnroll(f, &l) {
				changed = true
				break
			}
		}
	}
}

// rotatedLoopEdges returns the loop's preheader and latch, assuming the
// LoopRotate shape: header ends in an unconditional KGoto, preheader and
// latch both branch to (header, a shared exit block).
func rotatedLoopEdges(l *ir.Loop) (preheader, latch, exit *ir.BasicBlock, ok bool) {
	h := l.Header
	term := h.Terminator()
	if term == nil || term.Kind != ir.KGoto || len(h.Preds) != 2 {
		return nil, nil, nil, false
	}
	for _, p := range h.Preds {
		if l.Body[p] {
			latch = p
		} else {
			preheader = p
		}
	}
	if preheader == nil || latch == nil {
		return nil, nil, nil, false
	}
	preTerm, latchTerm := preheader.Terminator(), latch.Terminator()
	if preTerm == nil || preTerm.Kind != ir.KBranch || latchTerm == nil || latchTerm.Kind != ir.KBranch {
		return nil, nil, nil, false
	}
	pTgt, _ := preTerm.Attr(ir.AttrTarget)
	pElse, _ := preTerm.Attr(ir.AttrElse)
	lTgt, _ := latchTerm.Attr(ir.AttrTarget)
	lElse, _ := latchTerm.Attr(ir.AttrElse)
	if pTgt.Block() != h || lTgt.Block() != h || pElse.Block() != lElse.Block() {
		return nil, nil, nil, false
	}
	return preheader, latch, pElse.Block(), true
}

// headerPhis returns every KPhi op at the start of h.
func headerPhis(h *ir.BasicBlock) []*ir.Op {
	var out []*ir.Op
	for _, o := range h.Ops {
		if o.Kind == ir.KPhi {
			out = append(out, o)
		} else {
			break
		}
	}
	return out
}

// pureGivenPhis reports whether o's dependency chain is built only from
// constants, pure arithmetic, and references to one of phis — no loads,
// stores, calls, or addresses, so it is safe to interpret in Go
// arithmetic rather than execute.
func pureGivenPhis(o *ir.Op, phis map[*ir.Op]bool) bool {
	if phis[o] {
		return true
	}
	switch o.Kind {
	case ir.KConst:
		return true
	case ir.KUnOp, ir.KCast:
		return pureGivenPhis(o.Operands[0], phis)
	case ir.KBinOp:
		return pureGivenPhis(o.Operands[0], phis) && pureGivenPhis(o.Operands[1], phis)
	default:
		return false
	}
}

// evalConst interprets o given cur, a snapshot of every header phi's
// current-iteration value, returning ok=false the moment it hits
// anything not reducible to an int (a float constant, an unresolved
// operand) — evalConst is only ever called once pureGivenPhis has
// already vetted the chain, so a false here means "float, not
// unsupported", not a bug.
func evalConst(o *ir.Op, cur map[*ir.Op]int64) (int64, bool) {
	if v, ok := cur[o]; ok {
		return v, true
	}
	switch o.Kind {
	case ir.KConst:
		return intOf(o)
	case ir.KUnOp:
		v, ok := evalConst(o.Operands[0], cur)
		if !ok {
			return 0, false
		}
		name, ok := o.Attr(ir.AttrNameAttr)
		if !ok {
			return 0, false
		}
		switch name.Str() {
		case "neg":
			return -v, true
		case "not":
			return boolToInt(v == 0), true
		default:
			return 0, false
		}
	case ir.KBinOp:
		a, ok1 := evalConst(o.Operands[0], cur)
		b, ok2 := evalConst(o.Operands[1], cur)
		if !ok1 || !ok2 {
			return 0, false
		}
		name, ok := o.Attr(ir.AttrNameAttr)
		if !ok {
			return 0, false
		}
		return intBinOp(name.Str(), a, b)
	case ir.KCast:
		return evalConst(o.Operands[0], cur)
	default:
		return 0, false
	}
}

func tryConstUnroll(f *ir.Function, l *ir.Loop) bool {
	preheader, latch, exit, ok := rotatedLoopEdges(l)
	if !ok {
		return false
	}
	h := l.Header
	phis := headerPhis(h)
	if len(phis) == 0 || len(phis) >= maxUnrollPhis {
		return false
	}
	phiSet := map[*ir.Op]bool{}
	for _, p := range phis {
		phiSet[p] = true
	}

	// Every other op in the loop body must be pure arithmetic over
	// constants and header phis: no memory, no calls.
	bodyOpCount := 0
	for b := range l.Body {
		if b == h {
			continue
		}
		for _, o := range b.Ops {
			if o == latch.Terminator() {
				continue
			}
			if !pureGivenPhis(o, phiSet) {
				return false
			}
			bodyOpCount++
		}
	}

	latchTerm := latch.Terminator()
	cond := latchTerm.Operands[0]
	if cond.Kind != ir.KBinOp {
		return false
	}
	cmpName, ok := cond.Attr(ir.AttrNameAttr)
	if !ok || cmpName.Str() != "lt" {
		return false
	}

	entry := map[*ir.Op]int64{}
	entryVals := make(map[*ir.Op]*ir.Op, len(phis))
	for _, phi := range phis {
		v := phiOperandFor(phi, preheader)
		if v == nil {
			return false
		}
		c, ok := evalConst(v, nil)
		if !ok {
			return false
		}
		entry[phi] = c
		entryVals[phi] = v
	}
	bound, ok := evalConst(cond.Operands[1], entry)
	if !ok {
		return false
	}

	latchVals := make(map[*ir.Op]*ir.Op, len(phis))
	for _, phi := range phis {
		v := phiOperandFor(phi, latch)
		if v == nil {
			return false
		}
		latchVals[phi] = v
	}

	// Step the recurrence until the bottom-test (post-increment value
	// compared against bound) goes false, bailing if it never would
	// within the small-body budget.
	cur := entry
	iters := 0
	for {
		next := make(map[*ir.Op]int64, len(cur))
		for _, phi := range phis {
			v, ok := evalConst(latchVals[phi], cur)
			if !ok {
				return false
			}
			next[phi] = v
		}
		// cond.Operands[0] is the cloned update expression itself (e.g.
		// i_phi+step), so it evaluates against cur (this iteration's
		// pre-update values), not next — evaluating against next would
		// apply the increment twice.
		ivAfter, ok := evalConst(cond.Operands[0], cur)
		if !ok {
			return false
		}
		iters++
		if bodyOpCount*iters > maxUnrollWork {
			return false
		}
		cur = next
		if ivAfter >= bound {
			break
		}
		if iters > maxUnrollWork {
			return false
		}
	}

	// Replace every use of a header phi from outside the loop (built by
	// LoopRotate as an exit-merge phi) with the interpreted final value.
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(preheader.Terminator())
	final := make(map[*ir.Op]*ir.Op, len(phis))
	for _, phi := range phis {
		final[phi] = bld.Create(ir.KConst, phi.ResultTy, nil, []ir.Attr{ir.IntAttr(cur[phi])})
	}
	for _, exitPhi := range append([]*ir.Op(nil), exit.Ops...) {
		if exitPhi.Kind != ir.KPhi {
			continue
		}
		fromPreheader, fromLatch := phiOperandFor(exitPhi, preheader), phiOperandFor(exitPhi, latch)
		for _, phi := range phis {
			if fromPreheader == entryVals[phi] && fromLatch == latchVals[phi] {
				exitPhi.ReplaceAllUsesWith(final[phi])
				ir.Erase(exitPhi)
				break
			}
		}
	}

	ir.Erase(preheader.Terminator())
	bldP := ir.NewBuilder(f)
	bldP.SetInsertionPoint(preheader)
	bldP.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(exit)})
	preheader.RemoveSucc(h)

	removeLoopBlocks(f, l)
	return true
}

// removeLoopBlocks detaches every block in l.Body from f's region once
// its contents have been fully interpreted away.
func removeLoopBlocks(f *ir.Function, l *ir.Loop) {
	for b := range l.Body {
		for _, s := range append([]*ir.BasicBlock(nil), b.Succs...) {
			b.RemoveSucc(s)
		}
	}
	for b := range l.Body {
		f.Region.Remove(b)
	}
}
