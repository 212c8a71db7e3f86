package pipeline

import "sysyc/internal/ir"

// LoopRotatePass rewrites a canonical
// top-tested `for (i = start; i < x; i += c)` loop into rotated
// (bottom-tested) form — a preheader performs the zero-trip check, the
// header becomes an unconditional fall-through into the body, and the
// single latch re-evaluates the condition and branches back to the body
// or out to the exit. This is what lets LoopDCE/Vectorize/ConstLoopUnroll
// assume "single latch, condition at the bottom" without re-deriving it.
//
// Simplification (recorded in DESIGN.md): only loops whose header's
// non-phi ops (the condition-computing chain) have no use outside the
// header are rotated — the common case for a flattened `for`/`while`
// whose cond block computes nothing but the test. A header phi *is*
// allowed to be used after the loop (the usual "final accumulator
// value" pattern): such a use is redirected to a fresh phi inserted in
// the exit block merging the zero-trip and fall-through values. Loops
// with multiple latches, or with some other header-local value read
// outside the header, are left unrotated.
func LoopRotatePass() Pass {
	return PerFunction("LoopRotate", loopRotate)
}

func loopRotate(f *ir.Function) {
	f.ComputeDominance()
	for _, l := range f.Loops() {
		rotateLoop(f, &l)
	}
}

func rotateLoop(f *ir.Function, l *ir.Loop) {
	h := l.Header
	term := h.Terminator()
	if term == nil || term.Kind != ir.KBranch || len(term.Attrs) < 1 {
		return
	}
	targetAttr, ok1 := term.Attr(ir.AttrTarget)
	elseAttr, ok2 := term.Attr(ir.AttrElse)
	if !ok1 || !ok2 {
		return
	}
	bodyTarget, exitTarget := targetAttr.Block(), elseAttr.Block()
	if l.Body[bodyTarget] == l.Body[exitTarget] {
		return // need exactly one of the two targets inside the loop
	}
	if !l.Body[bodyTarget] {
		bodyTarget, exitTarget = exitTarget, bodyTarget
	}
	if bodyTarget == h {
		return // degenerate single-block loop, nothing to rotate
	}

	var latch *ir.BasicBlock
	for _, p := range h.Preds {
		if l.Body[p] {
			if latch != nil {
				return // multiple latches, bail
			}
			latch = p
		}
	}
	if latch == nil || latch.Terminator() == nil || latch.Terminator().Kind != ir.KGoto {
		return
	}
	if len(h.Preds) != 2 {
		// Exactly one external entry plus the single latch, so the
		// preheader getOrCreatePreheader hands back needs no merge phi
		// of its own. More external entries would require one (not
		// built here); bail rather than mis-rotate.
		return
	}

	for _, o := range h.Ops {
		if o.Kind == ir.KPhi || o == term {
			continue
		}
		for _, u := range o.Uses() {
			if u.Block != h {
				return // header-local value escapes; too complex to rotate safely
			}
		}
	}

	preheader := getOrCreatePreheader(f, l)
	if preheader.Terminator() == nil || preheader.Terminator().Kind != ir.KGoto {
		return // preheader already has a non-trivial terminator (shouldn't happen)
	}

	entryOf := func(phi *ir.Op) *ir.Op { return phiOperandFor(phi, preheader) }
	latchOf := func(phi *ir.Op) *ir.Op { return phiOperandFor(phi, latch) }

	// Preheader and latch both keep their existing edge to h (the entry
	// and continuation cases respectively) and gain a new direct edge to
	// exitTarget (the zero-trip and loop-done cases) — h's own
	// predecessor set is unchanged by rotation, only its terminator is.
	ir.Erase(preheader.Terminator())
	bldP := ir.NewBuilder(f)
	bldP.SetInsertionPoint(preheader)
	preCond := cloneHeaderChain(bldP, h, term.Operands[0], entryOf)
	bldP.Create(ir.KBranch, ir.Unit, []*ir.Op{preCond}, []ir.Attr{ir.TargetAttr(h), ir.ElseAttr(exitTarget)})
	preheader.AddSucc(exitTarget)

	ir.Erase(latch.Terminator())
	bldL := ir.NewBuilder(f)
	bldL.SetInsertionPoint(latch)
	latchCond := cloneHeaderChain(bldL, h, term.Operands[0], latchOf)
	bldL.Create(ir.KBranch, ir.Unit, []*ir.Op{latchCond}, []ir.Attr{ir.TargetAttr(h), ir.ElseAttr(exitTarget)})
	latch.AddSucc(exitTarget)

	for _, phi := range append([]*ir.Op(nil), h.Ops...) {
		if phi.Kind != ir.KPhi {
			continue
		}
		var escaping []*ir.Op
		for _, u := range phi.Uses() {
			if !l.Body[u.Block] {
				escaping = append(escaping, u)
			}
		}
		if len(escaping) == 0 {
			continue
		}
		bldX := ir.NewBuilder(f)
		if len(exitTarget.Ops) > 0 {
			bldX.SetInsertionPointBefore(exitTarget.Ops[0])
		} else {
			bldX.SetInsertionPoint(exitTarget)
		}
		merged := bldX.Create(ir.KPhi, phi.ResultTy, []*ir.Op{entryOf(phi), latchOf(phi)},
			[]ir.Attr{ir.FromAttr(preheader), ir.FromAttr(latch)})
		for _, u := range escaping {
			replaceOperandValue(u, phi, merged)
		}
	}

	ir.Erase(term)
	bldH := ir.NewBuilder(f)
	bldH.SetInsertionPoint(h)
	bldH.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(bodyTarget)})
	h.RemoveSucc(exitTarget)
}

// replaceOperandValue rewrites every operand slot of o that currently
// holds old to hold v instead, fixing up use-sets through ReplaceOperand.
func replaceOperandValue(o *ir.Op, old, v *ir.Op) {
	for i, operand := range o.Operands {
		if operand == old {
			o.ReplaceOperand(i, v)
		}
	}
}

// phiOperandFor returns phi's incoming operand for the edge from pred, or
// nil if pred isn't one of phi's Froms.
func phiOperandFor(phi *ir.Op, pred *ir.BasicBlock) *ir.Op {
	froms := phi.Froms()
	for i, b := range froms {
		if b == pred && i < len(phi.Operands) {
			return phi.Operands[i]
		}
	}
	return nil
}

// cloneHeaderChain rebuilds h's non-phi ops (up to and including root, the
// branch condition) at bld's cursor, substituting every reference to one
// of h's own phis with phiVal(phi) instead of cloning the phi itself.
func cloneHeaderChain(bld *ir.Builder, h *ir.BasicBlock, root *ir.Op, phiVal func(*ir.Op) *ir.Op) *ir.Op {
	remap := map[*ir.Op]*ir.Op{}
	var clone func(o *ir.Op) *ir.Op
	clone = func(o *ir.Op) *ir.Op {
		if n, ok := remap[o]; ok {
			return n
		}
		if o.Block != h {
			remap[o] = o
			return o
		}
		if o.Kind == ir.KPhi {
			v := phiVal(o)
			remap[o] = v
			return v
		}
		operands := make([]*ir.Op, len(o.Operands))
		for i, v := range o.Operands {
			if v != nil {
				operands[i] = clone(v)
			}
		}
		n := bld.Create(o.Kind, o.ResultTy, operands, cloneAttrList(o.Attrs))
		remap[o] = n
		return n
	}
	return clone(root)
}
