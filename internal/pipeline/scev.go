package pipeline

import "sysyc/internal/ir"

// SCEVPass, for every natural loop, tags each
// induction-style header phi with an AttrStep attribute giving its
// per-iteration increase. No pass in this pipeline reads the tag:
// Vectorize derives a phi's stride itself through inductionStep.
//
// Simplification (recorded in DESIGN.md): only degree-1 (affine, constant
// step) recurrences are recognized — `phi = phi + c` or `phi = c + phi`
// for a literal constant c, matching the induction variable a for-loop
// normally produces. A degree-2 recurrence (the original's "increase
// attribute... degree 1 or 2") is left untagged; nothing downstream in
// this pipeline currently consumes one. The original's address-expression
// rewrite (replacing a recomputed `base + i*stride` with an
// incrementally-updated pointer phi) is not attempted either — Vectorize
// (subscriptOf, checked with SubscriptDependence) and Parallelize
// (subscriptAccess) both read subscripts directly off the GetElement
// chain instead of requiring a materialized address phi, so the rewrite
// has no consumer in this codebase.
func SCEVPass() Pass {
	return PerFunction("SCEV", runSCEV)
}

func runSCEV(f *ir.Function) {
	f.ComputeDominance()
	for _, l := range f.Loops() {
		tagInductionPhis(f, &l)
	}
}

func tagInductionPhis(f *ir.Function, l *ir.Loop) {
	for _, o := range l.Header.Ops {
		if o.Kind != ir.KPhi {
			continue
		}
		step, ok := inductionStep(o, l)
		if !ok {
			continue
		}
		if _, has := o.Attr(ir.AttrStep); has {
			continue
		}
		o.Attrs = append(o.Attrs, ir.StepAttr([]int64{step}))
	}
}

// inductionStep recognizes phi = phi + c / c + phi on every in-loop
// incoming edge, returning the shared constant c.
func inductionStep(phi *ir.Op, l *ir.Loop) (int64, bool) {
	froms := phi.Froms()
	var step int64
	found := false
	for i, pred := range froms {
		if !l.Body[pred] {
			continue
		}
		v := phi.Operands[i]
		if v == nil || v.Kind != ir.KBinOp || len(v.Operands) != 2 {
			return 0, false
		}
		name, ok := v.Attr(ir.AttrNameAttr)
		if !ok || name.Str() != "add" {
			return 0, false
		}
		lhs, rhs := v.Operands[0], v.Operands[1]
		var c int64
		switch {
		case lhs == phi:
			cv, ok := intOf(rhs)
			if !ok {
				return 0, false
			}
			c = cv
		case rhs == phi:
			cv, ok := intOf(lhs)
			if !ok {
				return 0, false
			}
			c = cv
		default:
			return 0, false
		}
		if found && c != step {
			return 0, false
		}
		step, found = c, true
	}
	return step, found
}
