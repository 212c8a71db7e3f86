package pipeline

import (
	"sysyc/internal/ir"
	"sysyc/internal/utils"
)

const vectorWidth = 4

// VectorizePass is a narrow four-wide vectorizer: a rotated
// loop with a single induction phi stepping by one, no calls, no branches
// inside, and a body that writes one i32 element per iteration through an
// affine subscript of that induction variable is widened to a stride-4
// loop doing four stores per iteration, plus a scalar epilogue loop
// covering however many trailing elements don't divide evenly by four.
//
// Simplifications (recorded in DESIGN.md): exactly one induction phi and
// a single-block body (the loop's body and its latch coincide, so the
// widened stores and the increment live in the same block); the
// subscript must be exactly the induction variable or induction-plus-
// constant (AttrSubscript's encoding, one coefficient plus a constant);
// any induction value must not escape past the loop (no exit phi). None
// of these narrow the scenario this pass targets — fixed-stride element
// loops with no cross-iteration scalar use — they only rule out shapes
// SCEV and LoopRotate don't currently produce anyway.
func VectorizePass() Pass {
	return PerFunction("Vectorize", vectorize)
}

func vectorize(f *ir.Function) {
	f.ComputeDominance()
	for _, l := range f.Loops() {
		tryVectorizeLoop(f, &l)
	}
}

func tryVectorizeLoop(f *ir.Function, l *ir.Loop) bool {
	preheader, latch, exit, ok := rotatedLoopEdges(l)
	if !ok || len(l.Body) != 2 {
		return false
	}
	h := l.Header
	phis := headerPhis(h)
	if len(phis) != 1 {
		return false
	}
	iv := phis[0]
	if step, ok := inductionStep(iv, l); !ok || step != 1 {
		return false
	}
	for _, o := range exit.Ops {
		if o.Kind == ir.KPhi {
			return false // an escaping induction value needs a real final iv; out of scope
		}
	}

	latchTerm := latch.Terminator()
	if latchTerm == nil || latchTerm.Kind != ir.KBranch {
		return false
	}
	cond := latchTerm.Operands[0]
	if cond.Kind != ir.KBinOp || len(cond.Operands) != 2 {
		return false
	}
	if name, ok := cond.Attr(ir.AttrNameAttr); !ok || name.Str() != "lt" {
		return false
	}
	boundOp := cond.Operands[1]
	incOp := cond.Operands[0]
	if phiOperandFor(iv, latch) != incOp {
		return false
	}

	preTerm := preheader.Terminator()
	if preTerm == nil || preTerm.Kind != ir.KBranch {
		return false
	}
	preCond := preTerm.Operands[0]
	if preCond.Kind != ir.KBinOp || len(preCond.Operands) != 2 || preCond.Operands[1] != boundOp {
		return false
	}

	startOp := phiOperandFor(iv, preheader)
	if startOp == nil {
		return false
	}

	store, reads, ok := vectorizableBody(latch, iv, latchTerm)
	if !ok {
		return false
	}
	addr := store.Operands[0]
	base, storeSub := addr.Operands[0], []int64{1, 0}
	val := store.Operands[1]
	if !pureGivenPhis(val, map[*ir.Op]bool{}) || l.Body[val.Block] {
		return false
	}
	if l.Body[base.Block] {
		return false
	}
	storeBases := resolveBases(addr, map[*ir.Op]bool{})
	for _, r := range reads {
		readSub, ok := subscriptOf(r.addr.Operands[1], iv)
		if !ok {
			return false
		}
		readBases := resolveBases(r.addr, map[*ir.Op]bool{})
		if readBases == nil || storeBases == nil {
			return false
		}
		if basesOverlap(readBases, storeBases) && utils.SubscriptDependence(readSub, storeSub) {
			return false // read and write may touch the same element within an iteration
		}
	}

	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(preTerm)
	four := bld.Create(ir.KConst, iv.ResultTy, nil, []ir.Attr{ir.IntAttr(vectorWidth)})
	span := bld.Create(ir.KBinOp, iv.ResultTy, []*ir.Op{boundOp, startOp}, []ir.Attr{ir.NameAttr("sub")})
	quads := bld.Create(ir.KBinOp, iv.ResultTy, []*ir.Op{span, four}, []ir.Attr{ir.NameAttr("div")})
	mainSpan := bld.Create(ir.KBinOp, iv.ResultTy, []*ir.Op{quads, four}, []ir.Attr{ir.NameAttr("mul")})
	bound4 := bld.Create(ir.KBinOp, iv.ResultTy, []*ir.Op{startOp, mainSpan}, []ir.Attr{ir.NameAttr("add")})

	replaceOperandValue(preCond, boundOp, bound4)
	replaceOperandValue(cond, boundOp, bound4)

	bldInc := ir.NewBuilder(f)
	bldInc.SetInsertionPointBefore(incOp)
	newInc := bldInc.Create(ir.KBinOp, iv.ResultTy, []*ir.Op{iv, four}, []ir.Attr{ir.NameAttr("add")})
	replaceOperandValue(iv, incOp, newInc)
	replaceOperandValue(cond, incOp, newInc)
	ir.Erase(incOp)

	widenStore(f, store, base, val, iv)

	buildScalarEpilogue(f, l, preheader, latch, exit, bound4, boundOp, base, val, addr)
	return true
}

type bodyRead struct{ addr *ir.Op }

// vectorizableBody scans the single body block (excluding the phi-header,
// already checked separately, and the latch terminator) for exactly the
// shape this pass widens: any number of loop-invariant/affine arithmetic
// ops, any number of i32 loads through a GetElement subscript, and
// exactly one i32 store through a GetElement subscript equal to iv.
func vectorizableBody(body *ir.BasicBlock, iv *ir.Op, term *ir.Op) (store *ir.Op, reads []bodyRead, ok bool) {
	for _, o := range body.Ops {
		if o == term {
			continue
		}
		switch o.Kind {
		case ir.KConst, ir.KBinOp, ir.KUnOp, ir.KCast, ir.KAddr, ir.KGetElement:
			// pure arithmetic/addressing, always permitted
		case ir.KLoad:
			if len(o.Operands) != 1 || o.Operands[0].Kind != ir.KGetElement {
				return nil, nil, false
			}
			reads = append(reads, bodyRead{addr: o.Operands[0]})
		case ir.KStore:
			if store != nil || len(o.Operands) != 2 || o.Operands[0].Kind != ir.KGetElement {
				return nil, nil, false
			}
			idx := o.Operands[0].Operands[1]
			if idx != iv {
				return nil, nil, false
			}
			store = o
		default:
			return nil, nil, false
		}
	}
	if store == nil {
		return nil, nil, false
	}
	return store, reads, true
}

// subscriptOf derives AttrSubscript's encoding (one coefficient on iv,
// one trailing constant) for idx, recognizing exactly iv and iv+k/k+iv.
func subscriptOf(idx *ir.Op, iv *ir.Op) ([]int64, bool) {
	if idx == iv {
		return []int64{1, 0}, true
	}
	if idx.Kind != ir.KBinOp || len(idx.Operands) != 2 {
		return nil, false
	}
	if name, ok := idx.Attr(ir.AttrNameAttr); !ok || name.Str() != "add" {
		return nil, false
	}
	lhs, rhs := idx.Operands[0], idx.Operands[1]
	if lhs == iv {
		if c, ok := intOf(rhs); ok {
			return []int64{1, c}, true
		}
	}
	if rhs == iv {
		if c, ok := intOf(lhs); ok {
			return []int64{1, c}, true
		}
	}
	return nil, false
}

func basesOverlap(a, b map[*ir.Op]bool) bool {
	for o := range a {
		if b[o] {
			return true
		}
	}
	return false
}

// widenStore turns the loop's single store into four, addressing
// base[iv], base[iv+1], base[iv+2], base[iv+3] with the same
// loop-invariant value — the "broadcast of loop-invariant scalars" the
// original vectorizer's four-wide stores rely on.
func widenStore(f *ir.Function, store, base, val, iv *ir.Op) {
	bld := ir.NewBuilder(f)
	for k := int64(1); k < vectorWidth; k++ {
		bld.SetInsertionPointBefore(store)
		kc := bld.Create(ir.KConst, iv.ResultTy, nil, []ir.Attr{ir.IntAttr(k)})
		idxK := bld.Create(ir.KBinOp, iv.ResultTy, []*ir.Op{iv, kc}, []ir.Attr{ir.NameAttr("add")})
		addrK := bld.Create(ir.KGetElement, store.Operands[0].ResultTy, []*ir.Op{base, idxK}, nil)
		bld.Create(ir.KStore, ir.Unit, []*ir.Op{addrK, val}, nil)
	}
}

// buildScalarEpilogue splices a plain stride-1 loop between the widened
// loop's two exits (preheader's zero-trip branch, latch's continuation
// branch) and the original exit block, covering the 0..3 elements left
// over when the trip count doesn't divide evenly by four. bound4 is the
// same value on both incoming edges (the vector loop's final processed
// index), so the epilogue's induction phi needs no other entry value.
func buildScalarEpilogue(f *ir.Function, l *ir.Loop, preheader, latch, exit *ir.BasicBlock, bound4, bound, base, val, addrTemplate *ir.Op) {
	epiHeader := ir.NewBlock(l.Header.Label + ".epi")
	f.Region.Append(epiHeader)
	epiBody := ir.NewBlock(l.Header.Label + ".epi.body")
	f.Region.Append(epiBody)

	retarget(preheader.Terminator(), exit, epiHeader)
	preheader.RemoveSucc(exit)
	preheader.AddSucc(epiHeader)
	retarget(latch.Terminator(), exit, epiHeader)
	latch.RemoveSucc(exit)
	latch.AddSucc(epiHeader)

	bld := ir.NewBuilder(f)
	bld.SetInsertionPoint(epiHeader)
	r := bld.Create(ir.KPhi, bound4.ResultTy, []*ir.Op{bound4, bound4, nil},
		[]ir.Attr{ir.FromAttr(preheader), ir.FromAttr(latch), ir.FromAttr(epiBody)})
	c := bld.Create(ir.KBinOp, bound4.ResultTy, []*ir.Op{r, bound}, []ir.Attr{ir.NameAttr("lt")})
	bld.Create(ir.KBranch, ir.Unit, []*ir.Op{c}, []ir.Attr{ir.TargetAttr(epiBody), ir.ElseAttr(exit)})
	epiHeader.AddSucc(epiBody)
	epiHeader.AddSucc(exit)

	bld.SetInsertionPoint(epiBody)
	addrR := bld.Create(ir.KGetElement, addrTemplate.ResultTy, []*ir.Op{base, r}, nil)
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{addrR, val}, nil)
	one := bld.Create(ir.KConst, bound4.ResultTy, nil, []ir.Attr{ir.IntAttr(1)})
	rNext := bld.Create(ir.KBinOp, bound4.ResultTy, []*ir.Op{r, one}, []ir.Attr{ir.NameAttr("add")})
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(epiHeader)})
	epiBody.AddSucc(epiHeader)
	r.ReplaceOperand(2, rNext)
}
