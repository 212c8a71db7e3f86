package pipeline

import "sysyc/internal/ir"

// RaiseToForPass recognizes
// `store init -> while (load cmp bound) { ...; store (load+step) }` and
// rewrites it into a structured KFor with (start, stop, step, ivAddr)
// operands, matching the shape `internal/frontend` already produces
// directly for a source-level for-loop. This lets SCEV/LICM/Vectorize
// reason about a hand-written while-loop counter the same way they
// reason about a real for-loop.
//
// Simplification (recorded in DESIGN.md): the store and while must be
// adjacent in the same block, the condition must be `load(iv) < bound`
// or its mirror `bound > load(iv)` (ascending, exclusive bound — the only
// sense KFor's (start, stop, step, ivAddr) shape can represent; other
// `le`/`lt`/`gt`/`ge` while loops are left alone rather than risk
// changing their semantics), the
// increment must be the literal last op of the body
// (`store(iv, load(iv)+step)` or `step+load(iv)`), and bound/step must
// be pure chains that don't read any alloca the loop body itself stores
// to (so hoisting their evaluation to run once, before the loop, cannot
// change their value).
func RaiseToForPass() Pass {
	return PerFunction("RaiseToFor", raiseToFor)
}

func raiseToFor(f *ir.Function) {
	walkAllBlocks(f, func(b *ir.BasicBlock) { raiseToForBlock(f, b) })
}

func raiseToForBlock(f *ir.Function, b *ir.BasicBlock) {
	changed := true
	for changed {
		changed = false
		for i := 0; i+1 < len(b.Ops); i++ {
			store, whileOp := b.Ops[i], b.Ops[i+1]
			if tryRaiseToFor(f, store, whileOp) {
				changed = true
				break
			}
		}
	}
}

func tryRaiseToFor(f *ir.Function, store, whileOp *ir.Op) bool {
	if store.Kind != ir.KStore || whileOp.Kind != ir.KWhile || len(store.Operands) != 2 {
		return false
	}
	ivSlot, startVal := store.Operands[0], store.Operands[1]
	if ivSlot.Kind != ir.KAlloca || !isPureChain(startVal) {
		return false
	}
	if len(whileOp.Regions) != 2 || len(whileOp.Regions[0].Blocks) != 1 || len(whileOp.Regions[1].Blocks) != 1 {
		return false
	}
	condBlk, bodyBlk := whileOp.Regions[0].Blocks[0], whileOp.Regions[1].Blocks[0]
	if len(condBlk.Ops) == 0 || len(bodyBlk.Ops) == 0 {
		return false
	}
	condLast := condBlk.Ops[len(condBlk.Ops)-1]
	if condLast.Kind != ir.KBinOp || len(condLast.Operands) != 2 {
		return false
	}
	cmpName, ok := condLast.Attr(ir.AttrNameAttr)
	if !ok {
		return false
	}
	// Only a bare ascending "iv < bound" is safe to raise: KFor has no
	// comparison attr of its own, so FlattenCFG always lowers it that way.
	// "bound > iv" (mirrored operands) is the same relation and is fine;
	// le/gt/ge would silently change which iterations run.
	lhs, rhs := condLast.Operands[0], condLast.Operands[1]
	cmp := cmpName.Str()
	var boundVal *ir.Op
	switch {
	case cmp == "lt" && isLoadOf(lhs, ivSlot):
		boundVal = rhs
	case cmp == "gt" && isLoadOf(rhs, ivSlot):
		boundVal = lhs
	default:
		return false
	}
	if !isPureChain(boundVal) {
		return false
	}

	incStore := bodyBlk.Ops[len(bodyBlk.Ops)-1]
	if incStore.Kind != ir.KStore || len(incStore.Operands) != 2 || incStore.Operands[0] != ivSlot {
		return false
	}
	add := incStore.Operands[1]
	if add.Kind != ir.KBinOp || len(add.Operands) != 2 {
		return false
	}
	addName, ok := add.Attr(ir.AttrNameAttr)
	if !ok || addName.Str() != "add" {
		return false
	}
	var stepVal *ir.Op
	switch {
	case isLoadOf(add.Operands[0], ivSlot):
		stepVal = add.Operands[1]
	case isLoadOf(add.Operands[1], ivSlot):
		stepVal = add.Operands[0]
	default:
		return false
	}
	if !isPureChain(stepVal) {
		return false
	}

	forbidden := map[*ir.Op]bool{ivSlot: true}
	for _, o := range bodyBlk.Ops[:len(bodyBlk.Ops)-1] {
		if o.Kind == ir.KStore && len(o.Operands) == 2 && o.Operands[0].Kind == ir.KAlloca {
			forbidden[o.Operands[0]] = true
		}
	}
	if chainReadsForbidden(boundVal, forbidden) || chainReadsForbidden(stepVal, forbidden) {
		return false
	}

	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(store)
	remap := map[*ir.Op]*ir.Op{}
	stopClone := clonePureChain(bld, boundVal, remap)
	stepClone := clonePureChain(bld, stepVal, remap)
	forOp := bld.Create(ir.KFor, ir.Unit, []*ir.Op{startVal, stopClone, stepClone, ivSlot}, nil)

	bodyRegion := bld.CreateRegion(forOp)
	forBody := ir.NewBlock("body")
	bodyRegion.Append(forBody)
	kept := bodyBlk.Ops[:len(bodyBlk.Ops)-1]
	for _, o := range kept {
		o.Block = forBody
	}
	forBody.Ops = append([]*ir.Op(nil), kept...)
	bodyBlk.Ops = nil

	ir.Erase(store)
	ir.Erase(whileOp)
	return true
}

func isLoadOf(o *ir.Op, addr *ir.Op) bool {
	return o.Kind == ir.KLoad && len(o.Operands) == 1 && o.Operands[0] == addr
}

func chainReadsForbidden(o *ir.Op, forbidden map[*ir.Op]bool) bool {
	switch o.Kind {
	case ir.KAlloca:
		return forbidden[o]
	case ir.KLoad, ir.KUnOp, ir.KCast:
		return chainReadsForbidden(o.Operands[0], forbidden)
	case ir.KBinOp, ir.KGetElement:
		for _, v := range o.Operands {
			if chainReadsForbidden(v, forbidden) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
