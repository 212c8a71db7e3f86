package pipeline

import "sysyc/internal/ir"

// FlattenCFGPass lowers the structured
// IfOp/WhileOp/ForOp dialect into an explicit CFG of basic blocks wired
// with KBranch/KGoto/KRet, so every later pass (Mem2Reg onward) sees a
// single flat region per function instead of nested regions.
//
// KReturn/KBreak/KContinue are structured terminators too (per
// Kind.IsTerminator) and are rewritten here alongside the regions that
// contain them: KReturn becomes KRet, and KBreak/KContinue become a
// KGoto to the innermost enclosing loop's break/continue target, tracked
// on a stack as loops are entered and left.
//
// No KPhi is synthesized: this dialect keeps every mutable variable in
// an alloca (load/store), so no value needs to merge across the new
// edges this pass introduces. SSA construction proper — turning those
// loads/stores into phis — is Mem2Reg's job, not this one's.
//
// Simplification (recorded in DESIGN.md): a WhileOp's cond region is
// assumed straight-line (no nested structured ops) — true of every cond
// region this front-end ever produces, since expression lowering never
// emits IfOp/WhileOp/ForOp — so only a body region needs the full
// recursive treatment. ForOp is lowered as an ascending, exclusive-bound
// counted loop (`iv < stop`, `iv += step`), matching the only sense its
// (start, stop, step, ivAddr) operand shape can represent.
func FlattenCFGPass() Pass {
	return PerFunction("FlattenCFG", flattenCFG)
}

type loopTargets struct {
	continueTo *ir.BasicBlock
	breakTo    *ir.BasicBlock
}

type flattener struct {
	f     *ir.Function
	loops []loopTargets
}

func flattenCFG(f *ir.Function) {
	fl := &flattener{f: f}
	entry := f.EntryBlock()
	src := append([]*ir.Op(nil), entry.Ops...)
	exit := fl.run(src, entry)
	if exit != nil && exit.Terminator() == nil {
		bld := ir.NewBuilder(f)
		bld.SetInsertionPoint(exit)
		bld.Create(ir.KRet, ir.Unit, nil, nil)
	}
	fl.dedupeTrivialBlocks()
}

// dedupeTrivialBlocks removes blocks whose entire body is a single
// unconditional KGoto, redirecting every predecessor straight to the
// goto's target instead. Synthetic join points (if.end, while.end, ...)
// frequently end up like this when one arm of a branch already falls
// through to them directly.
func (fl *flattener) dedupeTrivialBlocks() {
	entry := fl.f.EntryBlock()
	changed := true
	for changed {
		changed = false
		for _, b := range append([]*ir.BasicBlock(nil), fl.f.Region.Blocks...) {
			if b == entry || len(b.Ops) != 1 || b.Ops[0].Kind != ir.KGoto {
				continue
			}
			targetAttr, ok := b.Ops[0].Attr(ir.AttrTarget)
			if !ok {
				continue
			}
			target := targetAttr.Block()
			if target == b {
				continue
			}
			for _, p := range append([]*ir.BasicBlock(nil), b.Preds...) {
				retarget(p.Terminator(), b, target)
				p.RemoveSucc(b)
				p.AddSucc(target)
			}
			fl.f.Region.Remove(b)
			changed = true
		}
	}
}

// retarget rewrites every Target/Else attr of term that points at from so
// it points at to instead, releasing the stale attr handle.
func retarget(term *ir.Op, from, to *ir.BasicBlock) {
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

func (fl *flattener) newBlock(label string) *ir.BasicBlock {
	b := ir.NewBlock(label)
	fl.f.Region.Append(b)
	return b
}

func (fl *flattener) emitGoto(cur, target *ir.BasicBlock) {
	bld := ir.NewBuilder(fl.f)
	bld.SetInsertionPoint(cur)
	bld.Create(ir.KGoto, ir.Unit, nil, []ir.Attr{ir.TargetAttr(target)})
	cur.AddSucc(target)
}

// run flattens the straight-line sequence ops — the body of some
// structured block — into cur, which is already linked into
// fl.f.Region. It returns the block left open for whatever follows ops
// in the enclosing scope, or nil if control never falls off the end
// (every path returned, broke, or continued).
func (fl *flattener) run(ops []*ir.Op, cur *ir.BasicBlock) *ir.BasicBlock {
	cur.Ops = nil
	for i := 0; i < len(ops); i++ {
		o := ops[i]
		switch o.Kind {
		case ir.KIf:
			return fl.flattenIf(o, cur, ops[i+1:])
		case ir.KWhile:
			return fl.flattenWhile(o, cur, ops[i+1:])
		case ir.KFor:
			return fl.flattenFor(o, cur, ops[i+1:])
		case ir.KReturn:
			bld := ir.NewBuilder(fl.f)
			bld.SetInsertionPoint(cur)
			bld.Create(ir.KRet, ir.Unit, o.Operands, nil)
			return nil
		case ir.KBreak:
			fl.emitGoto(cur, fl.loops[len(fl.loops)-1].breakTo)
			return nil
		case ir.KContinue:
			fl.emitGoto(cur, fl.loops[len(fl.loops)-1].continueTo)
			return nil
		default:
			o.Block = cur
			cur.Ops = append(cur.Ops, o)
		}
	}
	return cur
}

func (fl *flattener) flattenIf(ifOp *ir.Op, cur *ir.BasicBlock, rest []*ir.Op) *ir.BasicBlock {
	thenSrc := ifOp.Regions[0].Blocks[0].Ops
	hasElse := len(ifOp.Regions) > 1 && len(ifOp.Regions[1].Blocks) > 0
	var elseSrc []*ir.Op
	if hasElse {
		elseSrc = ifOp.Regions[1].Blocks[0].Ops
	}

	thenEntry := fl.newBlock("if.then")
	var elseEntry *ir.BasicBlock
	if hasElse {
		elseEntry = fl.newBlock("if.else")
	}

	var contBlk *ir.BasicBlock
	cont := func() *ir.BasicBlock {
		if contBlk == nil {
			contBlk = fl.newBlock("if.end")
		}
		return contBlk
	}

	elseTarget := elseEntry
	if elseTarget == nil {
		elseTarget = cont()
	}

	bld := ir.NewBuilder(fl.f)
	bld.SetInsertionPoint(cur)
	bld.Create(ir.KBranch, ir.Unit, []*ir.Op{ifOp.Operands[0]}, []ir.Attr{ir.TargetAttr(thenEntry), ir.ElseAttr(elseTarget)})
	cur.AddSucc(thenEntry)
	cur.AddSucc(elseTarget)

	if thenExit := fl.run(thenSrc, thenEntry); thenExit != nil {
		fl.emitGoto(thenExit, cont())
	}
	if hasElse {
		if elseExit := fl.run(elseSrc, elseEntry); elseExit != nil {
			fl.emitGoto(elseExit, cont())
		}
	}

	if contBlk == nil {
		// Both arms terminate: whatever follows the if in the original
		// block is unreachable.
		return nil
	}
	return fl.run(rest, contBlk)
}

func (fl *flattener) flattenWhile(whileOp *ir.Op, cur *ir.BasicBlock, rest []*ir.Op) *ir.BasicBlock {
	condEntry := fl.newBlock("while.cond")
	bodyEntry := fl.newBlock("while.body")
	contBlk := fl.newBlock("while.end")

	fl.emitGoto(cur, condEntry)

	condSrc := whileOp.Regions[0].Blocks[0].Ops
	for _, o := range condSrc {
		o.Block = condEntry
	}
	condEntry.Ops = append([]*ir.Op(nil), condSrc...)
	truth := condSrc[len(condSrc)-1]

	bld := ir.NewBuilder(fl.f)
	bld.SetInsertionPoint(condEntry)
	bld.Create(ir.KBranch, ir.Unit, []*ir.Op{truth}, []ir.Attr{ir.TargetAttr(bodyEntry), ir.ElseAttr(contBlk)})
	condEntry.AddSucc(bodyEntry)
	condEntry.AddSucc(contBlk)

	fl.loops = append(fl.loops, loopTargets{continueTo: condEntry, breakTo: contBlk})
	bodyExit := fl.run(whileOp.Regions[1].Blocks[0].Ops, bodyEntry)
	fl.loops = fl.loops[:len(fl.loops)-1]
	if bodyExit != nil {
		fl.emitGoto(bodyExit, condEntry)
	}

	return fl.run(rest, contBlk)
}

func (fl *flattener) flattenFor(forOp *ir.Op, cur *ir.BasicBlock, rest []*ir.Op) *ir.BasicBlock {
	start, stop, step, ivAddr := forOp.Operands[0], forOp.Operands[1], forOp.Operands[2], forOp.Operands[3]

	condEntry := fl.newBlock("for.cond")
	bodyEntry := fl.newBlock("for.body")
	incEntry := fl.newBlock("for.inc")
	contBlk := fl.newBlock("for.end")

	bld := ir.NewBuilder(fl.f)
	bld.SetInsertionPoint(cur)
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{ivAddr, start}, nil)
	fl.emitGoto(cur, condEntry)

	bld.SetInsertionPoint(condEntry)
	ivLoad := bld.Create(ir.KLoad, ivAddr.ResultTy, []*ir.Op{ivAddr}, nil)
	cmp := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{ivLoad, stop}, []ir.Attr{ir.NameAttr("lt")})
	bld.Create(ir.KBranch, ir.Unit, []*ir.Op{cmp}, []ir.Attr{ir.TargetAttr(bodyEntry), ir.ElseAttr(contBlk)})
	condEntry.AddSucc(bodyEntry)
	condEntry.AddSucc(contBlk)

	fl.loops = append(fl.loops, loopTargets{continueTo: incEntry, breakTo: contBlk})
	bodyExit := fl.run(forOp.Regions[0].Blocks[0].Ops, bodyEntry)
	fl.loops = fl.loops[:len(fl.loops)-1]
	if bodyExit != nil {
		fl.emitGoto(bodyExit, incEntry)
	}

	bld.SetInsertionPoint(incEntry)
	curLoad := bld.Create(ir.KLoad, ivAddr.ResultTy, []*ir.Op{ivAddr}, nil)
	next := bld.Create(ir.KBinOp, ivAddr.ResultTy, []*ir.Op{curLoad, step}, []ir.Attr{ir.NameAttr("add")})
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{ivAddr, next}, nil)
	fl.emitGoto(incEntry, condEntry)

	return fl.run(rest, contBlk)
}
