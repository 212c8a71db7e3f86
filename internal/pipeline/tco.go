package pipeline

import "sysyc/internal/ir"

// TCOPass recognizes a `return f(args)` tail call or
// a `return x op f(args)` accumulator pattern guarded by an if/else whose
// base case does not recurse, and rewrites the recursion into a WhileOp
// that continues by storing new argument values instead of calling again.
//
// Simplification (recorded in DESIGN.md): only the canonical shape is
// recognized — the function body is a single top-level If as the entry
// block's last op, the then-branch is the non-recursive base case, the
// else-branch ends in the tail expression, and every expression that must
// be re-evaluated per iteration (the guard, the accumulator's other
// operand, the call's arguments) is a "pure chain" per exprclone.go: loads
// of mutable slots, constants, and pure arithmetic, with no further calls
// or array indexing. This covers the textbook recursive-function shape
// (factorial, gcd, fibonacci-by-accumulator) without attempting a general
// tail-call analysis across arbitrary control flow.
func TCOPass() Pass {
	return PerFunction("TCO", applyTCO)
}

func blockReturn(b *ir.BasicBlock) *ir.Op {
	if b == nil || len(b.Ops) == 0 {
		return nil
	}
	last := b.Ops[len(b.Ops)-1]
	if last.Kind == ir.KReturn {
		return last
	}
	return nil
}

func containsSelfCall(b *ir.BasicBlock, name string) bool {
	for _, o := range b.Ops {
		if o.Kind == ir.KCall {
			if n, ok := o.Attr(ir.AttrNameAttr); ok && n.Str() == name {
				return true
			}
		}
	}
	return false
}

// decomposeTailExpr recognizes expr as either the recursive call itself or
// a commutative binary combination of the call's result with a pure
// "other" operand.
func decomposeTailExpr(expr *ir.Op, fnName string) (call *ir.Op, combineOp string, other *ir.Op, isAccum bool) {
	isSelfCall := func(o *ir.Op) bool {
		if o.Kind != ir.KCall {
			return false
		}
		n, ok := o.Attr(ir.AttrNameAttr)
		return ok && n.Str() == fnName
	}
	if isSelfCall(expr) {
		return expr, "", nil, false
	}
	if expr.Kind == ir.KBinOp && len(expr.Operands) == 2 {
		name, ok := expr.Attr(ir.AttrNameAttr)
		if !ok {
			return nil, "", nil, false
		}
		lhs, rhs := expr.Operands[0], expr.Operands[1]
		if isSelfCall(lhs) && isPureChain(rhs) {
			return lhs, name.Str(), rhs, true
		}
		if isSelfCall(rhs) && isPureChain(lhs) {
			return rhs, name.Str(), lhs, true
		}
	}
	return nil, "", nil, false
}

func identityFor(op string) (int64, bool) {
	switch op {
	case "add", "xor", "or":
		return 0, true
	case "mul":
		return 1, true
	default:
		return 0, false
	}
}

func applyTCO(f *ir.Function) {
	entry := f.EntryBlock()
	if entry == nil || len(entry.Ops) == 0 {
		return
	}
	ifOp := entry.Ops[len(entry.Ops)-1]
	if ifOp.Kind != ir.KIf || len(ifOp.Operands) != 1 || len(ifOp.Regions) != 2 {
		return
	}
	if !isPureChain(ifOp.Operands[0]) {
		return
	}
	if len(ifOp.Regions[0].Blocks) != 1 || len(ifOp.Regions[1].Blocks) != 1 {
		return
	}
	thenB, elseB := ifOp.Regions[0].Blocks[0], ifOp.Regions[1].Blocks[0]
	baseRet, elseRet := blockReturn(thenB), blockReturn(elseB)
	if baseRet == nil || elseRet == nil || len(baseRet.Operands) != 1 || len(elseRet.Operands) != 1 {
		return
	}
	if containsSelfCall(thenB, f.Name) || !containsSelfCall(elseB, f.Name) {
		return
	}
	call, combineOp, other, isAccum := decomposeTailExpr(elseRet.Operands[0], f.Name)
	if call == nil || len(call.Operands) != f.NumArgs {
		return
	}
	for _, a := range call.Operands {
		if !isPureChain(a) {
			return
		}
	}
	var identity int64
	if isAccum {
		var ok bool
		identity, ok = identityFor(combineOp)
		if !ok {
			return
		}
	}

	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(ifOp)

	var accAlloca *ir.Op
	if isAccum {
		accAlloca = bld.Create(ir.KAlloca, call.ResultTy, nil, []ir.Attr{ir.SizeAttr(int64(call.ResultTy.Size())), ir.NameAttr("__tco_acc")})
		initConst := bld.Create(ir.KConst, call.ResultTy, nil, []ir.Attr{ir.IntAttr(identity)})
		bld.Create(ir.KStore, ir.Unit, []*ir.Op{accAlloca, initConst}, nil)
	}

	wop := bld.Create(ir.KWhile, ir.Unit, nil, nil)
	remap := map[*ir.Op]*ir.Op{}

	condRegion := bld.CreateRegion(wop)
	condBlk := ir.NewBlock("cond")
	condRegion.Append(condBlk)
	condScope := bld.EnterScope()
	bld.SetInsertionPoint(condBlk)
	condClone := clonePureChain(bld, ifOp.Operands[0], remap)
	bld.Create(ir.KUnOp, ir.I32, []*ir.Op{condClone}, []ir.Attr{ir.NameAttr("not")})
	condScope.Exit()

	bodyRegion := bld.CreateRegion(wop)
	bodyBlk := ir.NewBlock("body")
	bodyRegion.Append(bodyBlk)
	bodyScope := bld.EnterScope()
	bld.SetInsertionPoint(bodyBlk)
	if isAccum {
		otherClone := clonePureChain(bld, other, remap)
		accLoad := bld.Create(ir.KLoad, call.ResultTy, []*ir.Op{accAlloca}, nil)
		newAcc := bld.Create(ir.KBinOp, call.ResultTy, []*ir.Op{accLoad, otherClone}, []ir.Attr{ir.NameAttr(combineOp)})
		bld.Create(ir.KStore, ir.Unit, []*ir.Op{accAlloca, newAcc}, nil)
	}
	newArgs := make([]*ir.Op, len(call.Operands))
	for i, a := range call.Operands {
		newArgs[i] = clonePureChain(bld, a, remap)
	}
	for i := 0; i < f.NumArgs; i++ {
		bld.Create(ir.KStore, ir.Unit, []*ir.Op{entry.Ops[i], newArgs[i]}, nil)
	}
	bodyScope.Exit()

	idx := -1
	for i, o := range entry.Ops {
		if o == ifOp {
			idx = i
			break
		}
	}
	baseVal := baseRet.Operands[0]

	prefix := thenB.Ops[:len(thenB.Ops)-1]
	for _, o := range prefix {
		o.Block = entry
	}
	ir.Erase(baseRet)
	thenB.Ops = nil
	next := make([]*ir.Op, 0, len(entry.Ops)+len(prefix))
	next = append(next, entry.Ops[:idx]...)
	next = append(next, prefix...)
	next = append(next, entry.Ops[idx:]...)
	entry.Ops = next

	bld.SetInsertionPointBefore(ifOp)
	var finalVal *ir.Op
	if isAccum {
		accFinal := bld.Create(ir.KLoad, call.ResultTy, []*ir.Op{accAlloca}, nil)
		finalVal = bld.Create(ir.KBinOp, call.ResultTy, []*ir.Op{accFinal, baseVal}, []ir.Attr{ir.NameAttr(combineOp)})
	} else {
		finalVal = baseVal
	}
	bld.Create(ir.KReturn, ir.Unit, []*ir.Op{finalVal}, nil)

	elseB.Ops = nil
	ir.Erase(ifOp)
}
