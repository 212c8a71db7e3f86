package pipeline

import "sysyc/internal/ir"

// isPureChain reports whether o's whole operand dependency chain is made
// of side-effect-free, re-evaluatable ops (constants, loads of a mutable
// slot, pure arithmetic) — the class of expression TCO and SCEV are
// willing to duplicate into a loop body/condition without changing
// program behavior. A KAlloca is a pure leaf: it names a mutable slot by
// identity, not a value to recompute.
func isPureChain(o *ir.Op) bool {
	switch o.Kind {
	case ir.KConst, ir.KAddr, ir.KAlloca:
		return true
	case ir.KLoad, ir.KUnOp, ir.KCast:
		return isPureChain(o.Operands[0])
	case ir.KBinOp, ir.KGetElement:
		for _, v := range o.Operands {
			if !isPureChain(v) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// clonePureChain rebuilds root's dependency chain at bld's cursor,
// memoizing already-cloned nodes in remap. A KAlloca is never cloned —
// every reference shares the same mutable slot, which is the point of
// re-evaluating a loop condition/argument each iteration.
func clonePureChain(bld *ir.Builder, root *ir.Op, remap map[*ir.Op]*ir.Op) *ir.Op {
	if n, ok := remap[root]; ok {
		return n
	}
	if root.Kind == ir.KAlloca {
		remap[root] = root
		return root
	}
	operands := make([]*ir.Op, len(root.Operands))
	for i, v := range root.Operands {
		operands[i] = clonePureChain(bld, v, remap)
	}
	n := bld.Create(root.Kind, root.ResultTy, operands, cloneAttrList(root.Attrs))
	remap[root] = n
	return n
}
