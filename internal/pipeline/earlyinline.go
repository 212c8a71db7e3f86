package pipeline

import "sysyc/internal/ir"

// EarlyInlinePass inlines calls to small
// (≤200 ops) or at-most-once-marked callees, when non-recursive and with a
// single canonical return.
//
// Simplification (recorded in DESIGN.md): only straight-line callees — no
// nested KIf/KWhile/KFor regions — are inlined. A callee with structured
// control flow keeps its call site; RaiseToFor/FlattenCFG run later in the
// same pipeline and a structured-body inliner would have to either inline
// before or after flattening consistently across every caller, which this
// repo's simpler straight-line-only rule sidesteps.
func EarlyInlinePass() Pass {
	return Pass{Name: "EarlyInline", Run: func(m *ir.Module) {
		for _, f := range m.Functions {
			inlineEligibleCalls(f, m)
		}
	}}
}

func eligibleForInline(g *ir.Function) bool {
	entry := g.EntryBlock()
	if entry == nil || len(entry.Ops) == 0 {
		return false
	}
	for _, o := range entry.Ops {
		if len(o.Regions) > 0 {
			return false
		}
		if o.Kind == ir.KCall {
			if n, ok := o.Attr(ir.AttrNameAttr); ok && n.Str() == g.Name {
				return false
			}
		}
	}
	if entry.Ops[len(entry.Ops)-1].Kind != ir.KReturn {
		return false
	}
	return len(entry.Ops) <= 200 || g.AtMostOnce
}

func inlineEligibleCalls(f *ir.Function, m *ir.Module) {
	var blocks []*ir.BasicBlock
	walkAllBlocks(f, func(b *ir.BasicBlock) { blocks = append(blocks, b) })

	bld := ir.NewBuilder(f)
	changed := true
	for changed {
		changed = false
		for _, b := range blocks {
			for _, call := range append([]*ir.Op(nil), b.Ops...) {
				if call.Block == nil || call.Kind != ir.KCall {
					continue
				}
				name, ok := call.Attr(ir.AttrNameAttr)
				if !ok {
					continue
				}
				callee := m.FindFunction(name.Str())
				if callee == nil || callee == f || !eligibleForInline(callee) {
					continue
				}
				bld.SetInsertionPointBefore(call)
				inlineBody(bld, call, callee)
				changed = true
			}
		}
	}
}

func cloneAttrList(attrs []ir.Attr) []ir.Attr {
	out := make([]ir.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = a.Clone()
	}
	return out
}

// inlineBody splices callee's straight-line entry block into bld's cursor,
// remapping its param allocas to fresh caller-local allocas seeded with
// call's actual arguments, then erases call.
func inlineBody(bld *ir.Builder, call *ir.Op, callee *ir.Function) {
	entry := callee.EntryBlock()
	remap := map[*ir.Op]*ir.Op{}

	for i := 0; i < callee.NumArgs && i < len(entry.Ops) && i < len(call.Operands); i++ {
		param := entry.Ops[i]
		slot := bld.Create(ir.KAlloca, param.ResultTy, nil, cloneAttrList(param.Attrs))
		bld.Create(ir.KStore, ir.Unit, []*ir.Op{slot, call.Operands[i]}, nil)
		remap[param] = slot
	}

	var retVal *ir.Op
	for i := callee.NumArgs; i < len(entry.Ops); i++ {
		o := entry.Ops[i]
		if o.Kind == ir.KReturn {
			if len(o.Operands) == 1 {
				retVal = remap[o.Operands[0]]
			}
			break
		}
		operands := make([]*ir.Op, len(o.Operands))
		for j, v := range o.Operands {
			if v != nil {
				operands[j] = remap[v]
			}
		}
		remap[o] = bld.Create(o.Kind, o.ResultTy, operands, cloneAttrList(o.Attrs))
	}

	if call.HasUses() && retVal != nil {
		call.ReplaceAllUsesWith(retVal)
	}
	if call.Block != nil {
		ir.Erase(call)
	}
}
