package pipeline

import (
	"fmt"

	"sysyc/internal/ir"
)

// ParallelizePass is a pre-opt pass, run before every other
// mid-level pass (it must see the structured KFor the front-end produces,
// not the flattened CFG FlattenCFG builds later), that finds a top-level
// loop over a fixed-size global array with no cross-iteration scalar
// dependency, splits its iteration range in half, and hands the first half
// to a freshly synthesized worker function spawned on its own thread while
// the rest of the current function runs the second half.
//
// Simplifications (recorded in DESIGN.md): only a KFor directly in a
// function's entry block is considered (no nested loops, no loops behind
// an If/While) and its body must be a single block of pure arithmetic plus
// loads/stores through a GetElement of a global array — no calls, no
// nested structured ops, no scalar (non-array) store. Rather than
// comparing full subscript affine vectors, this narrower, sufficient rule
// requires every access to the same base array to share one identical
// (coefficient, constant) subscript: two iterations i != j of a loop
// whose every access to base B takes the form B[i] touch disjoint
// elements regardless of where the range is cut, which is exactly the
// memset/elementwise-map shape an array-loop scenario like this
// describes. A body that reads one offset of a base and writes another
// (e.g. a prefix-sum's `arr[i] = arr[i-1] + x`) is conservatively left
// alone instead, since two distinct offsets into the same base always
// have some pair of iterations whose elements coincide once the range is
// split — utils.SubscriptDependence, built for comparing subscripts within
// one iteration (Vectorize's use), isn't the right tool for that
// range-disjointness question, so it is not invoked here.
func ParallelizePass() Pass {
	return Pass{Name: "Parallelize", Run: runParallelize}
}

func runParallelize(m *ir.Module) {
	for _, f := range append([]*ir.Function(nil), m.Functions...) {
		entry := f.EntryBlock()
		if entry == nil {
			continue
		}
		seq := 0 // workers are numbered per function, starting at 0
		for _, o := range append([]*ir.Op(nil), entry.Ops...) {
			if o.Kind != ir.KFor || o.Block == nil {
				continue
			}
			tryParallelizeFor(m, f, entry, o, &seq)
		}
	}
}

func tryParallelizeFor(m *ir.Module, f *ir.Function, host *ir.BasicBlock, forOp *ir.Op, seq *int) bool {
	if len(forOp.Regions) != 1 || len(forOp.Regions[0].Blocks) != 1 {
		return false
	}
	body := forOp.Regions[0].Blocks[0]
	ivSlot := forOp.Operands[3]
	startOp, stopOp, stepOp := forOp.Operands[0], forOp.Operands[1], forOp.Operands[2]

	if !globalOnlyChain(startOp) || !globalOnlyChain(stopOp) || !globalOnlyChain(stepOp) {
		return false
	}

	accesses, ok := parallelizableBody(body, ivSlot)
	if !ok || len(accesses) == 0 {
		return false
	}
	for _, subs := range accesses {
		first := subs[0]
		for _, s := range subs[1:] {
			if s[0] != first[0] || s[1] != first[1] {
				return false // differing offsets into the same base: possible cross-iteration flow dependency
			}
		}
	}

	workerName := fmt.Sprintf("__worker_%d_%s", *seq, f.Name)
	*seq++

	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(forOp)
	diff := bld.Create(ir.KBinOp, startOp.ResultTy, []*ir.Op{stopOp, startOp}, []ir.Attr{ir.NameAttr("sub")})
	two := bld.Create(ir.KConst, startOp.ResultTy, nil, []ir.Attr{ir.IntAttr(2)})
	half := bld.Create(ir.KBinOp, startOp.ResultTy, []*ir.Op{diff, two}, []ir.Attr{ir.NameAttr("div")})
	mid := bld.Create(ir.KBinOp, startOp.ResultTy, []*ir.Op{startOp, half}, []ir.Attr{ir.NameAttr("add")})

	worker := buildWorkerFunction(workerName, startOp, mid, stepOp, ivSlot, body)
	m.AddFunction(worker)

	bld.Create(ir.KClone, ir.Unit, nil, []ir.Attr{ir.NameAttr(workerName)})

	forOp.ReplaceOperand(0, mid)
	forOp.Attrs = append(forOp.Attrs, ir.ParallelizableAttr())

	insertAfterOp(f, host, forOp, func(b *ir.Builder) {
		b.Create(ir.KJoin, ir.Unit, nil, []ir.Attr{ir.NameAttr(workerName)})
	})
	return true
}

// globalOnlyChain reports whether o's entire dependency chain is built
// from constants and global addresses only — no function-local alloca
// (parameter or local variable), since a synthesized worker function has
// none of the current function's stack frame to reference.
func globalOnlyChain(o *ir.Op) bool {
	switch o.Kind {
	case ir.KConst, ir.KAddr:
		return true
	case ir.KLoad, ir.KUnOp, ir.KCast:
		return globalOnlyChain(o.Operands[0])
	case ir.KBinOp, ir.KGetElement:
		for _, v := range o.Operands {
			if !globalOnlyChain(v) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// parallelizableBody scans body for exactly the shape this pass splits:
// pure arithmetic/addressing, and loads/stores through a GetElement of a
// global array whose index is the loop's own induction variable (plus an
// optional constant). Returns, per base global name, every subscript
// (coefficient, constant) pair found; ok is false the moment anything
// outside this shape (a call, nested region, scalar store, or
// non-affine/non-global subscript) appears.
func parallelizableBody(body *ir.BasicBlock, ivSlot *ir.Op) (map[string][][2]int64, bool) {
	out := map[string][][2]int64{}
	for _, o := range body.Ops {
		if len(o.Regions) > 0 {
			return nil, false
		}
		switch o.Kind {
		case ir.KConst, ir.KBinOp, ir.KUnOp, ir.KCast, ir.KAddr, ir.KGetElement, ir.KLoad:
			if o.Kind == ir.KLoad && o.Operands[0].Kind == ir.KGetElement {
				name, sub, ok := subscriptAccess(o.Operands[0], ivSlot)
				if !ok {
					return nil, false
				}
				out[name] = append(out[name], sub)
			}
		case ir.KStore:
			if len(o.Operands) != 2 || o.Operands[0].Kind != ir.KGetElement {
				return nil, false // no plain scalar store: every write must be to an array element
			}
			name, sub, ok := subscriptAccess(o.Operands[0], ivSlot)
			if !ok {
				return nil, false
			}
			out[name] = append(out[name], sub)
		default:
			return nil, false
		}
	}
	return out, true
}

// subscriptAccess derives the (global name, [coefficient, constant])
// descriptor for a GetElement(KAddr(global), idx) address, recognizing idx
// of exactly load(ivSlot) or load(ivSlot) +/- a literal constant.
func subscriptAccess(addr *ir.Op, ivSlot *ir.Op) (string, [2]int64, bool) {
	if len(addr.Operands) != 2 || addr.Operands[0].Kind != ir.KAddr {
		return "", [2]int64{}, false
	}
	name, ok := addr.Operands[0].Attr(ir.AttrNameAttr)
	if !ok {
		return "", [2]int64{}, false
	}
	idx := addr.Operands[1]
	isIV := func(o *ir.Op) bool {
		return o.Kind == ir.KLoad && len(o.Operands) == 1 && o.Operands[0] == ivSlot
	}
	if isIV(idx) {
		return name.Str(), [2]int64{1, 0}, true
	}
	if idx.Kind != ir.KBinOp || len(idx.Operands) != 2 {
		return "", [2]int64{}, false
	}
	opName, ok := idx.Attr(ir.AttrNameAttr)
	if !ok || (opName.Str() != "add" && opName.Str() != "sub") {
		return "", [2]int64{}, false
	}
	lhs, rhs := idx.Operands[0], idx.Operands[1]
	if isIV(lhs) {
		if c, ok := intOf(rhs); ok {
			if opName.Str() == "sub" {
				c = -c
			}
			return name.Str(), [2]int64{1, c}, true
		}
	}
	if isIV(rhs) && opName.Str() == "add" {
		if c, ok := intOf(lhs); ok {
			return name.Str(), [2]int64{1, c}, true
		}
	}
	return "", [2]int64{}, false
}

// buildWorkerFunction synthesizes a zero-argument function that runs the
// loop's first half ([start, mid)) and releases its wake signal on exit.
// Every reference to the original loop's induction-variable alloca is
// remapped to a fresh alloca local to the worker; everything else in the
// cloned body (global addresses, constants, arithmetic) is rebuilt
// verbatim, since globalOnlyChain already proved it needs no other piece
// of the caller's stack frame.
func buildWorkerFunction(name string, start, mid, step, ivSlot *ir.Op, body *ir.BasicBlock) *ir.Function {
	worker := ir.NewFunction(name, nil, ir.Unit)
	entry := ir.NewBlock("entry")
	worker.Region.Append(entry)
	bld := ir.NewBuilder(worker)
	bld.SetInsertionPoint(entry)

	remap := map[*ir.Op]*ir.Op{}
	startC := clonePureChain(bld, start, remap)
	midC := clonePureChain(bld, mid, remap)
	stepC := clonePureChain(bld, step, remap)
	newIVSlot := bld.Create(ir.KAlloca, ivSlot.ResultTy, nil, cloneAttrList(ivSlot.Attrs))
	remap[ivSlot] = newIVSlot

	forOp := bld.Create(ir.KFor, ir.Unit, []*ir.Op{startC, midC, stepC, newIVSlot}, nil)
	region := bld.CreateRegion(forOp)
	workerBody := ir.NewBlock("body")
	region.Append(workerBody)

	scope := bld.EnterScope()
	bld.SetInsertionPoint(workerBody)
	cloneBodyInto(bld, body.Ops, remap)
	scope.Exit()

	bld.Create(ir.KWake, ir.Unit, nil, []ir.Attr{ir.NameAttr(name)})
	bld.Create(ir.KReturn, ir.Unit, nil, nil)
	return worker
}

// cloneBodyInto rebuilds src's ops in order at bld's cursor, remapping
// each operand through remap (already-cloned producers, or the loop's
// induction slot) and recording every clone so later ops in src can find
// their already-rebuilt operands.
func cloneBodyInto(bld *ir.Builder, src []*ir.Op, remap map[*ir.Op]*ir.Op) {
	for _, o := range src {
		operands := make([]*ir.Op, len(o.Operands))
		for i, v := range o.Operands {
			if v == nil {
				continue
			}
			if nv, ok := remap[v]; ok {
				operands[i] = nv
			} else {
				operands[i] = v
			}
		}
		n := bld.Create(o.Kind, o.ResultTy, operands, cloneAttrList(o.Attrs))
		remap[o] = n
	}
}

// insertAfterOp runs build with the builder's cursor positioned just after
// mark in host, restoring nothing afterward (the caller is done with the
// builder once build returns).
func insertAfterOp(f *ir.Function, host *ir.BasicBlock, mark *ir.Op, build func(*ir.Builder)) {
	bld := ir.NewBuilder(f)
	for i, o := range host.Ops {
		if o == mark {
			if i+1 < len(host.Ops) {
				bld.SetInsertionPointBefore(host.Ops[i+1])
			} else {
				bld.SetInsertionPoint(host)
			}
			build(bld)
			return
		}
	}
}
