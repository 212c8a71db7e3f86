// Package arm64 is the AArch64 machine dialect and its back-end pipeline
// (Lower, StrengthReduct, InstCombine, DCE, register allocation,
// RegPeephole+Tidyup, LateLegalize, Dump), operating on the ir.Kind
// values above kArm64Base.
package arm64

import "sysyc/internal/ir"

// intArgRegs/floatArgRegs are the first 8 integer/float argument
// registers, per the AAPCS64 calling convention.
var intArgRegs = []string{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"}
var floatArgRegs = []string{"v0", "v1", "v2", "v3", "v4", "v5", "v6", "v7"}

// gprPool/fpPool is the allocator's usable register order: temp-first
// for leaf functions (cheaper for the common case of a leaf function),
// callee-saved registers last since
// a leaf function never needs to save them.
var gprPool = []string{"x9", "x10", "x11", "x12", "x13", "x14", "x15",
	"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7",
	"x19", "x20", "x21", "x22", "x23", "x24", "x25", "x26", "x27"}
var fpPool = []string{"v16", "v17", "v18", "v19", "v20", "v21", "v22", "v23",
	"v0", "v1", "v2", "v3", "v4", "v5", "v6", "v7",
	"v8", "v9", "v10", "v11", "v12", "v13", "v14", "v15"}

// callerSaved is the set of allocatable registers a call clobbers: x0-x7,
// x9-x15, v0-v7 and v16-v23 (the other caller-saved registers are never
// handed out by gprPool/fpPool).
var callerSaved = append(append([]string{}, intArgRegs...), append([]string{
	"x9", "x10", "x11", "x12", "x13", "x14", "x15",
	"v16", "v17", "v18", "v19", "v20", "v21", "v22", "v23",
}, floatArgRegs...)...)

type frame struct {
	next int64 // next free stack offset, 8-byte granularity
}

func (fr *frame) alloc(size int64) int64 {
	off := fr.next
	fr.next += align8(size)
	return off
}

func align8(n int64) int64 {
	if n <= 0 {
		return 8
	}
	return (n + 7) &^ 7
}

// Lower materializes the calling convention (incoming
// args, outgoing call args, the return value), rewrites KAlloca to a
// frame offset, and substitutes every remaining high-level op with its
// direct AArch64 equivalent.
//
// Simplification (recorded in DESIGN.md): internal/frontend/lower.go's
// documented convention is that a function's parameters surface, after
// Mem2Reg, as the function's first NumArgs entry-block ops — either the
// zero-const Mem2Reg synthesizes for a promoted scalar param, or the
// original (non-promotable, DimsAttr-carrying) KAlloca for an array
// param, in declaration order with nothing else interleaved ahead of
// them. Lower collects exactly that leading run instead of threading a
// separate side-channel through Mem2Reg.
func Lower(f *ir.Function) {
	fr := &frame{}
	materializeArgs(f, fr)
	lowerAllocas(f, fr)
	lowerBody(f)
}

// collectParamPlaceholders returns, in declaration order, the op each
// parameter currently surfaces as (see Lower's doc comment).
func collectParamPlaceholders(f *ir.Function) []*ir.Op {
	entry := f.EntryBlock()
	if entry == nil || f.NumArgs == 0 {
		return nil
	}
	var out []*ir.Op
	for _, o := range entry.Ops {
		if len(out) == f.NumArgs {
			break
		}
		if o.Kind == ir.KConst || o.Kind == ir.KAlloca {
			out = append(out, o)
		}
	}
	return out
}

func materializeArgs(f *ir.Function, fr *frame) {
	placeholders := collectParamPlaceholders(f)
	entry := f.EntryBlock()
	if entry == nil {
		return
	}
	bld := ir.NewBuilder(f)
	intIdx, fpIdx := 0, 0
	for i, ph := range placeholders {
		ty := f.ParamTypes[i]
		var reg string
		if ty.IsFloat() {
			if fpIdx < len(floatArgRegs) {
				reg = floatArgRegs[fpIdx]
			}
			fpIdx++
		} else {
			if intIdx < len(intArgRegs) {
				reg = intArgRegs[intIdx]
			}
			intIdx++
		}
		bld.SetInsertionPointBefore(entry.Ops[0])
		var arg *ir.Op
		if reg != "" {
			arg = bld.Create(ir.AGetArg, ty, nil, []ir.Attr{ir.IntAttr(int64(i)), ir.RegAttr(reg)})
		} else {
			// Beyond the 8th register of its class: the caller placed this
			// argument on the stack, at a fixed positive offset above the
			// frame (documented simplification: loaded directly here rather
			// than threaded through the allocator as an ordinary spill, since
			// it is the caller's slot, not this function's).
			off := fr.alloc(8)
			arg = bld.Create(ir.ALdrSp, ty, nil, []ir.Attr{ir.StackOffsetAttr(off)})
		}
		ph.ReplaceAllUsesWith(arg)
		if ph.Block != nil {
			ir.Erase(ph)
		}
	}
}

// lowerAllocas rewrites every surviving KAlloca (an array, or a scalar
// whose address escaped Mem2Reg) to a frame-relative address op.
func lowerAllocas(f *ir.Function, fr *frame) {
	entry := f.EntryBlock()
	if entry == nil {
		return
	}
	for _, o := range append([]*ir.Op(nil), entry.Ops...) {
		if o.Kind != ir.KAlloca {
			continue
		}
		size := int64(o.ResultTy.Size())
		if d, ok := o.Attr(ir.AttrDims); ok {
			n := int64(1)
			for _, dim := range d.Dims() {
				n *= int64(dim)
			}
			size *= n
		}
		off := fr.alloc(size)
		bld := ir.NewBuilder(f)
		bld.SetInsertionPointBefore(o)
		addr := bld.Create(ir.AAddImm, ir.I64, nil, []ir.Attr{ir.StackOffsetAttr(off)})
		o.ReplaceAllUsesWith(addr)
		ir.Erase(o)
	}
}

func lowerBody(f *ir.Function) {
	for _, b := range f.Blocks() {
		for _, o := range append([]*ir.Op(nil), b.Ops...) {
			lowerOp(f, o)
		}
	}
}

func lowerOp(f *ir.Function, o *ir.Op) {
	switch o.Kind {
	case ir.KConst:
		lowerConst(f, o)
	case ir.KBinOp:
		lowerBinOp(f, o)
	case ir.KUnOp:
		lowerUnOp(f, o)
	case ir.KLoad:
		replaceKind(f, o, ir.ALdr, o.Operands, nil)
	case ir.KStore:
		replaceKind(f, o, ir.AStr, []*ir.Op{o.Operands[1], o.Operands[0]}, nil) // (value, addr)
	case ir.KAddr:
		name, _ := o.Attr(ir.AttrNameAttr)
		replaceKind(f, o, ir.AMov, nil, []ir.Attr{ir.NameAttr(name.Str())})
	case ir.KCall:
		lowerCall(f, o)
	case ir.KRet:
		lowerRet(f, o)
	case ir.KBranch:
		lowerBranch(f, o)
	case ir.KGoto:
		target, _ := o.Attr(ir.AttrTarget)
		replaceKind(f, o, ir.AB, nil, []ir.Attr{ir.TargetAttr(target.Block())})
	case ir.KClone:
		replaceKind(f, o, ir.AClone, o.Operands, cloneAttrsOf(o))
	case ir.KJoin:
		replaceKind(f, o, ir.AJoin, o.Operands, cloneAttrsOf(o))
	case ir.KWake:
		replaceKind(f, o, ir.AWake, o.Operands, cloneAttrsOf(o))
	}
}

func cloneAttrsOf(o *ir.Op) []ir.Attr {
	out := make([]ir.Attr, len(o.Attrs))
	for i, a := range o.Attrs {
		out[i] = a.Clone()
	}
	return out
}

// replaceKind builds a fresh op of kind k with the given operands/attrs,
// splices it in place of o, and erases o.
func replaceKind(f *ir.Function, o *ir.Op, k ir.Kind, operands []*ir.Op, attrs []ir.Attr) *ir.Op {
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)
	n := bld.Create(k, o.ResultTy, operands, attrs)
	o.ReplaceAllUsesWith(n)
	ir.Erase(o)
	return n
}

func lowerConst(f *ir.Function, o *ir.Op) {
	if o.ResultTy.IsFloat() {
		v, _ := o.Attr(ir.AttrFloat)
		replaceKind(f, o, ir.AFmov, nil, []ir.Attr{ir.FloatAttr(v.Float())})
		return
	}
	v, _ := o.Attr(ir.AttrInt)
	replaceKind(f, o, ir.AMovz, nil, []ir.Attr{ir.IntAttr(v.Int())})
}

func lowerUnOp(f *ir.Function, o *ir.Op) {
	name, _ := o.Attr(ir.AttrNameAttr)
	x := o.Operands[0]
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)
	switch name.Str() {
	case "neg":
		zero := bld.Create(ir.AMovz, o.ResultTy, nil, []ir.Attr{ir.IntAttr(0)})
		replaceKind(f, o, ir.ASub, []*ir.Op{zero, x}, nil)
	case "not":
		ones := bld.Create(ir.AMovn, o.ResultTy, nil, []ir.Attr{ir.IntAttr(0)})
		replaceKind(f, o, ir.AEor, []*ir.Op{x, ones}, nil)
	}
}

func lowerBinOp(f *ir.Function, o *ir.Op) {
	name, _ := o.Attr(ir.AttrNameAttr)
	lhs, rhs := o.Operands[0], o.Operands[1]
	float := o.ResultTy.IsFloat() || lhs.ResultTy.IsFloat()
	switch name.Str() {
	case "add":
		if float {
			replaceKind(f, o, ir.AFadd, []*ir.Op{lhs, rhs}, nil)
		} else {
			replaceKind(f, o, ir.AAdd, []*ir.Op{lhs, rhs}, nil)
		}
	case "sub":
		if float {
			replaceKind(f, o, ir.AFsub, []*ir.Op{lhs, rhs}, nil)
		} else {
			replaceKind(f, o, ir.ASub, []*ir.Op{lhs, rhs}, nil)
		}
	case "mul":
		if float {
			replaceKind(f, o, ir.AFmul, []*ir.Op{lhs, rhs}, nil)
		} else {
			replaceKind(f, o, ir.AMul, []*ir.Op{lhs, rhs}, nil)
		}
	case "div":
		if float {
			replaceKind(f, o, ir.AFdiv, []*ir.Op{lhs, rhs}, nil)
		} else {
			replaceKind(f, o, ir.ASdiv, []*ir.Op{lhs, rhs}, nil)
		}
	case "mod":
		bld := ir.NewBuilder(f)
		bld.SetInsertionPointBefore(o)
		q := bld.Create(ir.ASdiv, o.ResultTy, []*ir.Op{lhs, rhs}, nil)
		replaceKind(f, o, ir.AMsub, []*ir.Op{q, rhs, lhs}, nil)
	case "and":
		replaceKind(f, o, ir.AAnd, []*ir.Op{lhs, rhs}, nil)
	case "or":
		replaceKind(f, o, ir.AOrr, []*ir.Op{lhs, rhs}, nil)
	case "xor":
		replaceKind(f, o, ir.AEor, []*ir.Op{lhs, rhs}, nil)
	case "shl":
		replaceKind(f, o, ir.ALsl, []*ir.Op{lhs, rhs}, nil)
	case "shr":
		replaceKind(f, o, ir.AAsr, []*ir.Op{lhs, rhs}, nil)
	case "eq", "ne", "lt", "le", "gt", "ge":
		bld := ir.NewBuilder(f)
		bld.SetInsertionPointBefore(o)
		bld.Create(ir.ACmp, ir.Unit, []*ir.Op{lhs, rhs}, nil)
		replaceKind(f, o, ir.ACset, nil, []ir.Attr{ir.NameAttr(name.Str())})
	}
}

func lowerCall(f *ir.Function, o *ir.Op) {
	name, _ := o.Attr(ir.AttrNameAttr)
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)
	var writes []*ir.Op
	intIdx, fpIdx := 0, 0
	for _, arg := range o.Operands {
		var reg string
		if arg.ResultTy.IsFloat() {
			if fpIdx < len(floatArgRegs) {
				reg = floatArgRegs[fpIdx]
			}
			fpIdx++
		} else {
			if intIdx < len(intArgRegs) {
				reg = intArgRegs[intIdx]
			}
			intIdx++
		}
		if reg == "" {
			continue // documented simplification: >8 args per class unsupported
		}
		w := bld.Create(ir.AWriteReg, arg.ResultTy, []*ir.Op{arg}, []ir.Attr{ir.RegAttr(reg)})
		writes = append(writes, w)
	}
	bld.SetInsertionPointBefore(o)
	bld.Create(ir.ABl, ir.Unit, writes, []ir.Attr{ir.NameAttr(name.Str())})
	if o.ResultTy == ir.Unit {
		ir.Erase(o)
		return
	}
	bld.SetInsertionPointBefore(o)
	retReg := "x0"
	if o.ResultTy.IsFloat() {
		retReg = "v0"
	}
	read := bld.Create(ir.AReadReg, o.ResultTy, nil, []ir.Attr{ir.RegAttr(retReg)})
	o.ReplaceAllUsesWith(read)
	ir.Erase(o)
}

func lowerRet(f *ir.Function, o *ir.Op) {
	bld := ir.NewBuilder(f)
	bld.SetInsertionPointBefore(o)
	if len(o.Operands) == 1 && o.Operands[0] != nil {
		v := o.Operands[0]
		reg := "x0"
		if v.ResultTy.IsFloat() {
			reg = "v0"
		}
		w := bld.Create(ir.AWriteReg, v.ResultTy, []*ir.Op{v}, []ir.Attr{ir.RegAttr(reg)})
		replaceKind(f, o, ir.ARet, []*ir.Op{w}, nil)
		return
	}
	replaceKind(f, o, ir.ARet, nil, nil)
}

func lowerBranch(f *ir.Function, o *ir.Op) {
	cond := o.Operands[0]
	target, _ := o.Attr(ir.AttrTarget)
	els, _ := o.Attr(ir.AttrElse)
	replaceKind(f, o, ir.ACbnz, []*ir.Op{cond}, []ir.Attr{ir.TargetAttr(target.Block()), ir.ElseAttr(els.Block())})
}
