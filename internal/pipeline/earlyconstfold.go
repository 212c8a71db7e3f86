package pipeline

import "sysyc/internal/ir"

// EarlyConstFoldPass folds constant
// arithmetic, collapse constant-initialized single-store allocas,
// propagate constant-global loads, and drop the dead side of an If whose
// condition folded to a constant.
func EarlyConstFoldPass() Pass {
	return Pass{Name: "EarlyConstFold", Run: func(m *ir.Module) {
		stored := storedGlobals(m)
		for _, f := range m.Functions {
			foldConstArith(f)
			collapseSingleStoreAllocas(f)
			propagateConstGlobals(f, m, stored)
			foldDeadIfs(f)
		}
	}}
}

func intOf(o *ir.Op) (int64, bool) {
	if o.Kind != ir.KConst {
		return 0, false
	}
	a, ok := o.Attr(ir.AttrInt)
	if !ok {
		return 0, false
	}
	return a.Int(), true
}

func floatOf(o *ir.Op) (float64, bool) {
	if o.Kind != ir.KConst {
		return 0, false
	}
	a, ok := o.Attr(ir.AttrFloat)
	if !ok {
		return 0, false
	}
	return a.Float(), true
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// foldConstArith replaces KBinOp/KUnOp ops whose operands are all KConst
// with the computed constant, to a fixed point.
func foldConstArith(f *ir.Function) {
	bld := ir.NewBuilder(f)
	changed := true
	for changed {
		changed = false
		for _, b := range f.Blocks() {
			for _, o := range append([]*ir.Op(nil), b.Ops...) {
				if o.Block == nil {
					continue
				}
				switch o.Kind {
				case ir.KBinOp:
					if foldBinOp(bld, o) {
						changed = true
					}
				case ir.KUnOp:
					if foldUnOp(bld, o) {
						changed = true
					}
				}
			}
		}
	}
}

func foldBinOp(bld *ir.Builder, o *ir.Op) bool {
	name, ok := o.Attr(ir.AttrNameAttr)
	if !ok || len(o.Operands) != 2 {
		return false
	}
	lhs, rhs := o.Operands[0], o.Operands[1]

	if li, lok := intOf(lhs); lok {
		if ri, rok := intOf(rhs); rok {
			v, ok := intBinOp(name.Str(), li, ri)
			if !ok {
				return false
			}
			bld.Replace(o, ir.KConst, o.ResultTy, nil, []ir.Attr{ir.IntAttr(v)})
			return true
		}
	}
	if lf, lok := floatOf(lhs); lok {
		if rf, rok := floatOf(rhs); rok {
			v, ok := floatBinOp(name.Str(), lf, rf)
			if !ok {
				return false
			}
			bld.Replace(o, ir.KConst, o.ResultTy, nil, []ir.Attr{ir.FloatAttr(v)})
			return true
		}
	}
	return false
}

func intBinOp(op string, l, r int64) (int64, bool) {
	switch op {
	case "add":
		return l + r, true
	case "sub":
		return l - r, true
	case "mul":
		return l * r, true
	case "div":
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case "mod":
		if r == 0 {
			return 0, false
		}
		return l % r, true
	case "and":
		return l & r, true
	case "or":
		return l | r, true
	case "xor":
		return l ^ r, true
	case "lt":
		return boolToInt(l < r), true
	case "le":
		return boolToInt(l <= r), true
	case "gt":
		return boolToInt(l > r), true
	case "ge":
		return boolToInt(l >= r), true
	case "eq":
		return boolToInt(l == r), true
	case "ne":
		return boolToInt(l != r), true
	default:
		return 0, false
	}
}

func floatBinOp(op string, l, r float64) (float64, bool) {
	switch op {
	case "add":
		return l + r, true
	case "sub":
		return l - r, true
	case "mul":
		return l * r, true
	case "div":
		if r == 0 {
			return 0, false
		}
		return l / r, true
	default:
		return 0, false
	}
}

func foldUnOp(bld *ir.Builder, o *ir.Op) bool {
	name, ok := o.Attr(ir.AttrNameAttr)
	if !ok || len(o.Operands) != 1 {
		return false
	}
	x := o.Operands[0]
	if v, ok := intOf(x); ok {
		switch name.Str() {
		case "neg":
			bld.Replace(o, ir.KConst, o.ResultTy, nil, []ir.Attr{ir.IntAttr(-v)})
			return true
		case "not":
			bld.Replace(o, ir.KConst, o.ResultTy, nil, []ir.Attr{ir.IntAttr(boolToInt(v == 0))})
			return true
		}
	}
	if v, ok := floatOf(x); ok && name.Str() == "neg" {
		bld.Replace(o, ir.KConst, o.ResultTy, nil, []ir.Attr{ir.FloatAttr(-v)})
		return true
	}
	return false
}

// collapseSingleStoreAllocas folds a scalar alloca whose only write is one
// store of a constant: every load becomes that constant directly.
func collapseSingleStoreAllocas(f *ir.Function) {
	bld := ir.NewBuilder(f)
	for _, b := range f.Blocks() {
		for _, o := range append([]*ir.Op(nil), b.Ops...) {
			if o.Block == nil || o.Kind != ir.KAlloca {
				continue
			}
			if _, isArray := o.Attr(ir.AttrDims); isArray {
				continue
			}
			var store *ir.Op
			var loads []*ir.Op
			ok := true
			for _, u := range o.Uses() {
				switch u.Kind {
				case ir.KStore:
					if len(u.Operands) == 2 && u.Operands[0] == o && store == nil {
						store = u
					} else {
						ok = false
					}
				case ir.KLoad:
					loads = append(loads, u)
				default:
					ok = false
				}
			}
			if !ok || store == nil {
				continue
			}
			val := store.Operands[1]
			for _, ld := range loads {
				if iv, isInt := intOf(val); isInt {
					bld.Replace(ld, ir.KConst, ld.ResultTy, nil, []ir.Attr{ir.IntAttr(iv)})
				} else if fv, isFloat := floatOf(val); isFloat {
					bld.Replace(ld, ir.KConst, ld.ResultTy, nil, []ir.Attr{ir.FloatAttr(fv)})
				}
			}
			if store.Block != nil && !store.HasUses() {
				ir.Erase(store)
			}
			if !o.HasUses() {
				ir.Erase(o)
			}
		}
	}
}

// storedGlobals scans every function in m for a KStore through a KAddr,
// returning the set of global names ever written to.
func storedGlobals(m *ir.Module) map[string]bool {
	out := map[string]bool{}
	for _, f := range m.Functions {
		for _, b := range f.Blocks() {
			for _, o := range b.Ops {
				if o.Kind != ir.KStore || len(o.Operands) != 2 {
					continue
				}
				addr := o.Operands[0]
				if addr.Kind == ir.KAddr {
					if n, ok := addr.Attr(ir.AttrNameAttr); ok {
						out[n.Str()] = true
					}
				}
			}
		}
	}
	return out
}

// propagateConstGlobals replaces a load of a never-stored, scalar-init
// global with its initializer constant.
func propagateConstGlobals(f *ir.Function, m *ir.Module, stored map[string]bool) {
	bld := ir.NewBuilder(f)
	for _, b := range f.Blocks() {
		for _, o := range append([]*ir.Op(nil), b.Ops...) {
			if o.Block == nil || o.Kind != ir.KLoad || len(o.Operands) != 1 {
				continue
			}
			addr := o.Operands[0]
			if addr.Kind != ir.KAddr {
				continue
			}
			name, ok := addr.Attr(ir.AttrNameAttr)
			if !ok || stored[name.Str()] {
				continue
			}
			g := findGlobal(m, name.Str())
			if g == nil || g.Zero || len(g.Dims) != 0 {
				continue
			}
			switch {
			case len(g.IntInit) == 1:
				bld.Replace(o, ir.KConst, o.ResultTy, nil, []ir.Attr{ir.IntAttr(g.IntInit[0])})
			case len(g.FloatInit) == 1:
				bld.Replace(o, ir.KConst, o.ResultTy, nil, []ir.Attr{ir.FloatAttr(g.FloatInit[0])})
			}
		}
	}
}

func findGlobal(m *ir.Module, name string) *ir.Global {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// foldDeadIfs drops the untaken side of an If whose condition is a
// compile-time constant, splicing the taken branch's ops in place.
func foldDeadIfs(f *ir.Function) {
	for _, b := range f.Blocks() {
		for i := 0; i < len(b.Ops); i++ {
			o := b.Ops[i]
			if o.Kind != ir.KIf || len(o.Operands) != 1 {
				continue
			}
			v, ok := intOf(o.Operands[0])
			if !ok {
				continue
			}
			var live *ir.BasicBlock
			if v != 0 {
				if len(o.Regions) > 0 && len(o.Regions[0].Blocks) > 0 {
					live = o.Regions[0].Blocks[0]
				}
			} else if len(o.Regions) > 1 && len(o.Regions[1].Blocks) > 0 {
				live = o.Regions[1].Blocks[0]
			}
			spliceInPlace(b, i, o, live)
			i--
		}
	}
}

// spliceInPlace replaces b.Ops[idx] (which must be old) with live's Ops
// (or nothing, if live is nil), reparenting each moved Op to b.
func spliceInPlace(b *ir.BasicBlock, idx int, old *ir.Op, live *ir.BasicBlock) {
	var moved []*ir.Op
	if live != nil {
		moved = live.Ops
		for _, o := range moved {
			o.Block = b
		}
		live.Ops = nil
	}
	next := make([]*ir.Op, 0, len(b.Ops)-1+len(moved))
	next = append(next, b.Ops[:idx]...)
	next = append(next, moved...)
	next = append(next, b.Ops[idx+1:]...)
	b.Ops = next
	old.Block = nil
}
