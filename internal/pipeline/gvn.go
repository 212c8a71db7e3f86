package pipeline

import (
	"fmt"
	"math"
	"strings"

	"sysyc/internal/ir"
)

// GVNPass does dominator-tree value numbering (Briggs 1997). Commutative
// binops are canonicalized by sorting their operand IDs before keying, so
// `a+b` and `b+a` land in the same congruence class. Phis whose operands
// all turn out to be the same Op are discarded in favor of that Op
// directly. Impure ops (KCall, KStore) break numbering scope: everything
// known congruent before them is forgotten for the rest of their block
// and its whole dominated subtree, since nothing here tracks which
// addresses a call or store could alias.
func GVNPass() Pass {
	return PerFunction("GVN", gvn)
}

func gvn(f *ir.Function) {
	entry := f.EntryBlock()
	if entry == nil {
		return
	}
	f.ComputeDominance()
	st := &gvnState{table: map[string]*ir.Op{}}
	st.walk(entry)
}

type gvnState struct {
	table map[string]*ir.Op
}

// walk visits b's own ops left to right, discarding congruent redundancies,
// then recurses over b's dominator-tree children with the table state left
// behind by b — the standard Briggs-style dominator-scoped numbering walk.
func (st *gvnState) walk(b *ir.BasicBlock) {
	outer := st.table
	local := outer
	var inserted []string

	kept := make([]*ir.Op, 0, len(b.Ops))
	for _, o := range b.Ops {
		if o.Kind == ir.KPhi {
			if rep, ok := phiCongruentTo(o); ok {
				o.ReplaceAllUsesWith(rep)
				o.Block = nil
				ir.Erase(o)
				continue
			}
			kept = append(kept, o)
			continue
		}

		if o.Kind == ir.KCall || o.Kind == ir.KStore {
			local = map[string]*ir.Op{}
			st.table = local
			inserted = nil
			kept = append(kept, o)
			continue
		}

		key, ok := gvnKey(o)
		if !ok {
			kept = append(kept, o)
			continue
		}
		if rep, ok := local[key]; ok {
			o.ReplaceAllUsesWith(rep)
			o.Block = nil
			ir.Erase(o)
			continue
		}
		local[key] = o
		inserted = append(inserted, key)
		kept = append(kept, o)
	}
	b.Ops = kept
	st.table = local

	for _, c := range b.DomChildren {
		st.walk(c)
	}

	for _, k := range inserted {
		delete(local, k)
	}
	st.table = outer
}

// phiCongruentTo reports whether every operand of phi is literally the
// same Op (pointer identity, post any rewrites already applied by earlier
// RAUWs), and if so returns that Op.
func phiCongruentTo(phi *ir.Op) (*ir.Op, bool) {
	if len(phi.Operands) == 0 {
		return nil, false
	}
	first := phi.Operands[0]
	if first == nil {
		return nil, false
	}
	for _, o := range phi.Operands[1:] {
		if o != first {
			return nil, false
		}
	}
	return first, true
}

func isCommutative(name string) bool {
	switch name {
	case "add", "mul", "and", "or", "xor", "eq", "ne":
		return true
	}
	return false
}

// gvnKey returns the congruence-class key for a pure, value-numberable op,
// or ok=false for anything GVN doesn't number (terminators, allocas,
// anything with no result, etc).
func gvnKey(o *ir.Op) (string, bool) {
	switch o.Kind {
	case ir.KConst:
		if a, ok := o.Attr(ir.AttrInt); ok {
			return fmt.Sprintf("ci:%d:%d", o.ResultTy, a.Int()), true
		}
		if a, ok := o.Attr(ir.AttrFloat); ok {
			return fmt.Sprintf("cf:%d:%x", o.ResultTy, math.Float64bits(a.Float())), true
		}
		return "", false
	case ir.KBinOp:
		name, ok := o.Attr(ir.AttrNameAttr)
		if !ok || len(o.Operands) != 2 {
			return "", false
		}
		lhs, rhs := o.Operands[0].ID, o.Operands[1].ID
		if isCommutative(name.Str()) && lhs > rhs {
			lhs, rhs = rhs, lhs
		}
		return fmt.Sprintf("bin:%s:%d:%d", name.Str(), lhs, rhs), true
	case ir.KUnOp:
		name, ok := o.Attr(ir.AttrNameAttr)
		if !ok || len(o.Operands) != 1 {
			return "", false
		}
		return fmt.Sprintf("un:%s:%d", name.Str(), o.Operands[0].ID), true
	case ir.KCast:
		if len(o.Operands) != 1 {
			return "", false
		}
		return fmt.Sprintf("cast:%d:%d", o.ResultTy, o.Operands[0].ID), true
	case ir.KAddr:
		name, ok := o.Attr(ir.AttrNameAttr)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("addr:%s", name.Str()), true
	case ir.KGetElement:
		var b strings.Builder
		b.WriteString("gep")
		for _, op := range o.Operands {
			fmt.Fprintf(&b, ":%d", op.ID)
		}
		return b.String(), true
	case ir.KLoad:
		if len(o.Operands) != 1 {
			return "", false
		}
		return fmt.Sprintf("load:%d", o.Operands[0].ID), true
	default:
		return "", false
	}
}
