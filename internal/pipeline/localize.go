package pipeline

import "sysyc/internal/ir"

// LocalizePass demotes a global referenced (via
// KAddr) from exactly one function is demoted to a local alloca in that
// function, seeded with the global's initializer at function entry. This
// is a whole-module pass (it needs every function's reference set before
// deciding), unlike the rest of this file's per-function neighbors.
func LocalizePass() Pass {
	return Pass{Name: "Localize", Run: localizeSingleUseGlobals}
}

func localizeSingleUseGlobals(m *ir.Module) {
	refFuncs := map[string]map[*ir.Function]bool{}
	refOps := map[string][]*ir.Op{}
	for _, f := range m.Functions {
		walkAllBlocks(f, func(b *ir.BasicBlock) {
			for _, o := range b.Ops {
				if o.Kind != ir.KAddr {
					continue
				}
				name, ok := o.Attr(ir.AttrNameAttr)
				if !ok {
					continue
				}
				if refFuncs[name.Str()] == nil {
					refFuncs[name.Str()] = map[*ir.Function]bool{}
				}
				refFuncs[name.Str()][f] = true
				refOps[name.Str()] = append(refOps[name.Str()], o)
			}
		})
	}

	var kept []*ir.Global
	for _, g := range m.Globals {
		funcs := refFuncs[g.Name]
		if len(funcs) != 1 {
			kept = append(kept, g)
			continue
		}
		var owner *ir.Function
		for f := range funcs {
			owner = f
		}
		localizeGlobal(owner, g, refOps[g.Name])
	}
	m.Globals = kept
}

func localizeGlobal(f *ir.Function, g *ir.Global, addrOps []*ir.Op) {
	entry := f.EntryBlock()
	if entry == nil {
		return
	}
	bld := ir.NewBuilder(f)
	if len(entry.Ops) > 0 {
		bld.SetInsertionPointBefore(entry.Ops[0])
	} else {
		bld.SetInsertionPoint(entry)
	}

	attrs := []ir.Attr{ir.SizeAttr(int64(g.Ty.Size())), ir.NameAttr(g.Name)}
	if len(g.Dims) > 0 {
		attrs = append(attrs, ir.DimsAttr(g.Dims))
	}
	slot := bld.Create(ir.KAlloca, g.Ty, nil, attrs)

	if !g.Zero {
		switch {
		case len(g.Dims) == 0 && len(g.IntInit) == 1:
			c := bld.Create(ir.KConst, g.Ty, nil, []ir.Attr{ir.IntAttr(g.IntInit[0])})
			bld.Create(ir.KStore, ir.Unit, []*ir.Op{slot, c}, nil)
		case len(g.Dims) == 0 && len(g.FloatInit) == 1:
			c := bld.Create(ir.KConst, g.Ty, nil, []ir.Attr{ir.FloatAttr(g.FloatInit[0])})
			bld.Create(ir.KStore, ir.Unit, []*ir.Op{slot, c}, nil)
		case len(g.Dims) > 0:
			for i, v := range g.IntInit {
				idx := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(int64(i))})
				elemAddr := bld.Create(ir.KGetElement, ir.I64, []*ir.Op{slot, idx}, nil)
				c := bld.Create(ir.KConst, g.Ty, nil, []ir.Attr{ir.IntAttr(v)})
				bld.Create(ir.KStore, ir.Unit, []*ir.Op{elemAddr, c}, nil)
			}
		}
	}

	for _, addr := range addrOps {
		if addr.HasUses() {
			addr.ReplaceAllUsesWith(slot)
		}
		if addr.Block != nil {
			ir.Erase(addr)
		}
	}
}
