package rv64

import (
	"sysyc/internal/ir"
	"sysyc/internal/regalloc"
)

// Config wires the shared allocator to the RV64GC dialect.
func Config() regalloc.Config {
	return regalloc.Config{
		GPR:         gprPool,
		FP:          fpPool,
		SpillGPR:    [2]string{"s0", "s1"},
		SpillFP:     [2]string{"fs0", "fs1"},
		CallerSaved: callerSaved,
		StackAlign:  8,

		ClassOf: func(o *ir.Op) regalloc.Class {
			if o.ResultTy.IsFloat() {
				return regalloc.FP
			}
			return regalloc.GPR
		},
		NeedsReg: func(o *ir.Op) bool { return o.HasResult },
		IsWriteReg: func(o *ir.Op) bool {
			return o.Kind == ir.RWriteReg
		},
		IsReadReg: func(o *ir.Op) bool {
			return o.Kind == ir.RReadReg
		},
		PinnedReg: func(o *ir.Op) string {
			switch o.Kind {
			case ir.RWriteReg, ir.RReadReg, ir.RGetArg, ir.RPlaceholder:
				if r, ok := o.Attr(ir.AttrReg); ok {
					return r.Str()
				}
			}
			return ""
		},
		IsClobber: func(o *ir.Op) bool {
			return o.Kind == ir.RJal || o.Kind == ir.RJalr || o.Kind == ir.RClone || o.Kind == ir.RJoin
		},
		Rematerializable: func(o *ir.Op) bool {
			return o.Kind == ir.RLi || o.Kind == ir.RFmvS
		},

		MakeMove: func(bld *ir.Builder, class regalloc.Class, dst, src string) *ir.Op {
			ty := ir.I64
			if class == regalloc.FP {
				ty = ir.F32
			}
			return bld.Create(ir.RMv2, ty, nil, []ir.Attr{ir.RegAttr(dst), ir.NameAttr(src)})
		},
		MakeSpillLoad: func(bld *ir.Builder, class regalloc.Class, dst string, offset int64, like *ir.Op) *ir.Op {
			ty := ir.I64
			k := ir.RLd
			if class == regalloc.FP {
				ty = ir.F32
			}
			return bld.Create(k, ty, nil, []ir.Attr{ir.RegAttr(dst), ir.StackOffsetAttr(offset)})
		},
		MakeSpillStore: func(bld *ir.Builder, class regalloc.Class, offset int64, src string, like *ir.Op) *ir.Op {
			return bld.Create(ir.RSd, ir.Unit, nil, []ir.Attr{ir.RegAttr(src), ir.StackOffsetAttr(offset)})
		},
		MakePlaceholder: func(bld *ir.Builder, class regalloc.Class, reg string) *ir.Op {
			return bld.Create(ir.RPlaceholder, ir.Unit, nil, []ir.Attr{ir.RegAttr(reg)})
		},
	}
}

// RegAlloc runs the shared allocator over f using the RV64GC Config.
func RegAlloc(f *ir.Function) *regalloc.Result {
	return regalloc.Allocate(f, Config())
}
