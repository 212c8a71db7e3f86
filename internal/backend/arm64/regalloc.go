package arm64

import (
	"sysyc/internal/ir"
	"sysyc/internal/regalloc"
)

// Config wires the shared allocator (internal/regalloc) to the AArch64
// dialect: register pools, move/spill constructors, and which ops pin a
// physical register or clobber the caller-saved set.
func Config() regalloc.Config {
	return regalloc.Config{
		GPR:         gprPool,
		FP:          fpPool,
		SpillGPR:    [2]string{"x28", "x29"},
		SpillFP:     [2]string{"v30", "v31"},
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
			return o.Kind == ir.AWriteReg
		},
		IsReadReg: func(o *ir.Op) bool {
			return o.Kind == ir.AReadReg
		},
		PinnedReg: func(o *ir.Op) string {
			switch o.Kind {
			case ir.AWriteReg, ir.AReadReg, ir.AGetArg, ir.APlaceholder:
				if r, ok := o.Attr(ir.AttrReg); ok {
					return r.Str()
				}
			}
			return ""
		},
		IsClobber: func(o *ir.Op) bool {
			return o.Kind == ir.ABl || o.Kind == ir.AClone || o.Kind == ir.AJoin
		},
		Rematerializable: func(o *ir.Op) bool {
			return o.Kind == ir.AMovz || o.Kind == ir.AMovn || o.Kind == ir.AFmov
		},

		MakeMove: func(bld *ir.Builder, class regalloc.Class, dst, src string) *ir.Op {
			if class == regalloc.FP {
				return bld.Create(ir.AFmov, ir.F32, nil, []ir.Attr{ir.RegAttr(dst), ir.NameAttr(src)})
			}
			return bld.Create(ir.AMovRR, ir.I64, nil, []ir.Attr{ir.RegAttr(dst), ir.NameAttr(src)})
		},
		MakeSpillLoad: func(bld *ir.Builder, class regalloc.Class, dst string, offset int64, like *ir.Op) *ir.Op {
			ty := ir.I64
			if class == regalloc.FP {
				ty = ir.F32
			}
			return bld.Create(ir.ALdrSp, ty, nil, []ir.Attr{ir.RegAttr(dst), ir.StackOffsetAttr(offset)})
		},
		MakeSpillStore: func(bld *ir.Builder, class regalloc.Class, offset int64, src string, like *ir.Op) *ir.Op {
			return bld.Create(ir.AStrSp, ir.Unit, nil, []ir.Attr{ir.RegAttr(src), ir.StackOffsetAttr(offset)})
		},
		MakePlaceholder: func(bld *ir.Builder, class regalloc.Class, reg string) *ir.Op {
			return bld.Create(ir.APlaceholder, ir.Unit, nil, []ir.Attr{ir.RegAttr(reg)})
		},
	}
}

// RegAlloc runs the shared allocator over f using the AArch64 Config
// above.
func RegAlloc(f *ir.Function) *regalloc.Result {
	return regalloc.Allocate(f, Config())
}
