package rv64

import (
	"fmt"
	"strings"

	"sysyc/internal/ir"
)

// Dump is the final stage for RV64GC: it renders a lowered,
// allocated, legalized function as GNU-syntax RISC-V assembly text.
func Dump(m *ir.Module) string {
	var b strings.Builder
	b.WriteString(".text\n")
	for _, f := range m.Functions {
		dumpFunction(&b, f)
	}
	dumpGlobals(&b, m)
	return b.String()
}

func dumpGlobals(b *strings.Builder, m *ir.Module) {
	var data, bss []*ir.Global
	for _, g := range m.Globals {
		if g.Zero {
			bss = append(bss, g)
		} else {
			data = append(data, g)
		}
	}
	if len(data) > 0 {
		b.WriteString(".data\n")
		for _, g := range data {
			fmt.Fprintf(b, "%s:\n", g.Name)
			if g.Ty.IsFloat() {
				for _, v := range g.FloatInit {
					fmt.Fprintf(b, "\t.double %v\n", v)
				}
			} else {
				for _, v := range g.IntInit {
					fmt.Fprintf(b, "\t.quad %d\n", v)
				}
			}
		}
	}
	if len(bss) > 0 {
		b.WriteString(".bss\n")
		for _, g := range bss {
			n := 1
			for _, d := range g.Dims {
				n *= d
			}
			fmt.Fprintf(b, "%s:\n\t.zero %d\n", g.Name, n*g.Ty.Size())
		}
	}
}

func dumpFunction(b *strings.Builder, f *ir.Function) {
	fmt.Fprintf(b, ".globl %s\n%s:\n", f.Name, f.Name)
	labels := map[*ir.BasicBlock]string{}
	next := 0
	labelFor := func(bb *ir.BasicBlock) string {
		if l, ok := labels[bb]; ok {
			return l
		}
		l := fmt.Sprintf(".Lbb%d", next)
		next++
		labels[bb] = l
		return l
	}
	for _, bb := range f.Blocks() {
		fmt.Fprintf(b, "%s:\n", labelFor(bb))
		for _, o := range bb.Ops {
			dumpOp(b, o, labelFor)
		}
	}
}

func dumpOp(b *strings.Builder, o *ir.Op, labelFor func(*ir.BasicBlock) string) {
	reg := func(op *ir.Op) string {
		if r, ok := op.Attr(ir.AttrReg); ok {
			return r.Str()
		}
		return "?"
	}
	dst := reg(o)
	switch o.Kind {
	case ir.RLi:
		if name, ok := o.Attr(ir.AttrNameAttr); ok {
			fmt.Fprintf(b, "\tla %s, %s\n", dst, name.Str())
			return
		}
		v, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tli %s, %d\n", dst, v.Int())
	case ir.RFmvS:
		v, _ := o.Attr(ir.AttrFloat)
		fmt.Fprintf(b, "\tfli.d %s, %v\n", dst, v.Float())
	case ir.RMv, ir.RMv2:
		name, _ := o.Attr(ir.AttrNameAttr)
		fmt.Fprintf(b, "\tmv %s, %s\n", dst, name.Str())
	case ir.RAdd:
		fmt.Fprintf(b, "\tadd %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RAddi:
		off, _ := o.Attr(ir.AttrStackOffset)
		if len(o.Operands) == 1 {
			fmt.Fprintf(b, "\taddi %s, %s, %d\n", dst, reg(o.Operands[0]), off.Int())
		} else {
			fmt.Fprintf(b, "\taddi %s, sp, %d\n", dst, off.Int())
		}
	case ir.RSub:
		fmt.Fprintf(b, "\tsub %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RMul:
		fmt.Fprintf(b, "\tmul %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RMulh:
		fmt.Fprintf(b, "\tmulh %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RDiv:
		fmt.Fprintf(b, "\tdiv %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RRem:
		fmt.Fprintf(b, "\trem %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RSlli:
		n, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tslli %s, %s, %d\n", dst, reg(o.Operands[0]), n.Int())
	case ir.RSrai:
		n, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tsrai %s, %s, %d\n", dst, reg(o.Operands[0]), n.Int())
	case ir.RSrli:
		n, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tsrli %s, %s, %d\n", dst, reg(o.Operands[0]), n.Int())
	case ir.RAnd:
		fmt.Fprintf(b, "\tand %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RAndi:
		n, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tandi %s, %s, %d\n", dst, reg(o.Operands[0]), n.Int())
	case ir.ROr:
		fmt.Fprintf(b, "\tor %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RXor:
		fmt.Fprintf(b, "\txor %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RSlt:
		name, _ := o.Attr(ir.AttrNameAttr)
		fmt.Fprintf(b, "\tslt %s, %s, %s # %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]), name.Str())
	case ir.RSlti:
		n, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tslti %s, %s, %d\n", dst, reg(o.Operands[0]), n.Int())
	case ir.RBeq:
		branch(b, "beq", o, labelFor)
	case ir.RBne:
		branch(b, "bne", o, labelFor)
	case ir.RBlt:
		branch(b, "blt", o, labelFor)
	case ir.RBge:
		branch(b, "bge", o, labelFor)
	case ir.RJ:
		target, _ := o.Attr(ir.AttrTarget)
		fmt.Fprintf(b, "\tj %s\n", labelFor(target.Block()))
	case ir.RJal:
		name, _ := o.Attr(ir.AttrNameAttr)
		fmt.Fprintf(b, "\tcall %s\n", name.Str())
	case ir.RJalr:
		fmt.Fprintf(b, "\tjalr %s\n", reg(o.Operands[0]))
	case ir.RRet:
		b.WriteString("\tret\n")
	case ir.RLw:
		off, _ := o.Attr(ir.AttrStackOffset)
		fmt.Fprintf(b, "\tlw %s, %d(%s)\n", dst, off.Int(), reg(o.Operands[0]))
	case ir.RLd:
		off, _ := o.Attr(ir.AttrStackOffset)
		base := "sp"
		if len(o.Operands) > 0 {
			base = reg(o.Operands[0])
		}
		fmt.Fprintf(b, "\tld %s, %d(%s)\n", dst, off.Int(), base)
	case ir.RSw:
		off, _ := o.Attr(ir.AttrStackOffset)
		fmt.Fprintf(b, "\tsw %s, %d(%s)\n", reg(o.Operands[0]), off.Int(), reg(o.Operands[1]))
	case ir.RSd:
		off, _ := o.Attr(ir.AttrStackOffset)
		fmt.Fprintf(b, "\tsd %s, %d(sp)\n", reg(o.Operands[0]), off.Int())
	case ir.RFadd:
		fmt.Fprintf(b, "\tfadd.d %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RFsub:
		fmt.Fprintf(b, "\tfsub.d %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RFmul:
		fmt.Fprintf(b, "\tfmul.d %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RFdiv:
		fmt.Fprintf(b, "\tfdiv.d %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.RFcvt:
		fmt.Fprintf(b, "\tfcvt.d.w %s, %s\n", dst, reg(o.Operands[0]))
	case ir.RFmadd:
		fmt.Fprintf(b, "\tfmadd.d %s, %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]), reg(o.Operands[2]))
	case ir.RReadReg:
		r, _ := o.Attr(ir.AttrReg)
		fmt.Fprintf(b, "\tmv %s, %s\n", dst, r.Str())
	case ir.RWriteReg:
		r, _ := o.Attr(ir.AttrReg)
		fmt.Fprintf(b, "\tmv %s, %s\n", r.Str(), reg(o.Operands[0]))
	case ir.RGetArg:
		// Already pinned to its incoming register by Lower; nothing to emit.
	case ir.RClone:
		b.WriteString("\tcall __sysyc_clone\n")
	case ir.RJoin:
		b.WriteString("\tcall __sysyc_join\n")
	case ir.RWake:
		b.WriteString("\tcall __sysyc_wake\n")
	case ir.RPlaceholder:
		// Clobber marker, consumed entirely by register allocation.
	}
}

func branch(b *strings.Builder, mnemonic string, o *ir.Op, labelFor func(*ir.BasicBlock) string) {
	reg := func(op *ir.Op) string {
		if r, ok := op.Attr(ir.AttrReg); ok {
			return r.Str()
		}
		return "?"
	}
	target, _ := o.Attr(ir.AttrTarget)
	els, _ := o.Attr(ir.AttrElse)
	fmt.Fprintf(b, "\t%s %s, %s, %s\n\tj %s\n", mnemonic, reg(o.Operands[0]), reg(o.Operands[1]), labelFor(target.Block()), labelFor(els.Block()))
}
