package arm64

import (
	"fmt"
	"strings"

	"sysyc/internal/ir"
)

// Dump is the final stage: it renders a lowered, allocated,
// legalized function as GNU-syntax AArch64 assembly text.
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
	case ir.AMovz:
		v, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tmovz %s, #%d\n", dst, v.Int())
	case ir.AMovn:
		v, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tmovn %s, #%d\n", dst, v.Int())
	case ir.AMovk:
		v, _ := o.Attr(ir.AttrInt)
		shift, _ := o.Attr(ir.AttrStep)
		sh := int64(0)
		if len(shift.Ints()) > 0 {
			sh = shift.Ints()[0]
		}
		fmt.Fprintf(b, "\tmovk %s, #%d, lsl #%d\n", dst, v.Int(), sh)
	case ir.AMovRR:
		name, _ := o.Attr(ir.AttrNameAttr)
		fmt.Fprintf(b, "\tmov %s, %s\n", dst, name.Str())
	case ir.AFmov:
		name, hasName := o.Attr(ir.AttrNameAttr)
		if hasName {
			fmt.Fprintf(b, "\tfmov %s, %s\n", dst, name.Str())
			return
		}
		v, _ := o.Attr(ir.AttrFloat)
		fmt.Fprintf(b, "\tfmov %s, #%v\n", dst, v.Float())
	case ir.AAdd:
		fmt.Fprintf(b, "\tadd %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.AAddImm:
		off, _ := o.Attr(ir.AttrStackOffset)
		fmt.Fprintf(b, "\tadd %s, sp, #%d\n", dst, off.Int())
	case ir.AAddWL:
		n, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tadd %s, %s, %s, lsl #%d\n", dst, reg(o.Operands[0]), reg(o.Operands[1]), n.Int())
	case ir.AAddXL:
		n, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tadd %s, %s, %s, lsl #%d\n", dst, reg(o.Operands[0]), reg(o.Operands[1]), n.Int())
	case ir.ASub:
		fmt.Fprintf(b, "\tsub %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.AMul:
		fmt.Fprintf(b, "\tmul %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.AMadd:
		fmt.Fprintf(b, "\tmadd %s, %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]), reg(o.Operands[2]))
	case ir.AMsub:
		fmt.Fprintf(b, "\tmsub %s, %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]), reg(o.Operands[2]))
	case ir.ASdiv:
		fmt.Fprintf(b, "\tsdiv %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.ASmull:
		fmt.Fprintf(b, "\tsmull %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.ASmulh:
		fmt.Fprintf(b, "\tsmulh %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.AAsr:
		n, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tasr %s, %s, #%d\n", dst, reg(o.Operands[0]), n.Int())
	case ir.ALsl:
		n, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tlsl %s, %s, #%d\n", dst, reg(o.Operands[0]), n.Int())
	case ir.ALsr:
		n, _ := o.Attr(ir.AttrInt)
		fmt.Fprintf(b, "\tlsr %s, %s, #%d\n", dst, reg(o.Operands[0]), n.Int())
	case ir.AAnd:
		fmt.Fprintf(b, "\tand %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.AOrr:
		fmt.Fprintf(b, "\torr %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.AEor:
		fmt.Fprintf(b, "\teor %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.ACmp:
		fmt.Fprintf(b, "\tcmp %s, %s\n", reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.ACset:
		name, _ := o.Attr(ir.AttrNameAttr)
		fmt.Fprintf(b, "\tcset %s, %s\n", dst, armCond(name.Str()))
	case ir.ABCond:
		name, _ := o.Attr(ir.AttrNameAttr)
		target, _ := o.Attr(ir.AttrTarget)
		els, _ := o.Attr(ir.AttrElse)
		fmt.Fprintf(b, "\tb.%s %s\n\tb %s\n", armCond(name.Str()), labelFor(target.Block()), labelFor(els.Block()))
	case ir.ACbz:
		target, _ := o.Attr(ir.AttrTarget)
		fmt.Fprintf(b, "\tcbz %s, %s\n", reg(o.Operands[0]), labelFor(target.Block()))
	case ir.ACbnz:
		target, _ := o.Attr(ir.AttrTarget)
		els, _ := o.Attr(ir.AttrElse)
		fmt.Fprintf(b, "\tcbnz %s, %s\n\tb %s\n", reg(o.Operands[0]), labelFor(target.Block()), labelFor(els.Block()))
	case ir.AB:
		target, _ := o.Attr(ir.AttrTarget)
		fmt.Fprintf(b, "\tb %s\n", labelFor(target.Block()))
	case ir.ABl:
		name, _ := o.Attr(ir.AttrNameAttr)
		fmt.Fprintf(b, "\tbl %s\n", name.Str())
	case ir.ARet:
		b.WriteString("\tret\n")
	case ir.ALdr:
		fmt.Fprintf(b, "\tldr %s, [%s]\n", dst, reg(o.Operands[0]))
	case ir.AStr:
		fmt.Fprintf(b, "\tstr %s, [%s]\n", reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.ALdrSp:
		off, _ := o.Attr(ir.AttrStackOffset)
		fmt.Fprintf(b, "\tldr %s, [sp, #%d]\n", dst, off.Int())
	case ir.AStrSp:
		off, _ := o.Attr(ir.AttrStackOffset)
		fmt.Fprintf(b, "\tstr %s, [sp, #%d]\n", dst, off.Int())
	case ir.AFadd:
		fmt.Fprintf(b, "\tfadd %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.AFsub:
		fmt.Fprintf(b, "\tfsub %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.AFmul:
		fmt.Fprintf(b, "\tfmul %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.AFdiv:
		fmt.Fprintf(b, "\tfdiv %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.AFcvt:
		fmt.Fprintf(b, "\tfcvt %s, %s\n", dst, reg(o.Operands[0]))
	case ir.AFmla:
		fmt.Fprintf(b, "\tfmla %s, %s, %s\n", dst, reg(o.Operands[0]), reg(o.Operands[1]))
	case ir.AReadReg:
		r, _ := o.Attr(ir.AttrReg)
		fmt.Fprintf(b, "\tmov %s, %s\n", dst, r.Str())
	case ir.AWriteReg:
		r, _ := o.Attr(ir.AttrReg)
		fmt.Fprintf(b, "\tmov %s, %s\n", r.Str(), reg(o.Operands[0]))
	case ir.AGetArg:
		// Materialized directly into its pinned register by Lower; nothing
		// to emit (the value already lives where the caller convention
		// placed it, and the mov-from-self this would otherwise print is
		// cleaned up by Peephole on ordinary temporaries).
	case ir.AMov:
		if name, ok := o.Attr(ir.AttrNameAttr); ok {
			fmt.Fprintf(b, "\tadrp %s, %s\n\tadd %s, %s, :lo12:%s\n", dst, name.Str(), dst, dst, name.Str())
			return
		}
	case ir.AClone:
		fmt.Fprintf(b, "\tbl __sysyc_clone\n")
	case ir.AJoin:
		fmt.Fprintf(b, "\tbl __sysyc_join\n")
	case ir.AWake:
		fmt.Fprintf(b, "\tbl __sysyc_wake\n")
	case ir.APlaceholder:
		// Clobber marker consumed entirely by register allocation; erased
		// before Dump runs (kept here only so a stray survivor is visibly
		// silent rather than a panic).
	}
}

func armCond(name string) string {
	switch name {
	case "eq":
		return "eq"
	case "ne":
		return "ne"
	case "lt":
		return "lt"
	case "le":
		return "le"
	case "gt":
		return "gt"
	case "ge":
		return "ge"
	default:
		return name
	}
}
