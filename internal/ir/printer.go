package ir

import (
	"fmt"
	"strings"
)

// Printer renders a Module as a readable, deterministic text form used by
// pass tests and the `-trace` debugging hook. It is not the final
// assembly emitter — that lives per-dialect in the back-end Dump pass
// and is out of this component's scope.
type Printer struct {
	indent int
	out    strings.Builder
}

func NewPrinter() *Printer { return &Printer{} }

func Print(m *Module) string {
	p := NewPrinter()
	p.printModule(m)
	return p.out.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.out.WriteString("  ")
	}
}

func (p *Printer) line(format string, args ...interface{}) {
	p.writeIndent()
	p.out.WriteString(fmt.Sprintf(format, args...))
	p.out.WriteString("\n")
}

func (p *Printer) printModule(m *Module) {
	p.line("module %s {", m.Name)
	p.indent++
	for _, g := range m.Globals {
		p.printGlobal(g)
	}
	for _, f := range m.Functions {
		p.printFunction(f)
	}
	p.indent--
	p.line("}")
}

func (p *Printer) printGlobal(g *Global) {
	if g.Zero {
		p.line("global %s : %s%s = zeroinit", g.Name, g.Ty, dimsSuffix(g.Dims))
		return
	}
	p.line("global %s : %s%s = %v", g.Name, g.Ty, dimsSuffix(g.Dims), initValues(g))
}

func dimsSuffix(dims []int) string {
	if len(dims) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, d := range dims {
		fmt.Fprintf(&sb, "[%d]", d)
	}
	return sb.String()
}

func initValues(g *Global) interface{} {
	if g.Ty.IsFloat() {
		return g.FloatInit
	}
	return g.IntInit
}

func (p *Printer) printFunction(f *Function) {
	p.line("func %s(%d args) -> %s {", f.Name, f.NumArgs, f.ReturnType)
	p.indent++
	for _, b := range f.Blocks() {
		p.printBlock(b)
	}
	p.indent--
	p.line("}")
}

func (p *Printer) printBlock(b *BasicBlock) {
	p.line("%s:", blockLabel(b))
	p.indent++
	for _, o := range b.Ops {
		p.printOp(o)
	}
	p.indent--
}

func blockLabel(b *BasicBlock) string {
	if b.Label != "" {
		return b.Label
	}
	return fmt.Sprintf("bb%d", b.ID)
}

func (p *Printer) printOp(o *Op) {
	var sb strings.Builder
	if o.HasResult {
		fmt.Fprintf(&sb, "%%%d = ", o.ID)
	}
	sb.WriteString(o.Kind.String())
	for _, v := range o.Operands {
		if v == nil {
			sb.WriteString(" <nil>")
			continue
		}
		fmt.Fprintf(&sb, " %%%d", v.ID)
	}
	for _, a := range o.Attrs {
		fmt.Fprintf(&sb, " %s", attrString(a))
	}
	if o.HasResult {
		fmt.Fprintf(&sb, " : %s", o.ResultTy)
	}
	p.line("%s", sb.String())
	for _, r := range o.Regions {
		p.indent++
		for _, b := range r.Blocks {
			p.printBlock(b)
		}
		p.indent--
	}
}

func attrString(a Attr) string {
	switch a.Kind() {
	case AttrInt:
		return fmt.Sprintf("#%d", a.Int())
	case AttrFloat:
		return fmt.Sprintf("#%g", a.Float())
	case AttrSize:
		return fmt.Sprintf("size=%d", a.Int())
	case AttrNameAttr:
		return fmt.Sprintf("name=%s", a.Str())
	case AttrTarget:
		return fmt.Sprintf("target=%s", blockLabel(a.Block()))
	case AttrElse:
		return fmt.Sprintf("else=%s", blockLabel(a.Block()))
	case AttrFrom:
		return fmt.Sprintf("from=%s", blockLabel(a.Block()))
	case AttrDims:
		return fmt.Sprintf("dims=%v", a.Dims())
	case AttrReg:
		return fmt.Sprintf("reg=%s", a.Str())
	case AttrSpilledReg:
		return fmt.Sprintf("spill=%d", a.Int())
	case AttrStackOffset:
		return fmt.Sprintf("off=%d", a.Int())
	case AttrPure:
		return "pure"
	case AttrAtMostOnce:
		return "at_most_once"
	case AttrFPMark:
		return "fp"
	case AttrParallelizable:
		return "parallelizable"
	case AttrNoStore:
		return "no_store"
	case AttrRematerializable:
		return "remat"
	case AttrStep:
		return fmt.Sprintf("step=%v", a.Ints())
	case AttrSubscript:
		return fmt.Sprintf("subscript=%v", a.Subscript())
	case AttrRange:
		return fmt.Sprintf("range=[%d,%d]", a.RangeLo(), a.RangeHi())
	default:
		return "attr"
	}
}
