package frontend

import (
	"fmt"

	"sysyc/internal/ir"
)

// binding is what a name resolves to in scope: either a local (an alloca
// Op already inserted into the current function) or a global (materialized
// fresh at each use via KAddr, since crossing function boundaries means the
// alloca Op itself can't be shared).
type binding struct {
	global bool
	name   string // global name, used to rebuild KAddr at each use
	addr   *ir.Op // local alloca Op
	elem   ir.Type
	dims   []int
}

// Lowerer turns a Program into the high-level IR dialect: structured
// IfOp/WhileOp/ForOp with nested regions, scalar/array AllocaOp, GlobalOp,
// typed load/store.
//
// Convention: a function's first NumArgs Ops in its entry block are always
// the parameter allocas, in declaration order — Lower (the back-end pass,
// not this package) reads that convention when materializing the calling
// convention, rather than this IR defining a dedicated "argument" op kind.
type Lowerer struct {
	mod     *ir.Module
	fn      *ir.Function
	bld     *ir.Builder
	scopes  []map[string]*binding
	retType ir.Type
	funcRet map[string]ir.Type
}

func scalarToIR(s Scalar) ir.Type {
	switch s {
	case TFloat:
		return ir.F32
	case TVoid:
		return ir.Unit
	default:
		return ir.I32
	}
}

// Lower translates prog into a fresh ir.Module, in declaration order.
func Lower(prog *Program) (*ir.Module, error) {
	l := &Lowerer{mod: ir.NewModule("main"), funcRet: map[string]ir.Type{}}
	for _, fd := range prog.Funcs {
		l.funcRet[fd.Name] = scalarToIR(fd.ReturnType.Elem)
	}
	for _, g := range prog.Globals {
		l.mod.AddGlobal(&ir.Global{
			Name: g.Name, Ty: scalarToIR(g.Ty.Elem), Dims: g.Ty.Dims,
			IntInit: g.IntInit, FloatInit: g.FloatInit, Zero: g.Zero,
		})
	}
	l.globalScope(prog.Globals)
	for _, fd := range prog.Funcs {
		fn, err := l.lowerFunc(fd)
		if err != nil {
			return nil, err
		}
		l.mod.AddFunction(fn)
	}
	return l.mod, nil
}

func (l *Lowerer) globalScope(globals []*GlobalDecl) {
	top := map[string]*binding{}
	for _, g := range globals {
		top[g.Name] = &binding{global: true, name: g.Name, elem: scalarToIR(g.Ty.Elem), dims: g.Ty.Dims}
	}
	l.scopes = []map[string]*binding{top}
}

func (l *Lowerer) pushScope() { l.scopes = append(l.scopes, map[string]*binding{}) }
func (l *Lowerer) popScope()  { l.scopes = l.scopes[:len(l.scopes)-1] }

func (l *Lowerer) define(name string, b *binding) {
	l.scopes[len(l.scopes)-1][name] = b
}

func (l *Lowerer) lookup(name string) (*binding, bool) {
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if b, ok := l.scopes[i][name]; ok {
			return b, true
		}
	}
	return nil, false
}

// addrOf returns an Op producing b's address, creating a fresh KAddr for
// globals (each use needs its own SSA producer) or returning the alloca
// directly for locals.
func (l *Lowerer) addrOf(b *binding) *ir.Op {
	if b.global {
		return l.bld.Create(ir.KAddr, ir.I64, nil, []ir.Attr{ir.NameAttr(b.name)})
	}
	return b.addr
}

func paramTypes(params []*Param) []ir.Type {
	out := make([]ir.Type, len(params))
	for i, p := range params {
		out[i] = scalarToIR(p.Ty.Elem)
	}
	return out
}

func (l *Lowerer) lowerFunc(fd *FuncDecl) (*ir.Function, error) {
	fn := ir.NewFunction(fd.Name, paramTypes(fd.Params), scalarToIR(fd.ReturnType.Elem))
	fn.Pure = fd.Pure
	fn.AtMostOnce = fd.AtMostOnce

	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)

	l.fn, l.bld, l.retType = fn, bld, scalarToIR(fd.ReturnType.Elem)
	l.pushScope()
	defer l.popScope()

	for _, p := range fd.Params {
		elem := scalarToIR(p.Ty.Elem)
		attrs := []ir.Attr{ir.SizeAttr(int64(elem.Size())), ir.NameAttr(p.Name)}
		if p.Ty.IsArray() {
			attrs = append(attrs, ir.DimsAttr(p.Ty.Dims))
		}
		slot := bld.Create(ir.KAlloca, ir.I64, nil, attrs)
		l.define(p.Name, &binding{addr: slot, elem: elem, dims: p.Ty.Dims})
	}

	if err := l.lowerBlock(fd.Body); err != nil {
		return nil, err
	}

	if term := entry.Terminator(); term == nil {
		if fd.ReturnType.Elem == TVoid {
			bld.Create(ir.KReturn, ir.Unit, nil, nil)
		} else {
			return nil, fmt.Errorf("frontend: function %q falls off the end without a return", fd.Name)
		}
	}
	return fn, nil
}

func (l *Lowerer) lowerBlock(b *BlockStmt) error {
	for _, s := range b.Stmts {
		if err := l.lowerStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lowerer) lowerStmt(s Stmt) error {
	switch s := s.(type) {
	case *VarDeclStmt:
		return l.lowerVarDecl(s)
	case *AssignStmt:
		return l.lowerAssign(s)
	case *ExprStmt:
		_, err := l.lowerExpr(s.X)
		return err
	case *IfStmt:
		return l.lowerIf(s)
	case *WhileStmt:
		return l.lowerWhile(s)
	case *ForStmt:
		return l.lowerFor(s)
	case *ReturnStmt:
		return l.lowerReturn(s)
	case *BreakStmt:
		l.bld.Create(ir.KBreak, ir.Unit, nil, nil)
		return nil
	case *ContinueStmt:
		l.bld.Create(ir.KContinue, ir.Unit, nil, nil)
		return nil
	case *BlockStmt:
		l.pushScope()
		defer l.popScope()
		return l.lowerBlock(s)
	default:
		return fmt.Errorf("frontend: unhandled statement %T", s)
	}
}

func (l *Lowerer) lowerVarDecl(s *VarDeclStmt) error {
	elem := scalarToIR(s.Ty.Elem)
	attrs := []ir.Attr{ir.SizeAttr(int64(elem.Size())), ir.NameAttr(s.Name)}
	if s.Ty.IsArray() {
		attrs = append(attrs, ir.DimsAttr(s.Ty.Dims))
	}
	slot := l.bld.Create(ir.KAlloca, ir.I64, nil, attrs)
	l.define(s.Name, &binding{addr: slot, elem: elem, dims: s.Ty.Dims})
	if s.Init != nil {
		v, err := l.lowerExpr(s.Init)
		if err != nil {
			return err
		}
		l.bld.Create(ir.KStore, ir.Unit, []*ir.Op{slot, v}, nil)
	}
	return nil
}

func (l *Lowerer) lowerAssign(s *AssignStmt) error {
	v, err := l.lowerExpr(s.Value)
	if err != nil {
		return err
	}
	addr, err := l.lowerAddr(s.Target)
	if err != nil {
		return err
	}
	l.bld.Create(ir.KStore, ir.Unit, []*ir.Op{addr, v}, nil)
	return nil
}

// lowerAddr computes the address an assignment target names.
func (l *Lowerer) lowerAddr(e Expr) (*ir.Op, error) {
	switch e := e.(type) {
	case *Ident:
		b, ok := l.lookup(e.Name)
		if !ok {
			return nil, fmt.Errorf("frontend: undefined name %q", e.Name)
		}
		return l.addrOf(b), nil
	case *IndexExpr:
		return l.lowerIndexAddr(e)
	default:
		return nil, fmt.Errorf("frontend: %T is not assignable", e)
	}
}

func (l *Lowerer) lowerIndexAddr(e *IndexExpr) (*ir.Op, error) {
	b, ok := l.lookup(e.Base)
	if !ok {
		return nil, fmt.Errorf("frontend: undefined name %q", e.Base)
	}
	operands := []*ir.Op{l.addrOf(b)}
	for _, ix := range e.Indices {
		v, err := l.lowerExpr(ix)
		if err != nil {
			return nil, err
		}
		operands = append(operands, v)
	}
	return l.bld.Create(ir.KGetElement, ir.I64, operands, nil), nil
}

func (l *Lowerer) lowerIf(s *IfStmt) error {
	cond, err := l.lowerExpr(s.Cond)
	if err != nil {
		return err
	}
	ifOp := l.bld.Create(ir.KIf, ir.Unit, []*ir.Op{cond}, nil)

	if err := l.lowerRegion(ifOp, "then", s.Then); err != nil {
		return err
	}
	if s.Else != nil {
		if err := l.lowerRegion(ifOp, "else", s.Else); err != nil {
			return err
		}
	}
	return nil
}

// lowerRegion builds a new sub-region of owner containing a single block
// labeled label, lowers body into it, and restores the caller's cursor.
func (l *Lowerer) lowerRegion(owner *ir.Op, label string, body *BlockStmt) error {
	region := l.bld.CreateRegion(owner)
	blk := ir.NewBlock(label)
	region.Append(blk)

	scope := l.bld.EnterScope()
	defer scope.Exit()
	l.bld.SetInsertionPoint(blk)

	l.pushScope()
	defer l.popScope()
	return l.lowerBlock(body)
}

// lowerWhile builds `(cond) (body)` regions. The cond region has no
// dedicated "yield" op in this dialect; by convention its last Op's
// result is the loop's truth value, mirroring how
// a structured-IR cond region's trailing value is read in the absence of an
// explicit terminator op.
func (l *Lowerer) lowerWhile(s *WhileStmt) error {
	whileOp := l.bld.Create(ir.KWhile, ir.Unit, nil, nil)

	condRegion := l.bld.CreateRegion(whileOp)
	condBlk := ir.NewBlock("cond")
	condRegion.Append(condBlk)
	scope := l.bld.EnterScope()
	l.bld.SetInsertionPoint(condBlk)
	if _, err := l.lowerExpr(s.Cond); err != nil {
		scope.Exit()
		return err
	}
	scope.Exit()

	return l.lowerRegion(whileOp, "body", s.Body)
}

func (l *Lowerer) lowerFor(s *ForStmt) error {
	start, err := l.lowerExpr(s.Start)
	if err != nil {
		return err
	}
	stop, err := l.lowerExpr(s.Stop)
	if err != nil {
		return err
	}
	step, err := l.lowerExpr(s.Step)
	if err != nil {
		return err
	}
	ivSlot := l.bld.Create(ir.KAlloca, ir.I64, nil, []ir.Attr{ir.SizeAttr(4), ir.NameAttr(s.IV)})
	forOp := l.bld.Create(ir.KFor, ir.Unit, []*ir.Op{start, stop, step, ivSlot}, nil)

	region := l.bld.CreateRegion(forOp)
	blk := ir.NewBlock("body")
	region.Append(blk)
	scope := l.bld.EnterScope()
	defer scope.Exit()
	l.bld.SetInsertionPoint(blk)

	l.pushScope()
	defer l.popScope()
	l.define(s.IV, &binding{addr: ivSlot, elem: ir.I32})
	return l.lowerBlock(s.Body)
}

func (l *Lowerer) lowerReturn(s *ReturnStmt) error {
	if s.Value == nil {
		l.bld.Create(ir.KReturn, ir.Unit, nil, nil)
		return nil
	}
	v, err := l.lowerExpr(s.Value)
	if err != nil {
		return err
	}
	l.bld.Create(ir.KReturn, l.retType, []*ir.Op{v}, nil)
	return nil
}

func (l *Lowerer) lowerExpr(e Expr) (*ir.Op, error) {
	switch e := e.(type) {
	case *IntLit:
		return l.bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(e.Val)}), nil
	case *FloatLit:
		return l.bld.Create(ir.KConst, ir.F32, nil, []ir.Attr{ir.FloatAttr(e.Val)}), nil
	case *Ident:
		b, ok := l.lookup(e.Name)
		if !ok {
			return nil, fmt.Errorf("frontend: undefined name %q", e.Name)
		}
		if b.dims != nil {
			return l.addrOf(b), nil
		}
		return l.bld.Create(ir.KLoad, b.elem, []*ir.Op{l.addrOf(b)}, nil), nil
	case *IndexExpr:
		addr, err := l.lowerIndexAddr(e)
		if err != nil {
			return nil, err
		}
		b, ok := l.lookup(e.Base)
		if !ok {
			return nil, fmt.Errorf("frontend: undefined name %q", e.Base)
		}
		return l.bld.Create(ir.KLoad, b.elem, []*ir.Op{addr}, nil), nil
	case *BinaryExpr:
		return l.lowerBinary(e)
	case *UnaryExpr:
		x, err := l.lowerExpr(e.X)
		if err != nil {
			return nil, err
		}
		return l.bld.Create(ir.KUnOp, x.ResultTy, []*ir.Op{x}, []ir.Attr{ir.NameAttr(e.Op)}), nil
	case *CallExpr:
		args := make([]*ir.Op, len(e.Args))
		for i, a := range e.Args {
			v, err := l.lowerExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		ret, ok := l.funcRet[e.Callee]
		if !ok {
			return nil, fmt.Errorf("frontend: call to undefined function %q", e.Callee)
		}
		return l.bld.Create(ir.KCall, ret, args, []ir.Attr{ir.NameAttr(e.Callee)}), nil
	case *CastExpr:
		x, err := l.lowerExpr(e.X)
		if err != nil {
			return nil, err
		}
		return l.bld.Create(ir.KCast, scalarToIR(e.Ty), []*ir.Op{x}, nil), nil
	default:
		return nil, fmt.Errorf("frontend: unhandled expression %T", e)
	}
}

func (l *Lowerer) lowerBinary(e *BinaryExpr) (*ir.Op, error) {
	lhs, err := l.lowerExpr(e.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := l.lowerExpr(e.RHS)
	if err != nil {
		return nil, err
	}
	resultTy := lhs.ResultTy
	switch e.Op {
	case "lt", "le", "gt", "ge", "eq", "ne", "and", "or":
		resultTy = ir.I32
	default:
		if lhs.ResultTy.IsFloat() || rhs.ResultTy.IsFloat() {
			resultTy = ir.F32
		}
	}
	return l.bld.Create(ir.KBinOp, resultTy, []*ir.Op{lhs, rhs}, []ir.Attr{ir.NameAttr(e.Op)}), nil
}
